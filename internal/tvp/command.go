/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package tvp

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode"
)

// ParameterMarker prefixes parameter names in T-SQL text.
const ParameterMarker = "@"

// Target is a destination database: it executes statements, identifies
// itself for the creation cache and encodes tables into driver values.
type Target interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	// Identity names the destination by its addressing information, never by credentials.
	Identity() string
	Dialect() string
	// StructuredParameters reports whether EncodeTable is supported.
	StructuredParameters() bool
	EncodeTable(typeName string, table *Table) (any, error)
}

// Parameter is a structured parameter bound to a Command.
type Parameter struct {
	Name     string // includes ParameterMarker
	TypeName string
	Table    *Table
	Value    any // as encoded by the target
}

// Command is a statement, its plain arguments and its structured parameters.
type Command struct {
	Text string

	target Target
	args   []any
	params []Parameter
}

// NewCommand returns a command that will run text on target.
func NewCommand(target Target, text string, args ...any) *Command {
	return &Command{Text: text, target: target, args: args}
}

// Target returns the destination the command runs on.
func (c *Command) Target() Target {
	return c.target
}

// Parameters returns the structured parameters in binding order.
func (c *Command) Parameters() []Parameter {
	out := make([]Parameter, len(c.params))
	copy(out, c.params)
	return out
}

// Args returns the arguments to hand to database/sql: plain arguments first,
// then one sql.NamedArg per structured parameter.
func (c *Command) Args() []any {
	args := make([]any, 0, len(c.args)+len(c.params))
	args = append(args, c.args...)
	for _, p := range c.params {
		args = append(args, sql.Named(strings.TrimPrefix(p.Name, ParameterMarker), p.Value))
	}
	return args
}

// ExecContext runs the command on its target.
func (c *Command) ExecContext(ctx context.Context) (sql.Result, error) {
	if c.target == nil {
		return nil, fmt.Errorf("command has no target")
	}
	return c.target.ExecContext(ctx, c.Text, c.Args()...)
}

// QueryContext runs the command on its target and returns its rows.
func (c *Command) QueryContext(ctx context.Context) (*sql.Rows, error) {
	if c.target == nil {
		return nil, fmt.Errorf("command has no target")
	}
	return c.target.QueryContext(ctx, c.Text, c.Args()...)
}

// NormalizeParameterName returns name with exactly one leading marker.
func NormalizeParameterName(name string) (string, error) {
	bare := strings.TrimLeft(strings.TrimSpace(name), ParameterMarker)
	if bare == "" {
		return "", fmt.Errorf("parameter name %q is empty", name)
	}
	// database/sql rejects named arguments that do not start with a letter.
	if r := []rune(bare)[0]; !unicode.IsLetter(r) {
		return "", fmt.Errorf("parameter name %q must start with a letter", name)
	}
	return ParameterMarker + bare, nil
}

// Attach binds table to cmd as a structured parameter of type typeName.
// It fails when the command's target cannot take structured parameters.
func Attach(cmd *Command, parameterName, typeName string, table *Table) error {
	if cmd == nil || cmd.target == nil {
		return fmt.Errorf("command has no target")
	}
	if table == nil {
		return fmt.Errorf("table for parameter %s is nil", parameterName)
	}
	if strings.TrimSpace(typeName) == "" {
		return fmt.Errorf("parameter %s needs a type name", parameterName)
	}
	if !cmd.target.StructuredParameters() {
		return &UnsupportedTargetError{Dialect: cmd.target.Dialect()}
	}
	name, err := NormalizeParameterName(parameterName)
	if err != nil {
		return err
	}
	for _, p := range cmd.params {
		if strings.EqualFold(p.Name, name) {
			return fmt.Errorf("parameter %s is already bound", name)
		}
	}

	value, err := cmd.target.EncodeTable(typeName, table)
	if err != nil {
		return fmt.Errorf("failed to encode parameter %s: %w", name, err)
	}
	cmd.params = append(cmd.params, Parameter{Name: name, TypeName: typeName, Table: table, Value: value})
	return nil
}
