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
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/db-tvp-autocreate/internal/config"
)

// Binder attaches record collections to commands as table-valued parameters,
// creating the matching table type on each target the first time it is needed.
type Binder struct {
	schema   string
	registry *Registry
	cache    *CreationCache
	logger   *zap.Logger
}

// Option configures a Binder.
type Option func(*Binder)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Binder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithCache shares an existing creation cache, e.g. between binders that
// talk to the same servers.
func WithCache(cache *CreationCache) Option {
	return func(b *Binder) {
		if cache != nil {
			b.cache = cache
		}
	}
}

// NewBinder returns a Binder generating types under cfg.Schema.
func NewBinder(cfg config.TVPConfig, opts ...Option) *Binder {
	b := &Binder{
		schema:   cfg.Schema,
		registry: NewRegistry(cfg.TypePrefix, cfg.TextLength),
		cache:    NewCreationCache(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Cache returns the binder's creation cache.
func (b *Binder) Cache() *CreationCache {
	return b.cache
}

// Schema returns the derived schema of a Go record type.
func (b *Binder) Schema(t reflect.Type) (*RecordSchema, error) {
	return b.registry.Lookup(t)
}

// Declared returns the derived schema of a declared record.
func (b *Binder) Declared(desc *RecordDescriptor) (*RecordSchema, error) {
	return b.registry.Declared(desc)
}

// QualifiedTypeName returns schema.name for rs.
func (b *Binder) QualifiedTypeName(rs *RecordSchema) string {
	return b.schema + "." + rs.TypeName
}

// DDL returns the create-or-replace batch for rs.
func (b *Binder) DDL(rs *RecordSchema) string {
	return GenerateCreateOrReplace(b.schema, rs.TypeName, rs.Columns)
}

// EnsureCreated makes sure the table type for t exists on target and returns
// its schema-qualified name.
func (b *Binder) EnsureCreated(ctx context.Context, target Target, t reflect.Type) (string, error) {
	rs, err := b.registry.Lookup(t)
	if err != nil {
		return "", err
	}
	return b.ensure(ctx, target, rs)
}

// EnsureDeclared is EnsureCreated for a declared record.
func (b *Binder) EnsureDeclared(ctx context.Context, target Target, desc *RecordDescriptor) (string, error) {
	rs, err := b.registry.Declared(desc)
	if err != nil {
		return "", err
	}
	return b.ensure(ctx, target, rs)
}

func (b *Binder) ensure(ctx context.Context, target Target, rs *RecordSchema) (string, error) {
	if target == nil {
		return "", fmt.Errorf("target is nil")
	}
	if !target.StructuredParameters() {
		return "", &UnsupportedTargetError{Dialect: target.Dialect()}
	}
	name := b.QualifiedTypeName(rs)
	identity := target.Identity()
	err := b.cache.Ensure(ctx, name, identity, func(ctx context.Context) error {
		if _, err := target.ExecContext(ctx, b.DDL(rs)); err != nil {
			b.logger.Warn("table type creation failed",
				zap.String("type", name), zap.String("target", identity), zap.Error(err))
			return &DDLExecutionError{TypeName: name, Target: identity, Err: err}
		}
		b.logger.Debug("created table type",
			zap.String("type", name), zap.String("record", rs.Record.Name),
			zap.String("target", identity), zap.Int("columns", len(rs.Columns)))
		return nil
	})
	if err != nil {
		return "", err
	}
	return name, nil
}

// AttachRecords binds records (a slice or array of structs or struct
// pointers) to cmd as parameter name, creating the table type on the
// command's target first if this process has not done so yet.
func (b *Binder) AttachRecords(ctx context.Context, cmd *Command, name string, records any) error {
	if cmd == nil {
		return fmt.Errorf("command is nil")
	}
	t, err := elementType(records)
	if err != nil {
		return err
	}
	rs, err := b.registry.Lookup(t)
	if err != nil {
		return err
	}
	typeName, err := b.ensure(ctx, cmd.target, rs)
	if err != nil {
		return err
	}
	table, err := Build(rs.Record, rs.Columns, records)
	if err != nil {
		return err
	}
	return Attach(cmd, name, typeName, table)
}

// AttachRecord is AttachRecords for a single record.
func (b *Binder) AttachRecord(ctx context.Context, cmd *Command, name string, record any) error {
	records, err := singleton(record)
	if err != nil {
		return err
	}
	return b.AttachRecords(ctx, cmd, name, records)
}

// AttachRecordsAs binds records using an existing table type, typeName, and
// never issues DDL.
func (b *Binder) AttachRecordsAs(cmd *Command, name, typeName string, records any) error {
	t, err := elementType(records)
	if err != nil {
		return err
	}
	desc, err := Describe(t)
	if err != nil {
		return err
	}
	columns, err := b.registry.mapper.Columns(desc)
	if err != nil {
		return err
	}
	table, err := Build(desc, columns, records)
	if err != nil {
		return err
	}
	return Attach(cmd, name, typeName, table)
}

// AttachRecordAs is AttachRecordsAs for a single record.
func (b *Binder) AttachRecordAs(cmd *Command, name, typeName string, record any) error {
	records, err := singleton(record)
	if err != nil {
		return err
	}
	return b.AttachRecordsAs(cmd, name, typeName, records)
}

func elementType(records any) (reflect.Type, error) {
	if records == nil {
		return nil, fmt.Errorf("records are nil")
	}
	t := reflect.TypeOf(records)
	if t.Kind() != reflect.Slice && t.Kind() != reflect.Array {
		return nil, fmt.Errorf("records must be a slice or array, got %s", t)
	}
	elem := t.Elem()
	if elem.Kind() == reflect.Ptr {
		elem = elem.Elem()
	}
	return elem, nil
}

func singleton(record any) (any, error) {
	if record == nil {
		return nil, fmt.Errorf("record is nil")
	}
	v := reflect.ValueOf(record)
	s := reflect.MakeSlice(reflect.SliceOf(v.Type()), 1, 1)
	s.Index(0).Set(v)
	return s.Interface(), nil
}
