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
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedColumnType matches any *UnsupportedColumnTypeError.
	ErrUnsupportedColumnType = errors.New("unsupported column type")
	// ErrUnsupportedTarget matches any *UnsupportedTargetError.
	ErrUnsupportedTarget = errors.New("structured parameters unsupported")
	// ErrNamingCollision matches any *NamingCollisionError.
	ErrNamingCollision = errors.New("structured type name collision")
	// ErrValueOutOfRange is wrapped by ValueError when a value does not fit its column.
	ErrValueOutOfRange = errors.New("value out of range for column")
)

// UnsupportedColumnTypeError is returned when a field's type has no relational mapping.
type UnsupportedColumnTypeError struct {
	Record string
	Field  string
	Type   string
}

func (e *UnsupportedColumnTypeError) Error() string {
	return fmt.Sprintf("unsupported column type: field %s.%s has type %s", e.Record, e.Field, e.Type)
}

func (e *UnsupportedColumnTypeError) Is(target error) bool {
	return target == ErrUnsupportedColumnType
}

// DDLExecutionError is returned when the create-or-replace statement fails.
// The creation cache is left unmarked so the next call retries.
type DDLExecutionError struct {
	TypeName string
	Target   string
	Err      error
}

func (e *DDLExecutionError) Error() string {
	return fmt.Sprintf("failed to create table type %s on %s: %v", e.TypeName, e.Target, e.Err)
}

func (e *DDLExecutionError) Unwrap() error {
	return e.Err
}

// UnsupportedTargetError is returned when the destination cannot take structured parameters.
type UnsupportedTargetError struct {
	Dialect string
}

func (e *UnsupportedTargetError) Error() string {
	return fmt.Sprintf("structured parameters unsupported by dialect %q", e.Dialect)
}

func (e *UnsupportedTargetError) Is(target error) bool {
	return target == ErrUnsupportedTarget
}

// NamingCollisionError is returned when two distinct record identities resolve to one type name.
type NamingCollisionError struct {
	TypeName string
	Existing string
	Incoming string
}

func (e *NamingCollisionError) Error() string {
	return fmt.Sprintf("structured type name %s already used by %s, cannot reuse it for %s", e.TypeName, e.Existing, e.Incoming)
}

func (e *NamingCollisionError) Is(target error) bool {
	return target == ErrNamingCollision
}

// ValueError reports a record value that cannot be placed into its column.
type ValueError struct {
	Row    int
	Column string
	Err    error
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("row %d column %s: %v", e.Row, e.Column, e.Err)
}

func (e *ValueError) Unwrap() error {
	return e.Err
}
