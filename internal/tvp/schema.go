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
	"database/sql"
	"fmt"
	"math/big"
	"reflect"
	"strings"
	"time"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/google/uuid"
)

// TagName is the struct tag consulted on record fields. `tvp:"-"` excludes a
// field from the table type, the same convention go-mssqldb uses for TVP rows.
// `tvp:",enum"` stores a wider integer field as an int enumeration.
const TagName = "tvp"

// DefaultTextLength bounds string cells, in UTF-16 code units.
const DefaultTextLength = 4000

// HostKind is the semantic type of a record field once nullable wrappers are removed.
type HostKind int

const (
	KindUnsupported HostKind = iota
	KindString
	KindInt64
	KindUint32
	KindUint64
	KindInt32
	KindUint16
	KindEnum
	KindInt16
	KindInt8
	KindUint8
	KindFloat64
	KindFloat32
	KindBool
	KindDecimal
	KindUUID
	KindTime
)

// declaredKinds maps the type names accepted by Declare and ParseHostKind.
var declaredKinds = map[string]HostKind{
	"string":  KindString,
	"int64":   KindInt64,
	"int":     KindInt64,
	"uint32":  KindUint32,
	"uint64":  KindUint64,
	"uint":    KindUint64,
	"int32":   KindInt32,
	"uint16":  KindUint16,
	"enum":    KindEnum,
	"int16":   KindInt16,
	"int8":    KindInt8,
	"uint8":   KindUint8,
	"byte":    KindUint8,
	"float64": KindFloat64,
	"float32": KindFloat32,
	"bool":    KindBool,
	"decimal": KindDecimal,
	"uuid":    KindUUID,
	"time":    KindTime,
}

var kindNames = [...]string{
	KindUnsupported: "unsupported",
	KindString:      "string",
	KindInt64:       "int64",
	KindUint32:      "uint32",
	KindUint64:      "uint64",
	KindInt32:       "int32",
	KindUint16:      "uint16",
	KindEnum:        "enum",
	KindInt16:       "int16",
	KindInt8:        "int8",
	KindUint8:       "uint8",
	KindFloat64:     "float64",
	KindFloat32:     "float32",
	KindBool:        "bool",
	KindDecimal:     "decimal",
	KindUUID:        "uuid",
	KindTime:        "time",
}

func (k HostKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unsupported"
	}
	return kindNames[k]
}

// ParseHostKind resolves a declared type name such as "int32" or "*time".
// A leading '*' marks the field nullable.
func ParseHostKind(s string) (HostKind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	nullable := strings.HasPrefix(s, "*")
	s = strings.TrimPrefix(s, "*")
	kind, ok := declaredKinds[s]
	if !ok {
		return KindUnsupported, nullable
	}
	return kind, nullable
}

var (
	timeType      = reflect.TypeOf(time.Time{})
	ratType       = reflect.TypeOf(big.Rat{})
	uuidType      = reflect.TypeOf(uuid.UUID{})
	mssqlGUIDType = reflect.TypeOf(mssql.UniqueIdentifier{})
)

// nullWrappers are the database/sql nullable types and the kind they carry.
var nullWrappers = map[reflect.Type]HostKind{
	reflect.TypeOf(sql.NullString{}):  KindString,
	reflect.TypeOf(sql.NullInt64{}):   KindInt64,
	reflect.TypeOf(sql.NullInt32{}):   KindInt32,
	reflect.TypeOf(sql.NullInt16{}):   KindInt16,
	reflect.TypeOf(sql.NullByte{}):    KindUint8,
	reflect.TypeOf(sql.NullFloat64{}): KindFloat64,
	reflect.TypeOf(sql.NullBool{}):    KindBool,
	reflect.TypeOf(sql.NullTime{}):    KindTime,
}

// FieldDescriptor is one field of a record type.
type FieldDescriptor struct {
	Name     string
	Kind     HostKind
	TypeName string // declared host type, reported in errors
	Nullable bool
	Ignore   bool

	index []int
}

// RecordDescriptor is the ordered field list of one record type.
type RecordDescriptor struct {
	// Name is the fully-qualified identity: import path plus type name for Go types.
	Name   string
	Fields []FieldDescriptor

	goType reflect.Type
}

// GoType returns the described struct type, or nil for declared records.
func (d *RecordDescriptor) GoType() reflect.Type {
	return d.goType
}

// Identity returns the fully-qualified identity of a named Go type.
func Identity(t reflect.Type) string {
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.PkgPath() + "." + t.Name()
}

// Describe introspects a struct type. Exported fields are listed in
// declaration order; promoted fields of embedded structs appear where the
// embedded field is declared.
func Describe(t reflect.Type) (*RecordDescriptor, error) {
	if t == nil {
		return nil, fmt.Errorf("record type is nil")
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("record type %s is not a struct", t)
	}
	if t.Name() == "" {
		return nil, fmt.Errorf("record type %s must be a named struct", t)
	}

	desc := &RecordDescriptor{Name: Identity(t), goType: t}
	for _, sf := range reflect.VisibleFields(t) {
		if !sf.IsExported() {
			continue
		}
		if sf.Anonymous && promotesFields(sf.Type) {
			continue
		}
		kind, nullable := classify(sf.Type)
		ignore, enum := parseTag(sf.Tag.Get(TagName))
		if enum {
			kind = enumKind(kind)
		}
		desc.Fields = append(desc.Fields, FieldDescriptor{
			Name:     sf.Name,
			Kind:     kind,
			TypeName: sf.Type.String(),
			Nullable: nullable,
			Ignore:   ignore,
			index:    sf.Index,
		})
	}
	return desc, nil
}

// Declare builds a descriptor from an explicit field list. Declared records
// carry no Go type, so they can produce DDL but not rows.
func Declare(name string, fields []FieldDescriptor) (*RecordDescriptor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("declared record needs a name")
	}
	seen := make(map[string]bool, len(fields))
	out := make([]FieldDescriptor, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("record %s: field %d has no name", name, i)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("record %s: duplicate field %s", name, f.Name)
		}
		seen[f.Name] = true
		f.index = nil
		out[i] = f
	}
	return &RecordDescriptor{Name: name, Fields: out}, nil
}

func parseTag(tag string) (ignore, enum bool) {
	name, opts, _ := strings.Cut(tag, ",")
	if name == "-" && opts == "" {
		return true, false
	}
	for _, opt := range strings.Split(opts, ",") {
		if strings.TrimSpace(opt) == "enum" {
			enum = true
		}
	}
	return false, enum
}

// enumKind applies the enum tag option. Only integer fields can be enums.
func enumKind(k HostKind) HostKind {
	switch k {
	case KindInt64, KindUint32, KindUint64, KindInt32, KindUint16, KindEnum,
		KindInt16, KindInt8, KindUint8:
		return KindEnum
	}
	return KindUnsupported
}

func promotesFields(t reflect.Type) bool {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return false
	}
	if _, ok := nullWrappers[t]; ok {
		return false
	}
	return t != timeType && t != ratType
}

func classify(t reflect.Type) (HostKind, bool) {
	if kind, ok := nullWrappers[t]; ok {
		return kind, true
	}
	if t.Kind() == reflect.Ptr {
		elem := t.Elem()
		if _, ok := nullWrappers[elem]; ok || elem.Kind() == reflect.Ptr {
			return KindUnsupported, true
		}
		return classifyValue(elem), true
	}
	return classifyValue(t), false
}

func classifyValue(t reflect.Type) HostKind {
	switch t {
	case timeType:
		return KindTime
	case ratType:
		return KindDecimal
	case uuidType, mssqlGUIDType:
		return KindUUID
	}

	switch t.Kind() {
	case reflect.String:
		return KindString
	case reflect.Bool:
		return KindBool
	case reflect.Float64:
		return KindFloat64
	case reflect.Float32:
		return KindFloat32
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16:
		// Defined integer types that fit int32 are enumerations. Wider ones
		// (IDs, time.Duration) keep their width.
		if t.PkgPath() != "" {
			return KindEnum
		}
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
	default:
		return KindUnsupported
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int64:
		return KindInt64
	case reflect.Uint32:
		return KindUint32
	case reflect.Uint, reflect.Uint64:
		return KindUint64
	case reflect.Int32:
		return KindInt32
	case reflect.Uint16:
		return KindUint16
	case reflect.Int16:
		return KindInt16
	case reflect.Int8:
		return KindInt8
	case reflect.Uint8:
		return KindUint8
	}
	return KindUnsupported
}
