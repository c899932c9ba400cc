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
	"fmt"
)

// SQLType is the relational type of a table-type column.
type SQLType int

const (
	TypeNVarChar SQLType = iota + 1
	TypeBigInt
	TypeDecimal
	TypeInt
	TypeSmallInt
	TypeTinyInt
	TypeFloat
	TypeReal
	TypeBit
	TypeUniqueIdentifier
	TypeDateTime
)

// Column is the relational projection of one record field.
type Column struct {
	Name      string
	Type      SQLType
	Length    int // NVarChar only; 0 means unbounded
	Precision uint8
	Scale     uint8
	Nullable  bool
	// Enum is set for enumerations stored as their integer value.
	Enum bool

	kind  HostKind
	field int
}

// Kind returns the host kind the column was derived from.
func (c Column) Kind() HostKind {
	return c.kind
}

// SQL renders the column type exactly as it appears in the generated DDL.
func (c Column) SQL() string {
	switch c.Type {
	case TypeNVarChar:
		return "NVarChar(max)"
	case TypeBigInt:
		return "bigint"
	case TypeDecimal:
		return fmt.Sprintf("decimal(%d,%d)", c.Precision, c.Scale)
	case TypeInt:
		return "int"
	case TypeSmallInt:
		return "smallint"
	case TypeTinyInt:
		return "tinyint"
	case TypeFloat:
		return "float"
	case TypeReal:
		return "real"
	case TypeBit:
		return "bit"
	case TypeUniqueIdentifier:
		return "uniqueidentifier"
	case TypeDateTime:
		return "datetime"
	}
	return fmt.Sprintf("unknown(%d)", int(c.Type))
}

// columnTypes is the fixed host-to-relational mapping. Kinds absent from it are unsupported.
var columnTypes = map[HostKind]Column{
	KindString:  {Type: TypeNVarChar},
	KindInt64:   {Type: TypeBigInt},
	KindUint32:  {Type: TypeBigInt},
	KindUint64:  {Type: TypeDecimal, Precision: 28, Scale: 0},
	KindInt32:   {Type: TypeInt},
	KindUint16:  {Type: TypeInt},
	KindEnum:    {Type: TypeInt, Enum: true},
	KindInt16:   {Type: TypeSmallInt},
	KindInt8:    {Type: TypeTinyInt},
	KindUint8:   {Type: TypeTinyInt},
	KindFloat64: {Type: TypeFloat},
	KindFloat32: {Type: TypeReal},
	KindBool:    {Type: TypeBit},
	KindDecimal: {Type: TypeDecimal, Precision: 28, Scale: 5},
	KindUUID:    {Type: TypeUniqueIdentifier},
	KindTime:    {Type: TypeDateTime},
}

// Mapper derives columns from record descriptors.
type Mapper struct {
	// TextLength bounds string columns. Zero or less leaves them unbounded.
	TextLength int
}

// DeriveColumns maps desc with the default text length.
func DeriveColumns(desc *RecordDescriptor) ([]Column, error) {
	return Mapper{TextLength: DefaultTextLength}.Columns(desc)
}

// Columns maps every non-ignored field of desc through the fixed type table,
// preserving field order. The first unmapped field fails the whole record.
func (m Mapper) Columns(desc *RecordDescriptor) ([]Column, error) {
	if desc == nil {
		return nil, fmt.Errorf("record descriptor is nil")
	}
	var columns []Column
	for i, f := range desc.Fields {
		if f.Ignore {
			continue
		}
		col, ok := columnTypes[f.Kind]
		if !ok {
			return nil, &UnsupportedColumnTypeError{Record: desc.Name, Field: f.Name, Type: f.TypeName}
		}
		col.Name = f.Name
		col.Nullable = f.Nullable
		col.kind = f.Kind
		col.field = i
		if col.Type == TypeNVarChar && m.TextLength > 0 {
			col.Length = m.TextLength
		}
		columns = append(columns, col)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("record %s has no columns to map", desc.Name)
	}
	return columns, nil
}
