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
	"database/sql/driver"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/google/uuid"
)

// Bounds of the SQL Server datetime type.
var (
	minDatetime = time.Date(1753, time.January, 1, 0, 0, 0, 0, time.UTC)
	maxDatetime = time.Date(9999, time.December, 31, 23, 59, 59, 997_000_000, time.UTC)
)

// Table is the tabular value of one structured parameter. Each row has one
// cell per column; a nil cell is SQL NULL. Non-nil cells hold:
//
//	NVarChar          string
//	bigint            int64
//	decimal           string (exact decimal text)
//	int               int32
//	smallint          int16
//	tinyint           uint8
//	float             float64
//	real              float32
//	bit               bool
//	uniqueidentifier  uuid.UUID
//	datetime          time.Time
type Table struct {
	Columns []Column
	Rows    [][]any
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// IsNull reports whether the cell at row, col is NULL.
func (t *Table) IsNull(row, col int) bool {
	return t.Rows[row][col] == nil
}

// Build converts records, a slice or array of desc's struct type (or pointers
// to it), into a Table. Rows keep the input order.
func Build(desc *RecordDescriptor, columns []Column, records any) (*Table, error) {
	if desc == nil {
		return nil, fmt.Errorf("record descriptor is nil")
	}
	if desc.goType == nil {
		return nil, fmt.Errorf("record %s has no Go type, rows cannot be built for it", desc.Name)
	}
	rv := reflect.ValueOf(records)
	if !rv.IsValid() {
		return nil, fmt.Errorf("records for %s are nil", desc.Name)
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("records for %s must be a slice or array, got %s", desc.Name, rv.Type())
	}

	table := &Table{Columns: columns, Rows: make([][]any, 0, rv.Len())}
	for i := 0; i < rv.Len(); i++ {
		item := rv.Index(i)
		for item.Kind() == reflect.Ptr || item.Kind() == reflect.Interface {
			if item.IsNil() {
				return nil, fmt.Errorf("record %d of %s is nil", i, desc.Name)
			}
			item = item.Elem()
		}
		if item.Type() != desc.goType {
			return nil, fmt.Errorf("record %d has type %s, want %s", i, item.Type(), desc.goType)
		}

		row := make([]any, len(columns))
		for j, col := range columns {
			fv, err := item.FieldByIndexErr(desc.Fields[col.field].index)
			if err != nil {
				// Promoted through a nil embedded pointer.
				continue
			}
			cell, err := cellValue(col, fv)
			if err != nil {
				return nil, &ValueError{Row: i, Column: col.Name, Err: err}
			}
			row[j] = cell
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func cellValue(col Column, v reflect.Value) (any, error) {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}
	if _, ok := nullWrappers[v.Type()]; ok {
		dv, err := v.Interface().(driver.Valuer).Value()
		if err != nil {
			return nil, err
		}
		if dv == nil {
			return nil, nil
		}
		v = reflect.ValueOf(dv)
	}

	switch col.kind {
	case KindString:
		s := v.String()
		if col.Length > 0 && utf16Len(s) > col.Length {
			return nil, fmt.Errorf("%w: text of %d UTF-16 units exceeds %d", ErrValueOutOfRange, utf16Len(s), col.Length)
		}
		return s, nil
	case KindInt64, KindUint32:
		return integer(v)
	case KindUint64:
		return strconv.FormatUint(v.Uint(), 10), nil
	case KindInt32, KindUint16, KindEnum:
		n, err := integer(v)
		if err != nil {
			return nil, err
		}
		if err := inRange(n, math.MinInt32, math.MaxInt32); err != nil {
			return nil, err
		}
		return int32(n), nil
	case KindInt16:
		n, err := integer(v)
		if err != nil {
			return nil, err
		}
		if err := inRange(n, math.MinInt16, math.MaxInt16); err != nil {
			return nil, err
		}
		return int16(n), nil
	case KindInt8, KindUint8:
		n, err := integer(v)
		if err != nil {
			return nil, err
		}
		// tinyint is unsigned on SQL Server.
		if err := inRange(n, 0, math.MaxUint8); err != nil {
			return nil, err
		}
		return uint8(n), nil
	case KindFloat64:
		return v.Float(), nil
	case KindFloat32:
		return float32(v.Float()), nil
	case KindBool:
		return v.Bool(), nil
	case KindDecimal:
		r := v.Interface().(big.Rat)
		return decimalText(&r, col.Precision, col.Scale)
	case KindUUID:
		switch u := v.Interface().(type) {
		case uuid.UUID:
			return u, nil
		case mssql.UniqueIdentifier:
			return uuid.UUID(u), nil
		}
	case KindTime:
		tm := v.Interface().(time.Time)
		if tm.Before(minDatetime) || tm.After(maxDatetime) {
			return nil, fmt.Errorf("%w: %s outside datetime range [%s, %s]", ErrValueOutOfRange,
				tm.Format(time.RFC3339), minDatetime.Format(time.DateOnly), maxDatetime.Format(time.DateOnly))
		}
		return tm, nil
	}
	return nil, fmt.Errorf("cannot convert %s to %s", v.Type(), col.SQL())
}

func integer(v reflect.Value) (int64, error) {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := v.Uint()
		if u > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d", ErrValueOutOfRange, u)
		}
		return int64(u), nil
	}
	return 0, fmt.Errorf("expected an integer, got %s", v.Type())
}

func inRange(n, lo, hi int64) error {
	if n < lo || n > hi {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrValueOutOfRange, n, lo, hi)
	}
	return nil
}

// decimalText renders r with exactly scale fractional digits and checks it
// fits decimal(precision, scale).
func decimalText(r *big.Rat, precision, scale uint8) (string, error) {
	s := r.FloatString(int(scale))
	digits := strings.TrimPrefix(s, "-")
	if dot := strings.IndexByte(digits, '.'); dot >= 0 {
		digits = digits[:dot]
	}
	digits = strings.TrimLeft(digits, "0")
	if len(digits) > int(precision-scale) {
		return "", fmt.Errorf("%w: %s has more than %d integer digits", ErrValueOutOfRange, s, precision-scale)
	}
	return s, nil
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}
