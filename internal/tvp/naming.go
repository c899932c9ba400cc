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
	"reflect"
	"strings"
	"sync"

	"github.com/zeebo/xxh3"
)

// MaxIdentifierLength is SQL Server's limit on a single identifier.
const MaxIdentifierLength = 128

// TypeName derives the server-side table type name for a record identity.
//
// Every character outside [A-Za-z0-9] becomes '_', and a hash of the raw
// identity is appended, so identities that normalise to the same text still
// get different names. The readable part is trimmed from the left when the
// result would exceed MaxIdentifierLength.
func TypeName(prefix, identity string) string {
	suffix := fmt.Sprintf("_%016x", xxh3.HashString(identity))
	readable := normalizeIdentifier(identity)
	room := MaxIdentifierLength - len(prefix) - len(suffix)
	if room < 0 {
		room = 0
	}
	if len(readable) > room {
		readable = readable[len(readable)-room:]
	}
	return prefix + readable + suffix
}

func normalizeIdentifier(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// RecordSchema is everything derived once per record type.
type RecordSchema struct {
	Record   *RecordDescriptor
	Columns  []Column
	TypeName string // unqualified
}

// Registry memoises record schemas per Go type and guards the type-name
// namespace: a name can belong to one record identity only.
type Registry struct {
	prefix string
	mapper Mapper

	schemas sync.Map // reflect.Type -> *RecordSchema

	mu       sync.Mutex
	owners   map[string]any            // type name -> reflect.Type or declared name
	declared map[string]*RecordSchema // declared record name -> schema
}

// NewRegistry returns an empty registry.
func NewRegistry(prefix string, textLength int) *Registry {
	return &Registry{
		prefix:   prefix,
		mapper:   Mapper{TextLength: textLength},
		owners:   make(map[string]any),
		declared: make(map[string]*RecordSchema),
	}
}

// Lookup returns the schema of a Go record type, describing it on first use.
func (r *Registry) Lookup(t reflect.Type) (*RecordSchema, error) {
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t != nil {
		if rs, ok := r.schemas.Load(t); ok {
			return rs.(*RecordSchema), nil
		}
	}

	desc, err := Describe(t)
	if err != nil {
		return nil, err
	}
	rs, err := r.build(desc, t)
	if err != nil {
		return nil, err
	}
	actual, _ := r.schemas.LoadOrStore(t, rs)
	return actual.(*RecordSchema), nil
}

// Declared returns the schema of an explicitly declared record.
func (r *Registry) Declared(desc *RecordDescriptor) (*RecordSchema, error) {
	if desc == nil {
		return nil, fmt.Errorf("record descriptor is nil")
	}
	if desc.goType != nil {
		return r.Lookup(desc.goType)
	}
	rs, err := r.build(desc, "declared:"+desc.Name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.declared[desc.Name]
	if !ok {
		r.declared[desc.Name] = rs
		return rs, nil
	}
	// A declared name maps to exactly one column list.
	if !sameColumns(existing.Columns, rs.Columns) {
		return nil, &NamingCollisionError{
			TypeName: rs.TypeName,
			Existing: fmt.Sprintf("declared %s (%s)", desc.Name, columnList(existing.Columns)),
			Incoming: fmt.Sprintf("declared %s (%s)", desc.Name, columnList(rs.Columns)),
		}
	}
	return existing, nil
}

func sameColumns(a, b []Column) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.Name != y.Name || x.SQL() != y.SQL() || x.Length != y.Length ||
			x.Nullable != y.Nullable || x.kind != y.kind {
			return false
		}
	}
	return true
}

func columnList(columns []Column) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = c.Name + " " + c.SQL()
		if c.Nullable {
			parts[i] += " null"
		}
	}
	return strings.Join(parts, ", ")
}

func (r *Registry) build(desc *RecordDescriptor, owner any) (*RecordSchema, error) {
	columns, err := r.mapper.Columns(desc)
	if err != nil {
		return nil, err
	}
	name := TypeName(r.prefix, desc.Name)
	if err := r.claim(name, owner, desc.Name); err != nil {
		return nil, err
	}
	return &RecordSchema{Record: desc, Columns: columns, TypeName: name}, nil
}

func (r *Registry) claim(name string, owner any, identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.owners[name]
	if !ok {
		r.owners[name] = owner
		return nil
	}
	if existing == owner {
		return nil
	}
	return &NamingCollisionError{TypeName: name, Existing: ownerString(existing), Incoming: identity}
}

func ownerString(owner any) string {
	if t, ok := owner.(reflect.Type); ok {
		return t.String() + " (" + Identity(t) + ")"
	}
	return fmt.Sprint(owner)
}
