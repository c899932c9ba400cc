package tvp

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeName(t *testing.T) {
	name := TypeName("TVPAutoCreator_", "example.com/shop/orders.Line")
	assert.True(t, strings.HasPrefix(name, "TVPAutoCreator_example_com_shop_orders_Line_"), name)
	assert.Len(t, name, len("TVPAutoCreator_example_com_shop_orders_Line_")+16)
	assert.Equal(t, name, TypeName("TVPAutoCreator_", "example.com/shop/orders.Line"))
}

func TestTypeNameDistinct(t *testing.T) {
	// These normalise to the same readable text.
	identities := []string{
		"a/b.C",
		"a.b.C",
		"a_b.C",
		"a-b.C",
	}
	seen := map[string]string{}
	for _, id := range identities {
		name := TypeName("p_", id)
		if prev, ok := seen[name]; ok {
			t.Fatalf("%q and %q both map to %s", prev, id, name)
		}
		seen[name] = id
	}
}

func TestTypeNameLength(t *testing.T) {
	long := strings.Repeat("very/long/package/path/", 20) + "Record"
	name := TypeName("TVPAutoCreator_", long)
	assert.LessOrEqual(t, len(name), MaxIdentifierLength)
	assert.True(t, strings.HasPrefix(name, "TVPAutoCreator_"))
	assert.Contains(t, name, "Record_")

	other := TypeName("TVPAutoCreator_", "x"+long)
	assert.NotEqual(t, name, other)
}

func TestRegistryLookupMemoises(t *testing.T) {
	r := NewRegistry("TVPAutoCreator_", DefaultTextLength)

	first, err := r.Lookup(reflect.TypeOf(Widget{}))
	require.NoError(t, err)
	second, err := r.Lookup(reflect.TypeOf(&Widget{}))
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, TypeName("TVPAutoCreator_", first.Record.Name), first.TypeName)
}

func TestRegistryConcurrentLookup(t *testing.T) {
	r := NewRegistry("p_", 0)
	var wg sync.WaitGroup
	results := make([]*RecordSchema, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rs, err := r.Lookup(reflect.TypeOf(Widget{}))
			assert.NoError(t, err)
			results[i] = rs
		}(i)
	}
	wg.Wait()
	for _, rs := range results {
		assert.Equal(t, results[0].TypeName, rs.TypeName)
	}
}

func localRecordA() reflect.Type {
	type Row struct{ ID int64 }
	return reflect.TypeOf(Row{})
}

func localRecordB() reflect.Type {
	type Row struct{ Name string }
	return reflect.TypeOf(Row{})
}

func TestRegistryCollision(t *testing.T) {
	a, b := localRecordA(), localRecordB()
	require.NotEqual(t, a, b)
	require.Equal(t, Identity(a), Identity(b))

	r := NewRegistry("p_", 0)
	_, err := r.Lookup(a)
	require.NoError(t, err)

	_, err = r.Lookup(b)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNamingCollision))

	var collision *NamingCollisionError
	require.ErrorAs(t, err, &collision)
	assert.Equal(t, TypeName("p_", Identity(a)), collision.TypeName)
}

func TestRegistryDeclared(t *testing.T) {
	r := NewRegistry("p_", 0)
	desc, err := Declare("billing.Invoice", []FieldDescriptor{{Name: "ID", Kind: KindInt64}})
	require.NoError(t, err)

	rs, err := r.Declared(desc)
	require.NoError(t, err)
	assert.Equal(t, TypeName("p_", "billing.Invoice"), rs.TypeName)

	again, err := r.Declared(desc)
	require.NoError(t, err)
	assert.Same(t, rs, again)

	same, err := Declare("billing.Invoice", []FieldDescriptor{{Name: "ID", Kind: KindInt64}})
	require.NoError(t, err)
	viaCopy, err := r.Declared(same)
	require.NoError(t, err)
	assert.Same(t, rs, viaCopy)

	goDesc, err := Describe(reflect.TypeOf(Widget{}))
	require.NoError(t, err)
	viaGo, err := r.Declared(goDesc)
	require.NoError(t, err)
	viaLookup, err := r.Lookup(reflect.TypeOf(Widget{}))
	require.NoError(t, err)
	assert.Same(t, viaLookup, viaGo)
}

func TestRegistryDeclaredCollidesWithGoType(t *testing.T) {
	r := NewRegistry("p_", 0)
	rs, err := r.Lookup(reflect.TypeOf(Widget{}))
	require.NoError(t, err)

	desc, err := Declare(rs.Record.Name, []FieldDescriptor{{Name: "ID", Kind: KindInt64}})
	require.NoError(t, err)
	_, err = r.Declared(desc)
	assert.ErrorIs(t, err, ErrNamingCollision)
}

func TestRegistryDeclaredRedeclaration(t *testing.T) {
	r := NewRegistry("p_", 0)
	_, err := r.Declared(mustDeclare(t, "shop.Line", FieldDescriptor{Name: "A", Kind: KindInt32}))
	require.NoError(t, err)

	tests := []struct {
		name   string
		fields []FieldDescriptor
	}{
		{"extra column", []FieldDescriptor{{Name: "A", Kind: KindInt32}, {Name: "B", Kind: KindString}}},
		{"other type", []FieldDescriptor{{Name: "A", Kind: KindInt64}}},
		{"nullability", []FieldDescriptor{{Name: "A", Kind: KindInt32, Nullable: true}}},
		{"renamed", []FieldDescriptor{{Name: "Z", Kind: KindInt32}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Declared(mustDeclare(t, "shop.Line", tc.fields...))
			var collision *NamingCollisionError
			require.ErrorAs(t, err, &collision)
			assert.Equal(t, TypeName("p_", "shop.Line"), collision.TypeName)
			assert.Contains(t, collision.Existing, "A int")
		})
	}

	ignored := mustDeclare(t, "shop.Line",
		FieldDescriptor{Name: "A", Kind: KindInt32},
		FieldDescriptor{Name: "Note", Kind: KindString, Ignore: true})
	_, err = r.Declared(ignored)
	assert.NoError(t, err)
}

func mustDeclare(t *testing.T, name string, fields ...FieldDescriptor) *RecordDescriptor {
	t.Helper()
	desc, err := Declare(name, fields)
	require.NoError(t, err)
	return desc
}
