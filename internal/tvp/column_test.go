package tvp

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapperColumns(t *testing.T) {
	desc, err := Describe(reflect.TypeOf(Widget{}))
	require.NoError(t, err)

	columns, err := DeriveColumns(desc)
	require.NoError(t, err)

	var got []string
	for _, c := range columns {
		got = append(got, c.Name+" "+c.SQL())
	}
	assert.Equal(t, []string{
		"ID bigint",
		"Name NVarChar(max)",
		"Price decimal(28,5)",
		"Weight float",
		"Status int",
		"Code uniqueidentifier",
		"Legacy uniqueidentifier",
		"Note NVarChar(max)",
		"Count int",
		"CreatedBy NVarChar(max)",
		"CreatedAt datetime",
	}, got)

	assert.Equal(t, DefaultTextLength, columns[1].Length)
	assert.True(t, columns[3].Nullable)
	assert.True(t, columns[4].Enum)
	assert.Equal(t, KindEnum, columns[4].Kind())
}

func TestMapperTypeTable(t *testing.T) {
	tests := []struct {
		kind HostKind
		sql  string
	}{
		{KindString, "NVarChar(max)"},
		{KindInt64, "bigint"},
		{KindUint32, "bigint"},
		{KindUint64, "decimal(28,0)"},
		{KindInt32, "int"},
		{KindUint16, "int"},
		{KindEnum, "int"},
		{KindInt16, "smallint"},
		{KindInt8, "tinyint"},
		{KindUint8, "tinyint"},
		{KindFloat64, "float"},
		{KindFloat32, "real"},
		{KindBool, "bit"},
		{KindDecimal, "decimal(28,5)"},
		{KindUUID, "uniqueidentifier"},
		{KindTime, "datetime"},
	}
	for _, tc := range tests {
		t.Run(tc.kind.String(), func(t *testing.T) {
			desc, err := Declare("x.R", []FieldDescriptor{{Name: "C", Kind: tc.kind}})
			require.NoError(t, err)
			columns, err := Mapper{}.Columns(desc)
			require.NoError(t, err)
			require.Len(t, columns, 1)
			assert.Equal(t, tc.sql, columns[0].SQL())
			assert.Zero(t, columns[0].Length)
		})
	}
}

func TestMapperUnsupported(t *testing.T) {
	desc, err := Describe(reflect.TypeOf(Unsupported{}))
	require.NoError(t, err)

	_, err = DeriveColumns(desc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedColumnType))

	var colErr *UnsupportedColumnTypeError
	require.ErrorAs(t, err, &colErr)
	assert.Equal(t, "Blob", colErr.Field)
	assert.Equal(t, "[]uint8", colErr.Type)
}

func TestMapperNoColumns(t *testing.T) {
	desc, err := Declare("x.Empty", []FieldDescriptor{{Name: "Skip", Kind: KindString, Ignore: true}})
	require.NoError(t, err)
	_, err = DeriveColumns(desc)
	assert.ErrorContains(t, err, "no columns")
}
