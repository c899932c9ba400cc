package tvp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCreateOrReplace(t *testing.T) {
	desc, err := Declare("shop.Line", []FieldDescriptor{
		{Name: "ID", Kind: KindInt64},
		{Name: "Sku", Kind: KindString, Nullable: true},
		{Name: "Price", Kind: KindDecimal},
	})
	require.NoError(t, err)
	columns, err := DeriveColumns(desc)
	require.NoError(t, err)

	got := GenerateCreateOrReplace("udtts", "TVPAutoCreator_shop_Line", columns)
	want := "if exists (select 1 from sys.types t (nolock) join sys.schemas s (nolock) on s.schema_id = t.schema_id where t.name = 'TVPAutoCreator_shop_Line' and s.name = 'udtts')\n" +
		"begin\n" +
		"drop type udtts.TVPAutoCreator_shop_Line;\n" +
		"end\n" +
		"create type udtts.TVPAutoCreator_shop_Line as table (\n" +
		"ID bigint, Sku NVarChar(max), Price decimal(28,5)\n" +
		");\n"
	assert.Equal(t, want, got)
}

func TestGenerateCreateOrReplaceDeterministic(t *testing.T) {
	desc, err := Declare("shop.Flag", []FieldDescriptor{{Name: "On", Kind: KindBool}})
	require.NoError(t, err)
	columns, err := DeriveColumns(desc)
	require.NoError(t, err)

	assert.Equal(t,
		GenerateCreateOrReplace("udtts", "T", columns),
		GenerateCreateOrReplace("udtts", "T", columns))
}

func TestGenerateSchemaBootstrap(t *testing.T) {
	stmts := GenerateSchemaBootstrap("udtts", "", nil)
	assert.Equal(t, []string{"if schema_id('udtts') is null exec('create schema udtts');"}, stmts)

	stmts = GenerateSchemaBootstrap("udtts", "app]user", nil)
	require.Len(t, stmts, 4)
	assert.Equal(t, "EXEC sp_addrolemember N'db_ddladmin', N'app]user';", stmts[1])
	assert.Equal(t, "GRANT ALTER ON SCHEMA :: udtts TO [app]]user];", stmts[2])
	assert.Equal(t, "GRANT EXECUTE ON SCHEMA :: udtts TO [app]]user];", stmts[3])

	var quoted []string
	stmts = GenerateSchemaBootstrap("udtts", "ops", func(name string) string {
		quoted = append(quoted, name)
		return `"` + name + `"`
	})
	assert.Equal(t, []string{"ops"}, quoted)
	assert.Equal(t, `GRANT ALTER ON SCHEMA :: udtts TO "ops";`, stmts[2])
}
