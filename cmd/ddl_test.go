package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoogleCloudPlatform/db-tvp-autocreate/internal/tvp"
)

func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestDDLCommand(t *testing.T) {
	dir := t.TempDir()
	typesFile := filepath.Join(dir, "types.yaml")
	outFile := filepath.Join(dir, "out.sql")
	require.NoError(t, os.WriteFile(typesFile, []byte(sampleTypes), 0o600))

	require.NoError(t, runCLI(t, "ddl", "--types", typesFile, "--out_file", outFile, "--grant-to", "app_user", "--schema", "udtts"))

	content, err := os.ReadFile(outFile)
	require.NoError(t, err)
	sql := string(content)

	assert.True(t, strings.HasPrefix(sql, "if schema_id('udtts') is null exec('create schema udtts');\nGO\n"))
	assert.Contains(t, sql, "GRANT EXECUTE ON SCHEMA :: udtts TO [app_user];")

	lineType := tvp.TypeName("TVPAutoCreator_", "shop.OrderLine")
	assert.Contains(t, sql, "create type udtts."+lineType+" as table (\nOrderID bigint, Comment NVarChar(max), Price decimal(28,5)\n);")
	assert.Contains(t, sql, "create type udtts."+tvp.TypeName("TVPAutoCreator_", "shop.Tag")+" as table (")
	assert.Equal(t, 6, strings.Count(sql, "\nGO\n"))
}

func TestDDLCommandRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	typesFile := filepath.Join(dir, "types.yaml")
	require.NoError(t, os.WriteFile(typesFile, []byte("types:\n  - name: a.B\n    fields: [{name: Blob, type: bytes}]\n"), 0o600))

	err := runCLI(t, "ddl", "--types", typesFile, "--out_file", filepath.Join(dir, "out.sql"))
	assert.ErrorIs(t, err, tvp.ErrUnsupportedColumnType)

	err = runCLI(t, "ddl", "--types", typesFile, "--schema", "bad schema")
	assert.ErrorContains(t, err, "invalid tvp schema")
}

func TestEnsureDryRun(t *testing.T) {
	dir := t.TempDir()
	typesFile := filepath.Join(dir, "types.yaml")
	outFile := filepath.Join(dir, "ensure.sql")
	require.NoError(t, os.WriteFile(typesFile, []byte(sampleTypes), 0o600))

	require.NoError(t, runCLI(t, "ensure", "--types", typesFile, "--out_file", outFile, "--schema", "udtts", "--dry-run=true"))
	_, err := os.Stat(outFile)
	assert.NoError(t, err)
}

func TestDDLCommandQuotesPrincipal(t *testing.T) {
	dir := t.TempDir()
	typesFile := filepath.Join(dir, "types.yaml")
	outFile := filepath.Join(dir, "out.sql")
	require.NoError(t, os.WriteFile(typesFile, []byte(sampleTypes), 0o600))

	require.NoError(t, runCLI(t, "ddl", "--types", typesFile, "--out_file", outFile, "--grant-to", "odd]role", "--schema", "udtts"))
	content, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "GRANT ALTER ON SCHEMA :: udtts TO [odd]]role];")
}

func TestCommandsRejectDialectWithoutTableTypes(t *testing.T) {
	t.Cleanup(func() {
		_ = rootCmd.PersistentFlags().Set("dialect", "sqlserver")
	})
	dir := t.TempDir()
	typesFile := filepath.Join(dir, "types.yaml")
	outFile := filepath.Join(dir, "out.sql")
	require.NoError(t, os.WriteFile(typesFile, []byte(sampleTypes), 0o600))

	tests := []struct {
		command string
		dialect string
	}{
		{"ddl", "postgres"},
		{"ensure", "mysql"},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			err := runCLI(t, tt.command, "--types", typesFile, "--out_file", outFile, "--dialect", tt.dialect, "--schema", "udtts")
			assert.ErrorIs(t, err, tvp.ErrUnsupportedTarget)
			_, statErr := os.Stat(outFile)
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}
