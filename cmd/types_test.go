package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoogleCloudPlatform/db-tvp-autocreate/internal/tvp"
)

const sampleTypes = `
types:
  - name: shop.OrderLine
    fields:
      - {name: OrderID, type: int64}
      - {name: Comment, type: "*string"}
      - {name: Price, type: decimal, nullable: true}
      - {name: Internal, type: string, ignore: true}
  - name: shop.Tag
    fields:
      - {name: Value, type: string}
`

func TestParseTypeDefinitions(t *testing.T) {
	records, err := parseTypeDefinitions([]byte(sampleTypes))
	require.NoError(t, err)
	require.Len(t, records, 2)

	line := records[0]
	assert.Equal(t, "shop.OrderLine", line.Name)
	require.Len(t, line.Fields, 4)
	assert.Equal(t, tvp.KindInt64, line.Fields[0].Kind)
	assert.Equal(t, tvp.KindString, line.Fields[1].Kind)
	assert.True(t, line.Fields[1].Nullable)
	assert.True(t, line.Fields[2].Nullable)
	assert.True(t, line.Fields[3].Ignore)

	columns, err := tvp.DeriveColumns(line)
	require.NoError(t, err)
	assert.Len(t, columns, 3)
}

func TestParseTypeDefinitionsErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"not yaml", "types: [", "failed to parse"},
		{"empty", "types: []", "no types defined"},
		{"missing name", "types:\n  - fields: [{name: A, type: int}]", "needs a name"},
		{"duplicate field", "types:\n  - name: a.B\n    fields: [{name: A, type: int}, {name: A, type: int}]", "duplicate field"},
		{"duplicate type", "types:\n  - name: a.B\n    fields: [{name: A, type: int}]\n  - name: \" a.B\"\n    fields: [{name: A, type: int}, {name: C, type: string}]", "type a.B is defined more than once"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseTypeDefinitions([]byte(tt.content))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadTypeDefinitions(t *testing.T) {
	_, err := loadTypeDefinitions("")
	assert.ErrorContains(t, err, "--types is required")

	path := filepath.Join(t.TempDir(), "types.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTypes), 0o600))
	records, err := loadTypeDefinitions(path)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
