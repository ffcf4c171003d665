package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCatalog_RejectsDuplicates(t *testing.T) {
	_, err := NewCatalog([]Tool{DefaultTools[0], DefaultTools[0]})
	assert.Error(t, err)
}

func TestCatalog_Prepare(t *testing.T) {
	c := MustDefaultCatalog()

	tests := []struct {
		name    string
		tool    string
		args    map[string]any
		want    map[string]any
		wantErr string
	}{
		{
			name: "no arguments",
			tool: ToolListDocuments,
			args: nil,
			want: map[string]any{},
		},
		{
			name: "numeric string coerced",
			tool: ToolSearchDocuments,
			args: map[string]any{"query": "q", "limit": " 5 ", "skip": float64(1)},
			want: map[string]any{"query": "q", "limit": float64(5), "skip": float64(1)},
		},
		{
			name: "null treated as absent",
			tool: ToolUpdateDocument,
			args: map[string]any{"ddocId": "d", "title": nil},
			want: map[string]any{"ddocId": "d"},
		},
		{
			name:    "missing required",
			tool:    ToolCreateDocument,
			args:    map[string]any{"title": "t"},
			wantErr: "content",
		},
		{
			name:    "string expected",
			tool:    ToolGetDocument,
			args:    map[string]any{"ddocId": float64(12)},
			wantErr: "ddocId",
		},
		{
			name:    "unknown tool",
			tool:    "nope",
			wantErr: "unknown tool",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Prepare(tt.tool, tt.args)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCatalog_Summary(t *testing.T) {
	s := MustDefaultCatalog().Summary()
	assert.Contains(t, s, "fileverse_get_document\n")
	assert.Contains(t, s, "  - ddocId (string, required): The unique document identifier\n")
	assert.Contains(t, s, "  - limit (number): Maximum number of documents to return\n")
}
