package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-agent/internal/llmtypes"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		choice *llmtypes.ContentChoice
		want   []Call
	}{
		{"nil choice", nil, nil},
		{"text only", &llmtypes.ContentChoice{Content: "hi"}, nil},
		{"legacy call without name", &llmtypes.ContentChoice{FuncCall: &llmtypes.FunctionCall{Arguments: "{}"}}, nil},
		{
			name: "current encoding wins over legacy",
			choice: &llmtypes.ContentChoice{
				ToolCalls: []llmtypes.ToolCall{{ID: "c1", FunctionCall: &llmtypes.FunctionCall{Name: "a", Arguments: "{}"}}},
				FuncCall:  &llmtypes.FunctionCall{Name: "b"},
			},
			want: []Call{{ID: "c1", Name: "a", Args: "{}"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.choice))
		})
	}
}

func TestNormalize_LegacyEncoding(t *testing.T) {
	choice := &llmtypes.ContentChoice{FuncCall: &llmtypes.FunctionCall{Name: "b", Arguments: `{"x":1}`}}
	require.True(t, choice.RequestsTools())
	calls := Normalize(choice)
	require.Len(t, calls, 1)
	assert.Equal(t, "b", calls[0].Name)
	assert.Equal(t, `{"x":1}`, calls[0].Args)
	assert.Contains(t, calls[0].ID, "legacy_")
}

func TestNormalize_GeneratesMissingIDs(t *testing.T) {
	calls := Normalize(&llmtypes.ContentChoice{ToolCalls: []llmtypes.ToolCall{
		{FunctionCall: &llmtypes.FunctionCall{Name: "a"}},
		{FunctionCall: &llmtypes.FunctionCall{Name: "b"}},
	}})
	require.Len(t, calls, 2)
	assert.NotEmpty(t, calls[0].ID)
	assert.NotEqual(t, calls[0].ID, calls[1].ID)
}

func TestCatalog(t *testing.T) {
	c := NewCatalog(
		Capability{Name: "train_search", Description: "trains", Source: "12306-mcp"},
		Capability{Name: "web_search", Source: "local"},
	)
	c.Add(Capability{Name: "train_search", Description: "trains v2", Source: "12306-mcp"})

	assert.Equal(t, []string{"train_search", "web_search"}, c.Names())
	assert.Equal(t, []string{"train_search: trains v2", "web_search: no description"}, c.Describe())
	assert.Equal(t, []string{"12306-mcp", "local"}, c.Sources())

	tools := c.Tools()
	require.Len(t, tools, 2)
	assert.Equal(t, "train_search", tools[0].Function.Name)
	assert.NotNil(t, tools[1].Function.Parameters)

	merged := c.Without("web_search").Merge(NewCatalog(Capability{Name: "weather"}))
	assert.Equal(t, []string{"train_search", "weather"}, merged.Names())

	var empty *Catalog
	assert.Equal(t, 0, empty.Len())
	_, ok := empty.Get("x")
	assert.False(t, ok)
}
