package anthropicadapter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-agent/internal/llmtypes"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *AnthropicAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := anthropic.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(srv.URL),
		option.WithMaxRetries(0),
	)
	return NewAnthropicAdapter(client, "claude-test", nil)
}

func TestGenerateContentTextAndToolUse(t *testing.T) {
	var captured map[string]interface{}
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [
				{"type": "text", "text": "checking hotels"},
				{"type": "tool_use", "id": "toolu_1", "name": "hotel_search", "input": {"city": "Hangzhou"}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 7, "output_tokens": 3}
		}`)
	})

	resp, err := adapter.GenerateContent(context.Background(),
		[]llmtypes.MessageContent{
			llmtypes.TextPart(llmtypes.ChatMessageTypeSystem, "you plan trips"),
			llmtypes.TextPart(llmtypes.ChatMessageTypeHuman, "find a hotel"),
		},
		llmtypes.WithJSONMode(),
	)
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)

	choice := resp.Choices[0]
	assert.Equal(t, "checking hotels", choice.Content)
	assert.Equal(t, "tool_use", choice.StopReason)
	require.Len(t, choice.ToolCalls, 1)
	assert.Equal(t, "hotel_search", choice.ToolCalls[0].FunctionCall.Name)
	assert.JSONEq(t, `{"city":"Hangzhou"}`, choice.ToolCalls[0].FunctionCall.Arguments)
	assert.Equal(t, 10, choice.GenerationInfo["total_tokens"])

	system, ok := captured["system"].([]interface{})
	require.True(t, ok)
	require.Len(t, system, 1)
	assert.Contains(t, system[0].(map[string]interface{})["text"], "valid JSON")
	assert.Len(t, captured["messages"], 1)
}

func TestGenerateContentClassifiesRateLimit(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, 529} {
		adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
		})
		_, err := adapter.GenerateContent(context.Background(),
			[]llmtypes.MessageContent{llmtypes.TextPart(llmtypes.ChatMessageTypeHuman, "hi")})
		require.Error(t, err)
		assert.True(t, llmtypes.IsRateLimit(err), "status %d", status)
	}
}

func TestConvertMessagesFoldsToolResults(t *testing.T) {
	choice := &llmtypes.ContentChoice{ToolCalls: []llmtypes.ToolCall{
		{ID: "a", FunctionCall: &llmtypes.FunctionCall{Name: "weather", Arguments: `{}`}},
		{ID: "b", FunctionCall: &llmtypes.FunctionCall{Name: "map", Arguments: `not json`}},
	}}
	msgs, system := convertMessages([]llmtypes.MessageContent{
		llmtypes.TextPart(llmtypes.ChatMessageTypeSystem, "sys one"),
		llmtypes.TextPart(llmtypes.ChatMessageTypeHuman, "plan"),
		llmtypes.AssistantMessage(choice),
		llmtypes.ToolResultMessage("a", "weather", "sunny"),
		llmtypes.ToolResultMessage("b", "map", "3km"),
	})

	assert.Equal(t, "sys one", system)
	require.Len(t, msgs, 3)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, msgs[1].Role)
	assert.Len(t, msgs[1].Content, 2)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[2].Role)
	assert.Len(t, msgs[2].Content, 2)
}

func TestConvertToolsKeepsRequiredAndDescription(t *testing.T) {
	tools := convertTools([]llmtypes.Tool{{
		Type: "function",
		Function: &llmtypes.FunctionDefinition{
			Name:        "search_trains",
			Description: "train lookup",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"from": map[string]interface{}{"type": "string"}},
				"required":   []interface{}{"from"},
			},
		},
	}, {Type: "function"}})

	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "search_trains", tools[0].OfTool.Name)
	assert.Equal(t, []string{"from"}, tools[0].OfTool.InputSchema.Required)
	assert.Equal(t, "train lookup", tools[0].OfTool.Description.Value)
}
