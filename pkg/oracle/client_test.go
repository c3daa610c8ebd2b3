package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-agent/internal/llmtypes"
	"trip-agent/internal/llmtypes/llmtest"
	"trip-agent/pkg/logger"
)

type decision struct {
	SelectedWorker string `json:"selected_worker" jsonschema:"required"`
	Reason         string `json:"reason"`
}

func newTestClient(model llmtypes.Model, maxRetries int) *Client {
	return NewClient(model, logger.CreateTestLogger(), WithPolicy(RetryPolicy{MaxRetries: maxRetries}))
}

func TestClient_GenerateRetriesEmptyResponse(t *testing.T) {
	model := llmtest.NewScripted(llmtest.Empty(), llmtest.Text("hello"))
	c := newTestClient(model, 1)

	choice, err := c.Generate(context.Background(), "test", []llmtypes.MessageContent{
		llmtypes.TextPart(llmtypes.ChatMessageTypeHuman, "hi"),
	})

	require.NoError(t, err)
	assert.Equal(t, "hello", choice.Content)
	assert.Len(t, model.Calls(), 2)
}

func TestClient_GenerateTextUnavailable(t *testing.T) {
	model := llmtest.NewScripted(llmtest.Fail(errors.New("down")), llmtest.Fail(errors.New("down")))
	c := newTestClient(model, 1)

	_, err := c.GenerateText(context.Background(), "test", "hi")

	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}

func TestClient_GenerateStructured(t *testing.T) {
	model := llmtest.NewScripted(
		llmtest.Text("sorry, not json"),
		llmtest.Text("Sure:\n```json\n{\"selected_worker\": \"hotel\", \"reason\": \"rooms\"}\n```"),
	)
	c := newTestClient(model, 1)

	var out decision
	err := c.GenerateStructuredPrompt(context.Background(), "dispatch", "pick a worker", &out)

	require.NoError(t, err)
	assert.Equal(t, decision{SelectedWorker: "hotel", Reason: "rooms"}, out)

	calls := model.Calls()
	require.Len(t, calls, 2)
	assert.True(t, calls[0].Options.JSONMode)
	assert.Contains(t, calls[0].Prompt(), "selected_worker", "schema appended to prompt")
	assert.Equal(t, llmtypes.ChatMessageTypeSystem, calls[0].Messages[0].Role)
}

func TestClient_GenerateStructuredMalformedIsFailure(t *testing.T) {
	model := llmtest.NewScripted(llmtest.Text("nope"), llmtest.Text("still nope"))
	c := newTestClient(model, 1)

	out := decision{SelectedWorker: "untouched"}
	err := c.GenerateStructuredPrompt(context.Background(), "dispatch", "pick", &out)

	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.True(t, IsMalformed(err))
	assert.Equal(t, "untouched", out.SelectedWorker)
}

func TestClient_MalformedErrorShowsExtractedObject(t *testing.T) {
	model := llmtest.NewScripted(llmtest.Text("Sure! ```json\n{\"selected_worker\": 3}\n``` hope that helps"))
	c := newTestClient(model, 0)

	var out decision
	err := c.GenerateStructuredPrompt(context.Background(), "dispatch", "pick", &out)

	require.Error(t, err)
	var malformed *MalformedOutputError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, `{"selected_worker": 3}`, malformed.Content)
}

func TestClient_GenerateStructuredRejectsNonPointer(t *testing.T) {
	c := newTestClient(llmtest.NewScripted(), 0)
	err := c.GenerateStructuredPrompt(context.Background(), "x", "y", decision{})
	assert.Error(t, err)
}

func TestClient_PassesFallbackModel(t *testing.T) {
	rl := llmtypes.NewRateLimitError("test", 429, nil)
	model := llmtest.NewScripted(llmtest.Fail(rl), llmtest.Fail(rl), llmtest.Text("ok"))
	c := NewClient(model, logger.CreateTestLogger(), WithPolicy(RetryPolicy{
		MaxRetries:     2,
		Model:          "main",
		FallbackModels: []string{"spare"},
	}))

	text, err := c.GenerateText(context.Background(), "test", "hi")

	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	calls := model.Calls()
	assert.Equal(t, "main", calls[0].Options.Model)
	assert.Equal(t, "main", calls[1].Options.Model)
	assert.Equal(t, "spare", calls[2].Options.Model)
}
