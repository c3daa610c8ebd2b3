package anthropicadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"trip-agent/internal/llmtypes"
	"trip-agent/internal/utils"
)

const (
	defaultMaxTokens = 4096
	jsonInstruction  = "You must respond with valid JSON only, no other text. Return a JSON object."
)

// AnthropicAdapter implements llmtypes.Model using the Anthropic SDK.
type AnthropicAdapter struct {
	client  anthropic.Client
	modelID string
	logger  utils.ExtendedLogger
}

// NewAnthropicAdapter creates a new adapter instance
func NewAnthropicAdapter(client anthropic.Client, modelID string, logger utils.ExtendedLogger) *AnthropicAdapter {
	return &AnthropicAdapter{
		client:  client,
		modelID: modelID,
		logger:  logger,
	}
}

// GenerateContent implements the llmtypes.Model interface
func (a *AnthropicAdapter) GenerateContent(ctx context.Context, messages []llmtypes.MessageContent, options ...llmtypes.CallOption) (*llmtypes.ContentResponse, error) {
	opts := llmtypes.ResolveOptions(options...)

	modelID := a.modelID
	if opts.Model != "" {
		modelID = opts.Model
	}

	converted, system := convertMessages(messages)
	if opts.JSONMode {
		// No native JSON mode; ask for it in the system prompt.
		if system != "" {
			system += "\n\n" + jsonInstruction
		} else {
			system = jsonInstruction
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		Messages:  converted,
		MaxTokens: defaultMaxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = int64(opts.MaxTokens)
	}
	if len(opts.Tools) > 0 {
		params.Tools = convertTools(opts.Tools)
		if opts.ToolChoice != nil {
			params.ToolChoice = convertToolChoice(opts.ToolChoice)
		}
	}

	if a.logger != nil {
		a.logger.Debugf("🤖 [anthropic] request model=%s messages=%d tools=%d json=%v", modelID, len(messages), len(opts.Tools), opts.JSONMode)
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		if a.logger != nil {
			a.logger.Errorf("❌ [anthropic] generate content failed model=%s: %v", modelID, err)
		}
		return nil, classify(fmt.Errorf("anthropic generate content: %w", err))
	}

	return convertResponse(msg), nil
}

// classify turns HTTP 429 (and 529 overloaded) into llmtypes.RateLimitError.
func classify(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.StatusCode == 529 {
		return llmtypes.NewRateLimitError("anthropic", apiErr.StatusCode, err)
	}
	return llmtypes.ClassifyStatus("anthropic", apiErr.StatusCode, err)
}

// convertMessages returns the message list and the joined system prompt.
// Consecutive tool results are folded into a single user turn.
func convertMessages(messages []llmtypes.MessageContent) ([]anthropic.MessageParam, string) {
	out := make([]anthropic.MessageParam, 0, len(messages))
	var system []string

	for _, msg := range messages {
		var texts []string
		var toolCalls []llmtypes.ToolCall
		var responses []llmtypes.ToolCallResponse

		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llmtypes.TextContent:
				texts = append(texts, p.Text)
			case llmtypes.ToolCall:
				toolCalls = append(toolCalls, p)
			case llmtypes.ToolCallResponse:
				responses = append(responses, p)
			}
		}
		content := strings.Join(texts, "\n")

		switch msg.Role {
		case llmtypes.ChatMessageTypeSystem:
			if content != "" {
				system = append(system, content)
			}
		case llmtypes.ChatMessageTypeAI:
			blocks := []anthropic.ContentBlockParamUnion{}
			if content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(content))
			}
			for _, tc := range toolCalls {
				if tc.FunctionCall == nil {
					continue
				}
				args := map[string]interface{}{}
				if tc.FunctionCall.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &args); err != nil {
						args = map[string]interface{}{}
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, args, tc.FunctionCall.Name))
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(""))
			}
			out = append(out, anthropic.MessageParam{Role: anthropic.MessageParamRoleAssistant, Content: blocks})
		case llmtypes.ChatMessageTypeTool:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(responses))
			for _, r := range responses {
				blocks = append(blocks, anthropic.NewToolResultBlock(r.ToolCallID, r.Content, false))
			}
			if len(blocks) == 0 {
				continue
			}
			if n := len(out); n > 0 && out[n-1].Role == anthropic.MessageParamRoleUser && isToolResultTurn(out[n-1]) {
				out[n-1].Content = append(out[n-1].Content, blocks...)
				continue
			}
			out = append(out, anthropic.MessageParam{Role: anthropic.MessageParamRoleUser, Content: blocks})
		default:
			out = append(out, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(content)},
			})
		}
	}

	return out, strings.Join(system, "\n\n")
}

func isToolResultTurn(m anthropic.MessageParam) bool {
	for _, block := range m.Content {
		if block.OfToolResult == nil {
			return false
		}
	}
	return len(m.Content) > 0
}

func convertTools(tools []llmtypes.Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		if tool.Function == nil {
			continue
		}
		schema := schemaMap(tool.Function.Parameters)

		var required []string
		if req, ok := schema["required"].([]interface{}); ok {
			for _, r := range req {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
		} else if req, ok := schema["required"].([]string); ok {
			required = req
		}
		properties, _ := schema["properties"].(map[string]interface{})
		if properties == nil {
			properties = map[string]interface{}{}
		}

		t := anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
			Properties: properties,
			Required:   required,
		}, tool.Function.Name)
		if tool.Function.Description != "" && t.OfTool != nil {
			t.OfTool.Description = anthropic.String(tool.Function.Description)
		}
		out = append(out, t)
	}
	return out
}

func schemaMap(parameters interface{}) map[string]interface{} {
	if m, ok := parameters.(map[string]interface{}); ok {
		return m
	}
	if parameters == nil {
		return map[string]interface{}{}
	}
	raw, err := json.Marshal(parameters)
	if err != nil {
		return map[string]interface{}{}
	}
	m := map[string]interface{}{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]interface{}{}
	}
	return m
}

func convertToolChoice(choice *llmtypes.ToolChoice) anthropic.ToolChoiceUnionParam {
	if choice.Function != nil && choice.Function.Name != "" {
		return anthropic.ToolChoiceParamOfTool(choice.Function.Name)
	}
	switch choice.Type {
	case "none":
		return anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	case "required":
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}
}

func convertResponse(msg *anthropic.Message) *llmtypes.ContentResponse {
	if msg == nil {
		return &llmtypes.ContentResponse{}
	}

	choice := &llmtypes.ContentChoice{StopReason: string(msg.StopReason)}
	var texts []string
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				texts = append(texts, block.Text)
			}
		case "tool_use":
			args := string(block.Input)
			if args == "" {
				args = "{}"
			}
			choice.ToolCalls = append(choice.ToolCalls, llmtypes.ToolCall{
				ID:           block.ID,
				Type:         "function",
				FunctionCall: &llmtypes.FunctionCall{Name: block.Name, Arguments: args},
			})
		}
	}
	choice.Content = strings.Join(texts, "\n")
	choice.GenerationInfo = map[string]interface{}{
		"input_tokens":  int(msg.Usage.InputTokens),
		"output_tokens": int(msg.Usage.OutputTokens),
		"total_tokens":  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}

	return &llmtypes.ContentResponse{Choices: []*llmtypes.ContentChoice{choice}}
}
