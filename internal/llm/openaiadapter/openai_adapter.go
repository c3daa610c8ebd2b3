package openaiadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared"

	"trip-agent/internal/llmtypes"
	"trip-agent/internal/utils"
)

// OpenAIAdapter implements llmtypes.Model on top of the official OpenAI SDK.
// OpenRouter is served by the same adapter with a different base URL.
type OpenAIAdapter struct {
	client   *openai.Client
	modelID  string
	provider string
	logger   utils.ExtendedLogger
}

// NewOpenAIAdapter creates a new adapter instance
func NewOpenAIAdapter(client *openai.Client, provider, modelID string, logger utils.ExtendedLogger) *OpenAIAdapter {
	if provider == "" {
		provider = "openai"
	}
	return &OpenAIAdapter{
		client:   client,
		modelID:  modelID,
		provider: provider,
		logger:   logger,
	}
}

// GenerateContent implements the llmtypes.Model interface
func (o *OpenAIAdapter) GenerateContent(ctx context.Context, messages []llmtypes.MessageContent, options ...llmtypes.CallOption) (*llmtypes.ContentResponse, error) {
	opts := llmtypes.ResolveOptions(options...)

	modelID := o.modelID
	if opts.Model != "" {
		modelID = opts.Model
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(modelID),
		Messages: convertMessages(messages),
	}
	if opts.Temperature > 0 {
		params.Temperature = param.NewOpt(opts.Temperature)
	}
	// max_tokens is left to model defaults; newer models reject it.
	if opts.JSONMode {
		jsonObj := shared.NewResponseFormatJSONObjectParam()
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &jsonObj,
		}
	}
	if len(opts.Tools) > 0 {
		params.Tools = convertTools(opts.Tools)
		if choice := convertToolChoice(opts.ToolChoice); choice != nil {
			params.ToolChoice = *choice
		}
	}

	if o.logger != nil {
		o.logger.Debugf("🤖 [%s] request model=%s messages=%d tools=%d json=%v", o.provider, modelID, len(messages), len(opts.Tools), opts.JSONMode)
	}

	result, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if o.logger != nil {
			o.logger.Errorf("❌ [%s] generate content failed model=%s: %v", o.provider, modelID, err)
		}
		return nil, classify(o.provider, fmt.Errorf("%s generate content: %w", o.provider, err))
	}

	return convertResponse(result), nil
}

// classify turns HTTP 429 responses into llmtypes.RateLimitError.
func classify(provider string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return llmtypes.ClassifyStatus(provider, apiErr.StatusCode, err)
	}
	return err
}

func convertMessages(messages []llmtypes.MessageContent) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

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
			out = append(out, openai.SystemMessage(content))
		case llmtypes.ChatMessageTypeAI:
			if len(toolCalls) == 0 {
				out = append(out, openai.AssistantMessage(content))
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(toolCalls))
			for _, tc := range toolCalls {
				if tc.FunctionCall == nil {
					continue
				}
				calls = append(calls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.FunctionCall.Name,
							Arguments: tc.FunctionCall.Arguments,
						},
					},
				})
			}
			assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
			if content != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: param.NewOpt(content),
				}
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case llmtypes.ChatMessageTypeTool:
			for _, r := range responses {
				out = append(out, openai.ToolMessage(r.Content, r.ToolCallID))
			}
		default:
			out = append(out, openai.UserMessage(content))
		}
	}

	return out
}

func convertTools(tools []llmtypes.Tool) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		if tool.Function == nil {
			continue
		}
		out = append(out, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        tool.Function.Name,
			Description: param.NewOpt(tool.Function.Description),
			Parameters:  schemaMap(tool.Function.Parameters),
		}))
	}
	return out
}

// schemaMap coerces arbitrary parameter schemas into a JSON object map.
func schemaMap(parameters interface{}) map[string]interface{} {
	if parameters == nil {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	if m, ok := parameters.(map[string]interface{}); ok {
		return m
	}
	raw, err := json.Marshal(parameters)
	if err != nil {
		return map[string]interface{}{"type": "object"}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]interface{}{"type": "object"}
	}
	return m
}

func convertToolChoice(choice *llmtypes.ToolChoice) *openai.ChatCompletionToolChoiceOptionUnionParam {
	if choice == nil {
		return nil
	}
	if choice.Function != nil && choice.Function.Name != "" {
		result := openai.ToolChoiceOptionFunctionToolChoice(openai.ChatCompletionNamedToolChoiceFunctionParam{
			Name: choice.Function.Name,
		})
		return &result
	}
	mode := choice.Type
	switch mode {
	case "auto", "none", "required":
	default:
		mode = "auto"
	}
	return &openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt(mode)}
}

func convertResponse(result *openai.ChatCompletion) *llmtypes.ContentResponse {
	if result == nil {
		return &llmtypes.ContentResponse{}
	}

	choices := make([]*llmtypes.ContentChoice, 0, len(result.Choices))
	for _, c := range result.Choices {
		choice := &llmtypes.ContentChoice{
			Content:    c.Message.Content,
			StopReason: c.FinishReason,
			GenerationInfo: map[string]interface{}{
				"input_tokens":  int(result.Usage.PromptTokens),
				"output_tokens": int(result.Usage.CompletionTokens),
				"total_tokens":  int(result.Usage.TotalTokens),
			},
		}
		for _, tc := range c.Message.ToolCalls {
			choice.ToolCalls = append(choice.ToolCalls, llmtypes.ToolCall{
				ID:   tc.ID,
				Type: "function",
				FunctionCall: &llmtypes.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		choices = append(choices, choice)
	}

	return &llmtypes.ContentResponse{Choices: choices}
}
