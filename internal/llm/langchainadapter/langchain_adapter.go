package langchainadapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"trip-agent/internal/llmtypes"
	"trip-agent/internal/utils"
)

// LangchainAdapter bridges any langchaingo llms.Model (Ollama in practice)
// to llmtypes.Model.
type LangchainAdapter struct {
	model    llms.Model
	provider string
	modelID  string
	logger   utils.ExtendedLogger
}

// NewLangchainAdapter wraps a langchaingo model.
func NewLangchainAdapter(model llms.Model, provider, modelID string, logger utils.ExtendedLogger) *LangchainAdapter {
	return &LangchainAdapter{model: model, provider: provider, modelID: modelID, logger: logger}
}

// GenerateContent implements the llmtypes.Model interface
func (l *LangchainAdapter) GenerateContent(ctx context.Context, messages []llmtypes.MessageContent, options ...llmtypes.CallOption) (*llmtypes.ContentResponse, error) {
	opts := llmtypes.ResolveOptions(options...)

	var callOpts []llms.CallOption
	if opts.Model != "" {
		callOpts = append(callOpts, llms.WithModel(opts.Model))
	}
	if opts.Temperature > 0 {
		callOpts = append(callOpts, llms.WithTemperature(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	if opts.JSONMode {
		callOpts = append(callOpts, llms.WithJSONMode())
	}
	if len(opts.Tools) > 0 {
		callOpts = append(callOpts, llms.WithTools(convertTools(opts.Tools)))
		if opts.ToolChoice != nil && opts.ToolChoice.Type != "" {
			callOpts = append(callOpts, llms.WithToolChoice(opts.ToolChoice.Type))
		}
	}

	if l.logger != nil {
		l.logger.Debugf("🤖 [%s] request model=%s messages=%d tools=%d", l.provider, l.modelID, len(messages), len(opts.Tools))
	}

	resp, err := l.model.GenerateContent(ctx, convertMessages(messages), callOpts...)
	if err != nil {
		if l.logger != nil {
			l.logger.Errorf("❌ [%s] generate content failed: %v", l.provider, err)
		}
		return nil, classify(l.provider, fmt.Errorf("%s generate content: %w", l.provider, err))
	}
	return convertResponse(resp), nil
}

// classify maps throttling responses to llmtypes.RateLimitError. langchaingo
// does not expose status codes for every backend, so the HTTP status text is
// the only signal available at this layer.
func classify(provider string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "too many requests") {
		return llmtypes.NewRateLimitError(provider, 429, err)
	}
	return err
}

func convertMessages(messages []llmtypes.MessageContent) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		converted := llms.MessageContent{Role: convertRole(msg.Role)}
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llmtypes.TextContent:
				converted.Parts = append(converted.Parts, llms.TextContent{Text: p.Text})
			case llmtypes.ToolCall:
				tc := llms.ToolCall{ID: p.ID, Type: "function"}
				if p.FunctionCall != nil {
					tc.FunctionCall = &llms.FunctionCall{Name: p.FunctionCall.Name, Arguments: p.FunctionCall.Arguments}
				}
				converted.Parts = append(converted.Parts, tc)
			case llmtypes.ToolCallResponse:
				converted.Parts = append(converted.Parts, llms.ToolCallResponse{
					ToolCallID: p.ToolCallID,
					Name:       p.Name,
					Content:    p.Content,
				})
			}
		}
		out = append(out, converted)
	}
	return out
}

func convertRole(role llmtypes.ChatMessageType) llms.ChatMessageType {
	switch role {
	case llmtypes.ChatMessageTypeSystem:
		return llms.ChatMessageTypeSystem
	case llmtypes.ChatMessageTypeAI:
		return llms.ChatMessageTypeAI
	case llmtypes.ChatMessageTypeTool:
		return llms.ChatMessageTypeTool
	default:
		return llms.ChatMessageTypeHuman
	}
}

func convertTools(tools []llmtypes.Tool) []llms.Tool {
	out := make([]llms.Tool, 0, len(tools))
	for _, t := range tools {
		if t.Function == nil {
			continue
		}
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		})
	}
	return out
}

func convertResponse(resp *llms.ContentResponse) *llmtypes.ContentResponse {
	if resp == nil {
		return &llmtypes.ContentResponse{}
	}
	out := &llmtypes.ContentResponse{Choices: make([]*llmtypes.ContentChoice, 0, len(resp.Choices))}
	for _, c := range resp.Choices {
		if c == nil {
			continue
		}
		choice := &llmtypes.ContentChoice{
			Content:        c.Content,
			StopReason:     c.StopReason,
			GenerationInfo: c.GenerationInfo,
		}
		if c.FuncCall != nil {
			choice.FuncCall = &llmtypes.FunctionCall{Name: c.FuncCall.Name, Arguments: c.FuncCall.Arguments}
		}
		for _, tc := range c.ToolCalls {
			converted := llmtypes.ToolCall{ID: tc.ID, Type: tc.Type}
			if tc.FunctionCall != nil {
				converted.FunctionCall = &llmtypes.FunctionCall{Name: tc.FunctionCall.Name, Arguments: tc.FunctionCall.Arguments}
			}
			choice.ToolCalls = append(choice.ToolCalls, converted)
		}
		out.Choices = append(out.Choices, choice)
	}
	return out
}
