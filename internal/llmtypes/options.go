package llmtypes

// WithModel sets the model ID
func WithModel(model string) CallOption {
	return func(opts *CallOptions) {
		opts.Model = model
	}
}

// WithTemperature sets the temperature
func WithTemperature(temperature float64) CallOption {
	return func(opts *CallOptions) {
		opts.Temperature = temperature
	}
}

// WithMaxTokens sets the maximum tokens
func WithMaxTokens(maxTokens int) CallOption {
	return func(opts *CallOptions) {
		opts.MaxTokens = maxTokens
	}
}

// WithJSONMode enables JSON mode
func WithJSONMode() CallOption {
	return func(opts *CallOptions) {
		opts.JSONMode = true
	}
}

// WithTools sets the tools available for the LLM
func WithTools(tools []Tool) CallOption {
	return func(opts *CallOptions) {
		opts.Tools = tools
	}
}

// WithToolChoiceString creates a ToolChoice from "auto", "none" or "required".
func WithToolChoiceString(choiceType string) CallOption {
	return func(opts *CallOptions) {
		opts.ToolChoice = &ToolChoice{Type: choiceType}
	}
}

// TextPart creates a single text part message content
func TextPart(role ChatMessageType, text string) MessageContent {
	return MessageContent{
		Role:  role,
		Parts: []ContentPart{TextContent{Text: text}},
	}
}

// TextParts creates a message content with multiple text parts
func TextParts(role ChatMessageType, texts ...string) MessageContent {
	parts := make([]ContentPart, len(texts))
	for i, text := range texts {
		parts[i] = TextContent{Text: text}
	}
	return MessageContent{
		Role:  role,
		Parts: parts,
	}
}

// AssistantMessage rebuilds the assistant turn for a choice, including its
// tool calls, so that the follow-up tool turns have a parent to refer to.
func AssistantMessage(choice *ContentChoice) MessageContent {
	msg := MessageContent{Role: ChatMessageTypeAI}
	if choice == nil {
		return msg
	}
	if choice.Content != "" {
		msg.Parts = append(msg.Parts, TextContent{Text: choice.Content})
	}
	for _, tc := range choice.ToolCalls {
		msg.Parts = append(msg.Parts, tc)
	}
	return msg
}

// ToolResultMessage builds the tool turn answering callID.
func ToolResultMessage(callID, name, content string) MessageContent {
	return MessageContent{
		Role: ChatMessageTypeTool,
		Parts: []ContentPart{ToolCallResponse{
			ToolCallID: callID,
			Name:       name,
			Content:    content,
		}},
	}
}
