// Package history holds the serializable conversation log of a session and
// the compactor that keeps it bounded.
package history

import (
	"time"

	"trip-agent/internal/llmtypes"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCallRef records a capability request made by an assistant turn.
type ToolCallRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

// Message is one turn of the conversation. Tool turns keep the id and name
// of the call they answer so that the log survives persistence intact.
type Message struct {
	Role       Role          `json:"role"`
	Content    string        `json:"content"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	ToolName   string        `json:"tool_name,omitempty"`
	ToolCalls  []ToolCallRef `json:"tool_calls,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

func Human(content string) Message {
	return Message{Role: RoleHuman, Content: content, Timestamp: time.Now()}
}

func Assistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content, Timestamp: time.Now()}
}

func System(content string) Message {
	return Message{Role: RoleSystem, Content: content, Timestamp: time.Now()}
}

// ToolResult builds the tool turn answering callID.
func ToolResult(callID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID, ToolName: name, Timestamp: time.Now()}
}

// FromChoice converts a model choice into an assistant turn, keeping its
// tool calls.
func FromChoice(choice *llmtypes.ContentChoice) Message {
	m := Assistant("")
	if choice == nil {
		return m
	}
	m.Content = choice.Content
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		m.ToolCalls = append(m.ToolCalls, ToolCallRef{ID: tc.ID, Name: tc.FunctionCall.Name, Arguments: tc.FunctionCall.Arguments})
	}
	return m
}

func (m Message) IsTool() bool {
	return m.Role == RoleTool
}

// ToLLM converts the log into model messages.
func ToLLM(messages []Message) []llmtypes.MessageContent {
	out := make([]llmtypes.MessageContent, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ToLLM())
	}
	return out
}

func (m Message) ToLLM() llmtypes.MessageContent {
	switch m.Role {
	case RoleTool:
		return llmtypes.ToolResultMessage(m.ToolCallID, m.ToolName, m.Content)
	case RoleAssistant:
		msg := llmtypes.MessageContent{Role: llmtypes.ChatMessageTypeAI}
		if m.Content != "" {
			msg.Parts = append(msg.Parts, llmtypes.TextContent{Text: m.Content})
		}
		for _, tc := range m.ToolCalls {
			msg.Parts = append(msg.Parts, llmtypes.ToolCall{
				ID:           tc.ID,
				Type:         "function",
				FunctionCall: &llmtypes.FunctionCall{Name: tc.Name, Arguments: tc.Arguments},
			})
		}
		return msg
	case RoleSystem:
		return llmtypes.TextPart(llmtypes.ChatMessageTypeSystem, m.Content)
	default:
		return llmtypes.TextPart(llmtypes.ChatMessageTypeHuman, m.Content)
	}
}

// ToolTurns returns only the tool turns, in order.
func ToolTurns(messages []Message) []Message {
	var out []Message
	for _, m := range messages {
		if m.IsTool() {
			out = append(out, m)
		}
	}
	return out
}
