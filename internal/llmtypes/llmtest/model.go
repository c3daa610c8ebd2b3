// Package llmtest provides deterministic llmtypes.Model fakes for tests.
package llmtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"trip-agent/internal/llmtypes"
)

// Call is one recorded GenerateContent invocation.
type Call struct {
	Messages []llmtypes.MessageContent
	Options  *llmtypes.CallOptions
}

// Prompt joins the text parts of every message in the call.
func (c Call) Prompt() string {
	return JoinText(c.Messages)
}

// Step is one scripted reply. A nil Response with nil Err yields a response
// with no choices.
type Step struct {
	Response *llmtypes.ContentResponse
	Err      error
}

// Text replies with plain assistant content.
func Text(content string) Step {
	return Step{Response: &llmtypes.ContentResponse{
		Choices: []*llmtypes.ContentChoice{{Content: content}},
	}}
}

// Tools replies with tool calls in the current encoding.
func Tools(calls ...llmtypes.ToolCall) Step {
	return Step{Response: &llmtypes.ContentResponse{
		Choices: []*llmtypes.ContentChoice{{ToolCalls: calls}},
	}}
}

// LegacyTool replies with a single legacy FuncCall.
func LegacyTool(name, args string) Step {
	return Step{Response: &llmtypes.ContentResponse{
		Choices: []*llmtypes.ContentChoice{{FuncCall: &llmtypes.FunctionCall{Name: name, Arguments: args}}},
	}}
}

// Fail replies with err.
func Fail(err error) Step {
	return Step{Err: err}
}

// Empty replies with a response that has no choices.
func Empty() Step {
	return Step{}
}

// ToolCall builds a function tool call.
func ToolCall(id, name, args string) llmtypes.ToolCall {
	return llmtypes.ToolCall{
		ID:           id,
		Type:         "function",
		FunctionCall: &llmtypes.FunctionCall{Name: name, Arguments: args},
	}
}

// ErrScriptExhausted is returned once a ScriptedModel runs out of steps.
var ErrScriptExhausted = errors.New("llmtest: script exhausted")

// ScriptedModel replays steps in order and records every call.
type ScriptedModel struct {
	mu    sync.Mutex
	steps []Step
	calls []Call
}

// NewScripted creates a model that replays steps in order.
func NewScripted(steps ...Step) *ScriptedModel {
	return &ScriptedModel{steps: steps}
}

func (m *ScriptedModel) GenerateContent(_ context.Context, messages []llmtypes.MessageContent, options ...llmtypes.CallOption) (*llmtypes.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Messages: messages, Options: llmtypes.ResolveOptions(options...)})
	if len(m.steps) == 0 {
		return nil, ErrScriptExhausted
	}
	step := m.steps[0]
	m.steps = m.steps[1:]
	if step.Err != nil {
		return nil, step.Err
	}
	if step.Response == nil {
		return &llmtypes.ContentResponse{}, nil
	}
	return step.Response, nil
}

// Calls returns a copy of the recorded calls.
func (m *ScriptedModel) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Remaining returns the number of unconsumed steps.
func (m *ScriptedModel) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.steps)
}

// Handler answers a single call.
type Handler func(call Call) Step

// FuncModel routes every call through a handler, which lets scenario tests
// answer by prompt content instead of by call order.
type FuncModel struct {
	mu      sync.Mutex
	handler Handler
	calls   []Call
}

// NewFunc creates a handler-backed model.
func NewFunc(handler Handler) *FuncModel {
	return &FuncModel{handler: handler}
}

func (m *FuncModel) GenerateContent(_ context.Context, messages []llmtypes.MessageContent, options ...llmtypes.CallOption) (*llmtypes.ContentResponse, error) {
	call := Call{Messages: messages, Options: llmtypes.ResolveOptions(options...)}

	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()

	step := m.handler(call)
	if step.Err != nil {
		return nil, step.Err
	}
	if step.Response == nil {
		return &llmtypes.ContentResponse{}, nil
	}
	return step.Response, nil
}

// Calls returns a copy of the recorded calls.
func (m *FuncModel) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CountMatching returns how many recorded prompts contain marker.
func (m *FuncModel) CountMatching(marker string) int {
	n := 0
	for _, c := range m.Calls() {
		if strings.Contains(c.Prompt(), marker) {
			n++
		}
	}
	return n
}

// JoinText concatenates every text and tool-response part.
func JoinText(messages []llmtypes.MessageContent) string {
	var sb strings.Builder
	for _, msg := range messages {
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llmtypes.TextContent:
				sb.WriteString(p.Text)
				sb.WriteString("\n")
			case llmtypes.ToolCallResponse:
				sb.WriteString(fmt.Sprintf("[%s] %s\n", p.Name, p.Content))
			}
		}
	}
	return sb.String()
}
