package capability

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"trip-agent/internal/llmtypes"
)

// Call is one capability request in the single internal encoding.
type Call struct {
	ID   string
	Name string
	Args string
}

// Normalize flattens a choice's capability requests. The current ToolCalls
// encoding wins; the legacy single FuncCall is used only when ToolCalls is
// empty. Calls without an id get a generated one.
func Normalize(choice *llmtypes.ContentChoice) []Call {
	if !choice.RequestsTools() {
		return nil
	}
	if len(choice.ToolCalls) > 0 {
		calls := make([]Call, 0, len(choice.ToolCalls))
		for _, tc := range choice.ToolCalls {
			call := Call{ID: tc.ID}
			if tc.FunctionCall != nil {
				call.Name = tc.FunctionCall.Name
				call.Args = tc.FunctionCall.Arguments
			}
			if call.ID == "" {
				call.ID = "call_" + uuid.NewString()
			}
			calls = append(calls, call)
		}
		return calls
	}
	return []Call{{
		ID:   "legacy_" + uuid.NewString(),
		Name: choice.FuncCall.Name,
		Args: choice.FuncCall.Arguments,
	}}
}

// ToolCalls renders calls in the current encoding, for rebuilding the
// assistant turn that requested them.
func ToolCalls(calls []Call) []llmtypes.ToolCall {
	out := make([]llmtypes.ToolCall, len(calls))
	for i, c := range calls {
		out[i] = llmtypes.ToolCall{
			ID:           c.ID,
			Type:         "function",
			FunctionCall: &llmtypes.FunctionCall{Name: c.Name, Arguments: c.Args},
		}
	}
	return out
}

// ParseArgs decodes a JSON arguments object. Empty input yields an empty map.
func ParseArgs(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args, nil
}
