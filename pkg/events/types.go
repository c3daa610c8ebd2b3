package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates everything the engine reports while a session runs.
type EventType string

// Workflow events
const (
	WorkflowStarted   EventType = "workflow_started"
	WorkflowPaused    EventType = "workflow_paused"
	WorkflowCompleted EventType = "workflow_completed"
	WorkflowResumed   EventType = "workflow_resumed"
	NodeStarted       EventType = "node_started"
	NodeCompleted     EventType = "node_completed"
	StateAnomaly      EventType = "state_anomaly"

	InterventionRequested EventType = "intervention_requested"
	InterventionAnswered  EventType = "intervention_answered"
	InterventionCapped    EventType = "intervention_capped"
)

// Task dispatch events
const (
	WorkerSelected     EventType = "worker_selected"
	TaskStarted        EventType = "task_started"
	TaskCompleted      EventType = "task_completed"
	TaskSkipped        EventType = "task_skipped"
	CompletionChecked  EventType = "completion_checked"
	FallbackSearchUsed EventType = "fallback_search_used"
	ToolCallEnd        EventType = "tool_call_end"
	ToolCallError      EventType = "tool_call_error"
)

// Oracle events
const (
	FallbackModelUsed  EventType = "fallback_model_used"
	ThrottlingDetected EventType = "throttling_detected"
	OracleUnavailable  EventType = "oracle_unavailable"
	HistoryCompacted   EventType = "history_compacted"
)

// Event is a single observable occurrence inside a session.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	SessionID string                 `json:"session_id,omitempty"`
	Node      string                 `json:"node,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// New creates an event stamped with a fresh ID and the current time.
func New(eventType EventType, message string) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// With returns a copy of e with key set in Data.
func (e Event) With(key string, value interface{}) Event {
	data := make(map[string]interface{}, len(e.Data)+1)
	for k, v := range e.Data {
		data[k] = v
	}
	data[key] = value
	e.Data = data
	return e
}

// Emitter receives events. Implementations must be safe for concurrent use.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, event Event)

func (f EmitterFunc) Emit(ctx context.Context, event Event) {
	f(ctx, event)
}

// Nop discards every event.
var Nop Emitter = EmitterFunc(func(context.Context, Event) {})

type sessionKey struct{}

// WithSessionID tags ctx so that events emitted below it carry sessionID.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// SessionIDFrom returns the session ID stored by WithSessionID.
func SessionIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(sessionKey{}).(string); ok {
		return v
	}
	return ""
}

// Emit sends e through emitter, filling SessionID from ctx when unset.
// A nil emitter is ignored.
func Emit(ctx context.Context, emitter Emitter, e Event) {
	if emitter == nil {
		return
	}
	if e.SessionID == "" {
		e.SessionID = SessionIDFrom(ctx)
	}
	emitter.Emit(ctx, e)
}
