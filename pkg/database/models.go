package database

import (
	"encoding/json"
	"errors"
	"time"
)

// Session status values stored in the status column.
const (
	SessionStatusRunning     = "running"
	SessionStatusWaitingUser = "waiting_user"
	SessionStatusCompleted   = "completed"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned when a session was saved by someone
	// else since it was loaded.
	ErrVersionConflict = errors.New("session version conflict")
)

// SessionRecord is the persisted form of one workflow session. State holds
// the serialized workflow state; the other columns are denormalized for
// listing.
type SessionRecord struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	CurrentNode string          `json:"current_node"`
	Destination string          `json:"destination"`
	Version     int64           `json:"version"`
	State       json.RawMessage `json:"state,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// SessionSummary is a listing row without the state payload.
type SessionSummary struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	CurrentNode string    `json:"current_node"`
	Destination string    `json:"destination"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ToolExecutionRecord is one audited capability invocation. Records are
// append-only and partitioned by category.
type ToolExecutionRecord struct {
	ID         string                 `json:"id"`
	SessionID  string                 `json:"session_id,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Category   string                 `json:"category"`
	ToolName   string                 `json:"tool_name"`
	ToolInput  string                 `json:"tool_input"`
	ToolOutput string                 `json:"tool_output"`
	Context    string                 `json:"context"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// ToolExecutionQuery filters audit records. Empty fields match everything.
type ToolExecutionQuery struct {
	Category string `json:"category,omitempty" form:"category"`
	// Context matches as a substring.
	Context   string `json:"context,omitempty" form:"context"`
	ToolName  string `json:"tool_name,omitempty" form:"tool_name"`
	SessionID string `json:"session_id,omitempty" form:"session_id"`
	Limit     int    `json:"limit,omitempty" form:"limit"`
}

// ToolStats summarizes the audit log.
type ToolStats struct {
	TotalRecords int            `json:"total_records"`
	Categories   map[string]int `json:"categories"`
	Tools        map[string]int `json:"tools"`
	Earliest     *time.Time     `json:"earliest,omitempty"`
	Latest       *time.Time     `json:"latest,omitempty"`
}
