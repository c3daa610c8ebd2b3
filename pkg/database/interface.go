package database

import "context"

// Database is the persistence surface of the engine: workflow sessions and
// the tool execution audit log.
type Database interface {
	// Sessions
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	// SaveSession inserts when rec.Version is 0, otherwise updates only if
	// the stored version still equals rec.Version. rec.Version is bumped on
	// success.
	SaveSession(ctx context.Context, rec *SessionRecord) error
	ListSessions(ctx context.Context, limit, offset int) ([]SessionSummary, int, error)
	DeleteSession(ctx context.Context, id string) error

	// Tool execution audit log
	RecordToolExecution(ctx context.Context, rec *ToolExecutionRecord) error
	QueryToolExecutions(ctx context.Context, q ToolExecutionQuery) ([]ToolExecutionRecord, error)
	ListCategories(ctx context.Context) ([]string, error)
	ToolStats(ctx context.Context) (*ToolStats, error)

	Ping(ctx context.Context) error
	Close() error
}

// ToolRecorder is the write side of the audit log.
type ToolRecorder interface {
	RecordToolExecution(ctx context.Context, rec *ToolExecutionRecord) error
}
