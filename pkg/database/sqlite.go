package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"trip-agent/internal/utils"
)

// SQLiteDB implements the Database interface using SQLite
type SQLiteDB struct {
	db     *sql.DB
	logger utils.ExtendedLogger
}

// NewSQLiteDB opens (or creates) the database at dbPath and applies the
// embedded migrations. ":memory:" gives a private in-memory database.
func NewSQLiteDB(dbPath string, logger utils.ExtendedLogger) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory") {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := NewMigrationRunner(db, logger).RunMigrations(migrationFiles, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if logger != nil {
		logger.Infof("💾 SQLite database ready at %s", dbPath)
	}
	return &SQLiteDB{db: db, logger: logger}, nil
}

// GetSession retrieves a session by ID
func (s *SQLiteDB) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	var rec SessionRecord
	var state string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, status, current_node, destination, version, state, created_at, updated_at
		FROM sessions
		WHERE id = ?
	`, id).Scan(&rec.ID, &rec.Status, &rec.CurrentNode, &rec.Destination, &rec.Version, &state, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	rec.State = json.RawMessage(state)
	return &rec, nil
}

// SaveSession inserts or conditionally updates a session.
func (s *SQLiteDB) SaveSession(ctx context.Context, rec *SessionRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("session id is required")
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	if rec.Version == 0 {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO sessions (id, status, current_node, destination, version, state, created_at, updated_at)
			VALUES (?, ?, ?, ?, 1, ?, ?, ?)
		`, rec.ID, rec.Status, rec.CurrentNode, rec.Destination, string(rec.State), rec.CreatedAt.UTC(), now)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return fmt.Errorf("session %s already exists: %w", rec.ID, ErrVersionConflict)
			}
			return fmt.Errorf("failed to insert session: %w", err)
		}
		rec.Version = 1
		rec.UpdatedAt = now
		return nil
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = ?, current_node = ?, destination = ?, state = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`, rec.Status, rec.CurrentNode, rec.Destination, string(rec.State), now, rec.ID, rec.Version)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n == 0 {
		if _, getErr := s.GetSession(ctx, rec.ID); errors.Is(getErr, ErrNotFound) {
			return fmt.Errorf("session %s: %w", rec.ID, ErrNotFound)
		}
		return fmt.Errorf("session %s at version %d: %w", rec.ID, rec.Version, ErrVersionConflict)
	}
	rec.Version++
	rec.UpdatedAt = now
	return nil
}

// ListSessions returns sessions, most recently updated first, and the total count.
func (s *SQLiteDB) ListSessions(ctx context.Context, limit, offset int) ([]SessionSummary, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, current_node, destination, version, created_at, updated_at
		FROM sessions
		ORDER BY updated_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []SessionSummary{}
	for rows.Next() {
		var sum SessionSummary
		if err := rows.Scan(&sum.ID, &sum.Status, &sum.CurrentNode, &sum.Destination, &sum.Version, &sum.CreatedAt, &sum.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sum)
	}
	return sessions, total, rows.Err()
}

// DeleteSession removes a session. Its audit records are kept.
func (s *SQLiteDB) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// RecordToolExecution appends one audit record.
func (s *SQLiteDB) RecordToolExecution(ctx context.Context, rec *ToolExecutionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.Category == "" {
		rec.Category = "general"
	}
	meta := []byte("{}")
	if len(rec.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(rec.Metadata); err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_executions (id, session_id, timestamp, category, tool_name, tool_input, tool_output, context, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.SessionID, rec.Timestamp.UTC(), rec.Category, rec.ToolName, rec.ToolInput, rec.ToolOutput, rec.Context, string(meta))
	if err != nil {
		return fmt.Errorf("failed to record tool execution: %w", err)
	}
	return nil
}

// QueryToolExecutions returns matching records, oldest first.
func (s *SQLiteDB) QueryToolExecutions(ctx context.Context, q ToolExecutionQuery) ([]ToolExecutionRecord, error) {
	var where []string
	var args []interface{}
	if q.Category != "" {
		where = append(where, "category = ?")
		args = append(args, q.Category)
	}
	if q.ToolName != "" {
		where = append(where, "tool_name = ?")
		args = append(args, q.ToolName)
	}
	if q.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, q.SessionID)
	}
	if q.Context != "" {
		where = append(where, "instr(context, ?) > 0")
		args = append(args, q.Context)
	}

	query := `SELECT id, session_id, timestamp, category, tool_name, tool_input, tool_output, context, metadata FROM tool_executions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp ASC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool executions: %w", err)
	}
	defer rows.Close()

	records := []ToolExecutionRecord{}
	for rows.Next() {
		var rec ToolExecutionRecord
		var meta string
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Timestamp, &rec.Category, &rec.ToolName, &rec.ToolInput, &rec.ToolOutput, &rec.Context, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan tool execution: %w", err)
		}
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil && s.logger != nil {
				s.logger.Warnf("⚠️ Unreadable metadata on tool execution %s: %v", rec.ID, err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListCategories returns the distinct categories in the audit log, sorted.
func (s *SQLiteDB) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT category FROM tool_executions ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// ToolStats aggregates the audit log per category and per tool.
func (s *SQLiteDB) ToolStats(ctx context.Context) (*ToolStats, error) {
	stats := &ToolStats{Categories: map[string]int{}, Tools: map[string]int{}}

	if err := s.countInto(ctx, `SELECT category, COUNT(*) FROM tool_executions GROUP BY category`, stats.Categories); err != nil {
		return nil, err
	}
	if err := s.countInto(ctx, `SELECT tool_name, COUNT(*) FROM tool_executions GROUP BY tool_name`, stats.Tools); err != nil {
		return nil, err
	}
	for _, n := range stats.Categories {
		stats.TotalRecords += n
	}
	if stats.TotalRecords == 0 {
		return stats, nil
	}

	var earliest, latest time.Time
	if err := s.db.QueryRowContext(ctx, `SELECT timestamp FROM tool_executions ORDER BY timestamp ASC LIMIT 1`).Scan(&earliest); err != nil {
		return nil, fmt.Errorf("failed to read earliest record: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT timestamp FROM tool_executions ORDER BY timestamp DESC LIMIT 1`).Scan(&latest); err != nil {
		return nil, fmt.Errorf("failed to read latest record: %w", err)
	}
	stats.Earliest, stats.Latest = &earliest, &latest
	return stats, nil
}

func (s *SQLiteDB) countInto(ctx context.Context, query string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to aggregate tool executions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}

// Ping checks the connection
func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
