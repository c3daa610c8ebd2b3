package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"trip-agent/pkg/database"
	"trip-agent/pkg/workflow"
)

// SQLStore persists workflow state in the sessions table.
type SQLStore struct {
	db database.Database
}

// NewSQLStore wraps db as a workflow.Store.
func NewSQLStore(db database.Database) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Load(ctx context.Context, sessionID string) (*workflow.State, error) {
	rec, err := s.db.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", sessionID, workflow.ErrSessionNotFound)
		}
		return nil, err
	}
	var state workflow.State
	if err := json.Unmarshal(rec.State, &state); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	state.Version = rec.Version
	return &state, nil
}

func (s *SQLStore) Save(ctx context.Context, state *workflow.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", state.SessionID, err)
	}
	rec := &database.SessionRecord{
		ID:          state.SessionID,
		Status:      string(state.Status),
		CurrentNode: string(state.CurrentNode),
		Destination: state.Trip.Destination,
		Version:     state.Version,
		State:       data,
		CreatedAt:   state.CreatedAt,
	}
	if err := s.db.SaveSession(ctx, rec); err != nil {
		switch {
		case errors.Is(err, database.ErrVersionConflict):
			return fmt.Errorf("%s: %w", state.SessionID, workflow.ErrVersionConflict)
		case errors.Is(err, database.ErrNotFound):
			return fmt.Errorf("%s: %w", state.SessionID, workflow.ErrSessionNotFound)
		}
		return err
	}
	state.Version = rec.Version
	return nil
}

// Delete removes a session.
func (s *SQLStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.db.DeleteSession(ctx, sessionID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("%s: %w", sessionID, workflow.ErrSessionNotFound)
		}
		return err
	}
	return nil
}

// List returns session summaries, newest first.
func (s *SQLStore) List(ctx context.Context, limit, offset int) ([]database.SessionSummary, int, error) {
	return s.db.ListSessions(ctx, limit, offset)
}
