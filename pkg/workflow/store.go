package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrSessionNotFound is returned when no state is stored for an id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrVersionConflict is returned when a save is based on a stale version.
	ErrVersionConflict = errors.New("session version conflict")
)

// Store persists workflow state between invocations.
type Store interface {
	Load(ctx context.Context, sessionID string) (*State, error)
	// Save writes state if its Version matches the stored one (0 for a new
	// session) and bumps state.Version.
	Save(ctx context.Context, state *State) error
}

// MemoryStore keeps serialized states in memory. Loads return fresh copies,
// so it exercises the same JSON round trip as a durable store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
	versions map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string][]byte{}, versions: map[string]int64{}}
}

func (m *MemoryStore) Load(_ context.Context, sessionID string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", sessionID, ErrSessionNotFound)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	s.Version = m.versions[sessionID]
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.versions[state.SessionID] != state.Version {
		return fmt.Errorf("%s at version %d: %w", state.SessionID, state.Version, ErrVersionConflict)
	}
	next := state.Version + 1
	snapshot := *state
	snapshot.Version = next
	data, err := json.Marshal(&snapshot)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", state.SessionID, err)
	}
	m.sessions[state.SessionID] = data
	m.versions[state.SessionID] = next
	state.Version = next
	return nil
}

// Delete removes a session.
func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return fmt.Errorf("%s: %w", sessionID, ErrSessionNotFound)
	}
	delete(m.sessions, sessionID)
	delete(m.versions, sessionID)
	return nil
}

// IDs lists stored session ids, sorted.
func (m *MemoryStore) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
