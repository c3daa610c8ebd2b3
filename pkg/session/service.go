// Package session exposes planning sessions to callers: start, resume with
// a traveller response, inspect and delete.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"trip-agent/internal/utils"
	"trip-agent/pkg/database"
	"trip-agent/pkg/workflow"
)

var (
	// ErrSessionNotFound is returned for unknown or deleted sessions.
	ErrSessionNotFound = workflow.ErrSessionNotFound
	// ErrSessionBusy is returned when the session is already being run.
	ErrSessionBusy = errors.New("session is busy")
	// ErrInvalidRequest is returned for a trip request without destination.
	ErrInvalidRequest = errors.New("invalid trip request")
)

// HumanResponse is the traveller's answer passed to Resume.
type HumanResponse struct {
	Text            string   `json:"text,omitempty"`
	SelectedOptions []string `json:"selected_options,omitempty"`
}

// UnmarshalJSON accepts "text_input" as an alias of "text".
func (r *HumanResponse) UnmarshalJSON(data []byte) error {
	var raw struct {
		Text            string   `json:"text"`
		TextInput       string   `json:"text_input"`
		SelectedOptions []string `json:"selected_options"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Text = raw.Text
	if r.Text == "" {
		r.Text = raw.TextInput
	}
	r.SelectedOptions = raw.SelectedOptions
	return nil
}

// Store is what the service needs from persistence.
type Store interface {
	workflow.Store
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context, limit, offset int) ([]database.SessionSummary, int, error)
}

// Service runs sessions. At most one Run per session id is in flight in
// this process; the store's version check covers other processes.
type Service struct {
	engine *workflow.Engine
	store  Store
	logger utils.ExtendedLogger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a service running oc's engine over store.
func NewService(oc *workflow.OrchestrationContext, store Store, logger utils.ExtendedLogger) *Service {
	return &Service{
		engine: workflow.NewEngine(oc, store),
		store:  store,
		logger: logger,
		locks:  map[string]*sync.Mutex{},
	}
}

// Create validates trip and stores a new session without running it.
func (s *Service) Create(ctx context.Context, trip workflow.TripRequest) (*workflow.State, error) {
	if strings.TrimSpace(trip.Destination) == "" {
		return nil, fmt.Errorf("%w: destination is required", ErrInvalidRequest)
	}
	state := workflow.NewState(uuid.NewString(), trip)
	if err := s.store.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.logger.Infof("🆕 Created session %s for %s", state.SessionID, trip.Destination)
	return state, nil
}

// Start creates a session for trip and runs it until it waits or completes.
func (s *Service) Start(ctx context.Context, trip workflow.TripRequest) (*workflow.State, error) {
	state, err := s.Create(ctx, trip)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, state.SessionID)
}

// Run re-enters a stored session at the resume router without a new
// traveller response. Sessions without an intervention stage restart from
// plan.
func (s *Service) Run(ctx context.Context, sessionID string) (*workflow.State, error) {
	unlock, err := s.lock(sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	state, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.engine.Run(ctx, state)
}

// Resume feeds resp into the session and runs it again from the resume
// router.
func (s *Service) Resume(ctx context.Context, sessionID string, resp HumanResponse) (*workflow.State, error) {
	unlock, err := s.lock(sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	state, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state.Status != workflow.StatusWaitingUser {
		s.logger.Warnf("⚠️ Resuming session %s in status %s", sessionID, state.Status)
	}
	state.InterventionResponse = &workflow.InterventionResponse{
		TextInput:       resp.Text,
		SelectedOptions: resp.SelectedOptions,
	}
	s.logger.Infof("▶️ Resuming session %s at %s stage", sessionID, state.InterventionStage)
	return s.engine.Run(ctx, state)
}

// Get loads a session.
func (s *Service) Get(ctx context.Context, sessionID string) (*workflow.State, error) {
	return s.store.Load(ctx, sessionID)
}

// List returns session summaries, newest first, and the total count.
func (s *Service) List(ctx context.Context, limit, offset int) ([]database.SessionSummary, int, error) {
	return s.store.List(ctx, limit, offset)
}

// Delete removes a session. A session that is running cannot be deleted.
func (s *Service) Delete(ctx context.Context, sessionID string) error {
	unlock, err := s.lock(sessionID)
	if err != nil {
		return err
	}
	defer unlock()
	return s.store.Delete(ctx, sessionID)
}

// lock takes the per-session lock without waiting.
func (s *Service) lock(sessionID string) (func(), error) {
	s.mu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	s.mu.Unlock()

	if !l.TryLock() {
		return nil, fmt.Errorf("%s: %w", sessionID, ErrSessionBusy)
	}
	return l.Unlock, nil
}
