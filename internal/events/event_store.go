package events

import (
	"context"
	"sync"
	"time"

	"trip-agent/pkg/events"
)

// EventStore keeps a bounded, in-memory event log per session for polling
// clients. It implements events.Emitter.
type EventStore struct {
	events        map[string][]events.Event // sessionID -> events
	lastActivity  map[string]time.Time
	mu            sync.RWMutex
	maxEvents     int
	idleTTL       time.Duration
	cleanupTicker *time.Ticker
	stopCh        chan struct{}
	stopOnce      sync.Once
}

// NewEventStore creates a store that keeps at most maxEvents per session and
// drops sessions idle for longer than idleTTL.
func NewEventStore(maxEvents int, idleTTL time.Duration) *EventStore {
	store := &EventStore{
		events:        make(map[string][]events.Event),
		lastActivity:  make(map[string]time.Time),
		maxEvents:     maxEvents,
		idleTTL:       idleTTL,
		cleanupTicker: time.NewTicker(5 * time.Minute),
		stopCh:        make(chan struct{}),
	}

	go store.cleanupRoutine()

	return store
}

// Emit stores the event under its session. Events without a session are dropped.
func (es *EventStore) Emit(_ context.Context, event events.Event) {
	if event.SessionID == "" {
		return
	}
	es.AddEvent(event.SessionID, event)
}

// AddEvent appends an event for a session, trimming the oldest beyond maxEvents.
func (es *EventStore) AddEvent(sessionID string, event events.Event) {
	es.mu.Lock()
	defer es.mu.Unlock()

	list := append(es.events[sessionID], event)
	if es.maxEvents > 0 && len(list) > es.maxEvents {
		list = list[len(list)-es.maxEvents:]
	}
	es.events[sessionID] = list
	es.lastActivity[sessionID] = time.Now()
}

// GetEvents returns the events after sinceIndex (exclusive) together with the
// index of the last stored event. Pass -1 to read from the beginning.
func (es *EventStore) GetEvents(sessionID string, sinceIndex int) ([]events.Event, int, bool) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	list, exists := es.events[sessionID]
	if !exists {
		return []events.Event{}, -1, false
	}

	lastIndex := len(list) - 1
	nextIndex := sinceIndex + 1
	if nextIndex < 0 {
		nextIndex = 0
	}
	if nextIndex > len(list) {
		return []events.Event{}, lastIndex, true
	}

	out := make([]events.Event, len(list)-nextIndex)
	copy(out, list[nextIndex:])
	return out, lastIndex, true
}

// RemoveSession drops every event stored for a session.
func (es *EventStore) RemoveSession(sessionID string) {
	es.mu.Lock()
	defer es.mu.Unlock()

	delete(es.events, sessionID)
	delete(es.lastActivity, sessionID)
}

func (es *EventStore) cleanupRoutine() {
	for {
		select {
		case <-es.cleanupTicker.C:
			es.cleanupIdleSessions(time.Now())
		case <-es.stopCh:
			es.cleanupTicker.Stop()
			return
		}
	}
}

func (es *EventStore) cleanupIdleSessions(now time.Time) {
	if es.idleTTL <= 0 {
		return
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	for sessionID, last := range es.lastActivity {
		if now.Sub(last) > es.idleTTL {
			delete(es.events, sessionID)
			delete(es.lastActivity, sessionID)
		}
	}
}

// Stop stops the background cleanup goroutine. Safe to call more than once.
func (es *EventStore) Stop() {
	es.stopOnce.Do(func() { close(es.stopCh) })
}

// GetStats returns statistics about the event store
func (es *EventStore) GetStats() map[string]interface{} {
	es.mu.RLock()
	defer es.mu.RUnlock()

	totalEvents := 0
	for _, list := range es.events {
		totalEvents += len(list)
	}

	return map[string]interface{}{
		"total_sessions": len(es.events),
		"total_events":   totalEvents,
		"max_events":     es.maxEvents,
	}
}
