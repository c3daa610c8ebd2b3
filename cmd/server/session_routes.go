package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	unifiedevents "trip-agent/pkg/events"
	"trip-agent/pkg/session"
	"trip-agent/pkg/workflow"
)

// SessionResponse is the client view of a session.
type SessionResponse struct {
	SessionID           string                        `json:"session_id"`
	Status              workflow.Status               `json:"status"`
	CurrentNode         workflow.Node                 `json:"current_node"`
	Iteration           int                           `json:"iteration"`
	InterventionRequest *workflow.InterventionRequest `json:"intervention_request,omitempty"`
	Plan                []string                      `json:"plan,omitempty"`
	Replan              []string                      `json:"replan,omitempty"`
	Itinerary           *workflow.Itinerary           `json:"itinerary,omitempty"`
	ExecutedTasks       []string                      `json:"executed_tasks"`
	Questions           []workflow.AskedQuestion      `json:"questions"`
	State               *workflow.State               `json:"state,omitempty"`
}

func newSessionResponse(s *workflow.State, full bool) SessionResponse {
	resp := SessionResponse{
		SessionID:     s.SessionID,
		Status:        s.Status,
		CurrentNode:   s.CurrentNode,
		Iteration:     s.Iteration,
		Plan:          s.Plan.Lines(),
		Replan:        s.Replan.Lines(),
		Itinerary:     s.AmusementInfo,
		ExecutedTasks: s.ExecutedTasks,
		Questions:     s.CollectedInfo.AskedQuestions,
	}
	if s.Status == workflow.StatusWaitingUser {
		resp.InterventionRequest = s.InterventionRequest
	}
	if full {
		resp.State = s
	}
	return resp
}

// GetEventsResponse represents the response for event polling
type GetEventsResponse struct {
	Events         []unifiedevents.Event `json:"events"`
	LastEventIndex int                   `json:"last_event_index"`
	SessionID      string                `json:"session_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service errors to status codes.
func (api *API) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrSessionBusy), errors.Is(err, workflow.ErrVersionConflict):
		status = http.StatusConflict
	case errors.Is(err, session.ErrInvalidRequest):
		status = http.StatusBadRequest
	default:
		api.logger.Errorf("❌ Request failed: %v", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (api *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := api.db.Ping(r.Context()); err != nil {
		status = "database unavailable: " + err.Error()
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":  status,
		"workers": api.registry.Names(),
		"events":  api.events.GetStats(),
	})
}

type workerInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	MaxRounds   int      `json:"max_rounds"`
	Tools       []string `json:"tools"`
	Sources     []string `json:"sources"`
}

func (api *API) handleWorkers(w http.ResponseWriter, _ *http.Request) {
	out := []workerInfo{}
	for _, wk := range api.registry.List() {
		out = append(out, workerInfo{
			Name:        wk.Name,
			Description: wk.Description,
			MaxRounds:   wk.MaxRounds,
			Tools:       wk.Capabilities.Names(),
			Sources:     wk.Capabilities.Sources(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleStartSession creates a session. With ?async=true it answers 202 at
// once and runs the session in the background; clients poll the session or
// its events.
func (api *API) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var trip workflow.TripRequest
	if err := json.NewDecoder(r.Body).Decode(&trip); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		state, err := api.sessions.Create(r.Context(), trip)
		if err != nil {
			api.writeError(w, err)
			return
		}
		go api.runInBackground(state.SessionID)
		writeJSON(w, http.StatusAccepted, newSessionResponse(state, false))
		return
	}

	state, err := api.sessions.Start(r.Context(), trip)
	if err != nil {
		api.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(state, false))
}

func (api *API) runInBackground(sessionID string) {
	ctx := api.baseCtx
	if api.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, api.config.RunTimeout)
		defer cancel()
	}
	if _, err := api.sessions.Run(ctx, sessionID); err != nil {
		api.logger.Errorf("❌ Background run of session %s failed: %v", sessionID, err)
	}
}

func (api *API) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	sessions, total, err := api.sessions.List(r.Context(), limit, offset)
	if err != nil {
		api.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"total":    total,
	})
}

func (api *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	state, err := api.sessions.Get(r.Context(), mux.Vars(r)["session_id"])
	if err != nil {
		api.writeError(w, err)
		return
	}
	full, _ := strconv.ParseBool(r.URL.Query().Get("full"))
	writeJSON(w, http.StatusOK, newSessionResponse(state, full))
}

func (api *API) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["session_id"]
	if err := api.sessions.Delete(r.Context(), id); err != nil {
		api.writeError(w, err)
		return
	}
	api.events.RemoveSession(id)
	w.WriteHeader(http.StatusNoContent)
}

func (api *API) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	var resp session.HumanResponse
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	state, err := api.sessions.Resume(r.Context(), mux.Vars(r)["session_id"], resp)
	if err != nil {
		api.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(state, false))
}

// handleGetEvents returns the events after ?since (exclusive, default -1).
func (api *API) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["session_id"]
	since := -1
	if raw := r.URL.Query().Get("since"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid since parameter"})
			return
		}
		since = n
	}

	list, last, ok := api.events.GetEvents(id, since)
	if !ok {
		if _, err := api.sessions.Get(r.Context(), id); err != nil {
			api.writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, GetEventsResponse{Events: list, LastEventIndex: last, SessionID: id})
}
