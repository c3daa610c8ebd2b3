package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-agent/internal/app"
	"trip-agent/internal/llmtypes/llmtest"
	"trip-agent/pkg/logger"
	"trip-agent/pkg/prompts"
	"trip-agent/pkg/workflow"
)

const (
	askPlan   = `{"plan": ["collect details"], "need_intervention": true, "intervention_request": {"message": "Budget?", "question_type": "single_choice", "options": [{"id": "a", "text": "low"}, {"id": "b", "text": "high"}]}}`
	readyPlan = `{"plan": {"overview": ["short trip"], "actionable_tasks": [{"category": "notes", "tasks": ["list saved notes"]}]}}`
	replan    = `{"replan": ["day 1 West Lake"], "amusement_info": {"destination": "Hangzhou", "travel_dates": "May", "duration": 2, "summary": "lake trip"}}`
)

func tripModel() *llmtest.FuncModel {
	plans := 0
	return llmtest.NewFunc(func(call llmtest.Call) llmtest.Step {
		prompt := call.Prompt()
		switch {
		case strings.Contains(prompt, prompts.JudgeHeader):
			return llmtest.Text(`{"completed": true}`)
		case strings.Contains(prompt, prompts.ReplanHeader):
			return llmtest.Text(replan)
		case strings.Contains(prompt, prompts.PlanHeader):
			plans++
			if plans == 1 {
				return llmtest.Text(askPlan)
			}
			return llmtest.Text(readyPlan)
		case strings.Contains(prompt, prompts.ObserveHeader):
			return llmtest.Text("satisfied")
		case strings.Contains(prompt, "[list_files]"):
			return llmtest.Text("no notes yet")
		}
		return llmtest.Tools(llmtest.ToolCall("c1", "list_files", `{}`))
	})
}

func newTestAPI(t *testing.T) (*API, http.Handler) {
	t.Helper()
	log := logger.CreateTestLogger()
	cfg := app.Config{
		DBPath:    ":memory:",
		Workspace: t.TempDir(),
		Policy:    workflow.DefaultPolicy(),
	}
	a, err := app.NewWithModel(context.Background(), cfg, tripModel(), log)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	api := NewAPI(context.Background(), Config{CORSOrigins: []string{"*"}}, a)
	return api, api.Router()
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestSessionAPI_FullConversation(t *testing.T) {
	_, h := newTestAPI(t)
	trip := workflow.TripRequest{Origin: "Shanghai", Destination: "Hangzhou", Days: 2}

	rec := do(t, h, http.MethodPost, "/api/sessions", trip)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	started := decode[SessionResponse](t, rec)
	assert.Equal(t, workflow.StatusWaitingUser, started.Status)
	require.NotNil(t, started.InterventionRequest)
	assert.Equal(t, "Budget?", started.InterventionRequest.Message)
	require.Len(t, started.InterventionRequest.Options, 2)

	rec = do(t, h, http.MethodPost, "/api/sessions/"+started.SessionID+"/resume", map[string]interface{}{"selected_options": []string{"b"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decode[SessionResponse](t, rec)
	assert.Equal(t, workflow.StatusCompleted, done.Status)
	assert.Nil(t, done.InterventionRequest)
	assert.Equal(t, []string{"notes::list saved notes"}, done.ExecutedTasks)
	require.NotNil(t, done.Itinerary)
	assert.Equal(t, "lake trip", done.Itinerary.Summary)
	require.Len(t, done.Questions, 1)
	assert.Equal(t, "high", *done.Questions[0].Answer)

	rec = do(t, h, http.MethodGet, "/api/sessions/"+started.SessionID+"?full=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[SessionResponse](t, rec)
	require.NotNil(t, got.State)
	assert.Equal(t, workflow.NodeEnd, got.State.CurrentNode)

	rec = do(t, h, http.MethodGet, "/api/sessions/"+started.SessionID+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	evs := decode[GetEventsResponse](t, rec)
	require.NotEmpty(t, evs.Events)
	assert.Equal(t, len(evs.Events)-1, evs.LastEventIndex)
	assert.Equal(t, "workflow_completed", string(evs.Events[len(evs.Events)-1].Type))

	rec = do(t, h, http.MethodGet, "/api/sessions/"+started.SessionID+"/events?since="+jsonInt(evs.LastEventIndex), nil)
	assert.Empty(t, decode[GetEventsResponse](t, rec).Events)

	rec = do(t, h, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Total int `json:"total"`
	}](t, rec)
	assert.Equal(t, 1, list.Total)

	rec = do(t, h, http.MethodDelete, "/api/sessions/"+started.SessionID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/sessions/"+started.SessionID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionAPI_ResumeWithTextInput(t *testing.T) {
	_, h := newTestAPI(t)

	rec := do(t, h, http.MethodPost, "/api/sessions", workflow.TripRequest{Destination: "Hangzhou"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	started := decode[SessionResponse](t, rec)
	require.Equal(t, workflow.StatusWaitingUser, started.Status)

	rec = do(t, h, http.MethodPost, "/api/sessions/"+started.SessionID+"/resume",
		map[string]string{"text_input": "window seat, no transfers"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decode[SessionResponse](t, rec)
	require.NotEmpty(t, done.Questions)
	last := done.Questions[len(done.Questions)-1]
	require.NotNil(t, last.Answer)
	assert.Equal(t, "window seat, no transfers", *last.Answer)
}

func jsonInt(n int) string {
	data, _ := json.Marshal(n)
	return string(data)
}

func TestSessionAPI_Errors(t *testing.T) {
	_, h := newTestAPI(t)

	rec := do(t, h, http.MethodPost, "/api/sessions/missing/resume", map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/sessions", map[string]string{"origin": "Beijing"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader("{"))
	raw := httptest.NewRecorder()
	h.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)

	rec = do(t, h, http.MethodGet, "/api/sessions/missing/events", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/sessions/missing/events?since=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionAPI_AsyncStart(t *testing.T) {
	api, h := newTestAPI(t)
	rec := do(t, h, http.MethodPost, "/api/sessions?async=true", workflow.TripRequest{Destination: "Hangzhou"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	accepted := decode[SessionResponse](t, rec)
	assert.Equal(t, workflow.StatusRunning, accepted.Status)

	require.Eventually(t, func() bool {
		s, err := api.sessions.Get(context.Background(), accepted.SessionID)
		return err == nil && s.Status == workflow.StatusWaitingUser
	}, 5*time.Second, 10*time.Millisecond)
}

func TestToolDataAPI(t *testing.T) {
	_, h := newTestAPI(t)
	started := decode[SessionResponse](t, do(t, h, http.MethodPost, "/api/sessions", workflow.TripRequest{Destination: "Hangzhou"}))
	rec := do(t, h, http.MethodPost, "/api/sessions/"+started.SessionID+"/resume", map[string]string{"text": "a"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/tool-data/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cats := decode[struct {
		Categories []string `json:"categories"`
	}](t, rec)
	assert.Equal(t, []string{"notes"}, cats.Categories)

	rec = do(t, h, http.MethodGet, "/api/tool-data/categories/notes?tool_name=list_files", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	byCat := decode[struct {
		Total   int `json:"total"`
		Records []struct {
			ToolName  string `json:"tool_name"`
			SessionID string `json:"session_id"`
			Context   string `json:"context"`
		} `json:"records"`
	}](t, rec)
	require.Equal(t, 1, byCat.Total)
	assert.Equal(t, "list_files", byCat.Records[0].ToolName)
	assert.Equal(t, started.SessionID, byCat.Records[0].SessionID)
	assert.Equal(t, "list saved notes", byCat.Records[0].Context)

	rec = do(t, h, http.MethodPost, "/api/tool-data/query", map[string]string{"context": "saved"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[struct {
		Total int `json:"total"`
	}](t, rec).Total)

	rec = do(t, h, http.MethodGet, "/api/tool-data/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[struct {
		TotalRecords int            `json:"total_records"`
		Tools        map[string]int `json:"tools"`
	}](t, rec)
	assert.Equal(t, 1, stats.TotalRecords)
	assert.Equal(t, 1, stats.Tools["list_files"])
}

func TestHealthWorkersAndMetrics(t *testing.T) {
	_, h := newTestAPI(t)

	rec := do(t, h, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = do(t, h, http.MethodGet, "/api/workers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	workers := decode[[]workerInfo](t, rec)
	require.Len(t, workers, 1)
	assert.Equal(t, "file", workers[0].Name)
	assert.ElementsMatch(t, []string{"read_file", "write_file", "list_files"}, workers[0].Tools)

	rec = do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	req := httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	pre := httptest.NewRecorder()
	h.ServeHTTP(pre, req)
	assert.Equal(t, http.StatusOK, pre.Code)
	assert.Equal(t, "*", pre.Header().Get("Access-Control-Allow-Origin"))
}
