package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-agent/internal/llmtypes"
	"trip-agent/internal/llmtypes/llmtest"
	"trip-agent/pkg/capability"
	"trip-agent/pkg/events"
	"trip-agent/pkg/logger"
	"trip-agent/pkg/oracle"
	"trip-agent/pkg/prompts"
	"trip-agent/pkg/worker"
)

var testTrip = TripRequest{Origin: "Beijing", Destination: "Hangzhou", Date: "2025-05-01", Days: 3, People: 2}

const (
	askPlan    = `{"plan": {"overview": ["need details"], "actionable_tasks": []}, "need_intervention": true, "intervention_request": {"message": "Any seat preference?", "question_type": "text"}}`
	readyPlan  = `{"plan": {"overview": ["rail trip"], "actionable_tasks": [{"category": "transport", "tasks": ["train tickets"], "summary_task": "compare trains"}]}, "need_intervention": false}`
	doneReplan = `{"replan": ["take G1"], "amusement_info": {"destination": "Hangzhou", "travel_dates": "2025-05-01 to 2025-05-03", "duration": 3, "summary": "West Lake weekend"}, "need_intervention": false}`
)

// scenario answers each stage from a scripted list; the last entry repeats.
type scenario struct {
	mu       sync.Mutex
	plans    []string
	replans  []string
	observes []string
	lookups  int32
}

func next(list *[]string) string {
	v := (*list)[0]
	if len(*list) > 1 {
		*list = (*list)[1:]
	}
	return v
}

func (sc *scenario) model() *llmtest.FuncModel {
	return llmtest.NewFunc(func(call llmtest.Call) llmtest.Step {
		prompt := call.Prompt()
		sc.mu.Lock()
		defer sc.mu.Unlock()
		switch {
		case strings.Contains(prompt, prompts.JudgeHeader):
			return llmtest.Text(`{"completed": true}`)
		case strings.Contains(prompt, prompts.SynthesisHeader):
			return llmtest.Text("G1 is fastest")
		case strings.Contains(prompt, prompts.ReplanHeader):
			return stepFor(next(&sc.replans))
		case strings.Contains(prompt, prompts.PlanHeader):
			return stepFor(next(&sc.plans))
		case strings.Contains(prompt, prompts.ObserveHeader):
			return stepFor(next(&sc.observes))
		case strings.Contains(prompt, "[lookup]"):
			return llmtest.Text("found trains")
		case strings.Contains(prompt, prompts.WorkerHeader):
			return llmtest.Tools(llmtest.ToolCall("c1", "lookup", `{"query": "trains"}`))
		}
		return llmtest.Fail(errors.New("unexpected prompt"))
	})
}

func stepFor(reply string) llmtest.Step {
	if reply == "FAIL" {
		return llmtest.Fail(errors.New("upstream unavailable"))
	}
	return llmtest.Text(reply)
}

func (sc *scenario) lookup() capability.Capability {
	return capability.Capability{
		Name:       "lookup",
		Parameters: map[string]interface{}{"type": "object", "properties": map[string]interface{}{"query": map[string]interface{}{"type": "string"}}},
		Invoke: func(ctx context.Context, args map[string]interface{}) (string, error) {
			atomic.AddInt32(&sc.lookups, 1)
			return "G1 08:00-12:00", nil
		},
	}
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Emit(_ context.Context, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(t events.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// snapshotStore records a deep copy of every saved state.
type snapshotStore struct {
	*MemoryStore
	mu    sync.Mutex
	saved []State
}

func (s *snapshotStore) Save(ctx context.Context, state *State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	var snapshot State
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return err
	}
	s.mu.Lock()
	s.saved = append(s.saved, snapshot)
	s.mu.Unlock()
	return s.MemoryStore.Save(ctx, state)
}

func (s *snapshotStore) at(node Node) []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []State
	for _, st := range s.saved {
		if st.CurrentNode == node {
			out = append(out, st)
		}
	}
	return out
}

func newEngine(t *testing.T, model llmtypes.Model, lookup capability.Capability, policy Policy, store Store, emitter events.Emitter) *Engine {
	t.Helper()
	log := logger.CreateTestLogger()
	client := oracle.NewClient(model, log, oracle.WithPolicy(oracle.RetryPolicy{MaxRetries: 0}))
	registry := worker.NewRegistry(worker.New(worker.TypeSearch, capability.NewCatalog(lookup)))
	opts := []ContextOption{WithPolicy(policy)}
	if emitter != nil {
		opts = append(opts, WithEventEmitter(emitter))
	}
	return NewEngine(NewOrchestrationContext(client, registry, log, opts...), store)
}

func callsWith(m *llmtest.FuncModel, header string) []llmtest.Call {
	var out []llmtest.Call
	for _, c := range m.Calls() {
		if strings.Contains(c.Prompt(), header) {
			out = append(out, c)
		}
	}
	return out
}

func TestEngine_ClarifyingQuestionThenResume(t *testing.T) {
	ctx := context.Background()
	sc := &scenario{plans: []string{askPlan, readyPlan}, replans: []string{doneReplan}, observes: []string{"1"}}
	model := sc.model()
	store := &snapshotStore{MemoryStore: NewMemoryStore()}
	rec := &recorder{}
	engine := newEngine(t, model, sc.lookup(), DefaultPolicy(), store, rec)

	state, err := engine.Run(ctx, NewState("s-a", testTrip))
	require.NoError(t, err)

	assert.Equal(t, StatusWaitingUser, state.Status)
	assert.Equal(t, NodeWaitUserPlan, state.CurrentNode)
	assert.True(t, state.NeedIntervention)
	assert.Equal(t, StagePlan, state.InterventionStage)
	require.NotNil(t, state.InterventionRequest)
	assert.Equal(t, "Any seat preference?", state.InterventionRequest.Message)
	assert.Equal(t, 1, state.InterventionCount)
	require.Len(t, state.CollectedInfo.AskedQuestions, 1)
	assert.Nil(t, state.CollectedInfo.AskedQuestions[0].Answer)
	require.NotNil(t, state.CollectedInfo.Pending)
	assert.NoError(t, state.CheckIntervention())
	assert.Zero(t, atomic.LoadInt32(&sc.lookups))
	assert.Equal(t, 1, rec.count(events.WorkflowPaused))

	loaded, err := store.Load(ctx, "s-a")
	require.NoError(t, err)
	loaded.InterventionResponse = &InterventionResponse{TextInput: "window seat, no transfers"}

	final, err := engine.Run(ctx, loaded)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, NodeEnd, final.CurrentNode)
	assert.False(t, final.NeedIntervention)
	assert.Nil(t, final.InterventionResponse)
	assert.Nil(t, final.CollectedInfo.Pending)
	require.Len(t, final.CollectedInfo.AskedQuestions, 1)
	require.NotNil(t, final.CollectedInfo.AskedQuestions[0].Answer)
	assert.Equal(t, "window seat, no transfers", *final.CollectedInfo.AskedQuestions[0].Answer)
	assert.Equal(t, []string{"transport::train tickets", "transport::summary::compare trains"}, final.ExecutedTasks)
	require.NotNil(t, final.AmusementInfo)
	assert.Equal(t, "Hangzhou", final.AmusementInfo.Destination)
	assert.True(t, final.ObservationResult.Satisfied)
	assert.Equal(t, int32(1), atomic.LoadInt32(&sc.lookups))
	assert.Equal(t, 1, rec.count(events.WorkflowResumed))
	assert.Equal(t, 1, rec.count(events.WorkflowCompleted))

	plans := callsWith(model, prompts.PlanHeader)
	require.Len(t, plans, 2)
	assert.Contains(t, plans[1].Prompt(), "Any seat preference? -> window seat, no transfers")

	// after every Plan or Replan the intervention fields agree
	for _, node := range []Node{NodeCheckAfterPlan, NodeCheckAfterReplan} {
		for _, st := range store.at(node) {
			assert.NoError(t, st.CheckIntervention(), "state saved at %s", node)
			assert.Equal(t, st.NeedIntervention, st.InterventionStage != StageNone)
			assert.Equal(t, st.NeedIntervention, st.InterventionRequest != nil)
		}
	}
}

func TestEngine_SatisfiedReviewEndsWithItineraryUnchanged(t *testing.T) {
	sc := &scenario{plans: []string{readyPlan}, replans: []string{doneReplan}, observes: []string{"1"}}
	model := sc.model()
	engine := newEngine(t, model, sc.lookup(), DefaultPolicy(), NewMemoryStore(), nil)

	state, err := engine.Run(context.Background(), NewState("s-b", testTrip))
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, state.Status)
	assert.Equal(t, 0, state.Iteration)
	require.NotNil(t, state.AmusementInfo)
	assert.Equal(t, "West Lake weekend", state.AmusementInfo.Summary)
	assert.Len(t, callsWith(model, prompts.ObserveHeader), 1)
}

func TestEngine_ObserveNodeKeepsItinerary(t *testing.T) {
	engine := newEngine(t, llmtest.NewScripted(llmtest.Text("1")), (&scenario{}).lookup(), DefaultPolicy(), nil, nil)
	info := &Itinerary{Destination: "Hangzhou", Summary: "as planned"}
	s := NewState("s-b2", testTrip)
	s.AmusementInfo = info

	next := engine.observe(context.Background(), s)

	assert.Equal(t, NodeEnd, next)
	assert.Same(t, info, s.AmusementInfo)
	assert.Equal(t, Itinerary{Destination: "Hangzhou", Summary: "as planned"}, *s.AmusementInfo)
}

func TestEngine_CritiqueLoopsBackToPlan(t *testing.T) {
	sc := &scenario{
		plans:    []string{readyPlan},
		replans:  []string{doneReplan},
		observes: []string{`Some gaps: {"missing_items":["hotel price"],"suggestions":["requery hotel budget"]}`, "1"},
	}
	model := sc.model()
	store := &snapshotStore{MemoryStore: NewMemoryStore()}
	engine := newEngine(t, model, sc.lookup(), DefaultPolicy(), store, nil)

	state, err := engine.Run(context.Background(), NewState("s-c", testTrip))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, state.Status)
	assert.Equal(t, 1, state.Iteration)

	observed := store.at(NodePlan)
	// the first save at plan comes from the router, the second from observe
	require.Len(t, observed, 2)
	loop := observed[1]
	require.NotNil(t, loop.ObservationResult)
	assert.Equal(t, []string{"hotel price"}, loop.ObservationResult.MissingItems)
	assert.Equal(t, []string{"requery hotel budget"}, loop.ObservationResult.Suggestions)
	assert.Len(t, loop.ExecutedTasks, 2)

	afterPlan := store.at(NodeCheckAfterPlan)
	require.Len(t, afterPlan, 2)
	assert.Empty(t, afterPlan[1].ExecutedTasks)

	plans := callsWith(model, prompts.PlanHeader)
	require.Len(t, plans, 2)
	assert.Contains(t, plans[1].Prompt(), "hotel price")
	assert.Contains(t, plans[1].Prompt(), "requery hotel budget")
	assert.Equal(t, int32(2), atomic.LoadInt32(&sc.lookups))
}

func TestEngine_PlanFailureAsksTraveller(t *testing.T) {
	sc := &scenario{plans: []string{"FAIL"}}
	engine := newEngine(t, sc.model(), sc.lookup(), DefaultPolicy(), NewMemoryStore(), nil)

	state, err := engine.Run(context.Background(), NewState("s-f", testTrip))
	require.NoError(t, err)

	assert.Equal(t, StatusWaitingUser, state.Status)
	assert.Equal(t, NodeWaitUserPlan, state.CurrentNode)
	assert.Equal(t, StagePlan, state.InterventionStage)
	require.NotNil(t, state.InterventionRequest)
	assert.NotEmpty(t, state.InterventionRequest.Message)
	assert.Nil(t, state.Plan)
	assert.NoError(t, state.CheckIntervention())
}

func TestEngine_ReplanFailureAsksTraveller(t *testing.T) {
	sc := &scenario{plans: []string{readyPlan}, replans: []string{"FAIL"}}
	engine := newEngine(t, sc.model(), sc.lookup(), DefaultPolicy(), NewMemoryStore(), nil)

	state, err := engine.Run(context.Background(), NewState("s-rf", testTrip))
	require.NoError(t, err)

	assert.Equal(t, NodeWaitUserReplan, state.CurrentNode)
	assert.Equal(t, StageReplan, state.InterventionStage)
	assert.Len(t, state.ExecutedTasks, 2)
}

func TestEngine_ResumeAtReplanReentersReplan(t *testing.T) {
	ctx := context.Background()
	sc := &scenario{plans: []string{readyPlan}, replans: []string{"FAIL", doneReplan}, observes: []string{"1"}}
	model := sc.model()
	store := NewMemoryStore()
	engine := newEngine(t, model, sc.lookup(), DefaultPolicy(), store, nil)

	_, err := engine.Run(ctx, NewState("s-r", testTrip))
	require.NoError(t, err)
	loaded, err := store.Load(ctx, "s-r")
	require.NoError(t, err)
	loaded.InterventionResponse = &InterventionResponse{TextInput: "prioritise museums"}

	final, err := engine.Run(ctx, loaded)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, final.Status)
	assert.Len(t, callsWith(model, prompts.PlanHeader), 1)
	assert.Len(t, callsWith(model, prompts.ReplanHeader), 2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&sc.lookups))
}

func TestEngine_ReviewFailureIsNotSuccess(t *testing.T) {
	sc := &scenario{plans: []string{readyPlan}, replans: []string{doneReplan}, observes: []string{"FAIL"}}
	policy := DefaultPolicy()
	policy.MaxIterations = 1
	engine := newEngine(t, sc.model(), sc.lookup(), policy, nil, nil)

	state, err := engine.Run(context.Background(), NewState("s-o", testTrip))
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, state.Status)
	assert.Equal(t, 1, state.Iteration)
	require.NotNil(t, state.ObservationResult)
	assert.False(t, state.ObservationResult.Satisfied)
	assert.Equal(t, []string{genericMissing}, state.ObservationResult.MissingItems)
}

func TestEngine_QuestionCap(t *testing.T) {
	ctx := context.Background()
	sc := &scenario{plans: []string{askPlan, askPlan, readyPlan}, replans: []string{doneReplan}, observes: []string{"1"}}
	model := sc.model()
	rec := &recorder{}
	policy := DefaultPolicy()
	policy.MaxInterventions = 1
	engine := newEngine(t, model, sc.lookup(), policy, nil, rec)

	state, err := engine.Run(ctx, NewState("s-cap", testTrip))
	require.NoError(t, err)
	require.Equal(t, StatusWaitingUser, state.Status)

	state.InterventionResponse = &InterventionResponse{TextInput: "aisle"}
	state, err = engine.Run(ctx, state)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, state.Status)
	assert.Equal(t, 1, state.InterventionCount)
	assert.Equal(t, 1, rec.count(events.InterventionCapped))
	plans := callsWith(model, prompts.PlanHeader)
	require.Len(t, plans, 2)
	assert.Contains(t, plans[1].Prompt(), "Do not ask the traveller anything")
}

func TestEngine_ExecuteIsIdempotent(t *testing.T) {
	sc := &scenario{}
	model := sc.model()
	engine := newEngine(t, model, sc.lookup(), DefaultPolicy(), nil, nil)
	s := NewState("s-x", testTrip)
	s.Plan = &Plan{Categories: []TaskCategory{{Category: "transport", Tasks: []string{"train tickets"}, SummaryTask: "compare trains"}}}

	assert.Equal(t, NodeReplan, engine.execute(context.Background(), s))
	first := append([]string(nil), s.ExecutedTasks...)
	callsAfterFirst := len(model.Calls())
	toolTurns := len(s.Messages)

	assert.Equal(t, NodeReplan, engine.execute(context.Background(), s))

	assert.Equal(t, first, s.ExecutedTasks)
	assert.Equal(t, callsAfterFirst, len(model.Calls()))
	assert.Equal(t, toolTurns, len(s.Messages))
	assert.Equal(t, int32(1), atomic.LoadInt32(&sc.lookups))
}

func TestResumeRouter(t *testing.T) {
	rec := &recorder{}
	engine := newEngine(t, llmtest.NewScripted(), (&scenario{}).lookup(), DefaultPolicy(), nil, rec)
	ctx := context.Background()

	ask := func(stage Stage) *State {
		s := NewState("s", testTrip)
		s.requestIntervention(stage, InterventionRequest{Message: "which hotel?"})
		return s
	}

	s := NewState("s", testTrip)
	assert.Equal(t, NodePlan, engine.resumeRouter(ctx, s))

	s = ask(StagePlan)
	s.InterventionResponse = &InterventionResponse{TextInput: "the cheap one"}
	assert.Equal(t, NodePlan, engine.resumeRouter(ctx, s))
	assert.Equal(t, StageNone, s.InterventionStage)
	assert.False(t, s.NeedIntervention)
	assert.NotNil(t, s.InterventionResponse, "the stage consumes the response")

	s = ask(StageReplan)
	s.InterventionResponse = &InterventionResponse{SelectedOptions: []string{"a"}}
	assert.Equal(t, NodeReplan, engine.resumeRouter(ctx, s))

	s = ask(StageReplan)
	assert.Equal(t, NodePlan, engine.resumeRouter(ctx, s))
	assert.Equal(t, StageNone, s.InterventionStage)
	assert.Nil(t, s.CollectedInfo.Pending)
	require.NotNil(t, s.CollectedInfo.AskedQuestions[0].Answer)
	assert.Equal(t, 1, rec.count(events.StateAnomaly))
	assert.NoError(t, s.CheckIntervention())
}

func TestEngine_SaveConflictStopsRun(t *testing.T) {
	ctx := context.Background()
	sc := &scenario{plans: []string{askPlan}}
	store := NewMemoryStore()
	engine := newEngine(t, sc.model(), sc.lookup(), DefaultPolicy(), store, nil)

	_, err := engine.Run(ctx, NewState("s-v", testTrip))
	require.NoError(t, err)

	stale := NewState("s-v", testTrip)
	_, err = engine.Run(ctx, stale)
	assert.ErrorIs(t, err, ErrVersionConflict)
}
