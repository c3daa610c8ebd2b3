package worker

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-agent/internal/llmtypes"
	"trip-agent/internal/llmtypes/llmtest"
	"trip-agent/pkg/capability"
	"trip-agent/pkg/logger"
	"trip-agent/pkg/oracle"
	"trip-agent/pkg/prompts"
)

var testTrip = prompts.Trip{Origin: "Beijing", Destination: "Hangzhou", Date: "2025-05-01", Days: 3, People: 2}

func newClient(m llmtypes.Model) *oracle.Client {
	return oracle.NewClient(m, logger.CreateTestLogger(), oracle.WithPolicy(oracle.RetryPolicy{MaxRetries: 0}))
}

func counting(name string, content string, calls *int32) capability.Capability {
	return capability.Capability{
		Name:        name,
		Description: name + " lookup",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"query": map[string]interface{}{"type": "string"}},
			"required":   []interface{}{"query"},
		},
		Invoke: func(ctx context.Context, args map[string]interface{}) (string, error) {
			atomic.AddInt32(calls, 1)
			return content + ":" + args["query"].(string), nil
		},
	}
}

func newRunner(m llmtypes.Model, opts ...RunnerOption) *Runner {
	log := logger.CreateTestLogger()
	return NewRunner(newClient(m), capability.NewDispatcher(log), log, opts...)
}

func TestRunTask_QueryTaskCompletes(t *testing.T) {
	var hits int32
	w := New(TypeHotel, capability.NewCatalog(counting("hotel_lookup", "rooms", &hits)))

	model := llmtest.NewFunc(func(call llmtest.Call) llmtest.Step {
		prompt := call.Prompt()
		switch {
		case strings.Contains(prompt, prompts.JudgeHeader):
			return llmtest.Text(`{"completed": true, "reason": ""}`)
		case strings.Contains(prompt, "[hotel_lookup]"):
			return llmtest.Text("Found two hotels near West Lake.")
		default:
			return llmtest.Tools(llmtest.ToolCall("c1", "hotel_lookup", `{"query":"Hangzhou"}`))
		}
	})

	res := newRunner(model).RunTask(context.Background(), TaskInput{Task: "find a hotel", Context: testTrip, Worker: w})

	assert.True(t, res.Success)
	assert.True(t, res.Completed)
	assert.False(t, res.IsSummaryTask)
	assert.False(t, res.FallbackSearched)
	require.Len(t, res.ToolResults, 1)
	assert.Equal(t, "rooms:Hangzhou", res.ToolResults[0].Content)
	assert.Equal(t, "Found two hotels near West Lake.", res.FinalText)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Contains(t, res.Summary, "1. hotel_lookup: rooms:Hangzhou")
}

func TestRunTask_RespectsMaxRounds(t *testing.T) {
	var hits int32
	w := New(TypeTransport, capability.NewCatalog(counting("train_lookup", "G123", &hits)))
	require.Equal(t, 1, w.MaxRounds)

	model := llmtest.NewFunc(func(call llmtest.Call) llmtest.Step {
		if strings.Contains(call.Prompt(), prompts.JudgeHeader) {
			return llmtest.Text("1")
		}
		return llmtest.Tools(llmtest.ToolCall("", "train_lookup", `{"query":"Beijing-Hangzhou"}`))
	})

	res := newRunner(model).RunTask(context.Background(), TaskInput{Task: "train tickets", Context: testTrip, Worker: w})
	assert.Equal(t, 1, res.Rounds)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	res = newRunner(model).RunTask(context.Background(), TaskInput{Task: "train tickets", Context: testTrip, Worker: w, MaxRounds: 3})
	assert.Equal(t, 3, res.Rounds)
	assert.True(t, res.Success)
}

// The judge never accepts, so the task walks every escalation tier exactly once.
func TestRunTask_EscalatesToSingleFallbackSearch(t *testing.T) {
	var lookups, searches int32
	w := New("sights", capability.NewCatalog(counting("poi_lookup", "poi", &lookups)))
	searchCat := capability.NewCatalog(counting("web_search", "web", &searches))

	model := llmtest.NewFunc(func(call llmtest.Call) llmtest.Step {
		prompt := call.Prompt()
		switch {
		case strings.Contains(prompt, prompts.JudgeHeader):
			return llmtest.Text(`{"completed": false, "reason": "ticket prices missing"}`)
		default:
			return llmtest.Tools(llmtest.ToolCall("", "poi_lookup", `{"query":"West Lake"}`))
		}
	})

	res := newRunner(model, WithSearchCatalog(searchCat)).RunTask(context.Background(),
		TaskInput{Task: "list attractions", Context: testTrip, Worker: w, MaxRounds: 1})

	assert.Equal(t, 2, model.CountMatching(prompts.JudgeHeader))
	assert.Equal(t, 2, model.CountMatching(prompts.GuidanceHeader))
	var guided []int
	for _, c := range model.Calls() {
		if n := strings.Count(c.Prompt(), prompts.GuidanceHeader); n > 0 {
			guided = append(guided, n)
		}
	}
	assert.Equal(t, []int{1, 2}, guided)
	assert.Equal(t, 3, res.Rounds)
	assert.Equal(t, int32(3), atomic.LoadInt32(&lookups))
	assert.Equal(t, int32(1), atomic.LoadInt32(&searches))
	assert.True(t, res.FallbackSearched)
	assert.False(t, res.Completed)

	last := res.ToolResults[len(res.ToolResults)-1]
	assert.Equal(t, "web_search", last.Name)
	assert.Contains(t, last.Content, "ticket prices missing")
	assert.Contains(t, last.Content, "Hangzhou")
}

func TestRunTask_FallbackWithoutSearchCapability(t *testing.T) {
	w := New(TypeWeather, capability.NewCatalog())
	model := llmtest.NewFunc(func(call llmtest.Call) llmtest.Step {
		if strings.Contains(call.Prompt(), prompts.JudgeHeader) {
			return llmtest.Text("0")
		}
		return llmtest.Text("I cannot look that up.")
	})

	res := newRunner(model).RunTask(context.Background(), TaskInput{Task: "weather forecast", Context: testTrip, Worker: w})

	require.Len(t, res.ToolResults, 1)
	assert.Equal(t, FallbackToolName, res.ToolResults[0].Name)
	assert.False(t, res.ToolResults[0].Success)
	assert.Contains(t, res.ToolResults[0].Content, "unavailable")
	assert.True(t, res.FallbackSearched)
	assert.False(t, res.Success)
}

func TestRunTask_GuidedRoundSatisfiesJudge(t *testing.T) {
	var hits int32
	w := New(TypeMap, capability.NewCatalog(counting("route", "20min", &hits)))
	var judged int32
	model := llmtest.NewFunc(func(call llmtest.Call) llmtest.Step {
		prompt := call.Prompt()
		switch {
		case strings.Contains(prompt, prompts.JudgeHeader):
			if atomic.AddInt32(&judged, 1) == 1 {
				return llmtest.Text(`{"completed": false, "reason": "no travel time"}`)
			}
			return llmtest.Text(`{"completed": true}`)
		case strings.Contains(prompt, prompts.GuidanceHeader) && !strings.Contains(prompt, "[route]"):
			return llmtest.Tools(llmtest.ToolCall("", "route", `{"query":"hotel to lake"}`))
		default:
			return llmtest.Text("done")
		}
	})

	res := newRunner(model).RunTask(context.Background(), TaskInput{Task: "route from hotel", Context: testTrip, Worker: w})
	assert.True(t, res.Completed)
	assert.False(t, res.FallbackSearched)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.True(t, res.Success)
}

func TestRunTask_JudgeFailureCountsAsCompleted(t *testing.T) {
	var hits int32
	w := New(TypeSearch, capability.NewCatalog(counting("web_search", "web", &hits)))
	model := llmtest.NewFunc(func(call llmtest.Call) llmtest.Step {
		prompt := call.Prompt()
		switch {
		case strings.Contains(prompt, prompts.JudgeHeader):
			return llmtest.Fail(errors.New("judge down"))
		case strings.Contains(prompt, "[web_search]"):
			return llmtest.Text("summary")
		default:
			return llmtest.Tools(llmtest.ToolCall("", "web_search", `{"query":"food"}`))
		}
	})

	res := newRunner(model).RunTask(context.Background(), TaskInput{Task: "local food", Context: testTrip, Worker: w})
	assert.True(t, res.Completed)
	assert.False(t, res.FallbackSearched)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestRunTask_SummaryTaskOffersNoTools(t *testing.T) {
	var hits int32
	w := New(TypeHotel, capability.NewCatalog(counting("hotel_lookup", "rooms", &hits)))
	model := llmtest.NewScripted(llmtest.Text("Hotel A is cheaper than Hotel B."))

	prior := []capability.Result{
		{CallID: "1", Name: "hotel_lookup", Content: "Hotel A 300", Success: true},
		{CallID: "2", Name: "hotel_lookup", Content: "Hotel B 450", Success: true},
	}
	res := newRunner(model).RunTask(context.Background(), TaskInput{
		Task: "compare hotels", Context: testTrip, Worker: w, PriorResults: prior,
	})

	assert.True(t, res.IsSummaryTask)
	assert.True(t, res.Success)
	assert.Empty(t, res.ToolResults)
	assert.Equal(t, "Hotel A is cheaper than Hotel B.", res.FinalText)
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))

	calls := model.Calls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].Options.Tools)
	prompt := calls[0].Prompt()
	assert.Contains(t, prompt, "1. [hotel_lookup] Hotel A 300")
	assert.Contains(t, prompt, "2. [hotel_lookup] Hotel B 450")
}

func TestRunTask_SummaryTaskEmptyTextFails(t *testing.T) {
	w := New(TypeSearch, capability.NewCatalog())
	model := llmtest.NewScripted(llmtest.Text("   "))
	res := newRunner(model).RunTask(context.Background(), TaskInput{
		Task: "summarize", Context: testTrip, Worker: w,
		PriorResults: []capability.Result{{Name: "x", Content: "y"}},
	})
	assert.True(t, res.IsSummaryTask)
	assert.False(t, res.Success)
}

func TestRunTask_OracleDownIsUnsuccessful(t *testing.T) {
	var hits int32
	w := New(TypeSearch, capability.NewCatalog(counting("web_search", "web", &hits)))
	model := llmtest.NewFunc(func(call llmtest.Call) llmtest.Step {
		if strings.Contains(call.Prompt(), prompts.JudgeHeader) {
			return llmtest.Text("1")
		}
		return llmtest.Fail(errors.New("boom"))
	})
	res := newRunner(model).RunTask(context.Background(), TaskInput{Task: "anything", Context: testTrip, Worker: w})
	assert.False(t, res.Success)
	assert.Empty(t, res.ToolResults)
}

func TestRunTask_NilWorker(t *testing.T) {
	res := newRunner(llmtest.NewScripted()).RunTask(context.Background(), TaskInput{Task: "x"})
	assert.False(t, res.Success)
}
