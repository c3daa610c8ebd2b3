package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-agent/internal/llmtypes/llmtest"
	"trip-agent/pkg/capability"
	"trip-agent/pkg/events"
	"trip-agent/pkg/logger"
)

func tool(name string) capability.Capability {
	return capability.Capability{Name: name, Description: name}
}

func testRegistry() *Registry {
	return NewRegistry(
		New(TypeTransport, capability.NewCatalog(tool("search_trains"))),
		New(TypeHotel, capability.NewCatalog(tool("hotel_lookup"))),
		New(TypeSearch, capability.NewCatalog(tool("web_search"))),
	)
}

func TestSelector_Select(t *testing.T) {
	tests := []struct {
		name       string
		task       string
		reply      llmtest.Step
		wantWorker string
		wantMethod string
	}{
		{
			name:       "oracle decision embedded in commentary",
			task:       "book something",
			reply:      llmtest.Text("Sure! ```json\n{\"selected_worker\": \"hotel\", \"reason\": \"lodging\"}\n```"),
			wantWorker: TypeHotel,
			wantMethod: "oracle",
		},
		{
			name:       "unparseable decision falls back to classifier",
			task:       "find train tickets from Beijing",
			reply:      llmtest.Text("the transport worker looks best"),
			wantWorker: TypeTransport,
			wantMethod: "classifier",
		},
		{
			name:       "oracle failure falls back to classifier",
			task:       "查询杭州的酒店",
			reply:      llmtest.Fail(errors.New("down")),
			wantWorker: TypeHotel,
			wantMethod: "classifier",
		},
		{
			name:       "unknown worker falls back to default",
			task:       "anything",
			reply:      llmtest.Text(`{"selected_worker": "astrology"}`),
			wantWorker: TypeSearch,
			wantMethod: "default",
		},
		{
			name:       "no keyword match falls back to default",
			task:       "tell me a joke",
			reply:      llmtest.Text("no idea"),
			wantWorker: TypeSearch,
			wantMethod: "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen []events.Event
			emitter := events.EmitterFunc(func(_ context.Context, e events.Event) { seen = append(seen, e) })
			sel := NewSelector(newClient(llmtest.NewScripted(tt.reply)), testRegistry(), logger.CreateTestLogger(), emitter)

			got := sel.Select(context.Background(), tt.task)
			require.NotNil(t, got.Worker)
			assert.Equal(t, tt.wantWorker, got.Worker.Name)
			assert.Equal(t, tt.wantMethod, got.Method)
			require.Len(t, seen, 1)
			assert.Equal(t, events.WorkerSelected, seen[0].Type)
		})
	}
}

func TestSelector_SingleWorkerSkipsOracle(t *testing.T) {
	model := llmtest.NewScripted()
	reg := NewRegistry(New(TypeWeather, capability.NewCatalog(tool("forecast"))))
	got := NewSelector(newClient(model), reg, logger.CreateTestLogger(), nil).Select(context.Background(), "weather")
	require.NotNil(t, got.Worker)
	assert.Equal(t, TypeWeather, got.Worker.Name)
	assert.Empty(t, model.Calls())
}

func TestSelector_EmptyRegistry(t *testing.T) {
	got := NewSelector(newClient(llmtest.NewScripted()), NewRegistry(), logger.CreateTestLogger(), nil).Select(context.Background(), "x")
	assert.Nil(t, got.Worker)
}

func TestParseDecision(t *testing.T) {
	d, ok := ParseDecision(`I pick {"selected_worker": " map ", "reason": "routes"} because routes.`)
	require.True(t, ok)
	assert.Equal(t, "map", d.SelectedWorker)
	assert.Equal(t, "routes", d.Reason)

	_, ok = ParseDecision(`{"selected_worker": ""}`)
	assert.False(t, ok)
	_, ok = ParseDecision("map")
	assert.False(t, ok)
}

func TestClassify(t *testing.T) {
	tests := map[string]string{
		"Find high speed train tickets":   TypeTransport,
		"查询北京到杭州的机票":                      TypeTransport,
		"Recommend a hotel near the lake": TypeHotel,
		"三天的天气预报":                         TypeWeather,
		"distance between the two parks":  TypeMap,
		"save the itinerary to a file":    TypeFile,
		"best local restaurants":          TypeSearch,
		"hello":                           "",
	}
	for task, want := range tests {
		assert.Equal(t, want, Classify(task), task)
	}
}
