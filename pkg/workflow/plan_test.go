package workflow

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-agent/pkg/oracle"
)

func TestNormalizePlan(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Plan
	}{
		{
			name: "legacy list",
			raw:  `["book train", " ", "find hotel"]`,
			want: Plan{
				Overview:   []string{"book train", "find hotel"},
				Categories: []TaskCategory{{Category: GeneralCategory, Tasks: []string{"book train", "find hotel"}}},
			},
		},
		{
			name: "structured categories",
			raw:  `{"overview": ["two days"], "actionable_tasks": [{"category": "transport", "tasks": ["trains"], "summary_task": "compare"}, {"category": "lodging", "tasks": "hotels", "summary_task": null}]}`,
			want: Plan{
				Overview: []string{"two days"},
				Categories: []TaskCategory{
					{Category: "transport", Tasks: []string{"trains"}, SummaryTask: "compare"},
					{Category: "lodging", Tasks: []string{"hotels"}},
				},
			},
		},
		{
			name: "flat actionable tasks",
			raw:  `{"overview": "quick trip", "actionable_tasks": ["weather", "food"]}`,
			want: Plan{
				Overview:   []string{"quick trip"},
				Categories: []TaskCategory{{Category: GeneralCategory, Tasks: []string{"weather", "food"}}},
			},
		},
		{
			name: "mixed tasks and unnamed category",
			raw:  `{"actionable_tasks": [{"tasks": ["museums"]}, "weather", {"category": "empty", "tasks": []}]}`,
			want: Plan{
				Overview: []string{},
				Categories: []TaskCategory{
					{Category: GeneralCategory, Tasks: []string{"museums"}},
					{Category: GeneralCategory, Tasks: []string{"weather"}},
				},
			},
		},
		{
			name: "null",
			raw:  `null`,
			want: Plan{Overview: []string{}, Categories: []TaskCategory{}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw RawPlan
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &raw))
			if diff := cmp.Diff(tt.want, NormalizePlan(raw)); diff != "" {
				t.Errorf("NormalizePlan() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRawPlanRejectsScalars(t *testing.T) {
	var raw RawPlan
	assert.Error(t, json.Unmarshal([]byte(`42`), &raw))
	assert.Error(t, json.Unmarshal([]byte(`{"actionable_tasks": [7]}`), &raw))
}

func TestPlanDraftFromModelOutput(t *testing.T) {
	content := "Here is the plan:\n```json\n" + readyPlan + "\n```"
	var draft PlanDraft
	require.NoError(t, oracle.DecodeJSON(content, &draft))

	plan := NormalizePlan(draft.Plan)
	assert.False(t, draft.NeedIntervention)
	assert.Equal(t, 2, plan.TaskCount())
	assert.Equal(t, []string{"rail trip", "transport: train tickets", "transport (summary): compare trains"}, plan.Lines())
	assert.Contains(t, plan.String(), "1. transport")
}

func TestPlanDraftSchema(t *testing.T) {
	schema := oracle.SchemaFor(&PlanDraft{})
	assert.Contains(t, schema, "actionable_tasks")
	assert.Contains(t, schema, "summary_task")
	assert.Contains(t, schema, "need_intervention")
}

func TestNilPlanRendering(t *testing.T) {
	var p *Plan
	assert.Equal(t, 0, p.TaskCount())
	assert.Nil(t, p.Lines())
	assert.Equal(t, "(no plan)", p.String())
}
