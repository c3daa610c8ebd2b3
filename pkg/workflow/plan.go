package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"trip-agent/pkg/executor"
)

// GeneralCategory collects tasks that arrive without a category.
const GeneralCategory = "general"

// TaskCategory is one group of tasks in a plan.
type TaskCategory = executor.Category

// Plan is the canonical plan shape every component works with.
type Plan struct {
	Overview   []string       `json:"overview"`
	Categories []TaskCategory `json:"categories"`
}

// TaskCount counts query and summary tasks.
func (p *Plan) TaskCount() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, c := range p.Categories {
		n += len(c.Tasks)
		if c.SummaryTask != "" {
			n++
		}
	}
	return n
}

// Lines renders the plan as flat lines, overview first.
func (p *Plan) Lines() []string {
	if p == nil {
		return nil
	}
	lines := append([]string(nil), p.Overview...)
	for _, c := range p.Categories {
		for _, t := range c.Tasks {
			lines = append(lines, c.Category+": "+t)
		}
		if c.SummaryTask != "" {
			lines = append(lines, c.Category+" (summary): "+c.SummaryTask)
		}
	}
	return lines
}

// String renders the plan for prompts.
func (p *Plan) String() string {
	if p == nil {
		return "(no plan)"
	}
	var sb strings.Builder
	for _, o := range p.Overview {
		fmt.Fprintf(&sb, "- %s\n", o)
	}
	sb.WriteString(executor.Describe(p.Categories))
	return sb.String()
}

// PlanVariant is one of the shapes the model may answer a plan with:
// PlanV1 or PlanV2.
type PlanVariant interface {
	planVariant()
}

// PlanV1 is the legacy flat list of steps.
type PlanV1 []string

// PlanV2 is the structured plan. Flat holds actionable tasks that arrived as
// bare strings instead of category objects.
type PlanV2 struct {
	Overview   []string
	Categories []TaskCategory
	Flat       []string
}

func (PlanV1) planVariant() {}
func (PlanV2) planVariant() {}

// RawPlan is a plan as decoded from model output, before normalization.
type RawPlan struct {
	Variant PlanVariant
}

// UnmarshalJSON accepts a list of strings or an object with overview and
// actionable_tasks, where each task is a category object or a string.
func (r *RawPlan) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		r.Variant = nil
		return nil
	}
	switch data[0] {
	case '[':
		var steps []string
		if err := json.Unmarshal(data, &steps); err != nil {
			return fmt.Errorf("plan list: %w", err)
		}
		r.Variant = PlanV1(steps)
		return nil
	case '{':
		var obj struct {
			Overview        stringList        `json:"overview"`
			ActionableTasks []json.RawMessage `json:"actionable_tasks"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("plan object: %w", err)
		}
		v2 := PlanV2{Overview: obj.Overview}
		for _, raw := range obj.ActionableTasks {
			raw = bytes.TrimSpace(raw)
			if len(raw) > 0 && raw[0] == '"' {
				var s string
				if err := json.Unmarshal(raw, &s); err != nil {
					return fmt.Errorf("plan task: %w", err)
				}
				v2.Flat = append(v2.Flat, s)
				continue
			}
			var c struct {
				Category    string     `json:"category"`
				Tasks       stringList `json:"tasks"`
				SummaryTask *string    `json:"summary_task"`
			}
			if err := json.Unmarshal(raw, &c); err != nil {
				return fmt.Errorf("plan category: %w", err)
			}
			cat := TaskCategory{Category: c.Category, Tasks: c.Tasks}
			if c.SummaryTask != nil {
				cat.SummaryTask = *c.SummaryTask
			}
			v2.Categories = append(v2.Categories, cat)
		}
		r.Variant = v2
		return nil
	default:
		return fmt.Errorf("plan must be a list or an object, got %q", string(data[:1]))
	}
}

// JSONSchema advertises the structured shape and still admits the flat list.
func (RawPlan) JSONSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	category := r.Reflect(&TaskCategory{})
	category.Version = ""

	props := jsonschema.NewProperties()
	props.Set("overview", &jsonschema.Schema{
		Type:        "array",
		Items:       &jsonschema.Schema{Type: "string"},
		Description: "short summary of the plan",
	})
	props.Set("actionable_tasks", &jsonschema.Schema{
		Type:        "array",
		Items:       &jsonschema.Schema{OneOf: []*jsonschema.Schema{category, {Type: "string"}}},
		Description: "task categories to execute in order",
	})
	return &jsonschema.Schema{OneOf: []*jsonschema.Schema{
		{Type: "object", Properties: props, Required: []string{"actionable_tasks"}},
		{Type: "array", Items: &jsonschema.Schema{Type: "string"}, Description: "legacy list of plan steps"},
	}}
}

// NormalizePlan converts any plan variant into the canonical shape. Blank
// entries are dropped, bare task strings land in the general category and
// categories without a name are called general too.
func NormalizePlan(raw RawPlan) Plan {
	var p Plan
	switch v := raw.Variant.(type) {
	case PlanV1:
		steps := cleanStrings(v)
		p.Overview = steps
		if len(steps) > 0 {
			p.Categories = []TaskCategory{{Category: GeneralCategory, Tasks: steps}}
		}
	case PlanV2:
		p.Overview = cleanStrings(v.Overview)
		for _, c := range v.Categories {
			name := strings.TrimSpace(c.Category)
			if name == "" {
				name = GeneralCategory
			}
			cat := TaskCategory{Category: name, Tasks: cleanStrings(c.Tasks), SummaryTask: strings.TrimSpace(c.SummaryTask)}
			if len(cat.Tasks) == 0 && cat.SummaryTask == "" {
				continue
			}
			p.Categories = append(p.Categories, cat)
		}
		if flat := cleanStrings(v.Flat); len(flat) > 0 {
			p.Categories = append(p.Categories, TaskCategory{Category: GeneralCategory, Tasks: flat})
		}
	}
	if p.Overview == nil {
		p.Overview = []string{}
	}
	if p.Categories == nil {
		p.Categories = []TaskCategory{}
	}
	return p
}

func cleanStrings(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// stringList decodes either a string or a list of strings.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = stringList{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*l = list
	return nil
}

// PlanDraft is the structured answer of the Plan stage.
type PlanDraft struct {
	Plan                RawPlan              `json:"plan" jsonschema:"required"`
	NeedIntervention    bool                 `json:"need_intervention" jsonschema:"description=true when a question must be asked before planning"`
	InterventionRequest *InterventionRequest `json:"intervention_request,omitempty"`
}

// ReplanDraft is the structured answer of the Replan stage.
type ReplanDraft struct {
	Replan              RawPlan              `json:"replan" jsonschema:"required"`
	AmusementInfo       *Itinerary           `json:"amusement_info,omitempty"`
	NeedIntervention    bool                 `json:"need_intervention"`
	InterventionRequest *InterventionRequest `json:"intervention_request,omitempty"`
}
