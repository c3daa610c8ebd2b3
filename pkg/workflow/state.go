// Package workflow implements the interruptible Plan → Execute → Replan →
// Observe state machine together with its pause/resume protocol.
package workflow

import (
	"fmt"
	"strings"
	"time"

	"trip-agent/pkg/history"
	"trip-agent/pkg/prompts"
)

// Status is the coarse lifecycle of a session.
type Status string

const (
	StatusRunning     Status = "running"
	StatusWaitingUser Status = "waiting_user"
	StatusCompleted   Status = "completed"
)

// Stage names which stage asked the outstanding question.
type Stage string

const (
	StageNone   Stage = ""
	StagePlan   Stage = "plan"
	StageReplan Stage = "replan"
)

// QuestionType is how the traveller is expected to answer.
type QuestionType string

const (
	QuestionText           QuestionType = "text"
	QuestionSingleChoice   QuestionType = "single_choice"
	QuestionMultipleChoice QuestionType = "multiple_choice"
)

// TripRequest is the immutable input of a session.
type TripRequest struct {
	Origin      string `json:"origin,omitempty"`
	Destination string `json:"destination"`
	Date        string `json:"date,omitempty"`
	Days        int    `json:"days,omitempty"`
	People      int    `json:"people,omitempty"`
	Budget      string `json:"budget,omitempty"`
	Preferences string `json:"preferences,omitempty"`
}

// Trip converts the request into the prompt context.
func (t TripRequest) Trip() prompts.Trip {
	return prompts.Trip{
		Origin:      t.Origin,
		Destination: t.Destination,
		Date:        t.Date,
		Days:        t.Days,
		People:      t.People,
		Budget:      t.Budget,
		Preferences: t.Preferences,
	}
}

// Option is one choice of a choice question.
type Option struct {
	ID   string `json:"id" jsonschema:"description=option id"`
	Text string `json:"text" jsonschema:"description=option text shown to the traveller"`
}

// InterventionRequest is the question put to the traveller.
type InterventionRequest struct {
	Stage        Stage        `json:"stage" jsonschema:"enum=plan,enum=replan"`
	Message      string       `json:"message" jsonschema:"description=the question shown to the traveller"`
	QuestionType QuestionType `json:"question_type" jsonschema:"enum=text,enum=single_choice,enum=multiple_choice"`
	Options      []Option     `json:"options,omitempty" jsonschema:"description=choices for choice questions only"`
	CurrentPlan  []string     `json:"current_plan,omitempty" jsonschema:"description=the current plan for reference"`
}

// InterventionResponse is the traveller's answer.
type InterventionResponse struct {
	TextInput       string   `json:"text_input,omitempty"`
	SelectedOptions []string `json:"selected_options,omitempty"`
}

// Empty reports whether the response carries nothing.
func (r *InterventionResponse) Empty() bool {
	return r == nil || (strings.TrimSpace(r.TextInput) == "" && len(r.SelectedOptions) == 0)
}

// AskedQuestion is one entry of the question log. Answer stays nil until
// the traveller responds.
type AskedQuestion struct {
	Question     string       `json:"question"`
	QuestionType QuestionType `json:"question_type"`
	Stage        Stage        `json:"stage"`
	Options      []Option     `json:"options,omitempty"`
	Answer       *string      `json:"answer"`
	AskedAt      time.Time    `json:"asked_at"`
	AnsweredAt   *time.Time   `json:"answered_at,omitempty"`
}

// PendingQuestion points at the one unanswered entry of the log.
type PendingQuestion struct {
	Index int   `json:"index"`
	Stage Stage `json:"stage"`
}

// CollectedInfo is the question log plus its outstanding slot.
type CollectedInfo struct {
	AskedQuestions []AskedQuestion  `json:"asked_questions"`
	Pending        *PendingQuestion `json:"pending,omitempty"`
}

// Observation is the review verdict over an itinerary.
type Observation struct {
	Satisfied    bool     `json:"satisfied"`
	MissingItems []string `json:"missing_items,omitempty"`
	Suggestions  []string `json:"suggestions,omitempty"`
}

// State is the single mutable record threaded through every node. It is
// persisted after every transition.
type State struct {
	SessionID   string      `json:"session_id"`
	Status      Status      `json:"status"`
	CurrentNode Node        `json:"current_node"`
	Iteration   int         `json:"iteration"`
	Version     int64       `json:"version"`
	Trip        TripRequest `json:"trip"`

	Messages []history.Message `json:"messages"`

	Plan          *Plan      `json:"plan,omitempty"`
	Replan        *Plan      `json:"replan,omitempty"`
	AmusementInfo *Itinerary `json:"amusement_info,omitempty"`

	NeedIntervention     bool                  `json:"need_intervention"`
	InterventionStage    Stage                 `json:"intervention_stage"`
	InterventionRequest  *InterventionRequest  `json:"intervention_request,omitempty"`
	InterventionResponse *InterventionResponse `json:"intervention_response,omitempty"`
	InterventionCount    int                   `json:"intervention_count"`
	CollectedInfo        CollectedInfo         `json:"collected_info"`

	ExecutedTasks     []string     `json:"executed_tasks"`
	CurrentTaskIndex  int          `json:"current_task_index"`
	ObservationResult *Observation `json:"observation_result,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewState creates the state of a fresh session.
func NewState(sessionID string, trip TripRequest) *State {
	now := time.Now().UTC()
	return &State{
		SessionID:   sessionID,
		Status:      StatusRunning,
		CurrentNode: NodeResumeRouter,
		Trip:        trip,
		Messages:    []history.Message{history.Human(trip.describe())},
		CollectedInfo: CollectedInfo{
			AskedQuestions: []AskedQuestion{},
		},
		ExecutedTasks: []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (t TripRequest) describe() string {
	var parts []string
	if t.Origin != "" {
		parts = append(parts, "from "+t.Origin)
	}
	parts = append(parts, "to "+t.Destination)
	if t.Date != "" {
		parts = append(parts, "on "+t.Date)
	}
	if t.Days > 0 {
		parts = append(parts, fmt.Sprintf("for %d days", t.Days))
	}
	if t.People > 0 {
		parts = append(parts, fmt.Sprintf("%d people", t.People))
	}
	if t.Budget != "" {
		parts = append(parts, "budget "+t.Budget)
	}
	s := "Plan a trip " + strings.Join(parts, ", ")
	if t.Preferences != "" {
		s += ". Preferences: " + t.Preferences
	}
	return s
}

// CheckIntervention verifies that the intervention fields agree with each
// other.
func (s *State) CheckIntervention() error {
	switch s.InterventionStage {
	case StageNone, StagePlan, StageReplan:
	default:
		return fmt.Errorf("unknown intervention stage %q", s.InterventionStage)
	}
	if s.NeedIntervention != (s.InterventionStage != StageNone) {
		return fmt.Errorf("need_intervention=%v but stage=%q", s.NeedIntervention, s.InterventionStage)
	}
	if s.NeedIntervention != (s.InterventionRequest != nil) {
		return fmt.Errorf("need_intervention=%v but request present=%v", s.NeedIntervention, s.InterventionRequest != nil)
	}
	if p := s.CollectedInfo.Pending; p != nil {
		if p.Index < 0 || p.Index >= len(s.CollectedInfo.AskedQuestions) {
			return fmt.Errorf("pending question index %d out of range", p.Index)
		}
		if s.CollectedInfo.AskedQuestions[p.Index].Answer != nil {
			return fmt.Errorf("pending question %d is already answered", p.Index)
		}
	}
	return nil
}

// clearIntervention resets the one-slot question protocol.
func (s *State) clearIntervention() {
	s.NeedIntervention = false
	s.InterventionStage = StageNone
	s.InterventionRequest = nil
}

// requestIntervention opens a question for stage. A question still pending
// from an earlier turn is closed as unanswered first so that the log only
// ever has one open entry.
func (s *State) requestIntervention(stage Stage, req InterventionRequest) {
	if s.CollectedInfo.Pending != nil {
		s.answerPending(noAnswer)
	}
	req.Stage = stage
	if req.QuestionType == "" {
		req.QuestionType = QuestionText
	}
	if len(req.Options) == 0 && req.QuestionType != QuestionText {
		req.QuestionType = QuestionText
	}

	s.NeedIntervention = true
	s.InterventionStage = stage
	s.InterventionRequest = &req
	s.InterventionCount++

	s.CollectedInfo.AskedQuestions = append(s.CollectedInfo.AskedQuestions, AskedQuestion{
		Question:     req.Message,
		QuestionType: req.QuestionType,
		Stage:        stage,
		Options:      req.Options,
		AskedAt:      time.Now().UTC(),
	})
	s.CollectedInfo.Pending = &PendingQuestion{Index: len(s.CollectedInfo.AskedQuestions) - 1, Stage: stage}
	s.Messages = append(s.Messages, history.Assistant(req.Message))
}

const noAnswer = "(no answer)"

// answerPending fills the outstanding question and frees the slot. It
// returns the question text, empty when nothing was pending.
func (s *State) answerPending(answer string) string {
	p := s.CollectedInfo.Pending
	if p == nil {
		return ""
	}
	s.CollectedInfo.Pending = nil
	if p.Index < 0 || p.Index >= len(s.CollectedInfo.AskedQuestions) {
		return ""
	}
	now := time.Now().UTC()
	q := &s.CollectedInfo.AskedQuestions[p.Index]
	q.Answer = &answer
	q.AnsweredAt = &now
	return q.Question
}

// consumeResponse merges a pending response into the question log and the
// conversation, then clears it. It reports whether there was one.
func (s *State) consumeResponse() (question, answer string, ok bool) {
	resp := s.InterventionResponse
	if resp == nil {
		return "", "", false
	}
	s.InterventionResponse = nil

	answer = s.renderAnswer(resp)
	question = s.answerPending(answer)
	if question != "" {
		s.Messages = append(s.Messages, history.Human(fmt.Sprintf("Answer to %q: %s", question, answer)))
	} else {
		s.Messages = append(s.Messages, history.Human(answer))
	}
	return question, answer, true
}

// renderAnswer turns selected option ids into their texts and joins them
// with the free text input.
func (s *State) renderAnswer(resp *InterventionResponse) string {
	var options []Option
	if p := s.CollectedInfo.Pending; p != nil && p.Index >= 0 && p.Index < len(s.CollectedInfo.AskedQuestions) {
		options = s.CollectedInfo.AskedQuestions[p.Index].Options
	}
	var parts []string
	for _, id := range resp.SelectedOptions {
		text := id
		for _, o := range options {
			if o.ID == id {
				text = o.Text
				break
			}
		}
		parts = append(parts, text)
	}
	if t := strings.TrimSpace(resp.TextInput); t != "" {
		parts = append(parts, t)
	}
	if len(parts) == 0 {
		return noAnswer
	}
	return strings.Join(parts, "; ")
}

// answers lists the answered questions as "question -> answer" lines.
func (s *State) answers() []string {
	var out []string
	for _, q := range s.CollectedInfo.AskedQuestions {
		if q.Answer == nil || *q.Answer == noAnswer {
			continue
		}
		out = append(out, fmt.Sprintf("%s -> %s", q.Question, *q.Answer))
	}
	return out
}
