package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"trip-agent/internal/utils"
	"trip-agent/pkg/capability"
	"trip-agent/pkg/events"
	"trip-agent/pkg/executor"
	"trip-agent/pkg/history"
	"trip-agent/pkg/prompts"
)

const (
	conversationTurnLimit = 300
	toolResultLimit       = 500

	summaryToolName = "summary_task"
)

// resumeRouter picks the stage that consumes an incoming response.
func (e *Engine) resumeRouter(ctx context.Context, s *State) Node {
	hasResponse := s.InterventionResponse != nil
	switch {
	case s.InterventionStage == StageNone:
		if s.NeedIntervention || s.InterventionRequest != nil {
			e.anomaly(ctx, s, "intervention flags set without a stage")
		}
		s.clearIntervention()
		return NodePlan
	case s.InterventionStage == StagePlan && hasResponse:
		s.clearIntervention()
		return NodePlan
	case s.InterventionStage == StageReplan && hasResponse:
		s.clearIntervention()
		return NodeReplan
	default:
		e.anomaly(ctx, s, "stage %q without a response, restarting from plan", s.InterventionStage)
		s.clearIntervention()
		s.answerPending(noAnswer)
		return NodePlan
	}
}

func (e *Engine) plan(ctx context.Context, s *State) Node {
	e.mergeResponse(ctx, s)
	s.Messages = e.oc.Compactor.Compact(ctx, s.Messages, e.oc.Policy.MaxKeptMessages)

	in := prompts.PlanInput{
		Trip:          s.Trip.Trip(),
		Answers:       s.answers(),
		Conversation:  conversation(s.Messages),
		AllowQuestion: e.oc.Policy.AllowQuestion(s.InterventionCount),
	}
	if obs := s.ObservationResult; obs != nil && !obs.Satisfied {
		in.MissingItems = obs.MissingItems
		in.Suggestions = obs.Suggestions
	}

	var draft PlanDraft
	err := e.oc.Oracle.GenerateStructuredPrompt(ctx, "plan", prompts.Plan(in), &draft)

	// every completed Plan starts a new execution cycle
	s.ExecutedTasks = []string{}
	s.CurrentTaskIndex = 0
	s.clearIntervention()

	if err != nil {
		e.oc.Logger.Errorf("❌ Planning failed for session %s, asking the traveller instead: %v", s.SessionID, err)
		s.requestIntervention(StagePlan, InterventionRequest{
			Message:      "I could not put a plan together right now. Could you confirm or add details about your trip (dates, budget, must-see places) so I can try again?",
			QuestionType: QuestionText,
			CurrentPlan:  s.Plan.Lines(),
		})
		return NodeCheckAfterPlan
	}

	plan := NormalizePlan(draft.Plan)
	s.Plan = &plan
	s.Messages = append(s.Messages, history.Assistant("Plan:\n"+plan.String()))
	e.oc.Logger.Infof("📋 Plan ready: %d categories, %d tasks", len(plan.Categories), plan.TaskCount())

	if draft.NeedIntervention {
		e.openQuestion(ctx, s, StagePlan, draft.InterventionRequest, plan.Lines())
	}
	return NodeCheckAfterPlan
}

func (e *Engine) checkAfterPlan(ctx context.Context, s *State) Node {
	if s.NeedIntervention {
		e.announceQuestion(ctx, s)
		return NodeWaitUserPlan
	}
	return NodeExecute
}

func (e *Engine) waitUser(_ context.Context, s *State) Node {
	s.Status = StatusWaitingUser
	e.oc.Logger.Infof("⏸️ Session %s waiting for the traveller (%s stage): %s", s.SessionID, s.InterventionStage, s.question())
	return NodeEnd
}

// execute runs the plan's categories. Only capability results are added to
// the conversation.
func (e *Engine) execute(ctx context.Context, s *State) Node {
	var categories []TaskCategory
	if s.Plan != nil {
		categories = s.Plan.Categories
	}

	exec := e.oc.Executor.WithTaskDone(func(ctx context.Context, o executor.TaskOutcome, executed []string) {
		s.ExecutedTasks = executed
		s.CurrentTaskIndex = len(executed)
		if err := e.save(ctx, s); err != nil {
			e.oc.Logger.Warnf("⚠️ Progress after %s not saved: %v", o.Key, err)
		}
	})
	res := exec.RunCategories(ctx, categories, s.Trip.Trip(), s.ExecutedTasks)

	s.ExecutedTasks = res.ExecutedTasks
	s.CurrentTaskIndex = len(res.ExecutedTasks)
	s.Messages = append(s.Messages, capability.Messages(res.ToolResults)...)
	for _, sum := range res.Summaries {
		s.Messages = append(s.Messages, history.ToolResult("summary::"+sum.Category, summaryToolName, sum.Text))
	}
	return NodeReplan
}

func (e *Engine) replan(ctx context.Context, s *State) Node {
	e.mergeResponse(ctx, s)
	s.Messages = e.oc.Compactor.Compact(ctx, s.Messages, e.oc.Policy.MaxKeptMessages)

	in := prompts.ReplanInput{
		Trip:          s.Trip.Trip(),
		Plan:          s.Plan.String(),
		ToolResults:   toolLines(s.Messages),
		Answers:       s.answers(),
		Conversation:  conversation(s.Messages),
		AllowQuestion: e.oc.Policy.AllowQuestion(s.InterventionCount),
	}

	var draft ReplanDraft
	err := e.oc.Oracle.GenerateStructuredPrompt(ctx, "replan", prompts.Replan(in), &draft)
	s.clearIntervention()

	if err != nil {
		e.oc.Logger.Errorf("❌ Replanning failed for session %s, asking the traveller instead: %v", s.SessionID, err)
		s.requestIntervention(StageReplan, InterventionRequest{
			Message:      "I gathered travel information but could not finish the itinerary. Is there anything you want me to prioritise or change?",
			QuestionType: QuestionText,
			CurrentPlan:  s.Plan.Lines(),
		})
		return NodeCheckAfterReplan
	}

	replan := NormalizePlan(draft.Replan)
	s.Replan = &replan
	if draft.AmusementInfo != nil {
		s.AmusementInfo = draft.AmusementInfo
	}
	s.Messages = append(s.Messages, history.Assistant("Refined plan:\n"+replan.String()))
	e.oc.Logger.Infof("🗺️ Replan ready: itinerary=%v", s.AmusementInfo != nil)

	if draft.NeedIntervention {
		e.openQuestion(ctx, s, StageReplan, draft.InterventionRequest, replan.Lines())
	}
	return NodeCheckAfterReplan
}

func (e *Engine) checkAfterReplan(ctx context.Context, s *State) Node {
	if s.NeedIntervention {
		e.announceQuestion(ctx, s)
		return NodeWaitUserReplan
	}
	return NodeObserve
}

// observe reviews the itinerary. Only an explicit satisfied verdict ends the
// workflow; a failed review counts as needing work.
func (e *Engine) observe(ctx context.Context, s *State) Node {
	var verdict Verdict
	var obs Observation

	text, err := e.oc.Oracle.GenerateText(ctx, "observe", prompts.Observe(s.Trip.Trip(), itineraryText(s)))
	if err != nil {
		e.oc.Logger.Errorf("❌ Itinerary review failed, treating as not satisfied: %v", err)
		verdict, obs = VerdictNeedsWork, unavailableObservation()
	} else {
		verdict, obs = ParseVerdict(text)
	}
	s.ObservationResult = &obs

	if verdict == VerdictSatisfied {
		e.oc.Logger.Infof("✅ Itinerary accepted after %d iterations", s.Iteration+1)
		return NodeEnd
	}

	s.Iteration++
	s.Messages = append(s.Messages, history.Assistant(fmt.Sprintf("Review: missing %s; suggestions %s",
		orNone(obs.MissingItems), orNone(obs.Suggestions))))
	if e.oc.Policy.IterationsExhausted(s.Iteration) {
		e.oc.Logger.Warnf("⚠️ Session %s stopping after %d review iterations", s.SessionID, s.Iteration)
		return NodeEnd
	}
	e.oc.Logger.Infof("🔁 Itinerary needs work (%d missing, %d suggestions), planning again", len(obs.MissingItems), len(obs.Suggestions))
	return NodePlan
}

func (e *Engine) end(_ context.Context, s *State) Node {
	s.Status = StatusCompleted
	s.clearIntervention()
	e.oc.Logger.Infof("🏁 Session %s completed", s.SessionID)
	return NodeEnd
}

// mergeResponse records a pending traveller response as the answer to the
// open question.
func (e *Engine) mergeResponse(ctx context.Context, s *State) {
	question, answer, ok := s.consumeResponse()
	if !ok {
		return
	}
	e.oc.Logger.Infof("💬 Traveller answered %q: %s", question, utils.Truncate(answer, 100))
	events.Emit(ctx, e.oc.Emitter, events.New(events.InterventionAnswered, answer).With("question", question))
}

// openQuestion asks the traveller, unless the session used up its questions.
func (e *Engine) openQuestion(ctx context.Context, s *State, stage Stage, req *InterventionRequest, current []string) {
	if !e.oc.Policy.AllowQuestion(s.InterventionCount) {
		e.oc.Logger.Warnf("⚠️ Question limit %d reached, continuing without asking", e.oc.Policy.MaxInterventions)
		events.Emit(ctx, e.oc.Emitter, events.New(events.InterventionCapped, "question dropped").
			With("stage", string(stage)).With("count", s.InterventionCount))
		return
	}
	r := InterventionRequest{}
	if req != nil {
		r = *req
	}
	if strings.TrimSpace(r.Message) == "" {
		r.Message = "Could you tell me more about what you want from this trip?"
	}
	if len(r.CurrentPlan) == 0 {
		r.CurrentPlan = current
	}
	s.requestIntervention(stage, r)
}

func (e *Engine) announceQuestion(ctx context.Context, s *State) {
	e.oc.Metrics.Intervention(string(s.InterventionStage))
	events.Emit(ctx, e.oc.Emitter, events.New(events.InterventionRequested, s.question()).
		With("stage", string(s.InterventionStage)).With("count", s.InterventionCount))
}

// question returns the open question text, if any.
func (s *State) question() string {
	if s.InterventionRequest == nil {
		return ""
	}
	return s.InterventionRequest.Message
}

// conversation renders the non-tool turns for prompts.
func conversation(messages []history.Message) []string {
	var out []string
	for _, m := range messages {
		if m.IsTool() || strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, fmt.Sprintf("%s: %s", m.Role, utils.Truncate(m.Content, conversationTurnLimit)))
	}
	return out
}

// toolLines renders the tool turns as "[name] content".
func toolLines(messages []history.Message) []string {
	var out []string
	for _, m := range history.ToolTurns(messages) {
		out = append(out, fmt.Sprintf("[%s] %s", m.ToolName, utils.Truncate(m.Content, toolResultLimit)))
	}
	return out
}

func itineraryText(s *State) string {
	if s.AmusementInfo != nil {
		if data, err := json.MarshalIndent(s.AmusementInfo, "", "  "); err == nil {
			return string(data)
		}
	}
	if s.Replan != nil {
		return s.Replan.String()
	}
	return s.Plan.String()
}

func orNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
