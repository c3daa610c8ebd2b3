// Package prompts holds the functional prompt text sent to the reasoning
// model. Every prompt opens with a distinct header line so that callers and
// scripted test models can tell the stages apart.
package prompts

import (
	"fmt"
	"strings"
)

const (
	PlanHeader        = "## Task: travel plan"
	ReplanHeader      = "## Task: refine plan"
	ObserveHeader     = "## Task: review itinerary"
	JudgeHeader       = "## Task: completion check"
	DispatchHeader    = "## Task: choose worker"
	SummarizeHeader   = "## Task: summarize conversation"
	WorkerHeader      = "## Task: worker"
	SynthesisHeader   = "## Task: synthesize results"
	GuidanceHeader    = "## Guidance: task incomplete"
	SummaryTurnPrefix = "Summary of earlier conversation:"
)

// Trip is the fixed trip context every prompt repeats.
type Trip struct {
	Origin      string
	Destination string
	Date        string
	Days        int
	People      int
	Budget      string
	Preferences string
}

func (t Trip) block() string {
	var sb strings.Builder
	sb.WriteString("**Trip**:\n")
	fmt.Fprintf(&sb, "- Origin: %s\n", orUnknown(t.Origin))
	fmt.Fprintf(&sb, "- Destination: %s\n", orUnknown(t.Destination))
	fmt.Fprintf(&sb, "- Date: %s\n", orUnknown(t.Date))
	fmt.Fprintf(&sb, "- Days: %s\n", intOrUnknown(t.Days))
	fmt.Fprintf(&sb, "- People: %s\n", intOrUnknown(t.People))
	fmt.Fprintf(&sb, "- Budget: %s\n", orUnknown(t.Budget))
	fmt.Fprintf(&sb, "- Preferences: %s\n", orUnknown(t.Preferences))
	return sb.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

func intOrUnknown(n int) string {
	if n <= 0 {
		return "unknown"
	}
	return fmt.Sprintf("%d", n)
}

// PlanInput feeds the Plan stage.
type PlanInput struct {
	Trip Trip
	// Answers lists the questions already answered by the user.
	Answers []string
	// Critique is the previous review's findings, if the loop came back.
	MissingItems []string
	Suggestions  []string
	// Conversation is the rendered, already compacted conversation log.
	Conversation []string
	// AllowQuestion is false once the session reached its question cap.
	AllowQuestion bool
}

func Plan(in PlanInput) string {
	var sb strings.Builder
	sb.WriteString(PlanHeader + "\n\n")
	sb.WriteString("Produce a travel plan as task categories. Each category lists independent query tasks and an optional summary_task that synthesizes their results.\n\n")
	sb.WriteString(in.Trip.block())
	writeList(&sb, "Answers from the traveller", in.Answers)
	writeList(&sb, "Missing from the previous itinerary", in.MissingItems)
	writeList(&sb, "Reviewer suggestions", in.Suggestions)
	writeList(&sb, "Conversation so far", in.Conversation)
	sb.WriteString("\n")
	if in.AllowQuestion {
		sb.WriteString("If essential information is missing, set need_intervention=true and fill intervention_request with one question. Otherwise leave need_intervention=false.\n")
	} else {
		sb.WriteString("Do not ask the traveller anything. Plan with the information available and set need_intervention=false.\n")
	}
	return sb.String()
}

// ReplanInput feeds the Replan stage.
type ReplanInput struct {
	Trip          Trip
	Plan          string
	ToolResults   []string
	Answers       []string
	Conversation  []string
	AllowQuestion bool
}

func Replan(in ReplanInput) string {
	var sb strings.Builder
	sb.WriteString(ReplanHeader + "\n\n")
	sb.WriteString("Refine the plan using the tool results below and produce the final structured itinerary in amusement_info.\n\n")
	sb.WriteString(in.Trip.block())
	sb.WriteString("\n**Current plan**:\n")
	sb.WriteString(in.Plan)
	sb.WriteString("\n")
	writeList(&sb, "Tool results", in.ToolResults)
	writeList(&sb, "Answers from the traveller", in.Answers)
	writeList(&sb, "Conversation so far", in.Conversation)
	sb.WriteString("\n")
	if in.AllowQuestion {
		sb.WriteString("If a decision only the traveller can make blocks the itinerary, set need_intervention=true with one question.\n")
	} else {
		sb.WriteString("Do not ask the traveller anything. Set need_intervention=false.\n")
	}
	return sb.String()
}

func Observe(trip Trip, itinerary string) string {
	var sb strings.Builder
	sb.WriteString(ObserveHeader + "\n\n")
	sb.WriteString(trip.block())
	sb.WriteString("\n**Itinerary**:\n")
	sb.WriteString(itinerary)
	sb.WriteString("\n\nIf the itinerary fully answers the trip request reply with exactly 1.\n")
	sb.WriteString(`Otherwise reply with JSON {"missing_items": [...], "suggestions": [...]}.` + "\n")
	return sb.String()
}

// Judge asks whether a query task gathered what it needed.
func Judge(task string, trip Trip, results []string) string {
	var sb strings.Builder
	sb.WriteString(JudgeHeader + "\n\n")
	fmt.Fprintf(&sb, "**Task**: %s\n\n", task)
	sb.WriteString(trip.block())
	sb.WriteString("\n**Tool results so far**:\n")
	if len(results) == 0 {
		sb.WriteString("(no tool results yet)\n")
	}
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, r)
	}
	sb.WriteString("\nDecide whether every piece of information the task asks for is present and valid.\n")
	sb.WriteString(`Reply with JSON {"completed": true|false, "reason": "what is still missing"}.` + "\n")
	return sb.String()
}

// WorkerOption is one candidate in a dispatch decision.
type WorkerOption struct {
	Name        string
	Description string
	Tools       []string
}

func Dispatch(task string, workers []WorkerOption) string {
	var sb strings.Builder
	sb.WriteString(DispatchHeader + "\n\n")
	fmt.Fprintf(&sb, "**Task**: %s\n\n**Workers**:\n", task)
	for _, w := range workers {
		fmt.Fprintf(&sb, "- %s: %s (tools: %s)\n", w.Name, w.Description, strings.Join(w.Tools, ", "))
	}
	sb.WriteString("\nReply with JSON " + `{"selected_worker": "<name>", "reason": "..."}` + ".\n")
	return sb.String()
}

func Summarize(transcript string) string {
	return SummarizeHeader + "\n\nSummarize the conversation below in a few sentences. Keep every decision, constraint and answer the traveller gave.\n\n" + transcript
}

// WorkerTask is the opening prompt of a query task.
func WorkerTask(worker, description, task string, trip Trip, tools []string) string {
	var sb strings.Builder
	sb.WriteString(WorkerHeader + "\n\n")
	fmt.Fprintf(&sb, "You are the %s worker, responsible for %s.\n\n", worker, description)
	fmt.Fprintf(&sb, "**Task**: %s\n\n", task)
	sb.WriteString(trip.block())
	writeList(&sb, "Available tools", tools)
	sb.WriteString("\nUse the tools to gather the information the task needs. Give complete arguments and be specific in search queries: name the place, the date and what you want to know.\n")
	return sb.String()
}

// Synthesis is the prompt of a summary task. prior is already rendered as
// numbered "[tool] result" lines.
func Synthesis(worker, description, task string, trip Trip, prior []string) string {
	var sb strings.Builder
	sb.WriteString(SynthesisHeader + "\n\n")
	fmt.Fprintf(&sb, "You are the %s worker, responsible for %s.\n\n", worker, description)
	fmt.Fprintf(&sb, "**Task**: %s\n\n", task)
	sb.WriteString(trip.block())
	sb.WriteString("\nThis is a summary task. Do not call any tools. Analyse, compare and summarize the results of the earlier queries below and answer in plain text.\n")
	sb.WriteString("\n**Earlier query results**:\n")
	for _, p := range prior {
		sb.WriteString(p)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Guidance is appended before an extra round after a failed completion check.
func Guidance(reason string) string {
	return GuidanceHeader + "\n\nThe task is not complete yet: " + orUnknown(reason) + "\nCall the tools again to fill exactly this gap."
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n**%s**:\n", title)
	for _, it := range items {
		fmt.Fprintf(sb, "- %s\n", it)
	}
}
