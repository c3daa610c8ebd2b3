package worker

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"trip-agent/internal/utils"
	"trip-agent/pkg/capability"
	"trip-agent/pkg/oracle"
	"trip-agent/pkg/prompts"
)

const judgePreviewLen = 200

// Verdict is the completion judge's answer for one task.
type Verdict struct {
	Completed bool   `json:"completed" jsonschema:"description=true when every piece of information the task asks for is present"`
	Reason    string `json:"reason,omitempty" jsonschema:"description=what is still missing"`
}

// Judge decides whether a query task gathered what it needed.
type Judge struct {
	client *oracle.Client
	logger utils.ExtendedLogger
}

// NewJudge creates a judge backed by client.
func NewJudge(client *oracle.Client, logger utils.ExtendedLogger) *Judge {
	return &Judge{client: client, logger: logger}
}

// Check asks the oracle for a verdict. A failed or unreadable judge call
// counts as completed so the task never stalls on the judge itself.
func (j *Judge) Check(ctx context.Context, task string, trip prompts.Trip, results []capability.Result) Verdict {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("[%s] %s", r.Name, utils.Truncate(r.Content, judgePreviewLen)))
	}

	text, err := j.client.GenerateText(ctx, "completion_check", prompts.Judge(task, trip, lines))
	if err != nil {
		j.logger.Errorf("❌ Completion check failed, assuming completed: %v", err)
		return Verdict{Completed: true, Reason: "completion check unavailable"}
	}
	return ParseCompletion(text)
}

var leadingVerdictPattern = regexp.MustCompile(`^([01])(?:[^0-9]|$)`)

// ParseCompletion reads {completed, reason} JSON, or a bare 0/1 reply.
// Anything else counts as completed.
func ParseCompletion(text string) Verdict {
	var v Verdict
	if err := oracle.DecodeJSON(text, &v); err == nil {
		return v
	}
	trimmed := strings.TrimSpace(text)
	if m := leadingVerdictPattern.FindStringSubmatch(trimmed); m != nil {
		if m[1] == "1" {
			return Verdict{Completed: true}
		}
		return Verdict{Completed: false, Reason: trimmed}
	}
	switch {
	case strings.Contains(trimmed, "0"):
		return Verdict{Completed: false, Reason: trimmed}
	case strings.Contains(trimmed, "1"):
		return Verdict{Completed: true}
	default:
		return Verdict{Completed: true, Reason: trimmed}
	}
}
