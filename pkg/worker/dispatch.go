package worker

import (
	"context"
	"strings"

	"trip-agent/internal/utils"
	"trip-agent/pkg/events"
	"trip-agent/pkg/oracle"
	"trip-agent/pkg/prompts"
)

// Decision is the oracle's worker choice for a task.
type Decision struct {
	SelectedWorker string `json:"selected_worker" jsonschema:"description=name of the chosen worker"`
	Reason         string `json:"reason,omitempty"`
}

// Selection records which worker runs a task and how it was chosen.
type Selection struct {
	Worker *Worker
	// Method is "oracle", "classifier" or "default".
	Method string
	Reason string
}

// Selector picks a worker for each task.
type Selector struct {
	client   *oracle.Client
	registry *Registry
	logger   utils.ExtendedLogger
	emitter  events.Emitter
}

// NewSelector creates a selector over registry.
func NewSelector(client *oracle.Client, registry *Registry, logger utils.ExtendedLogger, emitter events.Emitter) *Selector {
	return &Selector{client: client, registry: registry, logger: logger, emitter: emitter}
}

// Select asks the oracle first, then the keyword classifier, then falls back
// to the default worker. It returns a nil worker only for an empty registry.
func (s *Selector) Select(ctx context.Context, task string) Selection {
	sel := s.selectWorker(ctx, task)
	if sel.Worker != nil {
		s.logger.Infof("🎯 Task %q -> %s worker (%s)", utils.Truncate(task, 60), sel.Worker.Name, sel.Method)
		events.Emit(ctx, s.emitter, events.New(events.WorkerSelected, sel.Reason).
			With("task", task).With("worker", sel.Worker.Name).With("method", sel.Method))
	}
	return sel
}

func (s *Selector) selectWorker(ctx context.Context, task string) Selection {
	if s.registry.Len() == 0 {
		return Selection{}
	}
	if s.registry.Len() == 1 {
		return Selection{Worker: s.registry.Default(), Method: "default", Reason: "only one worker available"}
	}

	options := make([]prompts.WorkerOption, 0, s.registry.Len())
	for _, w := range s.registry.List() {
		options = append(options, w.Option())
	}

	name := ""
	reason := ""
	method := "oracle"
	text, err := s.client.GenerateText(ctx, "dispatch", prompts.Dispatch(task, options))
	if err != nil {
		s.logger.Warnf("⚠️ Dispatch decision unavailable, using classifier: %v", err)
	} else if d, ok := ParseDecision(text); ok {
		name, reason = d.SelectedWorker, d.Reason
	} else {
		s.logger.Warnf("⚠️ Could not read dispatch decision, using classifier: %s", utils.Truncate(text, 120))
	}

	if name == "" {
		method = "classifier"
		name = Classify(task)
		reason = "keyword match"
	}
	if w, ok := s.registry.Get(name); ok {
		return Selection{Worker: w, Method: method, Reason: reason}
	}
	return Selection{Worker: s.registry.Default(), Method: "default", Reason: "selected worker " + quoteOrNone(name) + " not available"}
}

// ParseDecision extracts {selected_worker, reason} from possibly chatty text.
func ParseDecision(text string) (Decision, bool) {
	var d Decision
	if err := oracle.DecodeJSON(text, &d); err != nil {
		return Decision{}, false
	}
	d.SelectedWorker = strings.TrimSpace(d.SelectedWorker)
	return d, d.SelectedWorker != ""
}

func quoteOrNone(name string) string {
	if name == "" {
		return "(none)"
	}
	return `"` + name + `"`
}
