package worker

import (
	"context"
	"fmt"
	"strings"

	"trip-agent/internal/llmtypes"
	"trip-agent/internal/utils"
	"trip-agent/pkg/capability"
	"trip-agent/pkg/events"
	"trip-agent/pkg/metrics"
	"trip-agent/pkg/oracle"
	"trip-agent/pkg/prompts"
)

const (
	// extraRounds is the number of guided rounds after a failed completion check.
	extraRounds       = 2
	summaryPreviewLen = 100
)

// TaskInput describes one task run.
type TaskInput struct {
	Task    string
	Context prompts.Trip
	Worker  *Worker
	// MaxRounds overrides the worker's round cap when positive.
	MaxRounds int
	// PriorResults makes this a summary task when non-empty.
	PriorResults []capability.Result
}

// TaskResult is the outcome of RunTask.
type TaskResult struct {
	Success          bool
	ToolResults      []capability.Result
	FinalText        string
	Summary          string
	IsSummaryTask    bool
	Completed        bool
	FallbackSearched bool
	Rounds           int
}

// Runner executes tasks on workers.
type Runner struct {
	client        *oracle.Client
	dispatcher    *capability.Dispatcher
	judge         *Judge
	searchCatalog *capability.Catalog
	logger        utils.ExtendedLogger
	emitter       events.Emitter
	metrics       *metrics.Metrics
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithSearchCatalog sets the capabilities the fallback search may use when
// the task's worker has no search capability of its own.
func WithSearchCatalog(c *capability.Catalog) RunnerOption {
	return func(r *Runner) { r.searchCatalog = c }
}

func WithRunnerEmitter(e events.Emitter) RunnerOption {
	return func(r *Runner) { r.emitter = e }
}

func WithRunnerMetrics(m *metrics.Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner creates a runner.
func NewRunner(client *oracle.Client, dispatcher *capability.Dispatcher, logger utils.ExtendedLogger, opts ...RunnerOption) *Runner {
	r := &Runner{
		client:     client,
		dispatcher: dispatcher,
		judge:      NewJudge(client, logger),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunTask runs a single task. It never returns an error: oracle and
// capability failures show up as an unsuccessful result.
func (r *Runner) RunTask(ctx context.Context, in TaskInput) TaskResult {
	if in.Worker == nil {
		r.logger.Errorf("❌ No worker for task %q", in.Task)
		return TaskResult{Summary: "no worker available"}
	}
	maxRounds := in.MaxRounds
	if maxRounds <= 0 {
		maxRounds = in.Worker.MaxRounds
	}
	if maxRounds <= 0 {
		maxRounds = MaxRoundsFor(in.Worker.Type)
	}

	events.Emit(ctx, r.emitter, events.New(events.TaskStarted, in.Task).
		With("worker", in.Worker.Name).With("summary_task", len(in.PriorResults) > 0))
	r.logger.Infof("🚀 [%s] Starting task: %s", in.Worker.Name, in.Task)

	var res TaskResult
	if len(in.PriorResults) > 0 {
		res = r.runSummaryTask(ctx, in)
	} else {
		res = r.runQueryTask(ctx, in, maxRounds)
	}
	res.Summary = summarize(in.Worker.Name, res.ToolResults)

	r.metrics.Task(in.Worker.Name, res.Success)
	events.Emit(ctx, r.emitter, events.New(events.TaskCompleted, utils.Truncate(res.FinalText, 200)).
		With("worker", in.Worker.Name).With("task", in.Task).With("success", res.Success).
		With("tool_calls", len(res.ToolResults)).With("fallback_search", res.FallbackSearched))
	r.logger.Infof("🏁 [%s] Task done success=%v tool_calls=%d rounds=%d", in.Worker.Name, res.Success, len(res.ToolResults), res.Rounds)
	return res
}

// runSummaryTask synthesizes from prior results without offering any
// capability.
func (r *Runner) runSummaryTask(ctx context.Context, in TaskInput) TaskResult {
	prior := make([]string, 0, len(in.PriorResults))
	for i, p := range in.PriorResults {
		prior = append(prior, fmt.Sprintf("%d. [%s] %s", i+1, p.Name, p.Content))
	}
	prompt := prompts.Synthesis(in.Worker.Name, in.Worker.Description, in.Task, in.Context, prior)

	res := TaskResult{IsSummaryTask: true, Rounds: 1}
	choice, err := r.client.Generate(ctx, "summary_task", []llmtypes.MessageContent{
		llmtypes.TextPart(llmtypes.ChatMessageTypeHuman, prompt),
	})
	if err != nil {
		r.logger.Errorf("❌ [%s] Summary task failed: %v", in.Worker.Name, err)
		return res
	}
	res.FinalText = strings.TrimSpace(choice.Content)
	res.Success = res.FinalText != ""
	res.Completed = res.Success
	return res
}

func (r *Runner) runQueryTask(ctx context.Context, in TaskInput, maxRounds int) TaskResult {
	catalog := in.Worker.Capabilities
	msgs := []llmtypes.MessageContent{
		llmtypes.TextPart(llmtypes.ChatMessageTypeHuman,
			prompts.WorkerTask(in.Worker.Name, in.Worker.Description, in.Task, in.Context, catalog.Describe())),
	}

	res := TaskResult{}
	loop := func(rounds int, guidance string) {
		for i := 0; i < rounds; i++ {
			if guidance != "" {
				msgs = append(msgs, llmtypes.TextPart(llmtypes.ChatMessageTypeHuman, guidance))
			}
			res.Rounds++
			r.logger.Debugf("🔁 [%s] Round %d", in.Worker.Name, res.Rounds)
			var done bool
			msgs, done = r.round(ctx, in.Worker, msgs, &res)
			if done {
				return
			}
		}
	}

	loop(maxRounds, "")

	verdict := r.judge.Check(ctx, in.Task, in.Context, res.ToolResults)
	r.emitCheck(ctx, in, verdict, 1)
	if !verdict.Completed {
		r.logger.Infof("📝 [%s] Task incomplete (%s), running up to %d guided rounds", in.Worker.Name, verdict.Reason, extraRounds)
		loop(extraRounds, prompts.Guidance(verdict.Reason))

		verdict = r.judge.Check(ctx, in.Task, in.Context, res.ToolResults)
		r.emitCheck(ctx, in, verdict, 2)
		if !verdict.Completed {
			fallback := r.fallbackSearch(ctx, in, verdict.Reason)
			res.ToolResults = append(res.ToolResults, fallback)
			res.FallbackSearched = true
			r.metrics.FallbackSearch()
			events.Emit(ctx, r.emitter, events.New(events.FallbackSearchUsed, verdict.Reason).
				With("worker", in.Worker.Name).With("tool", fallback.Name).With("success", fallback.Success))
		}
	}

	res.Completed = verdict.Completed
	for _, tr := range res.ToolResults {
		if tr.Name != FallbackToolName {
			res.Success = true
			break
		}
	}
	return res
}

// round invokes the oracle once and runs the requested capabilities. done is
// true when the oracle asked for nothing or failed.
func (r *Runner) round(ctx context.Context, w *Worker, msgs []llmtypes.MessageContent, res *TaskResult) ([]llmtypes.MessageContent, bool) {
	var opts []llmtypes.CallOption
	if w.Capabilities.Len() > 0 {
		opts = append(opts, llmtypes.WithTools(w.Capabilities.Tools()))
	}
	choice, err := r.client.Generate(ctx, "worker_round", msgs, opts...)
	if err != nil {
		r.logger.Errorf("❌ [%s] Oracle unavailable during round: %v", w.Name, err)
		return msgs, true
	}

	calls := capability.Normalize(choice)
	if len(calls) == 0 {
		if text := strings.TrimSpace(choice.Content); text != "" {
			res.FinalText = text
			msgs = append(msgs, llmtypes.TextPart(llmtypes.ChatMessageTypeAI, text))
		}
		return msgs, true
	}

	msgs = append(msgs, llmtypes.AssistantMessage(&llmtypes.ContentChoice{
		Content:   choice.Content,
		ToolCalls: capability.ToolCalls(calls),
	}))
	results := r.dispatcher.ExecuteCalls(ctx, calls, w.Capabilities)
	for _, result := range results {
		msgs = append(msgs, llmtypes.ToolResultMessage(result.CallID, result.Name, result.Content))
	}
	res.ToolResults = append(res.ToolResults, results...)
	return msgs, false
}

func (r *Runner) emitCheck(ctx context.Context, in TaskInput, v Verdict, pass int) {
	events.Emit(ctx, r.emitter, events.New(events.CompletionChecked, v.Reason).
		With("worker", in.Worker.Name).With("completed", v.Completed).With("pass", pass))
}

// summarize renders the "idx. preview" list of a task's tool calls.
func summarize(worker string, results []capability.Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("%s made no tool calls", worker)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s made %d tool calls:", worker, len(results))
	for i, res := range results {
		fmt.Fprintf(&sb, "\n  %d. %s: %s", i+1, res.Name, utils.Truncate(res.Content, summaryPreviewLen))
	}
	return sb.String()
}
