// Package executor runs the task categories of a plan: query tasks first,
// then the category's summary task over their combined tool results.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"trip-agent/internal/utils"
	"trip-agent/pkg/capability"
	"trip-agent/pkg/database"
	"trip-agent/pkg/events"
	"trip-agent/pkg/prompts"
	"trip-agent/pkg/worker"
)

// Category groups independent query tasks with an optional summary task that
// consumes their results.
type Category struct {
	Category    string   `json:"category" jsonschema:"description=short category name such as transport or lodging"`
	Tasks       []string `json:"tasks" jsonschema:"description=independent query tasks"`
	SummaryTask string   `json:"summary_task,omitempty" jsonschema:"description=optional task that synthesizes the results of the query tasks"`
}

// TaskKey identifies a query task in the executed list.
func TaskKey(category, task string) string {
	return category + "::" + task
}

// SummaryKey identifies a summary task in the executed list.
func SummaryKey(category, task string) string {
	return category + "::summary::" + task
}

// TaskOutcome is one task that ran during RunCategories.
type TaskOutcome struct {
	Key       string
	Category  string
	Task      string
	Worker    string
	Selection string
	Result    worker.TaskResult
}

// Summary is the text produced by a category's summary task.
type Summary struct {
	Category string
	Task     string
	Text     string
}

// Result is what RunCategories returns. ExecutedTasks is the full list,
// including the keys passed in.
type Result struct {
	ToolResults   []capability.Result
	Summaries     []Summary
	ExecutedTasks []string
	Outcomes      []TaskOutcome
}

// TaskDoneFunc is called after each task with the executed list so far.
type TaskDoneFunc func(ctx context.Context, outcome TaskOutcome, executed []string)

// Options tunes an Executor.
type Options struct {
	// ParallelQueries bounds how many query tasks of one category run at
	// once. Zero or one runs them sequentially.
	ParallelQueries int
	// Recorder receives an audit record per capability call. Optional.
	Recorder database.ToolRecorder
	// OnTaskDone is called after every task. Optional.
	OnTaskDone TaskDoneFunc
	Emitter    events.Emitter
}

// Executor runs categories of tasks on selected workers.
type Executor struct {
	selector *worker.Selector
	runner   *worker.Runner
	logger   utils.ExtendedLogger
	opts     Options
}

// New creates an executor.
func New(selector *worker.Selector, runner *worker.Runner, logger utils.ExtendedLogger, opts Options) *Executor {
	return &Executor{selector: selector, runner: runner, logger: logger, opts: opts}
}

// WithTaskDone returns a copy of e that calls fn after every task.
func (e *Executor) WithTaskDone(fn TaskDoneFunc) *Executor {
	cp := *e
	cp.opts.OnTaskDone = fn
	return &cp
}

// RunCategories runs categories in order. Tasks whose key is already in
// executed are skipped, so calling it again after an interruption never
// repeats work. Every task that runs is appended to the executed list
// whether or not it succeeded.
func (e *Executor) RunCategories(ctx context.Context, categories []Category, trip prompts.Trip, executed []string) Result {
	res := Result{ExecutedTasks: append([]string(nil), executed...)}
	done := make(map[string]bool, len(executed))
	for _, k := range executed {
		done[k] = true
	}

	for _, cat := range categories {
		if ctx.Err() != nil {
			e.logger.Warnf("⚠️ Execution stopped before category %s: %v", cat.Category, ctx.Err())
			break
		}
		e.logger.Infof("📂 Category %s: %d tasks, summary=%v", cat.Category, len(cat.Tasks), cat.SummaryTask != "")

		var pending []string
		for _, task := range cat.Tasks {
			key := TaskKey(cat.Category, task)
			if done[key] {
				e.skip(ctx, cat.Category, task, key)
				continue
			}
			pending = append(pending, task)
		}

		outcomes := e.runQueries(ctx, cat.Category, pending, trip)

		// the summary buffer is this category's tool results only
		var buffer []capability.Result
		for _, o := range outcomes {
			buffer = append(buffer, o.Result.ToolResults...)
			res.ToolResults = append(res.ToolResults, o.Result.ToolResults...)
			e.finish(ctx, &res, done, o)
		}

		if cat.SummaryTask == "" {
			continue
		}
		key := SummaryKey(cat.Category, cat.SummaryTask)
		if done[key] {
			e.skip(ctx, cat.Category, cat.SummaryTask, key)
			continue
		}
		if ctx.Err() != nil {
			break
		}
		o := e.runOne(ctx, cat.Category, cat.SummaryTask, key, trip, buffer)
		if text := strings.TrimSpace(o.Result.FinalText); text != "" {
			res.Summaries = append(res.Summaries, Summary{Category: cat.Category, Task: cat.SummaryTask, Text: text})
		}
		e.finish(ctx, &res, done, o)
	}

	e.logger.Infof("✅ Execution finished: %d tasks run, %d tool results, %d executed in total",
		len(res.Outcomes), len(res.ToolResults), len(res.ExecutedTasks))
	return res
}

// runQueries runs the query tasks of one category and returns their
// outcomes in task order.
func (e *Executor) runQueries(ctx context.Context, category string, tasks []string, trip prompts.Trip) []TaskOutcome {
	outcomes := make([]TaskOutcome, len(tasks))
	if e.opts.ParallelQueries <= 1 || len(tasks) <= 1 {
		for i, task := range tasks {
			outcomes[i] = e.runOne(ctx, category, task, TaskKey(category, task), trip, nil)
		}
		return outcomes
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.ParallelQueries)
	for i, task := range tasks {
		g.Go(func() error {
			outcomes[i] = e.runOne(gctx, category, task, TaskKey(category, task), trip, nil)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (e *Executor) runOne(ctx context.Context, category, task, key string, trip prompts.Trip, prior []capability.Result) TaskOutcome {
	sel := e.selector.Select(ctx, task)
	o := TaskOutcome{Key: key, Category: category, Task: task, Selection: sel.Method}
	if sel.Worker != nil {
		o.Worker = sel.Worker.Name
	}
	o.Result = e.runner.RunTask(ctx, worker.TaskInput{
		Task:         task,
		Context:      trip,
		Worker:       sel.Worker,
		PriorResults: prior,
	})
	if len(prior) == 0 {
		e.record(ctx, category, task, o)
	}
	return o
}

func (e *Executor) finish(ctx context.Context, res *Result, done map[string]bool, o TaskOutcome) {
	if !done[o.Key] {
		done[o.Key] = true
		res.ExecutedTasks = append(res.ExecutedTasks, o.Key)
	}
	res.Outcomes = append(res.Outcomes, o)
	if e.opts.OnTaskDone != nil {
		e.opts.OnTaskDone(ctx, o, append([]string(nil), res.ExecutedTasks...))
	}
}

func (e *Executor) skip(ctx context.Context, category, task, key string) {
	e.logger.Infof("⏭️ Skipping already executed task %s", key)
	events.Emit(ctx, e.opts.Emitter, events.New(events.TaskSkipped, task).With("category", category).With("key", key))
}

// record writes one audit row per capability call of a query task.
func (e *Executor) record(ctx context.Context, category, task string, o TaskOutcome) {
	if e.opts.Recorder == nil {
		return
	}
	sessionID := events.SessionIDFrom(ctx)
	for _, r := range o.Result.ToolResults {
		rec := &database.ToolExecutionRecord{
			SessionID:  sessionID,
			Category:   category,
			ToolName:   r.Name,
			ToolInput:  normalizeInput(r.Args),
			ToolOutput: r.Content,
			Context:    task,
			Metadata: map[string]interface{}{
				"success":     r.Success,
				"worker":      o.Worker,
				"source":      r.Source,
				"call_id":     r.CallID,
				"duration_ms": r.Duration.Milliseconds(),
			},
		}
		if err := e.opts.Recorder.RecordToolExecution(ctx, rec); err != nil {
			e.logger.Warnf("⚠️ Failed to record tool execution %s: %v", r.Name, err)
		}
	}
}

// normalizeInput compacts JSON arguments and keeps anything else verbatim.
func normalizeInput(args string) string {
	var v interface{}
	if err := json.Unmarshal([]byte(args), &v); err != nil {
		return args
	}
	b, err := json.Marshal(v)
	if err != nil {
		return args
	}
	return string(b)
}

// Describe renders categories as the numbered text used in prompts.
func Describe(categories []Category) string {
	var sb strings.Builder
	for i, c := range categories {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, c.Category)
		for _, t := range c.Tasks {
			fmt.Fprintf(&sb, "   - %s\n", t)
		}
		if c.SummaryTask != "" {
			fmt.Fprintf(&sb, "   - summary: %s\n", c.SummaryTask)
		}
	}
	return sb.String()
}
