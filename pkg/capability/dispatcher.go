package capability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"trip-agent/internal/llmtypes"
	"trip-agent/internal/utils"
	"trip-agent/pkg/events"
	"trip-agent/pkg/history"
	"trip-agent/pkg/metrics"
)

// FailurePrefix starts the content of every failed result.
const FailurePrefix = "Tool call failed with error: "

// ErrUnknownCapability is reported for names missing from the catalog.
var ErrUnknownCapability = errors.New("unknown capability")

// Result is the outcome of one call. Content always holds what the model
// gets to see, including the error text on failure.
type Result struct {
	CallID   string
	Name     string
	Args     string
	Content  string
	Success  bool
	Source   string
	Duration time.Duration
}

// ToMessage converts the result into the tool turn answering its call.
func (r Result) ToMessage() history.Message {
	return history.ToolResult(r.CallID, r.Name, r.Content)
}

// Messages converts results into tool turns, keeping order.
func Messages(results []Result) []history.Message {
	out := make([]history.Message, len(results))
	for i, r := range results {
		out[i] = r.ToMessage()
	}
	return out
}

// Dispatcher runs requested capabilities concurrently. A failing call never
// affects the others.
type Dispatcher struct {
	callTimeout    time.Duration
	maxConcurrency int
	logger         utils.ExtendedLogger
	metrics        *metrics.Metrics
	emitter        events.Emitter
}

type DispatcherOption func(*Dispatcher)

// WithCallTimeout bounds each call. Zero disables the bound.
func WithCallTimeout(d time.Duration) DispatcherOption {
	return func(ds *Dispatcher) { ds.callTimeout = d }
}

func WithMaxConcurrency(n int) DispatcherOption {
	return func(ds *Dispatcher) { ds.maxConcurrency = n }
}

func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(ds *Dispatcher) { ds.metrics = m }
}

func WithEmitter(e events.Emitter) DispatcherOption {
	return func(ds *Dispatcher) { ds.emitter = e }
}

func NewDispatcher(logger utils.ExtendedLogger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		callTimeout:    2 * time.Minute,
		maxConcurrency: 8,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Execute runs every capability requested by choice against catalog. The
// result list has one entry per request, in request order.
func (d *Dispatcher) Execute(ctx context.Context, choice *llmtypes.ContentChoice, catalog *Catalog) []Result {
	return d.ExecuteCalls(ctx, Normalize(choice), catalog)
}

func (d *Dispatcher) ExecuteCalls(ctx context.Context, calls []Call, catalog *Catalog) []Result {
	results := make([]Result, len(calls))
	if len(calls) == 0 {
		return results
	}

	g := new(errgroup.Group)
	if d.maxConcurrency > 0 {
		g.SetLimit(d.maxConcurrency)
	}
	for i, call := range calls {
		g.Go(func() error {
			results[i] = d.run(ctx, call, catalog)
			return nil
		})
	}
	_ = g.Wait()

	if d.logger != nil {
		failed := 0
		for _, r := range results {
			if !r.Success {
				failed++
			}
		}
		d.logger.Infof("🔧 Executed %d tool calls (%d failed)", len(results), failed)
	}
	return results
}

func (d *Dispatcher) run(ctx context.Context, call Call, catalog *Catalog) Result {
	start := time.Now()
	res := Result{CallID: call.ID, Name: call.Name, Args: call.Args}

	cp, ok := catalog.Get(call.Name)
	if !ok {
		err := fmt.Errorf("%w %q (available: %s)", ErrUnknownCapability, call.Name, strings.Join(catalog.Names(), ", "))
		return d.finish(ctx, res, "", err, start)
	}
	res.Source = cp.Source

	args, err := ParseArgs(call.Args)
	if err != nil {
		return d.finish(ctx, res, "", err, start)
	}

	content, err := d.invoke(ctx, cp, args)
	return d.finish(ctx, res, content, err, start)
}

type invokeOutcome struct {
	content string
	err     error
}

func (d *Dispatcher) invoke(ctx context.Context, cp Capability, args map[string]interface{}) (string, error) {
	if cp.Invoke == nil {
		return "", fmt.Errorf("capability %q has no implementation", cp.Name)
	}
	callCtx := ctx
	if d.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.callTimeout)
		defer cancel()
	}

	done := make(chan invokeOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- invokeOutcome{err: fmt.Errorf("capability %q panicked: %v", cp.Name, r)}
			}
		}()
		content, err := cp.Invoke(callCtx, args)
		done <- invokeOutcome{content: content, err: err}
	}()

	select {
	case out := <-done:
		return out.content, out.err
	case <-callCtx.Done():
		return "", fmt.Errorf("capability %q did not finish: %w", cp.Name, callCtx.Err())
	}
}

func (d *Dispatcher) finish(ctx context.Context, res Result, content string, err error, start time.Time) Result {
	res.Duration = time.Since(start)
	status := "ok"
	if err != nil {
		status = "error"
		res.Content = FailurePrefix + err.Error()
		if d.logger != nil {
			d.logger.Warnf("❌ Tool %s failed after %v: %v", res.Name, res.Duration, err)
		}
		events.Emit(ctx, d.emitter, events.New(events.ToolCallError, err.Error()).
			With("tool", res.Name).With("call_id", res.CallID))
	} else {
		res.Success = true
		res.Content = content
		if d.logger != nil {
			d.logger.Debugf("✅ Tool %s finished in %v: %s", res.Name, res.Duration, utils.Truncate(content, 120))
		}
		events.Emit(ctx, d.emitter, events.New(events.ToolCallEnd, utils.Truncate(content, 200)).
			With("tool", res.Name).With("call_id", res.CallID).With("duration_ms", res.Duration.Milliseconds()))
	}
	d.metrics.CapabilityCall(res.Name, status, res.Duration)
	return res
}
