package workflow

import (
	"time"

	"trip-agent/internal/utils"
	"trip-agent/pkg/capability"
	"trip-agent/pkg/database"
	"trip-agent/pkg/events"
	"trip-agent/pkg/executor"
	"trip-agent/pkg/history"
	"trip-agent/pkg/metrics"
	"trip-agent/pkg/oracle"
	"trip-agent/pkg/worker"
)

// OrchestrationContext holds every collaborator the engine uses. It is
// built once at process start and shared by all sessions.
type OrchestrationContext struct {
	Oracle     *oracle.Client
	Registry   *worker.Registry
	Dispatcher *capability.Dispatcher
	Compactor  *history.Compactor
	Executor   *executor.Executor
	Policy     Policy
	Emitter    events.Emitter
	Logger     utils.ExtendedLogger
	Metrics    *metrics.Metrics
}

// ContextOption configures NewOrchestrationContext.
type ContextOption func(*contextConfig)

type contextConfig struct {
	policy          Policy
	emitter         events.Emitter
	metrics         *metrics.Metrics
	recorder        database.ToolRecorder
	parallelQueries int
	callTimeout     time.Duration
	tokenEncoding   string
}

func WithPolicy(p Policy) ContextOption {
	return func(c *contextConfig) { c.policy = p }
}

func WithEventEmitter(e events.Emitter) ContextOption {
	return func(c *contextConfig) { c.emitter = e }
}

func WithMetricsRecorder(m *metrics.Metrics) ContextOption {
	return func(c *contextConfig) { c.metrics = m }
}

// WithToolRecorder writes an audit record for every capability call.
func WithToolRecorder(r database.ToolRecorder) ContextOption {
	return func(c *contextConfig) { c.recorder = r }
}

// WithParallelQueries lets up to n query tasks of one category run at once.
func WithParallelQueries(n int) ContextOption {
	return func(c *contextConfig) { c.parallelQueries = n }
}

// WithCallTimeout bounds each capability call.
func WithCallTimeout(d time.Duration) ContextOption {
	return func(c *contextConfig) { c.callTimeout = d }
}

// WithTokenEncoding selects the BPE used for history token accounting.
func WithTokenEncoding(name string) ContextOption {
	return func(c *contextConfig) { c.tokenEncoding = name }
}

// NewOrchestrationContext wires dispatcher, compactor, selector, runner and
// executor around client and registry.
func NewOrchestrationContext(client *oracle.Client, registry *worker.Registry, logger utils.ExtendedLogger, opts ...ContextOption) *OrchestrationContext {
	cfg := contextConfig{policy: DefaultPolicy(), emitter: events.Nop}
	for _, opt := range opts {
		opt(&cfg)
	}

	dispatcherOpts := []capability.DispatcherOption{
		capability.WithMetrics(cfg.metrics),
		capability.WithEmitter(cfg.emitter),
	}
	if cfg.callTimeout > 0 {
		dispatcherOpts = append(dispatcherOpts, capability.WithCallTimeout(cfg.callTimeout))
	}
	dispatcher := capability.NewDispatcher(logger, dispatcherOpts...)

	compactorOpts := []history.CompactorOption{history.WithCompactorEmitter(cfg.emitter)}
	if cfg.tokenEncoding != "" {
		counter, err := history.NewTokenCounter(cfg.tokenEncoding)
		if err != nil {
			logger.Warnf("⚠️ Token encoding %s unavailable, estimating token counts: %v", cfg.tokenEncoding, err)
		}
		compactorOpts = append(compactorOpts, history.WithTokenCounter(counter))
	}
	compactor := history.NewCompactor(client, logger, compactorOpts...)

	selector := worker.NewSelector(client, registry, logger, cfg.emitter)
	runner := worker.NewRunner(client, dispatcher, logger,
		worker.WithSearchCatalog(registry.SearchCatalog()),
		worker.WithRunnerEmitter(cfg.emitter),
		worker.WithRunnerMetrics(cfg.metrics),
	)
	exec := executor.New(selector, runner, logger, executor.Options{
		ParallelQueries: cfg.parallelQueries,
		Recorder:        cfg.recorder,
		Emitter:         cfg.emitter,
	})

	return &OrchestrationContext{
		Oracle:     client,
		Registry:   registry,
		Dispatcher: dispatcher,
		Compactor:  compactor,
		Executor:   exec,
		Policy:     cfg.policy,
		Emitter:    cfg.emitter,
		Logger:     logger,
		Metrics:    cfg.metrics,
	}
}
