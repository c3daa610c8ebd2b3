// Package app wires the process: LLM, MCP servers, workers, persistence and
// the session service. Commands build one App and share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"

	"trip-agent/internal/events"
	"trip-agent/internal/llm"
	"trip-agent/internal/llmtypes"
	"trip-agent/internal/utils"
	"trip-agent/pkg/database"
	unifiedevents "trip-agent/pkg/events"
	"trip-agent/pkg/logger"
	"trip-agent/pkg/mcpclient"
	"trip-agent/pkg/metrics"
	"trip-agent/pkg/oracle"
	"trip-agent/pkg/session"
	"trip-agent/pkg/worker"
	"trip-agent/pkg/workflow"
)

// Config is the resolved process configuration.
type Config struct {
	Provider       string
	Model          string
	FallbackModels []string
	Temperature    float64
	MaxTokens      int
	MaxRetries     int

	DBPath        string
	MCPConfigPath string
	MCPTimeout    time.Duration
	Workspace     string

	Policy          workflow.Policy
	ParallelQueries int
	CallTimeout     time.Duration
	TokenEncoding   string

	EventBuffer int
}

// ConfigFromViper reads the bound flags, config file and environment.
func ConfigFromViper() Config {
	provider := viper.GetString("provider")
	fallbacks := viper.GetStringSlice("fallback-models")
	if len(fallbacks) == 0 {
		fallbacks = llm.GetDefaultFallbackModels(llm.Provider(provider))
	}
	policy := workflow.DefaultPolicy()
	if viper.IsSet("workflow") {
		if err := viper.UnmarshalKey("workflow", &policy); err != nil {
			fmt.Fprintf(os.Stderr, "Ignoring invalid workflow section: %v\n", err)
		}
	}
	if viper.IsSet("max-interventions") {
		policy.MaxInterventions = viper.GetInt("max-interventions")
	}
	if viper.IsSet("max-iterations") {
		policy.MaxIterations = viper.GetInt("max-iterations")
	}
	if viper.IsSet("max-kept-messages") {
		policy.MaxKeptMessages = viper.GetInt("max-kept-messages")
	}

	return Config{
		Provider:        provider,
		Model:           viper.GetString("model"),
		FallbackModels:  fallbacks,
		Temperature:     viper.GetFloat64("temperature"),
		MaxTokens:       viper.GetInt("max-tokens"),
		MaxRetries:      viper.GetInt("max-retries"),
		DBPath:          viper.GetString("db-path"),
		MCPConfigPath:   viper.GetString("mcp-config"),
		MCPTimeout:      viper.GetDuration("mcp-timeout"),
		Workspace:       viper.GetString("workspace"),
		Policy:          policy,
		ParallelQueries: viper.GetInt("parallel-queries"),
		CallTimeout:     viper.GetDuration("tool-timeout"),
		TokenEncoding:   viper.GetString("token-encoding"),
		EventBuffer:     viper.GetInt("event-buffer"),
	}
}

// NewLogger builds the process logger from the logging flags.
func NewLogger() (logger.Logger, error) {
	return logger.CreateLogger(
		viper.GetString("log-file"),
		viper.GetString("log-level"),
		viper.GetString("log-format"),
		viper.GetBool("log-stdout"),
	)
}

// App is a fully wired process.
type App struct {
	Config   Config
	Logger   utils.ExtendedLogger
	DB       *database.SQLiteDB
	MCP      *mcpclient.Manager
	Registry *worker.Registry
	Events   *events.EventStore
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Context  *workflow.OrchestrationContext
	Service  *session.Service
}

// New initializes the LLM and tool servers and opens the session database.
func New(ctx context.Context, cfg Config, logger utils.ExtendedLogger) (*App, error) {
	model, err := llm.InitializeLLM(llm.Config{
		Provider:       llm.Provider(cfg.Provider),
		ModelID:        cfg.Model,
		Temperature:    cfg.Temperature,
		FallbackModels: cfg.FallbackModels,
		MaxRetries:     cfg.MaxRetries,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}
	return NewWithModel(ctx, cfg, model, logger)
}

// NewWithModel is New with an already constructed model.
func NewWithModel(ctx context.Context, cfg Config, model llmtypes.Model, logger utils.ExtendedLogger) (*App, error) {
	db, err := database.NewSQLiteDB(cfg.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = 1000
	}
	store := events.NewEventStore(buffer, time.Hour)
	emitter := unifiedevents.EmitterFunc(func(ctx context.Context, e unifiedevents.Event) {
		store.Emit(ctx, e)
		logger.Debugf("📡 [%s] %s %s", e.SessionID, e.Type, e.Message)
	})

	manager := mcpclient.NewManager(logger)
	mcpCfg, err := loadMCPConfig(cfg.MCPConfigPath)
	if err != nil {
		logger.Warnf("⚠️ %v, continuing without external tools", err)
	}
	connectServers(ctx, cfg, mcpCfg, manager, logger)

	mapping := map[string][]string{}
	if mcpCfg != nil {
		for server, workers := range mcpCfg.WorkerMapping {
			mapping[server] = workers
		}
	}
	registry := worker.BuildRegistry(manager.CatalogsByServer(), mapping, nil, logger)
	if registry.Len() == 0 {
		logger.Warnf("⚠️ No workers available; tasks will complete without tool calls")
	}

	retry := oracle.DefaultRetryPolicy()
	retry.Model = cfg.Model
	if cfg.MaxRetries > 0 {
		retry.MaxRetries = cfg.MaxRetries
	}
	retry = retry.WithFallbacks(cfg.FallbackModels...)
	clientOpts := []oracle.ClientOption{
		oracle.WithPolicy(retry),
		oracle.WithTemperature(cfg.Temperature),
		oracle.WithEmitter(emitter),
		oracle.WithMetrics(m),
	}
	if cfg.MaxTokens > 0 {
		clientOpts = append(clientOpts, oracle.WithMaxTokens(cfg.MaxTokens))
	}
	client := oracle.NewClient(model, logger, clientOpts...)

	ctxOpts := []workflow.ContextOption{
		workflow.WithPolicy(cfg.Policy),
		workflow.WithEventEmitter(emitter),
		workflow.WithMetricsRecorder(m),
		workflow.WithToolRecorder(db),
		workflow.WithParallelQueries(cfg.ParallelQueries),
		workflow.WithTokenEncoding(cfg.TokenEncoding),
	}
	if cfg.CallTimeout > 0 {
		ctxOpts = append(ctxOpts, workflow.WithCallTimeout(cfg.CallTimeout))
	}
	oc := workflow.NewOrchestrationContext(client, registry, logger, ctxOpts...)

	return &App{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		MCP:      manager,
		Registry: registry,
		Events:   store,
		Metrics:  m,
		Gatherer: reg,
		Context:  oc,
		Service:  session.NewService(oc, session.NewSQLStore(db), logger),
	}, nil
}

// connectServers brings up the configured MCP servers and the in-process
// file server. Failures leave the affected workers out.
func connectServers(ctx context.Context, cfg Config, mcpCfg *mcpclient.Config, manager *mcpclient.Manager, logger utils.ExtendedLogger) {
	if mcpCfg != nil {
		timeout := cfg.MCPTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		if err := manager.Initialize(ctx, mcpCfg, timeout); err != nil {
			logger.Warnf("⚠️ Some MCP servers failed to start: %v", err)
		}
	}

	if cfg.Workspace == "" {
		return
	}
	if err := os.MkdirAll(cfg.Workspace, 0755); err != nil {
		logger.Warnf("⚠️ Workspace %s unavailable: %v", cfg.Workspace, err)
		return
	}
	local, err := mcpclient.ConnectInProcess(ctx, mcpclient.LocalFilesServer, mcpclient.NewLocalFileServer(cfg.Workspace), logger)
	if err != nil {
		logger.Warnf("⚠️ Local file tools unavailable: %v", err)
		return
	}
	if err := manager.AddClient(ctx, local); err != nil {
		logger.Warnf("⚠️ Local file tools unavailable: %v", err)
	}
}

var errNoMCPConfig = errors.New("no MCP config file")

func loadMCPConfig(path string) (*mcpclient.Config, error) {
	if path == "" {
		return nil, errNoMCPConfig
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", errNoMCPConfig, path)
	}
	return mcpclient.LoadConfig(path)
}

// Close releases tool connections, the event store and the database.
func (a *App) Close() {
	a.MCP.Close()
	a.Events.Stop()
	if err := a.DB.Close(); err != nil {
		a.Logger.Warnf("⚠️ Failed to close database: %v", err)
	}
}
