package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"trip-agent/internal/app"
	"trip-agent/internal/events"
	"trip-agent/internal/utils"
	"trip-agent/pkg/database"
	"trip-agent/pkg/session"
	"trip-agent/pkg/worker"
)

// ServerCmd represents the server command
var ServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the trip planning HTTP API",
	Long: `Start the HTTP API for planning sessions.

The server provides:
- Session API: start, resume, inspect and delete sessions
- Polling API for session events
- Tool execution audit log API
- Prometheus metrics at /metrics

Examples:
  trip-agent server                      # Start on :8000
  trip-agent server --port 9000          # Start on a custom port
  trip-agent server --cors-origins "*"   # Allow every origin`,
	RunE: runServer,
}

func init() {
	ServerCmd.Flags().Int("port", 8000, "HTTP port")
	ServerCmd.Flags().String("host", "0.0.0.0", "listen address")
	ServerCmd.Flags().StringSlice("cors-origins", []string{"*"}, "CORS allowed origins")
	ServerCmd.Flags().Duration("run-timeout", 30*time.Minute, "upper bound for one background session run")

	_ = viper.BindPFlag("server.port", ServerCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", ServerCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.cors-origins", ServerCmd.Flags().Lookup("cors-origins"))
	_ = viper.BindPFlag("server.run-timeout", ServerCmd.Flags().Lookup("run-timeout"))
}

// Config holds the HTTP settings.
type Config struct {
	Port        int
	Host        string
	CORSOrigins []string
	RunTimeout  time.Duration
}

// API serves sessions over HTTP.
type API struct {
	config   Config
	sessions *session.Service
	events   *events.EventStore
	db       database.Database
	registry *worker.Registry
	gatherer prometheus.Gatherer
	logger   utils.ExtendedLogger

	// background runs outlive their request
	baseCtx context.Context
}

// NewAPI creates the API over a wired application.
func NewAPI(ctx context.Context, config Config, a *app.App) *API {
	return &API{
		config:   config,
		sessions: a.Service,
		events:   a.Events,
		db:       a.DB,
		registry: a.Registry,
		gatherer: a.Gatherer,
		logger:   a.Logger,
		baseCtx:  ctx,
	}
}

// Router builds the full route table.
func (api *API) Router() http.Handler {
	router := mux.NewRouter()
	router.Use(api.corsMiddleware)

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/health", api.handleHealth).Methods("GET")
	apiRouter.HandleFunc("/workers", api.handleWorkers).Methods("GET")

	apiRouter.HandleFunc("/sessions", api.handleStartSession).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/sessions", api.handleListSessions).Methods("GET")
	apiRouter.HandleFunc("/sessions/{session_id}", api.handleGetSession).Methods("GET")
	apiRouter.HandleFunc("/sessions/{session_id}", api.handleDeleteSession).Methods("DELETE")
	apiRouter.HandleFunc("/sessions/{session_id}/resume", api.handleResumeSession).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/sessions/{session_id}/events", api.handleGetEvents).Methods("GET")

	apiRouter.PathPrefix("/tool-data").Handler(ToolDataRoutes(api.db))

	router.Handle("/metrics", promhttp.HandlerFor(api.gatherer, promhttp.HandlerOpts{}))
	return router
}

func (api *API) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowed := api.allowedOrigin(origin); allowed != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (api *API) allowedOrigin(origin string) string {
	for _, o := range api.config.CORSOrigins {
		if o == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(o, origin) {
			return origin
		}
	}
	return ""
}

func runServer(cmd *cobra.Command, _ []string) error {
	log, err := app.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, app.ConfigFromViper(), log)
	if err != nil {
		return err
	}
	defer a.Close()

	config := Config{
		Port:        viper.GetInt("server.port"),
		Host:        viper.GetString("server.host"),
		CORSOrigins: viper.GetStringSlice("server.cors-origins"),
		RunTimeout:  viper.GetDuration("server.run-timeout"),
	}
	api := NewAPI(ctx, config, a)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("🌐 Trip agent API listening on %s (workers: %v)", srv.Addr, a.Registry.Names())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Infof("🛑 Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
