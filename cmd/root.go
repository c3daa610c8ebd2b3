package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"trip-agent/cmd/server"
	"trip-agent/pkg/workflow"
)

var cfgFile string

var envKeyReplacer = strings.NewReplacer("-", "_", ".", "_")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "trip-agent",
	Short: "Human-in-the-loop trip planning agent",
	Long: `Trip planning agent that drafts a plan, asks the traveller when details
are missing, runs the plan's tasks through MCP tool workers and reviews the
resulting itinerary.

Sessions are persisted, so a paused session can be resumed later from the
CLI or the HTTP API.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	policy := workflow.DefaultPolicy()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./.trip-agent.yaml or $HOME/.trip-agent.yaml)")

	// LLM
	flags.String("provider", "openai", "LLM provider (openai, anthropic, openrouter, ollama)")
	flags.String("model", "", "model id (default depends on provider)")
	flags.StringSlice("fallback-models", nil, "models tried after repeated rate limiting")
	flags.Float64("temperature", 0.2, "LLM temperature")
	flags.Int("max-tokens", 0, "max output tokens per call (0 = provider default)")
	flags.Int("max-retries", 0, "retries per LLM call (0 = default)")

	// Workflow policy
	flags.Int("max-interventions", policy.MaxInterventions, "questions per session (0 = unlimited)")
	flags.Int("max-iterations", policy.MaxIterations, "review rounds before the session ends")
	flags.Int("max-kept-messages", policy.MaxKeptMessages, "history size before compaction")
	flags.Int("parallel-queries", 1, "query tasks of one category run concurrently")
	flags.Duration("tool-timeout", 0, "timeout per tool call (0 = default)")
	flags.String("token-encoding", "cl100k_base", "tiktoken encoding for history accounting")

	// Storage and tools
	flags.String("db-path", "trip-agent.db", "SQLite session database")
	flags.String("mcp-config", "configs/mcp_servers.yaml", "MCP server config file")
	flags.Duration("mcp-timeout", 0, "MCP startup timeout (0 = 30s)")
	flags.String("workspace", "", "directory served by the local file tools (empty disables them)")
	flags.Int("event-buffer", 1000, "events kept per session for polling")

	// Logging
	flags.String("log-file", "", "log file path (default logs/trip-agent-<date>.log)")
	flags.String("log-level", "info", "log level (debug, info, warn, error, fatal)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.Bool("log-stdout", false, "also write logs to stdout")

	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
	}

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(workersCmd)
	rootCmd.AddCommand(server.ServerCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if err := godotenv.Load(".env"); err != nil {
		if err := godotenv.Load("../.env"); err != nil {
			fmt.Fprintln(os.Stderr, "No .env file found, using system environment variables")
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(".")
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".trip-agent")
	}

	viper.SetEnvPrefix("TRIP_AGENT")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
