package llm

import (
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/tmc/langchaingo/llms/ollama"

	"trip-agent/internal/llm/anthropicadapter"
	"trip-agent/internal/llm/langchainadapter"
	"trip-agent/internal/llm/openaiadapter"
	"trip-agent/internal/llmtypes"
	"trip-agent/internal/utils"
)

// Provider represents the available LLM providers
type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderAnthropic  Provider = "anthropic"
	ProviderOpenRouter Provider = "openrouter"
	ProviderOllama     Provider = "ollama"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// Config holds configuration for LLM initialization
type Config struct {
	Provider    Provider
	ModelID     string
	Temperature float64
	// FallbackModels are tried by the oracle wrapper after repeated throttling.
	FallbackModels []string
	MaxRetries     int
	// BaseURL overrides the provider endpoint (tests, proxies, Ollama host).
	BaseURL string
	Logger  utils.ExtendedLogger
}

// InitializeLLM creates and initializes an LLM based on the provider configuration
func InitializeLLM(config Config) (llmtypes.Model, error) {
	if err := ValidateProvider(string(config.Provider)); err != nil {
		return nil, err
	}
	if config.ModelID == "" {
		config.ModelID = GetDefaultModel(config.Provider)
	}

	var (
		model llmtypes.Model
		err   error
	)
	switch config.Provider {
	case ProviderOpenAI:
		model, err = initializeOpenAI(config)
	case ProviderOpenRouter:
		model, err = initializeOpenRouter(config)
	case ProviderAnthropic:
		model, err = initializeAnthropic(config)
	case ProviderOllama:
		model, err = initializeOllama(config)
	}
	if err != nil {
		return nil, err
	}

	if config.Logger != nil {
		config.Logger.Infof("✅ Initialized %s LLM - model_id: %s, fallbacks: %v", config.Provider, config.ModelID, config.FallbackModels)
	}
	return model, nil
}

func initializeOpenAI(config Config) (llmtypes.Model, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required for OpenAI provider")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	client := openaisdk.NewClient(opts...)
	return openaiadapter.NewOpenAIAdapter(&client, string(ProviderOpenAI), config.ModelID, config.Logger), nil
}

func initializeOpenRouter(config Config) (llmtypes.Model, error) {
	apiKey := os.Getenv("OPEN_ROUTER_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPEN_ROUTER_API_KEY environment variable is required for OpenRouter provider")
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = openRouterBaseURL
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	}
	if referer := os.Getenv("OPENROUTER_HTTP_REFERER"); referer != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", referer))
	}
	if title := os.Getenv("OPENROUTER_X_TITLE"); title != "" {
		opts = append(opts, option.WithHeader("X-Title", title))
	}
	client := openaisdk.NewClient(opts...)
	return openaiadapter.NewOpenAIAdapter(&client, string(ProviderOpenRouter), config.ModelID, config.Logger), nil
}

func initializeAnthropic(config Config) (llmtypes.Model, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is required")
	}
	opts := []anthropicoption.RequestOption{anthropicoption.WithAPIKey(apiKey), anthropicoption.WithMaxRetries(0)}
	if config.BaseURL != "" {
		opts = append(opts, anthropicoption.WithBaseURL(config.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	return anthropicadapter.NewAnthropicAdapter(client, config.ModelID, config.Logger), nil
}

func initializeOllama(config Config) (llmtypes.Model, error) {
	serverURL := config.BaseURL
	if serverURL == "" {
		serverURL = os.Getenv("OLLAMA_HOST")
	}
	opts := []ollama.Option{ollama.WithModel(config.ModelID)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}
	model, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	return langchainadapter.NewLangchainAdapter(model, string(ProviderOllama), config.ModelID, config.Logger), nil
}

// GetDefaultModel returns the default model for each provider from environment variables
func GetDefaultModel(provider Provider) string {
	switch provider {
	case ProviderOpenAI:
		if m := os.Getenv("OPENAI_PRIMARY_MODEL"); m != "" {
			return m
		}
		return "gpt-4.1-mini"
	case ProviderAnthropic:
		if m := os.Getenv("ANTHROPIC_PRIMARY_MODEL"); m != "" {
			return m
		}
		return "claude-3-5-sonnet-20241022"
	case ProviderOpenRouter:
		if m := os.Getenv("OPENROUTER_PRIMARY_MODEL"); m != "" {
			return m
		}
		return "moonshotai/kimi-k2"
	case ProviderOllama:
		if m := os.Getenv("OLLAMA_PRIMARY_MODEL"); m != "" {
			return m
		}
		return "qwen2.5:7b"
	default:
		return ""
	}
}

// GetDefaultFallbackModels returns fallback models for each provider from environment variables
func GetDefaultFallbackModels(provider Provider) []string {
	var env string
	switch provider {
	case ProviderOpenAI:
		env = "OPENAI_FALLBACK_MODELS"
	case ProviderAnthropic:
		env = "ANTHROPIC_FALLBACK_MODELS"
	case ProviderOpenRouter:
		env = "OPENROUTER_FALLBACK_MODELS"
	case ProviderOllama:
		env = "OLLAMA_FALLBACK_MODELS"
	default:
		return []string{}
	}
	return SplitModels(os.Getenv(env))
}

// SplitModels parses a comma separated model list.
func SplitModels(raw string) []string {
	models := []string{}
	for _, m := range strings.Split(raw, ",") {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}
	return models
}

// ValidateProvider checks if the provider is supported
func ValidateProvider(provider string) error {
	switch Provider(provider) {
	case ProviderOpenAI, ProviderAnthropic, ProviderOpenRouter, ProviderOllama:
		return nil
	default:
		return fmt.Errorf("unsupported LLM provider: %s (supported: openai, anthropic, openrouter, ollama)", provider)
	}
}
