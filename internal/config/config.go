// Package config loads the pipeline's configuration from environment
// variables. Variable names are fixed because they are operator-visible.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// VlmBackendKind selects which VLM provider to build.
type VlmBackendKind string

const (
	BackendOllama       VlmBackendKind = "ollama"
	BackendOpenAICompat VlmBackendKind = "openai_compat"
)

// OllamaConfig configures the "generate"-style provider.
type OllamaConfig struct {
	BaseURL string
	Model   string
}

// OpenAICompatConfig configures the "chat"-style provider with vision.
type OpenAICompatConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// AlertConfig configures the SMS gateway used by alert dispatch.
type AlertConfig struct {
	AccountID       string
	AuthToken       string
	FromNumber      string
	DefaultToNumber string
}

// Config is the fully loaded, validated application configuration.
type Config struct {
	ServerHost string
	ServerPort string

	DatabaseURL string

	VlmBackend   VlmBackendKind
	Ollama       OllamaConfig
	OpenAICompat OpenAICompatConfig

	AnalysisWorkers int
	FrameQueueSize  int

	Alert AlertConfig
}

const (
	defaultAnalysisWorkers = 4
	defaultFrameQueueSize  = 64
	// LiveFPS is the fixed output rate for subprocess capturers.
	LiveFPS = 15
)

// Load reads configuration from the environment, accumulating every
// validation problem so a single error reports all missing or invalid
// variables at once.
func Load() (*Config, error) {
	var problems []string

	serverHost := getenvDefault("SERVER_HOST", "0.0.0.0")
	serverPort := getenvDefault("SERVER_PORT", "8080")
	if _, err := strconv.Atoi(serverPort); err != nil {
		problems = append(problems, fmt.Sprintf("SERVER_PORT must be numeric, got %q", serverPort))
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		problems = append(problems, "DATABASE_URL is required")
	}

	backend := VlmBackendKind(getenvDefault("VLM_BACKEND", string(BackendOllama)))

	var ollamaCfg OllamaConfig
	var openaiCfg OpenAICompatConfig

	switch backend {
	case BackendOllama:
		ollamaCfg = OllamaConfig{
			BaseURL: getenvDefault("OLLAMA_BASE_URL", "http://localhost:11434"),
			Model:   getenvDefault("OLLAMA_MODEL", "moondream"),
		}
	case BackendOpenAICompat:
		openaiCfg.BaseURL = os.Getenv("OPENAI_COMPAT_BASE_URL")
		if openaiCfg.BaseURL == "" {
			problems = append(problems, "OPENAI_COMPAT_BASE_URL is required for VLM_BACKEND=openai_compat")
		}
		openaiCfg.APIKey = os.Getenv("OPENAI_COMPAT_API_KEY")
		if openaiCfg.APIKey == "" {
			problems = append(problems, "OPENAI_COMPAT_API_KEY is required for VLM_BACKEND=openai_compat")
		}
		openaiCfg.Model = getenvDefault("OPENAI_COMPAT_MODEL", "gpt-4o")
	default:
		problems = append(problems, fmt.Sprintf("VLM_BACKEND must be 'ollama' or 'openai_compat', got %q", backend))
	}

	analysisWorkers, err := getenvIntDefault("ANALYSIS_WORKERS", defaultAnalysisWorkers)
	if err != nil {
		problems = append(problems, err.Error())
	}

	frameQueueSize, err := getenvIntDefault("FRAME_QUEUE_SIZE", defaultFrameQueueSize)
	if err != nil {
		problems = append(problems, err.Error())
	}

	alert := AlertConfig{
		AccountID:       os.Getenv("ALERT_GATEWAY_ACCOUNT_ID"),
		AuthToken:       os.Getenv("ALERT_GATEWAY_AUTH_TOKEN"),
		FromNumber:      os.Getenv("ALERT_GATEWAY_FROM_NUMBER"),
		DefaultToNumber: os.Getenv("ALERT_GATEWAY_TO_NUMBER"),
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("configuration validation errors: %v", problems)
	}

	return &Config{
		ServerHost:      serverHost,
		ServerPort:      serverPort,
		DatabaseURL:     databaseURL,
		VlmBackend:      backend,
		Ollama:          ollamaCfg,
		OpenAICompat:    openaiCfg,
		AnalysisWorkers: analysisWorkers,
		FrameQueueSize:  frameQueueSize,
		Alert:           alert,
	}, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return parsed, nil
}
