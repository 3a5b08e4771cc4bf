// Package config loads process configuration from the environment.
//
// Secrets (LLM_API_KEY, SIGNING_KEY) are deliberately NOT read here; they
// flow through internal/secrets so the resolution chain and fail-fast
// behavior stays in one place (see secrets.Resolver).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ObsConfig controls OpenTelemetry export.
type ObsConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLP           string // empty disables export
}

// RedisConfig describes the optional durable metrics backend.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// LLMConfig selects and configures the rationale generator's backend.
type LLMConfig struct {
	Provider string // "openai" (default) or "anthropic"
	Model    string
	BaseURL  string

	// LogPayloads enables debug-level logging of redacted prompt/response
	// bodies via internal/llm.ConfigureLogging. Off by default: prompts carry
	// student evidence text even after redaction of known secret shapes.
	LogPayloads bool
	// TruncateBytes caps a logged payload preview; 0 disables truncation.
	TruncateBytes int
}

// Config is the process-wide application configuration.
type Config struct {
	Host     string
	Port     int
	LogLevel string
	LogPath  string

	FeatureStoreURL   string
	MetricsBackendURL string
	FusionConfigPath  string
	ModelArtifactRoot string

	LLM   LLMConfig
	Redis RedisConfig
	Obs   ObsConfig

	BatchConcurrency int
	BatchDeadlineMS  int
}

// Load reads configuration from the environment (optionally via .env).
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{
		Host:              firstNonEmpty(os.Getenv("HOST"), "0.0.0.0"),
		Port:              intFromEnv("PORT", 8080),
		LogLevel:          firstNonEmpty(os.Getenv("LOG_LEVEL"), "info"),
		LogPath:           os.Getenv("LOG_PATH"),
		FeatureStoreURL:   strings.TrimSpace(os.Getenv("FEATURE_STORE_URL")),
		MetricsBackendURL: strings.TrimSpace(os.Getenv("METRICS_BACKEND_URL")),
		FusionConfigPath:  strings.TrimSpace(os.Getenv("FUSION_CONFIG_PATH")),
		ModelArtifactRoot: strings.TrimSpace(os.Getenv("MODEL_ARTIFACT_ROOT")),
		BatchConcurrency:  intFromEnv("BATCH_CONCURRENCY", 16),
		BatchDeadlineMS:   intFromEnv("BATCH_DEADLINE_MS", 60_000),
	}

	cfg.LLM.Provider = firstNonEmpty(os.Getenv("LLM_PROVIDER"), "openai")
	cfg.LLM.Model = os.Getenv("LLM_MODEL")
	cfg.LLM.BaseURL = os.Getenv("LLM_BASE_URL")
	cfg.LLM.LogPayloads = boolFromEnv("LLM_LOG_PAYLOADS", false)
	cfg.LLM.TruncateBytes = intFromEnv("LLM_LOG_TRUNCATE_BYTES", 64*1024)

	cfg.Obs.ServiceName = firstNonEmpty(os.Getenv("OTEL_SERVICE_NAME"), "sel-inference")
	cfg.Obs.ServiceVersion = os.Getenv("SERVICE_VERSION")
	cfg.Obs.Environment = firstNonEmpty(os.Getenv("ENVIRONMENT"), "dev")
	cfg.Obs.OTLP = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))

	if addr := strings.TrimSpace(os.Getenv("METRICS_BACKEND_URL")); addr != "" {
		cfg.Redis.Enabled = true
		cfg.Redis.Addr = addr
		cfg.Redis.Password = os.Getenv("METRICS_BACKEND_PASSWORD")
		cfg.Redis.DB = intFromEnv("METRICS_BACKEND_DB", 0)
	}

	if cfg.FusionConfigPath == "" {
		return cfg, fmt.Errorf("FUSION_CONFIG_PATH is required")
	}
	if cfg.ModelArtifactRoot == "" {
		return cfg, fmt.Errorf("MODEL_ARTIFACT_ROOT is required")
	}

	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func boolFromEnv(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func intFromEnv(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
