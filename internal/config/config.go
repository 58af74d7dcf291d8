package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds configuration for the sarthi server.
type Config struct {
	Addr                   string
	DBPath                 string
	GeminiAPIKey           string
	GeminiModel            string
	GeminiEndpoint         string
	SystemPrompt           string
	MaxHistory             int
	MaxSessions            int
	SessionIdleSeconds     int
	GenerateTimeoutSeconds int
	PredictURL             string
	PredictTimeoutSeconds  int
	FundsCSVPath           string
	FundsSampleLimit       int
}

// DefaultSystemPrompt is used when SARTHI_SYSTEM_PROMPT is unset.
const DefaultSystemPrompt = "You are 'SAMPATTAI Sarthi', a specialized financial advisor for Indian investors. " +
	"The user provides mutual fund data in JSON format. Use the provided metrics (Returns, Beta, Sharpe, Risk Level) " +
	"to give factual, empathetic advice. Explain complex terms simply and keep answers short. " +
	"Always include the disclaimer: 'Mutual fund investments are subject to market risks'."

// Load reads server configuration from environment variables.
func Load() (Config, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY is required in environment")
	}

	return Config{
		Addr:                   envOrDefault("SARTHI_ADDR", ":8000"),
		DBPath:                 envOrDefault("SARTHI_DB_PATH", "asset_history.db"),
		GeminiAPIKey:           apiKey,
		GeminiModel:            envOrDefault("SARTHI_GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiEndpoint:         envOrDefault("SARTHI_GEMINI_ENDPOINT", "https://generativelanguage.googleapis.com/v1beta"),
		SystemPrompt:           envOrDefault("SARTHI_SYSTEM_PROMPT", DefaultSystemPrompt),
		MaxHistory:             envIntOrDefault("SARTHI_MAX_HISTORY", 10),
		MaxSessions:            envIntOrDefault("SARTHI_MAX_SESSIONS", 1000),
		SessionIdleSeconds:     envIntOrDefault("SARTHI_SESSION_IDLE_SECONDS", 3600),
		GenerateTimeoutSeconds: envIntOrDefault("SARTHI_GENERATE_TIMEOUT_SECONDS", 60),
		PredictURL:             envOrDefault("SARTHI_PREDICT_URL", "https://pred-mod-776087882401.europe-west1.run.app/predict"),
		PredictTimeoutSeconds:  envIntOrDefault("SARTHI_PREDICT_TIMEOUT_SECONDS", 30),
		FundsCSVPath:           envOrDefault("SARTHI_FUNDS_CSV_PATH", "MF_India_AI.csv"),
		FundsSampleLimit:       envIntOrDefault("SARTHI_FUNDS_SAMPLE_LIMIT", 20),
	}, nil
}

// GenerateTimeout returns the generation call timeout as a duration.
func (c Config) GenerateTimeout() time.Duration {
	return time.Duration(c.GenerateTimeoutSeconds) * time.Second
}

// SessionIdleTTL returns how long an unused session cache entry is kept.
func (c Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.SessionIdleSeconds) * time.Second
}

// PredictTimeout returns the prediction call timeout as a duration.
func (c Config) PredictTimeout() time.Duration {
	return time.Duration(c.PredictTimeoutSeconds) * time.Second
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
