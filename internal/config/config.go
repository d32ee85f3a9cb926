package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	Port        string
	Environment string
	LogLevel    string

	DatabasePath string

	TranscribeURL          string
	TranscribeAPIKey       string
	TranscribePollInterval time.Duration
	TranscribeTimeout      time.Duration
	UseMockTranscribe      bool

	LLMGatewayURL string
	LLMAPIKey     string
	LLMModel      string
	LLMTimeout    time.Duration
	UseMockLLM    bool

	WorkerConcurrency int
	MaxAudioBytes     int64
}

func Load() *Config {
	return &Config{
		Port:        envOr("PORT", "8080"),
		Environment: envOr("ENVIRONMENT", "local"),
		LogLevel:    envOr("LOG_LEVEL", "info"),

		DatabasePath: envOr("DATABASE_PATH", "data/memos.db"),

		TranscribeURL:          os.Getenv("TRANSCRIBE_URL"),
		TranscribeAPIKey:       os.Getenv("TRANSCRIBE_API_KEY"),
		TranscribePollInterval: envDuration("TRANSCRIBE_POLL_INTERVAL", 1500*time.Millisecond),
		TranscribeTimeout:      envDuration("TRANSCRIBE_TIMEOUT", 2*time.Minute),
		UseMockTranscribe:      envBool("USE_MOCK_TRANSCRIBE", false),

		LLMGatewayURL: os.Getenv("LLM_GATEWAY_URL"),
		LLMAPIKey:     os.Getenv("LLM_API_KEY"),
		LLMModel:      envOr("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeout:    envDuration("LLM_TIMEOUT", 45*time.Second),
		UseMockLLM:    envBool("USE_MOCK_LLM", false),

		WorkerConcurrency: envInt("WORKER_CONCURRENCY", 4),
		MaxAudioBytes:     int64(envInt("MAX_AUDIO_BYTES", 25<<20)),
	}
}

// Validate reports adapter endpoints that are required but missing.
func (c *Config) Validate() error {
	var errs []error
	if !c.UseMockTranscribe && c.TranscribeURL == "" {
		errs = append(errs, errors.New("TRANSCRIBE_URL not set (or set USE_MOCK_TRANSCRIBE=true)"))
	}
	if !c.UseMockLLM && (c.LLMGatewayURL == "" || c.LLMAPIKey == "") {
		errs = append(errs, errors.New("LLM_GATEWAY_URL and LLM_API_KEY required (or set USE_MOCK_LLM=true)"))
	}
	if c.WorkerConcurrency < 1 {
		errs = append(errs, errors.New("WORKER_CONCURRENCY must be at least 1"))
	}
	return errors.Join(errs...)
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(k string, def int) int {
	v, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	return v
}

func envDuration(k string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(k))
	if err != nil {
		return def
	}
	return v
}
