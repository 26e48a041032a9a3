package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
)

// Config stores runtime configuration loaded from environment variables.
// The upstream credential is threaded explicitly from here into every
// pipeline invocation; there is no process-wide mutable credential state.
type Config struct {
	OpenAIKey         string
	OpenAIEndpoint    string
	OpenAIAltEndpoint string
	OpenAIModel       string

	RequestTimeout time.Duration
	MaxAttempts    int
	RetryBaseDelay time.Duration

	ChunkBudget     int
	ChunkDelay      time.Duration
	FallbackCardCap int
	DefaultLanguage string

	AnkiURL  string
	DeckName string

	UploadDir string
	Port      int
}

// Load reads configuration from the environment, providing sensible defaults.
// An absent OPENAI_API_KEY is not an error: the pipeline then routes every
// request through the offline fallback extractor.
func Load() (Config, error) {
	// Load .env file if it exists (useful for development)
	_ = godotenv.Load()
	cfg := Config{
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIEndpoint:    getEnv("OPENAI_API_ENDPOINT", "https://api.openai.com/v1"),
		OpenAIAltEndpoint: os.Getenv("OPENAI_API_ALT_ENDPOINT"),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		RequestTimeout:    getEnvDuration("UPSTREAM_TIMEOUT", 2*time.Minute),
		MaxAttempts:       getEnvInt("UPSTREAM_MAX_ATTEMPTS", 5),
		RetryBaseDelay:    getEnvDuration("UPSTREAM_RETRY_BASE_DELAY", time.Second),
		ChunkBudget:       getEnvInt("CHUNK_BUDGET", 6000),
		ChunkDelay:        getEnvDuration("CHUNK_DELAY", 1500*time.Millisecond),
		FallbackCardCap:   getEnvInt("FALLBACK_CARD_CAP", 30),
		DefaultLanguage:   getEnv("DEFAULT_LANGUAGE", "english"),
		AnkiURL:           getEnv("ANKICONNECT_URL", "http://localhost:8765"),
		DeckName:          getEnv("ANKI_DECK", "Study Notes"),
		UploadDir:         getEnv("UPLOAD_DIR", "./static/uploads"),
		Port:              getEnvInt("PORT", 8080),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure upload dir %s: %w", cfg.UploadDir, err)
	}
	return cfg, nil
}

// Validate checks that tuning values are inside workable bounds.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.OpenAIModel, validation.Required),
		validation.Field(&c.OpenAIEndpoint, validation.Required),
		validation.Field(&c.MaxAttempts, validation.Min(1), validation.Max(10)),
		validation.Field(&c.ChunkBudget, validation.Min(200)),
		validation.Field(&c.FallbackCardCap, validation.Min(1), validation.Max(100)),
		validation.Field(&c.DefaultLanguage, validation.Required, validation.In("english", "norwegian")),
		validation.Field(&c.AnkiURL, validation.Required),
		validation.Field(&c.Port, validation.Min(1), validation.Max(65535)),
	)
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
