package coach

import (
	"os"
	"strconv"
	"time"
)

// Defaults for values not set in the environment.
const (
	DefaultMaxTokens    = 4096
	DefaultEditLeaseTTL = 2 * time.Minute
)

// AppConfig holds configuration loaded from environment variables.
type AppConfig struct {
	DatabaseURL  string
	GeminiAPI    string
	ModelID      string
	MaxTokens    int
	EditLeaseTTL time.Duration
}

// LoadConfig loads configuration from environment variables with sensible
// defaults.
func LoadConfig() AppConfig {
	cfg := AppConfig{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		GeminiAPI:    os.Getenv("GEMINI_API"),
		ModelID:      os.Getenv("MODEL_ID"),
		MaxTokens:    DefaultMaxTokens,
		EditLeaseTTL: DefaultEditLeaseTTL,
	}

	if mt := os.Getenv("MAX_TOKENS"); mt != "" {
		if parsed, err := strconv.Atoi(mt); err == nil && parsed > 0 {
			cfg.MaxTokens = parsed
		}
	}

	if ttl := os.Getenv("EDIT_LEASE_TTL"); ttl != "" {
		if parsed, err := time.ParseDuration(ttl); err == nil && parsed > 0 {
			cfg.EditLeaseTTL = parsed
		}
	}

	return cfg
}
