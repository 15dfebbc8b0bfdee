package game

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/samdwyer/mudlink/internal/push"
	"github.com/samdwyer/mudlink/internal/session"
)

// Config holds client configuration, read from MUDLINK_* environment variables.
type Config struct {
	// APIBase is the request channel's base URL.
	APIBase string
	// WSBase is the push channel's base URL. Derived from APIBase when unset.
	WSBase string
	// StateFile keeps the resumable session between runs. Empty disables it.
	StateFile string
	// RequestTimeout bounds each request; 0 leaves requests unbounded.
	RequestTimeout time.Duration
	// RequestRetries is how often idempotent requests are retried.
	RequestRetries int
	// ReconnectAttempts is how often a dropped push channel is redialed.
	ReconnectAttempts int
	// MaxLogLines caps the session log; 0 is unbounded.
	MaxLogLines int

	LogFile  string
	LogLevel string

	HoneycombAPIKey  string
	HoneycombDataset string
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		APIBase:        "http://localhost:8000",
		StateFile:      session.DefaultStatePath(),
		RequestRetries: 2,
		MaxLogLines:    session.DefaultMaxLogLines,
		LogFile:        "mudlink.log",
		LogLevel:       "info",
	}
}

// ConfigFromEnv reads the process environment.
func ConfigFromEnv() (Config, error) {
	return LoadConfig(os.Getenv)
}

// LoadConfig reads configuration through getenv, starting from DefaultConfig.
func LoadConfig(getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()

	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v := getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("%s must be a non-negative integer, got %q", key, v)
		}
		*dst = n
		return nil
	}

	str("MUDLINK_API_BASE", &cfg.APIBase)
	str("MUDLINK_WS_BASE", &cfg.WSBase)
	str("MUDLINK_STATE_FILE", &cfg.StateFile)
	str("MUDLINK_LOG_FILE", &cfg.LogFile)
	str("MUDLINK_LOG_LEVEL", &cfg.LogLevel)
	str("MUDLINK_HONEYCOMB_API_KEY", &cfg.HoneycombAPIKey)
	str("MUDLINK_HONEYCOMB_DATASET", &cfg.HoneycombDataset)

	if v := getenv("MUDLINK_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return cfg, fmt.Errorf("MUDLINK_REQUEST_TIMEOUT must be a duration such as 10s, got %q", v)
		}
		cfg.RequestTimeout = d
	}
	if err := num("MUDLINK_REQUEST_RETRIES", &cfg.RequestRetries); err != nil {
		return cfg, err
	}
	if err := num("MUDLINK_RECONNECT_ATTEMPTS", &cfg.ReconnectAttempts); err != nil {
		return cfg, err
	}
	if err := num("MUDLINK_MAX_LOG_LINES", &cfg.MaxLogLines); err != nil {
		return cfg, err
	}

	if cfg.WSBase == "" {
		cfg.WSBase = push.WSBase(cfg.APIBase)
	}
	return cfg, nil
}
