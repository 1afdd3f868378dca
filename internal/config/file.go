package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// fileOverrides is the subset of Config that may be supplied via an
// optional TOML file, layered underneath the PM_* environment variables
// (env always wins — the file exists for operators who prefer a checked
// in configuration over exported shell variables).
type fileOverrides struct {
	CircuitBreaker CircuitBreakerConfig
	Retry          RetryConfig
	RateLimit      RateLimitConfig
	WebSocket      WebSocketConfig
	Handler        HandlerConfig
}

// LoadFile merges a TOML configuration file into base and re-validates.
// A missing file is not an error; callers pass an empty path to skip it.
func LoadFile(path string, base Config) (Config, error) {
	if path == "" {
		return base, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return base, nil
	}

	var f fileOverrides
	f.CircuitBreaker = base.CircuitBreaker
	f.Retry = base.Retry
	f.RateLimit = base.RateLimit
	f.WebSocket = base.WebSocket
	f.Handler = base.Handler

	if _, err := toml.DecodeFile(path, &f); err != nil {
		return Config{}, err
	}

	base.CircuitBreaker = f.CircuitBreaker
	base.Retry = f.Retry
	base.RateLimit = f.RateLimit
	base.WebSocket = f.WebSocket
	base.Handler = f.Handler

	if err := base.Validate(); err != nil {
		return Config{}, err
	}
	return base, nil
}
