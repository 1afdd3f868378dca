// Package config loads the environment-driven configuration for pmsyncd,
// mirroring the PM_* environment variables and the per-concern tunables
// the resilience, websocket, and handler layers all read at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
)

func env(k, def string) string {
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
	return v == "true" || v == "1"
}

func envInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// CircuitBreakerConfig parameterizes C3.
type CircuitBreakerConfig struct {
	FailureThreshold       int // [1,100] default 5
	OpenDurationSecs       int // [1,300] default 30
	HalfOpenSuccessThresh  int // [1,50] default 3
	FailureWindowSecs      int // [1,600] default 60
}

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:      5,
		OpenDurationSecs:      30,
		HalfOpenSuccessThresh: 3,
		FailureWindowSecs:     60,
	}
}

func (c CircuitBreakerConfig) Validate() error {
	if c.FailureThreshold < 1 || c.FailureThreshold > 100 {
		return fmt.Errorf("circuit_breaker.failure_threshold must be in [1,100], got %d", c.FailureThreshold)
	}
	if c.OpenDurationSecs < 1 || c.OpenDurationSecs > 300 {
		return fmt.Errorf("circuit_breaker.open_duration_secs must be in [1,300], got %d", c.OpenDurationSecs)
	}
	if c.HalfOpenSuccessThresh < 1 || c.HalfOpenSuccessThresh > 50 {
		return fmt.Errorf("circuit_breaker.half_open_success_threshold must be in [1,50], got %d", c.HalfOpenSuccessThresh)
	}
	if c.FailureWindowSecs < 1 || c.FailureWindowSecs > 600 {
		return fmt.Errorf("circuit_breaker.failure_window_secs must be in [1,600], got %d", c.FailureWindowSecs)
	}
	return nil
}

// RetryConfig parameterizes C4.
type RetryConfig struct {
	MaxAttempts      int     // [1,10] default 3
	InitialDelayMs   int     // [10,10000] default 100
	MaxDelaySecs     int     // [1,60] default 5
	BackoffMultiplier float64 // [1.0,10.0] default 2.0
	Jitter           bool    // default true
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialDelayMs:    100,
		MaxDelaySecs:      5,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 1 || c.MaxAttempts > 10 {
		return fmt.Errorf("retry.max_attempts must be in [1,10], got %d", c.MaxAttempts)
	}
	if c.InitialDelayMs < 10 || c.InitialDelayMs > 10000 {
		return fmt.Errorf("retry.initial_delay_ms must be in [10,10000], got %d", c.InitialDelayMs)
	}
	if c.MaxDelaySecs < 1 || c.MaxDelaySecs > 60 {
		return fmt.Errorf("retry.max_delay_secs must be in [1,60], got %d", c.MaxDelaySecs)
	}
	if c.BackoffMultiplier < 1.0 || c.BackoffMultiplier > 10.0 {
		return fmt.Errorf("retry.backoff_multiplier must be in [1.0,10.0], got %f", c.BackoffMultiplier)
	}
	return nil
}

// RateLimitConfig parameterizes C2 (per connection). The REST per-user
// rate limiter in internal/httpapi takes its own httpapi.RateLimitInfo.
type RateLimitConfig struct {
	MaxRequests int   // [1,10000] default 100
	WindowSecs  int64 // [1,3600] default 60
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{MaxRequests: 100, WindowSecs: 60}
}

func (c RateLimitConfig) Validate() error {
	if c.MaxRequests < 1 || c.MaxRequests > 10000 {
		return fmt.Errorf("rate_limit.max_requests must be in [1,10000], got %d", c.MaxRequests)
	}
	if c.WindowSecs < 1 || c.WindowSecs > 3600 {
		return fmt.Errorf("rate_limit.window_secs must be in [1,3600], got %d", c.WindowSecs)
	}
	return nil
}

// WebSocketConfig parameterizes C10.
type WebSocketConfig struct {
	SendBufferSize        int // [1,10000] default 100
	HeartbeatIntervalSecs int // [5,300] default 30
	HeartbeatTimeoutSecs  int // [10,600] default 60, must exceed interval
}

func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{SendBufferSize: 100, HeartbeatIntervalSecs: 30, HeartbeatTimeoutSecs: 60}
}

func (c WebSocketConfig) Validate() error {
	if c.SendBufferSize < 1 || c.SendBufferSize > 10000 {
		return fmt.Errorf("websocket.send_buffer_size must be in [1,10000], got %d", c.SendBufferSize)
	}
	if c.HeartbeatIntervalSecs < 5 || c.HeartbeatIntervalSecs > 300 {
		return fmt.Errorf("websocket.heartbeat_interval_secs must be in [5,300], got %d", c.HeartbeatIntervalSecs)
	}
	if c.HeartbeatTimeoutSecs < 10 || c.HeartbeatTimeoutSecs > 600 {
		return fmt.Errorf("websocket.heartbeat_timeout_secs must be in [10,600], got %d", c.HeartbeatTimeoutSecs)
	}
	if c.HeartbeatTimeoutSecs <= c.HeartbeatIntervalSecs {
		return fmt.Errorf("websocket.heartbeat_timeout_secs (%d) must be strictly greater than heartbeat_interval_secs (%d)",
			c.HeartbeatTimeoutSecs, c.HeartbeatIntervalSecs)
	}
	return nil
}

// HandlerConfig parameterizes C11's per-request timeout.
type HandlerConfig struct {
	TimeoutSecs int // [1,300] default 30
}

func DefaultHandlerConfig() HandlerConfig { return HandlerConfig{TimeoutSecs: 30} }

func (c HandlerConfig) Validate() error {
	if c.TimeoutSecs < 1 || c.TimeoutSecs > 300 {
		return fmt.Errorf("handler.timeout_secs must be in [1,300], got %d", c.TimeoutSecs)
	}
	return nil
}

// ActivityLogConfig parameterizes C13's retention sweep.
type ActivityLogConfig struct {
	RetentionDays       int
	CleanupIntervalHrs  int
}

func DefaultActivityLogConfig() ActivityLogConfig {
	return ActivityLogConfig{RetentionDays: 90, CleanupIntervalHrs: 24}
}

// BroadcastConfig parameterizes C8's per-tenant channel capacity.
type BroadcastConfig struct {
	ChannelCapacity int
}

func DefaultBroadcastConfig() BroadcastConfig { return BroadcastConfig{ChannelCapacity: 1000} }

// ConnectionLimits parameterizes C6's admission control.
type ConnectionLimits struct {
	MaxPerTenant int
	MaxTotal     int
}

func DefaultConnectionLimits() ConnectionLimits {
	return ConnectionLimits{MaxPerTenant: 1000, MaxTotal: 10000}
}

// IdempotencyConfig parameterizes C5's retention sweep.
type IdempotencyConfig struct {
	RetentionHours int
}

func DefaultIdempotencyConfig() IdempotencyConfig { return IdempotencyConfig{RetentionHours: 24} }

// Config is the complete process configuration, assembled from PM_*
// environment variables plus the defaulted sub-configs above.
type Config struct {
	AuthEnabled  bool
	ServerHost   string
	ServerPort   int
	DatabasePath string
	LogLevel     string

	CircuitBreaker CircuitBreakerConfig
	Retry          RetryConfig
	RateLimit      RateLimitConfig
	WebSocket      WebSocketConfig
	Handler        HandlerConfig
	ActivityLog    ActivityLogConfig
	Broadcast      BroadcastConfig
	ConnLimits     ConnectionLimits
	Idempotency    IdempotencyConfig
}

// Load builds a Config from the process environment, applying defaults
// for every sub-config that has no override.
func Load() (Config, error) {
	c := Config{
		AuthEnabled:  envBool("PM_AUTH_ENABLED", true),
		ServerHost:   env("PM_SERVER_HOST", "0.0.0.0"),
		ServerPort:   envInt("PM_SERVER_PORT", 8080),
		DatabasePath: env("PM_DATABASE_PATH", "./data"),
		LogLevel:     env("PM_LOG_LEVEL", "info"),

		CircuitBreaker: DefaultCircuitBreakerConfig(),
		Retry:          DefaultRetryConfig(),
		RateLimit:      DefaultRateLimitConfig(),
		WebSocket:      DefaultWebSocketConfig(),
		Handler:        DefaultHandlerConfig(),
		ActivityLog:    DefaultActivityLogConfig(),
		Broadcast:      DefaultBroadcastConfig(),
		ConnLimits:     DefaultConnectionLimits(),
		Idempotency:    DefaultIdempotencyConfig(),
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if err := c.CircuitBreaker.Validate(); err != nil {
		return err
	}
	if err := c.Retry.Validate(); err != nil {
		return err
	}
	if err := c.RateLimit.Validate(); err != nil {
		return err
	}
	if err := c.WebSocket.Validate(); err != nil {
		return err
	}
	if err := c.Handler.Validate(); err != nil {
		return err
	}
	return nil
}

// TenantDatabasePath returns the per-tenant database file path, following
// the <base>/<tenant_id>/main.db layout.
func (c Config) TenantDatabasePath(tenantID string) string {
	return fmt.Sprintf("%s/%s/main.db", c.DatabasePath, tenantID)
}
