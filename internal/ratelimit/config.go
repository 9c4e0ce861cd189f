// Package ratelimit throttles REST callers with a token bucket per key,
// kept in memory or in Redis
package ratelimit

import (
	"fmt"
	"strings"
	"time"
)

// Backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Key prefixes select the limit applied to a key
const (
	PrefixEmergency = "emergency:"
	PrefixUser      = "user:"
)

// Config holds rate limiter configuration
type Config struct {
	Enabled bool   `mapstructure:"enabled"`
	Backend string `mapstructure:"backend"`

	// DefaultRPS is the per-principal rate for ordinary requests
	DefaultRPS int `mapstructure:"default_rps"`

	// EmergencyRPS is the per-principal rate for emergency token requests
	EmergencyRPS int `mapstructure:"emergency_rps"`

	// BurstFactor multiplies the rate into the bucket capacity
	BurstFactor int `mapstructure:"burst_factor"`

	// Window is the period the rates are expressed over
	Window time.Duration `mapstructure:"window"`

	// KeyPrefix namespaces Redis keys
	KeyPrefix string `mapstructure:"key_prefix"`

	// FailOpen allows requests when the backend is unavailable
	FailOpen bool `mapstructure:"fail_open"`
}

// DefaultConfig returns default rate limiter configuration
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		Backend:      BackendMemory,
		DefaultRPS:   100,
		EmergencyRPS: 5,
		BurstFactor:  2,
		Window:       time.Second,
		KeyPrefix:    "ehr:ratelimit",
		FailOpen:     true,
	}
}

// Validate validates the configuration
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch c.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("invalid rate limit backend: %s (must be memory or redis)", c.Backend)
	}
	if c.DefaultRPS <= 0 || c.EmergencyRPS <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.BurstFactor < 1 {
		return fmt.Errorf("burst factor must be at least 1, got %d", c.BurstFactor)
	}
	if c.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive, got %s", c.Window)
	}
	return nil
}

// GetLimit returns the rate for a key
func (c Config) GetLimit(key string) int {
	if strings.HasPrefix(key, PrefixEmergency) {
		return c.EmergencyRPS
	}
	return c.DefaultRPS
}

// GetBurst returns the bucket capacity for a key
func (c Config) GetBurst(key string) int {
	factor := c.BurstFactor
	if factor < 1 {
		factor = 1
	}
	return c.GetLimit(key) * factor
}

// refillRate is the number of tokens added per second
func (c Config) refillRate(key string) float64 {
	window := c.Window.Seconds()
	if window <= 0 {
		window = 1
	}
	return float64(c.GetLimit(key)) / window
}
