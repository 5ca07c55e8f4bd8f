// Package config defines service configuration and its layered loading.
package config

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// StoragePath is the SQLite database file. Empty keeps everything in memory.
	StoragePath string `koanf:"storage_path"`

	// QueueSize bounds the async resolution queue.
	QueueSize int `koanf:"queue_size" validate:"min=1"`

	// WorkerCount sets the number of resolution workers.
	WorkerCount int `koanf:"worker_count" validate:"min=1"`

	// DedupeSize bounds the in-flight resolution guard. Zero is unbounded.
	DedupeSize int `koanf:"dedupe_size" validate:"min=0"`

	// MaxLeaderboardLimit caps GET /v1/leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit" validate:"min=1"`

	// DefaultMinClaims applies when a leaderboard request gives none.
	DefaultMinClaims int `koanf:"default_min_claims" validate:"min=1"`

	// DefaultTrendDays and MaxTrendDays bound GET /v1/analytics/trends?days.
	DefaultTrendDays int `koanf:"default_trend_days" validate:"min=1,ltefield=MaxTrendDays"`
	MaxTrendDays     int `koanf:"max_trend_days" validate:"min=1,max=3660"`

	// CacheTTLSeconds is the read-model cache lifetime. Zero disables caching.
	CacheTTLSeconds     int `koanf:"cache_ttl_seconds" validate:"min=0"`
	CacheCleanupSeconds int `koanf:"cache_cleanup_seconds" validate:"min=1"`

	// RateLimitRPS limits API requests per second. Zero disables the limiter.
	RateLimitRPS   float64 `koanf:"rate_limit_rps" validate:"min=0"`
	RateLimitBurst int     `koanf:"rate_limit_burst" validate:"min=1"`

	// ExpirySweepSeconds is how often overdue claims are expired. Zero disables the sweep.
	ExpirySweepSeconds int `koanf:"expiry_sweep_seconds" validate:"min=0"`

	// RangesFile is an optional YAML overlay on the built-in numeric ranges.
	RangesFile string `koanf:"ranges_file"`

	// CategoricalMatcher selects categorical scoring: containment or levenshtein.
	CategoricalMatcher string `koanf:"categorical_matcher" validate:"oneof=containment levenshtein"`
}

// New returns a Config holding the defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		QueueSize:           10_000,
		WorkerCount:         runtime.NumCPU(),
		DedupeSize:          50_000,
		MaxLeaderboardLimit: 500,
		DefaultMinClaims:    1,
		DefaultTrendDays:    30,
		MaxTrendDays:        365,
		CacheTTLSeconds:     30,
		CacheCleanupSeconds: 60,
		RateLimitRPS:        100,
		RateLimitBurst:      200,
		ExpirySweepSeconds:  60,
		CategoricalMatcher:  "containment",
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed %q", ErrInvalidConfig, verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// CacheTTL returns the cache lifetime.
func (c *Config) CacheTTL() time.Duration { return time.Duration(c.CacheTTLSeconds) * time.Second }

// CacheCleanup returns the cache purge interval.
func (c *Config) CacheCleanup() time.Duration {
	return time.Duration(c.CacheCleanupSeconds) * time.Second
}

// ExpirySweep returns the expiry sweep interval.
func (c *Config) ExpirySweep() time.Duration {
	return time.Duration(c.ExpirySweepSeconds) * time.Second
}
