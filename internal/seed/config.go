// Package seed drives a running Perimeter API with generated forecasters of
// known accuracy, then checks that the service ranks them accordingly.
package seed

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Defaults.
const (
	DefaultBaseURL             = "http://localhost:9080"
	DefaultForecasters         = 10
	DefaultClaimsPerForecaster = 12
	DefaultWorkers             = 8
	DefaultTimeout             = 30 * time.Second
	DefaultWaitTimeout         = time.Minute
	batchSize                  = 100
)

var ErrInvalidConfig = errors.New("invalid seed config")

// Config holds configuration for a seeding run.
type Config struct {
	BaseURL             string        // Base URL of the service
	Forecasters         int           // Number of forecasters to generate
	ClaimsPerForecaster int           // Claims per forecaster, spread over claim types
	Workers             int           // Concurrent HTTP requests
	Timeout             time.Duration // HTTP request timeout
	WaitTimeout         time.Duration // How long to wait for queued resolutions
	Async               bool          // Resolve through the queue instead of synchronously
	Seed                uint64        // Seed for generated actual values
	RunID               string        // Tags generated forecasters; random when empty
}

// DefaultConfig returns a Config with defaults filled in.
func DefaultConfig() Config {
	return Config{
		BaseURL:             DefaultBaseURL,
		Forecasters:         DefaultForecasters,
		ClaimsPerForecaster: DefaultClaimsPerForecaster,
		Workers:             DefaultWorkers,
		Timeout:             DefaultTimeout,
		WaitTimeout:         DefaultWaitTimeout,
		Seed:                1,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.BaseURL) == "":
		return fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	case c.Forecasters < 2:
		return fmt.Errorf("%w: need at least 2 forecasters", ErrInvalidConfig)
	case c.ClaimsPerForecaster < 1:
		return fmt.Errorf("%w: need at least 1 claim per forecaster", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: need at least 1 worker", ErrInvalidConfig)
	case c.Timeout <= 0 || c.WaitTimeout <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}
	return nil
}

// Stats holds run statistics.
type Stats struct {
	ClaimsCreated  int
	ClaimsResolved int
	Duplicates     int
	Ranked         int
	Conflicts      int
	Duration       time.Duration
}
