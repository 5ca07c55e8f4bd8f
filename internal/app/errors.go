package service

import "errors"

// Sentinel errors returned by the service. Store and scoring sentinels pass
// through wrapped, so callers match them with errors.Is as well.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotStarted   = errors.New("service not started")
	ErrQueueFull    = errors.New("resolution queue full")
)
