// Package repository defines the persistence contract for claims, outcomes and
// forecasters, with an in-memory implementation. Leaderboards and analytics
// are never stored; they are derived from Records.
package repository

import (
	"context"
	"time"

	"github.com/okian/perimeter/internal/domain/model"
	"github.com/okian/perimeter/pkg/metrics"
)

// Listing bounds.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Forecaster defaults applied on upsert.
const (
	DefaultForecasterName     = "Unknown"
	DefaultForecasterPlatform = "manual"
)

// ClaimFilter narrows ListClaims. Zero fields do not filter.
type ClaimFilter struct {
	Domain       model.Domain
	Status       model.Status
	ForecasterID string
	// Limit defaults to DefaultListLimit and is capped at MaxListLimit.
	Limit  int
	Offset int
}

// Normalize applies defaults and rejects negative paging.
func (f ClaimFilter) Normalize() (ClaimFilter, error) {
	if f.Limit < 0 || f.Offset < 0 {
		return f, ErrInvalidLimit
	}
	if f.Limit == 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	return f, nil
}

// Matches reports whether c passes the filter's predicates.
func (f ClaimFilter) Matches(c *model.Claim) bool {
	return (f.Domain == "" || c.Domain == f.Domain) &&
		(f.Status == "" || c.Status == f.Status) &&
		(f.ForecasterID == "" || c.ForecasterID == f.ForecasterID)
}

// TimePrecision is the resolution at which stores compare timestamps.
// The SQLite store persists milliseconds.
const TimePrecision = time.Millisecond

// RecordFilter narrows Records. Since filters on claim creation time at
// TimePrecision and is ignored when zero.
type RecordFilter struct {
	Domain model.Domain
	Since  time.Time
}

// Matches reports whether c passes the filter.
func (f RecordFilter) Matches(c *model.Claim) bool {
	return (f.Domain == "" || c.Domain == f.Domain) &&
		(f.Since.IsZero() || !c.CreatedAt.Truncate(TimePrecision).Before(f.Since.Truncate(TimePrecision)))
}

// Counts summarises store size.
type Counts struct {
	Claims      int `json:"claims"`
	Outcomes    int `json:"outcomes"`
	Forecasters int `json:"forecasters"`
}

// Store persists claims, their outcomes and forecasters.
type Store interface {
	// CreateClaim stores a new claim. The ID must be set and unused.
	CreateClaim(ctx context.Context, c model.Claim) (model.Claim, error)
	GetClaim(ctx context.Context, id string) (model.Claim, error)
	// ListClaims returns claims newest first.
	ListClaims(ctx context.Context, f ClaimFilter) ([]model.Claim, error)
	// Records returns every matching claim with its outcome, if any.
	Records(ctx context.Context, f RecordFilter) ([]model.Record, error)

	// InsertOutcome stores the single outcome of a claim and marks the claim
	// resolved in the same step. A claim that already has an outcome yields
	// ErrConflict and the stored outcome is untouched; an unknown claim yields
	// ErrNotFound.
	InsertOutcome(ctx context.Context, o model.Outcome) (model.Outcome, error)
	GetOutcome(ctx context.Context, claimID string) (model.Outcome, error)

	// UpsertForecaster matches on (username, platform) when a username is
	// given, updating the name; otherwise it inserts.
	UpsertForecaster(ctx context.Context, f model.Forecaster) (model.Forecaster, error)
	GetForecaster(ctx context.Context, id string) (model.Forecaster, error)
	Forecasters(ctx context.Context) (map[string]model.Forecaster, error)

	// ExpireOverdue marks pending claims whose deadline is before now as
	// expired and returns how many changed.
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)

	Count(ctx context.Context) (Counts, error)
	Ping(ctx context.Context) error
	Close() error
}

// ObserveLatency records the duration of a store operation started at start.
func ObserveLatency(operation string, start time.Time) {
	metrics.RecordRepositoryLatency(operation, float64(time.Since(start).Microseconds())/1000)
}
