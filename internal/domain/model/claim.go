// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// Domain names the subject area of a claim. The set is open: any domain the
// range registry knows about is accepted.
type Domain string

// Built-in domains.
const (
	DomainEconomy     Domain = "economy"
	DomainPolitics    Domain = "politics"
	DomainTechnology  Domain = "technology"
	DomainEarthquakes Domain = "earthquakes"
)

// ClaimType selects how a claim is encoded and scored.
type ClaimType string

// Supported claim types.
const (
	TypeNumeric       ClaimType = "numeric"
	TypeCategorical   ClaimType = "categorical"
	TypeProbabilistic ClaimType = "probabilistic"
)

// ClaimTypes lists the supported claim types in a stable order.
func ClaimTypes() []ClaimType {
	return []ClaimType{TypeNumeric, TypeCategorical, TypeProbabilistic}
}

// ParseClaimType validates a claim type token.
func ParseClaimType(s string) (ClaimType, error) {
	t := ClaimType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case TypeNumeric, TypeCategorical, TypeProbabilistic:
		return t, nil
	}
	return "", ErrUnknownClaimType
}

// Status is the lifecycle state of a claim.
type Status string

// Claim statuses.
const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusExpired  Status = "expired"
	StatusInvalid  Status = "invalid"
)

// Statuses lists the claim statuses in a stable order.
func Statuses() []Status {
	return []Status{StatusPending, StatusResolved, StatusExpired, StatusInvalid}
}

// ParseStatus validates a status token.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusResolved, StatusExpired, StatusInvalid:
		return st, nil
	}
	return "", ErrUnknownStatus
}

// Claim is a recorded prediction awaiting or having received an outcome.
type Claim struct {
	ID           string
	ForecasterID string // optional; empty when the author is unknown
	Text         string
	Domain       Domain
	Subtype      string // optional range key inside the domain, e.g. "cpi"
	Type         ClaimType
	Prediction   Value
	Status       Status
	Deadline     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Overdue reports whether a pending claim has passed its deadline.
func (c *Claim) Overdue(now time.Time) bool {
	return c.Status == StatusPending && c.Deadline != nil && now.After(*c.Deadline)
}

// Outcome is the realized value tied 1:1 to a claim, carrying its score.
// Outcomes are immutable once stored.
type Outcome struct {
	ID             string
	ClaimID        string
	Actual         Value
	PerimeterScore float64
	DataSource     string
	VerifiedAt     time.Time
	CreatedAt      time.Time
}

// Forecaster is the author of zero or more claims.
type Forecaster struct {
	ID        string
	Name      string
	Username  string
	Platform  string
	Verified  bool
	CreatedAt time.Time
}

// DisplayName returns the name, falling back to the handle and then the id.
func (f Forecaster) DisplayName() string {
	switch {
	case f.Name != "":
		return f.Name
	case f.Username != "":
		return f.Username
	default:
		return f.ID
	}
}

// Record pairs a claim with its outcome. Outcome is nil while unresolved.
type Record struct {
	Claim   Claim
	Outcome *Outcome
}

// Scored reports whether the record is resolved and carries a score.
func (r Record) Scored() bool {
	return r.Claim.Status == StatusResolved && r.Outcome != nil
}

// Resolution is a request to resolve a claim, processed asynchronously.
type Resolution struct {
	ClaimID    string
	Actual     Value
	DataSource string
	VerifiedAt time.Time // zero means the time it is applied
}
