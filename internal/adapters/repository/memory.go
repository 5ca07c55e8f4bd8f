package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/perimeter/internal/domain/model"
	"github.com/okian/perimeter/pkg/metrics"
)

// MemoryStore is a Store held in process memory. Safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	claims      map[string]*model.Claim
	outcomes    map[string]model.Outcome // by claim ID
	forecasters map[string]model.Forecaster
	handles     map[handle]string // (username, platform) -> forecaster ID
	closed      bool
	now         func() time.Time
}

type handle struct{ username, platform string }

var _ Store = (*MemoryStore)(nil)

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock overrides the clock used for timestamps.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		claims:      make(map[string]*model.Claim),
		outcomes:    make(map[string]model.Outcome),
		forecasters: make(map[string]model.Forecaster),
		handles:     make(map[handle]string),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateClaim stores a new claim, defaulting its timestamps and status.
func (s *MemoryStore) CreateClaim(_ context.Context, c model.Claim) (model.Claim, error) {
	defer ObserveLatency("create_claim", time.Now())

	if c.ID == "" {
		return model.Claim{}, fmt.Errorf("%w: missing id", ErrInvalidClaim)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.Claim{}, ErrClosed
	}
	if _, ok := s.claims[c.ID]; ok {
		return model.Claim{}, fmt.Errorf("%w: claim %s exists", ErrConflict, c.ID)
	}
	if c.ForecasterID != "" {
		if _, ok := s.forecasters[c.ForecasterID]; !ok {
			return model.Claim{}, fmt.Errorf("%w: forecaster %s", ErrNotFound, c.ForecasterID)
		}
	}

	now := s.now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	if c.Status == "" {
		c.Status = model.StatusPending
	}
	stored := c
	s.claims[c.ID] = &stored
	metrics.UpdateRepositoryRecords("claims", len(s.claims))
	return c, nil
}

// GetClaim returns the claim with id.
func (s *MemoryStore) GetClaim(_ context.Context, id string) (model.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.claims[id]
	if !ok {
		return model.Claim{}, fmt.Errorf("%w: claim %s", ErrNotFound, id)
	}
	return *c, nil
}

// ListClaims returns matching claims newest first, paged by the filter.
func (s *MemoryStore) ListClaims(_ context.Context, f ClaimFilter) ([]model.Claim, error) {
	defer ObserveLatency("list_claims", time.Now())

	f, err := f.Normalize()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	matched := make([]model.Claim, 0)
	for _, c := range s.claims {
		if f.Matches(c) {
			matched = append(matched, *c)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	if f.Offset >= len(matched) {
		return []model.Claim{}, nil
	}
	end := min(f.Offset+f.Limit, len(matched))
	return matched[f.Offset:end], nil
}

// Records pairs every matching claim with its outcome, ordered by claim ID.
func (s *MemoryStore) Records(_ context.Context, f RecordFilter) ([]model.Record, error) {
	defer ObserveLatency("records", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Record, 0, len(s.claims))
	for _, c := range s.claims {
		if !f.Matches(c) {
			continue
		}
		r := model.Record{Claim: *c}
		if o, ok := s.outcomes[c.ID]; ok {
			r.Outcome = &o
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Claim.ID < out[j].Claim.ID })
	return out, nil
}

// InsertOutcome stores the single outcome of a claim and marks it resolved.
func (s *MemoryStore) InsertOutcome(_ context.Context, o model.Outcome) (model.Outcome, error) {
	defer ObserveLatency("insert_outcome", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.Outcome{}, ErrClosed
	}

	c, ok := s.claims[o.ClaimID]
	if !ok {
		return model.Outcome{}, fmt.Errorf("%w: claim %s", ErrNotFound, o.ClaimID)
	}
	if _, exists := s.outcomes[o.ClaimID]; exists || c.Status == model.StatusResolved {
		return model.Outcome{}, fmt.Errorf("%w: claim %s already resolved", ErrConflict, o.ClaimID)
	}

	now := s.now().UTC()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.VerifiedAt.IsZero() {
		o.VerifiedAt = o.CreatedAt
	}
	s.outcomes[o.ClaimID] = o
	c.Status = model.StatusResolved
	c.UpdatedAt = o.CreatedAt
	metrics.UpdateRepositoryRecords("outcomes", len(s.outcomes))
	return o, nil
}

// GetOutcome returns the outcome of claimID.
func (s *MemoryStore) GetOutcome(_ context.Context, claimID string) (model.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.outcomes[claimID]
	if !ok {
		return model.Outcome{}, fmt.Errorf("%w: outcome for claim %s", ErrNotFound, claimID)
	}
	return o, nil
}

// UpsertForecaster creates a forecaster, or renames the one already holding
// the same username and platform.
func (s *MemoryStore) UpsertForecaster(_ context.Context, f model.Forecaster) (model.Forecaster, error) {
	defer ObserveLatency("upsert_forecaster", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.Forecaster{}, ErrClosed
	}

	if f.Name == "" {
		f.Name = DefaultForecasterName
	}
	if f.Platform == "" {
		f.Platform = DefaultForecasterPlatform
	}

	if f.Username != "" {
		key := handle{f.Username, f.Platform}
		if id, ok := s.handles[key]; ok {
			existing := s.forecasters[id]
			existing.Name = f.Name
			s.forecasters[id] = existing
			return existing, nil
		}
	}

	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if _, ok := s.forecasters[f.ID]; ok {
		return model.Forecaster{}, fmt.Errorf("%w: forecaster %s exists", ErrConflict, f.ID)
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now().UTC()
	}
	s.forecasters[f.ID] = f
	if f.Username != "" {
		s.handles[handle{f.Username, f.Platform}] = f.ID
	}
	metrics.UpdateRepositoryRecords("forecasters", len(s.forecasters))
	return f, nil
}

// GetForecaster returns the forecaster with id.
func (s *MemoryStore) GetForecaster(_ context.Context, id string) (model.Forecaster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.forecasters[id]
	if !ok {
		return model.Forecaster{}, fmt.Errorf("%w: forecaster %s", ErrNotFound, id)
	}
	return f, nil
}

// Forecasters returns a copy of every forecaster keyed by ID.
func (s *MemoryStore) Forecasters(context.Context) (map[string]model.Forecaster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.Forecaster, len(s.forecasters))
	for id, f := range s.forecasters {
		out[id] = f
	}
	return out, nil
}

// ExpireOverdue marks pending claims past their deadline as expired.
func (s *MemoryStore) ExpireOverdue(_ context.Context, now time.Time) (int, error) {
	defer ObserveLatency("expire_overdue", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	n := 0
	for _, c := range s.claims {
		if c.Overdue(now) {
			c.Status = model.StatusExpired
			c.UpdatedAt = now.UTC()
			n++
		}
	}
	return n, nil
}

// Count implements Store.
func (s *MemoryStore) Count(context.Context) (Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Counts{Claims: len(s.claims), Outcomes: len(s.outcomes), Forecasters: len(s.forecasters)}, nil
}

// Ping fails once the store is closed.
func (s *MemoryStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close marks the store closed; reads keep working, writes fail.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
