package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/okian/perimeter/internal/adapters/mq/queue"
	"github.com/okian/perimeter/internal/adapters/repository"
	"github.com/okian/perimeter/internal/domain/model"
	"github.com/okian/perimeter/internal/domain/scoring"
	"github.com/okian/perimeter/pkg/logger"
	"github.com/okian/perimeter/pkg/metrics"
)

// ResolveInput is the observed outcome of a claim. The set field of Actual
// must agree with the claim type.
type ResolveInput struct {
	ClaimID    string
	Actual     model.Flat
	DataSource string
	VerifiedAt *time.Time
}

// EnqueueResult counts what happened to a batch of queued resolutions.
type EnqueueResult struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
}

// Resolve scores the claim against the actual value and stores the outcome.
// A claim can be resolved once; later attempts fail with
// repository.ErrConflict and leave the stored outcome untouched.
func (s *Service) Resolve(ctx context.Context, in ResolveInput) (model.Outcome, error) {
	actual, err := in.Actual.Unflatten()
	if err != nil {
		return model.Outcome{}, fmt.Errorf("%w: actual: %v", ErrInvalidInput, err)
	}
	r := model.Resolution{ClaimID: in.ClaimID, Actual: actual, DataSource: in.DataSource}
	if in.VerifiedAt != nil {
		r.VerifiedAt = *in.VerifiedAt
	}
	return s.resolve(ctx, r)
}

// ApplyResolution resolves one queued resolution. It is the worker pool's
// Resolver.
func (s *Service) ApplyResolution(ctx context.Context, r model.Resolution) (model.Outcome, error) {
	return s.resolve(ctx, r)
}

func (s *Service) resolve(ctx context.Context, r model.Resolution) (_ model.Outcome, err error) {
	ctx, span := s.span(ctx, "Resolve", attribute.String("claim_id", r.ClaimID))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(r.ClaimID) == "" {
		return model.Outcome{}, fmt.Errorf("%w: claim id is required", ErrInvalidInput)
	}
	claim, err := s.store.GetClaim(ctx, r.ClaimID)
	if err != nil {
		return model.Outcome{}, err
	}
	if claim.Status == model.StatusResolved {
		metrics.RecordResolutionConflict()
		return model.Outcome{}, fmt.Errorf("%w: claim %s already resolved", repository.ErrConflict, claim.ID)
	}
	if p, ok := r.Actual.(model.Probabilistic); ok && (p.Probability < 0 || p.Probability > 1) {
		return model.Outcome{}, fmt.Errorf("%w: actual probability %g outside [0,1]", ErrInvalidInput, p.Probability)
	}

	now := s.now().UTC()
	outcome := model.Outcome{
		ID:         uuid.NewString(),
		ClaimID:    claim.ID,
		Actual:     r.Actual,
		DataSource: strings.TrimSpace(r.DataSource),
		VerifiedAt: now,
		CreatedAt:  now,
	}
	if !r.VerifiedAt.IsZero() {
		outcome.VerifiedAt = r.VerifiedAt.UTC()
	}

	start := time.Now()
	score, err := s.engine.Calculate(claim, outcome)
	metrics.RecordScoringLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		metrics.RecordScoringError(scoring.Kind(err))
		return model.Outcome{}, err
	}
	outcome.PerimeterScore = score

	stored, err := s.store.InsertOutcome(ctx, outcome)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			metrics.RecordResolutionConflict()
		}
		return model.Outcome{}, err
	}

	metrics.RecordOutcomeResolved(string(claim.Domain), score)
	s.cache.InvalidateDomain(claim.Domain)
	s.logger.Debug(ctx, "claim resolved",
		logger.String("claimID", claim.ID),
		logger.String("domain", string(claim.Domain)),
		logger.Float64("score", score),
	)
	return stored, nil
}

// EnqueueResolutions queues resolutions for the worker pool. A claim that
// already has a resolution in flight counts as a duplicate; a full queue
// rejects the rest of the batch. When nothing is accepted because the queue
// is full, ErrQueueFull is returned along with the counts.
func (s *Service) EnqueueResolutions(ctx context.Context, batch []model.Resolution) (_ EnqueueResult, err error) {
	ctx, span := s.span(ctx, "EnqueueResolutions", attribute.Int("batch", len(batch)))
	defer func() { endSpan(span, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return EnqueueResult{}, ErrNotStarted
	}

	for i, r := range batch {
		if strings.TrimSpace(r.ClaimID) == "" {
			return EnqueueResult{}, fmt.Errorf("%w: resolution %d: claim id is required", ErrInvalidInput, i)
		}
		if !model.Present(r.Actual) {
			return EnqueueResult{}, fmt.Errorf("%w: resolution %d: actual is required", ErrInvalidInput, i)
		}
	}

	var res EnqueueResult
	for i, r := range batch {
		if s.deduper.SeenAndRecord(ctx, r.ClaimID) {
			metrics.RecordResolutionDuplicate()
			res.Duplicates++
			continue
		}
		if err := s.queue.Enqueue(ctx, r); err != nil {
			s.deduper.Unrecord(ctx, r.ClaimID)
			if errors.Is(err, queue.ErrFull) {
				res.Rejected += len(batch) - i
				break
			}
			return res, err
		}
		res.Accepted++
	}

	if res.Accepted == 0 && res.Rejected > 0 {
		return res, ErrQueueFull
	}
	return res, nil
}
