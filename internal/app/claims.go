package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/okian/perimeter/internal/adapters/repository"
	"github.com/okian/perimeter/internal/domain/model"
	"github.com/okian/perimeter/pkg/logger"
	"github.com/okian/perimeter/pkg/metrics"
)

// ForecasterInput identifies the author of a new claim. A username is
// matched per platform, so repeated submissions reuse the forecaster.
type ForecasterInput struct {
	Name     string
	Username string
	Platform string
}

// ClaimInput is a claim submission. Exactly one field of Prediction must be
// set and it must agree with Type.
type ClaimInput struct {
	Text         string
	Domain       string
	Subtype      string
	Type         string
	Prediction   model.Flat
	Deadline     *time.Time
	ForecasterID string
	Forecaster   *ForecasterInput
}

// ClaimDetail is a claim with its outcome and author, when present.
type ClaimDetail struct {
	Claim      model.Claim
	Outcome    *model.Outcome
	Forecaster *model.Forecaster
}

// CreateClaim validates and stores a new pending claim.
func (s *Service) CreateClaim(ctx context.Context, in ClaimInput) (_ model.Claim, err error) {
	ctx, span := s.span(ctx, "CreateClaim", attribute.String("domain", in.Domain))
	defer func() { endSpan(span, err) }()

	claim, err := s.buildClaim(in)
	if err != nil {
		return model.Claim{}, err
	}

	switch {
	case in.Forecaster != nil:
		f, err := s.store.UpsertForecaster(ctx, model.Forecaster{
			Name:     strings.TrimSpace(in.Forecaster.Name),
			Username: strings.TrimSpace(in.Forecaster.Username),
			Platform: strings.TrimSpace(in.Forecaster.Platform),
		})
		if err != nil {
			return model.Claim{}, fmt.Errorf("upsert forecaster: %w", err)
		}
		claim.ForecasterID = f.ID
	case in.ForecasterID != "":
		claim.ForecasterID = in.ForecasterID
	}

	stored, err := s.store.CreateClaim(ctx, claim)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Claim{}, fmt.Errorf("%w: unknown forecaster %s", ErrInvalidInput, claim.ForecasterID)
		}
		return model.Claim{}, err
	}

	metrics.RecordClaimCreated(string(stored.Domain))
	s.cache.InvalidateDomain(stored.Domain)
	s.logger.Debug(ctx, "claim created",
		logger.String("claimID", stored.ID),
		logger.String("domain", string(stored.Domain)),
		logger.String("type", string(stored.Type)),
	)
	return stored, nil
}

func (s *Service) buildClaim(in ClaimInput) (model.Claim, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return model.Claim{}, fmt.Errorf("%w: text is required", ErrInvalidInput)
	}
	domain := model.Domain(strings.ToLower(strings.TrimSpace(in.Domain)))
	if domain == "" {
		return model.Claim{}, fmt.Errorf("%w: domain is required", ErrInvalidInput)
	}
	typ, err := model.ParseClaimType(in.Type)
	if err != nil {
		return model.Claim{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	prediction, err := parseValue(in.Prediction, typ, "prediction")
	if err != nil {
		return model.Claim{}, err
	}

	now := s.now().UTC()
	var deadline *time.Time
	if in.Deadline != nil {
		d := in.Deadline.UTC()
		deadline = &d
	}
	return model.Claim{
		ID:         uuid.NewString(),
		Text:       text,
		Domain:     domain,
		Subtype:    strings.ToLower(strings.TrimSpace(in.Subtype)),
		Type:       typ,
		Prediction: prediction,
		Status:     model.StatusPending,
		Deadline:   deadline,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// parseValue decodes f and checks it against typ. Probabilities must lie in
// [0,1].
func parseValue(f model.Flat, typ model.ClaimType, field string) (model.Value, error) {
	v, err := f.Unflatten()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInput, field, err)
	}
	if !model.Present(v) {
		return nil, fmt.Errorf("%w: %s is required for %s claims", ErrInvalidInput, field, typ)
	}
	if v.Kind() != typ {
		return nil, fmt.Errorf("%w: %s is %s but claim type is %s", ErrInvalidInput, field, v.Kind(), typ)
	}
	if p, ok := v.(model.Probabilistic); ok && (p.Probability < 0 || p.Probability > 1) {
		return nil, fmt.Errorf("%w: %s probability %g outside [0,1]", ErrInvalidInput, field, p.Probability)
	}
	return v, nil
}

// GetClaim returns a claim with its outcome and forecaster.
func (s *Service) GetClaim(ctx context.Context, id string) (_ ClaimDetail, err error) {
	ctx, span := s.span(ctx, "GetClaim", attribute.String("claim_id", id))
	defer func() { endSpan(span, err) }()

	c, err := s.store.GetClaim(ctx, id)
	if err != nil {
		return ClaimDetail{}, err
	}
	detail := ClaimDetail{Claim: c}

	if c.Status == model.StatusResolved {
		o, err := s.store.GetOutcome(ctx, id)
		switch {
		case err == nil:
			detail.Outcome = &o
		case !errors.Is(err, repository.ErrNotFound):
			return ClaimDetail{}, err
		}
	}
	if c.ForecasterID != "" {
		f, err := s.store.GetForecaster(ctx, c.ForecasterID)
		switch {
		case err == nil:
			detail.Forecaster = &f
		case !errors.Is(err, repository.ErrNotFound):
			return ClaimDetail{}, err
		}
	}
	return detail, nil
}

// ListClaims returns claims newest first. The domain filter is matched
// case-insensitively.
func (s *Service) ListClaims(ctx context.Context, f repository.ClaimFilter) (_ []model.Claim, err error) {
	ctx, span := s.span(ctx, "ListClaims")
	defer func() { endSpan(span, err) }()

	f.Domain = normalizeDomain(string(f.Domain))
	f, err = f.Normalize()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.store.ListClaims(ctx, f)
}
