package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/okian/perimeter/internal/adapters/cache"
	"github.com/okian/perimeter/internal/adapters/repository"
	"github.com/okian/perimeter/internal/domain/aggregation"
	"github.com/okian/perimeter/internal/domain/model"
	"github.com/okian/perimeter/internal/domain/ranking"
	"github.com/okian/perimeter/pkg/metrics"
)

// Cache kinds.
const (
	kindLeaderboard = "leaderboard"
	kindAnalytics   = "analytics"
	kindTrends      = "trends"
)

// LeaderboardQuery selects and pages a leaderboard. Zero values take the
// service defaults.
type LeaderboardQuery struct {
	Domain    string
	Period    string
	MinClaims int
	Limit     int
}

// Leaderboard ranks forecasters over claims created inside the period.
func (s *Service) Leaderboard(ctx context.Context, q LeaderboardQuery) (_ []ranking.Entry, err error) {
	ctx, span := s.span(ctx, "Leaderboard",
		attribute.String("domain", q.Domain), attribute.String("period", q.Period))
	defer func() { endSpan(span, err) }()

	if q.MinClaims < 0 || q.Limit < 0 {
		return nil, fmt.Errorf("%w: min_claims and limit must not be negative", ErrInvalidInput)
	}
	if q.MinClaims == 0 {
		q.MinClaims = s.defaultMinClaims
	}
	if q.Limit == 0 {
		q.Limit = ranking.DefaultLimit
	}
	if q.Limit > s.maxLimit {
		q.Limit = s.maxLimit
	}
	domain := normalizeDomain(q.Domain)
	window := ranking.ParsePeriod(q.Period)

	key := cache.Key{
		Kind:   kindLeaderboard,
		Domain: domain,
		Query:  fmt.Sprintf("%s/%d/%d", window.Token, q.MinClaims, q.Limit),
	}
	if entries, ok := cache.Lookup[[]ranking.Entry](s.cache, key); ok {
		return entries, nil
	}

	gen := s.cache.Generation(domain)
	defer observeAggregation(kindLeaderboard, time.Now())
	summaries, err := s.summaries(ctx, domain, window)
	if err != nil {
		return nil, err
	}
	entries := ranking.Policy{MinClaims: q.MinClaims, Limit: q.Limit}.Rank(summaries)

	s.cache.Set(key, entries, gen)
	return entries, nil
}

func (s *Service) summaries(ctx context.Context, domain model.Domain, window ranking.Window) ([]aggregation.Summary, error) {
	records, err := s.store.Records(ctx, repository.RecordFilter{
		Domain: domain,
		Since:  window.Since(s.now().UTC()),
	})
	if err != nil {
		return nil, err
	}
	forecasters, err := s.store.Forecasters(ctx)
	if err != nil {
		return nil, err
	}
	return aggregation.Summarize(records, forecasters, s.engine.Weigher()), nil
}

func normalizeDomain(d string) model.Domain {
	return model.Domain(strings.ToLower(strings.TrimSpace(d)))
}

func observeAggregation(kind string, start time.Time) {
	metrics.RecordAggregationLatency(kind, float64(time.Since(start).Microseconds())/1000)
}
