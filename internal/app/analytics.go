package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/okian/perimeter/internal/adapters/cache"
	"github.com/okian/perimeter/internal/adapters/repository"
	"github.com/okian/perimeter/internal/domain/aggregation"
	"github.com/okian/perimeter/internal/domain/model"
	"github.com/okian/perimeter/internal/domain/ranking"
)

// AnalyticsQuery scopes an analytics snapshot.
type AnalyticsQuery struct {
	Domain string
	Period string
}

// Analytics is a snapshot together with the best forecasters over the same
// claims.
type Analytics struct {
	aggregation.Snapshot
	Period         string          `json:"period"`
	TopForecasters []ranking.Entry `json:"top_forecasters"`
}

// TrendQuery scopes a trend series. Days defaults to the service default
// and must not exceed the configured maximum.
type TrendQuery struct {
	Domain string
	Days   int
}

// Analytics builds the snapshot for claims created inside the period.
func (s *Service) Analytics(ctx context.Context, q AnalyticsQuery) (_ Analytics, err error) {
	ctx, span := s.span(ctx, "Analytics",
		attribute.String("domain", q.Domain), attribute.String("period", q.Period))
	defer func() { endSpan(span, err) }()

	domain := normalizeDomain(q.Domain)
	window := ranking.ParsePeriod(q.Period)
	key := cache.Key{Kind: kindAnalytics, Domain: domain, Query: window.Token}
	if a, ok := cache.Lookup[Analytics](s.cache, key); ok {
		return a, nil
	}

	gen := s.cache.Generation(domain)
	defer observeAggregation(kindAnalytics, time.Now())
	now := s.now().UTC()
	records, err := s.store.Records(ctx, repository.RecordFilter{Domain: domain, Since: window.Since(now)})
	if err != nil {
		return Analytics{}, err
	}
	forecasters, err := s.store.Forecasters(ctx)
	if err != nil {
		return Analytics{}, err
	}

	domains := s.engine.Registry().Domains()
	if domain != "" {
		domains = []model.Domain{domain}
	}
	top := ranking.Policy{MinClaims: s.defaultMinClaims, Limit: TopForecastersInSummary}.
		Rank(aggregation.Summarize(records, forecasters, s.engine.Weigher()))

	a := Analytics{
		Snapshot:       aggregation.NewSnapshot(records, now, aggregation.WithDomains(domains)),
		Period:         window.Token,
		TopForecasters: top,
	}
	s.cache.Set(key, a, gen)
	return a, nil
}

// Trends returns the day-bucketed series for the last Days days.
func (s *Service) Trends(ctx context.Context, q TrendQuery) (_ []aggregation.TrendPoint, err error) {
	ctx, span := s.span(ctx, "Trends", attribute.String("domain", q.Domain), attribute.Int("days", q.Days))
	defer func() { endSpan(span, err) }()

	days := q.Days
	if days == 0 {
		days = s.defaultTrendDays
	}
	if days < 0 || days > s.maxTrendDays {
		return nil, fmt.Errorf("%w: days must be between 1 and %d", ErrInvalidInput, s.maxTrendDays)
	}
	domain := normalizeDomain(q.Domain)
	key := cache.Key{Kind: kindTrends, Domain: domain, Query: strconv.Itoa(days)}
	if points, ok := cache.Lookup[[]aggregation.TrendPoint](s.cache, key); ok {
		return points, nil
	}

	gen := s.cache.Generation(domain)
	defer observeAggregation(kindTrends, time.Now())
	// Resolutions are bucketed by verification day, so older claims are
	// needed too.
	records, err := s.store.Records(ctx, repository.RecordFilter{Domain: domain})
	if err != nil {
		return nil, err
	}
	points := aggregation.Trend(records, days, s.now().UTC())
	s.cache.Set(key, points, gen)
	return points, nil
}
