package service

import (
	"context"
	"time"

	"github.com/okian/perimeter/pkg/logger"
	"github.com/okian/perimeter/pkg/metrics"
)

// ExpireOverdue marks pending claims past their deadline as expired.
func (s *Service) ExpireOverdue(ctx context.Context) (_ int, err error) {
	ctx, span := s.span(ctx, "ExpireOverdue")
	defer func() { endSpan(span, err) }()

	n, err := s.store.ExpireOverdue(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.RecordClaimsExpired(n)
		s.cache.Flush()
		s.logger.Info(ctx, "expired overdue claims", logger.Int("count", n))
	}
	return n, nil
}

func (s *Service) sweepLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	if s.expirySweep <= 0 {
		return
	}

	ticker := time.NewTicker(s.expirySweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ExpireOverdue(ctx); err != nil {
				metrics.RecordErrorByComponent("service", "expiry_sweep")
				s.logger.Warn(ctx, "expiry sweep failed", logger.Error(err))
			}
		}
	}
}
