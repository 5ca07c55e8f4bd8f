package seed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/perimeter/pkg/logger"
)

const pollInterval = 100 * time.Millisecond

// Run executes a full seeding run against cfg.BaseURL:
//  1. Check service health
//  2. Create every generated claim
//  3. Resolve them, directly or through the queue
//  4. Fetch the leaderboard and verify the planted order
//  5. Verify that resolving twice is rejected
func Run(ctx context.Context, cfg Config, log logger.Logger) (Stats, error) {
	if err := cfg.Validate(); err != nil {
		return Stats{}, err
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()[:8]
	}
	start := time.Now()
	c := newClient(cfg.BaseURL, cfg.Timeout)
	plan := Generate(cfg)
	var stats Stats

	log.Info(ctx, "seeding",
		logger.String("url", cfg.BaseURL),
		logger.String("run", cfg.RunID),
		logger.Int("forecasters", len(plan.Profiles)),
		logger.Int("claims", len(plan.Items)),
		logger.Bool("async", cfg.Async))

	if _, err := c.do(ctx, http.MethodGet, "/health", nil, nil, http.StatusOK); err != nil {
		return stats, fmt.Errorf("health check: %w", err)
	}

	baseline, err := resolvedCount(ctx, c)
	if err != nil {
		return stats, err
	}

	if err := createClaims(ctx, c, cfg.Workers, plan.Items); err != nil {
		return stats, err
	}
	stats.ClaimsCreated = len(plan.Items)
	log.Info(ctx, "claims created", logger.Int("count", stats.ClaimsCreated))

	if cfg.Async {
		dup, err := enqueueResolutions(ctx, c, plan.Items)
		if err != nil {
			return stats, err
		}
		stats.Duplicates = dup
		if err := waitResolved(ctx, c, baseline+len(plan.Items)-dup, cfg.WaitTimeout); err != nil {
			return stats, err
		}
	} else if err := resolveClaims(ctx, c, cfg.Workers, plan.Items); err != nil {
		return stats, err
	}
	stats.ClaimsResolved = len(plan.Items) - stats.Duplicates
	log.Info(ctx, "claims resolved", logger.Int("count", stats.ClaimsResolved))

	var board leaderboardResponse
	if _, err := c.do(ctx, http.MethodGet, "/v1/leaderboard?limit=500", nil, &board, http.StatusOK); err != nil {
		return stats, fmt.Errorf("fetch leaderboard: %w", err)
	}
	ranked, err := verifyOrder(plan, board.Entries)
	if err != nil {
		return stats, err
	}
	stats.Ranked = ranked

	if err := verifyConflict(ctx, c, plan.Items[0]); err != nil {
		return stats, err
	}
	stats.Conflicts = 1

	stats.Duration = time.Since(start)
	log.Info(ctx, "seed run completed",
		logger.Int("created", stats.ClaimsCreated),
		logger.Int("resolved", stats.ClaimsResolved),
		logger.Int("ranked", stats.Ranked),
		logger.Duration("duration", stats.Duration))
	return stats, nil
}

func resolvedCount(ctx context.Context, c *client) (int, error) {
	var a analyticsResponse
	if _, err := c.do(ctx, http.MethodGet, "/v1/analytics", nil, &a, http.StatusOK); err != nil {
		return 0, fmt.Errorf("fetch analytics: %w", err)
	}
	return a.Totals.Resolved, nil
}

// createClaims posts every item concurrently and records the returned IDs.
func createClaims(ctx context.Context, c *client, workers int, items []Item) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range items {
		item := &items[i]
		g.Go(func() error {
			var resp claimResponse
			if _, err := c.do(ctx, http.MethodPost, "/v1/claims", item.Claim, &resp, http.StatusCreated); err != nil {
				return fmt.Errorf("create claim: %w", err)
			}
			item.ClaimID = resp.ID
			return nil
		})
	}
	return g.Wait()
}

func resolveClaims(ctx context.Context, c *client, workers int, items []Item) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range items {
		item := items[i]
		g.Go(func() error {
			path := "/v1/claims/" + item.ClaimID + "/resolve"
			if _, err := c.do(ctx, http.MethodPost, path, item.Actual, nil, http.StatusCreated); err != nil {
				return fmt.Errorf("resolve claim %s: %w", item.ClaimID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// enqueueResolutions submits items in batches and returns how many the
// service reported as duplicates.
func enqueueResolutions(ctx context.Context, c *client, items []Item) (int, error) {
	var dup atomic.Int64
	for lo := 0; lo < len(items); lo += batchSize {
		hi := min(lo+batchSize, len(items))
		req := enqueueRequest{Resolutions: make([]resolutionItem, 0, hi-lo)}
		for _, item := range items[lo:hi] {
			req.Resolutions = append(req.Resolutions, resolutionItem{ClaimID: item.ClaimID, actualRequest: item.Actual})
		}
		var resp enqueueResponse
		if _, err := c.do(ctx, http.MethodPost, "/v1/resolutions", req, &resp, http.StatusAccepted); err != nil {
			return 0, fmt.Errorf("enqueue resolutions: %w", err)
		}
		if resp.Rejected > 0 {
			return 0, fmt.Errorf("enqueue resolutions: %d rejected by a full queue", resp.Rejected)
		}
		dup.Add(int64(resp.Duplicates))
	}
	return int(dup.Load()), nil
}

var ErrWaitTimeout = errors.New("timed out waiting for resolutions")

// waitResolved polls analytics until at least want claims are resolved.
func waitResolved(ctx context.Context, c *client, want int, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		got, err := resolvedCount(ctx, c)
		if err == nil && got >= want {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: want %d resolved", ErrWaitTimeout, want)
		case <-ticker.C:
		}
	}
}
