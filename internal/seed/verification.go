package seed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrRankingMismatch = errors.New("leaderboard does not match planted accuracy")
	ErrNoConflict      = errors.New("second resolution was not rejected")
)

// verifyOrder checks that the run's forecasters appear on the leaderboard
// best first. Entries from other platforms are ignored so the check holds on
// a service that already has data.
func verifyOrder(plan Plan, entries []entryResponse) (int, error) {
	want := make(map[string]int, len(plan.Profiles))
	for i, p := range plan.Profiles {
		want[p.Username] = i
	}

	next := 0
	for _, e := range entries {
		if e.Platform != plan.Platform {
			continue
		}
		idx, ok := want[e.Username]
		if !ok {
			return next, fmt.Errorf("%w: unknown forecaster %q", ErrRankingMismatch, e.Username)
		}
		if idx != next {
			return next, fmt.Errorf("%w: rank %d is %s, want %s",
				ErrRankingMismatch, e.Rank, e.Username, plan.Profiles[next].Username)
		}
		next++
	}
	if next != len(plan.Profiles) {
		return next, fmt.Errorf("%w: %d of %d forecasters ranked", ErrRankingMismatch, next, len(plan.Profiles))
	}
	return next, nil
}

// verifyConflict resolves an already resolved claim and expects 409.
func verifyConflict(ctx context.Context, c *client, item Item) error {
	path := "/v1/claims/" + item.ClaimID + "/resolve"
	status, err := c.do(ctx, http.MethodPost, path, item.Actual, nil, http.StatusConflict)
	if err != nil {
		if errors.Is(err, ErrUnexpectedStatus) {
			return fmt.Errorf("%w: got %d", ErrNoConflict, status)
		}
		return err
	}
	return nil
}
