package seed

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/perimeter/internal/adapters/http/api"
	service "github.com/okian/perimeter/internal/app"
	"github.com/okian/perimeter/pkg/logger"
)

func newTarget(t *testing.T) *httptest.Server {
	t.Helper()
	svc := service.New(
		service.WithLogger(logger.NewNop()),
		service.WithExpirySweep(0),
		service.WithWorkerCount(4),
	)
	require.NoError(t, svc.Start(context.Background()))
	srv := httptest.NewServer(api.NewServer(svc, api.WithLogger(logger.NewNop())).Handler())
	t.Cleanup(func() {
		srv.Close()
		svc.Stop()
	})
	return srv
}

func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = url
	cfg.Forecasters = 4
	cfg.ClaimsPerForecaster = 6
	cfg.Workers = 4
	cfg.Timeout = 5 * time.Second
	cfg.WaitTimeout = 10 * time.Second
	return cfg
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty url", func(c *Config) { c.BaseURL = " " }},
		{"one forecaster", func(c *Config) { c.Forecasters = 1 }},
		{"no claims", func(c *Config) { c.ClaimsPerForecaster = 0 }},
		{"no workers", func(c *Config) { c.Workers = 0 }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
	}
	require.NoError(t, DefaultConfig().Validate())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestGenerate(t *testing.T) {
	cfg := testConfig("http://unused")
	cfg.RunID = "fixed"

	a, b := Generate(cfg), Generate(cfg)
	require.Equal(t, a, b, "same seed must give the same plan")
	require.Len(t, a.Profiles, 4)
	require.Len(t, a.Items, 24)
	assert.Equal(t, "seed-fixed", a.Platform)

	for i := 1; i < len(a.Profiles); i++ {
		assert.Greater(t, a.Profiles[i].ErrorShare, a.Profiles[i-1].ErrorShare)
	}
	assert.True(t, a.Profiles[0].Correct)
	assert.False(t, a.Profiles[3].Correct)

	cfg.Seed = 2
	assert.NotEqual(t, a.Items, Generate(cfg).Items)
}

func TestVerifyOrder(t *testing.T) {
	cfg := testConfig("http://unused")
	cfg.Forecasters = 3
	cfg.RunID = "x"
	plan := Generate(cfg)

	entry := func(rank int, user, platform string) entryResponse {
		return entryResponse{Rank: rank, Username: user, Platform: platform}
	}

	t.Run("planted order with foreign entries", func(t *testing.T) {
		n, err := verifyOrder(plan, []entryResponse{
			entry(1, "forecaster-00", "seed-x"),
			entry(2, "someone", "twitter"),
			entry(3, "forecaster-01", "seed-x"),
			entry(4, "forecaster-02", "seed-x"),
		})
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("swapped", func(t *testing.T) {
		_, err := verifyOrder(plan, []entryResponse{
			entry(1, "forecaster-01", "seed-x"),
			entry(2, "forecaster-00", "seed-x"),
			entry(3, "forecaster-02", "seed-x"),
		})
		assert.ErrorIs(t, err, ErrRankingMismatch)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := verifyOrder(plan, []entryResponse{
			entry(1, "forecaster-00", "seed-x"),
		})
		assert.ErrorIs(t, err, ErrRankingMismatch)
	})
}

func TestRunSync(t *testing.T) {
	srv := newTarget(t)

	stats, err := Run(context.Background(), testConfig(srv.URL), logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 24, stats.ClaimsCreated)
	assert.Equal(t, 24, stats.ClaimsResolved)
	assert.Equal(t, 4, stats.Ranked)
	assert.Equal(t, 1, stats.Conflicts)
}

func TestRunAsync(t *testing.T) {
	srv := newTarget(t)
	cfg := testConfig(srv.URL)
	cfg.Async = true

	stats, err := Run(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 24, stats.ClaimsResolved)
	assert.Equal(t, 4, stats.Ranked)
}

func TestRunTwiceOnSameService(t *testing.T) {
	srv := newTarget(t)

	_, err := Run(context.Background(), testConfig(srv.URL), logger.NewNop())
	require.NoError(t, err)

	stats, err := Run(context.Background(), testConfig(srv.URL), logger.NewNop())
	require.NoError(t, err, "a second run must ignore the first run's forecasters")
	assert.Equal(t, 4, stats.Ranked)
}

func TestRunUnreachable(t *testing.T) {
	srv := newTarget(t)
	url := srv.URL
	srv.Close()

	_, err := Run(context.Background(), testConfig(url), logger.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health check")
}
