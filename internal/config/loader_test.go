package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/perimeter/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestDefaults(t *testing.T) {
	convey.Convey("Given the default config", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it validates and carries the documented defaults", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.DefaultMinClaims, convey.ShouldEqual, 1)
			convey.So(cfg.DefaultTrendDays, convey.ShouldEqual, 30)
			convey.So(cfg.CategoricalMatcher, convey.ShouldEqual, "containment")
			convey.So(cfg.StoragePath, convey.ShouldBeEmpty)
			convey.So(cfg.CacheTTL(), convey.ShouldEqual, 30*time.Second)
			convey.So(cfg.CacheCleanup(), convey.ShouldEqual, time.Minute)
			convey.So(cfg.ExpirySweep(), convey.ShouldEqual, time.Minute)
		})
	})

	convey.Convey("Given invalid values", t, func() {
		cases := []struct {
			name   string
			mutate func(c *config.Config)
		}{
			{"empty addr", func(c *config.Config) { c.Addr = "" }},
			{"zero workers", func(c *config.Config) { c.WorkerCount = 0 }},
			{"bad matcher", func(c *config.Config) { c.CategoricalMatcher = "soundex" }},
			{"bad format", func(c *config.Config) { c.LogFormat = "xml" }},
			{"trend over max", func(c *config.Config) { c.DefaultTrendDays = c.MaxTrendDays + 1 }},
			{"negative rate limit", func(c *config.Config) { c.RateLimitRPS = -1 }},
		}
		for _, tc := range cases {
			convey.Convey("Then "+tc.name+" is rejected", func() {
				cfg := config.New(context.Background())
				tc.mutate(cfg)
				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	convey.Convey("Given no file and no environment", t, func() {
		t.Setenv(config.EnvFile, "")
		cfg, err := config.Load(ctx)
		convey.So(err, convey.ShouldBeNil)
		convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
	})

	convey.Convey("Given a YAML file and environment overrides", t, func() {
		path := filepath.Join(t.TempDir(), "perimeter.yaml")
		yaml := []byte("addr: \":7000\"\nworker_count: 3\nstorage_path: /tmp/p.db\ncategorical_matcher: levenshtein\nrate_limit_rps: 2.5\n")
		convey.So(os.WriteFile(path, yaml, 0o600), convey.ShouldBeNil)

		t.Setenv(config.EnvFile, path)
		t.Setenv("PERIMETER_WORKER_COUNT", "8")
		t.Setenv("PERIMETER_DEFAULT_MIN_CLAIMS", "2")

		cfg, err := config.Load(ctx)

		convey.Convey("Then env beats file and file beats defaults", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":7000")
			convey.So(cfg.WorkerCount, convey.ShouldEqual, 8)
			convey.So(cfg.DefaultMinClaims, convey.ShouldEqual, 2)
			convey.So(cfg.StoragePath, convey.ShouldEqual, "/tmp/p.db")
			convey.So(cfg.CategoricalMatcher, convey.ShouldEqual, "levenshtein")
			convey.So(cfg.RateLimitRPS, convey.ShouldEqual, 2.5)
			convey.So(cfg.LogLevel, convey.ShouldEqual, "info")
		})
	})

	convey.Convey("Given a missing file", t, func() {
		t.Setenv(config.EnvFile, filepath.Join(t.TempDir(), "absent.yaml"))
		_, err := config.Load(ctx)
		convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
	})

	convey.Convey("Given an invalid environment value", t, func() {
		t.Setenv(config.EnvFile, "")
		t.Setenv("PERIMETER_CATEGORICAL_MATCHER", "soundex")
		_, err := config.Load(ctx)
		convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
	})
}
