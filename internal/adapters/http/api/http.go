// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/okian/perimeter/internal/adapters/repository"
	service "github.com/okian/perimeter/internal/app"
	"github.com/okian/perimeter/internal/domain/aggregation"
	"github.com/okian/perimeter/internal/domain/model"
	"github.com/okian/perimeter/internal/domain/ranking"
	"github.com/okian/perimeter/pkg/logger"
	"github.com/okian/perimeter/pkg/metrics"
)

const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers.
type Dependencies interface {
	CreateClaim(ctx context.Context, in service.ClaimInput) (model.Claim, error)
	GetClaim(ctx context.Context, id string) (service.ClaimDetail, error)
	ListClaims(ctx context.Context, f repository.ClaimFilter) ([]model.Claim, error)

	Resolve(ctx context.Context, in service.ResolveInput) (model.Outcome, error)
	// EnqueueResolutions queues resolutions for the workers. It returns
	// service.ErrQueueFull on backpressure.
	EnqueueResolutions(ctx context.Context, batch []model.Resolution) (service.EnqueueResult, error)

	Leaderboard(ctx context.Context, q service.LeaderboardQuery) ([]ranking.Entry, error)
	Analytics(ctx context.Context, q service.AnalyticsQuery) (service.Analytics, error)
	Trends(ctx context.Context, q service.TrendQuery) ([]aggregation.TrendPoint, error)

	Health(ctx context.Context) error
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps     Dependencies
	validate *validator.Validate
	limiter  *rate.Limiter
	logger   logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRateLimit limits /v1 requests across the process. A non-positive rps
// disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewServer creates a new API server.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:     deps,
		validate: validator.New(),
		logger:   logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("api")
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", MetricsMiddleware(s.handleHealth, "health"))
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /stats", MetricsMiddleware(NewStatsHandler(s.deps).HandleStats, "stats"))

	mux.HandleFunc("POST /v1/claims", s.route("create_claim", s.handleCreateClaim))
	mux.HandleFunc("GET /v1/claims", s.route("list_claims", s.handleListClaims))
	mux.HandleFunc("GET /v1/claims/{id}", s.route("get_claim", s.handleGetClaim))
	mux.HandleFunc("POST /v1/claims/{id}/resolve", s.route("resolve_claim", s.handleResolveClaim))
	mux.HandleFunc("POST /v1/resolutions", s.route("enqueue_resolutions", s.handleEnqueueResolutions))
	mux.HandleFunc("GET /v1/leaderboard", s.route("leaderboard", s.handleLeaderboard))
	mux.HandleFunc("GET /v1/leaderboard.csv", s.route("leaderboard_csv", s.handleLeaderboardCSV))
	mux.HandleFunc("GET /v1/analytics", s.route("analytics", s.handleAnalytics))
	mux.HandleFunc("GET /v1/analytics/trends", s.route("trends", s.handleTrends))
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

func (s *Server) route(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return MetricsMiddleware(RateLimitMiddleware(s.limiter, h), endpoint)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Health(r.Context()); err != nil {
		s.logger.Warn(r.Context(), "health check failed", logger.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Store: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Store: "ok"})
}

// decode reads a JSON body into v and validates it.
func (s *Server) decode(r *http.Request, w http.ResponseWriter, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %v", ErrBadRequest, err)
	}
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", ErrBadRequest, describeValidation(err))
	}
	return nil
}

// fail writes err with its mapped status. Server errors are logged and
// their details withheld.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := statusFor(err)
	if status >= statusInternalError {
		s.logger.Error(r.Context(), "request failed", logger.String("op", op), logger.Error(err))
		writeError(w, status, code, nil)
		return
	}
	writeError(w, status, code, err)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
