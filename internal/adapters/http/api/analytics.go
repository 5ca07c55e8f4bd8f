package api

import (
	"net/http"

	service "github.com/okian/perimeter/internal/app"
)

// handleAnalytics handles GET /v1/analytics?domain=&period=.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	const op = "api.analytics"
	q := r.URL.Query()
	a, err := s.deps.Analytics(r.Context(), service.AnalyticsQuery{Domain: q.Get("domain"), Period: q.Get("period")})
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleTrends handles GET /v1/analytics/trends?days=&domain=.
func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	const op = "api.trends"
	q := r.URL.Query()
	days, err := intParam(q, "days")
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	points, err := s.deps.Trends(r.Context(), service.TrendQuery{Domain: q.Get("domain"), Days: days})
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": len(points), "points": points})
}
