package api

import (
	"encoding/csv"
	"net/http"
	"strconv"

	service "github.com/okian/perimeter/internal/app"
	"github.com/okian/perimeter/internal/domain/ranking"
	"github.com/okian/perimeter/pkg/logger"
)

var csvHeader = []string{
	"rank", "forecaster_id", "name", "username", "platform", "verified",
	"total_claims", "resolved_claims", "average_perimeter", "weighted_perimeter",
}

type leaderboardResponse struct {
	Domain  string          `json:"domain,omitempty"`
	Period  string          `json:"period,omitempty"`
	Entries []ranking.Entry `json:"entries"`
}

func (s *Server) leaderboardQuery(r *http.Request) (service.LeaderboardQuery, error) {
	q := r.URL.Query()
	lq := service.LeaderboardQuery{Domain: q.Get("domain"), Period: q.Get("period")}
	var err error
	if lq.MinClaims, err = intParam(q, "min_claims"); err != nil {
		return lq, err
	}
	if lq.Limit, err = intParam(q, "limit"); err != nil {
		return lq, err
	}
	return lq, nil
}

// handleLeaderboard handles GET /v1/leaderboard?domain=&period=&min_claims=&limit=.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.leaderboard"
	lq, err := s.leaderboardQuery(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	entries, err := s.deps.Leaderboard(r.Context(), lq)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{Domain: lq.Domain, Period: lq.Period, Entries: entries})
}

// handleLeaderboardCSV handles GET /v1/leaderboard.csv with the same
// parameters. Scores carry two decimals.
func (s *Server) handleLeaderboardCSV(w http.ResponseWriter, r *http.Request) {
	const op = "api.leaderboard_csv"
	lq, err := s.leaderboardQuery(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	entries, err := s.deps.Leaderboard(r.Context(), lq)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="leaderboard.csv"`)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write(csvHeader)
	for _, e := range entries {
		_ = cw.Write([]string{
			strconv.Itoa(e.Rank),
			e.ForecasterID,
			e.Name,
			e.Username,
			e.Platform,
			strconv.FormatBool(e.Verified),
			strconv.Itoa(e.TotalClaims),
			strconv.Itoa(e.ResolvedClaims),
			strconv.FormatFloat(e.AveragePerimeter, 'f', 2, 64),
			strconv.FormatFloat(e.WeightedPerimeter, 'f', 2, 64),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		s.logger.Warn(r.Context(), "csv write failed", logger.Error(err))
	}
}
