package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/okian/perimeter/internal/adapters/repository"
	service "github.com/okian/perimeter/internal/app"
	"github.com/okian/perimeter/internal/domain/model"
)

type claimListResponse struct {
	Claims []claimResponse `json:"claims"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// handleCreateClaim handles POST /v1/claims.
func (s *Server) handleCreateClaim(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_claim"
	var req createClaimRequest
	if err := s.decode(r, w, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}
	c, err := s.deps.CreateClaim(r.Context(), req.input())
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, newClaimResponse(c))
}

// handleListClaims handles GET /v1/claims?domain=&status=&forecaster_id=&limit=&offset=.
func (s *Server) handleListClaims(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_claims"
	q := r.URL.Query()

	f := repository.ClaimFilter{
		Domain:       model.Domain(q.Get("domain")),
		ForecasterID: q.Get("forecaster_id"),
	}
	if st := q.Get("status"); st != "" {
		status, err := model.ParseStatus(st)
		if err != nil {
			s.fail(w, r, op, fmt.Errorf("%w: %v", ErrBadRequest, err))
			return
		}
		f.Status = status
	}
	var err error
	if f.Limit, err = intParam(q, "limit"); err != nil {
		s.fail(w, r, op, err)
		return
	}
	if f.Offset, err = intParam(q, "offset"); err != nil {
		s.fail(w, r, op, err)
		return
	}
	if f, err = f.Normalize(); err != nil {
		s.fail(w, r, op, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}

	claims, err := s.deps.ListClaims(r.Context(), f)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	resp := claimListResponse{Claims: make([]claimResponse, len(claims)), Limit: f.Limit, Offset: f.Offset}
	for i, c := range claims {
		resp.Claims[i] = newClaimResponse(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetClaim handles GET /v1/claims/{id}.
func (s *Server) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_claim"
	d, err := s.deps.GetClaim(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, newDetailResponse(d))
}

// handleResolveClaim handles POST /v1/claims/{id}/resolve. A claim that
// already has an outcome answers 409.
func (s *Server) handleResolveClaim(w http.ResponseWriter, r *http.Request) {
	const op = "api.resolve_claim"
	var req resolveRequest
	if err := s.decode(r, w, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}
	o, err := s.deps.Resolve(r.Context(), service.ResolveInput{
		ClaimID:    r.PathValue("id"),
		Actual:     req.flat(),
		DataSource: req.DataSource,
		VerifiedAt: req.VerifiedAt,
	})
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOutcomeResponse(o))
}

// handleEnqueueResolutions handles POST /v1/resolutions.
func (s *Server) handleEnqueueResolutions(w http.ResponseWriter, r *http.Request) {
	const op = "api.enqueue_resolutions"
	var req enqueueRequest
	if err := s.decode(r, w, &req); err != nil {
		s.fail(w, r, op, err)
		return
	}
	batch, err := req.batch()
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	res, err := s.deps.EnqueueResolutions(r.Context(), batch)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

// intParam parses an optional integer query parameter; absent means 0.
func intParam(q url.Values, name string) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrBadRequest, name)
	}
	return n, nil
}
