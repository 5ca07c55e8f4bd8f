package api

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	service "github.com/okian/perimeter/internal/app"
	"github.com/okian/perimeter/internal/domain/model"
)

type forecasterRequest struct {
	Name     string `json:"name" validate:"max=200"`
	Username string `json:"username" validate:"max=100"`
	Platform string `json:"platform" validate:"max=50"`
}

// createClaimRequest mirrors POST /v1/claims.
type createClaimRequest struct {
	Text                 string             `json:"text" validate:"required,max=5000"`
	Domain               string             `json:"domain" validate:"required,max=64"`
	Subtype              string             `json:"subtype" validate:"max=64"`
	ClaimType            string             `json:"claim_type" validate:"required,oneof=numeric categorical probabilistic"`
	PredictedValue       *float64           `json:"predicted_value"`
	PredictedCategory    *string            `json:"predicted_category" validate:"omitempty,max=200"`
	PredictedProbability *float64           `json:"predicted_probability" validate:"omitempty,gte=0,lte=1"`
	Deadline             *time.Time         `json:"deadline"`
	ForecasterID         string             `json:"forecaster_id" validate:"max=64"`
	Forecaster           *forecasterRequest `json:"forecaster"`
}

func (c createClaimRequest) input() service.ClaimInput {
	in := service.ClaimInput{
		Text:         c.Text,
		Domain:       c.Domain,
		Subtype:      c.Subtype,
		Type:         c.ClaimType,
		Deadline:     c.Deadline,
		ForecasterID: c.ForecasterID,
		Prediction: model.Flat{
			Number:      c.PredictedValue,
			Category:    c.PredictedCategory,
			Probability: c.PredictedProbability,
		},
	}
	if c.Forecaster != nil {
		in.Forecaster = &service.ForecasterInput{
			Name:     c.Forecaster.Name,
			Username: c.Forecaster.Username,
			Platform: c.Forecaster.Platform,
		}
	}
	return in
}

// actualFields carries the observed value of a resolution.
type actualFields struct {
	ActualValue       *float64   `json:"actual_value"`
	ActualCategory    *string    `json:"actual_category" validate:"omitempty,max=200"`
	ActualProbability *float64   `json:"actual_probability" validate:"omitempty,gte=0,lte=1"`
	DataSource        string     `json:"data_source" validate:"max=500"`
	VerifiedAt        *time.Time `json:"verified_at"`
}

func (a actualFields) flat() model.Flat {
	return model.Flat{Number: a.ActualValue, Category: a.ActualCategory, Probability: a.ActualProbability}
}

// resolveRequest mirrors POST /v1/claims/{id}/resolve.
type resolveRequest struct {
	actualFields
}

type resolutionItem struct {
	ClaimID string `json:"claim_id" validate:"required,max=64"`
	actualFields
}

// enqueueRequest mirrors POST /v1/resolutions.
type enqueueRequest struct {
	Resolutions []resolutionItem `json:"resolutions" validate:"required,min=1,max=1000,dive"`
}

func (e enqueueRequest) batch() ([]model.Resolution, error) {
	out := make([]model.Resolution, len(e.Resolutions))
	for i, item := range e.Resolutions {
		v, err := item.flat().Unflatten()
		if err != nil {
			return nil, fmt.Errorf("%w: resolutions[%d]: %v", ErrBadRequest, i, err)
		}
		out[i] = model.Resolution{ClaimID: item.ClaimID, Actual: v, DataSource: item.DataSource}
		if item.VerifiedAt != nil {
			out[i].VerifiedAt = *item.VerifiedAt
		}
	}
	return out, nil
}

type forecasterResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
	Platform string `json:"platform"`
	Verified bool   `json:"verified"`
}

type outcomeResponse struct {
	ID                string    `json:"id"`
	ClaimID           string    `json:"claim_id"`
	ActualValue       *float64  `json:"actual_value,omitempty"`
	ActualCategory    *string   `json:"actual_category,omitempty"`
	ActualProbability *float64  `json:"actual_probability,omitempty"`
	PerimeterScore    float64   `json:"perimeter_score"`
	DataSource        string    `json:"data_source,omitempty"`
	VerifiedAt        time.Time `json:"verified_at"`
	CreatedAt         time.Time `json:"created_at"`
}

type claimResponse struct {
	ID                   string              `json:"id"`
	ForecasterID         string              `json:"forecaster_id,omitempty"`
	Text                 string              `json:"text"`
	Domain               model.Domain        `json:"domain"`
	Subtype              string              `json:"subtype,omitempty"`
	ClaimType            model.ClaimType     `json:"claim_type"`
	PredictedValue       *float64            `json:"predicted_value,omitempty"`
	PredictedCategory    *string             `json:"predicted_category,omitempty"`
	PredictedProbability *float64            `json:"predicted_probability,omitempty"`
	Status               model.Status        `json:"status"`
	Deadline             *time.Time          `json:"deadline,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
	Outcome              *outcomeResponse    `json:"outcome,omitempty"`
	Forecaster           *forecasterResponse `json:"forecaster,omitempty"`
}

func newClaimResponse(c model.Claim) claimResponse {
	p := model.Flatten(c.Prediction)
	return claimResponse{
		ID:                   c.ID,
		ForecasterID:         c.ForecasterID,
		Text:                 c.Text,
		Domain:               c.Domain,
		Subtype:              c.Subtype,
		ClaimType:            c.Type,
		PredictedValue:       p.Number,
		PredictedCategory:    p.Category,
		PredictedProbability: p.Probability,
		Status:               c.Status,
		Deadline:             c.Deadline,
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            c.UpdatedAt,
	}
}

func newOutcomeResponse(o model.Outcome) *outcomeResponse {
	a := model.Flatten(o.Actual)
	return &outcomeResponse{
		ID:                o.ID,
		ClaimID:           o.ClaimID,
		ActualValue:       a.Number,
		ActualCategory:    a.Category,
		ActualProbability: a.Probability,
		PerimeterScore:    o.PerimeterScore,
		DataSource:        o.DataSource,
		VerifiedAt:        o.VerifiedAt,
		CreatedAt:         o.CreatedAt,
	}
}

func newDetailResponse(d service.ClaimDetail) claimResponse {
	resp := newClaimResponse(d.Claim)
	if d.Outcome != nil {
		resp.Outcome = newOutcomeResponse(*d.Outcome)
	}
	if f := d.Forecaster; f != nil {
		resp.Forecaster = &forecasterResponse{
			ID:       f.ID,
			Name:     f.Name,
			Username: f.Username,
			Platform: f.Platform,
			Verified: f.Verified,
		}
	}
	return resp
}

// describeValidation turns validator output into a short message naming the
// offending fields.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
