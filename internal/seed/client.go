package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnexpectedStatus is returned when the service answers with a status the
// caller did not ask for.
var ErrUnexpectedStatus = errors.New("unexpected status")

type forecasterRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Platform string `json:"platform"`
}

type claimRequest struct {
	Text                 string             `json:"text"`
	Domain               string             `json:"domain"`
	Subtype              string             `json:"subtype,omitempty"`
	ClaimType            string             `json:"claim_type"`
	PredictedValue       *float64           `json:"predicted_value,omitempty"`
	PredictedCategory    *string            `json:"predicted_category,omitempty"`
	PredictedProbability *float64           `json:"predicted_probability,omitempty"`
	Forecaster           *forecasterRequest `json:"forecaster,omitempty"`
}

type actualRequest struct {
	ActualValue       *float64 `json:"actual_value,omitempty"`
	ActualCategory    *string  `json:"actual_category,omitempty"`
	ActualProbability *float64 `json:"actual_probability,omitempty"`
	DataSource        string   `json:"data_source,omitempty"`
}

type resolutionItem struct {
	ClaimID string `json:"claim_id"`
	actualRequest
}

type enqueueRequest struct {
	Resolutions []resolutionItem `json:"resolutions"`
}

type enqueueResponse struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
}

type claimResponse struct {
	ID           string `json:"id"`
	ForecasterID string `json:"forecaster_id"`
	Status       string `json:"status"`
}

type entryResponse struct {
	Rank              int     `json:"rank"`
	ForecasterID      string  `json:"forecaster_id"`
	Username          string  `json:"username"`
	Platform          string  `json:"platform"`
	ResolvedClaims    int     `json:"resolved_claims"`
	WeightedPerimeter float64 `json:"weighted_perimeter"`
}

type leaderboardResponse struct {
	Entries []entryResponse `json:"entries"`
}

type analyticsResponse struct {
	Totals struct {
		Resolved int `json:"resolved_claims"`
	} `json:"totals"`
}

// client is a small JSON client bound to one base URL.
type client struct {
	http    *http.Client
	baseURL string
}

func newClient(baseURL string, timeout time.Duration) *client {
	return &client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// do sends body as JSON and decodes the response into out when the status is
// want. Any other status yields ErrUnexpectedStatus carrying the status code.
func (c *client) do(ctx context.Context, method, path string, body, out any, want int) (int, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != want {
		return resp.StatusCode, fmt.Errorf("%w: %s %s returned %d: %s",
			ErrUnexpectedStatus, method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}
