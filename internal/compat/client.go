// Package compat talks to the external compatibility scoring provider.
// Scores are never computed locally: when the provider is unreachable or
// answers with an incomplete set, ranking degrades to none at all rather than
// to made-up numbers.
package compat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ScoreRequest asks the provider to score a set of candidate entities against
// one user.
type ScoreRequest struct {
	UserID       string   `json:"user_id"`
	Context      string   `json:"context"`
	CandidateIDs []string `json:"candidate_ids"`
}

// ScoreEntry is one scored candidate as the provider returns it.
type ScoreEntry struct {
	EntityID string   `json:"entity_id"`
	Score    float64  `json:"score"`
	Explicit *float64 `json:"explicit,omitempty"`
	Implicit *float64 `json:"implicit,omitempty"`
}

type scoreResponse struct {
	Scores []ScoreEntry `json:"scores"`
}

// Client is a thin HTTP client for the scoring provider.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{BaseURL: baseURL, HTTP: &http.Client{Timeout: timeout}}
}

// Score performs one scoring call. A response missing any requested candidate
// is an error; the caller retries or degrades, it never fills the gaps.
func (c *Client) Score(ctx context.Context, req ScoreRequest) ([]ScoreEntry, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/scores", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("scoring provider returned %d: %s", resp.StatusCode, string(b))
	}
	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("scoring provider response: %w", err)
	}

	seen := make(map[string]bool, len(out.Scores))
	for _, s := range out.Scores {
		seen[s.EntityID] = true
	}
	for _, id := range req.CandidateIDs {
		if !seen[id] {
			return nil, fmt.Errorf("scoring provider omitted candidate %s", id)
		}
	}
	return out.Scores, nil
}
