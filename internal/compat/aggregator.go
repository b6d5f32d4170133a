package compat

import (
	"context"
	"sort"
	"time"

	"courtside/internal/config"
	"courtside/internal/domain"
)

// Aggregator retries the scoring provider a bounded number of times and
// normalizes its answers. On exhaustion it reports degraded with an empty
// scored set instead of inventing default scores.
type Aggregator struct {
	Client      *Client
	MaxAttempts int
	Backoff     time.Duration
}

// NewFromConfig builds an aggregator, or nil when no provider is configured.
func NewFromConfig(cfg *config.Config) *Aggregator {
	if cfg == nil || cfg.Scoring.BaseURL == "" {
		return nil
	}
	return &Aggregator{
		Client:      NewClient(cfg.Scoring.BaseURL, time.Duration(cfg.Scoring.TimeoutSeconds)*time.Second),
		MaxAttempts: cfg.Scoring.MaxAttempts,
		Backoff:     cfg.ScoringBackoff(),
	}
}

// Rank scores the candidates for one user and returns them best-first.
// degraded is true when every attempt failed; the scored set is then empty
// and the caller presents candidates unranked.
func (a *Aggregator) Rank(ctx context.Context, userID, scoreContext string, candidateIDs []string) (results []domain.CompatibilityResult, degraded bool, err error) {
	if len(candidateIDs) == 0 {
		return nil, false, nil
	}
	attempts := a.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := a.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}

	req := ScoreRequest{UserID: userID, Context: scoreContext, CandidateIDs: candidateIDs}
	var entries []ScoreEntry
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, true, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		entries, err = a.Client.Score(ctx, req)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, true, nil
	}

	results = make([]domain.CompatibilityResult, 0, len(entries))
	for _, e := range entries {
		results = append(results, domain.CompatibilityResult{
			EntityID: e.EntityID,
			Score:    clamp(e.Score),
			Explicit: clampPtr(e.Explicit),
			Implicit: clampPtr(e.Implicit),
			Provider: true,
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, false, nil
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := clamp(*v)
	return &c
}
