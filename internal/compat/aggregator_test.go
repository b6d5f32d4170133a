package compat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"courtside/internal/domain"
)

func newAggregator(url string) *Aggregator {
	return &Aggregator{
		Client:      NewClient(url, time.Second),
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
	}
}

func serveScores(t *testing.T, scores []ScoreEntry) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/scores" {
			http.NotFound(w, r)
			return
		}
		var req ScoreRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{"scores": scores})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRankClampsAndOrders(t *testing.T) {
	explicit := 1.7
	srv := serveScores(t, []ScoreEntry{
		{EntityID: "a", Score: 0.4},
		{EntityID: "b", Score: 1.3, Explicit: &explicit},
		{EntityID: "c", Score: -0.2},
	})
	agg := newAggregator(srv.URL)
	results, degraded, err := agg.Rank(context.Background(), "u1", domain.ScoreContextDraftMatch, []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if degraded {
		t.Fatal("unexpected degraded flag")
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].EntityID != "b" || results[0].Score != 1.0 {
		t.Fatalf("expected b clamped to 1.0 first, got %+v", results[0])
	}
	if *results[0].Explicit != 1.0 {
		t.Fatalf("explicit component not clamped: %v", *results[0].Explicit)
	}
	if results[2].EntityID != "c" || results[2].Score != 0 {
		t.Fatalf("expected c clamped to 0 last, got %+v", results[2])
	}
	for _, r := range results {
		if !r.Provider {
			t.Fatalf("provider flag must be set on scored entries: %+v", r)
		}
	}
}

func TestRankTreatsPartialResponseAsFailure(t *testing.T) {
	// The provider keeps omitting one requested candidate; after the retry
	// budget the result is degraded with no scores at all.
	srv := serveScores(t, []ScoreEntry{{EntityID: "a", Score: 0.9}})
	agg := newAggregator(srv.URL)
	results, degraded, err := agg.Rank(context.Background(), "u1", domain.ScoreContextTeammate, []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if !degraded {
		t.Fatal("partial responses must exhaust into degraded")
	}
	if len(results) != 0 {
		t.Fatalf("degraded result must carry no scores, got %+v", results)
	}
}

func TestRankRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"scores": []ScoreEntry{{EntityID: "a", Score: 0.6}}})
	}))
	defer srv.Close()
	agg := newAggregator(srv.URL)
	results, degraded, err := agg.Rank(context.Background(), "u1", domain.ScoreContextOpenMatch, []string{"a"})
	if err != nil {
		t.Fatal(err)
	}
	if degraded {
		t.Fatal("third attempt succeeded, should not be degraded")
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	if len(results) != 1 || results[0].Score != 0.6 {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestRankExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	agg := newAggregator(srv.URL)
	results, degraded, err := agg.Rank(context.Background(), "u1", domain.ScoreContextDraftMatch, []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if !degraded || results != nil {
		t.Fatalf("expected degraded with nil results, got degraded=%v results=%+v", degraded, results)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", got)
	}
}

func TestRankNoCandidates(t *testing.T) {
	agg := newAggregator("http://unreachable.invalid")
	results, degraded, err := agg.Rank(context.Background(), "u1", domain.ScoreContextTeammate, nil)
	if err != nil || degraded || results != nil {
		t.Fatalf("empty candidate set must short-circuit: %v %v %+v", err, degraded, results)
	}
}
