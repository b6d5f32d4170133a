package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"courtside/internal/config"
	"courtside/internal/db"
	"courtside/internal/domain"
	"courtside/internal/engine"
	"courtside/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, users ...string) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	for _, u := range users {
		if err := e.Repo.InsertUser(context.Background(), domain.User{ID: u, Name: u, CreatedAt: time.Now().UTC().Format(time.RFC3339)}); err != nil {
			t.Fatalf("seed user %s: %v", u, err)
		}
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{AllowLegacyActorHeader: true}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, actor string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set("X-Actor-Id", actor)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestRecruitmentFlowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t, "alice", "bob", "carol")
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/matches", map[string]any{
		"sport":        "padel",
		"starts_at":    "2026-09-01T18:00:00Z",
		"ends_at":      "2026-09-01T20:00:00Z",
		"slots_needed": 2,
	}, "alice")
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create match status %d: %s", res.StatusCode, string(data))
	}
	var created MatchResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal match: %v", err)
	}
	if created.Status != domain.DraftRecruiting {
		t.Fatalf("new match status %s", created.Status)
	}
	matchID := created.ID

	for _, user := range []string{"bob", "carol"} {
		res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/matches/"+matchID+"/interest", nil, user)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("%s interest status %d: %s", user, res.StatusCode, string(data))
		}
		var interest InterestResponse
		if err := json.Unmarshal(data, &interest); err != nil {
			t.Fatalf("unmarshal interest: %v", err)
		}
		if interest.Participant.Status != domain.ParticipantPending {
			t.Fatalf("%s participant status %s", user, interest.Participant.Status)
		}
	}

	// Second application is a conflict.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/matches/"+matchID+"/interest", nil, "bob")
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate interest status %d: %s", res.StatusCode, string(data))
	}

	// Only the creator decides.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/matches/"+matchID+"/participants/bob/approve", nil, "carol")
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("non-creator approve status %d: %s", res.StatusCode, string(data))
	}

	for _, user := range []string{"bob", "carol"} {
		res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/matches/"+matchID+"/participants/"+user+"/approve", nil, "alice")
		if res.StatusCode != http.StatusOK {
			t.Fatalf("approve %s status %d: %s", user, res.StatusCode, string(data))
		}
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/matches/"+matchID, nil, "alice")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get match status %d: %s", res.StatusCode, string(data))
	}
	var fetched MatchResponse
	_ = json.Unmarshal(data, &fetched)
	if fetched.Status != domain.DraftFull {
		t.Fatalf("expected full, got %s", fetched.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/matches/"+matchID+"/convert", nil, "alice")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("convert status %d: %s", res.StatusCode, string(data))
	}
	var converted MatchResponse
	_ = json.Unmarshal(data, &converted)
	if converted.Status != domain.DraftConverted {
		t.Fatalf("expected converted, got %s", converted.Status)
	}

	// Lifecycle is closed now.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/matches/"+matchID+"/cancel", nil, "alice")
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("cancel converted status %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "invalid_state" {
		t.Fatalf("expected invalid_state code, got %q: %s", envelope.Error.Code, string(data))
	}
}

func TestConflictCheckEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t, "alice", "bob")
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/matches", map[string]any{
		"sport":        "padel",
		"starts_at":    "2026-09-01T19:00:00Z",
		"ends_at":      "2026-09-01T21:00:00Z",
		"slots_needed": 1,
	}, "bob")
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create match status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/conflicts/check", map[string]any{
		"starts_at": "2026-09-01T18:00:00Z",
		"ends_at":   "2026-09-01T20:00:00Z",
	}, "bob")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("check status %d: %s", res.StatusCode, string(data))
	}
	var report domain.ConflictReport
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if len(report.Conflicts) != 1 {
		t.Fatalf("expected one conflict, got %s", string(data))
	}
	if report.Conflicts[0].Severity != domain.SeverityHigh {
		t.Fatalf("expected HIGH, got %s", report.Conflicts[0].Severity)
	}

	// Alice has no commitments.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/conflicts/check", map[string]any{
		"starts_at": "2026-09-01T18:00:00Z",
		"ends_at":   "2026-09-01T20:00:00Z",
	}, "alice")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("check status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if len(report.Conflicts) != 0 {
		t.Fatalf("expected empty report, got %s", string(data))
	}
}

func TestRankedMatchesWithoutProvider(t *testing.T) {
	srv, cleanup := newTestServer(t, "alice", "bob")
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/matches", map[string]any{
		"sport":        "padel",
		"starts_at":    "2026-09-01T18:00:00Z",
		"ends_at":      "2026-09-01T20:00:00Z",
		"slots_needed": 1,
	}, "alice")
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create match status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/ranked-matches", nil, "bob")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("ranked status %d: %s", res.StatusCode, string(data))
	}
	var ranked RankedMatchesResponse
	if err := json.Unmarshal(data, &ranked); err != nil {
		t.Fatalf("unmarshal ranked: %v", err)
	}
	if !ranked.RankingDegraded {
		t.Fatal("no provider configured, ranking must be degraded")
	}
	if len(ranked.Items) != 1 || ranked.Items[0].Score != nil {
		t.Fatalf("expected one unscored item, got %s", string(data))
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/matches", nil, "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health must be open, got %d", res.StatusCode)
	}
}
