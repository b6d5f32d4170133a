package courtsidesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Courtside HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Match represents the API draft-match model.
type Match struct {
	ID           string   `json:"id"`
	CreatorID    string   `json:"creator_id"`
	Sport        string   `json:"sport"`
	SkillLevel   string   `json:"skill_level,omitempty"`
	LocationText string   `json:"location_text,omitempty"`
	StartsAt     string   `json:"starts_at"`
	EndsAt       string   `json:"ends_at"`
	SlotsNeeded  int      `json:"slots_needed"`
	RequiredTags []string `json:"required_tags,omitempty"`
	Status       string   `json:"status"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

// Participant represents one user's standing on a match.
type Participant struct {
	ID        string `json:"id"`
	MatchID   string `json:"match_id"`
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// ConflictEntry is one overlapping commitment from the schedule check.
type ConflictEntry struct {
	SourceType     string  `json:"source_type"`
	SourceID       string  `json:"source_id"`
	Label          string  `json:"label,omitempty"`
	Location       string  `json:"location,omitempty"`
	StartsAt       string  `json:"starts_at"`
	EndsAt         string  `json:"ends_at"`
	Severity       string  `json:"severity"`
	OverlapPercent float64 `json:"overlap_percent"`
}

// ConflictReport aggregates conflicts for one time window.
type ConflictReport struct {
	Conflicts       []ConflictEntry `json:"conflicts"`
	SourceCounts    map[string]int  `json:"source_counts,omitempty"`
	Recommendations []string        `json:"recommendations,omitempty"`
}

// Interest is the response to expressing interest.
type Interest struct {
	Participant Participant    `json:"participant"`
	Conflicts   ConflictReport `json:"conflicts"`
}

// RankedMatch pairs a match with its compatibility score, when available.
type RankedMatch struct {
	Match Match    `json:"match"`
	Score *float64 `json:"score,omitempty"`
}

// RankedMatches is a scored listing; RankingDegraded means the scoring
// provider was unavailable and the items carry no scores.
type RankedMatches struct {
	Items           []RankedMatch `json:"items"`
	RankingDegraded bool          `json:"ranking_degraded"`
}

// Event represents a log entry.
type Event struct {
	ID          int64          `json:"id"`
	TS          string         `json:"ts"`
	Type        string         `json:"type"`
	Topic       string         `json:"topic,omitempty"`
	EntityKind  string         `json:"entity_kind"`
	EntityID    string         `json:"entity_id,omitempty"`
	ActorID     string         `json:"actor_id"`
	RecipientID string         `json:"recipient_id,omitempty"`
	Payload     map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateMatch creates a draft match owned by the authenticated actor.
func (c *Client) CreateMatch(ctx context.Context, sport, startsAt, endsAt string, slots int) (Match, error) {
	body := map[string]any{
		"sport":        sport,
		"starts_at":    startsAt,
		"ends_at":      endsAt,
		"slots_needed": slots,
	}
	var resp Match
	err := c.do(ctx, http.MethodPost, "v0/matches", body, &resp)
	return resp, err
}

// GetMatch fetches a draft match by id.
func (c *Client) GetMatch(ctx context.Context, id string) (Match, error) {
	var resp Match
	err := c.do(ctx, http.MethodGet, "v0/matches/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ExpressInterest applies to a match and returns the conflict report.
func (c *Client) ExpressInterest(ctx context.Context, matchID string) (Interest, error) {
	var resp Interest
	err := c.do(ctx, http.MethodPost, "v0/matches/"+url.PathEscape(matchID)+"/interest", nil, &resp)
	return resp, err
}

// Withdraw removes the actor's interest from a match.
func (c *Client) Withdraw(ctx context.Context, matchID string) error {
	return c.do(ctx, http.MethodDelete, "v0/matches/"+url.PathEscape(matchID)+"/interest", nil, nil)
}

// Approve approves a pending participant.
func (c *Client) Approve(ctx context.Context, matchID, userID string) (Participant, error) {
	var resp Participant
	endpoint := fmt.Sprintf("v0/matches/%s/participants/%s/approve", url.PathEscape(matchID), url.PathEscape(userID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Reject rejects a pending participant.
func (c *Client) Reject(ctx context.Context, matchID, userID string) (Participant, error) {
	var resp Participant
	endpoint := fmt.Sprintf("v0/matches/%s/participants/%s/reject", url.PathEscape(matchID), url.PathEscape(userID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Convert finalizes a filled match.
func (c *Client) Convert(ctx context.Context, matchID string) (Match, error) {
	var resp Match
	err := c.do(ctx, http.MethodPost, "v0/matches/"+url.PathEscape(matchID)+"/convert", nil, &resp)
	return resp, err
}

// CheckConflicts runs the schedule validator for a window.
func (c *Client) CheckConflicts(ctx context.Context, startsAt, endsAt string) (ConflictReport, error) {
	body := map[string]any{"starts_at": startsAt, "ends_at": endsAt}
	var resp ConflictReport
	err := c.do(ctx, http.MethodPost, "v0/conflicts/check", body, &resp)
	return resp, err
}

// RankedMatches returns recruiting matches ranked for the actor.
func (c *Client) RankedMatches(ctx context.Context, sport string) (RankedMatches, error) {
	endpoint := "v0/ranked-matches"
	if sport != "" {
		endpoint += "?sport=" + url.QueryEscape(sport)
	}
	var resp RankedMatches
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
