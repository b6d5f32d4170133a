package server

import (
	"encoding/json"

	"courtside/internal/domain"
)

// Request payloads

type CreateMatchRequest struct {
	ID           *string  `json:"id,omitempty"`
	Sport        string   `json:"sport"`
	SkillLevel   *string  `json:"skill_level,omitempty"`
	LocationText *string  `json:"location_text,omitempty"`
	StartsAt     string   `json:"starts_at" format:"date-time"`
	EndsAt       string   `json:"ends_at" format:"date-time"`
	SlotsNeeded  int      `json:"slots_needed" minimum:"1"`
	RequiredTags []string `json:"required_tags,omitempty"`
}

type UpdateMatchRequest struct {
	Sport        *string  `json:"sport,omitempty"`
	SkillLevel   *string  `json:"skill_level,omitempty"`
	LocationText *string  `json:"location_text,omitempty"`
	StartsAt     *string  `json:"starts_at,omitempty" format:"date-time"`
	EndsAt       *string  `json:"ends_at,omitempty" format:"date-time"`
	SlotsNeeded  *int     `json:"slots_needed,omitempty" minimum:"1"`
	RequiredTags []string `json:"required_tags,omitempty"`
}

type InitiateBookingRequest struct {
	FieldID string `json:"field_id,omitempty"`
}

type CheckConflictsRequest struct {
	StartsAt  string `json:"starts_at" format:"date-time"`
	EndsAt    string `json:"ends_at" format:"date-time"`
	ExcludeID string `json:"exclude_id,omitempty"`
}

type CreateUserRequest struct {
	ID   *string  `json:"id,omitempty"`
	Name string   `json:"name"`
	Tags []string `json:"tags,omitempty"`
}

// Response payloads

type MatchResponse struct {
	ID           string   `json:"id"`
	CreatorID    string   `json:"creator_id"`
	Sport        string   `json:"sport"`
	SkillLevel   string   `json:"skill_level,omitempty"`
	LocationText string   `json:"location_text,omitempty"`
	StartsAt     string   `json:"starts_at" format:"date-time"`
	EndsAt       string   `json:"ends_at" format:"date-time"`
	SlotsNeeded  int      `json:"slots_needed"`
	RequiredTags []string `json:"required_tags,omitempty"`
	Status       string   `json:"status" enum:"recruiting,full,awaiting_confirmation,booking_initiated,converted,cancelled"`
	CreatedAt    string   `json:"created_at" format:"date-time"`
	UpdatedAt    string   `json:"updated_at" format:"date-time"`
}

type ParticipantResponse struct {
	ID        string `json:"id"`
	MatchID   string `json:"match_id"`
	UserID    string `json:"user_id"`
	Status    string `json:"status" enum:"pending,approved,rejected"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type InterestResponse struct {
	Participant ParticipantResponse   `json:"participant"`
	Conflicts   domain.ConflictReport `json:"conflicts"`
}

type RankedMatchResponse struct {
	Match MatchResponse `json:"match"`
	Score *float64      `json:"score,omitempty" minimum:"0" maximum:"1"`
}

type RankedMatchesResponse struct {
	Items           []RankedMatchResponse `json:"items"`
	RankingDegraded bool                  `json:"ranking_degraded"`
}

type EventResponse struct {
	ID          int64          `json:"id"`
	TS          string         `json:"ts" format:"date-time"`
	Type        string         `json:"type"`
	Topic       string         `json:"topic,omitempty"`
	EntityKind  string         `json:"entity_kind"`
	EntityID    string         `json:"entity_id,omitempty"`
	ActorID     string         `json:"actor_id"`
	RecipientID string         `json:"recipient_id,omitempty"`
	Payload     map[string]any `json:"payload"`
}

type paginatedMatches struct {
	Items      []MatchResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func matchResponse(m domain.DraftMatch) MatchResponse {
	return MatchResponse(m)
}

func participantResponse(p domain.ParticipantStatus) ParticipantResponse {
	return ParticipantResponse(p)
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:          e.ID,
		TS:          e.TS,
		Type:        e.Type,
		Topic:       e.Topic,
		EntityKind:  e.EntityKind,
		EntityID:    e.EntityID,
		ActorID:     e.ActorID,
		RecipientID: e.RecipientID,
		Payload:     decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return map[string]any{"raw": raw}
	}
	return m
}
