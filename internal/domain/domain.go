package domain

// Draft match lifecycle statuses.
const (
	DraftRecruiting           = "recruiting"
	DraftFull                 = "full"
	DraftAwaitingConfirmation = "awaiting_confirmation"
	DraftBookingInitiated     = "booking_initiated"
	DraftConverted            = "converted"
	DraftCancelled            = "cancelled"
)

// Participant statuses.
const (
	ParticipantPending  = "pending"
	ParticipantApproved = "approved"
	ParticipantRejected = "rejected"
)

type User struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Tags      []string `json:"tags,omitempty"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

type DraftMatch struct {
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

// Terminal reports whether the lifecycle accepts no further transitions.
func (m DraftMatch) Terminal() bool {
	return m.Status == DraftConverted || m.Status == DraftCancelled
}

type ParticipantStatus struct {
	ID        string `json:"id"`
	MatchID   string `json:"match_id"`
	UserID    string `json:"user_id"`
	Status    string `json:"status" enum:"pending,approved,rejected"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// OpenMatch is a confirmed match tied to an existing venue booking that still
// accepts participants. Courtside reads these as commitments; it does not
// manage their lifecycle.
type OpenMatch struct {
	ID           string `json:"id"`
	CreatorID    string `json:"creator_id"`
	Sport        string `json:"sport"`
	LocationText string `json:"location_text,omitempty"`
	StartsAt     string `json:"starts_at" format:"date-time"`
	EndsAt       string `json:"ends_at" format:"date-time"`
	Status       string `json:"status" enum:"open,confirmed,cancelled"`
}

// Booking is a personal venue reservation, read as a commitment source.
type Booking struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	FieldID  string `json:"field_id"`
	StartsAt string `json:"starts_at" format:"date-time"`
	EndsAt   string `json:"ends_at" format:"date-time"`
	Status   string `json:"status" enum:"pending,confirmed,cancelled"`
}

type Event struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts" format:"date-time"`
	Type        string `json:"type"`
	Topic       string `json:"topic,omitempty"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id,omitempty"`
	ActorID     string `json:"actor_id"`
	RecipientID string `json:"recipient_id,omitempty"`
	Payload     string `json:"payload_json"`
}
