package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"courtside/internal/config"
	"courtside/internal/domain"
	"courtside/internal/events"
	"courtside/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time

	locks *matchLocks
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
		locks:  newMatchLocks(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// DraftMatchCreateOptions are parameters for creating a draft match.
type DraftMatchCreateOptions struct {
	ID           string
	CreatorID    string
	Sport        string
	SkillLevel   string
	LocationText string
	StartsAt     string
	EndsAt       string
	SlotsNeeded  int
	RequiredTags []string
}

// CreateDraftMatch validates the creator and window, persists a recruiting
// match, and broadcasts its creation. The creator's own calendar is not
// conflict-checked here; clients pre-check through the validator endpoint.
func (e Engine) CreateDraftMatch(ctx context.Context, opts DraftMatchCreateOptions) (domain.DraftMatch, error) {
	if opts.CreatorID == "" {
		return domain.DraftMatch{}, errors.New("creator is required")
	}
	if opts.Sport == "" {
		return domain.DraftMatch{}, errors.New("sport is required")
	}
	if opts.SlotsNeeded <= 0 {
		return domain.DraftMatch{}, errors.New("slots_needed must be positive")
	}
	if e.Config != nil && e.Config.Matches.MaxSlots > 0 && opts.SlotsNeeded > e.Config.Matches.MaxSlots {
		return domain.DraftMatch{}, fmt.Errorf("slots_needed exceeds limit of %d", e.Config.Matches.MaxSlots)
	}
	starts, err := time.Parse(time.RFC3339, opts.StartsAt)
	if err != nil {
		return domain.DraftMatch{}, fmt.Errorf("starts_at: %w", err)
	}
	ends, err := time.Parse(time.RFC3339, opts.EndsAt)
	if err != nil {
		return domain.DraftMatch{}, fmt.Errorf("ends_at: %w", err)
	}
	if !ends.After(starts) {
		return domain.DraftMatch{}, errors.New("ends_at must be after starts_at")
	}
	if _, err := e.Repo.GetUser(ctx, opts.CreatorID); err != nil {
		return domain.DraftMatch{}, fmt.Errorf("creator: %w", err)
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := e.now().UTC().Format(time.RFC3339)
	m := domain.DraftMatch{
		ID:           id,
		CreatorID:    opts.CreatorID,
		Sport:        opts.Sport,
		SkillLevel:   opts.SkillLevel,
		LocationText: opts.LocationText,
		StartsAt:     starts.UTC().Format(time.RFC3339),
		EndsAt:       ends.UTC().Format(time.RFC3339),
		SlotsNeeded:  opts.SlotsNeeded,
		RequiredTags: opts.RequiredTags,
		Status:       domain.DraftRecruiting,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.DraftMatch{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertDraftMatch(ctx, tx, m); err != nil {
		return domain.DraftMatch{}, fmt.Errorf("insert draft match: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type:       events.TypeMatchCreated,
		Topic:      m.ID,
		EntityKind: "draft_match",
		EntityID:   m.ID,
		ActorID:    opts.CreatorID,
		Payload:    events.EventPayload{"sport": m.Sport, "starts_at": m.StartsAt, "slots_needed": m.SlotsNeeded},
	}); err != nil {
		return domain.DraftMatch{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.DraftMatch{}, err
	}
	return m, nil
}

// DraftMatchPatch holds optional field updates.
type DraftMatchPatch struct {
	Sport        *string
	SkillLevel   *string
	LocationText *string
	StartsAt     *string
	EndsAt       *string
	SlotsNeeded  *int
	RequiredTags []string
}

// UpdateDraftMatch applies a patch. Allowed in any non-converted state; a
// change to the window or location notifies every participant holding a
// status for the match.
func (e Engine) UpdateDraftMatch(ctx context.Context, matchID string, patch DraftMatchPatch, creatorID string) (domain.DraftMatch, error) {
	unlock := e.locks.Acquire(matchID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.DraftMatch{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetDraftMatchTx(ctx, tx, matchID)
	if err != nil {
		return m, err
	}
	if m.CreatorID != creatorID {
		return m, UnauthorizedError{Action: "update the match"}
	}
	if m.Status == domain.DraftConverted {
		return m, InvalidStateError{Op: "update match", Status: m.Status}
	}

	logistics := false
	if patch.Sport != nil {
		m.Sport = *patch.Sport
	}
	if patch.SkillLevel != nil {
		m.SkillLevel = *patch.SkillLevel
	}
	if patch.LocationText != nil && *patch.LocationText != m.LocationText {
		m.LocationText = *patch.LocationText
		logistics = true
	}
	if patch.StartsAt != nil && *patch.StartsAt != m.StartsAt {
		m.StartsAt = *patch.StartsAt
		logistics = true
	}
	if patch.EndsAt != nil && *patch.EndsAt != m.EndsAt {
		m.EndsAt = *patch.EndsAt
		logistics = true
	}
	// Re-check the effective window: a reschedule must not leave starts_at
	// at or past ends_at.
	if patch.StartsAt != nil || patch.EndsAt != nil {
		starts, err := time.Parse(time.RFC3339, m.StartsAt)
		if err != nil {
			return m, fmt.Errorf("starts_at: %w", err)
		}
		ends, err := time.Parse(time.RFC3339, m.EndsAt)
		if err != nil {
			return m, fmt.Errorf("ends_at: %w", err)
		}
		if !ends.After(starts) {
			return m, errors.New("ends_at must be after starts_at")
		}
	}
	if patch.SlotsNeeded != nil {
		if *patch.SlotsNeeded <= 0 {
			return m, errors.New("slots_needed must be positive")
		}
		m.SlotsNeeded = *patch.SlotsNeeded
	}
	if patch.RequiredTags != nil {
		m.RequiredTags = patch.RequiredTags
	}
	m.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	// A slots change can cross the capacity threshold in either direction.
	if patch.SlotsNeeded != nil {
		if _, err := e.syncCapacity(ctx, tx, &m, creatorID); err != nil {
			return m, err
		}
	}
	if err := e.Repo.UpdateDraftMatch(ctx, tx, m); err != nil {
		return m, err
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type:       events.TypeMatchUpdated,
		Topic:      m.ID,
		EntityKind: "draft_match",
		EntityID:   m.ID,
		ActorID:    creatorID,
		Payload:    events.EventPayload{"logistics_changed": logistics},
	}); err != nil {
		return m, err
	}
	if logistics {
		if err := e.notifyParticipants(ctx, tx, m, creatorID, events.TypeMatchUpdated, nil); err != nil {
			return m, err
		}
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	return m, nil
}

// InitiateLock moves a recruiting or full match to awaiting_confirmation,
// freezing interest mutation while the creator arranges the booking.
func (e Engine) InitiateLock(ctx context.Context, matchID, creatorID string) (domain.DraftMatch, error) {
	return e.transition(ctx, matchID, creatorID, "lock the match",
		[]string{domain.DraftRecruiting, domain.DraftFull},
		domain.DraftAwaitingConfirmation, events.TypeMatchLocked, nil)
}

// InitiateBooking moves a locked match to booking_initiated after checking
// the target field is free for the match window.
func (e Engine) InitiateBooking(ctx context.Context, matchID, creatorID, fieldID string) (domain.DraftMatch, error) {
	m, err := e.Repo.GetDraftMatch(ctx, matchID)
	if err != nil {
		return m, err
	}
	if fieldID != "" {
		booked, err := e.Repo.FieldBookedBetween(ctx, fieldID, m.StartsAt, m.EndsAt, creatorID)
		if err != nil {
			return m, err
		}
		if booked {
			return m, ErrFieldUnavailable
		}
	}
	return e.transition(ctx, matchID, creatorID, "initiate booking",
		[]string{domain.DraftAwaitingConfirmation},
		domain.DraftBookingInitiated, events.TypeMatchBooking,
		events.EventPayload{"field_id": fieldID})
}

// Convert finalizes a match. Legal from full (direct) or booking_initiated
// (locked flow) once the creator plus approved participants cover the slot
// count; every approved participant is notified.
func (e Engine) Convert(ctx context.Context, matchID, creatorID string) (domain.DraftMatch, error) {
	unlock := e.locks.Acquire(matchID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.DraftMatch{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetDraftMatchTx(ctx, tx, matchID)
	if err != nil {
		return m, err
	}
	if m.CreatorID != creatorID {
		return m, UnauthorizedError{Action: "convert the match"}
	}
	if m.Status != domain.DraftFull && m.Status != domain.DraftBookingInitiated {
		return m, InvalidStateError{Op: "convert match", Status: m.Status}
	}
	approved, err := e.Repo.CountApprovedTx(ctx, tx, matchID)
	if err != nil {
		return m, err
	}
	if approved+1 < m.SlotsNeeded {
		return m, fmt.Errorf("need %d players, have %d: %w", m.SlotsNeeded, approved+1,
			CapacityExceededError{SlotsNeeded: m.SlotsNeeded, Approved: approved})
	}
	m.Status = domain.DraftConverted
	m.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateDraftMatch(ctx, tx, m); err != nil {
		return m, err
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type:       events.TypeMatchConverted,
		Topic:      m.ID,
		EntityKind: "draft_match",
		EntityID:   m.ID,
		ActorID:    creatorID,
	}); err != nil {
		return m, err
	}
	if err := e.notifyApproved(ctx, tx, m, creatorID, events.TypeMatchConverted); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	return m, nil
}

// CancelDraftMatch cancels any non-terminal match and notifies every
// participant.
func (e Engine) CancelDraftMatch(ctx context.Context, matchID, creatorID string) (domain.DraftMatch, error) {
	unlock := e.locks.Acquire(matchID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.DraftMatch{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetDraftMatchTx(ctx, tx, matchID)
	if err != nil {
		return m, err
	}
	if m.CreatorID != creatorID {
		return m, UnauthorizedError{Action: "cancel the match"}
	}
	if m.Terminal() {
		return m, InvalidStateError{Op: "cancel match", Status: m.Status}
	}
	m.Status = domain.DraftCancelled
	m.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateDraftMatch(ctx, tx, m); err != nil {
		return m, err
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type:       events.TypeMatchCancelled,
		Topic:      m.ID,
		EntityKind: "draft_match",
		EntityID:   m.ID,
		ActorID:    creatorID,
	}); err != nil {
		return m, err
	}
	if err := e.notifyParticipants(ctx, tx, m, creatorID, events.TypeMatchCancelled, nil); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	return m, nil
}

// transition performs a guarded creator-only status change with one event.
func (e Engine) transition(ctx context.Context, matchID, creatorID, op string, from []string, to, eventType string, payload events.EventPayload) (domain.DraftMatch, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.DraftMatch{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetDraftMatchTx(ctx, tx, matchID)
	if err != nil {
		return m, err
	}
	if m.CreatorID != creatorID {
		return m, UnauthorizedError{Action: op}
	}
	allowed := false
	for _, s := range from {
		if m.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return m, InvalidStateError{Op: op, Status: m.Status}
	}
	m.Status = to
	m.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateDraftMatch(ctx, tx, m); err != nil {
		return m, err
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type:       eventType,
		Topic:      m.ID,
		EntityKind: "draft_match",
		EntityID:   m.ID,
		ActorID:    creatorID,
		Payload:    payload,
	}); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	return m, nil
}

// notifyParticipants appends a direct-queue event for every participant
// holding any status on the match.
func (e Engine) notifyParticipants(ctx context.Context, tx *sql.Tx, m domain.DraftMatch, actorID, eventType string, payload events.EventPayload) error {
	parts, err := e.Repo.ListParticipantsTx(ctx, tx, m.ID)
	if err != nil {
		return err
	}
	for _, p := range parts {
		if err := e.Events.Append(ctx, tx, events.Entry{
			Type:        eventType,
			Topic:       m.ID,
			EntityKind:  "draft_match",
			EntityID:    m.ID,
			ActorID:     actorID,
			RecipientID: p.UserID,
			Payload:     payload,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (e Engine) notifyApproved(ctx context.Context, tx *sql.Tx, m domain.DraftMatch, actorID, eventType string) error {
	parts, err := e.Repo.ListParticipantsTx(ctx, tx, m.ID)
	if err != nil {
		return err
	}
	for _, p := range parts {
		if p.Status != domain.ParticipantApproved {
			continue
		}
		if err := e.Events.Append(ctx, tx, events.Entry{
			Type:        eventType,
			Topic:       m.ID,
			EntityKind:  "draft_match",
			EntityID:    m.ID,
			ActorID:     actorID,
			RecipientID: p.UserID,
		}); err != nil {
			return err
		}
	}
	return nil
}

// syncCapacity recomputes the approved count and flips full/recruiting when
// the count crosses the slot threshold. Callers hold the per-match lock.
func (e Engine) syncCapacity(ctx context.Context, tx *sql.Tx, m *domain.DraftMatch, actorID string) (int, error) {
	approved, err := e.Repo.CountApprovedTx(ctx, tx, m.ID)
	if err != nil {
		return 0, err
	}
	switch {
	case approved >= m.SlotsNeeded && m.Status == domain.DraftRecruiting:
		m.Status = domain.DraftFull
		if err := e.Events.Append(ctx, tx, events.Entry{
			Type:       events.TypeMatchFull,
			Topic:      m.ID,
			EntityKind: "draft_match",
			EntityID:   m.ID,
			ActorID:    actorID,
		}); err != nil {
			return approved, err
		}
	case approved < m.SlotsNeeded && m.Status == domain.DraftFull:
		m.Status = domain.DraftRecruiting
		if err := e.Events.Append(ctx, tx, events.Entry{
			Type:       events.TypeMatchReopened,
			Topic:      m.ID,
			EntityKind: "draft_match",
			EntityID:   m.ID,
			ActorID:    actorID,
		}); err != nil {
			return approved, err
		}
	}
	return approved, nil
}
