package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"courtside/internal/conflict"
	"courtside/internal/domain"
	"courtside/internal/events"
	"courtside/internal/repo"
)

// ExpressInterest records a pending interest for the user and returns their
// schedule-conflict report for the match window. The report is advisory: the
// application goes through regardless, and the creator sees the conflicts
// when deciding.
func (e Engine) ExpressInterest(ctx context.Context, matchID, userID string) (domain.ParticipantStatus, domain.ConflictReport, error) {
	var report domain.ConflictReport

	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return domain.ParticipantStatus{}, report, fmt.Errorf("user: %w", err)
	}

	unlock := e.locks.Acquire(matchID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ParticipantStatus{}, report, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetDraftMatchTx(ctx, tx, matchID)
	if err != nil {
		return domain.ParticipantStatus{}, report, err
	}
	if m.Status != domain.DraftRecruiting {
		return domain.ParticipantStatus{}, report, InvalidStateError{Op: "express interest", Status: m.Status}
	}
	if m.CreatorID == userID {
		return domain.ParticipantStatus{}, report, ErrCreatorInterest
	}
	if prev, err := e.Repo.GetParticipantTx(ctx, tx, matchID, userID); err == nil {
		return prev, report, DuplicateActionError{Reason: fmt.Sprintf("interest already recorded with status %s", prev.Status)}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.ParticipantStatus{}, report, err
	}

	starts, err := time.Parse(time.RFC3339, m.StartsAt)
	if err != nil {
		return domain.ParticipantStatus{}, report, err
	}
	ends, err := time.Parse(time.RFC3339, m.EndsAt)
	if err != nil {
		return domain.ParticipantStatus{}, report, err
	}
	report, err = conflict.Validate(ctx, e.Repo, userID, starts, ends, matchID)
	if err != nil {
		return domain.ParticipantStatus{}, report, fmt.Errorf("conflict check: %w", err)
	}

	now := e.now().UTC().Format(time.RFC3339)
	p := domain.ParticipantStatus{
		ID:        uuid.NewString(),
		MatchID:   matchID,
		UserID:    userID,
		Status:    domain.ParticipantPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.Repo.InsertParticipantTx(ctx, tx, p); err != nil {
		return p, report, err
	}
	payload := events.EventPayload{"has_conflicts": report.HasConflicts()}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type:       events.TypeUserInterested,
		Topic:      matchID,
		EntityKind: "participant",
		EntityID:   p.ID,
		ActorID:    userID,
		Payload:    payload,
	}); err != nil {
		return p, report, err
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type:        events.TypeUserInterested,
		Topic:       matchID,
		EntityKind:  "participant",
		EntityID:    p.ID,
		ActorID:     userID,
		RecipientID: m.CreatorID,
		Payload:     payload,
	}); err != nil {
		return p, report, err
	}
	if err := tx.Commit(); err != nil {
		return p, report, err
	}
	return p, report, nil
}

// Withdraw removes the user's own interest record. Allowed while the match is
// recruiting or full; withdrawing an approved participant from a full match
// reopens recruitment.
func (e Engine) Withdraw(ctx context.Context, matchID, userID string) error {
	unlock := e.locks.Acquire(matchID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetDraftMatchTx(ctx, tx, matchID)
	if err != nil {
		return err
	}
	if m.Status != domain.DraftRecruiting && m.Status != domain.DraftFull {
		return InvalidStateError{Op: "withdraw interest", Status: m.Status}
	}
	p, err := e.Repo.GetParticipantTx(ctx, tx, matchID, userID)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteParticipantTx(ctx, tx, p.ID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type:        events.TypeUserWithdrawn,
		Topic:       matchID,
		EntityKind:  "participant",
		EntityID:    p.ID,
		ActorID:     userID,
		RecipientID: m.CreatorID,
	}); err != nil {
		return err
	}
	if _, err := e.syncCapacity(ctx, tx, &m, userID); err != nil {
		return err
	}
	m.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateDraftMatch(ctx, tx, m); err != nil {
		return err
	}
	return tx.Commit()
}

// Decide approves or rejects a pending participant. Creator-only; approvals
// are capacity-checked under the per-match lock, and the approval that fills
// the last slot flips the match to full.
func (e Engine) Decide(ctx context.Context, matchID, userID, creatorID string, approve bool) (domain.ParticipantStatus, error) {
	unlock := e.locks.Acquire(matchID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ParticipantStatus{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetDraftMatchTx(ctx, tx, matchID)
	if err != nil {
		return domain.ParticipantStatus{}, err
	}
	if m.CreatorID != creatorID {
		return domain.ParticipantStatus{}, UnauthorizedError{Action: "decide on participants"}
	}
	if m.Status != domain.DraftRecruiting && m.Status != domain.DraftFull {
		return domain.ParticipantStatus{}, InvalidStateError{Op: "decide on participants", Status: m.Status}
	}
	p, err := e.Repo.GetParticipantTx(ctx, tx, matchID, userID)
	if err != nil {
		return p, err
	}
	if p.Status != domain.ParticipantPending {
		return p, DuplicateActionError{Reason: fmt.Sprintf("participant already %s", p.Status)}
	}

	now := e.now().UTC().Format(time.RFC3339)
	if approve {
		approved, err := e.Repo.CountApprovedTx(ctx, tx, matchID)
		if err != nil {
			return p, err
		}
		if approved >= m.SlotsNeeded {
			return p, CapacityExceededError{SlotsNeeded: m.SlotsNeeded, Approved: approved}
		}
		p.Status = domain.ParticipantApproved
	} else {
		p.Status = domain.ParticipantRejected
	}
	p.UpdatedAt = now
	if err := e.Repo.UpdateParticipantStatusTx(ctx, tx, p.ID, p.Status, now); err != nil {
		return p, err
	}
	eventType := events.TypeUserRejected
	if approve {
		eventType = events.TypeUserAccepted
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type:        eventType,
		Topic:       matchID,
		EntityKind:  "participant",
		EntityID:    p.ID,
		ActorID:     creatorID,
		RecipientID: userID,
	}); err != nil {
		return p, err
	}
	if approve {
		if _, err := e.syncCapacity(ctx, tx, &m, creatorID); err != nil {
			return p, err
		}
		m.UpdatedAt = now
		if err := e.Repo.UpdateDraftMatch(ctx, tx, m); err != nil {
			return p, err
		}
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

// RemoveApproved drops an approved participant, reopening recruitment when
// the match was full. Creator-only; removal of anyone not approved is a
// state error.
func (e Engine) RemoveApproved(ctx context.Context, matchID, userID, creatorID string) error {
	unlock := e.locks.Acquire(matchID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetDraftMatchTx(ctx, tx, matchID)
	if err != nil {
		return err
	}
	if m.CreatorID != creatorID {
		return UnauthorizedError{Action: "remove participants"}
	}
	if m.Status != domain.DraftRecruiting && m.Status != domain.DraftFull {
		return InvalidStateError{Op: "remove participant", Status: m.Status}
	}
	p, err := e.Repo.GetParticipantTx(ctx, tx, matchID, userID)
	if err != nil {
		return err
	}
	if p.Status != domain.ParticipantApproved {
		return InvalidStateError{Op: "remove participant", Status: p.Status}
	}
	if err := e.Repo.DeleteParticipantTx(ctx, tx, p.ID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type:        events.TypeUserRemoved,
		Topic:       matchID,
		EntityKind:  "participant",
		EntityID:    p.ID,
		ActorID:     creatorID,
		RecipientID: userID,
	}); err != nil {
		return err
	}
	if _, err := e.syncCapacity(ctx, tx, &m, creatorID); err != nil {
		return err
	}
	m.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateDraftMatch(ctx, tx, m); err != nil {
		return err
	}
	return tx.Commit()
}

// CheckConflicts runs the schedule validator for an arbitrary window without
// touching any match, for the pre-application check.
func (e Engine) CheckConflicts(ctx context.Context, userID, startsAt, endsAt, excludeID string) (domain.ConflictReport, error) {
	starts, err := time.Parse(time.RFC3339, startsAt)
	if err != nil {
		return domain.ConflictReport{}, fmt.Errorf("starts_at: %w", err)
	}
	ends, err := time.Parse(time.RFC3339, endsAt)
	if err != nil {
		return domain.ConflictReport{}, fmt.Errorf("ends_at: %w", err)
	}
	if !ends.After(starts) {
		return domain.ConflictReport{}, errors.New("ends_at must be after starts_at")
	}
	return conflict.Validate(ctx, e.Repo, userID, starts, ends, excludeID)
}
