package repo

import (
	"context"
	"fmt"
	"time"

	"courtside/internal/domain"
)

// Commitment is one interval a user is already tied to, normalized across
// the three sources the conflict validator scans.
type Commitment struct {
	SourceType string
	SourceID   string
	Label      string
	Location   string
	StartsAt   time.Time
	EndsAt     time.Time
}

func parseInterval(source, id, starts, ends string) (time.Time, time.Time, error) {
	s, err := time.Parse(time.RFC3339, starts)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%s %s starts_at: %w", source, id, err)
	}
	e, err := time.Parse(time.RFC3339, ends)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%s %s ends_at: %w", source, id, err)
	}
	return s, e, nil
}

// ListDraftCommitments returns draft matches the user is committed to:
// matches they created that are still recruiting, and matches where they are
// an approved participant in recruiting, full, or awaiting_confirmation state.
func (r Repo) ListDraftCommitments(ctx context.Context, userID, excludeID string) ([]Commitment, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT DISTINCT m.id, m.sport, COALESCE(m.location_text,''), m.starts_at, m.ends_at
FROM draft_matches m
LEFT JOIN participant_status p ON p.match_id = m.id AND p.user_id = ? AND p.status = ?
WHERE m.id != ?
  AND ((m.creator_id = ? AND m.status = ?)
       OR (p.id IS NOT NULL AND m.status IN (?,?,?)))`,
		userID, domain.ParticipantApproved, excludeID, userID, domain.DraftRecruiting,
		domain.DraftRecruiting, domain.DraftFull, domain.DraftAwaitingConfirmation)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Commitment
	for rows.Next() {
		var id, sport, location, starts, ends string
		if err := rows.Scan(&id, &sport, &location, &starts, &ends); err != nil {
			return nil, err
		}
		s, e, err := parseInterval("draft match", id, starts, ends)
		if err != nil {
			return nil, err
		}
		res = append(res, Commitment{
			SourceType: domain.ConflictSourceDraftMatch,
			SourceID:   id,
			Label:      sport,
			Location:   location,
			StartsAt:   s,
			EndsAt:     e,
		})
	}
	return res, rows.Err()
}

// ListOpenMatchCommitments returns open or confirmed matches the user created
// or joined.
func (r Repo) ListOpenMatchCommitments(ctx context.Context, userID, excludeID string) ([]Commitment, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT DISTINCT m.id, m.sport, COALESCE(m.location_text,''), m.starts_at, m.ends_at
FROM open_matches m
LEFT JOIN open_match_players j ON j.match_id = m.id AND j.user_id = ?
WHERE m.id != ?
  AND m.status IN ('open','confirmed')
  AND (m.creator_id = ? OR j.user_id IS NOT NULL)`,
		userID, excludeID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Commitment
	for rows.Next() {
		var id, sport, location, starts, ends string
		if err := rows.Scan(&id, &sport, &location, &starts, &ends); err != nil {
			return nil, err
		}
		s, e, err := parseInterval("open match", id, starts, ends)
		if err != nil {
			return nil, err
		}
		res = append(res, Commitment{
			SourceType: domain.ConflictSourceOpenMatch,
			SourceID:   id,
			Label:      sport,
			Location:   location,
			StartsAt:   s,
			EndsAt:     e,
		})
	}
	return res, rows.Err()
}

// ListBookingCommitments returns the user's confirmed venue bookings.
func (r Repo) ListBookingCommitments(ctx context.Context, userID, excludeID string) ([]Commitment, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT id, field_id, starts_at, ends_at FROM bookings
WHERE user_id = ? AND id != ? AND status = 'confirmed'`, userID, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Commitment
	for rows.Next() {
		var id, field, starts, ends string
		if err := rows.Scan(&id, &field, &starts, &ends); err != nil {
			return nil, err
		}
		s, e, err := parseInterval("booking", id, starts, ends)
		if err != nil {
			return nil, err
		}
		res = append(res, Commitment{
			SourceType: domain.ConflictSourceBooking,
			SourceID:   id,
			Label:      "booking",
			Location:   field,
			StartsAt:   s,
			EndsAt:     e,
		})
	}
	return res, rows.Err()
}

// InsertOpenMatch seeds an open match record (fixtures and tests; open match
// lifecycle is owned elsewhere).
func (r Repo) InsertOpenMatch(ctx context.Context, m domain.OpenMatch) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO open_matches(id,creator_id,sport,location_text,starts_at,ends_at,status) VALUES (?,?,?,?,?,?,?)`,
		m.ID, m.CreatorID, m.Sport, nullable(m.LocationText), m.StartsAt, m.EndsAt, m.Status)
	return err
}

func (r Repo) AddOpenMatchPlayer(ctx context.Context, matchID, userID string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO open_match_players(match_id,user_id) VALUES (?,?)`, matchID, userID)
	return err
}

func (r Repo) InsertBooking(ctx context.Context, b domain.Booking) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO bookings(id,user_id,field_id,starts_at,ends_at,status) VALUES (?,?,?,?,?,?)`,
		b.ID, b.UserID, b.FieldID, b.StartsAt, b.EndsAt, b.Status)
	return err
}

// FieldBookedBetween reports whether any confirmed booking overlaps the given
// window on a field, excluding the user's own bookings. Checked when a locked
// match initiates booking.
func (r Repo) FieldBookedBetween(ctx context.Context, fieldID, startsAt, endsAt, excludeUserID string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `
SELECT count(*) FROM bookings
WHERE field_id = ? AND status = 'confirmed' AND user_id != ?
  AND starts_at < ? AND ends_at > ?`, fieldID, excludeUserID, endsAt, startsAt).Scan(&n)
	return n > 0, err
}
