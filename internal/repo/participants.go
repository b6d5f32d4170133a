package repo

import (
	"context"
	"database/sql"

	"courtside/internal/domain"
)

func scanParticipant(scan func(dest ...any) error) (domain.ParticipantStatus, error) {
	var p domain.ParticipantStatus
	err := scan(&p.ID, &p.MatchID, &p.UserID, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) InsertParticipantTx(ctx context.Context, tx *sql.Tx, p domain.ParticipantStatus) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO participant_status(id,match_id,user_id,status,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		p.ID, p.MatchID, p.UserID, p.Status, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetParticipant(ctx context.Context, matchID, userID string) (domain.ParticipantStatus, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,match_id,user_id,status,created_at,updated_at FROM participant_status WHERE match_id=? AND user_id=?`, matchID, userID)
	return scanParticipant(row.Scan)
}

func (r Repo) GetParticipantTx(ctx context.Context, tx *sql.Tx, matchID, userID string) (domain.ParticipantStatus, error) {
	row := tx.QueryRowContext(ctx, `SELECT id,match_id,user_id,status,created_at,updated_at FROM participant_status WHERE match_id=? AND user_id=?`, matchID, userID)
	return scanParticipant(row.Scan)
}

func (r Repo) UpdateParticipantStatusTx(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE participant_status SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteParticipantTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM participant_status WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountApprovedTx counts approved participants inside the caller's
// transaction so capacity checks read their own writes.
func (r Repo) CountApprovedTx(ctx context.Context, tx *sql.Tx, matchID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM participant_status WHERE match_id=? AND status=?`,
		matchID, domain.ParticipantApproved).Scan(&n)
	return n, err
}

func (r Repo) ListParticipants(ctx context.Context, matchID string) ([]domain.ParticipantStatus, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,match_id,user_id,status,created_at,updated_at FROM participant_status WHERE match_id=? ORDER BY created_at ASC, id ASC`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ParticipantStatus
	for rows.Next() {
		p, err := scanParticipant(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) ListParticipantsTx(ctx context.Context, tx *sql.Tx, matchID string) ([]domain.ParticipantStatus, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id,match_id,user_id,status,created_at,updated_at FROM participant_status WHERE match_id=? ORDER BY created_at ASC, id ASC`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ParticipantStatus
	for rows.Next() {
		p, err := scanParticipant(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
