package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"courtside/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	tags, err := marshalStringSlice(u.Tags)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO users(id,name,tags_json,created_at) VALUES (?,?,?,?)`,
		u.ID, u.Name, nullableStringPtr(tags), u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	var tags sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,tags_json,created_at FROM users WHERE id=?`, id).
		Scan(&u.ID, &u.Name, &tags, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	if tags.Valid {
		if err := json.Unmarshal([]byte(tags.String), &u.Tags); err != nil {
			return u, fmt.Errorf("user %s tags: %w", id, err)
		}
	}
	return u, nil
}

func (r Repo) InsertDraftMatch(ctx context.Context, tx *sql.Tx, m domain.DraftMatch) error {
	tags, err := marshalStringSlice(m.RequiredTags)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO draft_matches(id,creator_id,sport,skill_level,location_text,starts_at,ends_at,slots_needed,required_tags_json,status,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.CreatorID, m.Sport, nullable(m.SkillLevel), nullable(m.LocationText),
		m.StartsAt, m.EndsAt, m.SlotsNeeded, nullableStringPtr(tags), m.Status, m.CreatedAt, m.UpdatedAt)
	return err
}

func (r Repo) UpdateDraftMatch(ctx context.Context, tx *sql.Tx, m domain.DraftMatch) error {
	tags, err := marshalStringSlice(m.RequiredTags)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE draft_matches SET sport=?, skill_level=?, location_text=?, starts_at=?, ends_at=?, slots_needed=?, required_tags_json=?, status=?, updated_at=? WHERE id=?`,
		m.Sport, nullable(m.SkillLevel), nullable(m.LocationText), m.StartsAt, m.EndsAt,
		m.SlotsNeeded, nullableStringPtr(tags), m.Status, m.UpdatedAt, m.ID)
	return err
}

const draftMatchCols = `id,creator_id,sport,skill_level,location_text,starts_at,ends_at,slots_needed,required_tags_json,status,created_at,updated_at`

func scanDraftMatch(scan func(dest ...any) error) (domain.DraftMatch, error) {
	var m domain.DraftMatch
	var skill, location, tags sql.NullString
	err := scan(&m.ID, &m.CreatorID, &m.Sport, &skill, &location, &m.StartsAt, &m.EndsAt,
		&m.SlotsNeeded, &tags, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if skill.Valid {
		m.SkillLevel = skill.String
	}
	if location.Valid {
		m.LocationText = location.String
	}
	if tags.Valid {
		if err := json.Unmarshal([]byte(tags.String), &m.RequiredTags); err != nil {
			return m, fmt.Errorf("match %s required tags: %w", m.ID, err)
		}
	}
	return m, nil
}

func (r Repo) GetDraftMatch(ctx context.Context, id string) (domain.DraftMatch, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+draftMatchCols+` FROM draft_matches WHERE id=?`, id)
	return scanDraftMatch(row.Scan)
}

func (r Repo) GetDraftMatchTx(ctx context.Context, tx *sql.Tx, id string) (domain.DraftMatch, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+draftMatchCols+` FROM draft_matches WHERE id=?`, id)
	return scanDraftMatch(row.Scan)
}

type DraftMatchFilters struct {
	CreatorID       string
	Sport           string
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListDraftMatches(ctx context.Context, f DraftMatchFilters) ([]domain.DraftMatch, error) {
	var clauses []string
	var args []any
	if f.CreatorID != "" {
		clauses = append(clauses, "creator_id=?")
		args = append(args, f.CreatorID)
	}
	if f.Sport != "" {
		clauses = append(clauses, "sport=?")
		args = append(args, f.Sport)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + draftMatchCols + ` FROM draft_matches ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DraftMatch
	for rows.Next() {
		m, err := scanDraftMatch(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func marshalStringSlice(in []string) (*string, error) {
	if len(in) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}
