package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"courtside/internal/domain"
)

type EventFilters struct {
	Topic       string
	Type        string
	RecipientID string
	Limit       int
	Cursor      int64
}

func scanEvent(scan func(dest ...any) error) (domain.Event, error) {
	var e domain.Event
	var topic, entityID, recipient, payload sql.NullString
	err := scan(&e.ID, &e.TS, &e.Type, &topic, &e.EntityKind, &entityID, &e.ActorID, &recipient, &payload)
	if err != nil {
		return e, err
	}
	if topic.Valid {
		e.Topic = topic.String
	}
	if entityID.Valid {
		e.EntityID = entityID.String
	}
	if recipient.Valid {
		e.RecipientID = recipient.String
	}
	if payload.Valid {
		e.Payload = payload.String
	}
	return e, nil
}

// LatestEvents returns events newest-first, optionally filtered and paged by
// a descending id cursor.
func (r Repo) LatestEvents(ctx context.Context, f EventFilters) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Topic != "" {
		clauses = append(clauses, "topic=?")
		args = append(args, f.Topic)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.RecipientID != "" {
		clauses = append(clauses, "recipient_id=?")
		args = append(args, f.RecipientID)
	}
	if f.Cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Cursor)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,topic,entity_kind,entity_id,actor_id,recipient_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsAfter returns events with IDs greater than the cursor in ascending
// order, for broadcast dispatch.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,topic,entity_kind,entity_id,actor_id,recipient_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
