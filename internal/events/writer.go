package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Lifecycle and workflow event types. The topic is always the draft-match id;
// events with a recipient additionally land on that user's direct queue.
const (
	TypeMatchCreated   = "draft_match.created"
	TypeMatchUpdated   = "draft_match.updated"
	TypeMatchLocked    = "draft_match.locked"
	TypeMatchBooking   = "draft_match.booking_initiated"
	TypeMatchConverted = "draft_match.converted"
	TypeMatchCancelled = "draft_match.cancelled"
	TypeMatchFull      = "draft_match.full"
	TypeMatchReopened  = "draft_match.reopened"
	TypeUserInterested = "participant.interested"
	TypeUserWithdrawn  = "participant.withdrawn"
	TypeUserAccepted   = "participant.accepted"
	TypeUserRejected   = "participant.rejected"
	TypeUserRemoved    = "participant.removed"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Entry is one broadcast record to append. Topic keys the match channel;
// RecipientID, when set, targets a single user's queue.
type Entry struct {
	Type        string
	Topic       string
	EntityKind  string
	EntityID    string
	ActorID     string
	RecipientID string
	Payload     EventPayload
}

// Append writes an event row inside the caller's transaction. Emission is
// payload production only; delivery happens asynchronously and its failure
// never affects the transaction.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, e Entry) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if e.Payload == nil {
		e.Payload = EventPayload{}
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,topic,entity_kind,entity_id,actor_id,recipient_id,payload_json) VALUES (?,?,?,?,?,?,?,?)`,
		ts, e.Type, nullable(e.Topic), e.EntityKind, nullable(e.EntityID), e.ActorID, nullable(e.RecipientID), string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
