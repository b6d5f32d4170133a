package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"courtside/internal/config"
	"courtside/internal/domain"
	"courtside/internal/engine"
)

const (
	defaultBroadcastInterval = 2 * time.Second
	defaultBroadcastTimeout  = 5 * time.Second
	defaultBroadcastBatch    = 100
)

// broadcastDispatcher polls the event log and pushes events to configured
// hooks. Delivery is best-effort: a hook that keeps failing stalls its own
// cursor, never the write path that produced the event.
type broadcastDispatcher struct {
	engine  engine.Engine
	hooks   []config.BroadcastHook
	client  *http.Client
	mu      sync.Mutex
	cursors map[int]int64
}

// StartBroadcast launches the background dispatcher when hooks are
// configured.
func StartBroadcast(e engine.Engine) {
	if e.Config == nil || len(e.Config.Broadcast.Hooks) == 0 {
		return
	}
	d := &broadcastDispatcher{
		engine:  e,
		hooks:   e.Config.Broadcast.Hooks,
		client:  &http.Client{Timeout: defaultBroadcastTimeout},
		cursors: make(map[int]int64),
	}
	go d.run()
}

func (d *broadcastDispatcher) run() {
	ticker := time.NewTicker(defaultBroadcastInterval)
	defer ticker.Stop()
	for {
		d.dispatchAll()
		<-ticker.C
	}
}

func (d *broadcastDispatcher) dispatchAll() {
	for i, hook := range d.hooks {
		if !hook.Active() {
			continue
		}
		d.dispatchHook(i, hook)
	}
}

func (d *broadcastDispatcher) dispatchHook(idx int, hook config.BroadcastHook) {
	ctx := context.Background()
	cursor := d.cursorFor(idx)
	events, err := d.engine.Repo.EventsAfter(ctx, defaultBroadcastBatch, cursor)
	if err != nil {
		log.Printf("broadcast: fetch events failed: %v", err)
		return
	}
	typeFilter := newBroadcastFilter(hook.Events)
	topicFilter := newBroadcastFilter(hook.Topics)
	for _, evt := range events {
		if !typeFilter.match(evt.Type) || !topicFilter.match(evt.Topic) {
			d.setCursor(idx, evt.ID)
			continue
		}
		if err := d.postEvent(ctx, hook, evt); err != nil {
			log.Printf("broadcast: deliver to %s failed: %v", hook.URL, err)
			return
		}
		d.setCursor(idx, evt.ID)
	}
}

func (d *broadcastDispatcher) cursorFor(idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	cur, err := d.engine.Repo.LatestEventID(context.Background())
	if err != nil {
		log.Printf("broadcast: init cursor failed: %v", err)
		cur = 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *broadcastDispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

type broadcastEvent struct {
	ID          int64           `json:"id"`
	Type        string          `json:"type"`
	Topic       string          `json:"topic,omitempty"`
	EntityKind  string          `json:"entity_kind"`
	EntityID    string          `json:"entity_id,omitempty"`
	ActorID     string          `json:"actor_id"`
	RecipientID string          `json:"recipient_id,omitempty"`
	TS          string          `json:"ts"`
	Payload     json.RawMessage `json:"payload"`
}

func (d *broadcastDispatcher) postEvent(ctx context.Context, hook config.BroadcastHook, evt domain.Event) error {
	payload := json.RawMessage([]byte("{}"))
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage([]byte(evt.Payload))
	}
	body := broadcastEvent{
		ID:          evt.ID,
		Type:        evt.Type,
		Topic:       evt.Topic,
		EntityKind:  evt.EntityKind,
		EntityID:    evt.EntityID,
		ActorID:     evt.ActorID,
		RecipientID: evt.RecipientID,
		TS:          evt.TS,
		Payload:     payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	timeout := defaultBroadcastTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	client := d.client
	if timeout != d.client.Timeout {
		client = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Courtside-Event", evt.Type)
	req.Header.Set("X-Courtside-Delivery", fmt.Sprintf("%d", evt.ID))
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Courtside-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

type broadcastFilter struct {
	all bool
	set map[string]struct{}
}

func newBroadcastFilter(values []string) broadcastFilter {
	if len(values) == 0 {
		return broadcastFilter{all: true}
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		key := strings.TrimSpace(v)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return broadcastFilter{all: true}
	}
	return broadcastFilter{set: set}
}

func (f broadcastFilter) match(value string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[value]
	return ok
}
