package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"courtside/internal/config"
	"courtside/internal/db"
	"courtside/internal/domain"
	"courtside/internal/engine"
	"courtside/internal/migrate"
	"courtside/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T, users ...string) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	for _, u := range users {
		if err := eng.Repo.InsertUser(ctx, domain.User{ID: u, Name: u, CreatedAt: "2026-09-01T00:00:00Z"}); err != nil {
			t.Fatalf("seed user %s: %v", u, err)
		}
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func createMatch(t *testing.T, env testEnv, creator string, slots int) domain.DraftMatch {
	t.Helper()
	m, err := env.Engine.CreateDraftMatch(env.Ctx, engine.DraftMatchCreateOptions{
		CreatorID:   creator,
		Sport:       "padel",
		StartsAt:    "2026-09-01T18:00:00Z",
		EndsAt:      "2026-09-01T20:00:00Z",
		SlotsNeeded: slots,
	})
	if err != nil {
		t.Fatalf("create match: %v", err)
	}
	return m
}

func TestFullLifecycle(t *testing.T) {
	env := newTestEnv(t, "alice", "bob", "carol")
	m := createMatch(t, env, "alice", 2)
	if m.Status != domain.DraftRecruiting {
		t.Fatalf("new match status: %s", m.Status)
	}

	for _, user := range []string{"bob", "carol"} {
		if _, _, err := env.Engine.ExpressInterest(env.Ctx, m.ID, user); err != nil {
			t.Fatalf("%s interest: %v", user, err)
		}
	}
	if _, err := env.Engine.Decide(env.Ctx, m.ID, "bob", "alice", true); err != nil {
		t.Fatalf("approve bob: %v", err)
	}
	if _, err := env.Engine.Decide(env.Ctx, m.ID, "carol", "alice", true); err != nil {
		t.Fatalf("approve carol: %v", err)
	}
	got, err := env.Engine.Repo.GetDraftMatch(env.Ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.DraftFull {
		t.Fatalf("expected full after last approval, got %s", got.Status)
	}

	if _, err := env.Engine.InitiateLock(env.Ctx, m.ID, "alice"); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := env.Engine.InitiateBooking(env.Ctx, m.ID, "alice", "field-7"); err != nil {
		t.Fatalf("book: %v", err)
	}
	got, err = env.Engine.Convert(env.Ctx, m.ID, "alice")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if got.Status != domain.DraftConverted {
		t.Fatalf("expected converted, got %s", got.Status)
	}

	events, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{Topic: m.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) == 0 {
		t.Fatal("expected events on the match topic")
	}
	// Approved participants get direct converted notifications.
	direct, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{RecipientID: "bob", Type: "draft_match.converted"})
	if err != nil {
		t.Fatal(err)
	}
	if len(direct) != 1 {
		t.Fatalf("expected one converted notification for bob, got %d", len(direct))
	}
}

func TestConvertOnlyWhenFilled(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	m := createMatch(t, env, "alice", 3)

	_, err := env.Engine.Convert(env.Ctx, m.ID, "alice")
	var ise engine.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("expected invalid state converting a recruiting match, got %v", err)
	}

	// Creator plus one approval covers two of three slots; the locked-flow
	// convert must refuse.
	if _, _, err := env.Engine.ExpressInterest(env.Ctx, m.ID, "bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Decide(env.Ctx, m.ID, "bob", "alice", true); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.InitiateLock(env.Ctx, m.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.InitiateBooking(env.Ctx, m.ID, "alice", ""); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.Convert(env.Ctx, m.ID, "alice")
	var ce engine.CapacityExceededError
	if !errors.As(err, &ce) {
		t.Fatalf("expected capacity error converting an underfilled match, got %v", err)
	}
	if ce.SlotsNeeded != 3 || ce.Approved != 1 {
		t.Fatalf("capacity error counts: %+v", ce)
	}
}

func TestInterestRules(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	m := createMatch(t, env, "alice", 1)

	if _, _, err := env.Engine.ExpressInterest(env.Ctx, m.ID, "alice"); !errors.Is(err, engine.ErrCreatorInterest) {
		t.Fatalf("creator interest: %v", err)
	}
	if _, _, err := env.Engine.ExpressInterest(env.Ctx, m.ID, "bob"); err != nil {
		t.Fatal(err)
	}
	_, _, err := env.Engine.ExpressInterest(env.Ctx, m.ID, "bob")
	var de engine.DuplicateActionError
	if !errors.As(err, &de) {
		t.Fatalf("expected duplicate action, got %v", err)
	}

	// Rejection keeps the record, so a rejected user cannot re-apply.
	if _, err := env.Engine.Decide(env.Ctx, m.ID, "bob", "alice", false); err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.Engine.ExpressInterest(env.Ctx, m.ID, "bob"); !errors.As(err, &de) {
		t.Fatalf("rejected user re-applying: %v", err)
	}
	// Deciding an already-decided participant is a duplicate too.
	if _, err := env.Engine.Decide(env.Ctx, m.ID, "bob", "alice", true); !errors.As(err, &de) {
		t.Fatalf("double decide: %v", err)
	}
}

func TestDecideRequiresCreator(t *testing.T) {
	env := newTestEnv(t, "alice", "bob", "mallory")
	m := createMatch(t, env, "alice", 1)
	if _, _, err := env.Engine.ExpressInterest(env.Ctx, m.ID, "bob"); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.Decide(env.Ctx, m.ID, "bob", "mallory", true)
	var ue engine.UnauthorizedError
	if !errors.As(err, &ue) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestWithdrawReopensFullMatch(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	m := createMatch(t, env, "alice", 1)
	if _, _, err := env.Engine.ExpressInterest(env.Ctx, m.ID, "bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Decide(env.Ctx, m.ID, "bob", "alice", true); err != nil {
		t.Fatal(err)
	}
	got, _ := env.Engine.Repo.GetDraftMatch(env.Ctx, m.ID)
	if got.Status != domain.DraftFull {
		t.Fatalf("expected full, got %s", got.Status)
	}

	if err := env.Engine.Withdraw(env.Ctx, m.ID, "bob"); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	got, _ = env.Engine.Repo.GetDraftMatch(env.Ctx, m.ID)
	if got.Status != domain.DraftRecruiting {
		t.Fatalf("expected recruiting after withdrawal, got %s", got.Status)
	}
	reopened, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{Topic: m.ID, Type: "draft_match.reopened"})
	if err != nil {
		t.Fatal(err)
	}
	if len(reopened) != 1 {
		t.Fatalf("expected one reopened event, got %d", len(reopened))
	}
}

func TestRemoveApproved(t *testing.T) {
	env := newTestEnv(t, "alice", "bob", "carol")
	m := createMatch(t, env, "alice", 1)
	if _, _, err := env.Engine.ExpressInterest(env.Ctx, m.ID, "bob"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.Engine.ExpressInterest(env.Ctx, m.ID, "carol"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Decide(env.Ctx, m.ID, "bob", "alice", true); err != nil {
		t.Fatal(err)
	}

	// Removing a pending participant is a state error, not a removal.
	err := env.Engine.RemoveApproved(env.Ctx, m.ID, "carol", "alice")
	var ise engine.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("expected invalid state removing pending carol, got %v", err)
	}

	if err := env.Engine.RemoveApproved(env.Ctx, m.ID, "bob", "alice"); err != nil {
		t.Fatalf("remove bob: %v", err)
	}
	got, _ := env.Engine.Repo.GetDraftMatch(env.Ctx, m.ID)
	if got.Status != domain.DraftRecruiting {
		t.Fatalf("expected recruiting after removal, got %s", got.Status)
	}
	if _, err := env.Engine.Repo.GetParticipant(env.Ctx, m.ID, "bob"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("removed participant still present: %v", err)
	}
}

func TestInterestFrozenAfterLock(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	m := createMatch(t, env, "alice", 2)
	if _, err := env.Engine.InitiateLock(env.Ctx, m.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	var ise engine.InvalidStateError
	if _, _, err := env.Engine.ExpressInterest(env.Ctx, m.ID, "bob"); !errors.As(err, &ise) {
		t.Fatalf("interest after lock: %v", err)
	}
	if err := env.Engine.Withdraw(env.Ctx, m.ID, "bob"); !errors.As(err, &ise) {
		t.Fatalf("withdraw after lock: %v", err)
	}
}

func TestCancelRules(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	m := createMatch(t, env, "alice", 1)
	if _, err := env.Engine.CancelDraftMatch(env.Ctx, m.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	var ise engine.InvalidStateError
	if _, err := env.Engine.CancelDraftMatch(env.Ctx, m.ID, "alice"); !errors.As(err, &ise) {
		t.Fatalf("double cancel: %v", err)
	}

	m2 := createMatch(t, env, "alice", 1)
	if _, _, err := env.Engine.ExpressInterest(env.Ctx, m2.ID, "bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Decide(env.Ctx, m2.ID, "bob", "alice", true); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Convert(env.Ctx, m2.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CancelDraftMatch(env.Ctx, m2.ID, "alice"); !errors.As(err, &ise) {
		t.Fatalf("cancel converted: %v", err)
	}
}

func TestInterestReportsScheduleConflicts(t *testing.T) {
	env := newTestEnv(t, "alice", "bob", "carol")
	// Bob is already approved into carol's overlapping match.
	other, err := env.Engine.CreateDraftMatch(env.Ctx, engine.DraftMatchCreateOptions{
		CreatorID:   "carol",
		Sport:       "padel",
		StartsAt:    "2026-09-01T19:00:00Z",
		EndsAt:      "2026-09-01T21:00:00Z",
		SlotsNeeded: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.Engine.ExpressInterest(env.Ctx, other.ID, "bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Decide(env.Ctx, other.ID, "bob", "carol", true); err != nil {
		t.Fatal(err)
	}

	m := createMatch(t, env, "alice", 1) // 18:00-20:00
	p, report, err := env.Engine.ExpressInterest(env.Ctx, m.ID, "bob")
	if err != nil {
		t.Fatalf("interest with conflicts must still go through: %v", err)
	}
	if p.Status != domain.ParticipantPending {
		t.Fatalf("expected pending, got %s", p.Status)
	}
	if !report.HasConflicts() {
		t.Fatal("expected a conflict report")
	}
	c := report.Conflicts[0]
	if c.SourceType != domain.ConflictSourceDraftMatch || c.SourceID != other.ID {
		t.Fatalf("unexpected conflict source: %+v", c)
	}
	if c.Severity != domain.SeverityHigh {
		t.Fatalf("one hour of a two-hour window is HIGH, got %s", c.Severity)
	}
}

func TestBookingFieldUnavailable(t *testing.T) {
	env := newTestEnv(t, "alice", "bob", "dave")
	m := createMatch(t, env, "alice", 1)
	if _, _, err := env.Engine.ExpressInterest(env.Ctx, m.ID, "bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Decide(env.Ctx, m.ID, "bob", "alice", true); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.InitiateLock(env.Ctx, m.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.Repo.InsertBooking(env.Ctx, domain.Booking{
		ID: "b-1", UserID: "dave", FieldID: "field-7",
		StartsAt: "2026-09-01T19:00:00Z", EndsAt: "2026-09-01T21:00:00Z",
		Status: "confirmed",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.InitiateBooking(env.Ctx, m.ID, "alice", "field-7"); !errors.Is(err, engine.ErrFieldUnavailable) {
		t.Fatalf("expected field unavailable, got %v", err)
	}
	if _, err := env.Engine.InitiateBooking(env.Ctx, m.ID, "alice", "field-8"); err != nil {
		t.Fatalf("free field: %v", err)
	}
}

func TestConcurrentApprovalsNeverOverfill(t *testing.T) {
	const pending = 6
	const slots = 2
	users := []string{"alice"}
	for i := 0; i < pending; i++ {
		users = append(users, fmt.Sprintf("user-%d", i))
	}
	env := newTestEnv(t, users...)
	m := createMatch(t, env, "alice", slots)
	for _, u := range users[1:] {
		if _, _, err := env.Engine.ExpressInterest(env.Ctx, m.ID, u); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	errs := make([]error, pending)
	for i, u := range users[1:] {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			_, errs[i] = env.Engine.Decide(env.Ctx, m.ID, u, "alice", true)
		}(i, u)
	}
	wg.Wait()

	approved := 0
	var ce engine.CapacityExceededError
	var ise engine.InvalidStateError
	for _, err := range errs {
		switch {
		case err == nil:
			approved++
		case errors.As(err, &ce), errors.As(err, &ise):
		default:
			t.Fatalf("unexpected approval error: %v", err)
		}
	}
	if approved != slots {
		t.Fatalf("expected exactly %d approvals, got %d", slots, approved)
	}
	n, err := countApproved(env, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if n != slots {
		t.Fatalf("approved rows: %d", n)
	}
	got, _ := env.Engine.Repo.GetDraftMatch(env.Ctx, m.ID)
	if got.Status != domain.DraftFull {
		t.Fatalf("expected full, got %s", got.Status)
	}
}

func countApproved(env testEnv, matchID string) (int, error) {
	parts, err := env.Engine.Repo.ListParticipants(env.Ctx, matchID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range parts {
		if p.Status == domain.ParticipantApproved {
			n++
		}
	}
	return n, nil
}

func TestUpdateRejectsInvertedWindow(t *testing.T) {
	env := newTestEnv(t, "alice")
	m := createMatch(t, env, "alice", 2) // 18:00-20:00

	late := "2026-09-01T21:00:00Z"
	if _, err := env.Engine.UpdateDraftMatch(env.Ctx, m.ID, engine.DraftMatchPatch{StartsAt: &late}, "alice"); err == nil {
		t.Fatal("expected error moving starts_at past ends_at")
	}
	got, err := env.Engine.Repo.GetDraftMatch(env.Ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.StartsAt != m.StartsAt {
		t.Fatalf("window changed despite rejection: %s", got.StartsAt)
	}

	equal := "2026-09-01T18:00:00Z"
	if _, err := env.Engine.UpdateDraftMatch(env.Ctx, m.ID, engine.DraftMatchPatch{EndsAt: &equal}, "alice"); err == nil {
		t.Fatal("expected error collapsing the window to zero length")
	}

	// Moving both bounds together is a legal reschedule.
	starts, ends := "2026-09-02T18:00:00Z", "2026-09-02T19:30:00Z"
	got, err = env.Engine.UpdateDraftMatch(env.Ctx, m.ID, engine.DraftMatchPatch{StartsAt: &starts, EndsAt: &ends}, "alice")
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if got.StartsAt != starts || got.EndsAt != ends {
		t.Fatalf("reschedule not applied: %s - %s", got.StartsAt, got.EndsAt)
	}
}

func TestUpdateNotifiesParticipantsOnLogisticsChange(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	m := createMatch(t, env, "alice", 2)
	if _, _, err := env.Engine.ExpressInterest(env.Ctx, m.ID, "bob"); err != nil {
		t.Fatal(err)
	}
	loc := "North Hall"
	if _, err := env.Engine.UpdateDraftMatch(env.Ctx, m.ID, engine.DraftMatchPatch{LocationText: &loc}, "alice"); err != nil {
		t.Fatal(err)
	}
	direct, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{RecipientID: "bob", Type: "draft_match.updated"})
	if err != nil {
		t.Fatal(err)
	}
	if len(direct) != 1 {
		t.Fatalf("expected one direct update notification for bob, got %d", len(direct))
	}

	// Non-logistics change stays on the topic only.
	skill := "intermediate"
	if _, err := env.Engine.UpdateDraftMatch(env.Ctx, m.ID, engine.DraftMatchPatch{SkillLevel: &skill}, "alice"); err != nil {
		t.Fatal(err)
	}
	direct, err = env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{RecipientID: "bob", Type: "draft_match.updated"})
	if err != nil {
		t.Fatal(err)
	}
	if len(direct) != 1 {
		t.Fatalf("skill change should not notify, got %d notifications", len(direct))
	}
}
