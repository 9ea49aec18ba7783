package store

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryCreateUpdatePatch(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()

	rec, err := m.Create(ctx, "users", Fields{"name": "alice", "points": 50, "energy": 10})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ID() == "" {
		t.Fatalf("expected generated id")
	}
	if rec.GetString("created") == "" || rec.GetString("updated") == "" {
		t.Fatalf("expected timestamps")
	}

	got, err := m.Update(ctx, "users", rec.ID(), Fields{}.Inc("points", 10).Dec("energy", 5))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.GetInt("points") != 60 {
		t.Fatalf("points = %d, want 60", got.GetInt("points"))
	}
	if got.GetInt("energy") != 5 {
		t.Fatalf("energy = %d, want 5", got.GetInt("energy"))
	}
}

func TestMemoryUpdateMissing(t *testing.T) {
	m := NewMemory(nil)
	if _, err := m.Update(context.Background(), "users", "nope", Fields{"points": 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := m.GetOne(context.Background(), "users", "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryListFilterSort(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()
	m.Seed("duels",
		Record{"id": "a", "status": "pending", "stake": 10, "created": "2026-01-01T00:00:00Z"},
		Record{"id": "b", "status": "completed", "stake": 10, "created": "2026-01-03T00:00:00Z"},
		Record{"id": "c", "status": "pending", "stake": 25, "created": "2026-01-02T00:00:00Z"},
	)

	recs, err := m.List(ctx, "duels", Query{Filter: Eq("status", "pending"), Sort: "-created"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len = %d, want 2", len(recs))
	}
	if recs[0].ID() != "c" || recs[1].ID() != "a" {
		t.Fatalf("order = %s,%s, want c,a", recs[0].ID(), recs[1].ID())
	}
}

func TestMemoryExpand(t *testing.T) {
	schema := Schema{"user_quests": {"quest": "quests"}}
	m := NewMemory(schema)
	ctx := context.Background()
	m.Seed("quests", Record{"id": "q1", "type": "WIN_DUEL", "target": 1})
	m.Seed("user_quests", Record{"id": "uq1", "quest": "q1", "progress": 0})

	rec, err := m.GetOne(ctx, "user_quests", "uq1", "quest")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	q := rec.Expanded("quest")
	if q == nil || q.GetString("type") != "WIN_DUEL" {
		t.Fatalf("expand not resolved: %v", rec["expand"])
	}
}

func TestMemoryEventsAndSilence(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()

	var events []Event
	unsub, err := m.Subscribe("duels", func(ev Event) { events = append(events, ev) })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	rec, _ := m.Create(ctx, "duels", Fields{"status": "pending"})
	if len(events) != 1 || events[0].Action != ActionCreate {
		t.Fatalf("expected one create event, got %v", events)
	}

	m.Silence(true)
	if _, err := m.Update(ctx, "duels", rec.ID(), Fields{"status": "accepted"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("silenced update leaked an event")
	}
	m.Silence(false)

	if err := m.Delete(ctx, "duels", rec.ID()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(events) != 2 || events[1].Action != ActionDelete {
		t.Fatalf("expected delete event, got %v", events)
	}
	if events[1].Record.GetString("status") != "accepted" {
		t.Fatalf("delete event should carry the last record state")
	}
}

func TestMemoryFailNext(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()
	m.Seed("users", Record{"id": "u1", "points": 50})

	boom := errors.New("boom")
	m.FailNext("update", "users", "u1", boom)

	if _, err := m.Update(ctx, "users", "u1", Fields{}.Inc("points", 1)); !errors.Is(err, boom) {
		t.Fatalf("expected armed failure, got %v", err)
	}
	// one-shot: second attempt succeeds
	if _, err := m.Update(ctx, "users", "u1", Fields{}.Inc("points", 1)); err != nil {
		t.Fatalf("second update: %v", err)
	}
}
