package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	r, err := NewRedis("redis://"+mr.Addr(), nil)
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRedisCRUD(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()

	rec, err := r.Create(ctx, "duels", Fields{"status": "pending", "stake": 10, "challenger": "u1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ID() == "" {
		t.Fatalf("expected generated id")
	}

	got, err := r.GetOne(ctx, "duels", rec.ID())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.GetString("status") != "pending" || got.GetInt("stake") != 10 {
		t.Fatalf("round trip mismatch: %v", got)
	}

	upd, err := r.Update(ctx, "duels", rec.ID(), Fields{"status": "accepted"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if upd.GetString("status") != "accepted" {
		t.Fatalf("status = %s, want accepted", upd.GetString("status"))
	}

	if err := r.Delete(ctx, "duels", rec.ID()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := r.GetOne(ctx, "duels", rec.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRedisRelativePatch(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()

	rec, err := r.Create(ctx, "users", Fields{"points": 50})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := r.Update(ctx, "users", rec.ID(), Fields{}.Inc("points", 10))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.GetInt("points") != 60 {
		t.Fatalf("points = %d, want 60", got.GetInt("points"))
	}
}

func TestRedisListFilter(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()

	for _, status := range []string{"pending", "completed", "pending"} {
		if _, err := r.Create(ctx, "duels", Fields{"status": status}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	recs, err := r.List(ctx, "duels", Query{Filter: Eq("status", "pending")})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len = %d, want 2", len(recs))
	}
}

func TestRedisUpdateMissing(t *testing.T) {
	r := newTestRedis(t)
	if _, err := r.Update(context.Background(), "duels", "nope", Fields{"status": "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisEvents(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()

	events := make(chan Event, 4)
	unsub, err := r.Subscribe("duels", func(ev Event) { events <- ev })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	// the pub/sub loop is async; give it a moment to establish
	time.Sleep(50 * time.Millisecond)

	rec, err := r.Create(ctx, "duels", Fields{"status": "pending"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Action != ActionCreate || ev.Record.ID() != rec.ID() {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for create event")
	}
}
