package roster

import (
	"context"
	"errors"
	"testing"

	"team-arena/internal/arena"
	"team-arena/internal/store"
)

type fakePokeHook struct{ pokes int }

func (f *fakePokeHook) UserPoked(context.Context) { f.pokes++ }

func newTestService(t *testing.T) (*Service, *store.Memory, *fakePokeHook) {
	t.Helper()
	m := store.NewMemory(nil)
	m.Seed(Collection,
		store.Record{"id": "me", "name": "Me", "points": 50, "energy": 10},
		store.Record{"id": "u2", "name": "Them", "points": 50, "energy": 10},
	)
	hook := &fakePokeHook{}
	s := NewService(m, "me", hook)
	s.SetClock(func() string { return "2026-08-30" })
	return s, m, hook
}

func TestEnsureExisting(t *testing.T) {
	s, _, _ := newTestService(t)
	p, err := s.Ensure(context.Background(), "Me")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if p.Points != 50 || p.Energy != 10 {
		t.Fatalf("existing user rewritten: %+v", p)
	}
}

func TestEnsureCreatesWithStartingBalances(t *testing.T) {
	m := store.NewMemory(nil)
	s := NewService(m, "new-user", nil)
	p, err := s.Ensure(context.Background(), "Newbie")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if p.Points != NewUserPoints || p.Energy != NewUserEnergy {
		t.Fatalf("starting balances = %+v", p)
	}
}

func TestEnsureDailyEnergy(t *testing.T) {
	s, m, _ := newTestService(t)
	ctx := context.Background()

	topped, err := s.EnsureDailyEnergy(ctx)
	if err != nil || !topped {
		t.Fatalf("first top-up: %t, %v", topped, err)
	}
	p, _ := s.Self(ctx)
	if p.Energy != 20 {
		t.Fatalf("energy = %d, want capped 20", p.Energy)
	}

	// same day: no second top-up
	topped, err = s.EnsureDailyEnergy(ctx)
	if err != nil || topped {
		t.Fatalf("same-day top-up ran again: %t, %v", topped, err)
	}

	// energy above cap is never reduced
	if _, err := m.Update(ctx, Collection, "me", store.Fields{"energy": 25, "last_energy_day": ""}); err != nil {
		t.Fatalf("prep: %v", err)
	}
	topped, err = s.EnsureDailyEnergy(ctx)
	if err != nil || topped {
		t.Fatalf("over-cap top-up: %t, %v", topped, err)
	}
	p, _ = s.Self(ctx)
	if p.Energy != 25 {
		t.Fatalf("energy reduced to %d", p.Energy)
	}
}

func TestPoke(t *testing.T) {
	s, m, hook := newTestService(t)
	ctx := context.Background()

	if err := s.Poke(ctx, "me"); !errors.Is(err, ErrSelfPoke) {
		t.Fatalf("self poke: %v", err)
	}
	if err := s.Poke(ctx, "u2"); err != nil {
		t.Fatalf("poke: %v", err)
	}

	me, _ := s.Self(ctx)
	them, _ := s.Get(ctx, "u2")
	if me.Points != 45 || them.Points != 51 {
		t.Fatalf("points = %d/%d, want 45/51", me.Points, them.Points)
	}
	if hook.pokes != 1 {
		t.Fatalf("hook pokes = %d", hook.pokes)
	}

	pokes, _ := m.List(ctx, "pokes", store.Query{})
	if len(pokes) != 1 || pokes[0].GetString("to") != "u2" {
		t.Fatalf("poke record = %v", pokes)
	}
}

func TestPokeInsufficientFunds(t *testing.T) {
	s, m, _ := newTestService(t)
	ctx := context.Background()
	if _, err := m.Update(ctx, Collection, "me", store.Fields{"points": 3}); err != nil {
		t.Fatalf("prep: %v", err)
	}
	if err := s.Poke(ctx, "u2"); !errors.Is(err, arena.ErrInsufficientFunds) {
		t.Fatalf("poke: %v, want ErrInsufficientFunds", err)
	}
}

func TestPokeRefundsOnGiftFailure(t *testing.T) {
	s, m, hook := newTestService(t)
	ctx := context.Background()

	m.FailNext("update", Collection, "u2", errors.New("network down"))
	if err := s.Poke(ctx, "u2"); err == nil {
		t.Fatalf("expected poke failure")
	}

	me, _ := s.Self(ctx)
	if me.Points != 50 {
		t.Fatalf("fee not refunded: %d", me.Points)
	}
	if hook.pokes != 0 {
		t.Fatalf("failed poke bumped quests")
	}
}
