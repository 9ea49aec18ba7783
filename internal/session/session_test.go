package session

import (
	"context"
	"testing"

	"team-arena/internal/store"
)

func TestVariantTable(t *testing.T) {
	cases := []struct {
		v          Variant
		collection string
		stake      int
	}{
		{VariantDuel, "duels", 10},
		{VariantChess, "chess_games", 25},
		{VariantTicTacToe, "tictactoe_games", 5},
	}
	for _, c := range cases {
		if got := c.v.Collection(); got != c.collection {
			t.Fatalf("%s collection = %s, want %s", c.v, got, c.collection)
		}
		if got := c.v.Stake(); got != c.stake {
			t.Fatalf("%s stake = %d, want %d", c.v, got, c.stake)
		}
		back, ok := VariantForCollection(c.collection)
		if !ok || back != c.v {
			t.Fatalf("VariantForCollection(%s) = %s, %t", c.collection, back, ok)
		}
	}
}

func TestNewInitialState(t *testing.T) {
	d := New(VariantDuel, "u1", "u2")
	if d.Status != StatusPending || d.Stake != 10 || d.Duel == nil {
		t.Fatalf("unexpected duel init: %+v", d)
	}
	c := New(VariantChess, "u1", "u2")
	if c.Chess == nil || c.Chess.FEN != StartFEN || c.Chess.Turn != "w" {
		t.Fatalf("unexpected chess init: %+v", c.Chess)
	}
	x := New(VariantTicTacToe, "u1", "u2")
	if x.TTT == nil || x.TTT.Turn != "x" {
		t.Fatalf("unexpected ttt init: %+v", x.TTT)
	}
	for _, cell := range x.TTT.Board {
		if cell != "" {
			t.Fatalf("board not empty: %v", x.TTT.Board)
		}
	}
}

func TestTurnHolder(t *testing.T) {
	c := New(VariantChess, "white", "black")
	c.Status = StatusOngoing
	if got := c.TurnHolder(); got != "white" {
		t.Fatalf("first turn = %s, want white", got)
	}
	c.Chess.Turn = "b"
	if got := c.TurnHolder(); got != "black" {
		t.Fatalf("turn = %s, want black", got)
	}
	c.Status = StatusCompleted
	if got := c.TurnHolder(); got != "" {
		t.Fatalf("terminal session holds no turn, got %s", got)
	}

	d := New(VariantDuel, "u1", "u2")
	d.Status = StatusAccepted
	if got := d.TurnHolder(); got != "" {
		t.Fatalf("duel has no turn order, got %s", got)
	}
}

func TestStatusSets(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusDeclined, StatusCancelled, StatusExpired}
	for _, s := range terminal {
		if !s.Terminal() || s.InProgress() {
			t.Fatalf("%s should be terminal only", s)
		}
	}
	inProgress := []Status{StatusAccepted, StatusChallengerChose, StatusOpponentChose, StatusOngoing}
	for _, s := range inProgress {
		if s.Terminal() || !s.InProgress() {
			t.Fatalf("%s should be in progress only", s)
		}
	}
	if StatusPending.Terminal() || StatusPending.InProgress() {
		t.Fatalf("pending is neither terminal nor in progress")
	}
}

// Round trip through a live store: encode, persist, decode, compare.
func TestCodecRoundTrip(t *testing.T) {
	m := store.NewMemory(nil)
	ctx := context.Background()

	chess := New(VariantChess, "u1", "u2")
	chess.Status = StatusOngoing
	chess.Chess.Turn = "b"
	chess.Chess.MovesUCI = []string{"e2e4", "e7e5"}
	chess.Chess.PGN = "1. e4 e5"

	ttt := New(VariantTicTacToe, "u1", "u2")
	ttt.Status = StatusCompleted
	ttt.Winner = "u1"
	ttt.TTT.Board = [9]string{"x", "o", "x", "", "o", "", "x", "", ""}
	ttt.TTT.Turn = "o"

	duel := New(VariantDuel, "u1", "u2")
	duel.Status = StatusChallengerChose
	duel.Duel.ChallengerChoice = "rock"

	for _, s := range []*Session{chess, ttt, duel} {
		rec, err := m.Create(ctx, s.Variant.Collection(), s.Fields())
		if err != nil {
			t.Fatalf("create %s: %v", s.Variant, err)
		}
		got, err := FromRecord(s.Variant, rec)
		if err != nil {
			t.Fatalf("decode %s: %v", s.Variant, err)
		}
		s.ID = got.ID
		s.Created = got.Created
		s.Updated = got.Updated
		assertSessionsEqual(t, s, got)
	}
}

func assertSessionsEqual(t *testing.T, want, got *Session) {
	t.Helper()
	if got.Variant != want.Variant || got.Challenger != want.Challenger ||
		got.Opponent != want.Opponent || got.Stake != want.Stake ||
		got.Status != want.Status || got.Winner != want.Winner {
		t.Fatalf("header mismatch:\n got %+v\nwant %+v", got, want)
	}
	switch want.Variant {
	case VariantDuel:
		if *got.Duel != *want.Duel {
			t.Fatalf("duel state mismatch: got %+v want %+v", got.Duel, want.Duel)
		}
	case VariantChess:
		if got.Chess.FEN != want.Chess.FEN || got.Chess.Turn != want.Chess.Turn ||
			got.Chess.PGN != want.Chess.PGN || len(got.Chess.MovesUCI) != len(want.Chess.MovesUCI) {
			t.Fatalf("chess state mismatch: got %+v want %+v", got.Chess, want.Chess)
		}
		for i := range want.Chess.MovesUCI {
			if got.Chess.MovesUCI[i] != want.Chess.MovesUCI[i] {
				t.Fatalf("moves mismatch at %d", i)
			}
		}
	case VariantTicTacToe:
		if got.TTT.Turn != want.TTT.Turn || got.TTT.Board != want.TTT.Board {
			t.Fatalf("ttt state mismatch: got %+v want %+v", got.TTT, want.TTT)
		}
	}
}

func TestFromRecordMissingParticipant(t *testing.T) {
	_, err := FromRecord(VariantDuel, store.Record{"id": "d1", "challenger": "u1", "status": "pending"})
	if err == nil {
		t.Fatalf("expected error for missing opponent")
	}
}
