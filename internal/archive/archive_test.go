package archive

import (
	"strings"
	"testing"

	"team-arena/internal/session"
)

func TestBuildPGN(t *testing.T) {
	s := session.New(session.VariantChess, "alice", "bob")
	s.Status = session.StatusCompleted
	s.Winner = "bob"
	s.Chess.PGN = "1. f3 e5 2. g4 Qh4#"

	pgn := buildPGN(s)
	for _, want := range []string{`[White "alice"]`, `[Black "bob"]`, `[Result "0-1"]`, "Qh4#", "0-1"} {
		if !strings.Contains(pgn, want) {
			t.Fatalf("pgn missing %q:\n%s", want, pgn)
		}
	}
}

func TestPGNResult(t *testing.T) {
	s := session.New(session.VariantChess, "w", "b")
	s.Status = session.StatusCompleted

	s.Winner = "w"
	if got := pgnResult(s); got != "1-0" {
		t.Fatalf("got %s", got)
	}
	s.Winner = "b"
	if got := pgnResult(s); got != "0-1" {
		t.Fatalf("got %s", got)
	}
	s.Winner = ""
	if got := pgnResult(s); got != "1/2-1/2" {
		t.Fatalf("got %s", got)
	}
	s.Status = session.StatusCancelled
	if got := pgnResult(s); got != "*" {
		t.Fatalf("got %s", got)
	}
}

func TestNilRepositoryIsNoop(t *testing.T) {
	var r *Repository
	if err := r.SaveSession(nil, nil); err != nil {
		t.Fatalf("nil save: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}
