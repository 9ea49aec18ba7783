package arena

import (
	"errors"
	"testing"

	"team-arena/internal/session"
)

func TestDuelResolution(t *testing.T) {
	cases := []struct {
		challenger, opponent, winner string
	}{
		{"rock", "scissors", "u1"},
		{"scissors", "rock", "u2"},
		{"paper", "rock", "u1"},
		{"rock", "rock", ""},
	}
	for _, c := range cases {
		s := session.New(session.VariantDuel, "u1", "u2")
		s.Status = session.StatusAccepted

		if err := applyDuelChoice(s, "u1", c.challenger); err != nil {
			t.Fatalf("challenger choice: %v", err)
		}
		if s.Status != session.StatusChallengerChose {
			t.Fatalf("status = %s, want challenger_chose", s.Status)
		}
		if err := applyDuelChoice(s, "u2", c.opponent); err != nil {
			t.Fatalf("opponent choice: %v", err)
		}
		if s.Status != session.StatusCompleted {
			t.Fatalf("status = %s, want completed", s.Status)
		}
		if s.Winner != c.winner {
			t.Fatalf("%s vs %s: winner = %q, want %q", c.challenger, c.opponent, s.Winner, c.winner)
		}
	}
}

func TestDuelSingleChoice(t *testing.T) {
	s := session.New(session.VariantDuel, "u1", "u2")
	s.Status = session.StatusAccepted

	if err := applyDuelChoice(s, "u1", "rock"); err != nil {
		t.Fatalf("first choice: %v", err)
	}
	if err := applyDuelChoice(s, "u1", "paper"); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("second choice: %v, want ErrIllegalMove", err)
	}
	if s.Duel.ChallengerChoice != "rock" {
		t.Fatalf("rejected choice mutated state: %+v", s.Duel)
	}
}

func TestDuelInvalidChoice(t *testing.T) {
	s := session.New(session.VariantDuel, "u1", "u2")
	s.Status = session.StatusAccepted
	if err := applyDuelChoice(s, "u1", "lizard"); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("err = %v, want ErrIllegalMove", err)
	}
}

func TestTTTWinAndTurnOrder(t *testing.T) {
	s := session.New(session.VariantTicTacToe, "u1", "u2")
	s.Status = session.StatusOngoing

	// x: 0 4 8 wins the diagonal
	moves := []struct {
		user, cell string
	}{
		{"u1", "0"}, {"u2", "1"},
		{"u1", "4"}, {"u2", "2"},
		{"u1", "8"},
	}
	for _, mv := range moves {
		if err := applyTTTMove(s, mv.user, mv.cell); err != nil {
			t.Fatalf("move %s by %s: %v", mv.cell, mv.user, err)
		}
	}
	if s.Status != session.StatusCompleted || s.Winner != "u1" {
		t.Fatalf("status=%s winner=%s, want completed/u1", s.Status, s.Winner)
	}
}

func TestTTTViolations(t *testing.T) {
	s := session.New(session.VariantTicTacToe, "u1", "u2")
	s.Status = session.StatusOngoing

	if err := applyTTTMove(s, "u2", "0"); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("out of turn: %v, want ErrNotYourTurn", err)
	}
	if err := applyTTTMove(s, "u1", "0"); err != nil {
		t.Fatalf("move: %v", err)
	}
	if err := applyTTTMove(s, "u2", "0"); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("occupied cell: %v, want ErrIllegalMove", err)
	}
	if err := applyTTTMove(s, "u2", "9"); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("out of range: %v, want ErrIllegalMove", err)
	}
	if err := applyTTTMove(s, "u2", "x"); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("non-numeric: %v, want ErrIllegalMove", err)
	}
	if s.TTT.Board[0] != "x" || s.TTT.Turn != "o" {
		t.Fatalf("violations mutated state: %+v", s.TTT)
	}
}

func TestTTTDraw(t *testing.T) {
	// x o x / x o o / o x x leaves no line
	board := [9]string{"x", "o", "x", "x", "o", "o", "o", "x", "x"}
	if got := tttOutcome(board); got != "draw" {
		t.Fatalf("outcome = %q, want draw", got)
	}
	if got := tttOutcome([9]string{"o", "o", "o", "x", "x", "", "", "", ""}); got != "o" {
		t.Fatalf("outcome = %q, want o", got)
	}
	if got := tttOutcome([9]string{}); got != "" {
		t.Fatalf("outcome = %q, want ongoing", got)
	}
}

func TestChessFoolsMate(t *testing.T) {
	s := session.New(session.VariantChess, "white", "black")
	s.Status = session.StatusOngoing

	moves := []struct {
		user, uci string
	}{
		{"white", "f2f3"}, {"black", "e7e5"},
		{"white", "g2g4"}, {"black", "d8h4"},
	}
	for _, mv := range moves {
		if err := applyChessMove(s, mv.user, mv.uci); err != nil {
			t.Fatalf("move %s: %v", mv.uci, err)
		}
	}
	if s.Status != session.StatusCompleted || s.Winner != "black" {
		t.Fatalf("status=%s winner=%s, want completed/black", s.Status, s.Winner)
	}
	if len(s.Chess.MovesUCI) != 4 {
		t.Fatalf("moves = %v", s.Chess.MovesUCI)
	}
	if s.Chess.PGN == "" {
		t.Fatalf("expected movetext")
	}
}

func TestChessIllegalAndOutOfTurn(t *testing.T) {
	s := session.New(session.VariantChess, "white", "black")
	s.Status = session.StatusOngoing

	if err := applyChessMove(s, "black", "e7e5"); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("out of turn: %v, want ErrNotYourTurn", err)
	}
	if err := applyChessMove(s, "white", "e2e5"); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("illegal move: %v, want ErrIllegalMove", err)
	}
	if len(s.Chess.MovesUCI) != 0 || s.Chess.Turn != "w" {
		t.Fatalf("rejected move mutated state: %+v", s.Chess)
	}
}

func TestChessSANFallback(t *testing.T) {
	s := session.New(session.VariantChess, "white", "black")
	s.Status = session.StatusOngoing

	if err := applyChessMove(s, "white", "Nf3"); err != nil {
		t.Fatalf("SAN move: %v", err)
	}
	if got := s.Chess.MovesUCI[0]; got != "g1f3" {
		t.Fatalf("uci = %s, want g1f3", got)
	}
	if s.Chess.Turn != "b" {
		t.Fatalf("turn = %s, want b", s.Chess.Turn)
	}
}
