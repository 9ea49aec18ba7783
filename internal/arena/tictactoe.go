package arena

import (
	"strconv"
	"strings"

	"team-arena/internal/session"
)

// tttLines enumerates the eight winning cell triples.
var tttLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// applyTTTMove places the mover's mark on an empty cell. move is the cell
// index "0".."8".
func applyTTTMove(s *session.Session, moverID, move string) error {
	st := s.TTT
	mark := s.Mark(moverID)
	if mark == "" {
		return ErrNotParticipant
	}
	if mark != st.Turn {
		return ErrNotYourTurn
	}

	cell, err := strconv.Atoi(strings.TrimSpace(move))
	if err != nil || cell < 0 || cell >= len(st.Board) {
		return ErrIllegalMove
	}
	if st.Board[cell] != "" {
		return ErrIllegalMove
	}

	st.Board[cell] = mark
	if mark == "x" {
		st.Turn = "o"
	} else {
		st.Turn = "x"
	}

	switch tttOutcome(st.Board) {
	case "x":
		s.Status = session.StatusCompleted
		s.Winner = s.Challenger
	case "o":
		s.Status = session.StatusCompleted
		s.Winner = s.Opponent
	case "draw":
		s.Status = session.StatusCompleted
		s.Winner = ""
	}
	return nil
}

// tttOutcome inspects a board: "x"/"o" for a won line, "draw" for a full
// board, "" while play continues. Pure over the board.
func tttOutcome(board [9]string) string {
	for _, line := range tttLines {
		a, b, c := board[line[0]], board[line[1]], board[line[2]]
		if a != "" && a == b && b == c {
			return a
		}
	}
	for _, cell := range board {
		if cell == "" {
			return ""
		}
	}
	return "draw"
}
