package arena

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"team-arena/internal/session"
)

// applyChessMove validates and applies one move, UCI first with SAN fallback,
// delegating legality and outcome detection to the rules engine.
func applyChessMove(s *session.Session, moverID, moveStr string) error {
	st := s.Chess
	mark := s.Mark(moverID)
	if mark == "" {
		return ErrNotParticipant
	}
	if mark != st.Turn {
		return ErrNotYourTurn
	}

	game := reconstructChess(st.MovesUCI)
	if game == nil {
		return fmt.Errorf("reconstruct game %s", s.ID)
	}
	pos := game.Position()
	rawMove := strings.TrimSpace(moveStr)
	if rawMove == "" {
		return ErrIllegalMove
	}

	var san, uci string
	if mv, derr := (nchess.UCINotation{}).Decode(pos, strings.ToLower(rawMove)); derr == nil {
		if err := game.Move(mv, nil); err != nil {
			return ErrIllegalMove
		}
		san = nchess.AlgebraicNotation{}.Encode(pos, mv)
		uci = strings.ToLower(rawMove)
	} else {
		if err := game.PushNotationMove(rawMove, nchess.AlgebraicNotation{}, nil); err != nil {
			return ErrIllegalMove
		}
		last := lastChessMove(game)
		if last == nil {
			return ErrIllegalMove
		}
		san = nchess.AlgebraicNotation{}.Encode(pos, last)
		uci = last.String()
	}

	plies := len(st.MovesUCI)
	st.MovesUCI = append(st.MovesUCI, uci)
	st.FEN = game.FEN()
	st.Turn = chessTurnMark(game.Position().Turn())
	st.PGN = appendSAN(st.PGN, plies, san)

	switch game.Outcome() {
	case nchess.WhiteWon:
		s.Status = session.StatusCompleted
		s.Winner = s.Challenger
	case nchess.BlackWon:
		s.Status = session.StatusCompleted
		s.Winner = s.Opponent
	case nchess.Draw:
		s.Status = session.StatusCompleted
		s.Winner = ""
	}
	return nil
}

// reconstructChess replays the UCI move list from the starting position.
func reconstructChess(movesUCI []string) *nchess.Game {
	game := nchess.NewGame()
	for _, mv := range movesUCI {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil
		}
	}
	return game
}

func lastChessMove(game *nchess.Game) *nchess.Move {
	moves := game.Moves()
	if len(moves) == 0 {
		return nil
	}
	return moves[len(moves)-1]
}

func chessTurnMark(c nchess.Color) string {
	if c == nchess.White {
		return "w"
	}
	return "b"
}

// appendSAN extends the movetext with one SAN token, numbering white's moves.
// plies is the move count before this ply.
func appendSAN(pgn string, plies int, san string) string {
	var b strings.Builder
	b.WriteString(pgn)
	if pgn != "" {
		b.WriteString(" ")
	}
	if plies%2 == 0 {
		fmt.Fprintf(&b, "%d. ", plies/2+1)
	}
	b.WriteString(san)
	return b.String()
}
