package session

import (
	"fmt"

	"team-arena/internal/store"
)

// FromRecord decodes a session record of the given variant. Unknown statuses
// are carried through verbatim; buckets treat anything terminal-unknown as
// history rather than failing the sync.
func FromRecord(v Variant, rec store.Record) (*Session, error) {
	if rec == nil {
		return nil, fmt.Errorf("nil record")
	}
	s := &Session{
		ID:      rec.ID(),
		Variant: v,
		Stake:   rec.GetInt("stake"),
		Status:  Status(rec.GetString("status")),
		Winner:  rec.GetString("winner"),
		Created: rec.GetTime("created"),
		Updated: rec.GetTime("updated"),
	}
	switch v {
	case VariantDuel:
		s.Challenger = rec.GetString("challenger")
		s.Opponent = rec.GetString("opponent")
		s.Duel = &DuelState{
			ChallengerChoice: rec.GetString("challenger_choice"),
			OpponentChoice:   rec.GetString("opponent_choice"),
		}
	case VariantChess:
		s.Challenger = rec.GetString("player_white")
		s.Opponent = rec.GetString("player_black")
		s.Chess = &ChessState{
			FEN:      rec.GetString("fen"),
			Turn:     rec.GetString("turn"),
			MovesUCI: rec.GetStringSlice("moves_uci"),
			PGN:      rec.GetString("pgn"),
		}
	case VariantTicTacToe:
		s.Challenger = rec.GetString("player_x")
		s.Opponent = rec.GetString("player_o")
		st := &TTTState{Turn: rec.GetString("turn")}
		cells := rec.GetStringSlice("board")
		for i := 0; i < len(st.Board) && i < len(cells); i++ {
			st.Board[i] = cells[i]
		}
		s.TTT = st
	default:
		return nil, fmt.Errorf("unknown variant %q", v)
	}
	if s.Challenger == "" || s.Opponent == "" {
		return nil, fmt.Errorf("session %s: missing participant", s.ID)
	}
	return s, nil
}

// Fields encodes the full mutable snapshot of the session. Timestamps and id
// stay store-owned and are never written back.
func (s *Session) Fields() store.Fields {
	f := store.Fields{
		"stake":  s.Stake,
		"status": string(s.Status),
		"winner": s.Winner,
	}
	switch s.Variant {
	case VariantDuel:
		f["challenger"] = s.Challenger
		f["opponent"] = s.Opponent
		if s.Duel != nil {
			f["challenger_choice"] = s.Duel.ChallengerChoice
			f["opponent_choice"] = s.Duel.OpponentChoice
		}
	case VariantChess:
		f["player_white"] = s.Challenger
		f["player_black"] = s.Opponent
		if s.Chess != nil {
			f["fen"] = s.Chess.FEN
			f["turn"] = s.Chess.Turn
			f["moves_uci"] = append([]string(nil), s.Chess.MovesUCI...)
			f["pgn"] = s.Chess.PGN
		}
	case VariantTicTacToe:
		f["player_x"] = s.Challenger
		f["player_o"] = s.Opponent
		if s.TTT != nil {
			f["board"] = append([]string(nil), s.TTT.Board[:]...)
			f["turn"] = s.TTT.Turn
		}
	}
	return f
}
