package arena

import "team-arena/internal/session"

// duelBeats maps each choice to the choice it defeats.
var duelBeats = map[string]string{
	"rock":     "scissors",
	"paper":    "rock",
	"scissors": "paper",
}

// applyDuelChoice records one hidden choice. Each participant chooses exactly
// once; the second choice resolves the duel in the same mutation. Matching
// choices complete as a draw.
func applyDuelChoice(s *session.Session, moverID, choice string) error {
	if _, ok := duelBeats[choice]; !ok {
		return ErrIllegalMove
	}
	st := s.Duel

	switch moverID {
	case s.Challenger:
		if st.ChallengerChoice != "" {
			return ErrIllegalMove
		}
		st.ChallengerChoice = choice
	case s.Opponent:
		if st.OpponentChoice != "" {
			return ErrIllegalMove
		}
		st.OpponentChoice = choice
	default:
		return ErrNotParticipant
	}

	if st.ChallengerChoice == "" || st.OpponentChoice == "" {
		if moverID == s.Challenger {
			s.Status = session.StatusChallengerChose
		} else {
			s.Status = session.StatusOpponentChose
		}
		return nil
	}

	s.Status = session.StatusCompleted
	switch {
	case st.ChallengerChoice == st.OpponentChoice:
		s.Winner = ""
	case duelBeats[st.ChallengerChoice] == st.OpponentChoice:
		s.Winner = s.Challenger
	default:
		s.Winner = s.Opponent
	}
	return nil
}
