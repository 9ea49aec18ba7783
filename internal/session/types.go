package session

import "time"

// Variant identifies one of the wagered game types.
type Variant string

const (
	VariantDuel      Variant = "duel"
	VariantChess     Variant = "chess"
	VariantTicTacToe Variant = "tictactoe"
)

// Variants lists every supported variant in a stable order.
var Variants = []Variant{VariantDuel, VariantChess, VariantTicTacToe}

// Collection is the record-store collection holding this variant's sessions.
func (v Variant) Collection() string {
	switch v {
	case VariantDuel:
		return "duels"
	case VariantChess:
		return "chess_games"
	case VariantTicTacToe:
		return "tictactoe_games"
	}
	return ""
}

// Stake is the fixed wager per participant.
func (v Variant) Stake() int {
	switch v {
	case VariantDuel:
		return 10
	case VariantChess:
		return 25
	case VariantTicTacToe:
		return 5
	}
	return 0
}

// VariantForCollection maps a collection name back to its variant.
func VariantForCollection(collection string) (Variant, bool) {
	for _, v := range Variants {
		if v.Collection() == collection {
			return v, true
		}
	}
	return "", false
}

// Status is the session lifecycle state.
type Status string

const (
	StatusPending         Status = "pending"
	StatusAccepted        Status = "accepted"
	StatusChallengerChose Status = "challenger_chose"
	StatusOpponentChose   Status = "opponent_chose"
	StatusOngoing         Status = "ongoing"
	StatusCompleted       Status = "completed"
	StatusDeclined        Status = "declined"
	StatusCancelled       Status = "cancelled"
	StatusExpired         Status = "expired"
)

// Terminal reports whether no further mutation is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusDeclined, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// InProgress reports whether the session is accepted and still being played.
func (s Status) InProgress() bool {
	switch s {
	case StatusAccepted, StatusChallengerChose, StatusOpponentChose, StatusOngoing:
		return true
	}
	return false
}

// StartFEN is the standard chess starting position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// DuelState holds the hidden simultaneous choices. Empty string = not chosen.
type DuelState struct {
	ChallengerChoice string
	OpponentChoice   string
}

// ChessState holds the chess payload. Turn is the side to move, "w" or "b".
type ChessState struct {
	FEN      string
	Turn     string
	MovesUCI []string
	PGN      string
}

// TTTState holds the tic-tac-toe payload. Board cells are "x", "o" or "".
// Turn is the mark to move, "x" or "o".
type TTTState struct {
	Board [9]string
	Turn  string
}

// Session is one wagered game between two participants. The challenger always
// plays white (chess) or X (tic-tac-toe).
type Session struct {
	ID         string
	Variant    Variant
	Challenger string
	Opponent   string
	Stake      int
	Status     Status
	Winner     string

	Duel  *DuelState
	Chess *ChessState
	TTT   *TTTState

	Created time.Time
	Updated time.Time
}

// New builds an un-persisted pending session with the variant's initial state.
func New(v Variant, challengerID, opponentID string) *Session {
	s := &Session{
		Variant:    v,
		Challenger: challengerID,
		Opponent:   opponentID,
		Stake:      v.Stake(),
		Status:     StatusPending,
	}
	switch v {
	case VariantDuel:
		s.Duel = &DuelState{}
	case VariantChess:
		s.Chess = &ChessState{FEN: StartFEN, Turn: "w"}
	case VariantTicTacToe:
		s.TTT = &TTTState{Turn: "x"}
	}
	return s
}

// IsParticipant reports whether userID plays in this session.
func (s *Session) IsParticipant(userID string) bool {
	return userID != "" && (userID == s.Challenger || userID == s.Opponent)
}

// Other returns the opposite participant's id, or "" for a non-participant.
func (s *Session) Other(userID string) string {
	switch userID {
	case s.Challenger:
		return s.Opponent
	case s.Opponent:
		return s.Challenger
	}
	return ""
}

// TurnHolder returns the user id whose move it is. Duels have no turn order,
// and sessions that are not in progress hold no turn.
func (s *Session) TurnHolder() string {
	if !s.Status.InProgress() {
		return ""
	}
	switch s.Variant {
	case VariantChess:
		if s.Chess == nil {
			return ""
		}
		if s.Chess.Turn == "w" {
			return s.Challenger
		}
		return s.Opponent
	case VariantTicTacToe:
		if s.TTT == nil {
			return ""
		}
		if s.TTT.Turn == "x" {
			return s.Challenger
		}
		return s.Opponent
	}
	return ""
}

// Mark returns the player's side mark for turn-ordered variants: "w"/"b" for
// chess, "x"/"o" for tic-tac-toe.
func (s *Session) Mark(userID string) string {
	switch s.Variant {
	case VariantChess:
		if userID == s.Challenger {
			return "w"
		}
		if userID == s.Opponent {
			return "b"
		}
	case VariantTicTacToe:
		if userID == s.Challenger {
			return "x"
		}
		if userID == s.Opponent {
			return "o"
		}
	}
	return ""
}
