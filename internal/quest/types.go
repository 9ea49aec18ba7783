package quest

import (
	"errors"

	"team-arena/internal/session"
	"team-arena/internal/store"
)

// Type identifies a quest objective.
type Type string

const (
	TypeAddOption    Type = "ADD_OPTION"
	TypeSpinRoulette Type = "SPIN_ROULETTE"
	TypeWinRoulette  Type = "WIN_ROULETTE"
	TypeWinDuel      Type = "WIN_DUEL"
	TypeWinChess     Type = "WIN_CHESS"
	TypeWinTicTacToe Type = "WIN_TICTACTOE"
	TypePokeUser     Type = "POKE_USER"
)

// typeForWin maps a game variant to its win-quest type.
func typeForWin(v session.Variant) (Type, bool) {
	switch v {
	case session.VariantDuel:
		return TypeWinDuel, true
	case session.VariantChess:
		return TypeWinChess, true
	case session.VariantTicTacToe:
		return TypeWinTicTacToe, true
	}
	return "", false
}

var (
	// ErrNotClaimable means the quest is not completed or already claimed.
	ErrNotClaimable = errors.New("quest reward not claimable")
)

// UserQuest is one quest assignment for a user on a given day, joined with
// its quest definition.
type UserQuest struct {
	ID           string
	QuestID      string
	Type         Type
	Title        string
	Target       int
	Progress     int
	RewardPoints int
	RewardEnergy int
	Completed    bool
	Claimed      bool
	Day          string
}

func fromRecord(rec store.Record) UserQuest {
	uq := UserQuest{
		ID:        rec.ID(),
		QuestID:   rec.GetString("quest"),
		Progress:  rec.GetInt("progress"),
		Completed: rec.GetBool("is_completed"),
		Claimed:   rec.GetBool("is_claimed"),
		Day:       rec.GetString("day_string"),
	}
	if q := rec.Expanded("quest"); q != nil {
		uq.Type = Type(q.GetString("type"))
		uq.Title = q.GetString("title")
		uq.Target = q.GetInt("target")
		uq.RewardPoints = q.GetInt("reward_points")
		uq.RewardEnergy = q.GetInt("reward_energy")
	}
	return uq
}
