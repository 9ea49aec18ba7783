package arena

import (
	"context"

	"go.uber.org/zap"

	"team-arena/internal/obslog"
	"team-arena/internal/session"
	"team-arena/internal/store"
)

// SettlementCollection holds one ledger record per settled session.
const SettlementCollection = "settlements"

// Ledger states.
const (
	SettlementOK      = "ok"      // both legs applied
	SettlementFailed  = "failed"  // credit failed, no points moved
	SettlementPartial = "partial" // credit applied, debit failed
)

// SettlementArchiver mirrors ledger entries into long-term storage.
type SettlementArchiver interface {
	SaveSettlement(ctx context.Context, sessionID string, variant session.Variant, winnerID, loserID string, stake int, state string) error
}

// Settler moves the stake after a completed session: credit the winner, then
// debit the loser, as two independent updates. A failed second leg is recorded
// as a partial settlement and never retried blindly; the sweep job surfaces it.
type Settler struct {
	store   store.Store
	archive SettlementArchiver
}

func NewSettler(st store.Store, archive SettlementArchiver) *Settler {
	return &Settler{store: st, archive: archive}
}

// Settle applies the transfer for a completed session. Draws move nothing and
// write no ledger entry. Settle never returns an error; failures are logged
// and recorded so the money trail stays inspectable.
func (s *Settler) Settle(ctx context.Context, sess *session.Session) {
	if sess.Status != session.StatusCompleted || sess.Winner == "" {
		return
	}
	winner := sess.Winner
	loser := sess.Other(winner)
	state := SettlementOK

	if _, err := s.store.Update(ctx, "users", winner, store.Fields{}.Inc("points", sess.Stake)); err != nil {
		state = SettlementFailed
		obslog.L().Error("settlement_credit_error",
			zap.String("session_id", sess.ID),
			zap.String("winner", winner),
			zap.Int("stake", sess.Stake),
			zap.Error(err))
	} else if _, err := s.store.Update(ctx, "users", loser, store.Fields{}.Dec("points", sess.Stake)); err != nil {
		state = SettlementPartial
		obslog.L().Error("settlement_debit_error",
			zap.String("session_id", sess.ID),
			zap.String("loser", loser),
			zap.Int("stake", sess.Stake),
			zap.Error(err))
	}

	s.record(ctx, sess, winner, loser, state)
}

func (s *Settler) record(ctx context.Context, sess *session.Session, winner, loser, state string) {
	_, err := s.store.Create(ctx, SettlementCollection, store.Fields{
		"session":    sess.ID,
		"collection": sess.Variant.Collection(),
		"winner":     winner,
		"loser":      loser,
		"stake":      sess.Stake,
		"state":      state,
	})
	if err != nil {
		obslog.L().Error("settlement_ledger_error", zap.String("session_id", sess.ID), zap.Error(err))
	}
	if s.archive != nil {
		if err := s.archive.SaveSettlement(ctx, sess.ID, sess.Variant, winner, loser, sess.Stake, state); err != nil {
			obslog.L().Error("settlement_archive_error", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}
	obslog.L().Info("settlement_done",
		zap.String("session_id", sess.ID),
		zap.String("state", state),
		zap.String("winner", winner),
		zap.Int("stake", sess.Stake))
}
