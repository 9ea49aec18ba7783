package arena

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"team-arena/internal/obslog"
	"team-arena/internal/session"
	"team-arena/internal/store"
)

// QuestHook receives qualifying game outcomes. Implementations decide whether
// the outcome concerns the local user.
type QuestHook interface {
	GameWon(ctx context.Context, variant session.Variant, winnerID string)
}

// SessionArchiver persists finished sessions into long-term storage.
type SessionArchiver interface {
	SaveSession(ctx context.Context, sess *session.Session) error
}

// Coordinator owns the challenge lifecycle and move application. Every
// mutation re-reads the record and re-validates status immediately before
// writing; a session that moved on in the meantime is rejected as stale.
type Coordinator struct {
	store   store.Store
	settler *Settler
	quests  QuestHook
	archive SessionArchiver
}

func NewCoordinator(st store.Store, settler *Settler, quests QuestHook, archive SessionArchiver) *Coordinator {
	return &Coordinator{store: st, settler: settler, quests: quests, archive: archive}
}

// Initiate creates a pending challenge. Both participants must cover the
// stake up front, but no points move until settlement.
func (c *Coordinator) Initiate(ctx context.Context, v session.Variant, challengerID, opponentID string) (*session.Session, error) {
	if challengerID == opponentID {
		return nil, ErrSelfChallenge
	}
	stake := v.Stake()
	for _, userID := range []string{challengerID, opponentID} {
		points, err := c.points(ctx, userID)
		if err != nil {
			return nil, err
		}
		if points < stake {
			return nil, fmt.Errorf("user %s: %w", userID, ErrInsufficientFunds)
		}
	}

	sess := session.New(v, challengerID, opponentID)
	rec, err := c.store.Create(ctx, v.Collection(), sess.Fields())
	if err != nil {
		return nil, err
	}
	created, err := session.FromRecord(v, rec)
	if err != nil {
		return nil, err
	}
	obslog.L().Info("challenge_created",
		zap.String("session_id", created.ID),
		zap.String("variant", string(v)),
		zap.String("challenger", challengerID),
		zap.String("opponent", opponentID),
		zap.Int("stake", stake))
	return created, nil
}

// Accept moves a pending challenge into play. Only the opponent may accept.
// An opponent who can no longer cover the stake declines the session instead
// of leaving it pending.
func (c *Coordinator) Accept(ctx context.Context, v session.Variant, id, userID string) (*session.Session, error) {
	sess, err := c.fetch(ctx, v, id)
	if err != nil {
		return nil, err
	}
	if userID != sess.Opponent {
		if !sess.IsParticipant(userID) {
			return nil, ErrNotParticipant
		}
		return nil, fmt.Errorf("only the opponent can accept")
	}
	if sess.Status != session.StatusPending {
		return nil, ErrStaleSession
	}

	points, err := c.points(ctx, userID)
	if err != nil {
		return nil, err
	}
	if points < sess.Stake {
		sess.Status = session.StatusDeclined
		if _, uerr := c.store.Update(ctx, v.Collection(), id, sess.Fields()); uerr != nil {
			obslog.L().Error("challenge_decline_write_error", zap.String("session_id", id), zap.Error(uerr))
		}
		return nil, ErrInsufficientFunds
	}

	if v == session.VariantDuel {
		sess.Status = session.StatusAccepted
	} else {
		sess.Status = session.StatusOngoing
	}
	updated, err := c.write(ctx, sess)
	if err != nil {
		return nil, err
	}
	obslog.L().Info("challenge_accepted",
		zap.String("session_id", id),
		zap.String("variant", string(v)),
		zap.String("turn_holder", updated.TurnHolder()))
	return updated, nil
}

// Decline rejects a pending challenge. Opponent only.
func (c *Coordinator) Decline(ctx context.Context, v session.Variant, id, userID string) (*session.Session, error) {
	return c.closePending(ctx, v, id, userID, false)
}

// Cancel withdraws a pending challenge. Challenger only.
func (c *Coordinator) Cancel(ctx context.Context, v session.Variant, id, userID string) (*session.Session, error) {
	return c.closePending(ctx, v, id, userID, true)
}

func (c *Coordinator) closePending(ctx context.Context, v session.Variant, id, userID string, byChallenger bool) (*session.Session, error) {
	sess, err := c.fetch(ctx, v, id)
	if err != nil {
		return nil, err
	}
	if !sess.IsParticipant(userID) {
		return nil, ErrNotParticipant
	}
	if byChallenger && userID != sess.Challenger {
		return nil, fmt.Errorf("only the challenger can cancel")
	}
	if !byChallenger && userID != sess.Opponent {
		return nil, fmt.Errorf("only the opponent can decline")
	}
	if sess.Status != session.StatusPending {
		return nil, ErrStaleSession
	}

	if byChallenger {
		sess.Status = session.StatusCancelled
	} else {
		sess.Status = session.StatusDeclined
	}
	updated, err := c.write(ctx, sess)
	if err != nil {
		return nil, err
	}
	obslog.L().Info("challenge_closed",
		zap.String("session_id", id),
		zap.String("status", string(updated.Status)))
	return updated, nil
}

// Apply validates and applies one move. On a completing move the same call
// runs settlement, the quest hook and the archive; the status transition into
// completed is the single settlement trigger.
func (c *Coordinator) Apply(ctx context.Context, v session.Variant, id, userID, move string) (*session.Session, error) {
	sess, err := c.fetch(ctx, v, id)
	if err != nil {
		return nil, err
	}
	if !sess.IsParticipant(userID) {
		return nil, ErrNotParticipant
	}
	if sess.Status.Terminal() || sess.Status == session.StatusPending {
		return nil, ErrStaleSession
	}

	switch v {
	case session.VariantDuel:
		err = applyDuelChoice(sess, userID, move)
	case session.VariantChess:
		err = applyChessMove(sess, userID, move)
	case session.VariantTicTacToe:
		err = applyTTTMove(sess, userID, move)
	default:
		err = fmt.Errorf("unknown variant %q", v)
	}
	if err != nil {
		return nil, err
	}

	updated, err := c.write(ctx, sess)
	if err != nil {
		return nil, err
	}

	obslog.L().Info("move_applied",
		zap.String("session_id", id),
		zap.String("variant", string(v)),
		zap.String("user_id", userID),
		zap.String("status", string(updated.Status)),
		zap.String("winner", updated.Winner))

	if updated.Status == session.StatusCompleted {
		c.finish(ctx, updated)
	}
	return updated, nil
}

// finish fans out the terminal transition: settlement, quest progress and
// the long-term archive.
func (c *Coordinator) finish(ctx context.Context, sess *session.Session) {
	if c.settler != nil {
		c.settler.Settle(ctx, sess)
	}
	if c.quests != nil && sess.Winner != "" {
		c.quests.GameWon(ctx, sess.Variant, sess.Winner)
	}
	if c.archive != nil {
		if err := c.archive.SaveSession(ctx, sess); err != nil {
			obslog.L().Error("session_archive_error", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}
}

func (c *Coordinator) fetch(ctx context.Context, v session.Variant, id string) (*session.Session, error) {
	rec, err := c.store.GetOne(ctx, v.Collection(), id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRemoteDeletion
	}
	if err != nil {
		return nil, err
	}
	return session.FromRecord(v, rec)
}

func (c *Coordinator) write(ctx context.Context, sess *session.Session) (*session.Session, error) {
	rec, err := c.store.Update(ctx, sess.Variant.Collection(), sess.ID, sess.Fields())
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRemoteDeletion
	}
	if err != nil {
		return nil, err
	}
	return session.FromRecord(sess.Variant, rec)
}

func (c *Coordinator) points(ctx context.Context, userID string) (int, error) {
	rec, err := c.store.GetOne(ctx, "users", userID)
	if err != nil {
		return 0, fmt.Errorf("load user %s: %w", userID, err)
	}
	return rec.GetInt("points"), nil
}
