package quest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"team-arena/internal/obslog"
	"team-arena/internal/session"
	"team-arena/internal/store"
)

// Collections used by the tracker. user_quests carries a "quest" relation to
// the quests collection.
const (
	CollectionQuests     = "quests"
	CollectionUserQuests = "user_quests"
)

// TrackerSchema declares the relation the tracker expands; local store
// backends need it.
var TrackerSchema = store.Schema{
	CollectionUserQuests: {"quest": CollectionQuests},
}

// Tracker advances daily quest progress for one user. Assignment of the daily
// quest set happens elsewhere; the tracker only reads today's assignments and
// bumps them on qualifying actions.
type Tracker struct {
	store  store.Store
	userID string
	today  func() string
}

func NewTracker(st store.Store, userID string) *Tracker {
	return &Tracker{
		store:  st,
		userID: userID,
		today:  func() string { return time.Now().Format("2006-01-02") },
	}
}

// SetClock overrides the day source, for tests.
func (t *Tracker) SetClock(today func() string) { t.today = today }

// TodayQuests lists the user's quest assignments for the current day.
func (t *Tracker) TodayQuests(ctx context.Context) ([]UserQuest, error) {
	recs, err := t.store.List(ctx, CollectionUserQuests, store.Query{
		Filter: store.And(
			store.Eq("user", t.userID),
			store.Eq("day_string", t.today()),
		),
		Sort:   "created",
		Expand: []string{"quest"},
	})
	if err != nil {
		return nil, fmt.Errorf("list user quests: %w", err)
	}
	out := make([]UserQuest, 0, len(recs))
	for _, rec := range recs {
		out = append(out, fromRecord(rec))
	}
	return out, nil
}

// Bump advances today's incomplete quest of the given type by delta, marking
// it completed when the target is reached. Missing assignment is not an
// error; most days not every quest type is assigned.
func (t *Tracker) Bump(ctx context.Context, typ Type, delta int) error {
	quests, err := t.TodayQuests(ctx)
	if err != nil {
		return err
	}
	for _, uq := range quests {
		if uq.Type != typ || uq.Completed {
			continue
		}
		fields := store.Fields{}.Inc("progress", delta)
		if uq.Progress+delta >= uq.Target && uq.Target > 0 {
			fields["is_completed"] = true
		}
		if _, err := t.store.Update(ctx, CollectionUserQuests, uq.ID, fields); err != nil {
			return fmt.Errorf("bump quest %s: %w", uq.ID, err)
		}
		obslog.L().Info("quest_progress",
			zap.String("user_id", t.userID),
			zap.String("type", string(typ)),
			zap.Int("progress", uq.Progress+delta),
			zap.Int("target", uq.Target))
		return nil
	}
	return nil
}

// ClaimReward marks a completed quest claimed and credits its rewards. The
// claim flag is written first; a failed credit reverts it with the exact
// inverse so the reward stays claimable.
func (t *Tracker) ClaimReward(ctx context.Context, userQuestID string) (UserQuest, error) {
	rec, err := t.store.GetOne(ctx, CollectionUserQuests, userQuestID, "quest")
	if err != nil {
		return UserQuest{}, fmt.Errorf("load user quest: %w", err)
	}
	uq := fromRecord(rec)
	if !uq.Completed || uq.Claimed {
		return UserQuest{}, ErrNotClaimable
	}

	if _, err := t.store.Update(ctx, CollectionUserQuests, uq.ID, store.Fields{"is_claimed": true}); err != nil {
		return UserQuest{}, fmt.Errorf("mark claimed: %w", err)
	}

	credit := store.Fields{}
	if uq.RewardPoints > 0 {
		credit.Inc("points", uq.RewardPoints)
	}
	if uq.RewardEnergy > 0 {
		credit.Inc("energy", uq.RewardEnergy)
	}
	if len(credit) > 0 {
		if _, err := t.store.Update(ctx, "users", t.userID, credit); err != nil {
			if _, rerr := t.store.Update(ctx, CollectionUserQuests, uq.ID, store.Fields{"is_claimed": false}); rerr != nil {
				obslog.L().Error("quest_claim_revert_error",
					zap.String("user_quest_id", uq.ID),
					zap.Error(rerr))
			}
			return UserQuest{}, fmt.Errorf("credit reward: %w", err)
		}
	}

	uq.Claimed = true
	obslog.L().Info("quest_reward_claimed",
		zap.String("user_id", t.userID),
		zap.String("type", string(uq.Type)),
		zap.Int("reward_points", uq.RewardPoints),
		zap.Int("reward_energy", uq.RewardEnergy))
	return uq, nil
}

// GameWon implements the arena quest hook: only the local user's wins count.
func (t *Tracker) GameWon(ctx context.Context, v session.Variant, winnerID string) {
	if winnerID != t.userID {
		return
	}
	typ, ok := typeForWin(v)
	if !ok {
		return
	}
	if err := t.Bump(ctx, typ, 1); err != nil {
		obslog.L().Warn("quest_bump_error", zap.String("type", string(typ)), zap.Error(err))
	}
}

// OptionAdded records an idea-option contribution.
func (t *Tracker) OptionAdded(ctx context.Context) {
	t.bumpLogged(ctx, TypeAddOption)
}

// RouletteSpun records a wheel spin.
func (t *Tracker) RouletteSpun(ctx context.Context) {
	t.bumpLogged(ctx, TypeSpinRoulette)
}

// RouletteWon records a wheel win for the local user.
func (t *Tracker) RouletteWon(ctx context.Context, winnerID string) {
	if winnerID != t.userID {
		return
	}
	t.bumpLogged(ctx, TypeWinRoulette)
}

// UserPoked records a poke sent by the local user.
func (t *Tracker) UserPoked(ctx context.Context) {
	t.bumpLogged(ctx, TypePokeUser)
}

func (t *Tracker) bumpLogged(ctx context.Context, typ Type) {
	if err := t.Bump(ctx, typ, 1); err != nil {
		obslog.L().Warn("quest_bump_error", zap.String("type", string(typ)), zap.Error(err))
	}
}
