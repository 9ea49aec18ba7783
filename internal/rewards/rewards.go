package rewards

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"team-arena/internal/arena"
	"team-arena/internal/obslog"
	"team-arena/internal/store"
)

const (
	CollectionRewards   = "rewards"
	CollectionPurchases = "purchases"
)

// Reward is one item in the team shop.
type Reward struct {
	ID    string
	Title string
	Cost  int
}

// Service lists the shop and handles purchases for the local user.
type Service struct {
	store  store.Store
	userID string
}

func NewService(st store.Store, userID string) *Service {
	return &Service{store: st, userID: userID}
}

// List returns the catalog, cheapest first.
func (s *Service) List(ctx context.Context) ([]Reward, error) {
	recs, err := s.store.List(ctx, CollectionRewards, store.Query{Sort: "cost"})
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	out := make([]Reward, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Reward{
			ID:    rec.ID(),
			Title: rec.GetString("title"),
			Cost:  rec.GetInt("cost"),
		})
	}
	return out, nil
}

// Buy debits the reward's cost and appends a purchase record. The debit is
// taken first; a failed purchase write refunds the exact cost.
func (s *Service) Buy(ctx context.Context, rewardID string) error {
	rec, err := s.store.GetOne(ctx, CollectionRewards, rewardID)
	if err != nil {
		return fmt.Errorf("load reward %s: %w", rewardID, err)
	}
	cost := rec.GetInt("cost")

	me, err := s.store.GetOne(ctx, "users", s.userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if me.GetInt("points") < cost {
		return arena.ErrInsufficientFunds
	}

	if _, err := s.store.Update(ctx, "users", s.userID, store.Fields{}.Dec("points", cost)); err != nil {
		return fmt.Errorf("debit: %w", err)
	}
	if _, err := s.store.Create(ctx, CollectionPurchases, store.Fields{
		"user":   s.userID,
		"reward": rewardID,
		"cost":   cost,
	}); err != nil {
		if _, rerr := s.store.Update(ctx, "users", s.userID, store.Fields{}.Inc("points", cost)); rerr != nil {
			obslog.L().Error("purchase_refund_error", zap.String("user_id", s.userID), zap.Error(rerr))
		}
		return fmt.Errorf("record purchase: %w", err)
	}

	obslog.L().Info("reward_purchased",
		zap.String("user_id", s.userID),
		zap.String("reward_id", rewardID),
		zap.Int("cost", cost))
	return nil
}
