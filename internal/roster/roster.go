package roster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"team-arena/internal/arena"
	"team-arena/internal/obslog"
	"team-arena/internal/store"
)

// Collection is the participants collection.
const Collection = "users"

const (
	// PokeFee is what a poke costs the sender in points.
	PokeFee = 5
	// PokeGift is what the poked user receives.
	PokeGift = 1

	// NewUserPoints and NewUserEnergy are the starting balances.
	NewUserPoints = 50
	NewUserEnergy = 10

	// EnergyCap and EnergyTopUp shape the daily top-up: energy rises by
	// EnergyTopUp but never past EnergyCap, and never decreases.
	EnergyCap   = 20
	EnergyTopUp = 10
)

var ErrSelfPoke = errors.New("cannot poke yourself")

// PokeHook records a sent poke for quest progress.
type PokeHook interface {
	UserPoked(ctx context.Context)
}

// Participant is one user of the team arena.
type Participant struct {
	ID            string
	Name          string
	Points        int
	Energy        int
	IdeasProposed int
	LastEnergyDay string
}

func fromRecord(rec store.Record) Participant {
	return Participant{
		ID:            rec.ID(),
		Name:          rec.GetString("name"),
		Points:        rec.GetInt("points"),
		Energy:        rec.GetInt("energy"),
		IdeasProposed: rec.GetInt("stats_ideasProposed"),
		LastEnergyDay: rec.GetString("last_energy_day"),
	}
}

// Service wraps the users collection for the local participant.
type Service struct {
	store  store.Store
	userID string
	hook   PokeHook
	today  func() string
}

func NewService(st store.Store, userID string, hook PokeHook) *Service {
	return &Service{
		store:  st,
		userID: userID,
		hook:   hook,
		today:  func() string { return time.Now().Format("2006-01-02") },
	}
}

// SetClock overrides the day source, for tests.
func (s *Service) SetClock(today func() string) { s.today = today }

// Get loads any participant by id.
func (s *Service) Get(ctx context.Context, userID string) (Participant, error) {
	rec, err := s.store.GetOne(ctx, Collection, userID)
	if err != nil {
		return Participant{}, fmt.Errorf("load user %s: %w", userID, err)
	}
	return fromRecord(rec), nil
}

// Self loads the local participant.
func (s *Service) Self(ctx context.Context) (Participant, error) {
	return s.Get(ctx, s.userID)
}

// Ensure creates the local participant with starting balances when missing.
func (s *Service) Ensure(ctx context.Context, name string) (Participant, error) {
	rec, err := s.store.GetOne(ctx, Collection, s.userID)
	if err == nil {
		return fromRecord(rec), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return Participant{}, err
	}
	created, err := s.store.Create(ctx, Collection, store.Fields{
		"id":     s.userID,
		"name":   name,
		"points": NewUserPoints,
		"energy": NewUserEnergy,
	})
	if err != nil {
		return Participant{}, fmt.Errorf("create user: %w", err)
	}
	obslog.L().Info("participant_created", zap.String("user_id", s.userID))
	return fromRecord(created), nil
}

// EnsureDailyEnergy applies the once-per-day energy top-up. Returns whether a
// top-up was written.
func (s *Service) EnsureDailyEnergy(ctx context.Context) (bool, error) {
	p, err := s.Self(ctx)
	if err != nil {
		return false, err
	}
	today := s.today()
	if p.LastEnergyDay == today {
		return false, nil
	}
	next := p.Energy + EnergyTopUp
	if next > EnergyCap {
		next = EnergyCap
	}
	fields := store.Fields{"last_energy_day": today}
	if next > p.Energy {
		fields["energy"] = next
	}
	if _, err := s.store.Update(ctx, Collection, s.userID, fields); err != nil {
		return false, fmt.Errorf("energy top-up: %w", err)
	}
	obslog.L().Info("energy_topped_up",
		zap.String("user_id", s.userID),
		zap.Int("energy", next))
	return next > p.Energy, nil
}

// Poke sends a poke: the sender pays PokeFee points and the target receives
// PokeGift. The fee is taken first; a failed gift refunds the exact fee.
func (s *Service) Poke(ctx context.Context, targetID string) error {
	if targetID == s.userID {
		return ErrSelfPoke
	}
	p, err := s.Self(ctx)
	if err != nil {
		return err
	}
	if p.Points < PokeFee {
		return arena.ErrInsufficientFunds
	}

	if _, err := s.store.Update(ctx, Collection, s.userID, store.Fields{}.Dec("points", PokeFee)); err != nil {
		return fmt.Errorf("poke fee: %w", err)
	}
	if _, err := s.store.Update(ctx, Collection, targetID, store.Fields{}.Inc("points", PokeGift)); err != nil {
		if _, rerr := s.store.Update(ctx, Collection, s.userID, store.Fields{}.Inc("points", PokeFee)); rerr != nil {
			obslog.L().Error("poke_refund_error", zap.String("user_id", s.userID), zap.Error(rerr))
		}
		return fmt.Errorf("poke gift: %w", err)
	}

	if _, err := s.store.Create(ctx, "pokes", store.Fields{"from": s.userID, "to": targetID}); err != nil {
		obslog.L().Warn("poke_record_error", zap.String("to", targetID), zap.Error(err))
	}
	if s.hook != nil {
		s.hook.UserPoked(ctx)
	}
	obslog.L().Info("poke_sent", zap.String("from", s.userID), zap.String("to", targetID))
	return nil
}
