package wheel

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"go.uber.org/zap"

	"team-arena/internal/obslog"
	"team-arena/internal/store"
)

const (
	CollectionOptions = "roulette_options"
	CollectionHistory = "roulette_history"

	// AddOptionCost is the energy price of proposing an idea.
	AddOptionCost = 1
	// SpinCost is the energy price of a spin.
	SpinCost = 5
	// MinOptions is the smallest pool a spin may draw from.
	MinOptions = 2
)

var (
	ErrInsufficientEnergy = errors.New("insufficient energy")
	ErrNotEnoughOptions   = errors.New("not enough options to spin")
	ErrEmptyOption        = errors.New("option text is empty")
)

// Hook records wheel activity for quest progress.
type Hook interface {
	OptionAdded(ctx context.Context)
	RouletteSpun(ctx context.Context)
	RouletteWon(ctx context.Context, winnerID string)
}

// Option is one idea on the wheel.
type Option struct {
	ID     string
	Text   string
	Author string
}

// Service manages the idea wheel: options proposed by participants and the
// spin that picks one. Rendering the wheel is the UI's problem.
type Service struct {
	store  store.Store
	userID string
	hook   Hook
	pick   func(n int) int
}

func NewService(st store.Store, userID string, hook Hook) *Service {
	return &Service{store: st, userID: userID, hook: hook, pick: rand.Intn}
}

// SetPicker overrides the spin's random pick, for tests.
func (s *Service) SetPicker(pick func(n int) int) { s.pick = pick }

// Options lists the current pool, oldest first.
func (s *Service) Options(ctx context.Context) ([]Option, error) {
	recs, err := s.store.List(ctx, CollectionOptions, store.Query{Sort: "created"})
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	out := make([]Option, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Option{
			ID:     rec.ID(),
			Text:   rec.GetString("text"),
			Author: rec.GetString("author"),
		})
	}
	return out, nil
}

// AddOption proposes an idea. The energy fee and the proposal stat are paid
// first; a failed create refunds them with the exact inverse.
func (s *Service) AddOption(ctx context.Context, text string) (Option, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Option{}, ErrEmptyOption
	}
	me, err := s.store.GetOne(ctx, "users", s.userID)
	if err != nil {
		return Option{}, fmt.Errorf("load user: %w", err)
	}
	if me.GetInt("energy") < AddOptionCost {
		return Option{}, ErrInsufficientEnergy
	}

	fee := store.Fields{}.Dec("energy", AddOptionCost).Inc("stats_ideasProposed", 1)
	if _, err := s.store.Update(ctx, "users", s.userID, fee); err != nil {
		return Option{}, fmt.Errorf("option fee: %w", err)
	}
	rec, err := s.store.Create(ctx, CollectionOptions, store.Fields{
		"text":   text,
		"author": s.userID,
	})
	if err != nil {
		refund := store.Fields{}.Inc("energy", AddOptionCost).Dec("stats_ideasProposed", 1)
		if _, rerr := s.store.Update(ctx, "users", s.userID, refund); rerr != nil {
			obslog.L().Error("option_refund_error", zap.String("user_id", s.userID), zap.Error(rerr))
		}
		return Option{}, fmt.Errorf("create option: %w", err)
	}

	if s.hook != nil {
		s.hook.OptionAdded(ctx)
	}
	obslog.L().Info("wheel_option_added", zap.String("user_id", s.userID), zap.String("option_id", rec.ID()))
	return Option{ID: rec.ID(), Text: text, Author: s.userID}, nil
}

// RemoveOption deletes an option the local user proposed.
func (s *Service) RemoveOption(ctx context.Context, optionID string) error {
	rec, err := s.store.GetOne(ctx, CollectionOptions, optionID)
	if err != nil {
		return err
	}
	if rec.GetString("author") != s.userID {
		return fmt.Errorf("option %s: not the author", optionID)
	}
	return s.store.Delete(ctx, CollectionOptions, optionID)
}

// Spin draws one option at random, charges the spin fee and appends a history
// record. The option's author is the wheel winner.
func (s *Service) Spin(ctx context.Context) (Option, error) {
	options, err := s.Options(ctx)
	if err != nil {
		return Option{}, err
	}
	if len(options) < MinOptions {
		return Option{}, ErrNotEnoughOptions
	}
	me, err := s.store.GetOne(ctx, "users", s.userID)
	if err != nil {
		return Option{}, fmt.Errorf("load user: %w", err)
	}
	if me.GetInt("energy") < SpinCost {
		return Option{}, ErrInsufficientEnergy
	}

	if _, err := s.store.Update(ctx, "users", s.userID, store.Fields{}.Dec("energy", SpinCost)); err != nil {
		return Option{}, fmt.Errorf("spin fee: %w", err)
	}

	won := options[s.pick(len(options))]
	if _, err := s.store.Create(ctx, CollectionHistory, store.Fields{
		"spinner": s.userID,
		"option":  won.ID,
		"text":    won.Text,
		"author":  won.Author,
	}); err != nil {
		obslog.L().Warn("wheel_history_error", zap.String("option_id", won.ID), zap.Error(err))
	}

	if s.hook != nil {
		s.hook.RouletteSpun(ctx)
		s.hook.RouletteWon(ctx, won.Author)
	}
	obslog.L().Info("wheel_spun",
		zap.String("spinner", s.userID),
		zap.String("won_option", won.ID),
		zap.String("won_author", won.Author))
	return won, nil
}
