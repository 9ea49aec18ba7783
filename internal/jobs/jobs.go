package jobs

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"team-arena/internal/arena"
	"team-arena/internal/obslog"
	"team-arena/internal/session"
	"team-arena/internal/store"
)

// EnergyService is the daily top-up dependency.
type EnergyService interface {
	EnsureDailyEnergy(ctx context.Context) (bool, error)
}

// Runner owns the background schedule: the settlement sweep and the daily
// energy top-up.
type Runner struct {
	store         store.Store
	energy        EnergyService
	sweepInterval time.Duration

	sched gocron.Scheduler
}

func NewRunner(st store.Store, energy EnergyService, sweepInterval time.Duration) *Runner {
	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Minute
	}
	return &Runner{store: st, energy: energy, sweepInterval: sweepInterval}
}

func (r *Runner) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	r.sched = sched

	if _, err := sched.NewJob(
		gocron.DurationJob(r.sweepInterval),
		gocron.NewTask(func() { r.SweepSettlements(ctx) }),
	); err != nil {
		return err
	}

	if r.energy != nil {
		if _, err := sched.NewJob(
			gocron.DurationJob(1*time.Hour),
			gocron.NewTask(func() {
				if _, err := r.energy.EnsureDailyEnergy(ctx); err != nil {
					obslog.L().Warn("energy_topup_error", zap.Error(err))
				}
			}),
		); err != nil {
			return err
		}
	}

	sched.Start()
	obslog.L().Info("jobs_started", zap.Duration("sweep_interval", r.sweepInterval))
	return nil
}

func (r *Runner) Stop() {
	if r.sched != nil {
		_ = r.sched.Shutdown()
	}
}

// SweepSettlements cross-checks completed sessions with a winner against the
// settlement ledger and logs anything unsettled or partial. Detection only;
// repairing the money trail is a human decision.
func (r *Runner) SweepSettlements(ctx context.Context) {
	ledger, err := r.store.List(ctx, arena.SettlementCollection, store.Query{})
	if err != nil {
		obslog.L().Warn("settlement_sweep_error", zap.Error(err))
		return
	}
	settled := make(map[string]string, len(ledger))
	for _, rec := range ledger {
		settled[rec.GetString("session")] = rec.GetString("state")
	}

	for _, v := range session.Variants {
		recs, err := r.store.List(ctx, v.Collection(), store.Query{
			Filter: store.Eq("status", string(session.StatusCompleted)),
		})
		if err != nil {
			obslog.L().Warn("settlement_sweep_error",
				zap.String("collection", v.Collection()),
				zap.Error(err))
			continue
		}
		for _, rec := range recs {
			if rec.GetString("winner") == "" {
				continue // draws settle nothing
			}
			state, ok := settled[rec.ID()]
			switch {
			case !ok:
				obslog.L().Error("settlement_missing",
					zap.String("collection", v.Collection()),
					zap.String("session_id", rec.ID()))
			case state != arena.SettlementOK:
				obslog.L().Error("settlement_incomplete",
					zap.String("collection", v.Collection()),
					zap.String("session_id", rec.ID()),
					zap.String("state", state))
			}
		}
	}
}
