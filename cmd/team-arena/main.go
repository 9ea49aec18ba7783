package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"team-arena/internal/archive"
	"team-arena/internal/arena"
	"team-arena/internal/config"
	"team-arena/internal/jobs"
	"team-arena/internal/msgcat"
	"team-arena/internal/obslog"
	"team-arena/internal/quest"
	"team-arena/internal/rewards"
	"team-arena/internal/roster"
	"team-arena/internal/session"
	"team-arena/internal/store"
	"team-arena/internal/syncer"
	"team-arena/internal/wheel"
)

// collectionSchema declares the relations local store backends resolve.
var collectionSchema = store.Schema{
	quest.CollectionUserQuests:  {"quest": quest.CollectionQuests},
	rewards.CollectionPurchases: {"reward": rewards.CollectionRewards, "user": roster.Collection},
	"pokes":                     {"from": roster.Collection, "to": roster.Collection},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = obslog.L().Sync() }()

	st, closeStore, err := buildStore(cfg)
	if err != nil {
		obslog.L().Fatal("store_init_error", zap.Error(err))
	}
	defer closeStore()

	catalog, err := msgcat.New(cfg.MessageDir)
	if err != nil {
		obslog.L().Fatal("msgcat_init_error", zap.Error(err))
	}

	var repo *archive.Repository
	if cfg.DatabaseURL != "" {
		repo, err = archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			obslog.L().Fatal("archive_init_error", zap.Error(err))
		}
		defer func() { _ = repo.Close() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracker := quest.NewTracker(st, cfg.UserID)
	people := roster.NewService(st, cfg.UserID, tracker)
	if _, err := people.Ensure(ctx, os.Getenv("ARENA_USER_NAME")); err != nil {
		obslog.L().Fatal("participant_init_error", zap.Error(err))
	}

	settler := arena.NewSettler(st, repo)
	coordinator := arena.NewCoordinator(st, settler, tracker, repo)

	sync := syncer.New(st, cfg.UserID, cfg.ReconnectPollInterval)
	sync.OnRemoteDeletion(func(v session.Variant, sess *session.Session) {
		obslog.L().Warn("active_session_deleted",
			zap.String("variant", string(v)),
			zap.String("session_id", sess.ID))
	})
	if err := sync.Start(ctx); err != nil {
		obslog.L().Fatal("sync_start_error", zap.Error(err))
	}
	defer sync.Stop()

	var energy jobs.EnergyService
	if cfg.EnergyTopUpEnabled {
		energy = people
	}
	runner := jobs.NewRunner(st, energy, cfg.SettleSweepInterval)
	if err := runner.Start(ctx); err != nil {
		obslog.L().Fatal("jobs_start_error", zap.Error(err))
	}
	defer runner.Stop()

	obslog.L().Info("team_arena_started",
		zap.String("user_id", cfg.UserID),
		zap.String("store_backend", string(cfg.StoreBackend)))

	loop := &commandLoop{
		userID:      cfg.UserID,
		coordinator: coordinator,
		sync:        sync,
		tracker:     tracker,
		people:      people,
		wheel:       wheel.NewService(st, cfg.UserID, tracker),
		shop:        rewards.NewService(st, cfg.UserID),
		catalog:     catalog,
		out:         os.Stdout,
	}
	go loop.run(ctx, os.Stdin)

	<-ctx.Done()
	obslog.L().Info("team_arena_stopping")
}

func buildStore(cfg *config.AppConfig) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendRemote:
		remote := store.NewRemote(cfg.StoreBaseURL, cfg.StoreWSURL, cfg.StoreToken)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := remote.Connect(ctx); err != nil {
			obslog.L().Warn("store_feed_connect_error", zap.Error(err))
		}
		return remote, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = remote.Close(closeCtx)
		}, nil
	case config.BackendRedis:
		r, err := store.NewRedis(cfg.RedisURL, collectionSchema)
		if err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil
	default:
		return store.NewMemory(collectionSchema), func() {}, nil
	}
}
