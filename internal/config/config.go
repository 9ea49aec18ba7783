package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// StoreBackend selects which record-store implementation the client talks to.
type StoreBackend string

const (
	BackendRemote StoreBackend = "remote"
	BackendRedis  StoreBackend = "redis"
	BackendMemory StoreBackend = "memory"
)

type AppConfig struct {
	// Record store
	StoreBackend StoreBackend
	StoreBaseURL string // remote backend: HTTP API base
	StoreWSURL   string // remote backend: event feed
	StoreToken   string // remote backend: auth token, optional
	RedisURL     string // redis backend

	// Local identity: the participant this client acts for.
	UserID string

	// Optional Postgres archive for finished games and the settlement ledger.
	DatabaseURL string

	// Sync layer
	ReconnectPollInterval time.Duration

	// Background jobs
	SettleSweepInterval time.Duration
	EnergyTopUpEnabled  bool

	// Message catalog overrides
	MessageDir string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present (missing file is not an error).
func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := &AppConfig{
		StoreBackend:          BackendRemote,
		ReconnectPollInterval: 2500 * time.Millisecond,
		SettleSweepInterval:   10 * time.Minute,
		EnergyTopUpEnabled:    true,
	}

	if v := strings.ToLower(strings.TrimSpace(os.Getenv("STORE_BACKEND"))); v != "" {
		switch StoreBackend(v) {
		case BackendRemote, BackendRedis, BackendMemory:
			cfg.StoreBackend = StoreBackend(v)
		default:
			return nil, fmt.Errorf("unknown STORE_BACKEND: %q", v)
		}
	}

	cfg.StoreBaseURL = strings.TrimSpace(os.Getenv("STORE_BASE_URL"))
	cfg.StoreWSURL = strings.TrimSpace(os.Getenv("STORE_WS_URL"))
	cfg.StoreToken = strings.TrimSpace(os.Getenv("STORE_TOKEN"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.UserID = strings.TrimSpace(os.Getenv("ARENA_USER_ID"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MessageDir = strings.TrimSpace(os.Getenv("MESSAGE_DIR"))

	if v := strings.TrimSpace(os.Getenv("RECONNECT_POLL_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ReconnectPollInterval = time.Duration(n) * time.Millisecond
		}
	}
	if v := strings.TrimSpace(os.Getenv("SETTLE_SWEEP_INTERVAL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.SettleSweepInterval = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("ENERGY_TOPUP")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.EnergyTopUpEnabled = b
		}
	}

	if cfg.UserID == "" {
		return nil, errors.New("ARENA_USER_ID is required")
	}
	switch cfg.StoreBackend {
	case BackendRemote:
		if cfg.StoreBaseURL == "" {
			return nil, errors.New("STORE_BASE_URL is required for the remote backend")
		}
		if cfg.StoreWSURL == "" {
			return nil, errors.New("STORE_WS_URL is required for the remote backend")
		}
	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("REDIS_URL is required for the redis backend")
		}
	}

	return cfg, nil
}
