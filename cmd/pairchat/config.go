package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/whisper/pairchat/internal/chat"
	"github.com/whisper/pairchat/internal/logger"
	"github.com/whisper/pairchat/internal/messaging"
	"github.com/whisper/pairchat/internal/quota"
	"github.com/whisper/pairchat/internal/store/postgres"
	"github.com/whisper/pairchat/internal/ws"
)

type config struct {
	Log      logger.Config
	Server   ws.ServerConfig
	Chat     chat.Config
	Quota    quota.Config
	Guard    quota.GuardConfig
	Postgres postgres.Config
	NATS     messaging.NATSConfig

	StoreBackend     string // postgres | memory
	RateLimitBackend string // memory | redis
	RedisAddr        string
	NATSEnabled      bool
	JWTSecret        string
	NodeID           int64
	HistorySize      int
	CommandTimeout   time.Duration
	StatsInterval    time.Duration
}

// loadConfig reads the environment over the component defaults.
func loadConfig() (config, error) {
	cfg := config{
		Log:              logger.DefaultConfig(),
		Server:           ws.DefaultServerConfig(),
		Chat:             chat.DefaultConfig(),
		Quota:            quota.DefaultConfig(),
		Guard:            quota.DefaultGuardConfig(),
		Postgres:         postgres.DefaultConfig(),
		NATS:             messaging.DefaultNATSConfig(),
		StoreBackend:     "postgres",
		RateLimitBackend: "memory",
		RedisAddr:        "localhost:6379",
		HistorySize:      ws.DefaultHistorySize,
		CommandTimeout:   5 * time.Second,
		StatsInterval:    15 * time.Second,
	}

	admin := os.Getenv("ADMIN_ID")
	if admin == "" {
		return cfg, fmt.Errorf("ADMIN_ID is required")
	}
	id, err := strconv.ParseInt(admin, 10, 64)
	if err != nil {
		return cfg, fmt.Errorf("ADMIN_ID: %w", err)
	}
	cfg.Chat.ModeratorID = id

	setString(&cfg.Server.ListenAddr, "BOT_LISTEN_ADDR")
	setString(&cfg.Quota.Channel, "SUBSCRIPTION_CHANNEL")
	setString(&cfg.StoreBackend, "STORE_BACKEND")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RateLimitBackend, "RATE_LIMIT_BACKEND")
	setString(&cfg.JWTSecret, "WS_JWT_SECRET")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Encoding, "LOG_ENCODING")
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATS.URL = v
		cfg.NATSEnabled = true
	}

	for _, e := range []error{
		setInt(&cfg.Quota.Limit, "QUOTA_LIMIT"),
		setInt(&cfg.Server.WorkerPoolSize, "WORKER_POOL_SIZE"),
		setInt(&cfg.Server.MaxConnections, "MAX_CONNECTIONS"),
		setInt(&cfg.HistorySize, "MESSAGE_HISTORY_SIZE"),
		setInt64(&cfg.NodeID, "NODE_ID"),
		setDuration(&cfg.Quota.Window, "QUOTA_WINDOW"),
		setDuration(&cfg.Chat.NextRule.Cooldown, "NEXT_COOLDOWN"),
		setDuration(&cfg.Chat.ReportRule.Cooldown, "REPORT_COOLDOWN"),
		setDuration(&cfg.Guard.Timeout, "SUBSCRIPTION_TIMEOUT"),
		setDuration(&cfg.Server.ReadTimeout, "READ_TIMEOUT"),
		setDuration(&cfg.Server.WriteTimeout, "WRITE_TIMEOUT"),
	} {
		if e != nil {
			return cfg, e
		}
	}

	switch cfg.StoreBackend {
	case "postgres", "memory":
	default:
		return cfg, fmt.Errorf("STORE_BACKEND: unknown backend %q", cfg.StoreBackend)
	}
	switch cfg.RateLimitBackend {
	case "memory", "redis":
	default:
		return cfg, fmt.Errorf("RATE_LIMIT_BACKEND: unknown backend %q", cfg.RateLimitBackend)
	}
	return cfg, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fmt.Errorf("%s: invalid positive integer %q", key, v)
	}
	*dst = n
	return nil
}

func setInt64(dst *int64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
