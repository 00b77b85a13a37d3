package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/whisper/pairchat/internal/chat"
	"github.com/whisper/pairchat/internal/logger"
	"github.com/whisper/pairchat/internal/messaging"
	"github.com/whisper/pairchat/internal/metrics"
	"github.com/whisper/pairchat/internal/quota"
	"github.com/whisper/pairchat/internal/ratelimit"
	"github.com/whisper/pairchat/internal/store"
	"github.com/whisper/pairchat/internal/store/memory"
	"github.com/whisper/pairchat/internal/store/postgres"
	"github.com/whisper/pairchat/internal/ws"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.Build(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	logger.ReplaceGlobal(log)
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("pairchat stopped", zap.Error(err))
	}
}

func run(cfg config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Store ---
	var st store.Store
	switch cfg.StoreBackend {
	case "memory":
		st = memory.New()
	default:
		openCtx, openCancel := context.WithTimeout(ctx, 10*time.Second)
		pg, err := postgres.Open(openCtx, cfg.Postgres)
		openCancel()
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer pg.Close()
		st = pg
	}

	// --- Redis ---
	var (
		rdb     *redis.Client
		redisUp bool
	)
	if cfg.RateLimitBackend == "redis" || cfg.Quota.Channel != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			log.Warn("redis unavailable; premium checks will deny",
				zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		redisUp = err == nil
		defer rdb.Close()
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimitBackend == "redis" && redisUp {
		limiter = ratelimit.NewRedisLimiter(rdb, log.Named("ratelimit"))
	} else {
		mem := ratelimit.NewMemoryLimiter()
		go mem.StartCleanup(ctx, time.Minute, 10*time.Minute, log.Named("ratelimit"))
		limiter = mem
	}

	var (
		checker quota.SubscriptionChecker = quota.NeverSubscribed
		checks  []ws.HealthCheck
	)
	if rdb != nil {
		guarded := quota.NewGuardedChecker(quota.NewRedisMembership(rdb), cfg.Guard, log.Named("subscription"))
		checker = guarded
		checks = append(checks, ws.HealthCheck{Name: "subscription", State: guarded.State})
	}
	tracker := quota.NewTracker(st, checker, cfg.Quota, log.Named("quota"))

	// --- NATS (optional) ---
	var opts []chat.Option
	if cfg.NATSEnabled {
		nc, err := messaging.NewNATSClient(cfg.NATS, log)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Close()
		opts = append(opts, chat.WithEventSink(chat.NewNATSSink(nc)))
	}

	// --- Transport ---
	var auth ws.Authenticator = ws.QueryAuth{}
	if cfg.JWTSecret != "" {
		auth = ws.NewJWTAuth(cfg.JWTSecret)
	} else {
		log.Warn("WS_JWT_SECRET not set; trusting user_id query parameter")
	}

	server, err := ws.NewServer(cfg.Server, auth, log)
	if err != nil {
		return err
	}
	transport, err := ws.NewTransport(server.Connections(), cfg.NodeID, cfg.HistorySize)
	if err != nil {
		return err
	}

	svc := chat.NewService(cfg.Chat, st, limiter, tracker, transport, log, opts...)
	dispatcher := ws.NewDispatcher(svc, transport, cfg.CommandTimeout, log)
	server.SetHandlers(dispatcher.Dispatch, func(userID int64) {
		dctx, dcancel := context.WithTimeout(context.Background(), cfg.CommandTimeout)
		defer dcancel()
		_ = svc.OnDisconnect(dctx, userID)
	})

	go metrics.StartRefresher(ctx, st, cfg.StatsInterval, log.Named("metrics"))

	log.Info("pairchat starting",
		zap.String("listen_addr", cfg.Server.ListenAddr),
		zap.String("store", cfg.StoreBackend),
		zap.String("rate_limit", cfg.RateLimitBackend),
		zap.Int64("admin_id", cfg.Chat.ModeratorID),
		zap.Int("quota_limit", cfg.Quota.Limit),
		zap.Duration("quota_window", cfg.Quota.Window),
		zap.Bool("nats", cfg.NATSEnabled),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(ws.NewRouter(server, checks...)) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}
