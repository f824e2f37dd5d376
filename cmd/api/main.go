package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"offerboard_backend/internal/analytics"
	"offerboard_backend/internal/cache"
	"offerboard_backend/internal/changefeed"
	"offerboard_backend/internal/events"
	"offerboard_backend/internal/forecast"
	apphttp "offerboard_backend/internal/http"
	"offerboard_backend/internal/http/router"
	"offerboard_backend/internal/leadcost"
	"offerboard_backend/internal/offers"
	offerstore "offerboard_backend/internal/offers/store"
	"offerboard_backend/internal/pipeline"
	"offerboard_backend/internal/reconciler"
	rosterrepo "offerboard_backend/internal/roster/repository"
	"offerboard_backend/internal/scheduler"
	"offerboard_backend/internal/stock"
	"offerboard_backend/internal/zones"
	"offerboard_backend/platform/config"
	"offerboard_backend/platform/db"
	"offerboard_backend/platform/logger"
	"offerboard_backend/platform/retry"
	"offerboard_backend/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	rdb, err := newRedisClient(cfg)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}
	defer func() { _ = rdb.Close() }()

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	tuning := cfg.Tuning
	policy := retry.Policy{
		MaxRetries: uint64(tuning.MaxRetries),
		BaseDelay:  tuning.RetryBaseDelay,
		Retryable:  retry.IsTransient,
		Log:        log,
	}

	// ========================================================================
	// Pipeline Stages
	// ========================================================================

	analyticsClient := analytics.New(cfg, policy, tuning.RequestTimeout, log)
	stockAggregator := stock.New(cfg, tuning.ExcludedStockCategory, log)
	zoneCalculator := zones.New(analyticsClient, tuning.ZoneBatchSize, log)
	forecaster := forecast.New(analyticsClient, tuning, log)
	leadAggregator := leadcost.New(analyticsClient, log)
	leadAggregator.SetProgress(func(done, total int) {
		log.Debug("leadcost fetch progress", "done", done, "total", total)
	})

	boardStore := offerstore.New()
	orchestrator := pipeline.New(boardStore, stockAggregator, zoneCalculator, forecaster, leadAggregator, log)

	cacheManager := cache.NewManager(
		cache.NewRedisStore(rdb, cfg.CacheSessionKey),
		tuning.CacheVersion,
		tuning.CacheTTL,
		log,
	)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	schedulerClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = schedulerClient.Close() }()

	roster := rosterrepo.New(pool)
	offersModule := offers.NewModule(boardStore, roster, cacheManager, orchestrator, schedulerClient, val, log)

	if err := offersModule.Service().Load(ctx); err != nil {
		log.Error("initial board load failed", "error", err)
		panic("initial board load failed: " + err.Error())
	}

	// Reconciler consumes the assignment change feed pushed by the
	// external CRUD service.
	rec := reconciler.New(boardStore, orchestrator, eventBus, log)
	feed := changefeed.New(rdb, cfg.ChangeFeedChannel, rec, log)
	go feed.Run(ctx)

	// Embedded worker: queued refreshes run in-process so they share the
	// in-memory board store with the HTTP layer.
	worker, err := scheduler.NewWorker(cfg, orchestrator, eventBus, log)
	if err != nil {
		log.Error("failed to initialize worker", "error", err)
		panic("failed to initialize worker: " + err.Error())
	}
	go func() {
		if err := worker.Run(ctx); err != nil {
			log.Error("worker stopped", "error", err)
		}
	}()

	// Re-snapshot the cache after every completed refresh.
	eventBus.Subscribe(events.MetricsRefreshed{}.EventName(), events.HandlerFunc(func(ctx context.Context, _ events.Event) error {
		offersModule.Service().SnapshotToCache(ctx)
		return nil
	}))

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   pool,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			offersModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func newRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}
	if opt.TLSConfig != nil && cfg.GetRedisTLSInsecure() {
		opt.TLSConfig.InsecureSkipVerify = true
	}
	return redis.NewClient(opt), nil
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
