package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"offerboard_backend/internal/scheduler"
	"offerboard_backend/platform/config"
	"offerboard_backend/platform/logger"
)

// The scheduler binary only enqueues periodic full refreshes; the API
// server's embedded worker executes them against its in-memory board.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "interval", cfg.FullRefreshInterval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	interval := cfg.FullRefreshInterval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("scheduler shutting down")
			return
		case <-ticker.C:
			if err := client.EnqueueFullRefresh(ctx); err != nil {
				log.Error("failed to enqueue full refresh", "error", err)
				continue
			}
			log.Info("full refresh enqueued")
		}
	}
}
