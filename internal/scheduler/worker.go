package scheduler

import (
	"context"

	"github.com/hibiken/asynq"

	"offerboard_backend/internal/events"
	"offerboard_backend/internal/pipeline"
	"offerboard_backend/platform/config"
	"offerboard_backend/platform/logger"
)

// Runner executes pipeline runs on behalf of queued tasks.
type Runner interface {
	Run(ctx context.Context, req pipeline.RunRequest) (*pipeline.Report, error)
}

// Worker consumes refresh tasks and drives the metrics pipeline.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	runner Runner
	bus    events.Bus
	log    *logger.Logger
}

// NewWorker creates an asynq worker bound to the configured queue.
func NewWorker(cfg config.SchedulerConfig, runner Runner, bus events.Bus, log *logger.Logger) (*Worker, error) {
	opt, err := redisClientOpt(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}
	concurrency := cfg.GetAsynqConcurrency()
	if concurrency <= 0 {
		concurrency = 2
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
	})

	w := &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
		runner: runner,
		bus:    bus,
		log:    log,
	}
	w.mux.HandleFunc(TaskRefreshFull, w.handleRefreshFull)
	w.mux.HandleFunc(TaskRefreshOffer, w.handleRefreshOffer)
	return w, nil
}

// Run serves tasks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()
	return w.server.Run(w.mux)
}

func (w *Worker) handleRefreshFull(ctx context.Context, _ *asynq.Task) error {
	report, err := w.runner.Run(ctx, pipeline.RunRequest{Mode: pipeline.ModeFull})
	if err != nil {
		w.log.Error("full refresh failed", "error", err)
		return err
	}

	w.log.Info("full refresh complete",
		"generation", report.Generation,
		"stage_errors", len(report.StageErrors),
		"duration", report.Duration)

	w.bus.Publish(ctx, events.MetricsRefreshed{
		BaseEvent:  events.NewBaseEvent(),
		Generation: report.Generation,
		Mode:       string(pipeline.ModeFull),
	})
	return nil
}

func (w *Worker) handleRefreshOffer(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseRefreshOfferPayload(task)
	if err != nil {
		w.log.Error("refresh task: bad payload", "error", err)
		// Malformed payloads never succeed on retry.
		return nil
	}

	report, err := w.runner.Run(ctx, pipeline.RunRequest{
		Mode:  pipeline.ModeScoped,
		Scope: pipeline.Scope{Article: payload.Article, OperatorID: payload.OperatorID},
	})
	if err != nil {
		w.log.Error("scoped refresh failed", "article", payload.Article, "error", err)
		return err
	}

	w.bus.Publish(ctx, events.MetricsRefreshed{
		BaseEvent:  events.NewBaseEvent(),
		Generation: report.Generation,
		Mode:       string(pipeline.ModeScoped),
		Article:    payload.Article,
	})
	return nil
}
