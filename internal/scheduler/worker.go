package scheduler

import (
	"context"
	"errors"
	"fmt"

	"leadsync_backend/platform/apperr"
	"leadsync_backend/platform/config"
	"leadsync_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// LeadProcessor reconciles a single lead.
type LeadProcessor interface {
	ProcessLead(ctx context.Context, email string) (bool, error)
}

type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor LeadProcessor
	ticker    Ticker
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, processor LeadProcessor, ticker Ticker, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		processor: processor,
		ticker:    ticker,
		log:       log,
	}

	mux.HandleFunc(TaskLeadProcess, w.handleLeadProcess)
	mux.HandleFunc(TaskTick, w.handleTick)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	if err := w.server.Start(w.mux); err != nil {
		w.log.Error("scheduler worker failed to start", "error", err)
		return
	}
	<-ctx.Done()
	w.server.Shutdown()
}

func (w *Worker) handleLeadProcess(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseLeadProcessPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if payload.Email == "" {
		return fmt.Errorf("lead process task without email: %w", asynq.SkipRetry)
	}

	changed, err := w.processor.ProcessLead(ctx, payload.Email)
	if apperr.GetKind(err) == apperr.KindNotFound {
		w.log.Info("lead process skipped, unknown lead", "email", payload.Email, "reason", payload.Reason)
		return nil
	}
	if err != nil {
		return err
	}
	w.log.Info("lead processed", "email", payload.Email, "reason", payload.Reason, "changed", changed)
	return nil
}

func (w *Worker) handleTick(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseTickPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	_, err = w.ticker.Tick(ctx, payload.Trigger)
	if errors.Is(err, ErrTickInProgress) {
		w.log.Info("queued tick skipped, another tick is running")
		return nil
	}
	return err
}
