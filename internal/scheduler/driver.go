package scheduler

import (
	"context"
	"errors"
	"time"

	"leadsync_backend/platform/logger"
)

const defaultPollInterval = time.Minute

// Ticker runs one full tick.
type Ticker interface {
	Tick(ctx context.Context, trigger string) (TickResult, error)
}

// PollDriver fires a tick immediately and then on every interval until ctx is done.
type PollDriver struct {
	ticker   Ticker
	interval time.Duration
	log      *logger.Logger
}

func NewPollDriver(ticker Ticker, interval time.Duration, log *logger.Logger) *PollDriver {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &PollDriver{ticker: ticker, interval: interval, log: log}
}

func (d *PollDriver) Run(ctx context.Context) {
	if d == nil || d.ticker == nil {
		return
	}

	d.tick(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		d.tick(ctx)
	}
}

func (d *PollDriver) tick(ctx context.Context) {
	_, err := d.ticker.Tick(ctx, TriggerTicker)
	switch {
	case err == nil:
	case errors.Is(err, ErrTickInProgress):
		d.log.Debug("previous tick still running, skipping")
	default:
		d.log.Warn("tick failed to start", "error", err)
	}
}
