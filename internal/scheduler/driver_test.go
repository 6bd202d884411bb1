package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"leadsync_backend/platform/logger"
)

type countingTicker struct {
	ticks  atomic.Int32
	cancel context.CancelFunc
}

func (c *countingTicker) Tick(_ context.Context, trigger string) (TickResult, error) {
	if c.ticks.Add(1) == 1 {
		c.cancel()
	}
	return TickResult{Trigger: trigger}, nil
}

func TestPollDriverTicksImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ticker := &countingTicker{cancel: cancel}

	done := make(chan struct{})
	go func() {
		NewPollDriver(ticker, time.Hour, logger.New("test")).Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("driver did not stop after cancellation")
	}
	if got := ticker.ticks.Load(); got != 1 {
		t.Fatalf("expected the first tick before the interval elapsed, got %d", got)
	}
}

func TestLeadProcessPayloadNormalizesEmail(t *testing.T) {
	task, err := NewLeadProcessTask(LeadProcessPayload{Email: "  Ann@Example.com ", Reason: "whatsapp"})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if task.Type() != TaskLeadProcess {
		t.Fatalf("unexpected task type %q", task.Type())
	}
	payload, err := ParseLeadProcessPayload(task)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if payload.Email != "ann@example.com" || payload.Reason != "whatsapp" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestTickPayloadDefaultsTrigger(t *testing.T) {
	payload, err := ParseTickPayload(asynq.NewTask(TaskTick, []byte(`{}`)))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if payload.Trigger != TriggerTask {
		t.Fatalf("expected task trigger, got %q", payload.Trigger)
	}
}
