package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"

	"leadsync_backend/platform/apperr"
	"leadsync_backend/platform/logger"
)

type fakeProcessor struct {
	emails  []string
	changed bool
	err     error
}

func (f *fakeProcessor) ProcessLead(_ context.Context, email string) (bool, error) {
	f.emails = append(f.emails, email)
	return f.changed, f.err
}

type fakeTicker struct {
	triggers []string
	err      error
}

func (f *fakeTicker) Tick(_ context.Context, trigger string) (TickResult, error) {
	f.triggers = append(f.triggers, trigger)
	return TickResult{Trigger: trigger}, f.err
}

func newTestWorker(p LeadProcessor, t Ticker) *Worker {
	return &Worker{processor: p, ticker: t, log: logger.New("test")}
}

func TestHandleLeadProcess(t *testing.T) {
	proc := &fakeProcessor{changed: true}
	w := newTestWorker(proc, &fakeTicker{})

	task, _ := NewLeadProcessTask(LeadProcessPayload{Email: "ann@example.com"})
	if err := w.handleLeadProcess(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(proc.emails) != 1 || proc.emails[0] != "ann@example.com" {
		t.Fatalf("unexpected processed emails %v", proc.emails)
	}
}

func TestHandleLeadProcessUnknownLeadIsDone(t *testing.T) {
	proc := &fakeProcessor{err: apperr.NotFound("lead not found")}
	w := newTestWorker(proc, &fakeTicker{})

	task, _ := NewLeadProcessTask(LeadProcessPayload{Email: "ghost@example.com"})
	if err := w.handleLeadProcess(context.Background(), task); err != nil {
		t.Fatalf("unknown lead should not be retried, got %v", err)
	}
}

func TestHandleLeadProcessBadPayloadSkipsRetry(t *testing.T) {
	w := newTestWorker(&fakeProcessor{}, &fakeTicker{})

	for _, body := range []string{`not json`, `{"email":"  "}`} {
		err := w.handleLeadProcess(context.Background(), asynq.NewTask(TaskLeadProcess, []byte(body)))
		if !errors.Is(err, asynq.SkipRetry) {
			t.Fatalf("payload %q: expected SkipRetry, got %v", body, err)
		}
	}
}

func TestHandleLeadProcessTransientErrorRetries(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("calendar down")}
	w := newTestWorker(proc, &fakeTicker{})

	task, _ := NewLeadProcessTask(LeadProcessPayload{Email: "ann@example.com"})
	err := w.handleLeadProcess(context.Background(), task)
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected a retryable error, got %v", err)
	}
}

func TestHandleTick(t *testing.T) {
	ticker := &fakeTicker{}
	w := newTestWorker(&fakeProcessor{}, ticker)

	task, _ := NewTickTask(TickPayload{Trigger: TriggerAdmin})
	if err := w.handleTick(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ticker.triggers) != 1 || ticker.triggers[0] != TriggerAdmin {
		t.Fatalf("unexpected triggers %v", ticker.triggers)
	}
}

func TestHandleTickBusyIsDone(t *testing.T) {
	w := newTestWorker(&fakeProcessor{}, &fakeTicker{err: ErrTickInProgress})

	task, _ := NewTickTask(TickPayload{})
	if err := w.handleTick(context.Background(), task); err != nil {
		t.Fatalf("busy tick should not be retried, got %v", err)
	}
}
