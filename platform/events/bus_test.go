package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type pingEvent struct {
	BaseEvent
}

func (pingEvent) EventName() string { return "test.ping" }

func TestPublishSyncReachesNamedAndWildcardHandlers(t *testing.T) {
	bus := NewInMemoryBus(nil)
	var named, wildcard int
	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, e Event) error {
		named++
		return nil
	}))
	bus.Subscribe(AllEvents, HandlerFunc(func(ctx context.Context, e Event) error {
		wildcard++
		return nil
	}))
	bus.Subscribe("test.other", HandlerFunc(func(ctx context.Context, e Event) error {
		t.Fatalf("unrelated handler invoked")
		return nil
	}))

	if err := bus.PublishSync(context.Background(), pingEvent{BaseEvent: NewBaseEventAt(time.Unix(0, 0))}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if named != 1 || wildcard != 1 {
		t.Fatalf("expected one call each, got named=%d wildcard=%d", named, wildcard)
	}
}

func TestPublishSyncJoinsErrorsAndRecoversPanics(t *testing.T) {
	bus := NewInMemoryBus(nil)
	sentinel := errors.New("boom")
	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, e Event) error { return sentinel }))
	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, e Event) error { panic("bad handler") }))

	err := bus.PublishSync(context.Background(), pingEvent{})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected joined error to contain sentinel, got %v", err)
	}
}

func TestPublishRunsAsyncUntilWait(t *testing.T) {
	bus := NewInMemoryBus(nil)
	var calls atomic.Int32
	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, e Event) error {
		if ctx.Err() != nil {
			t.Errorf("handler context should not be cancelled")
		}
		calls.Add(1)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	bus.Publish(ctx, pingEvent{})
	cancel()
	bus.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected handler to run once, got %d", calls.Load())
	}
}
