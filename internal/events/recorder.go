package events

import (
	"context"

	"leadsync_backend/internal/leads/repository"
	"leadsync_backend/platform/logger"
	"leadsync_backend/platform/metrics"
)

// TransitionRecorder persists every LeadStatusChanged into the audit log.
type TransitionRecorder struct {
	log    repository.TransitionLog
	logger *logger.Logger
}

// NewTransitionRecorder builds the handler. It does nothing useful until subscribed.
func NewTransitionRecorder(log repository.TransitionLog, l *logger.Logger) *TransitionRecorder {
	return &TransitionRecorder{log: log, logger: l}
}

// Register subscribes the recorder to bus.
func (r *TransitionRecorder) Register(bus Bus) {
	bus.Subscribe(LeadStatusChanged{}.EventName(), r)
}

// Handle implements Handler.
func (r *TransitionRecorder) Handle(ctx context.Context, event Event) error {
	e, ok := event.(LeadStatusChanged)
	if !ok {
		return nil
	}
	metrics.RecordTransition(e.To.String(), e.Source)
	r.logger.Transition(e.Email, e.From.String(), e.To.String(), e.Source)
	if r.log == nil {
		return nil
	}
	return r.log.RecordTransition(ctx, repository.Transition{
		Email:      e.Email,
		From:       e.From,
		To:         e.To,
		Source:     e.Source,
		OccurredAt: e.OccurredAt(),
	})
}
