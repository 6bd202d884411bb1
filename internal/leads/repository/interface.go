package repository

import (
	"context"
	"time"

	"leadsync_backend/internal/leads/domain"
)

// =====================================
// Segregated Interfaces (Interface Segregation Principle)
// =====================================

// LeadReader provides read-only access to lead data.
type LeadReader interface {
	Get(ctx context.Context, email string) (domain.Lead, error)
	Find(ctx context.Context, filter Filter) ([]domain.Lead, error)
}

// LeadWriter provides the conditional write operations every transition goes through.
type LeadWriter interface {
	// UpdateOne applies patch to the lead identified by filter.Email only if the
	// lead still matches filter. It reports whether a row was modified.
	UpdateOne(ctx context.Context, filter Filter, patch Patch) (bool, error)
	Insert(ctx context.Context, lead domain.Lead) error
	DeleteByEmail(ctx context.Context, email string) error
}

// Store is the full Lead Store capability.
type Store interface {
	LeadReader
	LeadWriter
}

// Transition is one applied status change, kept for audit.
type Transition struct {
	Email      string
	From       domain.Status
	To         domain.Status
	Source     string
	OccurredAt time.Time
}

// TransitionLog records and lists status history.
type TransitionLog interface {
	RecordTransition(ctx context.Context, t Transition) error
	ListTransitions(ctx context.Context, email string, limit int) ([]Transition, error)
}
