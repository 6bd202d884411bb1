// Package ports defines the interfaces the lead lifecycle requires from
// external systems. These interfaces form the Anti-Corruption Layer (ACL),
// ensuring the lifecycle stages only know about the data they need,
// formatted the way they want.
package ports

import (
	"context"

	"leadsync_backend/internal/leads/domain"
)

// StatusPropagator mirrors a local status transition into the CRM.
// The implementation is provided by the composition root and wraps the CRM client.
type StatusPropagator interface {
	// Propagate sets the CRM status of the contact with email. A contact
	// missing from the CRM is not an error.
	Propagate(ctx context.Context, email string, status domain.Status) error
}

// NoopPropagator is used when no CRM is configured.
type NoopPropagator struct{}

func (NoopPropagator) Propagate(context.Context, string, domain.Status) error { return nil }
