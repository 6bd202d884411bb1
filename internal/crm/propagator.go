package crm

import (
	"context"

	"leadsync_backend/internal/leads/domain"
	"leadsync_backend/platform/logger"
	"leadsync_backend/platform/metrics"
)

// Propagator pushes local status transitions to the CRM contact with the same email.
type Propagator struct {
	client Client
	log    *logger.Logger
}

// NewPropagator wraps a CRM client. A nil client makes every propagation a no-op.
func NewPropagator(client Client, log *logger.Logger) *Propagator {
	return &Propagator{client: client, log: log}
}

// Propagate looks the contact up by email and sets its status label.
// A missing contact is logged and not treated as an error.
func (p *Propagator) Propagate(ctx context.Context, email string, status domain.Status) error {
	if p == nil || p.client == nil {
		return nil
	}
	id, err := p.client.FindLeadByEmail(ctx, email)
	if err != nil {
		metrics.RecordIntegrationError("hubspot")
		p.log.IntegrationError("hubspot", "find_contact", email, err)
		return err
	}
	if id == "" {
		p.log.Warn("no CRM contact for lead", "email", email, "status", status.CRMLabel())
		return nil
	}
	if err := p.client.SetStatus(ctx, id, status); err != nil {
		metrics.RecordIntegrationError("hubspot")
		p.log.IntegrationError("hubspot", "set_status", email, err)
		return err
	}
	p.log.Debug("CRM status saved", "email", email, "status", status.CRMLabel())
	return nil
}
