package webhook

import (
	"context"
	"errors"

	"leadsync_backend/internal/events"
	"leadsync_backend/internal/leads/domain"
	"leadsync_backend/internal/leads/repository"
	"leadsync_backend/internal/scheduler"
	"leadsync_backend/platform/apperr"
	"leadsync_backend/platform/clock"
	"leadsync_backend/platform/logger"
	"leadsync_backend/platform/phone"
	"leadsync_backend/platform/sanitize"
)

const (
	reasonLeadForm        = "lead_form"
	reasonWhatsAppInbound = "whatsapp_inbound"
)

// LeadSubmission is a validated inbound lead.
type LeadSubmission struct {
	Email   string
	Name    string
	Contact string
}

// CaptureResponse is returned to the producer on success.
type CaptureResponse struct {
	Email   string `json:"email"`
	Created bool   `json:"created"`
	Status  string `json:"status"`
}

// Service captures inbound leads and routes inbound messages to their lead.
type Service struct {
	store    repository.Store
	enqueuer scheduler.LeadEnqueuer
	eventBus events.Bus
	clock    clock.Clock
	log      *logger.Logger
}

// NewService creates a new webhook service. A nil enqueuer leaves new leads
// to the next tick.
func NewService(store repository.Store, enqueuer scheduler.LeadEnqueuer, eventBus events.Bus, clk clock.Clock, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		enqueuer: enqueuer,
		eventBus: eventBus,
		clock:    clk,
		log:      log,
	}
}

// CaptureLead creates a new_lead, or refreshes the name and contact of a known one.
// The status of a known lead is never changed here.
func (s *Service) CaptureLead(ctx context.Context, sub LeadSubmission) (CaptureResponse, error) {
	email := domain.NormalizeEmail(sub.Email)
	sub.Name = sanitize.Name(sub.Name)
	contact := ""
	if sub.Contact != "" {
		contact = phone.NormalizeE164(sub.Contact)
	}

	existing, err := s.store.Get(ctx, email)
	switch {
	case err == nil:
		return s.refresh(ctx, existing, sub.Name, contact)
	case apperr.GetKind(err) != apperr.KindNotFound:
		return CaptureResponse{}, err
	}

	now := s.clock.Now()
	lead := domain.NewLead(email, sub.Name, contact, now)
	if err := s.store.Insert(ctx, lead); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			// Lost a race with a concurrent submission; the other one created it.
			existing, getErr := s.store.Get(ctx, email)
			if getErr != nil {
				return CaptureResponse{}, getErr
			}
			return s.refresh(ctx, existing, sub.Name, contact)
		}
		return CaptureResponse{}, err
	}

	s.log.Info("webhook: lead captured", "email", email)
	if s.eventBus != nil {
		s.eventBus.Publish(ctx, events.NewLeadStatusChanged(now, email, domain.StatusUnknown, domain.StatusNewLead, events.SourceWebhook))
	}
	s.enqueue(ctx, email, reasonLeadForm)

	return CaptureResponse{Email: email, Created: true, Status: domain.StatusNewLead.String()}, nil
}

func (s *Service) refresh(ctx context.Context, lead domain.Lead, name, contact string) (CaptureResponse, error) {
	patch := repository.Patch{}
	if name != "" && name != lead.Name {
		patch.Name = repository.Ptr(name)
	}
	if contact != "" && contact != lead.Contact {
		patch.Contact = repository.Ptr(contact)
	}
	if !patch.Empty() {
		if _, err := s.store.UpdateOne(ctx, repository.Filter{Email: lead.Email}, patch); err != nil {
			return CaptureResponse{}, err
		}
	}
	return CaptureResponse{Email: lead.Email, Created: false, Status: lead.Meeting.Status.String()}, nil
}

// ErrUnknownSender is returned when an inbound message matches no lead.
var ErrUnknownSender = errors.New("no lead for sender")

// HandleInboundMessage queues a reconciliation of the lead that wrote from waID.
func (s *Service) HandleInboundMessage(ctx context.Context, waID string) (string, error) {
	contact, ok := phone.Normalize("+" + waID)
	if !ok {
		return "", apperr.Validation("invalid sender number")
	}

	leads, err := s.store.Find(ctx, repository.Filter{Contact: contact})
	if err != nil {
		return "", err
	}
	if len(leads) == 0 {
		return "", ErrUnknownSender
	}
	if len(leads) > 1 {
		s.log.Warn("webhook: several leads share a contact number, using the first", "contact", contact, "count", len(leads))
	}

	email := leads[0].Email
	s.enqueue(ctx, email, reasonWhatsAppInbound)
	return email, nil
}

func (s *Service) enqueue(ctx context.Context, email, reason string) {
	if s.enqueuer == nil {
		return
	}
	if err := s.enqueuer.EnqueueLeadProcess(ctx, scheduler.LeadProcessPayload{Email: email, Reason: reason}); err != nil {
		s.log.Warn("webhook: enqueue lead process failed", "email", email, "error", err)
	}
}
