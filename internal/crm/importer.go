package crm

import (
	"context"
	"errors"
	"fmt"

	"leadsync_backend/internal/leads/domain"
	"leadsync_backend/internal/leads/repository"
	"leadsync_backend/platform/apperr"
	"leadsync_backend/platform/clock"
	"leadsync_backend/platform/logger"
	"leadsync_backend/platform/metrics"
	"leadsync_backend/platform/phone"
)

const (
	importSource       = "crm_import"
	maxImportPages     = 500
	transitionLookback = 50
)

// ImportResult summarizes one CRM sync pass.
type ImportResult struct {
	Processed    int `json:"processed"`
	Inserted     int `json:"inserted"`
	Updated      int `json:"updated"`
	Reinserted   int `json:"reinserted"`
	Skipped      int `json:"skipped"`
	MissingEmail int `json:"missingEmail"`
	Failed       int `json:"failed"`
}

// Importer pulls contacts from the CRM and reconciles them into the lead store.
type Importer struct {
	client      Client
	store       repository.Store
	transitions repository.TransitionLog
	clock       clock.Clock
	log         *logger.Logger
}

// NewImporter wires the importer. transitions may be nil.
func NewImporter(client Client, store repository.Store, transitions repository.TransitionLog, clk clock.Clock, log *logger.Logger) *Importer {
	return &Importer{client: client, store: store, transitions: transitions, clock: clk, log: log}
}

// Sync walks every contact page and applies it to the store.
// A failing contact is counted and logged; a failing page aborts the pass.
func (i *Importer) Sync(ctx context.Context) (ImportResult, error) {
	var result ImportResult
	if i.client == nil {
		return result, apperr.Unavailable("crm.Sync", errors.New("crm client not configured"))
	}

	token := ""
	for page := 0; page < maxImportPages; page++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		batch, err := i.client.ListLeads(ctx, token)
		if err != nil {
			metrics.RecordIntegrationError("hubspot")
			return result, apperr.Unavailable("crm.ListLeads", err)
		}
		for _, contact := range batch.Contacts {
			result.Processed++
			i.importContact(ctx, contact, &result)
		}
		if batch.NextPageToken == "" {
			i.log.Info("crm import completed",
				"processed", result.Processed,
				"inserted", result.Inserted,
				"updated", result.Updated,
				"reinserted", result.Reinserted,
				"skipped", result.Skipped,
				"failed", result.Failed,
			)
			return result, nil
		}
		token = batch.NextPageToken
	}
	return result, fmt.Errorf("crm import: exceeded %d pages", maxImportPages)
}

func (i *Importer) importContact(ctx context.Context, contact Contact, result *ImportResult) {
	if contact.Email == "" {
		result.MissingEmail++
		return
	}

	status, err := domain.ParseCRMLabel(contact.StatusLabel)
	if err != nil {
		i.log.Warn("skipping contact with unknown status", "email", contact.Email, "status", contact.StatusLabel)
		result.Skipped++
		return
	}

	existing, err := i.store.Get(ctx, contact.Email)
	switch {
	case apperr.GetKind(err) == apperr.KindNotFound:
		i.insert(ctx, contact, status, result, false)
		return
	case err != nil:
		i.log.Error("crm import lookup failed", "email", contact.Email, "error", err)
		result.Failed++
		return
	}

	local := existing.Meeting.Status
	if local == status {
		result.Skipped++
		return
	}
	if !contact.UpdatedAt.IsZero() && !contact.UpdatedAt.After(existing.UpdatedAt) {
		// Our own propagation echoing back.
		result.Skipped++
		return
	}

	patch := repository.Patch{Status: &status}
	switch status {
	case domain.StatusNewLead:
		if !i.recreatedAfterLeaving(ctx, contact, existing) {
			i.log.Info("ignoring crm new_lead for a lead that progressed after the contact was created",
				"email", contact.Email, "status", local.String())
			result.Skipped++
			return
		}
		if err := i.store.DeleteByEmail(ctx, contact.Email); err != nil && apperr.GetKind(err) != apperr.KindNotFound {
			i.log.Error("crm import delete failed", "email", contact.Email, "error", err)
			result.Failed++
			return
		}
		i.insert(ctx, contact, status, result, true)
		return
	case domain.StatusMeetingBooked:
		if existing.Meeting.MeetingTime == nil {
			i.log.Warn("crm marks lead booked without a calendar meeting", "email", contact.Email)
			result.Skipped++
			return
		}
	case domain.StatusNoShow:
		// A booked lead is stamped by the no-show detector. Without a meeting
		// the detector never sees it, so the stamp is what lets a later
		// booking pass the rebook check.
		if !existing.Meeting.MeetingBooked {
			patch.NoShowTime = repository.SetTime(i.clock.Now())
		}
	}

	modified, err := i.store.UpdateOne(ctx,
		repository.Filter{Email: contact.Email, Statuses: []domain.Status{local}},
		patch,
	)
	if err != nil {
		i.log.Error("crm import update failed", "email", contact.Email, "error", err)
		result.Failed++
		return
	}
	if !modified {
		result.Skipped++
		return
	}
	result.Updated++
	i.recordTransition(ctx, contact.Email, local, status)
}

// recreatedAfterLeaving reports whether the CRM contact was created after the
// lead last left new_lead locally. An older contact still labelled new_lead
// is a propagation that never landed, not a reset.
func (i *Importer) recreatedAfterLeaving(ctx context.Context, contact Contact, existing domain.Lead) bool {
	if contact.CreatedAt.IsZero() {
		return false
	}
	left := existing.UpdatedAt
	if i.transitions != nil {
		history, err := i.transitions.ListTransitions(ctx, existing.Email, transitionLookback)
		if err != nil {
			i.log.Warn("failed to load transitions", "email", existing.Email, "error", err)
		}
		for _, t := range history {
			if t.From == domain.StatusNewLead {
				left = t.OccurredAt
				break
			}
		}
	}
	return contact.CreatedAt.After(left)
}

func (i *Importer) insert(ctx context.Context, contact Contact, status domain.Status, result *ImportResult, reinsert bool) {
	anchor := contact.CreatedAt
	if anchor.IsZero() {
		anchor = i.clock.Now()
	}
	lead := domain.NewLead(contact.Email, contact.FullName(), phone.NormalizeE164(contact.Phone), anchor)
	lead.CRMID = contact.ID
	// A booked label without a calendar meeting enters as new_lead; the next reconcile books it.
	if status != domain.StatusMeetingBooked {
		lead.Meeting.Status = status
	}
	if status == domain.StatusNoShow {
		now := i.clock.Now()
		lead.Meeting.NoShowTime = &now
	}

	if err := i.store.Insert(ctx, lead); err != nil {
		if apperr.GetKind(err) == apperr.KindConflict {
			result.Skipped++
			return
		}
		i.log.Error("crm import insert failed", "email", contact.Email, "error", err)
		result.Failed++
		return
	}
	if reinsert {
		result.Reinserted++
	} else {
		result.Inserted++
	}
	i.recordTransition(ctx, contact.Email, domain.StatusUnknown, lead.Meeting.Status)
}

func (i *Importer) recordTransition(ctx context.Context, email string, from, to domain.Status) {
	metrics.RecordTransition(to.String(), importSource)
	i.log.Transition(email, from.String(), to.String(), importSource)
	if i.transitions == nil {
		return
	}
	err := i.transitions.RecordTransition(ctx, repository.Transition{
		Email:      email,
		From:       from,
		To:         to,
		Source:     importSource,
		OccurredAt: i.clock.Now(),
	})
	if err != nil {
		i.log.Warn("failed to record transition", "email", email, "error", err)
	}
}
