package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"leadsync_backend/internal/email"
	"leadsync_backend/platform/config"
	"leadsync_backend/platform/logger"
	"leadsync_backend/platform/metrics"
)

const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
)

// Notifier is the capability the funnel stages depend on.
type Notifier interface {
	Notify(ctx context.Context, kind Kind, to Recipient) error
}

// WhatsAppSender sends a pre-approved template message.
type WhatsAppSender interface {
	SendTemplate(ctx context.Context, to, templateKey string, params []string) error
}

// Dispatcher renders catalog entries and sends them over every available channel.
// Email is always attempted; WhatsApp only when the recipient has a contact number.
type Dispatcher struct {
	catalog    *Catalog
	email      email.Sender
	whatsapp   WhatsAppSender
	limiter    *rate.Limiter
	location   *time.Location
	reschedule string
	log        *logger.Logger
}

// NewDispatcher wires the channels. whatsapp may be nil.
func NewDispatcher(cfg config.NotificationConfig, catalog *Catalog, emailSender email.Sender, whatsapp WhatsAppSender, log *logger.Logger) (*Dispatcher, error) {
	loc, err := time.LoadLocation(cfg.GetDisplayTimezone())
	if err != nil {
		return nil, fmt.Errorf("notify: load timezone: %w", err)
	}
	if emailSender == nil {
		emailSender = email.NoopSender{}
	}

	limit := rate.Inf
	if r := cfg.GetNotifyRatePerSecond(); r > 0 {
		limit = rate.Limit(r)
	}

	return &Dispatcher{
		catalog:    catalog,
		email:      emailSender,
		whatsapp:   whatsapp,
		limiter:    rate.NewLimiter(limit, 1),
		location:   loc,
		reschedule: cfg.GetRescheduleLink(),
		log:        log,
	}, nil
}

// Notify renders kind for the recipient and sends it. Channel failures are
// logged, counted and joined into the returned error; they never retry.
func (d *Dispatcher) Notify(ctx context.Context, kind Kind, to Recipient) error {
	rendered, err := d.catalog.Render(kind, BuildPayload(to, d.location, d.reschedule))
	if err != nil {
		return err
	}

	var errs []error

	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	err = d.email.SendEmail(ctx, to.Email, rendered.Subject, rendered.HTML)
	d.record(to.Email, kind, ChannelEmail, err)
	if err != nil {
		errs = append(errs, fmt.Errorf("email %s: %w", kind, err))
	}

	if to.Contact != "" && d.whatsapp != nil && rendered.WhatsAppTemplate != "" {
		if err := d.limiter.Wait(ctx); err != nil {
			return errors.Join(append(errs, err)...)
		}
		err = d.whatsapp.SendTemplate(ctx, to.Contact, rendered.WhatsAppTemplate, rendered.WhatsAppParams)
		d.record(to.Email, kind, ChannelWhatsApp, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("whatsapp %s: %w", kind, err))
		}
	}

	return errors.Join(errs...)
}

func (d *Dispatcher) record(recipient string, kind Kind, channel string, err error) {
	metrics.RecordNotification(string(kind), channel, err)
	d.log.NotificationSent(recipient, string(kind), channel, err)
}

var _ Notifier = (*Dispatcher)(nil)
