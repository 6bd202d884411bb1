// Package reconciler applies calendar booking facts to the lead store.
package reconciler

import (
	"context"
	"errors"
	"time"

	"leadsync_backend/internal/events"
	"leadsync_backend/internal/leads/domain"
	"leadsync_backend/internal/leads/ports"
	"leadsync_backend/internal/leads/repository"
	"leadsync_backend/internal/notify"
	"leadsync_backend/platform/apperr"
	"leadsync_backend/platform/clock"
	"leadsync_backend/platform/logger"
)

// Result summarizes one reconcile pass.
type Result struct {
	Bookings       domain.Bookings
	CalendarFailed bool
	Booked         int
	NotBooked      int
	Failed         int
	Degraded       int
}

// Reconciler moves leads into meeting_booked or not_booked based on the calendar.
type Reconciler struct {
	store    repository.Store
	bookings ports.BookingSource
	crm      ports.StatusPropagator
	notifier notify.Notifier
	bus      events.Bus
	clock    clock.Clock
	timeout  time.Duration
	log      *logger.Logger
}

// Deps groups the collaborators of a Reconciler.
type Deps struct {
	Store       repository.Store
	Bookings    ports.BookingSource
	CRM         ports.StatusPropagator
	Notifier    notify.Notifier
	Bus         events.Bus
	Clock       clock.Clock
	CallTimeout time.Duration
	Log         *logger.Logger
}

// New builds a Reconciler. A nil CRM propagator disables propagation.
func New(d Deps) *Reconciler {
	crm := d.CRM
	if crm == nil {
		crm = ports.NoopPropagator{}
	}
	return &Reconciler{
		store:    d.Store,
		bookings: d.Bookings,
		crm:      crm,
		notifier: d.Notifier,
		bus:      d.Bus,
		clock:    d.Clock,
		timeout:  d.CallTimeout,
		log:      d.Log,
	}
}

// ReconcileBookings pulls the calendar and applies both passes. When the
// calendar cannot be read nothing is changed: the not-booked sweep would
// otherwise demote leads whose meeting simply was not visible this tick.
func (r *Reconciler) ReconcileBookings(ctx context.Context) (Result, error) {
	callCtx, cancel := r.callContext(ctx)
	bookings, err := r.bookings.UpcomingBookings(callCtx)
	cancel()
	if err != nil {
		r.log.Warn("calendar fetch failed, skipping reconcile", "error", err)
		return Result{Bookings: domain.Bookings{}, CalendarFailed: true}, apperr.Unavailable("reconciler.UpcomingBookings", err)
	}
	return r.Apply(ctx, bookings), nil
}

// Apply runs the booking pass and then the not-booked sweep against bookings.
func (r *Reconciler) Apply(ctx context.Context, bookings domain.Bookings) Result {
	res := Result{Bookings: bookings}

	for _, b := range bookings {
		if ctx.Err() != nil {
			return res
		}
		r.applyBooking(ctx, b, &res)
	}

	candidates, err := r.store.Find(ctx, repository.Filter{Statuses: []domain.Status{domain.StatusNewLead}})
	if err != nil {
		r.log.DatabaseError("find new leads", err)
		res.Failed++
		return res
	}
	for _, lead := range candidates {
		if ctx.Err() != nil {
			return res
		}
		if _, booked := bookings.Lookup(lead.Email); booked {
			continue
		}
		r.markNotBooked(ctx, lead, &res)
	}

	r.log.Info("reconcile completed",
		"bookings", len(bookings),
		"booked", res.Booked,
		"notBooked", res.NotBooked,
		"failed", res.Failed,
		"degraded", res.Degraded,
	)
	return res
}

// ProcessLead reconciles a single lead against a fresh calendar read. It
// reports whether the lead changed status.
func (r *Reconciler) ProcessLead(ctx context.Context, email string) (bool, error) {
	lead, err := r.store.Get(ctx, email)
	if err != nil {
		return false, err
	}

	callCtx, cancel := r.callContext(ctx)
	bookings, err := r.bookings.UpcomingBookings(callCtx)
	cancel()
	if err != nil {
		return false, apperr.Unavailable("reconciler.UpcomingBookings", err)
	}

	var res Result
	if b, ok := bookings.Lookup(lead.Email); ok {
		r.applyBooking(ctx, b, &res)
	} else if lead.Meeting.Status == domain.StatusNewLead {
		r.markNotBooked(ctx, lead, &res)
	}
	if res.Failed > 0 {
		return false, errors.New("reconcile lead failed")
	}
	return res.Booked+res.NotBooked > 0, nil
}

// BookedFilter is the eligibility predicate for a booking at meetingTime.
// A lead in the no-show branch is only rebooked by a meeting that starts
// after the recorded no-show.
func BookedFilter(email string, meetingTime time.Time) repository.Filter {
	return repository.Filter{
		Email: email,
		Or: []repository.Filter{
			{Statuses: domain.BookableStatuses()},
			{Statuses: domain.NoShowStatuses(), NoShowTimeBefore: &meetingTime},
		},
	}
}

// BookedPatch starts a fresh booked cycle.
func BookedPatch(b domain.Booking) repository.Patch {
	return repository.Patch{
		Status:              repository.Ptr(domain.StatusMeetingBooked),
		MeetingBooked:       repository.Ptr(true),
		MeetingTime:         repository.SetTime(b.MeetingTime),
		MeetingLink:         repository.Ptr(b.MeetingLink),
		CalendarEventID:     repository.Ptr(b.EventID),
		Reminder24hSent:     repository.Ptr(false),
		Reminder1hSent:      repository.Ptr(false),
		NoBookReminderStage: repository.Ptr(domain.StageNone),
		NoBookReminderTime:  repository.ClearTime(),
		NoShowReminderStage: repository.Ptr(domain.StageNone),
	}
}

func (r *Reconciler) applyBooking(ctx context.Context, b domain.Booking, res *Result) {
	prior, err := r.store.Get(ctx, b.Email)
	if apperr.GetKind(err) == apperr.KindNotFound {
		r.log.Debug("calendar guest is not a known lead", "email", b.Email)
		return
	}
	if err != nil {
		r.log.Error("load lead for booking failed", "email", b.Email, "error", err)
		res.Failed++
		return
	}

	modified, err := r.store.UpdateOne(ctx, BookedFilter(b.Email, b.MeetingTime), BookedPatch(b))
	if err != nil {
		r.log.Error("booking update failed", "email", b.Email, "error", err)
		res.Failed++
		return
	}
	if !modified {
		return
	}
	res.Booked++

	lead, err := r.store.Get(ctx, b.Email)
	if err != nil {
		r.log.Error("reload booked lead failed", "email", b.Email, "error", err)
		res.Degraded++
		return
	}
	if !r.sideEffects(ctx, lead, domain.StatusMeetingBooked, notify.KindBookingConfirmed) {
		res.Degraded++
	}

	event := events.NewLeadStatusChanged(r.clock.Now(), lead.Email, prior.Meeting.Status, domain.StatusMeetingBooked, events.SourceCalendar)
	meeting := b.MeetingTime
	event.MeetingTime = &meeting
	r.publish(ctx, event)
}

func (r *Reconciler) markNotBooked(ctx context.Context, lead domain.Lead, res *Result) {
	now := r.clock.Now()
	modified, err := r.store.UpdateOne(ctx,
		repository.Filter{Email: lead.Email, Statuses: []domain.Status{domain.StatusNewLead}},
		repository.Patch{
			Status:              repository.Ptr(domain.StatusNotBooked),
			MeetingBooked:       repository.Ptr(false),
			NoBookReminderStage: repository.Ptr(domain.StageNone),
			NoBookReminderTime:  repository.SetTime(now),
		},
	)
	if err != nil {
		r.log.Error("not-booked update failed", "email", lead.Email, "error", err)
		res.Failed++
		return
	}
	if !modified {
		return
	}
	res.NotBooked++

	lead.Meeting.Status = domain.StatusNotBooked
	if !r.sideEffects(ctx, lead, domain.StatusNotBooked, notify.KindMeetingNotBooked) {
		res.Degraded++
	}
	r.publish(ctx, events.NewLeadStatusChanged(now, lead.Email, domain.StatusNewLead, domain.StatusNotBooked, events.SourceCalendar))
}

// sideEffects propagates the status and then notifies. A failure of either
// is logged and does not stop the other.
func (r *Reconciler) sideEffects(ctx context.Context, lead domain.Lead, status domain.Status, kind notify.Kind) bool {
	ok := true

	crmCtx, cancel := r.callContext(ctx)
	if err := r.crm.Propagate(crmCtx, lead.Email, status); err != nil {
		ok = false
	}
	cancel()

	notifyCtx, cancel := r.callContext(ctx)
	if err := r.notifier.Notify(notifyCtx, kind, notify.RecipientFromLead(lead)); err != nil {
		ok = false
	}
	cancel()

	return ok
}

func (r *Reconciler) publish(ctx context.Context, event events.Event) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(ctx, event)
}

func (r *Reconciler) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}
