package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"leadsync_backend/internal/events"
	"leadsync_backend/internal/leads/domain"
	"leadsync_backend/internal/leads/repository"
	"leadsync_backend/internal/notify"
	"leadsync_backend/platform/clock"
	"leadsync_backend/platform/logger"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type staticBookings struct {
	bookings domain.Bookings
	err      error
}

func (s *staticBookings) UpcomingBookings(context.Context) (domain.Bookings, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.bookings, nil
}

// journal records side effects in order across fakes.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

type fakeCRM struct {
	journal *journal
	store   repository.Store
	seen    map[string]domain.Status
	err     error
}

func (f *fakeCRM) Propagate(ctx context.Context, email string, status domain.Status) error {
	if f.store != nil {
		lead, _ := f.store.Get(ctx, email)
		if lead.Meeting.Status != status {
			f.journal.add("crm-before-store:" + email)
		}
	}
	f.journal.add("crm:" + status.String())
	f.seen[email] = status
	return f.err
}

type fakeNotifier struct {
	journal *journal
	sent    []notify.Kind
}

func (f *fakeNotifier) Notify(_ context.Context, kind notify.Kind, to notify.Recipient) error {
	f.journal.add("notify:" + string(kind))
	f.sent = append(f.sent, kind)
	return nil
}

type captureBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *captureBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *captureBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *captureBus) Subscribe(string, events.Handler) {}

type fixture struct {
	store    *repository.MemoryStore
	bookings *staticBookings
	crm      *fakeCRM
	notifier *fakeNotifier
	bus      *captureBus
	journal  *journal
	rec      *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFixed(now)
	store := repository.NewMemoryStore(clk)
	j := &journal{}
	f := &fixture{
		store:    store,
		bookings: &staticBookings{bookings: domain.Bookings{}},
		crm:      &fakeCRM{journal: j, store: store, seen: map[string]domain.Status{}},
		notifier: &fakeNotifier{journal: j},
		bus:      &captureBus{},
		journal:  j,
	}
	f.rec = New(Deps{
		Store:       store,
		Bookings:    f.bookings,
		CRM:         f.crm,
		Notifier:    f.notifier,
		Bus:         f.bus,
		Clock:       clk,
		CallTimeout: time.Second,
		Log:         logger.New("test"),
	})
	return f
}

func (f *fixture) insert(t *testing.T, lead domain.Lead) {
	t.Helper()
	if err := f.store.Insert(context.Background(), lead); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func (f *fixture) get(t *testing.T, email string) domain.Lead {
	t.Helper()
	lead, err := f.store.Get(context.Background(), email)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return lead
}

func (f *fixture) book(email string, at time.Time) {
	f.bookings.bookings.Add(domain.Booking{Email: email, MeetingTime: at, MeetingLink: "https://meet/" + email, EventID: "ev-" + email})
}

func TestNewLeadWithoutEventBecomesNotBooked(t *testing.T) {
	f := newFixture(t)
	f.insert(t, domain.NewLead("ann@example.com", "Ann", "", now.Add(-time.Hour)))

	if _, err := f.rec.ReconcileBookings(context.Background()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	lead := f.get(t, "ann@example.com")
	m := lead.Meeting
	if m.Status != domain.StatusNotBooked || m.MeetingBooked || m.NoBookReminderStage != 0 {
		t.Fatalf("unexpected meeting details %+v", m)
	}
	if m.NoBookReminderTime == nil || !m.NoBookReminderTime.Equal(now) {
		t.Fatalf("no-book clock should be anchored at now, got %v", m.NoBookReminderTime)
	}
	if f.crm.seen["ann@example.com"] != domain.StatusNotBooked {
		t.Fatalf("expected CRM not_booked")
	}

	if _, err := f.rec.ReconcileBookings(context.Background()); err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0] != notify.KindMeetingNotBooked {
		t.Fatalf("expected exactly one not-booked notification, got %v", f.notifier.sent)
	}
}

func TestBookingTransitionsAndResetsCycle(t *testing.T) {
	f := newFixture(t)
	lead := domain.NewLead("ann@example.com", "Ann", "+14155552671", now.Add(-100*time.Hour))
	lead.Meeting.Status = domain.StatusNotBookedFirstReminderSent
	lead.Meeting.NoBookReminderStage = domain.StageFirst
	lead.Meeting.Reminder24hSent = true
	lead.Meeting.Reminder1hSent = true
	f.insert(t, lead)

	meeting := now.Add(48 * time.Hour)
	f.book("ann@example.com", meeting)

	res, err := f.rec.ReconcileBookings(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.Booked != 1 {
		t.Fatalf("expected one booking, got %+v", res)
	}

	m := f.get(t, "ann@example.com").Meeting
	if m.Status != domain.StatusMeetingBooked || !m.MeetingBooked {
		t.Fatalf("expected booked lead, got %+v", m)
	}
	if m.MeetingTime == nil || !m.MeetingTime.Equal(meeting) || m.MeetingLink != "https://meet/ann@example.com" || m.CalendarEventID != "ev-ann@example.com" {
		t.Fatalf("meeting facts not copied: %+v", m)
	}
	if m.Reminder24hSent || m.Reminder1hSent || m.NoBookReminderStage != 0 || m.NoBookReminderTime != nil || m.NoShowReminderStage != 0 {
		t.Fatalf("booking must reset the cycle, got %+v", m)
	}

	want := []string{"crm:meeting_booked", "notify:booking_confirmed"}
	if len(f.journal.entries) != len(want) {
		t.Fatalf("unexpected side effects %v", f.journal.entries)
	}
	for i := range want {
		if f.journal.entries[i] != want[i] {
			t.Fatalf("side effects out of order: %v", f.journal.entries)
		}
	}

	if len(f.bus.events) != 1 {
		t.Fatalf("expected one event, got %d", len(f.bus.events))
	}
	changed := f.bus.events[0].(events.LeadStatusChanged)
	if changed.From != domain.StatusNotBookedFirstReminderSent || changed.To != domain.StatusMeetingBooked {
		t.Fatalf("unexpected event %+v", changed)
	}

	// A repeated pull of the same calendar is a no-op.
	if _, err := f.rec.ReconcileBookings(context.Background()); err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if len(f.notifier.sent) != 1 {
		t.Fatalf("booking confirmation must be sent once, got %v", f.notifier.sent)
	}
}

func TestBookingPrecedenceOverNoShow(t *testing.T) {
	tests := []struct {
		name       string
		noShowAt   time.Time
		meetingAt  time.Time
		wantStatus domain.Status
	}{
		{"fresh booking after no-show wins", now.Add(-2 * time.Hour), now.Add(24 * time.Hour), domain.StatusMeetingBooked},
		{"stale event before no-show is ignored", now.Add(30 * time.Hour), now.Add(24 * time.Hour), domain.StatusNoShow},
		{"equal times are ignored", now.Add(24 * time.Hour), now.Add(24 * time.Hour), domain.StatusNoShow},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			lead := domain.NewLead("ann@example.com", "Ann", "", now.Add(-200*time.Hour))
			lead.Meeting.Status = domain.StatusNoShow
			lead.Meeting.NoShowReminderStage = domain.StageFirst
			noShow := tc.noShowAt
			lead.Meeting.NoShowTime = &noShow
			f.insert(t, lead)
			f.book("ann@example.com", tc.meetingAt)

			if _, err := f.rec.ReconcileBookings(context.Background()); err != nil {
				t.Fatalf("reconcile: %v", err)
			}
			m := f.get(t, "ann@example.com").Meeting
			if m.Status != tc.wantStatus {
				t.Fatalf("expected %s, got %s", tc.wantStatus, m.Status)
			}
			if tc.wantStatus == domain.StatusMeetingBooked && m.NoShowReminderStage != 0 {
				t.Fatalf("no-show stage should reset on rebooking")
			}
		})
	}
}

func TestAlreadyBookedLeadIsNotReconfirmed(t *testing.T) {
	f := newFixture(t)
	lead := domain.NewLead("ann@example.com", "Ann", "", now.Add(-time.Hour))
	meeting := now.Add(3 * time.Hour)
	lead.Meeting.Status = domain.StatusMeetingBooked
	lead.Meeting.MeetingBooked = true
	lead.Meeting.MeetingTime = &meeting
	lead.Meeting.Reminder24hSent = true
	f.insert(t, lead)
	f.book("ann@example.com", meeting)

	res, err := f.rec.ReconcileBookings(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.Booked != 0 || len(f.notifier.sent) != 0 {
		t.Fatalf("booked lead must not be touched, got %+v %v", res, f.notifier.sent)
	}
	if !f.get(t, "ann@example.com").Meeting.Reminder24hSent {
		t.Fatalf("reminder latch must survive a repeated booking")
	}
}

func TestCalendarFailureSkipsSweep(t *testing.T) {
	f := newFixture(t)
	f.insert(t, domain.NewLead("ann@example.com", "Ann", "", now.Add(-time.Hour)))
	f.bookings.err = errors.New("calendar down")

	res, err := f.rec.ReconcileBookings(context.Background())
	if err == nil || !res.CalendarFailed {
		t.Fatalf("expected calendar failure, got %+v %v", res, err)
	}
	if got := f.get(t, "ann@example.com").Meeting.Status; got != domain.StatusNewLead {
		t.Fatalf("lead must not be demoted on calendar failure, got %s", got)
	}
	if len(f.notifier.sent) != 0 {
		t.Fatalf("no notifications on calendar failure")
	}
}

func TestUnknownGuestIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.book("stranger@example.com", now.Add(time.Hour))

	res, err := f.rec.ReconcileBookings(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.Booked != 0 || res.Failed != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestCRMFailureStillNotifies(t *testing.T) {
	f := newFixture(t)
	f.crm.err = errors.New("hubspot down")
	f.insert(t, domain.NewLead("ann@example.com", "Ann", "", now.Add(-time.Hour)))

	res, err := f.rec.ReconcileBookings(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.NotBooked != 1 || res.Degraded != 1 {
		t.Fatalf("expected degraded transition, got %+v", res)
	}
	if len(f.notifier.sent) != 1 {
		t.Fatalf("notification should still be sent")
	}
}

func TestProcessLead(t *testing.T) {
	f := newFixture(t)
	f.insert(t, domain.NewLead("ann@example.com", "Ann", "", now.Add(-time.Hour)))
	f.book("ann@example.com", now.Add(5*time.Hour))

	changed, err := f.rec.ProcessLead(context.Background(), "ANN@example.com")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !changed || f.get(t, "ann@example.com").Meeting.Status != domain.StatusMeetingBooked {
		t.Fatalf("expected lead to be booked")
	}

	changed, err = f.rec.ProcessLead(context.Background(), "ann@example.com")
	if err != nil || changed {
		t.Fatalf("second process should be a no-op, got %v %v", changed, err)
	}
}
