package crm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"leadsync_backend/internal/leads/domain"
	"leadsync_backend/internal/leads/repository"
	"leadsync_backend/platform/clock"
	"leadsync_backend/platform/logger"
)

type fakeClient struct {
	pages    map[string]Page
	ids      map[string]string
	statuses map[string]domain.Status
	listErr  error
	setErr   error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		pages:    map[string]Page{},
		ids:      map[string]string{},
		statuses: map[string]domain.Status{},
	}
}

func (f *fakeClient) FindLeadByEmail(_ context.Context, email string) (string, error) {
	return f.ids[domain.NormalizeEmail(email)], nil
}

func (f *fakeClient) SetStatus(_ context.Context, id string, status domain.Status) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.statuses[id] = status
	return nil
}

func (f *fakeClient) ListLeads(_ context.Context, token string) (Page, error) {
	if f.listErr != nil {
		return Page{}, f.listErr
	}
	return f.pages[token], nil
}

var importNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newImporter(t *testing.T, client Client) (*Importer, *repository.MemoryStore, *clock.Fixed) {
	t.Helper()
	clk := clock.NewFixed(importNow)
	store := repository.NewMemoryStore(clk)
	return NewImporter(client, store, store, clk, logger.New("test")), store, clk
}

func TestImporterInsertsMissingLeads(t *testing.T) {
	client := newFakeClient()
	created := importNow.Add(-48 * time.Hour)
	client.pages[""] = Page{
		Contacts: []Contact{
			{ID: "1", Email: "new@example.com", FirstName: "Nia", StatusLabel: "", CreatedAt: created},
			{ID: "2", Email: "booked@example.com", StatusLabel: domain.StatusMeetingBooked.CRMLabel(), CreatedAt: created},
			{ID: "3", Email: ""},
		},
		NextPageToken: "p2",
	}
	client.pages["p2"] = Page{Contacts: []Contact{
		{ID: "4", Email: "odd@example.com", StatusLabel: "Mystery"},
	}}

	importer, store, _ := newImporter(t, client)
	result, err := importer.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, ImportResult{Processed: 4, Inserted: 2, Skipped: 1, MissingEmail: 1}, result)

	lead, err := store.Get(context.Background(), "new@example.com")
	require.NoError(t, err)
	require.Equal(t, domain.StatusNewLead, lead.Meeting.Status)
	require.Equal(t, "1", lead.CRMID)
	require.NotNil(t, lead.Meeting.NoBookReminderTime)
	require.True(t, lead.Meeting.NoBookReminderTime.Equal(created))

	booked, err := store.Get(context.Background(), "booked@example.com")
	require.NoError(t, err)
	require.Equal(t, domain.StatusNewLead, booked.Meeting.Status)
}

func TestImporterUpdatesChangedStatus(t *testing.T) {
	client := newFakeClient()
	importer, store, clk := newImporter(t, client)
	require.NoError(t, store.Insert(context.Background(), domain.NewLead("a@example.com", "A", "", importNow)))

	clk.Advance(time.Hour)
	client.pages[""] = Page{Contacts: []Contact{{
		ID:          "9",
		Email:       "a@example.com",
		StatusLabel: domain.StatusNotBooked.CRMLabel(),
		UpdatedAt:   clk.Now(),
	}}}

	result, err := importer.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Updated)

	lead, err := store.Get(context.Background(), "a@example.com")
	require.NoError(t, err)
	require.Equal(t, domain.StatusNotBooked, lead.Meeting.Status)

	history, err := store.ListTransitions(context.Background(), "a@example.com", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, importSource, history[0].Source)
}

func TestImporterSkipsStaleEcho(t *testing.T) {
	client := newFakeClient()
	importer, store, _ := newImporter(t, client)
	require.NoError(t, store.Insert(context.Background(), domain.NewLead("a@example.com", "A", "", importNow)))

	client.pages[""] = Page{Contacts: []Contact{{
		Email:       "a@example.com",
		StatusLabel: domain.StatusNotBooked.CRMLabel(),
		UpdatedAt:   importNow.Add(-time.Minute),
	}}}

	result, err := importer.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Skipped)

	lead, err := store.Get(context.Background(), "a@example.com")
	require.NoError(t, err)
	require.Equal(t, domain.StatusNewLead, lead.Meeting.Status)
}

func TestImporterReinsertsResetLead(t *testing.T) {
	client := newFakeClient()
	importer, store, clk := newImporter(t, client)
	lead := domain.NewLead("a@example.com", "A", "", importNow)
	lead.Meeting.Status = domain.StatusNotBookedFinalReminderSent
	lead.Meeting.NoBookReminderStage = domain.StageFinal
	require.NoError(t, store.Insert(context.Background(), lead))

	clk.Advance(time.Hour)
	client.pages[""] = Page{Contacts: []Contact{{
		Email:       "a@example.com",
		StatusLabel: domain.StatusNewLead.CRMLabel(),
		CreatedAt:   clk.Now(),
		UpdatedAt:   clk.Now(),
	}}}

	result, err := importer.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Reinserted)

	got, err := store.Get(context.Background(), "a@example.com")
	require.NoError(t, err)
	require.Equal(t, domain.StatusNewLead, got.Meeting.Status)
	require.Equal(t, domain.StageNone, got.Meeting.NoBookReminderStage)
}

func TestImporterIgnoresNewLeadLabelOlderThanLocalProgress(t *testing.T) {
	client := newFakeClient()
	importer, store, clk := newImporter(t, client)
	created := importNow.Add(-time.Hour)
	require.NoError(t, store.Insert(context.Background(), domain.NewLead("a@example.com", "A", "", created)))

	// Local lead leaves new_lead; the CRM write for it never landed.
	clk.Advance(time.Minute)
	_, err := store.UpdateOne(context.Background(),
		repository.Filter{Email: "a@example.com"},
		repository.Patch{Status: repository.Ptr(domain.StatusNotBooked)},
	)
	require.NoError(t, err)
	require.NoError(t, store.RecordTransition(context.Background(), repository.Transition{
		Email: "a@example.com", From: domain.StatusNewLead, To: domain.StatusNotBooked, Source: "calendar", OccurredAt: clk.Now(),
	}))

	// Someone edits the contact later, which bumps its modification date.
	clk.Advance(time.Hour)
	client.pages[""] = Page{Contacts: []Contact{{
		Email:       "a@example.com",
		StatusLabel: domain.StatusNewLead.CRMLabel(),
		CreatedAt:   created,
		UpdatedAt:   clk.Now(),
	}}}

	result, err := importer.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, ImportResult{Processed: 1, Skipped: 1}, result)

	got, err := store.Get(context.Background(), "a@example.com")
	require.NoError(t, err)
	require.Equal(t, domain.StatusNotBooked, got.Meeting.Status)
	require.True(t, got.CreatedAt.Equal(created))
}

func TestImporterStampsNoShowTimeForUnbookedLead(t *testing.T) {
	client := newFakeClient()
	importer, store, clk := newImporter(t, client)
	lead := domain.NewLead("a@example.com", "A", "", importNow)
	lead.Meeting.Status = domain.StatusNotBooked
	require.NoError(t, store.Insert(context.Background(), lead))

	clk.Advance(time.Hour)
	client.pages[""] = Page{Contacts: []Contact{{
		Email:       "a@example.com",
		StatusLabel: domain.StatusNoShow.CRMLabel(),
		UpdatedAt:   clk.Now(),
	}}}

	result, err := importer.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Updated)

	got, err := store.Get(context.Background(), "a@example.com")
	require.NoError(t, err)
	require.Equal(t, domain.StatusNoShow, got.Meeting.Status)
	require.NotNil(t, got.Meeting.NoShowTime)
	require.True(t, got.Meeting.NoShowTime.Equal(clk.Now()))
	require.Equal(t, domain.StageNone, got.Meeting.NoShowReminderStage)

	// A meeting after the stamp is eligible for rebooking, one before is not.
	rebook := func(at time.Time) bool {
		ok, err := store.UpdateOne(context.Background(), repository.Filter{
			Email:            "a@example.com",
			Statuses:         domain.NoShowStatuses(),
			NoShowTimeBefore: &at,
		}, repository.Patch{Status: repository.Ptr(domain.StatusMeetingBooked)})
		require.NoError(t, err)
		return ok
	}
	require.False(t, rebook(clk.Now().Add(-time.Minute)))
	require.True(t, rebook(clk.Now().Add(24*time.Hour)))
}

func TestImporterStampsNoShowTimeOnInsert(t *testing.T) {
	client := newFakeClient()
	client.pages[""] = Page{Contacts: []Contact{{
		ID:          "5",
		Email:       "gone@example.com",
		StatusLabel: domain.StatusNoShow.CRMLabel(),
		CreatedAt:   importNow.Add(-24 * time.Hour),
	}}}
	importer, store, _ := newImporter(t, client)

	result, err := importer.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Inserted)

	got, err := store.Get(context.Background(), "gone@example.com")
	require.NoError(t, err)
	require.Equal(t, domain.StatusNoShow, got.Meeting.Status)
	require.NotNil(t, got.Meeting.NoShowTime)
	require.True(t, got.Meeting.NoShowTime.Equal(importNow))
}

func TestImporterLeavesBookedNoShowToDetector(t *testing.T) {
	client := newFakeClient()
	importer, store, clk := newImporter(t, client)
	meeting := importNow.Add(-time.Hour)
	lead := domain.NewLead("a@example.com", "A", "", importNow.Add(-48*time.Hour))
	lead.Meeting.Status = domain.StatusMeetingBooked
	lead.Meeting.MeetingBooked = true
	lead.Meeting.MeetingTime = &meeting
	require.NoError(t, store.Insert(context.Background(), lead))

	clk.Advance(time.Hour)
	client.pages[""] = Page{Contacts: []Contact{{
		Email:       "a@example.com",
		StatusLabel: domain.StatusNoShow.CRMLabel(),
		UpdatedAt:   clk.Now(),
	}}}

	_, err := importer.Sync(context.Background())
	require.NoError(t, err)

	got, err := store.Get(context.Background(), "a@example.com")
	require.NoError(t, err)
	require.Equal(t, domain.StatusNoShow, got.Meeting.Status)
	require.True(t, got.Meeting.MeetingBooked)
	require.Nil(t, got.Meeting.NoShowTime)
}

func TestImporterRefusesBookedWithoutMeeting(t *testing.T) {
	client := newFakeClient()
	importer, store, clk := newImporter(t, client)
	require.NoError(t, store.Insert(context.Background(), domain.NewLead("a@example.com", "A", "", importNow)))

	clk.Advance(time.Hour)
	client.pages[""] = Page{Contacts: []Contact{{
		Email:       "a@example.com",
		StatusLabel: domain.StatusMeetingBooked.CRMLabel(),
		UpdatedAt:   clk.Now(),
	}}}

	result, err := importer.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Skipped)
}

func TestImporterListFailure(t *testing.T) {
	client := newFakeClient()
	client.listErr = errors.New("boom")
	importer, _, _ := newImporter(t, client)

	_, err := importer.Sync(context.Background())
	require.Error(t, err)
}

func TestPropagatorSetsStatus(t *testing.T) {
	client := newFakeClient()
	client.ids["a@example.com"] = "77"
	p := NewPropagator(client, logger.New("test"))

	require.NoError(t, p.Propagate(context.Background(), "A@example.com", domain.StatusNoShow))
	require.Equal(t, domain.StatusNoShow, client.statuses["77"])

	// Unknown contacts are tolerated.
	require.NoError(t, p.Propagate(context.Background(), "nobody@example.com", domain.StatusNoShow))

	client.setErr = errors.New("down")
	require.Error(t, p.Propagate(context.Background(), "a@example.com", domain.StatusNoShow))
}
