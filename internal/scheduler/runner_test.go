package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"leadsync_backend/internal/crm"
	"leadsync_backend/internal/leads/domain"
	"leadsync_backend/internal/reconciler"
	"leadsync_backend/internal/reminders"
	"leadsync_backend/internal/sheets"
	"leadsync_backend/platform/clock"
	"leadsync_backend/platform/logger"
)

type stageLog struct {
	mu     sync.Mutex
	stages []string
}

func (l *stageLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stages = append(l.stages, s)
}

func (l *stageLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.stages...)
}

type fakeImporter struct {
	log    *stageLog
	result crm.ImportResult
	err    error
}

func (f *fakeImporter) Sync(context.Context) (crm.ImportResult, error) {
	f.log.add("import")
	return f.result, f.err
}

type fakeReconciler struct {
	log     *stageLog
	result  reconciler.Result
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeReconciler) ReconcileBookings(context.Context) (reconciler.Result, error) {
	f.log.add("reconcile")
	if f.started != nil {
		close(f.started)
		<-f.release
	}
	return f.result, f.err
}

type fakeReminders struct {
	log *stageLog
}

func (f *fakeReminders) DetectNoShows(context.Context) reminders.Result {
	f.log.add("noshow")
	return reminders.Result{}
}

func (f *fakeReminders) RunScans(context.Context) reminders.Result {
	f.log.add("scans")
	return reminders.Result{}
}

type fakeTracker struct {
	log      *stageLog
	bookings domain.Bookings
	err      error
}

func (f *fakeTracker) Run(_ context.Context, bookings domain.Bookings) (sheets.Result, error) {
	f.log.add("sheet")
	f.bookings = bookings
	return sheets.Result{}, f.err
}

func newRunner(rec *fakeReconciler, stages *stageLog, tracker *fakeTracker, locker Locker) *Runner {
	deps := RunnerDeps{
		Importer:   &fakeImporter{log: stages},
		Reconciler: rec,
		Reminders:  &fakeReminders{log: stages},
		Locker:     locker,
		Clock:      clock.NewFixed(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
		Log:        logger.New("test"),
	}
	if tracker != nil {
		deps.Tracker = tracker
	}
	return NewRunner(deps)
}

func TestTickRunsStagesInOrder(t *testing.T) {
	stages := &stageLog{}
	bookings := domain.Bookings{}
	bookings.Add(domain.Booking{Email: "ann@example.com", MeetingTime: time.Now()})
	tracker := &fakeTracker{log: stages}
	runner := newRunner(&fakeReconciler{log: stages, result: reconciler.Result{Bookings: bookings}}, stages, tracker, nil)

	res, err := runner.Tick(context.Background(), TriggerCLI)
	require.NoError(t, err)
	require.Zero(t, res.FailedStages)
	require.Equal(t, []string{"import", "reconcile", "noshow", "scans", "sheet"}, stages.all())
	require.Len(t, tracker.bookings, 1, "tracker receives the bookings read by the reconciler")
}

func TestCalendarFailureSkipsSheet(t *testing.T) {
	stages := &stageLog{}
	rec := &fakeReconciler{
		log:    stages,
		result: reconciler.Result{CalendarFailed: true, Bookings: domain.Bookings{}},
		err:    errors.New("calendar down"),
	}
	runner := newRunner(rec, stages, &fakeTracker{log: stages}, nil)

	res, err := runner.Tick(context.Background(), TriggerTicker)
	require.NoError(t, err)
	require.True(t, res.SheetSkipped)
	require.Equal(t, 1, res.FailedStages)
	require.Equal(t, []string{"import", "reconcile", "noshow", "scans"}, stages.all(), "reminders still run on calendar failure")
}

func TestImportFailureCountsStageAndContinues(t *testing.T) {
	stages := &stageLog{}
	runner := NewRunner(RunnerDeps{
		Importer:   &fakeImporter{log: stages, result: crm.ImportResult{Processed: 3}, err: errors.New("hubspot down")},
		Reconciler: &fakeReconciler{log: stages},
		Reminders:  &fakeReminders{log: stages},
		Clock:      clock.NewFixed(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
		Log:        logger.New("test"),
	})

	res, err := runner.Tick(context.Background(), TriggerTicker)
	require.NoError(t, err)
	require.Equal(t, 1, res.FailedStages)
	require.Equal(t, 3, res.Import.Processed)
	require.Equal(t, []string{"import", "reconcile", "noshow", "scans"}, stages.all())
}

func TestTickWithoutImporterStartsAtReconcile(t *testing.T) {
	stages := &stageLog{}
	runner := NewRunner(RunnerDeps{
		Reconciler: &fakeReconciler{log: stages},
		Reminders:  &fakeReminders{log: stages},
		Clock:      clock.NewFixed(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
		Log:        logger.New("test"),
	})

	res, err := runner.Tick(context.Background(), TriggerTicker)
	require.NoError(t, err)
	require.Zero(t, res.FailedStages)
	require.Equal(t, []string{"reconcile", "noshow", "scans"}, stages.all())
}

func TestTickerFailureCountsStage(t *testing.T) {
	stages := &stageLog{}
	runner := newRunner(&fakeReconciler{log: stages}, stages, &fakeTracker{log: stages, err: errors.New("sheets down")}, nil)

	res, err := runner.Tick(context.Background(), TriggerTicker)
	require.NoError(t, err)
	require.Equal(t, 1, res.FailedStages)
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	stages := &stageLog{}
	rec := &fakeReconciler{log: stages, started: make(chan struct{}), release: make(chan struct{})}
	runner := newRunner(rec, stages, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := runner.Tick(context.Background(), TriggerTicker)
		done <- err
	}()
	<-rec.started

	_, err := runner.Tick(context.Background(), TriggerAdmin)
	require.ErrorIs(t, err, ErrTickInProgress)

	close(rec.release)
	require.NoError(t, <-done)
	require.Equal(t, []string{"import", "reconcile", "noshow", "scans"}, stages.all())
}

func TestRedisLockExcludesOtherProcesses(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lock := NewRedisLock(client, time.Minute)
	other := NewRedisLock(client, time.Minute)

	unlock, ok, err := lock.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = other.TryLock(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	unlock(context.Background())

	unlock2, ok, err := other.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	unlock2(context.Background())
}

func TestRedisLockExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	stale, ok, err := NewRedisLock(client, time.Minute).TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	_, ok, err = NewRedisLock(client, time.Minute).TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	// The expired holder must not release the new owner's lock.
	stale(context.Background())
	require.True(t, mr.Exists(tickLockKey))
}

func TestRedisLockRenewedWhileHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ttl := 300 * time.Millisecond
	unlock, ok, err := NewRedisLock(client, ttl).TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(200 * time.Millisecond)
	require.Eventually(t, func() bool {
		return mr.TTL(tickLockKey) > 250*time.Millisecond
	}, 2*time.Second, 10*time.Millisecond, "holder renews the ttl")

	// Past the original expiry the holder still owns the lock.
	mr.FastForward(200 * time.Millisecond)
	_, ok, err = NewRedisLock(client, ttl).TryLock(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	unlock(context.Background())
	require.False(t, mr.Exists(tickLockKey))
}

func TestTickSkippedWhenLockHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	held, ok, err := NewRedisLock(client, time.Minute).TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	t.Cleanup(func() { held(context.Background()) })

	stages := &stageLog{}
	runner := newRunner(&fakeReconciler{log: stages}, stages, nil, NewRedisLock(client, time.Minute))

	_, err = runner.Tick(context.Background(), TriggerTask)
	require.ErrorIs(t, err, ErrTickInProgress)
	require.Empty(t, stages.all())
}
