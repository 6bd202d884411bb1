// Package reminders runs the time-driven reminder scans and the no-show detector.
package reminders

import (
	"context"
	"time"

	"leadsync_backend/internal/events"
	"leadsync_backend/internal/leads/domain"
	"leadsync_backend/internal/leads/ports"
	"leadsync_backend/internal/leads/repository"
	"leadsync_backend/internal/notify"
	"leadsync_backend/platform/clock"
	"leadsync_backend/platform/logger"
)

const (
	reminder24hWindow = 25 * time.Hour
	reminder1hWindow  = time.Hour
	noShowFinalDelay  = 24 * time.Hour
)

// noBookThresholds[i] is the age of the not-booked anchor at which stage i advances to i+1.
var noBookThresholds = [...]time.Duration{24 * time.Hour, 72 * time.Hour}

// noBookStatuses is the local status written when a stage is reached.
var noBookStatuses = [...]domain.Status{
	domain.StatusNotBookedFirstReminderSent,
	domain.StatusNotBookedFinalReminderSent,
}

// Result counts claimed leads per scan.
type Result struct {
	Reminder24h int
	Reminder1h  int
	NoBook      int
	NoShowFinal int
	NoShowFirst int
	Failed      int
	Degraded    int
}

// Claimed is the total number of leads that advanced.
func (r Result) Claimed() int {
	return r.Reminder24h + r.Reminder1h + r.NoBook + r.NoShowFinal + r.NoShowFirst
}

// Deps groups the collaborators of a Scheduler.
type Deps struct {
	Store       repository.Store
	CRM         ports.StatusPropagator
	Notifier    notify.Notifier
	Bus         events.Bus
	Clock       clock.Clock
	CallTimeout time.Duration
	Log         *logger.Logger
}

// Scheduler advances reminder latches and stage counters. Every lead is
// claimed through a conditional update repeating the scan predicate, so
// overlapping runs never notify a lead twice for the same step.
type Scheduler struct {
	store    repository.Store
	crm      ports.StatusPropagator
	notifier notify.Notifier
	bus      events.Bus
	clock    clock.Clock
	timeout  time.Duration
	log      *logger.Logger
}

// New builds a Scheduler. A nil CRM propagator disables propagation.
func New(d Deps) *Scheduler {
	crm := d.CRM
	if crm == nil {
		crm = ports.NoopPropagator{}
	}
	return &Scheduler{
		store:    d.Store,
		crm:      crm,
		notifier: d.Notifier,
		bus:      d.Bus,
		clock:    d.Clock,
		timeout:  d.CallTimeout,
		log:      d.Log,
	}
}

// step is one claimable transition: leads matching filter receive patch and,
// when modified, the notification kind. A zero status leaves the CRM untouched.
// from overrides the stored status as the reported origin of the transition.
type step struct {
	name    string
	filter  repository.Filter
	patch   repository.Patch
	kind    notify.Kind
	status  domain.Status
	from    domain.Status
	source  string
	counter *int
}

// RunScans runs the meeting reminders, the not-booked follow-ups and the
// final no-show reminder. The 1h reminder runs first and also latches the
// 24h reminder so a late booking receives a single reminder. Not-booked
// stages run from last to first so a lead advances at most one stage per run.
func (s *Scheduler) RunScans(ctx context.Context) Result {
	var res Result
	now := s.clock.Now()

	hourEnd := now.Add(reminder1hWindow)
	s.run(ctx, step{
		name: "reminder_1h",
		filter: repository.Filter{
			MeetingBooked:   repository.Ptr(true),
			Reminder1hSent:  repository.Ptr(false),
			MeetingTimeFrom: &now,
			MeetingTimeTo:   &hourEnd,
		},
		patch: repository.Patch{
			Reminder1hSent:  repository.Ptr(true),
			Reminder24hSent: repository.Ptr(true),
		},
		kind:    notify.KindReminder1h,
		counter: &res.Reminder1h,
	}, &res)

	dayEnd := now.Add(reminder24hWindow)
	s.run(ctx, step{
		name: "reminder_24h",
		filter: repository.Filter{
			MeetingBooked:   repository.Ptr(true),
			Reminder24hSent: repository.Ptr(false),
			MeetingTimeFrom: &now,
			MeetingTimeTo:   &dayEnd,
		},
		patch:   repository.Patch{Reminder24hSent: repository.Ptr(true)},
		kind:    notify.KindReminder24h,
		counter: &res.Reminder24h,
	}, &res)

	for stage := len(noBookThresholds) - 1; stage >= 0; stage-- {
		kind, err := notify.NoBookKind(stage + 1)
		if err != nil {
			s.log.Error("no-book stage has no notification", "stage", stage+1, "error", err)
			continue
		}
		cutoff := now.Add(-noBookThresholds[stage])
		s.run(ctx, step{
			name: string(kind),
			filter: repository.Filter{
				MeetingBooked:            repository.Ptr(false),
				Statuses:                 domain.NoBookFollowUpStatuses(),
				NoBookStage:              repository.Ptr(stage),
				NoBookReminderAtOrBefore: &cutoff,
			},
			patch: repository.Patch{
				NoBookReminderStage: repository.Ptr(stage + 1),
				Status:              repository.Ptr(noBookStatuses[stage]),
			},
			kind:    kind,
			status:  noBookStatuses[stage],
			counter: &res.NoBook,
		}, &res)
	}

	noShowCutoff := now.Add(-noShowFinalDelay)
	s.run(ctx, step{
		name: "no_show_final",
		filter: repository.Filter{
			Statuses:             []domain.Status{domain.StatusNoShow},
			NoShowStage:          repository.Ptr(domain.StageFirst),
			NoShowTimeAtOrBefore: &noShowCutoff,
		},
		patch: repository.Patch{
			NoShowReminderStage: repository.Ptr(domain.StageFinal),
			Status:              repository.Ptr(domain.StatusNoShowFinalReminderSent),
		},
		kind:    notify.KindNoShowFinal,
		status:  domain.StatusNoShowFinalReminderSent,
		counter: &res.NoShowFinal,
	}, &res)

	s.log.Info("reminder scans completed",
		"reminder24h", res.Reminder24h,
		"reminder1h", res.Reminder1h,
		"noBook", res.NoBook,
		"noShowFinal", res.NoShowFinal,
		"failed", res.Failed,
	)
	return res
}

// run finds the candidates of st and claims them one by one.
func (s *Scheduler) run(ctx context.Context, st step, res *Result) {
	candidates, err := s.store.Find(ctx, st.filter)
	if err != nil {
		s.log.DatabaseError("find "+st.name+" candidates", err)
		res.Failed++
		return
	}
	for _, lead := range candidates {
		if ctx.Err() != nil {
			return
		}
		s.claim(ctx, st, lead, res)
	}
}

func (s *Scheduler) claim(ctx context.Context, st step, lead domain.Lead, res *Result) {
	filter := st.filter
	filter.Email = lead.Email

	modified, err := s.store.UpdateOne(ctx, filter, st.patch)
	if err != nil {
		s.log.Error("claim failed", "scan", st.name, "email", lead.Email, "error", err)
		res.Failed++
		return
	}
	if !modified {
		return
	}
	*st.counter++

	from := lead.Meeting.Status
	if st.from != domain.StatusUnknown {
		from = st.from
	}
	st.patch.Apply(&lead, s.clock.Now())

	ok := true
	if st.status != domain.StatusUnknown {
		crmCtx, cancel := s.callContext(ctx)
		if err := s.crm.Propagate(crmCtx, lead.Email, st.status); err != nil {
			ok = false
		}
		cancel()
	}

	notifyCtx, cancel := s.callContext(ctx)
	notifyErr := s.notifier.Notify(notifyCtx, st.kind, notify.RecipientFromLead(lead))
	cancel()
	if notifyErr != nil {
		ok = false
	}
	if !ok {
		res.Degraded++
	}

	now := s.clock.Now()
	if st.status != domain.StatusUnknown && st.status != from {
		source := st.source
		if source == "" {
			source = events.SourceScheduler
		}
		s.publish(ctx, events.NewLeadStatusChanged(now, lead.Email, from, st.status, source))
	}
	s.publish(ctx, events.NewReminderSent(now, lead.Email, string(st.kind), notifyErr == nil))
}

func (s *Scheduler) publish(ctx context.Context, event events.Event) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, event)
}

func (s *Scheduler) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
