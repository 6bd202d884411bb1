package reminders

import (
	"context"

	"leadsync_backend/internal/events"
	"leadsync_backend/internal/leads/domain"
	"leadsync_backend/internal/leads/repository"
	"leadsync_backend/internal/notify"
)

// noShowCandidates are still flagged as booked although the sales team
// marked the meeting as missed.
func noShowCandidates() repository.Filter {
	return repository.Filter{
		MeetingBooked: repository.Ptr(true),
		Statuses:      []domain.Status{domain.StatusNoShow},
		NoShowStage:   repository.Ptr(domain.StageNone),
	}
}

// DetectNoShows starts the no-show follow-up for missed meetings: it stamps
// the no-show time, leaves the booked state and sends the first no-show message.
func (s *Scheduler) DetectNoShows(ctx context.Context) Result {
	var res Result
	now := s.clock.Now()

	s.run(ctx, step{
		name:   "no_show_first",
		filter: noShowCandidates(),
		patch: repository.Patch{
			NoShowReminderStage: repository.Ptr(domain.StageFirst),
			NoShowTime:          repository.SetTime(now),
			NoBookReminderStage: repository.Ptr(domain.StageNone),
			NoBookReminderTime:  repository.ClearTime(),
			MeetingBooked:       repository.Ptr(false),
		},
		kind:    notify.KindNoShowFirst,
		status:  domain.StatusNoShow,
		from:    domain.StatusMeetingBooked,
		source:  events.SourceNoShow,
		counter: &res.NoShowFirst,
	}, &res)

	if res.NoShowFirst > 0 || res.Failed > 0 {
		s.log.Info("no-show detection completed", "detected", res.NoShowFirst, "failed", res.Failed)
	}
	return res
}
