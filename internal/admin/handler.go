package admin

import (
	"net/http"
	"strconv"
	"time"

	"leadsync_backend/internal/leads/domain"
	"leadsync_backend/internal/leads/repository"
	"leadsync_backend/internal/scheduler"
	"leadsync_backend/platform/httpkit"
	"leadsync_backend/platform/logger"
	"leadsync_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Handler serves the operator endpoints.
type Handler struct {
	store       repository.LeadReader
	transitions repository.TransitionLog
	ticks       scheduler.TickEnqueuer
	leads       scheduler.LeadEnqueuer
	val         *validator.Validator
	log         *logger.Logger
}

// LeadResponse is the operator view of a lead.
type LeadResponse struct {
	Email               string               `json:"email"`
	Name                string               `json:"name"`
	Contact             string               `json:"contact,omitempty"`
	Status              string               `json:"status"`
	MeetingBooked       bool                 `json:"meetingBooked"`
	MeetingTime         *time.Time           `json:"meetingTime,omitempty"`
	MeetingLink         string               `json:"meetingLink,omitempty"`
	Reminder24hSent     bool                 `json:"reminder24hSent"`
	Reminder1hSent      bool                 `json:"reminder1hSent"`
	NoBookReminderStage int                  `json:"noBookReminderStage"`
	NoBookReminderTime  *time.Time           `json:"noBookReminderTime,omitempty"`
	NoShowReminderStage int                  `json:"noShowReminderStage"`
	NoShowTime          *time.Time           `json:"noShowTime,omitempty"`
	UpdatedAt           time.Time            `json:"updatedAt"`
	History             []TransitionResponse `json:"history"`
}

// TransitionResponse is one status change.
type TransitionResponse struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurredAt"`
}

// HandleTriggerTick queues a full tick on the worker.
// POST /api/v1/admin/ticks
func (h *Handler) HandleTriggerTick(c *gin.Context) {
	if err := h.ticks.EnqueueTick(c.Request.Context(), scheduler.TriggerAdmin); err != nil {
		h.log.Error("admin: enqueue tick failed", "error", err)
		httpkit.Error(c, http.StatusServiceUnavailable, "task queue unavailable", nil)
		return
	}
	h.log.Info("admin: tick queued", "operator", httpkit.GetIdentity(c).Subject())
	httpkit.Accepted(c, gin.H{"queued": scheduler.TaskTick})
}

// HandleProcessLead queues a single-lead reconciliation.
// POST /api/v1/admin/leads/:email/process
func (h *Handler) HandleProcessLead(c *gin.Context) {
	email, ok := h.emailParam(c)
	if !ok {
		return
	}

	if _, err := h.store.Get(c.Request.Context(), email); httpkit.HandleError(c, err) {
		return
	}

	payload := scheduler.LeadProcessPayload{Email: email, Reason: "admin"}
	if err := h.leads.EnqueueLeadProcess(c.Request.Context(), payload); err != nil {
		h.log.Error("admin: enqueue lead process failed", "email", email, "error", err)
		httpkit.Error(c, http.StatusServiceUnavailable, "task queue unavailable", nil)
		return
	}
	h.log.Info("admin: lead process queued", "email", email, "operator", httpkit.GetIdentity(c).Subject())
	httpkit.Accepted(c, gin.H{"queued": scheduler.TaskLeadProcess, "email": email})
}

// HandleGetLead returns the lead with its status history.
// GET /api/v1/admin/leads/:email
func (h *Handler) HandleGetLead(c *gin.Context) {
	email, ok := h.emailParam(c)
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			httpkit.Error(c, http.StatusBadRequest, "invalid limit", nil)
			return
		}
		limit = n
	}

	lead, err := h.store.Get(c.Request.Context(), email)
	if httpkit.HandleError(c, err) {
		return
	}

	history, err := h.transitions.ListTransitions(c.Request.Context(), email, limit)
	if err != nil {
		h.log.DatabaseError("list transitions", err)
		httpkit.Error(c, http.StatusInternalServerError, "failed to load history", nil)
		return
	}

	httpkit.OK(c, toLeadResponse(lead, history))
}

func (h *Handler) emailParam(c *gin.Context) (string, bool) {
	email := domain.NormalizeEmail(c.Param("email"))
	if err := h.val.Var(email, "required,email"); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid email", nil)
		return "", false
	}
	return email, true
}

func toLeadResponse(l domain.Lead, history []repository.Transition) LeadResponse {
	m := l.Meeting
	resp := LeadResponse{
		Email:               l.Email,
		Name:                l.Name,
		Contact:             l.Contact,
		Status:              m.Status.String(),
		MeetingBooked:       m.MeetingBooked,
		MeetingTime:         m.MeetingTime,
		MeetingLink:         m.MeetingLink,
		Reminder24hSent:     m.Reminder24hSent,
		Reminder1hSent:      m.Reminder1hSent,
		NoBookReminderStage: m.NoBookReminderStage,
		NoBookReminderTime:  m.NoBookReminderTime,
		NoShowReminderStage: m.NoShowReminderStage,
		NoShowTime:          m.NoShowTime,
		UpdatedAt:           l.UpdatedAt,
		History:             make([]TransitionResponse, 0, len(history)),
	}
	for _, t := range history {
		resp.History = append(resp.History, TransitionResponse{
			From:       t.From.String(),
			To:         t.To.String(),
			Source:     t.Source,
			OccurredAt: t.OccurredAt,
		})
	}
	return resp
}
