// Package admin exposes the operator endpoints for manual ticks and lead inspection.
package admin

import (
	apphttp "leadsync_backend/internal/http"
	"leadsync_backend/internal/leads/repository"
	"leadsync_backend/internal/scheduler"
	"leadsync_backend/platform/logger"
	"leadsync_backend/platform/validator"
)

// Queue is the task queue the admin endpoints hand work to.
type Queue interface {
	scheduler.TickEnqueuer
	scheduler.LeadEnqueuer
}

// Module mounts the admin routes. All routes require the admin role.
type Module struct {
	handler *Handler
}

func NewModule(store repository.LeadReader, transitions repository.TransitionLog, queue Queue, val *validator.Validator, log *logger.Logger) *Module {
	return &Module{handler: &Handler{
		store:       store,
		transitions: transitions,
		ticks:       queue,
		leads:       queue,
		val:         val,
		log:         log,
	}}
}

func (m *Module) Name() string {
	return "admin"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Admin.POST("/ticks", m.handler.HandleTriggerTick)
	ctx.Admin.GET("/leads/:email", m.handler.HandleGetLead)
	ctx.Admin.POST("/leads/:email/process", m.handler.HandleProcessLead)
}

var _ apphttp.Module = (*Module)(nil)
