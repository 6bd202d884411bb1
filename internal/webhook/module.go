// Package webhook provides the inbound lead producers: the lead form capture
// endpoint and the WhatsApp Cloud API webhook.
// This file defines the module that encapsulates all webhook setup and route registration.
package webhook

import (
	"leadsync_backend/internal/events"
	apphttp "leadsync_backend/internal/http"
	"leadsync_backend/internal/leads/repository"
	"leadsync_backend/internal/scheduler"
	"leadsync_backend/platform/clock"
	"leadsync_backend/platform/config"
	"leadsync_backend/platform/httpkit"
	"leadsync_backend/platform/logger"
	"leadsync_backend/platform/validator"
)

// ModuleConfig combines the config interfaces the webhook routes need.
type ModuleConfig interface {
	config.WebhookConfig
	config.WhatsAppConfig
}

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	cfg     ModuleConfig
}

// NewModule creates and initializes the webhook module with all its dependencies.
func NewModule(store repository.Store, enqueuer scheduler.LeadEnqueuer, eventBus events.Bus, val *validator.Validator, cfg ModuleConfig, clk clock.Clock, log *logger.Logger) *Module {
	service := NewService(store, enqueuer, eventBus, clk, log)
	return &Module{
		handler: NewHandler(service, val, cfg, log),
		cfg:     cfg,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts webhook routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Lead producers (API key auth, no JWT)
	leads := ctx.V1.Group("/webhook/leads")
	leads.Use(httpkit.APIKeyRequired(m.cfg))
	leads.POST("", m.handler.HandleLeadForm)

	// WhatsApp Cloud API (verify token handshake, public notifications)
	ctx.V1.GET("/webhook/whatsapp", m.handler.HandleWhatsAppVerify)
	ctx.V1.POST("/webhook/whatsapp", m.handler.HandleWhatsAppInbound)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
