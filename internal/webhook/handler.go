package webhook

import (
	"errors"
	"net/http"
	"strings"

	"leadsync_backend/platform/config"
	"leadsync_backend/platform/httpkit"
	"leadsync_backend/platform/logger"
	"leadsync_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	errInvalidRequest = "invalid request body"
	errValidation     = "validation error"
	maxFormFields     = 100
)

// LeadFormRequest is the normalized lead form after field extraction.
type LeadFormRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Name  string `json:"name" validate:"max=200"`
	Phone string `json:"phone" validate:"omitempty,e164ish"`
}

// Handler handles webhook HTTP requests.
type Handler struct {
	service *Service
	val     *validator.Validator
	cfg     config.WhatsAppConfig
	log     *logger.Logger
}

// NewHandler creates a new webhook handler.
func NewHandler(service *Service, val *validator.Validator, cfg config.WhatsAppConfig, log *logger.Logger) *Handler {
	return &Handler{service: service, val: val, cfg: cfg, log: log}
}

// ---- Lead form (API-key authenticated) ----

// HandleLeadForm captures an inbound lead.
// POST /api/v1/webhook/leads
// Accepts JSON objects and form posts with arbitrary field labels.
func (h *Handler) HandleLeadForm(c *gin.Context) {
	fields, ok := h.readFields(c)
	if !ok {
		return
	}

	extracted := ExtractFields(fields)
	req := LeadFormRequest{
		Email: extracted.Email,
		Name:  extracted.Name(),
		Phone: extracted.Phone,
	}
	if req.Email == "" {
		// The email label was recognized but the value was not an address.
		req.Email = strings.TrimSpace(fields["email"])
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errValidation, err.Error())
		return
	}

	resp, err := h.service.CaptureLead(c.Request.Context(), LeadSubmission{
		Email:   req.Email,
		Name:    req.Name,
		Contact: req.Phone,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	c.JSON(status, resp)
}

func (h *Handler) readFields(c *gin.Context) (map[string]string, bool) {
	fields := make(map[string]string)

	if strings.HasPrefix(c.ContentType(), "application/json") {
		var raw map[string]any
		if err := c.ShouldBindJSON(&raw); err != nil {
			httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, nil)
			return nil, false
		}
		for k, v := range raw {
			if s, ok := v.(string); ok {
				fields[k] = s
			}
		}
	} else {
		if err := c.Request.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, nil)
			return nil, false
		}
		for k, values := range c.Request.PostForm {
			if len(values) > 0 {
				fields[k] = values[0]
			}
		}
	}

	if len(fields) == 0 || len(fields) > maxFormFields {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, nil)
		return nil, false
	}
	return fields, true
}

// ---- WhatsApp Cloud API webhook (public) ----

// HandleWhatsAppVerify answers the subscription handshake.
// GET /api/v1/webhook/whatsapp
func (h *Handler) HandleWhatsAppVerify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	expected := h.cfg.GetWhatsAppVerifyToken()
	if mode != "subscribe" || expected == "" || token != expected {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}
	c.String(http.StatusOK, challenge)
}

type whatsAppNotification struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Messages []struct {
					From string `json:"from"`
					ID   string `json:"id"`
					Type string `json:"type"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// HandleWhatsAppInbound queues a reconciliation for every lead that wrote in.
// POST /api/v1/webhook/whatsapp
// Always acknowledges so the platform does not redeliver.
func (h *Handler) HandleWhatsAppInbound(c *gin.Context) {
	var payload whatsAppNotification
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.log.Warn("webhook: unreadable whatsapp notification", "error", err)
		c.Status(http.StatusOK)
		return
	}

	queued := 0
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				email, err := h.service.HandleInboundMessage(c.Request.Context(), msg.From)
				switch {
				case errors.Is(err, ErrUnknownSender):
					h.log.Debug("webhook: whatsapp message from unknown sender", "messageId", msg.ID)
				case err != nil:
					h.log.Warn("webhook: whatsapp message not routed", "messageId", msg.ID, "error", err)
				default:
					queued++
					h.log.Info("webhook: whatsapp reply queued", "email", email, "messageId", msg.ID)
				}
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"queued": queued})
}
