package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"leadsync_backend/platform/config"
	"leadsync_backend/platform/logger"
	"leadsync_backend/platform/phone"
)

// Client sends template messages through the WhatsApp Cloud API.
type Client struct {
	baseURL       string
	token         string
	phoneNumberID string
	language      string
	http          *http.Client
	log           *logger.Logger
}

type templateRequest struct {
	MessagingProduct string          `json:"messaging_product"`
	RecipientType    string          `json:"recipient_type"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Template         templatePayload `json:"template"`
}

type templatePayload struct {
	Name       string              `json:"name"`
	Language   templateLanguage    `json:"language"`
	Components []templateComponent `json:"components,omitempty"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

type templateComponent struct {
	Type       string              `json:"type"`
	Parameters []templateParameter `json:"parameters"`
}

type templateParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// NewClient returns nil when WhatsApp is not configured; a nil client drops every send.
func NewClient(cfg config.WhatsAppConfig, log *logger.Logger) *Client {
	if cfg.GetWhatsAppToken() == "" || cfg.GetWhatsAppPhoneNumberID() == "" {
		return nil
	}

	return &Client{
		baseURL:       strings.TrimRight(cfg.GetWhatsAppAPIURL(), "/"),
		token:         cfg.GetWhatsAppToken(),
		phoneNumberID: cfg.GetWhatsAppPhoneNumberID(),
		language:      cfg.GetWhatsAppTemplateLanguage(),
		http:          &http.Client{Timeout: 10 * time.Second},
		log:           log,
	}
}

// SendTemplate delivers a pre-approved template with positional body parameters.
func (c *Client) SendTemplate(ctx context.Context, to, templateKey string, params []string) error {
	if c == nil {
		return nil
	}

	recipient, ok := phone.WhatsAppID(to)
	if !ok {
		return fmt.Errorf("whatsapp: invalid recipient %q", to)
	}

	payload := templateRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               recipient,
		Type:             "template",
		Template: templatePayload{
			Name:     templateKey,
			Language: templateLanguage{Code: c.language},
		},
	}
	if len(params) > 0 {
		parameters := make([]templateParameter, 0, len(params))
		for _, p := range params {
			parameters = append(parameters, templateParameter{Type: "text", Text: p})
		}
		payload.Template.Components = []templateComponent{{Type: "body", Parameters: parameters}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("whatsapp service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result sendResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("decode whatsapp response: %w", err)
	}
	if result.Error != nil {
		return fmt.Errorf("whatsapp: %s (code %d)", result.Error.Message, result.Error.Code)
	}

	messageID := ""
	if len(result.Messages) > 0 {
		messageID = result.Messages[0].ID
	}
	c.log.Debug("whatsapp template sent", "to", recipient, "template", templateKey, "messageId", messageID)
	return nil
}
