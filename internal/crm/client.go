// Package crm integrates the lead funnel with HubSpot: status propagation and contact import.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"leadsync_backend/internal/leads/domain"
	"leadsync_backend/platform/config"
	"leadsync_backend/platform/logger"
)

const (
	statusProperty = "relationship_status"
	pageSize       = 100
)

var contactProperties = []string{
	"email",
	"firstname",
	"lastname",
	statusProperty,
	"hs_whatsapp_phone_number",
	"createdate",
	"lastmodifieddate",
}

// Contact is a CRM contact as the importer sees it.
type Contact struct {
	ID          string
	Email       string
	FirstName   string
	LastName    string
	StatusLabel string
	Phone       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FullName joins first and last name.
func (c Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Page is one cursor page of contacts.
type Page struct {
	Contacts      []Contact
	NextPageToken string
}

// Client is the CRM capability the core depends on.
type Client interface {
	// FindLeadByEmail returns the contact id, or "" when no contact exists.
	FindLeadByEmail(ctx context.Context, email string) (string, error)
	SetStatus(ctx context.Context, id string, status domain.Status) error
	ListLeads(ctx context.Context, pageToken string) (Page, error)
}

// HubSpotClient calls the HubSpot CRM v3 REST API with a private-app token.
type HubSpotClient struct {
	baseURL string
	token   string
	http    *http.Client
	log     *logger.Logger
}

// NewHubSpotClient returns nil when no token is configured.
func NewHubSpotClient(cfg config.HubSpotConfig, log *logger.Logger) *HubSpotClient {
	if !cfg.IsHubSpotEnabled() {
		return nil
	}
	return &HubSpotClient{
		baseURL: strings.TrimRight(cfg.GetHubSpotBaseURL(), "/"),
		token:   cfg.GetHubSpotToken(),
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

type searchRequest struct {
	FilterGroups []filterGroup `json:"filterGroups"`
	Properties   []string      `json:"properties"`
	Limit        int           `json:"limit"`
}

type filterGroup struct {
	Filters []searchFilter `json:"filters"`
}

type searchFilter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

type contactObject struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

type listResponse struct {
	Results []contactObject `json:"results"`
	Paging  *struct {
		Next *struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

// FindLeadByEmail searches contacts by exact email.
func (c *HubSpotClient) FindLeadByEmail(ctx context.Context, email string) (string, error) {
	if c == nil {
		return "", nil
	}
	payload := searchRequest{
		FilterGroups: []filterGroup{{Filters: []searchFilter{{
			PropertyName: "email",
			Operator:     "EQ",
			Value:        domain.NormalizeEmail(email),
		}}}},
		Properties: []string{"email"},
		Limit:      1,
	}
	var out listResponse
	if err := c.do(ctx, http.MethodPost, "/crm/v3/objects/contacts/search", payload, &out); err != nil {
		return "", fmt.Errorf("hubspot search contact: %w", err)
	}
	if len(out.Results) == 0 {
		return "", nil
	}
	return out.Results[0].ID, nil
}

// SetStatus writes the status label to the contact's relationship_status property.
func (c *HubSpotClient) SetStatus(ctx context.Context, id string, status domain.Status) error {
	if c == nil {
		return nil
	}
	if !status.Valid() {
		return fmt.Errorf("hubspot set status: invalid status %v", status)
	}
	payload := map[string]any{
		"properties": map[string]string{statusProperty: status.CRMLabel()},
	}
	if err := c.do(ctx, http.MethodPatch, "/crm/v3/objects/contacts/"+url.PathEscape(id), payload, nil); err != nil {
		return fmt.Errorf("hubspot update contact %s: %w", id, err)
	}
	return nil
}

// ListLeads returns one page of contacts starting after pageToken.
func (c *HubSpotClient) ListLeads(ctx context.Context, pageToken string) (Page, error) {
	if c == nil {
		return Page{}, nil
	}
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", pageSize))
	q.Set("properties", strings.Join(contactProperties, ","))
	if pageToken != "" {
		q.Set("after", pageToken)
	}

	var out listResponse
	if err := c.do(ctx, http.MethodGet, "/crm/v3/objects/contacts?"+q.Encode(), nil, &out); err != nil {
		return Page{}, fmt.Errorf("hubspot list contacts: %w", err)
	}

	page := Page{Contacts: make([]Contact, 0, len(out.Results))}
	for _, obj := range out.Results {
		page.Contacts = append(page.Contacts, toContact(obj))
	}
	if out.Paging != nil && out.Paging.Next != nil {
		page.NextPageToken = out.Paging.Next.After
	}
	return page, nil
}

func toContact(obj contactObject) Contact {
	p := obj.Properties
	contact := Contact{
		ID:          obj.ID,
		Email:       domain.NormalizeEmail(p["email"]),
		FirstName:   strings.TrimSpace(p["firstname"]),
		LastName:    strings.TrimSpace(p["lastname"]),
		StatusLabel: p[statusProperty],
		Phone:       strings.TrimSpace(p["hs_whatsapp_phone_number"]),
		CreatedAt:   parseTimestamp(p["createdate"], obj.CreatedAt),
		UpdatedAt:   parseTimestamp(p["lastmodifieddate"], obj.UpdatedAt),
	}
	if contact.ID == "" {
		contact.ID = p["hs_object_id"]
	}
	return contact
}

func parseTimestamp(value string, fallback time.Time) time.Time {
	if value == "" {
		return fallback.UTC()
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return fallback.UTC()
	}
	return t.UTC()
}

func (c *HubSpotClient) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("hubspot returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var _ Client = (*HubSpotClient)(nil)
