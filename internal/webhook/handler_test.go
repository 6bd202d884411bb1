package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	apphttp "leadsync_backend/internal/http"
	"leadsync_backend/internal/leads/domain"
	"leadsync_backend/internal/leads/repository"
	"leadsync_backend/internal/scheduler"
	"leadsync_backend/platform/clock"
	"leadsync_backend/platform/config"
	"leadsync_backend/platform/httpkit"
	"leadsync_backend/platform/logger"
	"leadsync_backend/platform/validator"
)

const testAPIKey = "producer-key"

type recordingQueue struct {
	mu       sync.Mutex
	payloads []scheduler.LeadProcessPayload
}

func (q *recordingQueue) EnqueueLeadProcess(_ context.Context, payload scheduler.LeadProcessPayload) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.payloads = append(q.payloads, payload)
	return nil
}

type testEnv struct {
	router *gin.Engine
	store  *repository.MemoryStore
	queue  *recordingQueue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clock.NewFixed(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	store := repository.NewMemoryStore(clk)
	queue := &recordingQueue{}
	cfg := &config.Config{WebhookAPIKey: testAPIKey, WhatsAppVerifyToken: "verify-me"}

	engine := gin.New()
	module := NewModule(store, queue, nil, validator.New(), cfg, clk, logger.New("test"))
	module.RegisterRoutes(&apphttp.RouterContext{Engine: engine, V1: engine.Group("/api/v1")})

	return &testEnv{router: engine, store: store, queue: queue}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(httpkit.HeaderAPIKey, testAPIKey)
	return req
}

func TestLeadFormCreatesNewLead(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(jsonRequest(http.MethodPost, "/api/v1/webhook/leads", `{"Email":"Ann@Example.com","first_name":"Ann","last_name":"Smith","phone":"+1 415 555 2671"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	lead, err := env.store.Get(context.Background(), "ann@example.com")
	require.NoError(t, err)
	require.Equal(t, "Ann Smith", lead.Name)
	require.Equal(t, "+14155552671", lead.Contact)
	require.Equal(t, domain.StatusNewLead, lead.Meeting.Status)
	require.NotNil(t, lead.Meeting.NoBookReminderTime)

	require.Len(t, env.queue.payloads, 1)
	require.Equal(t, "ann@example.com", env.queue.payloads[0].Email)
}

func TestLeadFormRefreshesKnownLeadWithoutChangingStatus(t *testing.T) {
	env := newTestEnv(t)
	lead := domain.NewLead("ann@example.com", "Ann", "", time.Now())
	lead.Meeting.Status = domain.StatusNotBookedFirstReminderSent
	require.NoError(t, env.store.Insert(context.Background(), lead))

	form := url.Values{"email": {"ann@example.com"}, "name": {"Ann Smith"}, "whatsapp": {"+14155552671"}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/leads", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(httpkit.HeaderAPIKey, testAPIKey)

	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got, err := env.store.Get(context.Background(), "ann@example.com")
	require.NoError(t, err)
	require.Equal(t, "Ann Smith", got.Name)
	require.Equal(t, "+14155552671", got.Contact)
	require.Equal(t, domain.StatusNotBookedFirstReminderSent, got.Meeting.Status)
	require.Empty(t, env.queue.payloads)
}

func TestLeadFormStripsMarkupFromName(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(jsonRequest(http.MethodPost, "/api/v1/webhook/leads", `{"email":"bob@example.com","name":"<b>Bob</b>   Jones"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	lead, err := env.store.Get(context.Background(), "bob@example.com")
	require.NoError(t, err)
	require.Equal(t, "Bob Jones", lead.Name)
}

func TestLeadFormValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
		key  string
		want int
	}{
		{"missing key", `{"email":"a@example.com"}`, "", http.StatusUnauthorized},
		{"missing email", `{"name":"Ann"}`, testAPIKey, http.StatusBadRequest},
		{"bad email", `{"email":"not-an-email"}`, testAPIKey, http.StatusBadRequest},
		{"bad phone", `{"email":"a@example.com","phone":"12"}`, testAPIKey, http.StatusBadRequest},
		{"malformed json", `{`, testAPIKey, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := jsonRequest(http.MethodPost, "/api/v1/webhook/leads", tc.body)
			if tc.key == "" {
				req.Header.Del(httpkit.HeaderAPIKey)
			}
			rec := env.do(req)
			require.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestWhatsAppVerify(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=42", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "42", rec.Body.String())

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=42", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWhatsAppInboundQueuesKnownSender(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.Insert(context.Background(), domain.NewLead("ann@example.com", "Ann", "+14155552671", time.Now())))

	body := `{"object":"whatsapp_business_account","entry":[{"changes":[{"field":"messages","value":{"messages":[
		{"from":"14155552671","id":"wamid.1","type":"text"},
		{"from":"14155550000","id":"wamid.2","type":"text"}
	]}}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/whatsapp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queued":1}`, rec.Body.String())
	require.Len(t, env.queue.payloads, 1)
	require.Equal(t, "ann@example.com", env.queue.payloads[0].Email)
	require.Equal(t, reasonWhatsAppInbound, env.queue.payloads[0].Reason)
}

func TestExtractFields(t *testing.T) {
	got := ExtractFields(map[string]string{
		"Full Name":    "Ann Marie Smith",
		"E-mail":       "ann@example.com",
		"Phone Number": "(415) 555-2671",
		"message":      "hello",
	})
	require.Equal(t, "Ann", got.FirstName)
	require.Equal(t, "Marie Smith", got.LastName)
	require.Equal(t, "ann@example.com", got.Email)
	require.Equal(t, "+14155552671", got.Phone)
}
