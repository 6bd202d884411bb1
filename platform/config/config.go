// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
	GetDatabaseMaxConns() int
	GetDatabaseMinConns() int
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SMTPConfig provides settings for outbound email.
type SMTPConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetSMTPFromEmail() string
	GetSMTPFromName() string
	IsSMTPEnabled() bool
}

// WhatsAppConfig provides settings for the WhatsApp Cloud API.
type WhatsAppConfig interface {
	GetWhatsAppAPIURL() string
	GetWhatsAppToken() string
	GetWhatsAppPhoneNumberID() string
	GetWhatsAppTemplateLanguage() string
	GetWhatsAppVerifyToken() string
}

// HubSpotConfig provides settings for the CRM adapter.
type HubSpotConfig interface {
	GetHubSpotBaseURL() string
	GetHubSpotToken() string
	IsHubSpotEnabled() bool
}

// GoogleConfig provides service account settings shared by the calendar and sheet adapters.
type GoogleConfig interface {
	GetGoogleServiceAccountFile() string
	GetGoogleImpersonateUser() string
	GetGoogleCalendarID() string
	GetGoogleCalendarOwnerEmail() string
	GetCalendarLookahead() time.Duration
	GetSheetsSpreadsheetID() string
	GetSheetsRange() string
	IsGoogleEnabled() bool
}

// PollConfig provides settings for the reconciliation loop.
type PollConfig interface {
	GetPollInterval() time.Duration
	GetExternalCallTimeout() time.Duration
	GetTickLockTTL() time.Duration
}

// SchedulerConfig provides settings for the asynq task queue.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// MinIOConfig provides settings for MinIO S3-compatible storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketSheetSnapshots() string
	IsMinIOEnabled() bool
}

// AMQPConfig provides settings for the lifecycle event forwarder.
type AMQPConfig interface {
	GetAMQPURL() string
	GetAMQPExchange() string
	IsAMQPEnabled() bool
}

// WebhookConfig provides settings for inbound lead producers.
type WebhookConfig interface {
	GetWebhookAPIKey() string
}

// NotificationConfig provides settings for rendering and sending lead notifications.
type NotificationConfig interface {
	GetRescheduleLink() string
	GetNotifyRatePerSecond() float64
	GetDisplayTimezone() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                    string
	HTTPAddr               string
	MetricsAddr            string
	DatabaseURL            string
	DatabaseMaxConns       int
	DatabaseMinConns       int
	JWTAccessSecret        string
	CORSAllowAll           bool
	CORSOrigins            []string
	CORSAllowCreds         bool
	SMTPHost               string
	SMTPPort               int
	SMTPUsername           string
	SMTPPassword           string
	SMTPFromEmail          string
	SMTPFromName           string
	WhatsAppAPIURL         string
	WhatsAppToken          string
	WhatsAppPhoneNumberID  string
	WhatsAppTemplateLang   string
	WhatsAppVerifyToken    string
	HubSpotBaseURL         string
	HubSpotToken           string
	GoogleServiceAccount   string
	GoogleImpersonateUser  string
	GoogleCalendarID       string
	GoogleCalendarOwner    string
	CalendarLookahead      time.Duration
	SheetsSpreadsheetID    string
	SheetsRange            string
	PollInterval           time.Duration
	ExternalCallTimeout    time.Duration
	TickLockTTL            time.Duration
	RedisURL               string
	RedisTLSInsecure       bool
	AsynqQueueName         string
	AsynqConcurrency       int
	MinIOEndpoint          string
	MinIOAccessKey         string
	MinIOSecretKey         string
	MinIOUseSSL            bool
	MinioBucketSnapshots   string
	AMQPURL                string
	AMQPExchange           string
	WebhookAPIKey          string
	RescheduleLink         string
	NotifyRatePerSecond    float64
	DisplayTimezone        string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string   { return c.DatabaseURL }
func (c *Config) GetDatabaseMaxConns() int { return c.DatabaseMaxConns }
func (c *Config) GetDatabaseMinConns() int { return c.DatabaseMinConns }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// GetMetricsAddr is where the scheduler process serves /metrics. Empty disables it.
func (c *Config) GetMetricsAddr() string { return c.MetricsAddr }

// SMTPConfig implementation
func (c *Config) GetSMTPHost() string      { return c.SMTPHost }
func (c *Config) GetSMTPPort() int         { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string  { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string  { return c.SMTPPassword }
func (c *Config) GetSMTPFromEmail() string { return c.SMTPFromEmail }
func (c *Config) GetSMTPFromName() string  { return c.SMTPFromName }
func (c *Config) IsSMTPEnabled() bool      { return c.SMTPHost != "" }

// WhatsAppConfig implementation
func (c *Config) GetWhatsAppAPIURL() string           { return c.WhatsAppAPIURL }
func (c *Config) GetWhatsAppToken() string            { return c.WhatsAppToken }
func (c *Config) GetWhatsAppPhoneNumberID() string    { return c.WhatsAppPhoneNumberID }
func (c *Config) GetWhatsAppTemplateLanguage() string { return c.WhatsAppTemplateLang }
func (c *Config) GetWhatsAppVerifyToken() string      { return c.WhatsAppVerifyToken }

// HubSpotConfig implementation
func (c *Config) GetHubSpotBaseURL() string { return c.HubSpotBaseURL }
func (c *Config) GetHubSpotToken() string   { return c.HubSpotToken }
func (c *Config) IsHubSpotEnabled() bool    { return c.HubSpotToken != "" }

// GoogleConfig implementation
func (c *Config) GetGoogleServiceAccountFile() string  { return c.GoogleServiceAccount }
func (c *Config) GetGoogleImpersonateUser() string     { return c.GoogleImpersonateUser }
func (c *Config) GetGoogleCalendarID() string          { return c.GoogleCalendarID }
func (c *Config) GetGoogleCalendarOwnerEmail() string  { return c.GoogleCalendarOwner }
func (c *Config) GetCalendarLookahead() time.Duration  { return c.CalendarLookahead }
func (c *Config) GetSheetsSpreadsheetID() string       { return c.SheetsSpreadsheetID }
func (c *Config) GetSheetsRange() string               { return c.SheetsRange }
func (c *Config) IsGoogleEnabled() bool                { return c.GoogleServiceAccount != "" }

// PollConfig implementation
func (c *Config) GetPollInterval() time.Duration        { return c.PollInterval }
func (c *Config) GetExternalCallTimeout() time.Duration { return c.ExternalCallTimeout }
func (c *Config) GetTickLockTTL() time.Duration         { return c.TickLockTTL }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string        { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool  { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string  { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int   { return c.AsynqConcurrency }

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string            { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string           { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string           { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool                { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketSheetSnapshots() string { return c.MinioBucketSnapshots }
func (c *Config) IsMinIOEnabled() bool                { return c.MinIOEndpoint != "" }

// AMQPConfig implementation
func (c *Config) GetAMQPURL() string      { return c.AMQPURL }
func (c *Config) GetAMQPExchange() string { return c.AMQPExchange }
func (c *Config) IsAMQPEnabled() bool     { return c.AMQPURL != "" }

// WebhookConfig implementation
func (c *Config) GetWebhookAPIKey() string { return c.WebhookAPIKey }

// NotificationConfig implementation
func (c *Config) GetRescheduleLink() string        { return c.RescheduleLink }
func (c *Config) GetNotifyRatePerSecond() float64 { return c.NotifyRatePerSecond }
func (c *Config) GetDisplayTimezone() string      { return c.DisplayTimezone }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	impersonate := getEnv("GOOGLE_IMPERSONATE_USER", "")

	cfg := &Config{
		Env:                   getEnv("APP_ENV", "development"),
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr:           getEnv("METRICS_ADDR", ":9090"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		DatabaseMaxConns:      mustInt(getEnv("DB_MAX_CONNS", "8")),
		DatabaseMinConns:      mustInt(getEnv("DB_MIN_CONNS", "1")),
		JWTAccessSecret:       getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:          corsAllowAll,
		CORSOrigins:           corsOrigins,
		CORSAllowCreds:        strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "false"), "true"),
		SMTPHost:              getEnv("SMTP_HOST", ""),
		SMTPPort:              mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:          getEnv("SMTP_USERNAME", ""),
		SMTPPassword:          getEnv("SMTP_PASSWORD", ""),
		SMTPFromEmail:         getEnv("SMTP_FROM_EMAIL", ""),
		SMTPFromName:          getEnv("SMTP_FROM_NAME", "Leadsync"),
		WhatsAppAPIURL:        getEnv("WHATSAPP_API_URL", "https://graph.facebook.com/v21.0"),
		WhatsAppToken:         getEnv("WHATSAPP_TOKEN", ""),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppTemplateLang:  getEnv("WHATSAPP_TEMPLATE_LANGUAGE", "en_US"),
		WhatsAppVerifyToken:   getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		HubSpotBaseURL:        getEnv("HUBSPOT_BASE_URL", "https://api.hubapi.com"),
		HubSpotToken:          getEnv("HUBSPOT_PRIVATE_TOKEN", ""),
		GoogleServiceAccount:  getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleImpersonateUser: impersonate,
		GoogleCalendarID:      getEnv("GOOGLE_CALENDAR_ID", "primary"),
		GoogleCalendarOwner:   strings.ToLower(firstNonEmpty(getEnv("GOOGLE_CALENDAR_OWNER_EMAIL", ""), impersonate)),
		CalendarLookahead:     mustDuration(getEnv("CALENDAR_LOOKAHEAD", "720h")),
		SheetsSpreadsheetID:   getEnv("SHEETS_SPREADSHEET_ID", ""),
		SheetsRange:           getEnv("SHEETS_RANGE", "Sheet1!A1:G"),
		PollInterval:          mustDuration(getEnv("POLL_INTERVAL", "1m")),
		ExternalCallTimeout:   mustDuration(getEnv("EXTERNAL_CALL_TIMEOUT", "20s")),
		TickLockTTL:           mustDuration(getEnv("TICK_LOCK_TTL", "10m")),
		RedisURL:              getEnv("REDIS_URL", ""),
		RedisTLSInsecure:      strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:        getEnv("ASYNQ_QUEUE", "leadsync"),
		AsynqConcurrency:      mustInt(getEnv("ASYNQ_CONCURRENCY", "4")),
		MinIOEndpoint:         getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:        getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:        getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:           strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketSnapshots:  getEnv("MINIO_BUCKET_SHEET_SNAPSHOTS", "sheet-snapshots"),
		AMQPURL:               getEnv("AMQP_URL", ""),
		AMQPExchange:          getEnv("AMQP_EXCHANGE", "ex.leads"),
		WebhookAPIKey:         getEnv("WEBHOOK_API_KEY", ""),
		RescheduleLink:        getEnv("RESCHEDULE_LINK", ""),
		NotifyRatePerSecond:   mustFloat(getEnv("NOTIFY_RATE_PER_SEC", "5")),
		DisplayTimezone:       getEnv("DISPLAY_TIMEZONE", "UTC"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DatabaseMaxConns < 1 || c.DatabaseMinConns < 0 || c.DatabaseMinConns > c.DatabaseMaxConns {
		return fmt.Errorf("DB_MAX_CONNS must be positive and at least DB_MIN_CONNS")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be a positive duration")
	}
	if c.ExternalCallTimeout <= 0 {
		return fmt.Errorf("EXTERNAL_CALL_TIMEOUT must be a positive duration")
	}
	if c.IsSMTPEnabled() && c.SMTPFromEmail == "" {
		return fmt.Errorf("SMTP_FROM_EMAIL is required when SMTP_HOST is set")
	}
	if c.IsGoogleEnabled() && c.GoogleCalendarOwner == "" {
		return fmt.Errorf("GOOGLE_CALENDAR_OWNER_EMAIL or GOOGLE_IMPERSONATE_USER is required when GOOGLE_SERVICE_ACCOUNT_FILE is set")
	}
	if c.CORSAllowAll && c.CORSAllowCreds {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if _, err := time.LoadLocation(c.DisplayTimezone); err != nil {
		return fmt.Errorf("DISPLAY_TIMEZONE: %w", err)
	}
	return nil
}

// ValidateAPI checks the settings only the HTTP process depends on.
func (c *Config) ValidateAPI() error {
	if c.JWTAccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if c.WebhookAPIKey == "" {
		return fmt.Errorf("WEBHOOK_API_KEY is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
