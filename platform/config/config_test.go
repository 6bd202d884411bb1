package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/leadsync")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("SMTP_HOST", "")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GetPollInterval() != time.Minute {
		t.Fatalf("expected 1m poll interval, got %s", cfg.GetPollInterval())
	}
	if cfg.GetSheetsRange() != "Sheet1!A1:G" {
		t.Fatalf("unexpected sheets range %q", cfg.GetSheetsRange())
	}
	if cfg.GetCalendarLookahead() != 30*24*time.Hour {
		t.Fatalf("unexpected lookahead %s", cfg.GetCalendarLookahead())
	}
	if cfg.GetDatabaseMaxConns() != 8 || cfg.GetDatabaseMinConns() != 1 {
		t.Fatalf("unexpected pool bounds %d..%d", cfg.GetDatabaseMinConns(), cfg.GetDatabaseMaxConns())
	}
	if cfg.IsHubSpotEnabled() || cfg.IsGoogleEnabled() || cfg.IsMinIOEnabled() || cfg.IsAMQPEnabled() {
		t.Fatalf("optional integrations should be disabled by default")
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when DATABASE_URL is missing")
	}
}

func TestLoadRejectsInvertedPoolBounds(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DB_MAX_CONNS", "2")
	t.Setenv("DB_MIN_CONNS", "4")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DB_MIN_CONNS exceeds DB_MAX_CONNS")
	}
}

func TestLoadRequiresSenderWhenSMTPConfigured(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_FROM_EMAIL", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when SMTP_FROM_EMAIL is missing")
	}
}

func TestCalendarOwnerFallsBackToImpersonatedUser(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "/secrets/sa.json")
	t.Setenv("GOOGLE_IMPERSONATE_USER", "Sales@Example.com")
	t.Setenv("GOOGLE_CALENDAR_OWNER_EMAIL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.GetGoogleCalendarOwnerEmail(); got != "sales@example.com" {
		t.Fatalf("expected impersonated user as owner, got %q", got)
	}
}

func TestValidateAPI(t *testing.T) {
	cfg := &Config{}
	if err := cfg.ValidateAPI(); err == nil {
		t.Fatalf("expected error without JWT secret")
	}
	cfg.JWTAccessSecret = "secret"
	cfg.WebhookAPIKey = "key"
	if err := cfg.ValidateAPI(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSplitCSV(t *testing.T) {
	got := splitCSV(" a, ,b ,c")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected split result %v", got)
	}
}
