// Package googleauth builds authenticated HTTP clients for Google Workspace APIs.
// This is part of the platform layer and contains no business logic.
package googleauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2/google"

	"leadsync_backend/platform/config"
)

// ErrNotConfigured is returned when no service account is configured.
var ErrNotConfigured = errors.New("google service account not configured")

// HTTPClient reads the service-account key and returns a client that acts as
// the impersonated user via domain-wide delegation.
func HTTPClient(ctx context.Context, cfg config.GoogleConfig, scopes ...string) (*http.Client, error) {
	if !cfg.IsGoogleEnabled() {
		return nil, ErrNotConfigured
	}
	key, err := os.ReadFile(cfg.GetGoogleServiceAccountFile())
	if err != nil {
		return nil, fmt.Errorf("read google service account: %w", err)
	}
	return HTTPClientFromJSON(ctx, key, cfg.GetGoogleImpersonateUser(), scopes...)
}

// HTTPClientFromJSON parses a service-account key. An empty subject uses the
// service account's own identity.
func HTTPClientFromJSON(ctx context.Context, key []byte, subject string, scopes ...string) (*http.Client, error) {
	jwtCfg, err := google.JWTConfigFromJSON(key, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse google service account: %w", err)
	}
	jwtCfg.Subject = subject
	return jwtCfg.Client(ctx), nil
}
