package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/allaspectsdev/otel-api-scraper/internal/config"
	"github.com/allaspectsdev/otel-api-scraper/internal/errs"
)

// azureADAuth acquires bearer tokens via the Azure AD v2 client-credentials
// grant. Unlike the generic oauth strategy, the token endpoint and form
// shape are fixed by the Azure AD contract rather than configurable.
type azureADAuth struct {
	cfg *config.AuthConfig

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newAzureADAuth(cfg *config.AuthConfig) *azureADAuth {
	return &azureADAuth{cfg: cfg}
}

func (a *azureADAuth) Headers(ctx context.Context, client *http.Client) (map[string]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && time.Now().Add(tokenExpiryBuffer).Before(a.expiresAt) {
		return map[string]string{"Authorization": "Bearer " + a.token}, nil
	}

	resource := a.cfg.Resource
	if resource == "" {
		resource = "https://management.azure.com/.default"
	}
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {a.cfg.ClientID},
		"client_secret": {a.cfg.ClientSecret},
		"scope":         {resource},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errs.TransportError(fmt.Errorf("auth: build azuread token request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, errs.TransportError(fmt.Errorf("auth: azuread token request: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, errs.AuthFailure(fmt.Errorf("auth: azuread token endpoint returned %d", resp.StatusCode))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errs.AuthFailure(fmt.Errorf("auth: decode azuread token response: %w", err))
	}
	if payload.AccessToken == "" {
		return nil, errs.AuthFailure(fmt.Errorf("auth: azuread token response missing access_token"))
	}

	ttl := defaultTokenLifetime
	if payload.ExpiresIn > 0 {
		ttl = time.Duration(payload.ExpiresIn) * time.Second
	}
	a.token = payload.AccessToken
	a.expiresAt = time.Now().Add(ttl)

	return map[string]string{"Authorization": "Bearer " + a.token}, nil
}
