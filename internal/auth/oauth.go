package auth

import (
	"bytes"
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
	"github.com/allaspectsdev/otel-api-scraper/internal/extract"
)

// tokenExpiryBuffer is subtracted from a token's reported lifetime so a
// request in flight never races an upstream-side expiry.
const tokenExpiryBuffer = 30 * time.Second

// defaultTokenLifetime is used when a token response carries no
// expires_in field.
const defaultTokenLifetime = 5 * time.Minute

type oauthAuth struct {
	cfg *config.AuthConfig

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newOAuthAuth(cfg *config.AuthConfig) *oauthAuth {
	return &oauthAuth{cfg: cfg}
}

func (o *oauthAuth) Headers(ctx context.Context, client *http.Client) (map[string]string, error) {
	if o.cfg.Token != "" && !o.cfg.Runtime() {
		return map[string]string{"Authorization": "Bearer " + o.cfg.Token}, nil
	}

	token, err := o.cachedToken(ctx, client)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}

// cachedToken returns a cached token if it still has more than
// tokenExpiryBuffer left to live, otherwise acquires a fresh one under
// mutual exclusion so concurrent callers don't stampede the token endpoint.
func (o *oauthAuth) cachedToken(ctx context.Context, client *http.Client) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.token != "" && time.Now().Add(tokenExpiryBuffer).Before(o.expiresAt) {
		return o.token, nil
	}

	token, ttl, err := o.fetchToken(ctx, client)
	if err != nil {
		return "", err
	}
	o.token = token
	o.expiresAt = time.Now().Add(ttl)
	return token, nil
}

func (o *oauthAuth) fetchToken(ctx context.Context, client *http.Client) (string, time.Duration, error) {
	cfg := o.cfg
	method := cfg.GetTokenMethod
	if method == "" {
		method = http.MethodPost
	}

	var data map[string]interface{}
	if cfg.BodyData != nil {
		if m, ok := cfg.BodyData.Data.(map[string]interface{}); ok {
			data = m
		}
	}

	var req *http.Request
	var err error

	if strings.EqualFold(method, http.MethodGet) {
		u, perr := url.Parse(cfg.GetTokenEndpoint)
		if perr != nil {
			return "", 0, errs.TransportError(fmt.Errorf("auth: parse getTokenEndpoint: %w", perr))
		}
		q := u.Query()
		for k, v := range data {
			q.Set(k, fmt.Sprintf("%v", v))
		}
		u.RawQuery = q.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	} else if cfg.BodyData != nil && cfg.BodyData.Type == "json" {
		body, jerr := json.Marshal(data)
		if jerr != nil {
			return "", 0, fmt.Errorf("auth: marshal oauth body: %w", jerr)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, cfg.GetTokenEndpoint, bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		form := url.Values{}
		for k, v := range data {
			form.Set(k, fmt.Sprintf("%v", v))
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, cfg.GetTokenEndpoint, strings.NewReader(form.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return "", 0, errs.TransportError(fmt.Errorf("auth: build token request: %w", err))
	}
	if cfg.Username != "" {
		req.SetBasicAuth(cfg.Username, cfg.Password)
	}
	for k, v := range cfg.TokenHeaders {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", 0, errs.TransportError(fmt.Errorf("auth: token request: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", 0, errs.AuthFailure(fmt.Errorf("auth: token endpoint returned %d", resp.StatusCode))
	}

	var payload map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", 0, errs.AuthFailure(fmt.Errorf("auth: decode token response: %w", err))
	}

	tokenKey := cfg.TokenKey
	if tokenKey == "" {
		tokenKey = "access_token"
	}
	raw, err := extract.LookupPath(payload, payload, tokenKey)
	if err != nil {
		return "", 0, errs.AuthFailure(fmt.Errorf("auth: locate token at %q: %w", tokenKey, err))
	}
	token, ok := raw.(string)
	if !ok || token == "" {
		return "", 0, errs.AuthFailure(fmt.Errorf("auth: token field %q missing or not a string", tokenKey))
	}

	ttl := defaultTokenLifetime
	if expiresIn, ok := payload["expires_in"]; ok {
		if secs, ok := toFloat(expiresIn); ok {
			ttl = time.Duration(secs) * time.Second
		}
	}
	return token, ttl, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
