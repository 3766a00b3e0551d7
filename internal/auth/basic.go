package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/allaspectsdev/otel-api-scraper/internal/config"
)

type basicAuth struct {
	cfg *config.AuthConfig
}

func (b *basicAuth) Headers(context.Context, *http.Client) (map[string]string, error) {
	creds := base64.StdEncoding.EncodeToString([]byte(b.cfg.Username + ":" + b.cfg.Password))
	return map[string]string{"Authorization": "Basic " + creds}, nil
}

type apiKeyAuth struct {
	cfg *config.AuthConfig
}

func (a *apiKeyAuth) Headers(context.Context, *http.Client) (map[string]string, error) {
	if a.cfg.KeyName == "" {
		return nil, fmt.Errorf("auth: apikey strategy requires keyName")
	}
	return map[string]string{a.cfg.KeyName: a.cfg.KeyValue}, nil
}

func errUnknownAuthType(t string) error {
	return fmt.Errorf("auth: unknown auth type %q", t)
}
