// Package auth implements the per-source authentication strategies: static
// basic/api-key headers, OAuth2 password-grant-style runtime token
// acquisition with expiry-aware caching, and Azure AD client-credential
// acquisition.
package auth

import (
	"context"
	"net/http"

	"github.com/allaspectsdev/otel-api-scraper/internal/config"
	"github.com/allaspectsdev/otel-api-scraper/internal/errs"
)

// Strategy produces the HTTP headers to attach to an outbound scrape
// request, acquiring and caching any runtime credentials it needs.
type Strategy interface {
	Headers(ctx context.Context, client *http.Client) (map[string]string, error)
}

// New builds the Strategy described by cfg. A nil cfg yields a strategy
// that contributes no headers.
func New(cfg *config.AuthConfig) (Strategy, error) {
	if cfg == nil {
		return noAuth{}, nil
	}
	switch cfg.Type {
	case "basic":
		return &basicAuth{cfg: cfg}, nil
	case "apikey":
		return &apiKeyAuth{cfg: cfg}, nil
	case "oauth":
		return newOAuthAuth(cfg), nil
	case "azuread":
		return newAzureADAuth(cfg), nil
	default:
		return nil, errs.ConfigInvalid(errUnknownAuthType(cfg.Type))
	}
}

type noAuth struct{}

func (noAuth) Headers(context.Context, *http.Client) (map[string]string, error) {
	return nil, nil
}
