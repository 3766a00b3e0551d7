package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/allaspectsdev/otel-api-scraper/internal/config"
)

func TestBasicAuth_Headers(t *testing.T) {
	strat, err := New(&config.AuthConfig{Type: "basic", Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	headers, err := strat.Headers(context.Background(), http.DefaultClient)
	if err != nil {
		t.Fatalf("Headers: %v", err)
	}
	if headers["Authorization"] != "Basic dTpw" {
		t.Errorf("got %q", headers["Authorization"])
	}
}

func TestAPIKeyAuth_Headers(t *testing.T) {
	strat, err := New(&config.AuthConfig{Type: "apikey", KeyName: "X-Api-Key", KeyValue: "secret"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	headers, err := strat.Headers(context.Background(), http.DefaultClient)
	if err != nil {
		t.Fatalf("Headers: %v", err)
	}
	if headers["X-Api-Key"] != "secret" {
		t.Errorf("got %q", headers["X-Api-Key"])
	}
}

func TestOAuthAuth_StaticToken(t *testing.T) {
	strat, err := New(&config.AuthConfig{Type: "oauth", Token: "abc123"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	headers, err := strat.Headers(context.Background(), http.DefaultClient)
	if err != nil {
		t.Fatalf("Headers: %v", err)
	}
	if headers["Authorization"] != "Bearer abc123" {
		t.Errorf("got %q", headers["Authorization"])
	}
}

func TestOAuthAuth_RuntimeAcquisition(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "runtime-token",
			"expires_in":   3600,
		})
	}))
	defer server.Close()

	strat, err := New(&config.AuthConfig{
		Type:             "oauth",
		Username:         "u",
		Password:         "p",
		GetTokenEndpoint: server.URL,
		TokenKey:         "access_token",
		BodyData:         &config.OAuthBodyData{Type: "json", Data: map[string]interface{}{"grant_type": "password"}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	headers, err := strat.Headers(context.Background(), server.Client())
	if err != nil {
		t.Fatalf("Headers: %v", err)
	}
	if headers["Authorization"] != "Bearer runtime-token" {
		t.Errorf("got %q", headers["Authorization"])
	}
}

func TestAzureADAuth_ClientCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "azure-token",
			"expires_in":   1800,
		})
	}))
	defer server.Close()

	strat, err := New(&config.AuthConfig{
		Type:          "azuread",
		ClientID:      "cid",
		ClientSecret:  "secret",
		TokenEndpoint: server.URL,
		Resource:      "https://example.com/.default",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	headers, err := strat.Headers(context.Background(), server.Client())
	if err != nil {
		t.Fatalf("Headers: %v", err)
	}
	if headers["Authorization"] != "Bearer azure-token" {
		t.Errorf("got %q", headers["Authorization"])
	}
}

func TestNew_UnknownType(t *testing.T) {
	if _, err := New(&config.AuthConfig{Type: "bogus"}); err == nil {
		t.Fatal("expected error for unknown auth type")
	}
}

func TestNew_NilConfig(t *testing.T) {
	strat, err := New(nil)
	if err != nil {
		t.Fatalf("New(nil): %v", err)
	}
	headers, err := strat.Headers(context.Background(), http.DefaultClient)
	if err != nil || headers != nil {
		t.Fatalf("expected no headers, got %v, %v", headers, err)
	}
}
