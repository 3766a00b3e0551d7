// Package admin implements the read-only + manual-trigger HTTP surface
// described as an external collaborator: a thin shim over the engine, not
// part of the core scrape loop.
package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/allaspectsdev/otel-api-scraper/internal/config"
	"github.com/allaspectsdev/otel-api-scraper/internal/engine"
)

// Server is the admin HTTP server. It never holds scrape state itself; every
// handler reads through to the engine.
type Server struct {
	router  chi.Router
	httpSrv *http.Server
	log     zerolog.Logger
}

// sourceSummary is the shape returned by GET /sources.
type sourceSummary struct {
	Name      string `json:"name"`
	Frequency string `json:"frequency"`
}

// New builds a Server bound to addr, serving the engine's read-only
// configuration and a manual per-source scrape trigger. If secretEnvVar is
// non-empty, every request must carry a matching "Authorization: Bearer
// <secret>" header.
func New(eng *engine.Engine, addr, secretEnvVar string, log zerolog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))
	if secretEnvVar != "" {
		r.Use(requireSecret(secretEnvVar))
	}

	r.Get("/health", handleHealth)
	r.Get("/sources", handleListSources(eng))
	r.Get("/sources/{name}", handleGetSource(eng))
	r.Post("/sources/{name}/scrape", handleTriggerScrape(eng, log))

	s := &Server{
		router: r,
		log:    log,
	}
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start blocks until the server is shut down or hits a fatal error.
func (s *Server) Start() error {
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("admin server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("admin request")
		})
	}
}

// requireSecret validates a Bearer token using constant-time comparison,
// reading the expected value from envVar on every request so rotating it
// takes effect without a restart. Requests without a token receive 401;
// requests with a wrong token receive 403.
func requireSecret(envVar string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if authHeader == "" || !strings.HasPrefix(authHeader, prefix) {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
				return
			}

			want := []byte(os.Getenv(envVar))
			provided := []byte(strings.TrimPrefix(authHeader, prefix))
			if len(want) == 0 || subtle.ConstantTimeCompare(provided, want) != 1 {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid token"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleListSources(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		names := eng.SourceNames()
		summaries := make([]sourceSummary, 0, len(names))
		for _, name := range names {
			src, ok := eng.SourceConfig(name)
			if !ok {
				continue
			}
			summaries = append(summaries, sourceSummary{Name: src.Name, Frequency: src.Frequency})
		}
		writeJSON(w, http.StatusOK, summaries)
	}
}

func handleGetSource(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		src, ok := eng.SourceConfig(name)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "source not found"})
			return
		}
		writeJSON(w, http.StatusOK, sourceDetail(src))
	}
}

func handleTriggerScrape(eng *engine.Engine, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if _, ok := eng.SourceConfig(name); !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "source not found"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
		defer cancel()
		if err := eng.ScrapeSource(ctx, name); err != nil {
			log.Warn().Err(err).Str("source", name).Msg("manual scrape trigger failed")
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "triggered"})
	}
}

// sourceDetail is the shape returned by GET /sources/{name}: the full
// source config, as configured (secrets included, since this endpoint is
// already gated by the admin secret).
func sourceDetail(src config.SourceConfig) map[string]interface{} {
	data, err := json.Marshal(src)
	if err != nil {
		return map[string]interface{}{"name": src.Name}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]interface{}{"name": src.Name}
	}
	return m
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
