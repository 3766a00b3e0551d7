// Package gateway is the process-wide HTTP admission gate every source's
// fetches pass through. It owns the single global concurrency semaphore,
// TLS enforcement, and the idempotent-GET retry policy.
package gateway

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/allaspectsdev/otel-api-scraper/internal/errs"
)

const (
	defaultRequestTimeout = 60 * time.Second
	tokenRequestTimeout   = 20 * time.Second
)

// Gateway is a single process-wide HTTP client gated by a global semaphore.
// It is safe for concurrent use by every source's fetch goroutines.
type Gateway struct {
	client      *http.Client
	sem         *semaphore.Weighted
	enforceTLS  bool
	retryPolicy RetryPolicy
}

// Option configures a Gateway at construction time.
type Option func(*Gateway)

// WithRetryPolicy overrides the default retry policy, primarily for tests.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(g *Gateway) { g.retryPolicy = p }
}

// New builds a Gateway with the given global concurrency ceiling and TLS
// enforcement policy.
func New(maxGlobalConcurrency int, enforceTLS bool, opts ...Option) *Gateway {
	g := &Gateway{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        maxGlobalConcurrency * 2,
				MaxIdleConnsPerHost: maxGlobalConcurrency,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		sem:         semaphore.NewWeighted(int64(maxGlobalConcurrency)),
		enforceTLS:  enforceTLS,
		retryPolicy: DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// BuildURL joins base and endpoint with exactly one slash between them,
// never double-slashing and never dropping the separator.
func BuildURL(base, endpoint string) string {
	b := strings.TrimRight(base, "/")
	e := strings.TrimLeft(endpoint, "/")
	if e == "" {
		return b
	}
	return b + "/" + e
}

// Request issues method to rawURL with the given headers and query
// parameters merged in, retrying idempotent GETs per the gateway's retry
// policy. params are URL-encoded; rawParams are appended to the query
// string verbatim (used for extraArgs.noEncodeValue and unencoded time
// keys). body, if non-nil, is sent as-is (the caller sets Content-Type via
// headers).
func (g *Gateway) Request(ctx context.Context, method, rawURL string, headers map[string]string, params url.Values, rawParams []string, body io.Reader) (*http.Response, error) {
	if g.enforceTLS && strings.HasPrefix(strings.ToLower(rawURL), "http://") {
		return nil, errs.TransportError(errPlaintextRejected(rawURL))
	}

	fullURL, err := mergeQuery(rawURL, params, rawParams)
	if err != nil {
		return nil, errs.TransportError(err)
	}

	var bodyBytes []byte
	if body != nil {
		bodyBytes, err = io.ReadAll(body)
		if err != nil {
			return nil, errs.TransportError(err)
		}
	}

	retryable := method == http.MethodGet
	timeout := defaultRequestTimeout

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, errs.TransportError(ctx.Err())
	}
	defer g.sem.Release(1)

	if !retryable {
		return g.doOnce(ctx, method, fullURL, headers, bodyBytes, timeout)
	}
	return g.doWithRetry(ctx, method, fullURL, headers, bodyBytes, timeout)
}

// TokenClient returns an *http.Client sharing this gateway's transport but
// scoped to the shorter token-endpoint timeout, for auth strategies that
// acquire bearer tokens at runtime (internal/auth's Strategy.Headers takes
// a plain *http.Client). Token requests are not retried: a non-2xx or
// unusable token response surfaces immediately as AUTH_FAILURE, and a
// failed request as TRANSPORT_ERROR, for the current tick.
func (g *Gateway) TokenClient() *http.Client {
	return &http.Client{
		Transport: g.client.Transport,
		Timeout:   tokenRequestTimeout,
	}
}

func (g *Gateway) doOnce(ctx context.Context, method, fullURL string, headers map[string]string, body []byte, timeout time.Duration) (*http.Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := g.send(reqCtx, method, fullURL, headers, body)
	if err != nil {
		return nil, errs.TransportError(err)
	}
	return resp, nil
}

func (g *Gateway) doWithRetry(ctx context.Context, method, fullURL string, headers map[string]string, body []byte, timeout time.Duration) (*http.Response, error) {
	var lastErr error
	var retryAfter time.Duration
	for attempt := 0; attempt < g.retryPolicy.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepWithContext(ctx, g.retryPolicy.delayFor(attempt, retryAfter)); err != nil {
				return nil, errs.TransportError(err)
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := g.send(reqCtx, method, fullURL, headers, body)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		if !isRetryableStatus(resp.StatusCode) {
			return resp, nil
		}

		retryAfter = retryAfterDuration(resp.Header.Get("Retry-After"))
		resp.Body.Close()
		lastErr = errUnretriableAfterAttempts(resp.StatusCode)
	}
	return nil, errs.TransportError(lastErr)
}

func (g *Gateway) send(ctx context.Context, method, fullURL string, headers map[string]string, body []byte) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = newBytesReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return g.client.Do(req)
}

// Close releases the gateway's idle connections. Safe to call once at
// shutdown.
func (g *Gateway) Close() error {
	g.client.CloseIdleConnections()
	return nil
}

func newBytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

// mergeQuery appends params (URL-encoded) and rawParams (verbatim query
// segments, for extraArgs.noEncodeValue and non-URL-encoded time keys) to
// rawURL's existing query string.
func mergeQuery(rawURL string, params url.Values, rawParams []string) (string, error) {
	if len(params) == 0 && len(rawParams) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	encoded := q.Encode()
	if len(rawParams) == 0 {
		u.RawQuery = encoded
		return u.String(), nil
	}
	parts := make([]string, 0, len(rawParams)+1)
	if encoded != "" {
		parts = append(parts, encoded)
	}
	parts = append(parts, rawParams...)
	u.RawQuery = strings.Join(parts, "&")
	return u.String(), nil
}
