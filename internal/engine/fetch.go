package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/allaspectsdev/otel-api-scraper/internal/errs"
)

// windowResult is one window's decoded payload and extracted records,
// or the error that window failed with. A failed window still may have
// partial records from a sibling window emitted (best-effort); the tick as
// a whole is marked errored and the watermark is not advanced.
type windowResult struct {
	window     Window
	rawPayload interface{}
	records    []map[string]interface{}
	err        error
}

// fetchWindows fans out one HTTP request per window, gated by both the
// source's own semaphore and the process-wide gateway semaphore, and
// decodes + extracts each response independently. Window failures do not
// stop sibling windows from completing.
func (e *Engine) fetchWindows(ctx context.Context, sr *sourceRuntime, windows []Window) []windowResult {
	results := make([]windowResult, len(windows))

	g, gctx := errgroup.WithContext(ctx)
	for i, w := range windows {
		i, w := i, w
		g.Go(func() error {
			if err := sr.sem.Acquire(gctx, 1); err != nil {
				results[i] = windowResult{window: w, err: errs.TransportError(gctx.Err())}
				return nil
			}
			defer sr.sem.Release(1)

			results[i] = e.fetchOneWindow(gctx, sr, w)
			return nil
		})
	}
	// errgroup's Go funcs never return a non-nil error (each failure is
	// captured per-window in results), so Wait cannot fail here.
	_ = g.Wait()
	return results
}

func (e *Engine) fetchOneWindow(ctx context.Context, sr *sourceRuntime, w Window) windowResult {
	authHeaders, err := sr.auth.Headers(ctx, e.gateway.TokenClient())
	if err != nil {
		return windowResult{window: w, err: err}
	}

	req, err := buildRequest(sr.cfg, w, authHeaders, sr.cfg.Frequency, e.scraper.DefaultTimeFormat)
	if err != nil {
		return windowResult{window: w, err: err}
	}

	var body *bytes.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}

	resp, err := e.gateway.Request(ctx, req.method, req.url, req.headers, req.params, req.rawParams, readerOrNil(body))
	if err != nil {
		return windowResult{window: w, err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return windowResult{window: w, err: errs.TransportError(fmt.Errorf("scrape request to %s returned status %d", req.url, resp.StatusCode))}
	}

	var payload interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return windowResult{window: w, err: errs.ShapeMismatch(fmt.Sprintf("decode response body: %v", err))}
	}

	if err := validateRootReferences(sr.cfg, payload); err != nil {
		return windowResult{window: w, err: err}
	}

	records, err := extractRecords(sr.cfg, payload)
	if err != nil {
		return windowResult{window: w, err: err}
	}

	return windowResult{window: w, rawPayload: payload, records: records}
}

// readerOrNil avoids the typed-nil-interface trap: passing a nil
// *bytes.Reader through an io.Reader parameter produces a non-nil
// interface value, which would defeat gateway.Request's `body != nil`
// check.
func readerOrNil(r *bytes.Reader) io.Reader {
	if r == nil {
		return nil
	}
	return r
}
