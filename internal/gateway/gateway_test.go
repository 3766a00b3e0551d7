package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/allaspectsdev/otel-api-scraper/internal/errs"
)

func TestBuildURL(t *testing.T) {
	cases := []struct{ base, endpoint, want string }{
		{"https://api.example.com", "v1/events", "https://api.example.com/v1/events"},
		{"https://api.example.com/", "/v1/events", "https://api.example.com/v1/events"},
		{"https://api.example.com/", "", "https://api.example.com"},
	}
	for _, c := range cases {
		if got := BuildURL(c.base, c.endpoint); got != c.want {
			t.Errorf("BuildURL(%q, %q) = %q, want %q", c.base, c.endpoint, got, c.want)
		}
	}
}

func TestRequest_RejectsPlaintextWhenTLSEnforced(t *testing.T) {
	g := New(2, true)
	_, err := g.Request(context.Background(), http.MethodGet, "http://insecure.example.com", nil, nil, nil, nil)
	if !errs.Is(err, errs.KindTransportError) {
		t.Fatalf("expected TRANSPORT_ERROR, got %v", err)
	}
}

func TestRequest_RetriesRetryableStatusThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := New(2, false, WithRetryPolicy(RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}))
	resp, err := g.Request(context.Background(), http.MethodGet, srv.URL, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d", resp.StatusCode)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRequest_POSTNeverRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := New(2, false, WithRetryPolicy(RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}))
	resp, err := g.Request(context.Background(), http.MethodPost, srv.URL, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	defer resp.Body.Close()
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly 1 attempt for POST, got %d", calls)
	}
}

func TestRequest_GlobalSemaphoreBoundsConcurrency(t *testing.T) {
	const limit = 2
	var inFlight, maxObserved int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			cur := atomic.LoadInt32(&maxObserved)
			if n <= cur || atomic.CompareAndSwapInt32(&maxObserved, cur, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := New(limit, false)
	done := make(chan struct{}, 6)
	for i := 0; i < 6; i++ {
		go func() {
			resp, err := g.Request(context.Background(), http.MethodGet, srv.URL, nil, nil, nil, nil)
			if err == nil {
				resp.Body.Close()
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 6; i++ {
		<-done
	}
	if atomic.LoadInt32(&maxObserved) > limit {
		t.Fatalf("observed %d concurrent requests, want <= %d", maxObserved, limit)
	}
}

func TestMergeQuery_RawParamsAppendedVerbatim(t *testing.T) {
	params := url.Values{"unit": {"minutes"}}
	got, err := mergeQuery("https://api.example.com/scrape", params, []string{"value=-5"})
	if err != nil {
		t.Fatalf("mergeQuery: %v", err)
	}
	want := "https://api.example.com/scrape?unit=minutes&value=-5"
	if got != want {
		t.Fatalf("mergeQuery = %q, want %q", got, want)
	}
}

func TestRetryAfterDuration_SecondsAndHTTPDate(t *testing.T) {
	if d := retryAfterDuration("5"); d != 5*time.Second {
		t.Fatalf("expected 5s, got %v", d)
	}
	future := time.Now().Add(10 * time.Second).UTC().Format(http.TimeFormat)
	d := retryAfterDuration(future)
	if d <= 0 || d > 11*time.Second {
		t.Fatalf("unexpected parsed HTTP-date duration: %v", d)
	}
	if d := retryAfterDuration(""); d != 0 {
		t.Fatalf("expected 0 for absent header, got %v", d)
	}
}
