package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"studio/internal/http/handlers"
	"studio/internal/imagegen"
	"studio/internal/infra"
	"studio/internal/infra/credentials"
	"studio/internal/metrics"
	"studio/internal/studio"
)

type fixedRunner struct{ result imagegen.Result }

func (f fixedRunner) Run(context.Context, imagegen.Mode, string, []imagegen.Attachment) imagegen.Result {
	return f.result
}

func newTestRouter(t *testing.T, opts Options) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	runner := fixedRunner{result: imagegen.Success("data:image/png;base64,QUJD")}
	app := handlers.NewApp(runner, credentials.NewMemoryStore(), studio.NewSessions(runner, 0),
		metrics.NewCollector("studio_test"), *infra.DiscardLogger())
	return NewRouter(ctx, app, opts)
}

func TestRouterServesCoreRoutes(t *testing.T) {
	h := newTestRouter(t, Options{AllowedOrigins: []string{"*"}})

	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/v1/healthz", http.StatusOK},
		{http.MethodGet, "/v1/openapi.json", http.StatusOK},
		{http.MethodGet, "/v1/docs", http.StatusOK},
		{http.MethodGet, "/v1/credentials/gemini", http.StatusOK},
		{http.MethodGet, "/v1/surfaces/unknown", http.StatusNotFound},
		{http.MethodGet, "/v1/nope", http.StatusNotFound},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != tc.want {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, rec.Code)
		}
	}
}

func TestRouterRecordsMetrics(t *testing.T) {
	h := newTestRouter(t, Options{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/images/generate", bytes.NewBufferString(`{"prompt":"a red fox"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("generate: expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing request id header")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `route="/v1/images/generate"`) {
		t.Fatalf("route label missing from metrics output")
	}
}

func TestRouterRateLimitsGeneration(t *testing.T) {
	h := newTestRouter(t, Options{RateLimitPerMin: 1})

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/v1/images/generate", bytes.NewBufferString(`{"prompt":"a red fox"}`))
		req.RemoteAddr = "203.0.113.7:4000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	if code := send(); code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", code)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	req.RemoteAddr = "203.0.113.7:4000"
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("health must not be limited, got %d", rec.Code)
	}
}

func TestRouterRateLimitIgnoresForwardedForByDefault(t *testing.T) {
	h := newTestRouter(t, Options{RateLimitPerMin: 1})

	codes := make([]int, 0, 3)
	for _, xff := range []string{"10.1.1.1", "10.2.2.2", "10.3.3.3"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/images/generate", bytes.NewBufferString(`{"prompt":"a red fox"}`))
		req.RemoteAddr = "203.0.113.9:4000"
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("rotating X-Forwarded-For must not reset the limit, got %v", codes)
	}
}

func TestRouterTrustProxyUsesForwardedFor(t *testing.T) {
	h := newTestRouter(t, Options{RateLimitPerMin: 1, TrustProxy: true})

	for _, xff := range []string{"10.1.1.1", "10.2.2.2"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/images/generate", bytes.NewBufferString(`{"prompt":"a red fox"}`))
		req.RemoteAddr = "192.0.2.1:4000"
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("client %s behind trusted proxy: expected 200, got %d", xff, rec.Code)
		}
	}
}

func TestRouterRefusesCrossOriginCredentialPreflight(t *testing.T) {
	h := newTestRouter(t, Options{AllowedOrigins: []string{"*"}})

	req := httptest.NewRequest(http.MethodOptions, "/v1/credentials/gemini", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 preflight, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin %q", got)
	}

	req = httptest.NewRequest(http.MethodPut, "/v1/credentials/gemini", bytes.NewBufferString(`{"api_key":"AIza-evil"}`))
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected cross-origin PUT to be refused, got %d", rec.Code)
	}
}
