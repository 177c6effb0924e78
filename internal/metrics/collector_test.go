package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio/internal/imagegen"
)

func TestCollector_ObserveResult(t *testing.T) {
	c := NewCollector("test")

	c.ObserveResult(imagegen.ModeText, "")
	c.ObserveResult(imagegen.ModeText, "")
	c.ObserveResult(imagegen.ModeCompose, imagegen.KindValidation)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.generationsTotal.WithLabelValues("text", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.generationsTotal.WithLabelValues("compose", "validation_error")))
}

func TestCollector_ObserveProvider(t *testing.T) {
	c := NewCollector("test")

	c.ObserveProvider(200, 2*time.Second)
	c.ObserveProvider(429, 100*time.Millisecond)
	c.ObserveProvider(0, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.providerRequestsTotal.WithLabelValues("429")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.providerRequestsTotal.WithLabelValues("0")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.providerRequestDuration))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("studio")
	c.RecordHTTPRequest(http.MethodGet, "/v1/healthz", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `studio_http_requests_total{method="GET",route="/v1/healthz",status="200"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}
