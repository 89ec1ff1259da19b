package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageHandled(t *testing.T) {
	m := New()
	m.MessageHandled("lux", OutcomeStored)
	m.MessageHandled("lux", OutcomeStored)
	m.MessageHandled("", OutcomeUnrecognized)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.messagesTotal.WithLabelValues("lux", OutcomeStored)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messagesTotal.WithLabelValues("none", OutcomeUnrecognized)))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.MessageHandled("lux", OutcomeStored)
		m.CommandSent("published")
		m.SetBusConnected(true)
	})

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	wrapped := m.WrapHandler("x", h)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWrapHandlerAndExposition(t *testing.T) {
	m := New()
	m.SetBusConnected(true)

	h := m.WrapHandler("/api/lux", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/lux", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/api/lux", "400")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "ambient_bus_connected 1"))
	assert.True(t, strings.Contains(body, `http_requests_total{route="/api/lux",status="400"} 1`))
}
