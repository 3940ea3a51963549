package infrastructure

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
)

func initTestOTel(t *testing.T) *OTelProviders {
	t.Helper()
	providers, err := InitializeOTel(slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { providers.Shutdown(context.Background()) })
	return providers
}

func scrape(t *testing.T, handler http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestInitializeOTel(t *testing.T) {
	providers := initTestOTel(t)
	require.NotNil(t, providers.Meter)
	require.NotNil(t, providers.PrometheusHTTP)

	counter, err := providers.Meter.Int64Counter("test_events_total")
	require.NoError(t, err)
	counter.Add(context.Background(), 1, metric.WithAttributes())

	rec := scrape(t, providers.PrometheusHTTP)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_events_total")
}

// Each provider owns its registry, so building a second one in the
// same process must not poison either metrics endpoint.
func TestRepeatedInitializationKeepsMetricsServable(t *testing.T) {
	first := initTestOTel(t)
	second := initTestOTel(t)

	counter, err := second.Meter.Int64Counter("restart_events_total")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	assert.Equal(t, http.StatusOK, scrape(t, first.PrometheusHTTP).Code)

	rec := scrape(t, second.PrometheusHTTP)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "restart_events_total")
}
