package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineHooks_FeedMetrics(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())
	health := NewHealthStatus()
	hooks := m.EngineHooks(health)

	hooks.OnTick(true, time.Millisecond)
	hooks.OnTick(false, time.Millisecond)
	hooks.OnPoint("TCH", 101.25, true)
	hooks.OnPoint("TCH", 101.5, false)
	hooks.OnStateChange(true, 500*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TicksTotal.WithLabelValues("generated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TicksTotal.WithLabelValues("jump")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PointsTotal.WithLabelValues("TCH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SpikesTotal.WithLabelValues("TCH")))
	assert.Equal(t, 101.5, testutil.ToFloat64(m.Price.WithLabelValues("TCH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Running))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.SpeedSecs))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.MarketState))
	assert.True(t, health.EngineRunning)
	assert.False(t, health.LastTickTime.IsZero())
}

func TestHealth_OnlyEnabledStoresDegrade(t *testing.T) {
	h := NewHealthStatus()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	h.SetSQLiteOK(true)
	h.SetRedisConnected(false)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])

	h.SetSQLiteOK(false)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body["status"])
}
