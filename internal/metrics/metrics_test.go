package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsWith_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg)

	m.CandlesTotal.WithLabelValues("BTCUSDT").Inc()
	m.CandlesTotal.WithLabelValues("BTCUSDT").Inc()
	m.TradesClosed.WithLabelValues("BTCUSDT", "TAKE").Inc()
	m.ActiveLevels.WithLabelValues("BTCUSDT").Set(7)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[f.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[f.GetName()] += metric.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, values["levelbot_candles_total"])
	assert.Equal(t, 1.0, values["levelbot_trades_closed_total"])
	assert.Equal(t, 7.0, values["levelbot_active_levels"])

	// a second registration on the same registry must panic
	assert.Panics(t, func() { NewMetricsWith(reg) })
}

func TestHealthStatus_Report(t *testing.T) {
	h := NewHealthStatus()

	_, code := h.Report()
	assert.Equal(t, http.StatusServiceUnavailable, code)

	h.SetSQLiteOK(true)
	h.SetWSConnected(true)
	r, code := h.Report()
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", r.Status)
	assert.Empty(t, r.CandleAge)

	h.SetRedisEnabled(true)
	r, code = h.Report()
	assert.Equal(t, "degraded", r.Status)
	assert.Equal(t, http.StatusServiceUnavailable, code)

	h.SetSQLiteOK(false)
	r, _ = h.Report()
	assert.Equal(t, "unhealthy", r.Status)
}

func TestHealthStatus_ServeHTTP(t *testing.T) {
	h := NewHealthStatus()
	h.SetSQLiteOK(true)
	h.SetWSConnected(true)
	h.SetSymbols([]string{"BTCUSDT"})
	h.SetLastCandleTime(time.Now().Add(-time.Minute))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var r Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&r))
	assert.Equal(t, "healthy", r.Status)
	assert.Equal(t, []string{"BTCUSDT"}, r.Symbols)
	assert.NotEmpty(t, r.CandleAge)
}
