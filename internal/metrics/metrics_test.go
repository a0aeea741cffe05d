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
)

func TestVesselGauges(t *testing.T) {
	r := New()
	r.Vessel("F1", 21.5, 20, true, false, true)

	assert.Equal(t, 21.5, testutil.ToFloat64(r.temperature.WithLabelValues("F1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.actuator.WithLabelValues("F1", "cold")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.actuator.WithLabelValues("F1", "hot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.dosing.WithLabelValues("F1")))
}

func TestCounters(t *testing.T) {
	r := New()
	r.FlowSample("F2", 12.5, "OK")
	r.FlowSample("F2", 0, "low range")
	r.FlowSample("F2", 13, "OK")
	r.ReadFailure("F2", "analog")
	r.WriteFailure("F2", "backup")
	r.WriteFailure("F2", "backup")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.samples.WithLabelValues("F2", "OK")))
	assert.Equal(t, 13.0, testutil.ToFloat64(r.flow.WithLabelValues("F2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.readFailures.WithLabelValues("F2", "analog")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.writeFailures.WithLabelValues("F2", "backup")))
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.ObserveTick(time.Millisecond)
	r.Vessel("F1", 20, 20, false, false, false)
	r.FlowSample("F1", 1, "OK")
	r.ReadFailure("F1", "temperature")
	r.WriteFailure("F1", "log")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerExposition(t *testing.T) {
	r := New()
	r.ObserveTick(3 * time.Millisecond)
	r.Vessel("F3", 18, 20, false, true, false)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `fermenter_temperature_celsius{channel="F3"} 18`))
	assert.True(t, strings.Contains(body, "fermenter_tick_duration_seconds_count 1"))
}
