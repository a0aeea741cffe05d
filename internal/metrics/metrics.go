// Package metrics exposes control loop and process gauges in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fermenter"

// Recorder is the set of collectors updated by the control loop. A nil *Recorder is valid
// and discards everything, so tests can skip metrics entirely.
type Recorder struct {
	registry *prometheus.Registry

	tickDuration  prometheus.Histogram
	samples       *prometheus.CounterVec
	readFailures  *prometheus.CounterVec
	writeFailures *prometheus.CounterVec
	temperature   *prometheus.GaugeVec
	setpoint      *prometheus.GaugeVec
	flow          *prometheus.GaugeVec
	actuator      *prometheus.GaugeVec
	dosing        *prometheus.GaugeVec
}

// New creates a Recorder on its own registry, including Go runtime and process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent in one control tick.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_samples_total",
			Help:      "Flow samples taken, by channel and status.",
		}, []string{"channel", "status"}),
		readFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_failures_total",
			Help:      "Failed sensor reads, by channel and sensor kind.",
		}, []string{"channel", "sensor"}),
		writeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_failures_total",
			Help:      "Failed persistence writes, by channel and sink.",
		}, []string{"channel", "sink"}),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Last vessel temperature used for control.",
		}, []string{"channel"}),
		setpoint: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "setpoint_celsius",
			Help:      "Current vessel setpoint.",
		}, []string{"channel"}),
		flow: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "flow_sccm",
			Help:      "Last converted CO2 flow.",
		}, []string{"channel"}),
		actuator: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "actuator_on",
			Help:      "Thermal actuator state (1 = energised).",
		}, []string{"channel", "actuator"}),
		dosing: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dosing_active",
			Help:      "Nutrient pump state (1 = running).",
		}, []string{"channel"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.tickDuration, r.samples, r.readFailures, r.writeFailures,
		r.temperature, r.setpoint, r.flow, r.actuator, r.dosing,
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveTick records the duration of one control tick.
func (r *Recorder) ObserveTick(d time.Duration) {
	if r == nil {
		return
	}
	r.tickDuration.Observe(d.Seconds())
}

// Vessel records the control state of a vessel after a tick.
func (r *Recorder) Vessel(channel string, temp, setpoint float64, cold, hot, dosing bool) {
	if r == nil {
		return
	}
	r.temperature.WithLabelValues(channel).Set(temp)
	r.setpoint.WithLabelValues(channel).Set(setpoint)
	r.actuator.WithLabelValues(channel, "cold").Set(b2f(cold))
	r.actuator.WithLabelValues(channel, "hot").Set(b2f(hot))
	r.dosing.WithLabelValues(channel).Set(b2f(dosing))
}

// FlowSample records a converted flow sample.
func (r *Recorder) FlowSample(channel string, flow float64, status string) {
	if r == nil {
		return
	}
	r.samples.WithLabelValues(channel, status).Inc()
	r.flow.WithLabelValues(channel).Set(flow)
}

// ReadFailure counts a failed sensor read. sensor is "temperature" or "analog".
func (r *Recorder) ReadFailure(channel, sensor string) {
	if r == nil {
		return
	}
	r.readFailures.WithLabelValues(channel, sensor).Inc()
}

// WriteFailure counts a failed persistence write.
func (r *Recorder) WriteFailure(channel, sink string) {
	if r == nil {
		return
	}
	r.writeFailures.WithLabelValues(channel, sink).Inc()
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
