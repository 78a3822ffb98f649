// Package metrics exposes the shading service's Prometheus metrics.
//
// All collectors live on a private registry so tests can build as many
// instances as they like. Every method is nil-safe: a nil *Metrics records
// nothing, which is how metrics.enabled=false is wired.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "graylogic_shading"

// Metrics holds the registered collectors.
type Metrics struct {
	registry *prometheus.Registry

	decisions    *prometheus.CounterVec
	rejected     *prometheus.CounterVec
	level        *prometheus.GaugeVec
	override     *prometheus.GaugeVec
	evalDuration prometheus.Histogram
	queueDropped *prometheus.CounterVec
	sunAltitude  prometheus.Gauge
	sunAzimuth   prometheus.Gauge
	buttonPress  *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates and registers all collectors, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Evaluated blind events by reason code.",
		}, []string{"blind", "reason"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_total",
			Help:      "Events whose requested override level was invalid.",
		}, []string{"blind"}),
		level: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "level",
			Help:      "Last commanded blind level in scale units.",
		}, []string{"blind"}),
		override: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "override_active",
			Help:      "1 while a manual override is in force.",
		}, []string{"blind"}),
		evalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Time to evaluate one blind event.",
			Buckets:   []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05},
		}),
		queueDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped because a blind's queue was full.",
		}, []string{"blind"}),
		sunAltitude: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sun_altitude_degrees",
			Help:      "Sun altitude at the site.",
		}),
		sunAzimuth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sun_azimuth_degrees",
			Help:      "Sun azimuth at the site, clockwise from north.",
		}),
		buttonPress: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "button_presses_total",
			Help:      "Debounced wall button presses.",
		}, []string{"button"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.decisions,
		m.rejected,
		m.level,
		m.override,
		m.evalDuration,
		m.queueDropped,
		m.sunAltitude,
		m.sunAzimuth,
		m.buttonPress,
		m.httpRequests,
		m.httpDuration,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveDecision records one evaluated event. level is NaN when the event
// produced none; the gauge then keeps its last value.
func (m *Metrics) ObserveDecision(blind string, reasonCode int, level float64, overrideActive bool, took time.Duration) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(blind, strconv.Itoa(reasonCode)).Inc()
	if level == level {
		m.level.WithLabelValues(blind).Set(level)
	}
	active := 0.0
	if overrideActive {
		active = 1
	}
	m.override.WithLabelValues(blind).Set(active)
	m.evalDuration.Observe(took.Seconds())
}

// Rejected counts an event whose override level was refused.
func (m *Metrics) Rejected(blind string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(blind).Inc()
}

// Dropped counts an event lost to a full queue.
func (m *Metrics) Dropped(blind string) {
	if m == nil {
		return
	}
	m.queueDropped.WithLabelValues(blind).Inc()
}

// SetSun records the current sun position.
func (m *Metrics) SetSun(altitude, azimuth float64) {
	if m == nil {
		return
	}
	m.sunAltitude.Set(altitude)
	m.sunAzimuth.Set(azimuth)
}

// ButtonPressed counts a debounced press.
func (m *Metrics) ButtonPressed(button string) {
	if m == nil {
		return
	}
	m.buttonPress.WithLabelValues(button).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the hijacker for websockets.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// WrapHandler records request count and duration under route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		m.httpRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
