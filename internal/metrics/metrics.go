// Package metrics exposes daemon counters on a private Prometheus registry.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the daemon reports
type Metrics struct {
	registry *prometheus.Registry

	chunks        *prometheus.CounterVec
	resyncBytes   prometheus.Counter
	sourceUp      prometheus.Gauge
	reconnects    prometheus.Counter
	sessions      prometheus.Counter
	transitions   *prometheus.CounterVec
	active        prometheus.Gauge
	covers        *prometheus.CounterVec
	coverDuration prometheus.Histogram
	screens       *prometheus.CounterVec
}

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		chunks: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "hificlock_chunks_total", Help: "Metadata chunks applied, by code"},
			[]string{"code"},
		),
		resyncBytes: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "hificlock_decoder_resync_bytes_total", Help: "Bytes skipped while resynchronizing the frame stream"},
		),
		sourceUp: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "hificlock_source_up", Help: "Whether the metadata source is currently open"},
		),
		reconnects: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "hificlock_source_retries_total", Help: "Failed or lost source connections"},
		),
		sessions: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "hificlock_sessions_total", Help: "Sender session resets"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "hificlock_activity_transitions_total", Help: "Activity transitions, by new state"},
			[]string{"state"},
		),
		active: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "hificlock_active", Help: "1 while the sender is streaming"},
		),
		covers: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "hificlock_cover_resolutions_total", Help: "Cover resolutions, by step that succeeded"},
			[]string{"source"},
		),
		coverDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hificlock_cover_resolution_seconds",
				Help:    "Time spent resolving a cover",
				Buckets: prometheus.DefBuckets,
			},
		),
		screens: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "hificlock_screen_changes_total", Help: "Screen changes, by target and trigger"},
			[]string{"target", "trigger"},
		),
	}

	m.registry.MustRegister(
		m.chunks, m.resyncBytes, m.sourceUp, m.reconnects, m.sessions,
		m.transitions, m.active, m.covers, m.coverDuration, m.screens,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry collectors are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveChunk(code string) {
	if m == nil {
		return
	}
	m.chunks.WithLabelValues(code).Inc()
}

func (m *Metrics) AddResyncBytes(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.resyncBytes.Add(float64(n))
}

func (m *Metrics) SetSourceUp(up bool) {
	if m == nil {
		return
	}
	m.sourceUp.Set(boolValue(up))
}

func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) ObserveSession() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Metrics) ObserveTransition(active bool) {
	if m == nil {
		return
	}
	state := "inactive"
	if active {
		state = "active"
	}
	m.transitions.WithLabelValues(state).Inc()
	m.active.Set(boolValue(active))
}

// ObserveCover records which step of the fallback chain produced a cover
func (m *Metrics) ObserveCover(source string, took time.Duration) {
	if m == nil {
		return
	}
	m.covers.WithLabelValues(source).Inc()
	m.coverDuration.Observe(took.Seconds())
}

func (m *Metrics) ObserveScreen(target string, manual bool) {
	if m == nil {
		return
	}
	trigger := "activity"
	if manual {
		trigger = "gesture"
	}
	m.screens.WithLabelValues(target, trigger).Inc()
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
