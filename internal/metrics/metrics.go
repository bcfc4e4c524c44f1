package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"drowsy/internal/session"
)

// SnapshotFunc reads the current controller snapshot.
type SnapshotFunc func() session.Snapshot

// Metrics holds the controller collectors and implements session.Metrics.
type Metrics struct {
	// Poll counters
	PollsOK      atomic.Uint64
	PollFailures atomic.Uint64
	SkippedTicks atomic.Uint64

	pollLatency     prometheus.Histogram
	startsTotal     prometheus.Counter
	startFailures   *prometheus.CounterVec
	sessionsEnded   *prometheus.CounterVec
	activeSeconds   prometheus.Histogram
	alertnessChange *prometheus.CounterVec

	snapshot atomic.Pointer[SnapshotFunc]
	registry *prometheus.Registry
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pollLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "drowsy_poll_latency_seconds",
			Help:    "Detection status request latency",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		startsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drowsy_sessions_started_total",
			Help: "Sessions that reached the active state",
		}),
		startFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drowsy_session_start_failures_total",
			Help: "Failed session starts by reason",
		}, []string{"reason"}),
		sessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drowsy_sessions_ended_total",
			Help: "Sessions that left the active state by reason",
		}, []string{"reason"}),
		activeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "drowsy_session_active_seconds",
			Help:    "Time spent active per session",
			Buckets: prometheus.ExponentialBuckets(10, 3, 8),
		}),
		alertnessChange: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drowsy_alertness_changes_total",
			Help: "Alertness transitions by target state",
		}, []string{"to"}),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	m.registry.MustRegister(m.pollLatency, m.startsTotal, m.startFailures, m.sessionsEnded, m.activeSeconds, m.alertnessChange)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "drowsy_polls_completed_total",
			Help: "Status polls that returned a result",
		},
		func() float64 { return float64(m.PollsOK.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "drowsy_poll_errors_total",
			Help: "Status polls that failed",
		},
		func() float64 { return float64(m.PollFailures.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "drowsy_polls_skipped_total",
			Help: "Ticks skipped because a poll was still in flight",
		},
		func() float64 { return float64(m.SkippedTicks.Load()) },
	))

	// Session state
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "drowsy_session_active",
			Help: "Session active (0=no, 1=yes)",
		},
		func() float64 {
			if m.current().State == session.StateActive {
				return 1
			}
			return 0
		},
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "drowsy_alertness_score",
			Help: "Latest alertness score reported by the detection service",
		},
		func() float64 { return m.current().Score },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "drowsy_drowsiness_alert",
			Help: "Drowsiness alert showing (0=no, 1=yes)",
		},
		func() float64 {
			if m.current().Alertness == session.AlertnessAlert {
				return 1
			}
			return 0
		},
	))
}

// BindSnapshot sets the source for the state gauges.
func (m *Metrics) BindSnapshot(fn SnapshotFunc) {
	if fn == nil {
		m.snapshot.Store(nil)
		return
	}
	m.snapshot.Store(&fn)
}

func (m *Metrics) current() session.Snapshot {
	fn := m.snapshot.Load()
	if fn == nil {
		return session.Snapshot{}
	}
	return (*fn)()
}

func (m *Metrics) PollCompleted(latency time.Duration, err error) {
	m.pollLatency.Observe(latency.Seconds())
	if err != nil {
		m.PollFailures.Add(1)
		return
	}
	m.PollsOK.Add(1)
}

func (m *Metrics) PollsSkipped(n uint64) {
	m.SkippedTicks.Add(n)
}

func (m *Metrics) SessionStarted() {
	m.startsTotal.Inc()
}

func (m *Metrics) StartFailed(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.startFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) SessionEnded(reason session.EndReason, active time.Duration) {
	m.sessionsEnded.WithLabelValues(string(reason)).Inc()
	if active > 0 {
		m.activeSeconds.Observe(active.Seconds())
	}
}

func (m *Metrics) AlertnessChanged(to session.Alertness) {
	m.alertnessChange.WithLabelValues(to.String()).Inc()
}

// Registry exposes the underlying registry for extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
