package flow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for engine activity. All metrics are
// namespaced "dagrun". A nil *Metrics is valid and records nothing, so the
// engine can call through it unconditionally.
//
// Exposed series:
//
//   - inflight_attempts (gauge): node attempts currently executing,
//     labelled by kind.
//   - attempt_duration_seconds (histogram): duration of one node attempt,
//     labelled by kind and result (ok/error).
//   - retries_total (counter): retry attempts scheduled, labelled by kind.
//   - node_transitions_total (counter): node status transitions, labelled
//     by kind and status.
//   - runs_total (counter): completed runs, labelled by status.
type Metrics struct {
	inflight    *prometheus.GaugeVec
	attempts    *prometheus.HistogramVec
	retries     *prometheus.CounterVec
	transitions *prometheus.CounterVec
	runs        *prometheus.CounterVec
}

// NewMetrics creates and registers the engine metrics. Pass nil to register
// with the default Prometheus registerer; pass a dedicated registry for
// isolation.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		inflight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dagrun",
			Name:      "inflight_attempts",
			Help:      "Node attempts currently executing",
		}, []string{"kind"}),

		attempts: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dagrun",
			Name:      "attempt_duration_seconds",
			Help:      "Duration of one node execution attempt",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 60},
		}, []string{"kind", "result"}),

		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dagrun",
			Name:      "retries_total",
			Help:      "Retry attempts scheduled after a recoverable failure",
		}, []string{"kind"}),

		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dagrun",
			Name:      "node_transitions_total",
			Help:      "Node status transitions",
		}, []string{"kind", "status"}),

		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dagrun",
			Name:      "runs_total",
			Help:      "Completed runs by final status",
		}, []string{"status"}),
	}
}

func (m *Metrics) attemptStarted(kind NodeKind) {
	if m == nil {
		return
	}
	m.inflight.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) attemptFinished(kind NodeKind, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.inflight.WithLabelValues(string(kind)).Dec()
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.attempts.WithLabelValues(string(kind), result).Observe(d.Seconds())
}

func (m *Metrics) retryScheduled(kind NodeKind) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) nodeTransition(kind NodeKind, status NodeStatus) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(kind), string(status)).Inc()
}

func (m *Metrics) runFinished(status RunStatus) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(status)).Inc()
}
