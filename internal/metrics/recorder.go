// internal/metrics/recorder.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cookiebot"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Recorder owns a private registry and the counters the keep-alive loop
// updates. A nil *Recorder is valid and records nothing, so components can
// be built without metrics in tests.
type Recorder struct {
	registry *prometheus.Registry

	attempts        *prometheus.CounterVec
	attemptDuration prometheus.Histogram
	cycles          *prometheus.CounterVec
	publishes       *prometheus.CounterVec
	probes          *prometheus.CounterVec
	state           *prometheus.GaugeVec
	lastAcquired    prometheus.Gauge
}

// NewRecorder registers every metric on a fresh registry, alongside the Go
// runtime and process collectors.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "acquirer",
			Name:      "attempts_total",
			Help:      "Login attempts by outcome and failure kind.",
		}, []string{"outcome", "kind"}),
		attemptDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "acquirer",
			Name:      "attempt_duration_seconds",
			Help:      "Wall time of a single login attempt.",
			Buckets:   []float64{5, 10, 20, 30, 45, 60, 90, 120, 180},
		}),
		cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "cycles_total",
			Help:      "Retry cycles by outcome.",
		}, []string{"outcome"}),
		publishes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "publishes_total",
			Help:      "Credential publications by outcome and failure kind.",
		}, []string{"outcome", "kind"}),
		probes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "probes_total",
			Help:      "Health probes by resulting state.",
		}, []string{"state"}),
		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "state",
			Help:      "1 for the state the supervisor is currently in, 0 otherwise.",
		}, []string{"state"}),
		lastAcquired: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_acquired_timestamp_seconds",
			Help:      "Unix time of the most recent successful acquisition.",
		}),
	}
}

// Registry exposes the registry for the HTTP handler.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Attempt records one finished login attempt. kind is empty on success.
func (r *Recorder) Attempt(outcome, kind string, took time.Duration) {
	if r == nil {
		return
	}
	r.attempts.WithLabelValues(outcome, kind).Inc()
	r.attemptDuration.Observe(took.Seconds())
	if outcome == OutcomeSuccess {
		r.lastAcquired.SetToCurrentTime()
	}
}

func (r *Recorder) Cycle(outcome string) {
	if r == nil {
		return
	}
	r.cycles.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Publish(outcome, kind string) {
	if r == nil {
		return
	}
	r.publishes.WithLabelValues(outcome, kind).Inc()
}

func (r *Recorder) Probe(state string) {
	if r == nil {
		return
	}
	r.probes.WithLabelValues(state).Inc()
}

// SetState marks current as the active supervisor state among all.
func (r *Recorder) SetState(current string, all ...string) {
	if r == nil {
		return
	}
	for _, s := range all {
		if s == current {
			r.state.WithLabelValues(s).Set(1)
		} else {
			r.state.WithLabelValues(s).Set(0)
		}
	}
}
