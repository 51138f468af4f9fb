package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "verification_handoff"

// Metrics holds the session lifecycle collectors. A nil *Metrics is valid and
// records nothing, so callers never need to guard.
type Metrics struct {
	sessionsCreated    prometheus.Counter
	stepsRecorded      *prometheus.CounterVec
	processingFailures *prometheus.CounterVec
	sessionsCompleted  prometheus.Counter
	finalizeFailures   prometheus.Counter
	sessionsCancelled  prometheus.Counter
	sessionsSwept      prometheus.Counter
}

// New registers the collectors on reg. liveSessions backs the live gauge.
func New(reg prometheus.Registerer, liveSessions func() float64) *Metrics {
	f := promauto.With(reg)

	if liveSessions != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_sessions",
			Help:      "Sessions currently held in the session store.",
		}, liveSessions)
	}

	return &Metrics{
		sessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Verification sessions created.",
		}),
		stepsRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_recorded_total",
			Help:      "Verification steps recorded, by step kind.",
		}, []string{"step"}),
		processingFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processing_failures_total",
			Help:      "Artifact processing failures, by step kind.",
		}, []string{"step"}),
		sessionsCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_completed_total",
			Help:      "Verification sessions completed.",
		}),
		finalizeFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finalize_failures_total",
			Help:      "Completed sessions whose verification record update failed.",
		}),
		sessionsCancelled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_cancelled_total",
			Help:      "Verification sessions cancelled by their owner.",
		}),
		sessionsSwept: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_swept_total",
			Help:      "Expired sessions removed by the sweep.",
		}),
	}
}

func (m *Metrics) SessionCreated() {
	if m != nil {
		m.sessionsCreated.Inc()
	}
}

func (m *Metrics) StepRecorded(step string) {
	if m != nil {
		m.stepsRecorded.WithLabelValues(step).Inc()
	}
}

func (m *Metrics) ProcessingFailed(step string) {
	if m != nil {
		m.processingFailures.WithLabelValues(step).Inc()
	}
}

func (m *Metrics) SessionCompleted() {
	if m != nil {
		m.sessionsCompleted.Inc()
	}
}

func (m *Metrics) FinalizeFailed() {
	if m != nil {
		m.finalizeFailures.Inc()
	}
}

func (m *Metrics) SessionCancelled() {
	if m != nil {
		m.sessionsCancelled.Inc()
	}
}

func (m *Metrics) SessionsSwept(n int) {
	if m != nil && n > 0 {
		m.sessionsSwept.Add(float64(n))
	}
}
