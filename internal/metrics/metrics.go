package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for recorded commands.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Ledger holds counters for ledger commands. The zero value is usable;
// counters are no-ops until Register is called.
type Ledger struct {
	commands *prometheus.CounterVec
	retries  *prometheus.CounterVec
	credits  *prometheus.CounterVec
	duration *prometheus.HistogramVec

	registerOnce sync.Once
}

// Register registers Prometheus metrics with the given registry.
// If registry is nil, this is a no-op. Subsequent calls are no-ops.
func (m *Ledger) Register(registry prometheus.Registerer) {
	if registry == nil {
		return
	}
	m.registerOnce.Do(func() {
		factory := promauto.With(registry)
		m.commands = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_ledger_commands_total",
			Help: "Ledger commands by event kind and outcome",
		}, []string{"kind", "outcome"})
		m.retries = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_ledger_retries_total",
			Help: "Ledger units retried after a version conflict or busy store",
		}, []string{"kind"})
		m.credits = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_participation_points_total",
			Help: "Participation points credited by activity kind",
		}, []string{"activity"})
		m.duration = factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tally_ledger_record_seconds",
			Help:    "Time spent inside a ledger unit including lock wait",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"kind"})
	})
}

func (m *Ledger) ObserveCommand(kind, outcome string, seconds float64) {
	if m == nil || m.commands == nil {
		return
	}
	m.commands.WithLabelValues(kind, outcome).Inc()
	m.duration.WithLabelValues(kind).Observe(seconds)
}

func (m *Ledger) ObserveRetry(kind string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(kind).Inc()
}

func (m *Ledger) ObserveCredit(activity string, points int) {
	if m == nil || m.credits == nil {
		return
	}
	m.credits.WithLabelValues(activity).Add(float64(points))
}

// CommandCounter exposes the counter for one kind/outcome pair.
func (m *Ledger) CommandCounter(kind, outcome string) (prometheus.Counter, error) {
	if m == nil || m.commands == nil {
		return nil, errors.New("metrics not registered")
	}
	return m.commands.GetMetricWithLabelValues(kind, outcome)
}
