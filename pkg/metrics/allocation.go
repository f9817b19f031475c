package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Allocation outcomes recorded on allocation_attempts_total.
const (
	OutcomeAllocated    = "allocated"
	OutcomeInsufficient = "insufficient"
	OutcomeNoop         = "noop"
	OutcomeError        = "error"
)

// AllocationMetrics tracks allocation engine activity.
type AllocationMetrics struct {
	attempts  *prometheus.CounterVec
	lostRaces prometheus.Counter
	batch     *prometheus.HistogramVec
}

// NewAllocationMetrics registers the allocation metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewAllocationMetrics(reg prometheus.Registerer) *AllocationMetrics {
	if reg == nil {
		return &AllocationMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "allocation_attempts_total",
		Help: "Allocation attempts by strategy and outcome.",
	}, []string{"strategy", "outcome"})
	lostRaces := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "allocation_lost_race_total",
		Help: "Conditional lot decrements that matched no row because a concurrent writer consumed the lot first.",
	})
	batch := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "allocation_batch_duration_seconds",
		Help:    "Duration of order-level allocation batches in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	reg.MustRegister(attempts, lostRaces, batch)
	return &AllocationMetrics{
		attempts:  attempts,
		lostRaces: lostRaces,
		batch:     batch,
	}
}

// IncAttempt counts a single allocation attempt.
func (m *AllocationMetrics) IncAttempt(strategy, outcome string) {
	if m == nil || m.attempts == nil {
		return
	}
	m.attempts.WithLabelValues(normalizeLabel(strategy), normalizeLabel(outcome)).Inc()
}

// IncLostRace counts a consume that lost to a concurrent writer.
func (m *AllocationMetrics) IncLostRace() {
	if m == nil || m.lostRaces == nil {
		return
	}
	m.lostRaces.Inc()
}

// ObserveBatch records the duration of an order-level batch operation.
func (m *AllocationMetrics) ObserveBatch(operation string, duration time.Duration) {
	if m == nil || m.batch == nil {
		return
	}
	m.batch.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
