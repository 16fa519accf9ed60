package metrics

import "github.com/prometheus/client_golang/prometheus"

// Reservation outcomes.
const (
	OutcomeReserved   = "reserved"
	OutcomeOutOfStock = "out_of_stock"
	OutcomeNotFound   = "not_found"
	OutcomeConflict   = "conflict"
	OutcomeError      = "error"
)

// ReservationMetrics tracks reserve calls and optimistic-lock retries.
type ReservationMetrics struct {
	outcomes *prometheus.CounterVec
	retries  *prometheus.CounterVec
}

func NewReservationMetrics(reg prometheus.Registerer) *ReservationMetrics {
	if reg == nil {
		return &ReservationMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reservations",
		Name:      "requests_total",
		Help:      "Reserve calls by outcome.",
	}, []string{"outcome"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "version_conflicts_total",
		Help:      "Conditional ledger writes that lost a version race, by operation.",
	}, []string{"operation"})
	reg.MustRegister(outcomes, retries)
	return &ReservationMetrics{outcomes: outcomes, retries: retries}
}

func (m *ReservationMetrics) IncOutcome(outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncConflict is safe to use as a ledger.ConflictObserver.
func (m *ReservationMetrics) IncConflict(operation string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(operation)).Inc()
}
