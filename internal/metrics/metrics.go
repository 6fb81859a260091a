package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "konsult",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	slotClaims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "konsult",
			Name:      "slot_claims_total",
			Help:      "Slot claim attempts by result (claimed, conflict, error).",
		},
		[]string{"result"},
	)

	reschedules = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "konsult",
			Name:      "reschedules_total",
			Help:      "Reschedule attempts by result (ok, conflict, exhausted, error).",
		},
		[]string{"result"},
	)

	reconcileAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "konsult",
			Name:      "reconcile_attempts_total",
			Help:      "Individual booking lookups made by the reconciliation poller.",
		},
	)

	reconcileOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "konsult",
			Name:      "reconcile_outcomes_total",
			Help:      "Finished reconciliation runs by outcome (found, exhausted, aborted, canceled).",
		},
		[]string{"outcome"},
	)

	guestVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "konsult",
			Name:      "guest_verifications_total",
			Help:      "Guest verification attempts by result (ok, failed).",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			slotClaims,
			reschedules,
			reconcileAttempts,
			reconcileOutcomes,
			guestVerifications,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncSlotClaim records a slot claim attempt result.
func IncSlotClaim(result string) {
	slotClaims.WithLabelValues(result).Inc()
}

// IncReschedule records a reschedule attempt result.
func IncReschedule(result string) {
	reschedules.WithLabelValues(result).Inc()
}

// IncReconcileAttempt counts a single poller lookup.
func IncReconcileAttempt() {
	reconcileAttempts.Inc()
}

// IncReconcileOutcome records how a reconciliation run ended.
func IncReconcileOutcome(outcome string) {
	reconcileOutcomes.WithLabelValues(outcome).Inc()
}

// IncGuestVerification records a guest verification result.
func IncGuestVerification(result string) {
	guestVerifications.WithLabelValues(result).Inc()
}
