package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PolicyDecisionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policy_decision_count",
			Help: "Total number of action validations by outcome",
		},
		[]string{"action_type", "outcome"}, // outcome: allowed, denied
	)

	QuotaReservationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_reservation_count",
			Help: "Total number of summary slot reservations by result",
		},
		[]string{"result", "source"}, // result: reserved, denied; source: primary, fallback
	)

	ActionDispatchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "action_dispatch_latency_ms",
			Help:    "Scheduled action dispatch latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"action_type", "status"},
	)

	ActionBacklogGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "action_backlog_size",
			Help: "Number of scheduled actions due at the last poll",
		},
	)

	SlowQueryCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of queries slower than the configured threshold",
		},
	)

	DraftSupersededCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "draft_superseded_count",
			Help: "Total number of prior drafts deleted as unmodified duplicates",
		},
	)
)

// RecordPolicyDecision records a validation outcome.
func RecordPolicyDecision(actionType string, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	PolicyDecisionCount.WithLabelValues(actionType, outcome).Inc()
}

// RecordQuotaReservation records a reservation attempt result.
func RecordQuotaReservation(reserved bool, source string) {
	result := "denied"
	if reserved {
		result = "reserved"
	}
	QuotaReservationCount.WithLabelValues(result, source).Inc()
}

// RecordActionDispatch records dispatch latency for one action.
func RecordActionDispatch(actionType, status string, duration time.Duration) {
	ActionDispatchLatency.WithLabelValues(actionType, status).Observe(float64(duration.Milliseconds()))
}
