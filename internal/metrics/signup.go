package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	signupTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "raidbot_signup_transitions_total",
		Help: "Committed claim and release transitions by role",
	}, []string{"action", "role"})

	signupRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "raidbot_signup_rejections_total",
		Help: "Rejected claim and release attempts by reason",
	}, []string{"action", "reason"})

	activeEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "raidbot_active_events",
		Help: "Events currently held in memory",
	})

	rehydrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "raidbot_event_rehydrations_total",
		Help: "Event rebuilds from announcement text by outcome",
	}, []string{"outcome"})

	rateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "raidbot_rate_limited_total",
		Help: "Requests refused by a rate limiter",
	}, []string{"surface"})
)

// IncSignupTransition records a committed claim or release.
func IncSignupTransition(action, role string) {
	signupTransitions.WithLabelValues(action, role).Inc()
}

// IncSignupRejection records a refused claim or release.
func IncSignupRejection(action, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	signupRejections.WithLabelValues(action, reason).Inc()
}

// SetActiveEvents publishes the registry size.
func SetActiveEvents(n int) {
	activeEvents.Set(float64(n))
}

// IncRehydration records an event rebuild attempt.
func IncRehydration(outcome string) {
	rehydrations.WithLabelValues(outcome).Inc()
}

// IncRateLimited records a refused request on surface ("interaction", "api").
func IncRateLimited(surface string) {
	rateLimited.WithLabelValues(surface).Inc()
}
