package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Encodings reported by raidbot_breaker_state.
const (
	BreakerClosed   = 0
	BreakerHalfOpen = 1
	BreakerOpen     = 2
)

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "raidbot_breaker_state",
		Help: "Breaker state per guarded dependency (0 closed, 1 half-open, 2 open)",
	}, []string{"component"})

	breakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "raidbot_breaker_trips_total",
		Help: "Times a breaker opened, by cause",
	}, []string{"component", "cause"})
)

// SetBreakerState publishes one of the Breaker* encodings for component.
func SetBreakerState(component string, state int) {
	breakerState.WithLabelValues(component).Set(float64(state))
}

// IncBreakerTrip counts a breaker opening.
func IncBreakerTrip(component, cause string) {
	breakerTrips.WithLabelValues(component, cause).Inc()
}
