package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notifierEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "raidbot_notifier_events_total",
		Help: "Group-completion notifier lifecycle events (armed, cancelled, posted, skipped, failed)",
	}, []string{"event"})

	notifierPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "raidbot_notifier_pending",
		Help: "Notifications currently waiting for their debounce delay",
	})

	controlReconciles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "raidbot_control_reconciliations_total",
		Help: "Announcement control refreshes by outcome",
	}, []string{"outcome"})

	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "raidbot_events_published_total",
		Help: "Domain events published to the message bus by topic and outcome",
	}, []string{"topic", "outcome"})
)

// IncNotifier records a notifier lifecycle event.
func IncNotifier(event string) {
	notifierEvents.WithLabelValues(event).Inc()
}

// SetNotifierPending publishes the number of armed timers.
func SetNotifierPending(n int) {
	notifierPending.Set(float64(n))
}

// IncControlReconcile records a control refresh.
func IncControlReconcile(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	controlReconciles.WithLabelValues(outcome).Inc()
}

// IncEventPublished records a bus publish.
func IncEventPublished(topic string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	eventsPublished.WithLabelValues(topic, outcome).Inc()
}
