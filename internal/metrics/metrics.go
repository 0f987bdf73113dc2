package metrics

import (
	"sync"

	"carservice/internal/events"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "carservice"

var (
	once sync.Once

	domainEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "domain_events_total",
			Help:      "Count of published domain events by type.",
		},
		[]string{"type"},
	)

	bookingOutcome = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_sessions_total",
			Help:      "Count of booking sessions by outcome.",
		},
		[]string{"outcome"},
	)

	updatesHandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_handled_total",
			Help:      "Count of Telegram updates by kind.",
		},
		[]string{"kind"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Count of outgoing messages by status.",
		},
		[]string{"status"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "booking_sessions_active",
			Help:      "Booking sessions held in memory.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(domainEvents, bookingOutcome, updatesHandled, notifications, httpRequests, activeSessions)
	})
}

// Subscribe counts every event published on bus.
func Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.AllEvents, func(e events.Event) error {
		domainEvents.WithLabelValues(e.Type).Inc()
		return nil
	})
}

func IncBookingOutcome(outcome string) {
	bookingOutcome.WithLabelValues(outcome).Inc()
}

func IncUpdate(kind string) {
	updatesHandled.WithLabelValues(kind).Inc()
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncNotification(status string) {
	notifications.WithLabelValues(status).Inc()
}

func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}
