package reminders

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the reminder loop.
type Metrics struct {
	RemindersSentTotal   *prometheus.CounterVec
	RemindersDue         prometheus.Gauge
	ReminderSendDuration prometheus.Histogram
}

// NewMetrics registers reminder metrics on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RemindersSentTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminders_sent_total",
				Help:      "Total number of appointment reminders by status",
			},
			[]string{"status"},
		),
		RemindersDue: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "reminders_due",
				Help:      "Reminders found due on the last check",
			},
		),
		ReminderSendDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reminder_send_duration_seconds",
				Help:      "Time to send a reminder",
				Buckets:   []float64{.01, .05, .1, .5, 1, 2, 5},
			},
		),
	}
}

func (m *Metrics) incSent(status string) {
	if m != nil {
		m.RemindersSentTotal.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) setDue(n int) {
	if m != nil {
		m.RemindersDue.Set(float64(n))
	}
}

func (m *Metrics) observeSend(seconds float64) {
	if m != nil {
		m.ReminderSendDuration.Observe(seconds)
	}
}
