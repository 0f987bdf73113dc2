package reminders

import (
	"context"
	"time"

	"carservice/internal/model"
)

// AppointmentSource lists appointments that still need a reminder.
type AppointmentSource interface {
	// ListUnremindedAppointments returns appointments dated within [from, to].
	ListUnremindedAppointments(ctx context.Context, from, to time.Time) ([]model.Appointment, error)

	MarkReminderSent(ctx context.Context, appointmentID int64) error
}

// Notifier delivers a reminder to the client of an appointment.
type Notifier interface {
	SendReminder(ctx context.Context, a model.Appointment) error
}
