package bot

import (
	"fmt"

	"carservice/internal/model"
)

func formatReminderMessage(a model.Appointment, masterName string) string {
	if masterName == "" {
		return fmt.Sprintf("⏰ Напоминание: %s в %s у вас запись на сервис (до %s).",
			a.Date.Format("02.01.2006"), a.Start, a.End)
	}
	return fmt.Sprintf("⏰ Напоминание: %s в %s у вас запись к мастеру %s (до %s).",
		a.Date.Format("02.01.2006"), a.Start, masterName, a.End)
}

func formatAppointmentLine(a model.Appointment, counterpart string) string {
	return fmt.Sprintf("📅 %s %s–%s · %s", a.Date.Format("02.01.2006"), a.Start, a.End, counterpart)
}
