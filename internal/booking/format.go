package booking

import (
	"fmt"
	"strings"

	"carservice/internal/model"
)

// StatePrompts are shown above the keyboard of each stage.
var StatePrompts = map[State]string{
	StateChoosingOption:   "📅 Когда записать клиента?",
	StateChoosingDay:      "🗓 Выберите день:",
	StateChoosingTime:     "🕐 Выберите время начала:",
	StateChoosingDuration: "⏱ Выберите продолжительность:",
	StateCancelled:        "❌ Запись отменена.",
}

// FormatDuration renders 1.5 as "1.5 ч".
func FormatDuration(hours float64) string {
	return strings.TrimSuffix(strings.TrimSuffix(fmt.Sprintf("%.1f", hours), "0"), ".") + " ч"
}

// FormatHour renders a bucket start hour as "09:00".
func FormatHour(h int) string {
	return model.NewClock(h, 0).String()
}

// FormatConfirmation is sent to the client after a booking is committed.
func FormatConfirmation(c *Confirmation) string {
	var sb strings.Builder
	sb.WriteString("✅ Вы записаны на сервис!\n\n")
	if c.MasterName != "" {
		sb.WriteString(fmt.Sprintf("👨‍🔧 Мастер: %s\n", c.MasterName))
	}
	if c.MasterUserName != "" {
		sb.WriteString(fmt.Sprintf("💬 Telegram: @%s\n", c.MasterUserName))
	}
	if c.MasterContact != "" {
		sb.WriteString(fmt.Sprintf("📞 Телефон: %s\n", c.MasterContact))
	}
	sb.WriteString(fmt.Sprintf("📅 Дата: %s\n", c.Date.Format("02.01.2006")))
	sb.WriteString(fmt.Sprintf("🕐 Время: %s–%s", c.Start, c.End))
	return sb.String()
}

// FormatMasterSummary is shown to the master who committed the booking.
func FormatMasterSummary(c *Confirmation, replaced bool) string {
	client := c.ClientName
	if client == "" {
		client = "Клиент"
	}
	text := fmt.Sprintf("✅ %s записан(а) на %s, %s–%s.",
		client, c.Date.Format("02.01.2006"), c.Start, c.End)
	if replaced {
		text += "\nПредыдущая запись этого клиента заменена."
	}
	return text
}
