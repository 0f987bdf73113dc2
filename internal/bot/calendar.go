package bot

import (
	"fmt"
	"strconv"
	"time"

	"carservice/internal/booking"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var monthNames = [...]string{
	"", "Январь", "Февраль", "Март", "Апрель", "Май", "Июнь",
	"Июль", "Август", "Сентябрь", "Октябрь", "Ноябрь", "Декабрь",
}

func monthTitle(year int, month time.Month) string {
	return fmt.Sprintf("%s %d", monthNames[month], year)
}

// optionKeyboard is the first booking stage: today or another day.
func optionKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📍 Сегодня", "bk:today"),
			tgbotapi.NewInlineKeyboardButtonData("🗓 Другой день", "bk:day"),
		),
		cancelRow(),
	)
}

// calendarKeyboard builds a Monday-first month grid. Days that cannot be
// picked are shown as "·".
func calendarKeyboard(v *booking.CalendarView) tgbotapi.InlineKeyboardMarkup {
	first := time.Date(v.Year, v.Month, 1, 0, 0, 0, 0, time.UTC)
	offset := int(first.Weekday())
	if offset == 0 {
		offset = 7
	}
	daysInMonth := first.AddDate(0, 1, -1).Day()
	prev := first.AddDate(0, -1, 0)
	next := first.AddDate(0, 1, 0)

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, 9)
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("◀️", fmt.Sprintf("bk:nav:%04d-%02d", prev.Year(), prev.Month())),
		tgbotapi.NewInlineKeyboardButtonData(monthTitle(v.Year, v.Month), "noop"),
		tgbotapi.NewInlineKeyboardButtonData("▶️", fmt.Sprintf("bk:nav:%04d-%02d", next.Year(), next.Month())),
	})
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("Пн", "noop"),
		tgbotapi.NewInlineKeyboardButtonData("Вт", "noop"),
		tgbotapi.NewInlineKeyboardButtonData("Ср", "noop"),
		tgbotapi.NewInlineKeyboardButtonData("Чт", "noop"),
		tgbotapi.NewInlineKeyboardButtonData("Пт", "noop"),
		tgbotapi.NewInlineKeyboardButtonData("Сб", "noop"),
		tgbotapi.NewInlineKeyboardButtonData("Вс", "noop"),
	})

	day := 1
	for day <= daysInMonth {
		row := make([]tgbotapi.InlineKeyboardButton, 0, 7)
		for col := 1; col <= 7; col++ {
			if (len(rows) == 2 && col < offset) || day > daysInMonth {
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(" ", "noop"))
				continue
			}
			if v.Selectable(day) {
				data := fmt.Sprintf("date:%04d-%02d-%02d", v.Year, v.Month, day)
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(strconv.Itoa(day), data))
			} else {
				row = append(row, tgbotapi.NewInlineKeyboardButtonData("·", "noop"))
			}
			day++
		}
		rows = append(rows, row)
	}
	rows = append(rows, cancelRow())
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// hoursKeyboard lists free start hours, four per row.
func hoursKeyboard(hours []int) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0)
	var current []tgbotapi.InlineKeyboardButton
	for _, h := range hours {
		current = append(current, tgbotapi.NewInlineKeyboardButtonData(booking.FormatHour(h), fmt.Sprintf("bk:hour:%d", h)))
		if len(current) == 4 {
			rows = append(rows, current)
			current = nil
		}
	}
	if len(current) > 0 {
		rows = append(rows, current)
	}
	rows = append(rows, cancelRow())
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func durationsKeyboard(durations []float64) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0)
	var current []tgbotapi.InlineKeyboardButton
	for _, d := range durations {
		data := "bk:dur:" + strconv.FormatFloat(d, 'f', -1, 64)
		current = append(current, tgbotapi.NewInlineKeyboardButtonData(booking.FormatDuration(d), data))
		if len(current) == 3 {
			rows = append(rows, current)
			current = nil
		}
	}
	if len(current) > 0 {
		rows = append(rows, current)
	}
	rows = append(rows, cancelRow())
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func cancelRow() []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", "bk:cancel"))
}

// parseMonth parses "YYYY-MM".
func parseMonth(s string) (int, time.Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return 0, 0, err
	}
	return t.Year(), t.Month(), nil
}
