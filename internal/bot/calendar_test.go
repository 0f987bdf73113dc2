package bot

import (
	"testing"
	"time"

	"carservice/internal/booking"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findButton(markup tgbotapi.InlineKeyboardMarkup, data string) *tgbotapi.InlineKeyboardButton {
	for _, row := range markup.InlineKeyboard {
		for i := range row {
			if row[i].CallbackData != nil && *row[i].CallbackData == data {
				return &row[i]
			}
		}
	}
	return nil
}

func TestCalendarKeyboard(t *testing.T) {
	view := &booking.CalendarView{
		Year:   2026,
		Month:  time.February,
		Busy:   map[int]bool{14: true},
		Today:  time.Date(2026, 2, 10, 0, 0, 0, 0, time.Local),
		Latest: time.Date(2026, 2, 20, 0, 0, 0, 0, time.Local),
	}
	kb := calendarKeyboard(view)

	// header, weekdays, five weeks, cancel
	require.Len(t, kb.InlineKeyboard, 8)
	header := kb.InlineKeyboard[0]
	assert.Equal(t, "bk:nav:2026-01", *header[0].CallbackData)
	assert.Equal(t, "Февраль 2026", header[1].Text)
	assert.Equal(t, "bk:nav:2026-03", *header[2].CallbackData)

	// 1 February 2026 is a Sunday.
	firstWeek := kb.InlineKeyboard[2]
	require.Len(t, firstWeek, 7)
	assert.Equal(t, " ", firstWeek[0].Text)
	assert.Equal(t, "·", firstWeek[6].Text)

	assert.NotNil(t, findButton(kb, "date:2026-02-10"))
	assert.NotNil(t, findButton(kb, "date:2026-02-20"))
	assert.Nil(t, findButton(kb, "date:2026-02-09"), "past day")
	assert.Nil(t, findButton(kb, "date:2026-02-14"), "busy day")
	assert.Nil(t, findButton(kb, "date:2026-02-21"), "beyond horizon")
	assert.NotNil(t, findButton(kb, "bk:cancel"))
}

func TestHoursKeyboard(t *testing.T) {
	kb := hoursKeyboard([]int{8, 9, 10, 11, 23})
	require.Len(t, kb.InlineKeyboard, 3)
	assert.Len(t, kb.InlineKeyboard[0], 4)
	assert.Equal(t, "23:00", kb.InlineKeyboard[1][0].Text)
	assert.Equal(t, "bk:hour:23", *kb.InlineKeyboard[1][0].CallbackData)
}

func TestDurationsKeyboard(t *testing.T) {
	kb := durationsKeyboard([]float64{0.5, 1, 1.5, 2})
	require.Len(t, kb.InlineKeyboard, 3)
	assert.Equal(t, "bk:dur:0.5", *kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "bk:dur:1", *kb.InlineKeyboard[0][1].CallbackData)
	assert.Equal(t, "1.5 ч", kb.InlineKeyboard[0][2].Text)
}

func TestBookingInput(t *testing.T) {
	tests := []struct {
		data string
		want booking.Input
	}{
		{"bk:today", booking.Input{Kind: booking.InputToday}},
		{"bk:day", booking.Input{Kind: booking.InputChooseDay}},
		{"bk:cancel", booking.Input{Kind: booking.InputCancel}},
		{"bk:nav:2026-11", booking.Input{Kind: booking.InputNavigate, Year: 2026, Month: time.November}},
		{"bk:hour:14", booking.Input{Kind: booking.InputPickHour, Hour: 14}},
		{"bk:dur:2.5", booking.Input{Kind: booking.InputPickDuration, Duration: 2.5}},
	}
	for _, tt := range tests {
		got, err := bookingInput(tt.data)
		require.NoError(t, err, tt.data)
		assert.Equal(t, tt.want, got, tt.data)
	}

	in, err := bookingInput("date:2026-03-08")
	require.NoError(t, err)
	assert.Equal(t, booking.InputPickDay, in.Kind)
	assert.Equal(t, 8, in.Date.Day())

	for _, bad := range []string{"date:08.03.2026", "bk:nav:2026", "bk:hour:x", "bk:dur:", "bk:what"} {
		_, err := bookingInput(bad)
		assert.Error(t, err, bad)
	}
}
