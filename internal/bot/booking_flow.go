package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"carservice/internal/booking"
	"carservice/internal/domain"
	"carservice/internal/metrics"
	"carservice/internal/model"
	"carservice/internal/orders"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// requestService fans a client's request out to every master.
func (b *Bot) requestService(ctx context.Context, chatID, clientID int64) {
	client, err := b.deps.Users.GetUser(ctx, clientID)
	if err != nil && !domain.IsNotFound(err) {
		b.replyError(ctx, chatID, err)
		return
	}
	if !client.ProfileComplete() {
		b.replyError(ctx, chatID, booking.ErrProfileIncomplete)
		return
	}

	masters, err := b.deps.Users.ListUsersByRole(ctx, model.RoleMaster, model.RoleAdmin)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}

	text := fmt.Sprintf("🔔 Новая заявка на сервис\n\n👤 %s\n📞 %s", client.DisplayName(), client.Contact)
	if v := orders.FormatVehicle(client.Vehicle); v != "" {
		text += "\n🚗 " + v
	}
	id := strconv.FormatInt(clientID, 10)
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🕐 Назначить время", "mreq:time:"+id),
			tgbotapi.NewInlineKeyboardButtonData("📞 Позвонить", "mreq:call:"+id),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⏳ Подождать", "mreq:wait:"+id),
			tgbotapi.NewInlineKeyboardButtonData("🚫 Отказать", "mreq:refuse:"+id),
		),
	)

	sent := 0
	for _, m := range masters {
		if m.TelegramID == clientID {
			continue
		}
		if b.notifier.Send(ctx, m.TelegramID, text, markup) {
			sent++
		}
	}
	if sent == 0 {
		b.reply(ctx, chatID, "😔 Сейчас нет доступных мастеров. Попробуйте позже.")
		return
	}
	zerolog.Ctx(ctx).Info().Int("masters", sent).Msg("Service request sent")
	b.reply(ctx, chatID, "✅ Заявка отправлена мастерам. Ожидайте ответа.")
}

func (b *Bot) handleRequestResponse(ctx context.Context, chatID, masterID int64, data string) {
	if !b.require(ctx, chatID, b.deps.Access.RequireMaster(ctx, masterID)) {
		return
	}
	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return
	}
	clientID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		b.reply(ctx, chatID, "Некорректная заявка")
		return
	}
	master, err := b.deps.Users.GetUser(ctx, masterID)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}

	switch parts[1] {
	case "time":
		res, err := b.deps.Booking.Start(ctx, masterID, clientID)
		if err != nil {
			metrics.IncBookingOutcome("rejected")
			b.replyError(ctx, chatID, err)
			return
		}
		b.renderBooking(ctx, chatID, 0, res)
	case "call":
		b.notifier.Send(ctx, clientID, fmt.Sprintf("📞 Мастер %s просит вас позвонить: %s", master.DisplayName(), master.Contact), nil)
		b.reply(ctx, chatID, "Клиенту отправлен ваш номер.")
	case "wait":
		b.notifier.Send(ctx, clientID, fmt.Sprintf("⏳ Мастер %s сейчас занят и ответит позже.", master.DisplayName()), nil)
		b.reply(ctx, chatID, "Клиент предупреждён.")
	case "refuse":
		b.notifier.Send(ctx, clientID, fmt.Sprintf("🚫 Мастер %s не может принять заявку.", master.DisplayName()), nil)
		b.reply(ctx, chatID, "Заявка отклонена.")
	}
}

// bookingInput decodes a booking callback.
func bookingInput(data string) (booking.Input, error) {
	if strings.HasPrefix(data, "date:") {
		d, err := time.ParseInLocation(model.DateLayout, strings.TrimPrefix(data, "date:"), time.Local)
		if err != nil {
			return booking.Input{}, domain.Validation("date", "malformed date")
		}
		return booking.Input{Kind: booking.InputPickDay, Date: d}, nil
	}

	parts := strings.SplitN(strings.TrimPrefix(data, "bk:"), ":", 2)
	arg := ""
	if len(parts) == 2 {
		arg = parts[1]
	}
	switch parts[0] {
	case "today":
		return booking.Input{Kind: booking.InputToday}, nil
	case "day":
		return booking.Input{Kind: booking.InputChooseDay}, nil
	case "cancel":
		return booking.Input{Kind: booking.InputCancel}, nil
	case "nav":
		year, month, err := parseMonth(arg)
		if err != nil {
			return booking.Input{}, domain.Validation("month", "malformed month")
		}
		return booking.Input{Kind: booking.InputNavigate, Year: year, Month: month}, nil
	case "hour":
		h, err := strconv.Atoi(arg)
		if err != nil {
			return booking.Input{}, domain.Validation("hour", "malformed hour")
		}
		return booking.Input{Kind: booking.InputPickHour, Hour: h}, nil
	case "dur":
		d, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return booking.Input{}, domain.Validation("duration", "malformed duration")
		}
		return booking.Input{Kind: booking.InputPickDuration, Duration: d}, nil
	}
	return booking.Input{}, domain.Validation("input", "unknown booking action")
}

func (b *Bot) handleBookingCallback(ctx context.Context, chatID int64, messageID int, masterID int64, data string) {
	in, err := bookingInput(data)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	res, err := b.deps.Booking.Advance(ctx, masterID, in)
	if err != nil {
		b.bookingRejected(ctx, chatID, masterID, err)
		return
	}
	b.renderBooking(ctx, chatID, messageID, res)
}

// bookingRejected explains the error and re-shows the stage the session stayed in.
func (b *Bot) bookingRejected(ctx context.Context, chatID, masterID int64, err error) {
	metrics.IncBookingOutcome("rejected")
	b.replyError(ctx, chatID, err)
	if !domain.IsValidation(err) && !domain.IsConflict(err) {
		return
	}
	res, perr := b.deps.Booking.Prompt(ctx, masterID)
	if perr != nil {
		if !domain.IsNotFound(perr) {
			zerolog.Ctx(ctx).Error().Err(perr).Msg("Failed to rebuild booking prompt")
		}
		return
	}
	b.renderBooking(ctx, chatID, 0, res)
}

func (b *Bot) renderBooking(ctx context.Context, chatID int64, messageID int, res *booking.Result) {
	show := func(text string, markup tgbotapi.InlineKeyboardMarkup) {
		if messageID != 0 {
			b.notifier.Edit(ctx, chatID, messageID, text, &markup)
			return
		}
		b.notifier.Send(ctx, chatID, text, markup)
	}

	switch res.State {
	case booking.StateChoosingOption:
		show(booking.StatePrompts[res.State], optionKeyboard())
	case booking.StateChoosingDay:
		if res.Calendar == nil {
			return
		}
		show(booking.StatePrompts[res.State], calendarKeyboard(res.Calendar))
	case booking.StateChoosingTime:
		text := fmt.Sprintf("%s\n📅 %s", booking.StatePrompts[res.State], res.Date.Format("02.01.2006"))
		show(text, hoursKeyboard(res.FreeHours))
	case booking.StateChoosingDuration:
		text := fmt.Sprintf("%s\n📅 %s, начало в %s", booking.StatePrompts[res.State],
			res.Date.Format("02.01.2006"), booking.FormatHour(res.Hour))
		show(text, durationsKeyboard(res.Durations))
	case booking.StateCommitted:
		metrics.IncBookingOutcome("committed")
		b.bookingCommitted(ctx, chatID, res)
	case booking.StateCancelled:
		metrics.IncBookingOutcome("cancelled")
		b.reply(ctx, chatID, booking.StatePrompts[res.State])
	}
}

func (b *Bot) bookingCommitted(ctx context.Context, chatID int64, res *booking.Result) {
	if res.Confirmation == nil {
		return
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("📋 Оформить заказ", fmt.Sprintf("ord:new:%d", res.ClientID)),
	))
	b.notifier.Send(ctx, chatID, booking.FormatMasterSummary(res.Confirmation, res.Replaced != nil), markup)
	// A failed confirmation does not undo the booking.
	b.notifier.Send(ctx, res.ClientID, booking.FormatConfirmation(res.Confirmation), nil)
}

func (b *Bot) sendAppointmentScopes(ctx context.Context, chatID int64) {
	markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Сегодня", "appt:"+string(model.ScopeToday)),
		tgbotapi.NewInlineKeyboardButtonData("Этот месяц", "appt:"+string(model.ScopeMonth)),
		tgbotapi.NewInlineKeyboardButtonData("Все", "appt:"+string(model.ScopeAll)),
	))
	b.notifier.Send(ctx, chatID, "📅 Какие записи показать?", markup)
}

const maxAppointmentLines = 30

func (b *Bot) handleAppointmentsCallback(ctx context.Context, chatID, userID int64, data string) {
	if b.deps.Appointments == nil {
		return
	}
	arg := strings.TrimPrefix(data, "appt:")
	if strings.HasPrefix(arg, "del:") {
		id, err := strconv.ParseInt(strings.TrimPrefix(arg, "del:"), 10, 64)
		if err == nil {
			b.cancelAppointment(ctx, chatID, userID, id)
		}
		return
	}
	scope := model.DateScope(arg)
	switch scope {
	case model.ScopeToday, model.ScopeMonth, model.ScopeAll:
	default:
		return
	}

	role, err := b.deps.Access.Role(ctx, userID)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	isMaster := role == model.RoleMaster || role == model.RoleAdmin
	var f model.AppointmentFilter
	if isMaster {
		f = scope.Filter(0, userID, b.opts.Now())
	} else {
		f = scope.Filter(userID, 0, b.opts.Now())
	}

	list, err := b.deps.Appointments.ListAppointments(ctx, f)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	if len(list) == 0 {
		b.reply(ctx, chatID, "📭 Записей нет.")
		return
	}

	today := model.DateOnly(b.opts.Now())
	names := make(map[int64]string)
	lines := []string{fmt.Sprintf("📅 Записи (%d):", len(list))}
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, a := range list {
		if i == maxAppointmentLines {
			lines = append(lines, fmt.Sprintf("… и ещё %d", len(list)-i))
			break
		}
		other := a.MasterID
		if isMaster {
			other = a.ClientID
		}
		if _, ok := names[other]; !ok {
			names[other] = b.displayName(ctx, other)
		}
		lines = append(lines, formatAppointmentLine(a, names[other]))
		if !a.Date.Before(today) {
			label := fmt.Sprintf("❌ %s %s", a.Date.Format("02.01"), a.Start)
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("appt:del:%d", a.ID)),
			))
		}
	}
	if len(rows) == 0 {
		b.reply(ctx, chatID, strings.Join(lines, "\n"))
		return
	}
	b.notifier.Send(ctx, chatID, strings.Join(lines, "\n"), tgbotapi.NewInlineKeyboardMarkup(rows...))
}

// cancelAppointment removes an upcoming appointment on behalf of either participant.
func (b *Bot) cancelAppointment(ctx context.Context, chatID, userID, id int64) {
	a, err := b.deps.Appointments.GetAppointment(ctx, id)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	if a.ClientID != userID && a.MasterID != userID {
		b.reply(ctx, chatID, "⛔ Это не ваша запись.")
		return
	}
	if err := b.deps.Appointments.DeleteAppointment(ctx, id); err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	zerolog.Ctx(ctx).Info().Int64("appointment_id", id).Msg("Appointment cancelled from chat")

	other := a.MasterID
	if userID == a.MasterID {
		other = a.ClientID
	}
	b.reply(ctx, chatID, "✅ Запись отменена.")
	b.notifier.Send(ctx, other, fmt.Sprintf("ℹ️ Запись на %s %s–%s отменена (%s).",
		a.Date.Format("02.01.2006"), a.Start, a.End, b.displayName(ctx, userID)), nil)
}

func (b *Bot) displayName(ctx context.Context, userID int64) string {
	u, err := b.deps.Users.GetUser(ctx, userID)
	if err != nil {
		return "id" + strconv.FormatInt(userID, 10)
	}
	return u.DisplayName()
}
