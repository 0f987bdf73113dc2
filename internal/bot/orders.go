package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"carservice/internal/domain"
	"carservice/internal/model"
	"carservice/internal/orders"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const readyMessage = "✅ Ваш автомобиль готов к выдаче! Приезжайте в рабочее время."

func (b *Bot) handleOrderCallback(ctx context.Context, chatID int64, messageID int, userID int64, data string) {
	parts := strings.Split(data, ":")
	if len(parts) < 3 {
		return
	}
	action := parts[1]
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		b.reply(ctx, chatID, "Некорректные данные")
		return
	}

	// Client-side actions.
	switch action {
	case "accept":
		b.acceptWork(ctx, chatID, userID, id)
		return
	case "list":
		b.showActiveOrders(ctx, chatID, messageID, userID, int(id))
		return
	}

	if !b.require(ctx, chatID, b.deps.Access.RequireMaster(ctx, userID)) {
		return
	}
	if action == "new" {
		b.sendWorkTypes(ctx, chatID, id)
		return
	}

	o, ok := b.masterOrder(ctx, chatID, userID, id)
	if !ok {
		return
	}
	switch action {
	case "view":
		b.showOrder(ctx, chatID, messageID, o)
	case "ready":
		markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📨 Стандартное сообщение", fmt.Sprintf("ord:readyq:%d", o.ID)),
			tgbotapi.NewInlineKeyboardButtonData("✏️ Своё сообщение", fmt.Sprintf("ord:readyc:%d", o.ID)),
		))
		b.notifier.Send(ctx, chatID, "Как уведомить клиента?", markup)
	case "readyq":
		b.markReady(ctx, chatID, userID, o.ID, readyMessage)
	case "readyc":
		b.state.set(userID, &userState{Step: stepOrderReadyMsg, OrderID: o.ID})
		b.reply(ctx, chatID, "✏️ Введите сообщение для клиента:")
	case "resume":
		updated, err := b.deps.Orders.ResumeWork(ctx, o.ID)
		if err != nil {
			b.replyError(ctx, chatID, err)
			return
		}
		b.notifier.Send(ctx, updated.ClientID, fmt.Sprintf("🔧 Работы по заказу #%d возобновлены.", updated.ID), nil)
		b.showOrder(ctx, chatID, 0, updated)
	case "transfer":
		page := 0
		if len(parts) == 4 {
			page, _ = strconv.Atoi(parts[3])
		}
		b.sendTransferTargets(ctx, chatID, messageID, userID, o, page)
	case "to":
		if len(parts) != 4 {
			return
		}
		target, err := strconv.ParseInt(parts[3], 10, 64)
		if err != nil {
			return
		}
		b.transferOrder(ctx, chatID, o, target)
	case "del":
		deleted, err := b.deps.Orders.DeleteOrder(ctx, o.ID)
		if err != nil {
			b.replyError(ctx, chatID, err)
			return
		}
		b.notifier.Send(ctx, deleted.ClientID, fmt.Sprintf("🗑 Заказ #%d удалён мастером.", deleted.ID), nil)
		b.reply(ctx, chatID, fmt.Sprintf("🗑 Заказ #%d удалён.", deleted.ID))
	case "desc":
		b.state.set(userID, &userState{Step: stepOrderDesc, OrderID: o.ID})
		b.reply(ctx, chatID, "✏️ Введите новое описание работ:")
	case "km":
		b.state.set(userID, &userState{Step: stepOrderMileage, OrderID: o.ID})
		b.reply(ctx, chatID, "🛣 Введите пробег в км:")
	}
}

// masterOrder loads an order the acting master may manage.
func (b *Bot) masterOrder(ctx context.Context, chatID, userID, orderID int64) (*model.Order, bool) {
	o, err := b.deps.Orders.GetOrder(ctx, orderID)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return nil, false
	}
	if o.MasterID != userID {
		if role, _ := b.deps.Access.Role(ctx, userID); role != model.RoleAdmin {
			b.reply(ctx, chatID, "⛔ Это заказ другого мастера.")
			return nil, false
		}
	}
	return o, true
}

func (b *Bot) sendWorkTypes(ctx context.Context, chatID, clientID int64) {
	ws := b.workshopConfig()
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, wt := range ws.WorkTypes {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(wt.Title, fmt.Sprintf("wt:%d:%s", clientID, wt.Key)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✏️ Своё описание", fmt.Sprintf("wt:%d:custom", clientID)),
	))
	b.notifier.Send(ctx, chatID, "🛠 Выберите вид работ:", tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) handleWorkTypeCallback(ctx context.Context, chatID, masterID int64, data string) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return
	}
	clientID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return
	}
	if !b.require(ctx, chatID, b.deps.Access.RequireMaster(ctx, masterID)) {
		return
	}
	if parts[2] == "custom" {
		b.state.set(masterID, &userState{Step: stepOrderCustom, ClientID: clientID})
		b.reply(ctx, chatID, "✏️ Опишите работы (до 100 символов):")
		return
	}
	title, ok := b.workshopConfig().WorkTitle(parts[2])
	if !ok {
		b.reply(ctx, chatID, "Этот вид работ больше недоступен. Выберите другой.")
		b.sendWorkTypes(ctx, chatID, clientID)
		return
	}
	b.createOrder(ctx, chatID, masterID, clientID, title)
}

func (b *Bot) createOrder(ctx context.Context, chatID, masterID, clientID int64, description string) {
	res, err := b.deps.Orders.CreateOrder(ctx, orders.CreateRequest{
		ClientID:    clientID,
		MasterID:    masterID,
		Description: description,
	})
	if err != nil {
		// Keep the custom-description step open for a corrected text.
		if !domain.IsValidation(err) {
			b.state.reset(masterID)
		}
		b.replyError(ctx, chatID, err)
		return
	}
	b.state.reset(masterID)

	o := res.Order
	zerolog.Ctx(ctx).Info().Int64("order_id", o.ID).Msg("Order created from chat")
	b.showOrder(ctx, chatID, 0, o)

	b.notifier.Send(ctx, o.ClientID, fmt.Sprintf("🔧 Мастер %s принял ваш автомобиль в работу.\nЗаказ #%d: %s",
		o.MasterName, o.ID, o.Description), nil)
	if a := res.RemovedAppointment; a != nil {
		b.notifier.Send(ctx, o.ClientID, fmt.Sprintf("ℹ️ Запись на %s %s снята, так как заказ оформлен.",
			a.Date.Format("02.01.2006"), a.Start), nil)
	}
}

func orderActions(o *model.Order) tgbotapi.InlineKeyboardMarkup {
	id := strconv.FormatInt(o.ID, 10)
	var rows [][]tgbotapi.InlineKeyboardButton
	switch o.Status {
	case model.OrderInWork:
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Готово", "ord:ready:"+id),
			tgbotapi.NewInlineKeyboardButtonData("🔁 Передать", "ord:transfer:"+id),
		))
	case model.OrderWait:
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔧 Вернуть в работу", "ord:resume:"+id),
			tgbotapi.NewInlineKeyboardButtonData("🔁 Передать", "ord:transfer:"+id),
		))
	default:
		return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬅️ К списку", "ord:list:0"),
		))
	}
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✏️ Описание", "ord:desc:"+id),
			tgbotapi.NewInlineKeyboardButtonData("🛣 Пробег", "ord:km:"+id),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗑 Удалить", "ord:del:"+id),
			tgbotapi.NewInlineKeyboardButtonData("⬅️ К списку", "ord:list:0"),
		),
	)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) showOrder(ctx context.Context, chatID int64, messageID int, o *model.Order) {
	markup := orderActions(o)
	if messageID != 0 {
		b.notifier.Edit(ctx, chatID, messageID, orders.FormatOrder(o), &markup)
		return
	}
	b.notifier.Send(ctx, chatID, orders.FormatOrder(o), markup)
}

func (b *Bot) showActiveOrders(ctx context.Context, chatID int64, messageID int, masterID int64, page int) {
	if !b.require(ctx, chatID, b.deps.Access.RequireMaster(ctx, masterID)) {
		return
	}
	list, err := b.deps.Orders.ListOrders(ctx, model.OrderFilter{MasterID: masterID, ActiveOnly: true})
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	if len(list) == 0 {
		b.reply(ctx, chatID, "📭 Активных заказов нет.")
		return
	}
	items := make([]listItem, 0, len(list))
	for _, o := range list {
		items = append(items, listItem{
			Label:    fmt.Sprintf("#%d %s", o.ID, o.ClientName),
			Detail:   fmt.Sprintf("%s · %s", orders.StatusLabel(o.Status), o.Description),
			Callback: fmt.Sprintf("ord:view:%d", o.ID),
		})
	}
	b.renderPaginatedItems(ctx, PaginationParams{
		ChatID:     chatID,
		MessageID:  messageID,
		Page:       page,
		Title:      "🔧 Активные заказы",
		PagePrefix: "ord:list:",
	}, items)
}

func (b *Bot) showClientOrders(ctx context.Context, chatID, clientID int64) {
	list, err := b.deps.Orders.ListOrders(ctx, model.OrderFilter{ClientID: clientID, ActiveOnly: true})
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	if len(list) == 0 {
		b.reply(ctx, chatID, "📭 У вас нет активных заказов.")
		return
	}
	for i := range list {
		o := &list[i]
		if o.Status == model.OrderWait {
			b.notifier.Send(ctx, chatID, orders.FormatOrder(o), acceptKeyboard(o.ID))
			continue
		}
		b.reply(ctx, chatID, orders.FormatOrder(o))
	}
}

func acceptKeyboard(orderID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("👍 Принять работу", fmt.Sprintf("ord:accept:%d", orderID)),
	))
}

func (b *Bot) markReady(ctx context.Context, chatID, masterID, orderID int64, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		b.reply(ctx, chatID, "Сообщение не может быть пустым.")
		return
	}
	b.state.reset(masterID)
	o, err := b.deps.Orders.MarkReadyForPickup(ctx, orderID)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	b.notifier.Send(ctx, o.ClientID, fmt.Sprintf("%s\nЗаказ #%d: %s", text, o.ID, o.Description), acceptKeyboard(o.ID))
	b.showOrder(ctx, chatID, 0, o)
}

func (b *Bot) sendTransferTargets(ctx context.Context, chatID int64, messageID int, masterID int64, o *model.Order, page int) {
	masters, err := b.deps.Users.ListUsersByRole(ctx, model.RoleMaster, model.RoleAdmin)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	items := make([]listItem, 0, len(masters))
	for _, m := range masters {
		if m.TelegramID == masterID || m.TelegramID == o.ClientID {
			continue
		}
		items = append(items, listItem{
			Label:    m.DisplayName(),
			Callback: fmt.Sprintf("ord:to:%d:%d", o.ID, m.TelegramID),
		})
	}
	if len(items) == 0 {
		b.reply(ctx, chatID, "Нет других мастеров для передачи.")
		return
	}
	b.renderPaginatedItems(ctx, PaginationParams{
		ChatID:       chatID,
		MessageID:    messageID,
		Page:         page,
		Title:        fmt.Sprintf("🔁 Кому передать заказ #%d?", o.ID),
		PagePrefix:   fmt.Sprintf("ord:transfer:%d:", o.ID),
		BackCallback: fmt.Sprintf("ord:view:%d", o.ID),
	}, items)
}

func (b *Bot) transferOrder(ctx context.Context, chatID int64, o *model.Order, target int64) {
	updated, err := b.deps.Orders.TransferOrder(ctx, o.ID, target)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	b.reply(ctx, chatID, fmt.Sprintf("🔁 Заказ #%d передан мастеру %s.", updated.ID, updated.MasterName))
	b.notifier.Send(ctx, target, "📥 Вам передан заказ:\n\n"+orders.FormatOrder(updated), orderActions(updated))
	b.notifier.Send(ctx, updated.ClientID, fmt.Sprintf("ℹ️ Ваш заказ #%d передан мастеру %s (%s).",
		updated.ID, updated.MasterName, updated.MasterContact), nil)
}

func (b *Bot) updateOrderDescription(ctx context.Context, chatID, masterID int64, st *userState, text string) {
	if err := b.deps.Orders.UpdateDescription(ctx, st.OrderID, text); err != nil {
		if !domain.IsValidation(err) {
			b.state.reset(masterID)
		}
		b.replyError(ctx, chatID, err)
		return
	}
	b.state.reset(masterID)
	b.reply(ctx, chatID, "✅ Описание обновлено.")
}

func (b *Bot) updateOrderMileage(ctx context.Context, chatID, masterID int64, st *userState, text string) {
	km, err := strconv.Atoi(strings.ReplaceAll(text, " ", ""))
	if err != nil || km < 0 {
		b.reply(ctx, chatID, "Введите пробег целым числом, например 125000.")
		return
	}
	b.state.reset(masterID)
	if err := b.deps.Orders.UpdateMileage(ctx, st.OrderID, km); err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	b.reply(ctx, chatID, "✅ Пробег обновлён.")
}

// acceptWork asks the client for a grade of an order that is ready for pickup.
func (b *Bot) acceptWork(ctx context.Context, chatID, clientID, orderID int64) {
	o, err := b.deps.Orders.GetOrder(ctx, orderID)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	if o.ClientID != clientID {
		b.reply(ctx, chatID, "⛔ Это не ваш заказ.")
		return
	}
	if o.Status != model.OrderWait {
		b.reply(ctx, chatID, "Заказ ещё не готов к выдаче.")
		return
	}
	row := make([]tgbotapi.InlineKeyboardButton, 0, 5)
	for g := 1; g <= 5; g++ {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("⭐"+strconv.Itoa(g), fmt.Sprintf("grade:%d:%d", o.ID, g)))
	}
	b.notifier.Send(ctx, chatID, "Оцените работу мастера:", tgbotapi.NewInlineKeyboardMarkup(row))
}

func (b *Bot) handleGradeCallback(ctx context.Context, chatID, clientID int64, data string) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return
	}
	orderID, err1 := strconv.ParseInt(parts[1], 10, 64)
	grade, err2 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil {
		b.reply(ctx, chatID, "Некорректная оценка")
		return
	}
	o, err := b.deps.Orders.GetOrder(ctx, orderID)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	if o.ClientID != clientID {
		b.reply(ctx, chatID, "⛔ Это не ваш заказ.")
		return
	}
	closed, err := b.deps.Orders.CloseOrder(ctx, orderID, grade)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	b.reply(ctx, chatID, "🙏 Спасибо за оценку! Будем рады видеть вас снова.")
	b.notifier.Send(ctx, closed.MasterID, fmt.Sprintf("🏁 Заказ #%d закрыт клиентом, оценка: %d.", closed.ID, grade), nil)
}
