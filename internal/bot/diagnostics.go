package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"carservice/internal/diagnostics"
	"carservice/internal/domain"
	"carservice/internal/model"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) diagnosticsEnabled(ctx context.Context, chatID int64) bool {
	if b.deps.Diagnostics == nil {
		b.reply(ctx, chatID, "Диагностика сейчас недоступна.")
		return false
	}
	return true
}

func (b *Bot) startDTCLookup(ctx context.Context, chatID, userID int64) {
	if !b.require(ctx, chatID, b.deps.Access.RequireMaster(ctx, userID)) || !b.diagnosticsEnabled(ctx, chatID) {
		return
	}
	b.state.set(userID, &userState{Step: stepDTCLookup})
	b.reply(ctx, chatID, "🔍 Введите код неисправности, например P0171:")
}

func (b *Bot) lookupDTC(ctx context.Context, chatID, userID int64, text string) {
	decoded, _, err := b.deps.Diagnostics.Lookup(ctx, userID, text)
	switch {
	case domain.IsValidation(err):
		b.reply(ctx, chatID, "⚠️ Неверный формат кода. Пример: P0171, B1234, C0035, U0100.")
		return
	case domain.IsNotFound(err):
		b.state.reset(userID)
		b.reply(ctx, chatID, "🤷 Расшифровка кода не найдена.")
		return
	case err != nil:
		b.state.reset(userID)
		b.replyError(ctx, chatID, err)
		return
	}
	b.state.reset(userID)
	b.reply(ctx, chatID, diagnostics.FormatDecoded(decoded))
}

func (b *Bot) startDTCManual(ctx context.Context, chatID, userID int64) {
	if !b.require(ctx, chatID, b.deps.Access.RequireMaster(ctx, userID)) || !b.diagnosticsEnabled(ctx, chatID) {
		return
	}
	list, err := b.deps.Orders.ListOrders(ctx, model.OrderFilter{MasterID: userID, ActiveOnly: true})
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	if len(list) == 0 {
		b.reply(ctx, chatID, "📭 Нет активных заказов, к которым можно привязать код.")
		return
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, o := range list {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("#%d %s", o.ID, o.ClientName), fmt.Sprintf("dtc:order:%d", o.ID),
		)))
	}
	b.notifier.Send(ctx, chatID, "К какому заказу добавить код?", tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) recordManualDTC(ctx context.Context, chatID, userID int64, st *userState, text string) {
	entry, err := diagnostics.ParseManualEntry(text)
	if err != nil {
		b.reply(ctx, chatID, "⚠️ Формат: КОД:описание:причина1, причина2\nНапример: P0171:Бедная смесь:Подсос воздуха, Датчик MAF")
		return
	}
	rec, err := b.deps.Diagnostics.RecordManual(ctx, userID, st.OrderID, *entry)
	if err != nil {
		if !domain.IsValidation(err) {
			b.state.reset(userID)
		}
		b.replyError(ctx, chatID, err)
		return
	}
	b.state.reset(userID)
	b.reply(ctx, chatID, fmt.Sprintf("✅ Код %s добавлен к заказу #%d.", rec.Code, rec.OrderID))
}

func (b *Bot) sendDiagnosticsMenu(ctx context.Context, chatID, userID int64) {
	if !b.require(ctx, chatID, b.deps.Access.RequireMaster(ctx, userID)) || !b.diagnosticsEnabled(ctx, chatID) {
		return
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🌐 Из справочника", "dtc:hl:high"),
			tgbotapi.NewInlineKeyboardButtonData("✍️ Ручные", "dtc:hl:low"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🕘 История запросов", "dtc:history"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔍 Расшифровать", "dtc:lookup"),
			tgbotapi.NewInlineKeyboardButtonData("➕ Добавить вручную", "dtc:manual"),
		),
	)
	b.notifier.Send(ctx, chatID, "📊 Диагностические коды:", markup)
}

func (b *Bot) handleDiagnosticsCallback(ctx context.Context, chatID, userID int64, data string) {
	parts := strings.Split(strings.TrimPrefix(data, "dtc:"), ":")
	switch parts[0] {
	case "lookup":
		b.startDTCLookup(ctx, chatID, userID)
		return
	case "manual":
		b.startDTCManual(ctx, chatID, userID)
		return
	}

	if !b.require(ctx, chatID, b.deps.Access.RequireMaster(ctx, userID)) || !b.diagnosticsEnabled(ctx, chatID) {
		return
	}
	switch parts[0] {
	case "order":
		if len(parts) != 2 {
			return
		}
		orderID, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return
		}
		b.state.set(userID, &userState{Step: stepDTCManual, OrderID: orderID})
		b.reply(ctx, chatID, "✍️ Введите код в формате КОД:описание:причина1, причина2")
	case "hl":
		if len(parts) != 2 {
			return
		}
		kind, err := diagnostics.ParseFilter(parts[1])
		if err != nil {
			b.replyError(ctx, chatID, err)
			return
		}
		records, err := b.deps.Diagnostics.Filter(ctx, kind)
		if err != nil {
			b.replyError(ctx, chatID, err)
			return
		}
		title := "🌐 Коды из справочника"
		if kind == model.EntryManualDTC {
			title = "✍️ Коды, добавленные вручную"
		}
		b.reply(ctx, chatID, diagnostics.FormatRecords(title, records))
	case "history":
		records, err := b.deps.Diagnostics.HistoryAPISourced(ctx)
		if err != nil {
			b.replyError(ctx, chatID, err)
			return
		}
		b.reply(ctx, chatID, diagnostics.FormatRecords("🕘 История запросов", records))
	}
}
