package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const itemsPerPage = 8

// listItem is one selectable row of a paginated list.
type listItem struct {
	Label    string
	Detail   string
	Callback string
}

type PaginationParams struct {
	ChatID       int64
	MessageID    int // 0 if new message
	Page         int
	Title        string
	PagePrefix   string
	BackCallback string
}

// pageBounds clamps page into range and returns the slice bounds and the page count.
func pageBounds(total, page int) (start, end, clamped, pages int) {
	pages = (total + itemsPerPage - 1) / itemsPerPage
	if pages == 0 {
		pages = 1
	}
	if page < 0 {
		page = 0
	}
	if page >= pages {
		page = pages - 1
	}
	start = page * itemsPerPage
	end = start + itemsPerPage
	if end > total {
		end = total
	}
	return start, end, page, pages
}

func (b *Bot) renderPaginatedItems(ctx context.Context, params PaginationParams, items []listItem) {
	startIdx, endIdx, page, pages := pageBounds(len(items), params.Page)

	var message strings.Builder
	message.WriteString(fmt.Sprintf("%s\n\n", params.Title))
	if pages > 1 {
		message.WriteString(fmt.Sprintf("Страница %d из %d\n\n", page+1, pages))
	}

	current := items[startIdx:endIdx]
	for i, item := range current {
		message.WriteString(fmt.Sprintf("%d. %s\n", startIdx+i+1, item.Label))
		if item.Detail != "" {
			message.WriteString(fmt.Sprintf("   %s\n", item.Detail))
		}
	}

	var keyboard [][]tgbotapi.InlineKeyboardButton
	for i, item := range current {
		btn := tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%d. %s", startIdx+i+1, item.Label), item.Callback)
		keyboard = append(keyboard, []tgbotapi.InlineKeyboardButton{btn})
	}

	var navButtons []tgbotapi.InlineKeyboardButton
	if page > 0 {
		navButtons = append(navButtons, tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", fmt.Sprintf("%s%d", params.PagePrefix, page-1)))
	}
	if endIdx < len(items) {
		navButtons = append(navButtons, tgbotapi.NewInlineKeyboardButtonData("Вперед ➡️", fmt.Sprintf("%s%d", params.PagePrefix, page+1)))
	}
	if len(navButtons) > 0 {
		keyboard = append(keyboard, navButtons)
	}

	if params.BackCallback != "" {
		keyboard = append(keyboard, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", params.BackCallback),
		})
	}

	markup := tgbotapi.NewInlineKeyboardMarkup(keyboard...)
	if params.MessageID != 0 {
		b.notifier.Edit(ctx, params.ChatID, params.MessageID, message.String(), &markup)
		return
	}
	b.notifier.Send(ctx, params.ChatID, message.String(), markup)
}
