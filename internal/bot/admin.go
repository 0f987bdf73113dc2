package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"carservice/internal/model"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// handleAdminCommand reports whether msg was an admin command.
func (b *Bot) handleAdminCommand(ctx context.Context, msg *tgbotapi.Message) bool {
	cmd := msg.Command()
	switch cmd {
	case "role", "block", "unblock", "broadcast", "hide_review", "export":
	default:
		return false
	}

	chatID, actorID := msg.Chat.ID, msg.From.ID
	if !b.require(ctx, chatID, b.deps.Access.RequireAdmin(ctx, actorID)) {
		return true
	}
	args := strings.Fields(msg.CommandArguments())
	l := zerolog.Ctx(ctx)

	switch cmd {
	case "role":
		if len(args) != 2 {
			b.reply(ctx, chatID, "Использование: /role <id> <user|master|admin>")
			return true
		}
		target, err := strconv.ParseInt(args[0], 10, 64)
		role := model.Role(args[1])
		if err != nil || !role.Valid() || role == model.RoleBlocked {
			b.reply(ctx, chatID, "Использование: /role <id> <user|master|admin>")
			return true
		}
		if err := b.deps.Access.SetRole(ctx, actorID, target, role); err != nil {
			b.replyError(ctx, chatID, err)
			return true
		}
		b.reply(ctx, chatID, fmt.Sprintf("✅ Роль пользователя %d: %s", target, role))
		b.sendMainMenu(ctx, target, target)
	case "block", "unblock":
		if len(args) != 1 {
			b.reply(ctx, chatID, fmt.Sprintf("Использование: /%s <id>", cmd))
			return true
		}
		target, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			b.reply(ctx, chatID, "Некорректный id")
			return true
		}
		if cmd == "block" {
			err = b.deps.Access.BlockUser(ctx, actorID, target)
		} else {
			err = b.deps.Access.UnblockUser(ctx, actorID, target)
		}
		if err != nil {
			b.replyError(ctx, chatID, err)
			return true
		}
		b.reply(ctx, chatID, fmt.Sprintf("✅ Готово: /%s %d", cmd, target))
	case "broadcast":
		text := strings.TrimSpace(msg.CommandArguments())
		if text == "" {
			b.reply(ctx, chatID, "Использование: /broadcast <текст>")
			return true
		}
		users, err := b.deps.Users.ListBroadcastRecipients(ctx)
		if err != nil {
			b.replyError(ctx, chatID, err)
			return true
		}
		ids := make([]int64, 0, len(users))
		for _, u := range users {
			ids = append(ids, u.TelegramID)
		}
		sent, failed := b.notifier.Broadcast(ctx, ids, "📣 "+text)
		l.Info().Int("sent", sent).Int("failed", failed).Msg("Broadcast finished")
		b.reply(ctx, chatID, fmt.Sprintf("📣 Рассылка завершена: доставлено %d, ошибок %d.", sent, failed))
	case "hide_review":
		if len(args) != 1 || b.deps.Reviews == nil {
			b.reply(ctx, chatID, "Использование: /hide_review <id>")
			return true
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			b.reply(ctx, chatID, "Некорректный id")
			return true
		}
		if err := b.deps.Reviews.HideReview(ctx, id); err != nil {
			b.replyError(ctx, chatID, err)
			return true
		}
		b.reply(ctx, chatID, fmt.Sprintf("🙈 Отзыв #%d скрыт.", id))
	case "export":
		if b.deps.Exporter == nil {
			b.reply(ctx, chatID, "Выгрузка отчётов отключена.")
			return true
		}
		b.reply(ctx, chatID, "⏳ Формирую отчёт...")
		if err := b.deps.Exporter.ExportNow(ctx); err != nil {
			b.replyError(ctx, chatID, err)
		}
	}
	return true
}
