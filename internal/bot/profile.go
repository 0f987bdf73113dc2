package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"carservice/internal/domain"
	"carservice/internal/model"
	"carservice/internal/orders"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	maxNameLen   = 64
	maxReviewLen = 1000
	skipInput    = "-"
)

var profilePrompts = map[dialogStep]string{
	stepProfileName:  "Введите ваше имя:",
	stepProfilePhone: "Введите телефон (например +7 999 123-45-67) или поделитесь контактом:",
	stepProfileBrand: "Марка автомобиля (или «-» чтобы пропустить):",
	stepProfileModel: "Модель автомобиля (или «-»):",
	stepProfileYear:  "Год выпуска (или «-»):",
	stepProfilePlate: "Госномер (или «-»):",
	stepProfileVIN:   "VIN из 17 символов (или «-»):",
	stepProfileKm:    "Пробег в км (или «-»):",
}

func (b *Bot) showProfile(ctx context.Context, chatID, userID int64) {
	u, err := b.deps.Users.GetUser(ctx, userID)
	if err != nil && !domain.IsNotFound(err) {
		b.replyError(ctx, chatID, err)
		return
	}
	if u == nil {
		u = &model.User{TelegramID: userID}
	}

	var sb strings.Builder
	sb.WriteString("👤 Профиль\n\n")
	sb.WriteString(fmt.Sprintf("Имя: %s\n", valueOrDash(u.Name)))
	sb.WriteString(fmt.Sprintf("Телефон: %s\n", valueOrDash(u.Contact)))
	sb.WriteString(fmt.Sprintf("Автомобиль: %s\n", valueOrDash(orders.FormatVehicle(u.Vehicle))))
	if u.IsMaster() {
		sb.WriteString(fmt.Sprintf("Рейтинг: %d\n", u.Rating))
	}
	notify := "выключены"
	if u.CanMessages {
		notify = "включены"
	}
	sb.WriteString("Рассылки: " + notify)

	markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✏️ Изменить", "profile:edit"),
		tgbotapi.NewInlineKeyboardButtonData("🔔 Рассылки вкл/выкл", "profile:notify"),
	))
	b.notifier.Send(ctx, chatID, sb.String(), markup)
}

func valueOrDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

func (b *Bot) handleProfileCallback(ctx context.Context, chatID, userID int64, data string) {
	u, err := b.deps.Users.GetUser(ctx, userID)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	switch strings.TrimPrefix(data, "profile:") {
	case "edit":
		b.state.set(userID, &userState{Step: stepProfileName, Profile: *u})
		b.reply(ctx, chatID, profilePrompts[stepProfileName])
	case "notify":
		if err := b.deps.Users.SetCanMessages(ctx, userID, !u.CanMessages); err != nil {
			b.replyError(ctx, chatID, err)
			return
		}
		if u.CanMessages {
			b.reply(ctx, chatID, "🔕 Рассылки выключены.")
		} else {
			b.reply(ctx, chatID, "🔔 Рассылки включены.")
		}
	}
}

// handleProfileStep validates one answer and moves to the next question.
func (b *Bot) handleProfileStep(ctx context.Context, msg *tgbotapi.Message, st *userState, text string) {
	chatID := msg.Chat.ID
	skip := text == skipInput
	p := &st.Profile

	var next dialogStep
	switch st.Step {
	case stepProfileName:
		if text == "" || utf8.RuneCountInString(text) > maxNameLen {
			b.reply(ctx, chatID, fmt.Sprintf("Имя должно быть от 1 до %d символов.", maxNameLen))
			return
		}
		p.Name = text
		next = stepProfilePhone
	case stepProfilePhone:
		if msg.Contact != nil {
			text = msg.Contact.PhoneNumber
		}
		phone, ok := normalizeAndValidatePhone(text)
		if !ok {
			b.reply(ctx, chatID, "Некорректный телефон. Пример: +7 999 123-45-67")
			return
		}
		p.Contact = phone
		next = stepProfileBrand
	case stepProfileBrand:
		if !skip {
			p.Vehicle.Brand = text
		}
		next = stepProfileModel
	case stepProfileModel:
		if !skip {
			p.Vehicle.Model = text
		}
		next = stepProfileYear
	case stepProfileYear:
		if !skip {
			year, err := strconv.Atoi(text)
			if err != nil || year < 1950 || year > b.opts.Now().Year()+1 {
				b.reply(ctx, chatID, "Введите год четырьмя цифрами, например 2018.")
				return
			}
			p.Vehicle.Year = year
		}
		next = stepProfilePlate
	case stepProfilePlate:
		if !skip {
			p.Vehicle.Plate = strings.ToUpper(strings.ReplaceAll(text, " ", ""))
		}
		next = stepProfileVIN
	case stepProfileVIN:
		if !skip {
			vin := strings.ToUpper(strings.ReplaceAll(text, " ", ""))
			if !validVIN(vin) {
				b.reply(ctx, chatID, "VIN состоит из 17 латинских букв и цифр (без I, O, Q).")
				return
			}
			p.Vehicle.VIN = vin
		}
		next = stepProfileKm
	case stepProfileKm:
		if !skip {
			km, err := strconv.Atoi(strings.ReplaceAll(text, " ", ""))
			if err != nil || km < 0 {
				b.reply(ctx, chatID, "Введите пробег целым числом, например 125000.")
				return
			}
			p.Vehicle.Mileage = km
		}
		b.saveProfile(ctx, chatID, msg.From.ID, p)
		return
	}

	st.Step = next
	b.reply(ctx, chatID, profilePrompts[next])
}

func (b *Bot) saveProfile(ctx context.Context, chatID, userID int64, p *model.User) {
	b.state.reset(userID)
	p.TelegramID = userID
	if err := b.deps.Users.UpdateProfile(ctx, p); err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	b.reply(ctx, chatID, "✅ Профиль сохранён.")
	b.sendMainMenu(ctx, chatID, userID)
}

func validVIN(vin string) bool {
	if len(vin) != 17 {
		return false
	}
	for _, r := range vin {
		switch {
		case r == 'I' || r == 'O' || r == 'Q':
			return false
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func normalizeAndValidatePhone(input string) (string, bool) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", false
	}
	plus := strings.HasPrefix(trimmed, "+")
	digits := filterDigits(trimmed)
	if len(digits) < 10 || len(digits) > 15 {
		return "", false
	}
	if plus {
		return "+" + digits, true
	}
	return digits, true
}

func filterDigits(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func (b *Bot) showContacts(ctx context.Context, chatID int64) {
	ws := b.workshopConfig()
	lines := []string{"🏠 " + ws.Name}
	if ws.Support.Address != "" {
		lines = append(lines, "📍 "+ws.Support.Address)
	}
	if ws.Support.Phone != "" {
		lines = append(lines, "📞 "+ws.Support.Phone)
	}
	if ws.Support.Email != "" {
		lines = append(lines, "✉️ "+ws.Support.Email)
	}
	b.reply(ctx, chatID, strings.Join(lines, "\n"))
}

const reviewsShown = 10

func (b *Bot) showReviews(ctx context.Context, chatID int64) {
	if b.deps.Reviews == nil {
		return
	}
	list, err := b.deps.Reviews.ListVisibleReviews(ctx, reviewsShown)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	text := "⭐ Отзывов пока нет. Будьте первым!"
	if len(list) > 0 {
		lines := []string{"⭐ Отзывы клиентов:"}
		for _, r := range list {
			lines = append(lines, fmt.Sprintf("\n#%d %s (%s):\n%s", r.ID, r.Author, r.CreatedAt.Format("02.01.2006"), r.Text))
		}
		text = strings.Join(lines, "\n")
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✍️ Оставить отзыв", "review:new"),
	))
	b.notifier.Send(ctx, chatID, text, markup)
}

func (b *Bot) saveReview(ctx context.Context, msg *tgbotapi.Message, text string) {
	chatID, userID := msg.Chat.ID, msg.From.ID
	if text == "" || utf8.RuneCountInString(text) > maxReviewLen {
		b.reply(ctx, chatID, fmt.Sprintf("Отзыв должен быть от 1 до %d символов.", maxReviewLen))
		return
	}
	b.state.reset(userID)
	if b.deps.Reviews == nil {
		return
	}
	r := &model.Review{AuthorID: userID, Author: b.displayName(ctx, userID), Text: text, Visible: true}
	if err := b.deps.Reviews.AddReview(ctx, r); err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	b.reply(ctx, chatID, "🙏 Спасибо за отзыв!")
}
