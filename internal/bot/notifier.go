package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"carservice/internal/metrics"
	"carservice/internal/model"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Notifier is the single outgoing path to Telegram. Failures are logged and
// reported as false; they never reach the scheduling or order logic.
type Notifier struct {
	tg         telegramClient
	limiter    *rate.Limiter
	maxRetries int
	adminID    int64
	users      UserStore
	logger     zerolog.Logger
}

// NewNotifier limits sends to perSecond messages with a burst of the same size.
func NewNotifier(tg telegramClient, perSecond float64, adminID int64, users UserStore, logger *zerolog.Logger) *Notifier {
	if perSecond <= 0 {
		perSecond = 25
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &Notifier{
		tg:         tg,
		limiter:    rate.NewLimiter(rate.Limit(perSecond), burst),
		maxRetries: 3,
		adminID:    adminID,
		users:      users,
		logger:     logger.With().Str("component", "notifier").Logger(),
	}
}

// Send delivers a text message with an optional reply markup.
func (n *Notifier) Send(ctx context.Context, chatID int64, text string, markup interface{}) bool {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	_, err := n.deliver(ctx, msg)
	if err != nil {
		n.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
		return false
	}
	return true
}

// Edit replaces the text and inline keyboard of a sent message.
func (n *Notifier) Edit(ctx context.Context, chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) bool {
	var edit tgbotapi.EditMessageTextConfig
	if markup != nil {
		edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, *markup)
	} else {
		edit = tgbotapi.NewEditMessageText(chatID, messageID, text)
	}
	if _, err := n.deliver(ctx, edit); err != nil {
		if isNotModified(err) {
			return true
		}
		n.logger.Debug().Err(err).Int64("chat_id", chatID).Int("message_id", messageID).Msg("Edit failed, sending new message")
		if markup != nil {
			return n.Send(ctx, chatID, text, *markup)
		}
		return n.Send(ctx, chatID, text, nil)
	}
	return true
}

// SendDocument sends a file to the administrator.
func (n *Notifier) SendDocument(ctx context.Context, filename string, data io.Reader, caption string) error {
	if n.adminID == 0 {
		return errors.New("admin id is not configured")
	}
	// Buffered so a rate limited upload can be resent in full.
	raw, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	doc := tgbotapi.NewDocument(n.adminID, tgbotapi.FileBytes{Name: filename, Bytes: raw})
	doc.Caption = caption
	_, err = n.deliver(ctx, doc)
	return err
}

// isNotModified reports Telegram rejecting an edit whose text and markup
// match the current message.
func isNotModified(err error) bool {
	var tgErr *tgbotapi.Error
	return errors.As(err, &tgErr) && strings.Contains(tgErr.Message, "message is not modified")
}

// SendReminder tells the client about an upcoming visit.
func (n *Notifier) SendReminder(ctx context.Context, a model.Appointment) error {
	master := ""
	if n.users != nil {
		if u, err := n.users.GetUser(ctx, a.MasterID); err == nil && u.Name != "" {
			master = u.Name
		}
	}
	_, err := n.deliver(ctx, tgbotapi.NewMessage(a.ClientID, formatReminderMessage(a, master)))
	return err
}

// Broadcast sends text to every recipient and reports the counts.
func (n *Notifier) Broadcast(ctx context.Context, recipients []int64, text string) (sent, failed int) {
	for _, id := range recipients {
		if ctx.Err() != nil {
			failed += len(recipients) - sent - failed
			return sent, failed
		}
		if n.Send(ctx, id, text, nil) {
			sent++
		} else {
			failed++
		}
	}
	return sent, failed
}

func (n *Notifier) deliver(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	var lastErr error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if err := n.limiter.Wait(ctx); err != nil {
			return tgbotapi.Message{}, err
		}
		msg, err := n.tg.Send(c)
		if err == nil {
			metrics.IncNotification("sent")
			return msg, nil
		}
		lastErr = err

		var tgErr *tgbotapi.Error
		if !errors.As(err, &tgErr) || tgErr.RetryAfter <= 0 {
			break
		}
		metrics.IncNotification("retried")
		wait := time.Duration(tgErr.RetryAfter) * time.Second
		select {
		case <-ctx.Done():
			return tgbotapi.Message{}, ctx.Err()
		case <-time.After(wait):
		}
	}
	metrics.IncNotification("failed")
	return tgbotapi.Message{}, lastErr
}
