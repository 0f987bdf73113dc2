package bot

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"carservice/internal/model"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNotifier(tg *fakeTelegram, users UserStore) *Notifier {
	logger := zerolog.New(io.Discard)
	return NewNotifier(tg, 100, adminID, users, &logger)
}

func TestNotifierRetriesAfterRateLimit(t *testing.T) {
	tg := &fakeTelegram{errs: []error{&tgbotapi.Error{
		Code:               429,
		Message:            "Too Many Requests: retry after 1",
		ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 1},
	}}}
	n := newTestNotifier(tg, nil)

	start := time.Now()
	assert.True(t, n.Send(context.Background(), clientID, "привет", nil))
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
	assert.Len(t, tg.messages(), 2)
}

func TestNotifierDoesNotRetryOtherErrors(t *testing.T) {
	tg := &fakeTelegram{failFor: map[int64]bool{clientID: true}}
	n := newTestNotifier(tg, nil)

	assert.False(t, n.Send(context.Background(), clientID, "привет", nil))
	assert.Len(t, tg.messages(), 1)
}

func TestNotifierStopsOnCancelledContext(t *testing.T) {
	tg := &fakeTelegram{errs: []error{&tgbotapi.Error{
		Code:               429,
		ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 30},
	}}}
	n := newTestNotifier(tg, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.False(t, n.Send(ctx, clientID, "привет", nil))
	assert.Len(t, tg.messages(), 1)
}

func TestNotifierSendDocument(t *testing.T) {
	tg := &fakeTelegram{}
	n := newTestNotifier(tg, nil)

	err := n.SendDocument(context.Background(), "report.xlsx", bytes.NewReader([]byte("x")), "Отчёт")
	require.NoError(t, err)
	require.Len(t, tg.sent, 1)
	doc, ok := tg.sent[0].(tgbotapi.DocumentConfig)
	require.True(t, ok)
	assert.Equal(t, adminID, doc.ChatID)
	assert.Equal(t, "Отчёт", doc.Caption)

	n.adminID = 0
	assert.Error(t, n.SendDocument(context.Background(), "report.xlsx", bytes.NewReader(nil), ""))
}

func TestNotifierSendReminder(t *testing.T) {
	tg := &fakeTelegram{}
	users := newFakeUsers(&model.User{TelegramID: masterID, Name: "Пётр"})
	n := newTestNotifier(tg, users)
	a := model.Appointment{
		ClientID: clientID,
		MasterID: masterID,
		Date:     time.Date(2026, 2, 12, 0, 0, 0, 0, time.Local),
		Start:    model.NewClock(10, 0),
		End:      model.NewClock(11, 30),
	}

	require.NoError(t, n.SendReminder(context.Background(), a))
	msgs := tg.messagesTo(clientID)
	require.Len(t, msgs, 1)
	assert.Equal(t, "⏰ Напоминание: 12.02.2026 в 10:00 у вас запись к мастеру Пётр (до 11:30).", msgs[0].Text)

	a.MasterID = 404
	require.NoError(t, n.SendReminder(context.Background(), a))
	assert.Contains(t, tg.messagesTo(clientID)[1].Text, "запись на сервис")
}

func TestPageBounds(t *testing.T) {
	start, end, page, pages := pageBounds(20, 1)
	assert.Equal(t, []int{8, 16, 1, 3}, []int{start, end, page, pages})

	start, end, page, pages = pageBounds(20, 9)
	assert.Equal(t, []int{16, 20, 2, 3}, []int{start, end, page, pages})

	start, end, page, pages = pageBounds(0, 0)
	assert.Equal(t, []int{0, 0, 0, 1}, []int{start, end, page, pages})
}

func TestNotifierSendDocumentResendsFullBodyAfterRateLimit(t *testing.T) {
	tg := &fakeTelegram{errs: []error{&tgbotapi.Error{
		Code:               429,
		Message:            "Too Many Requests: retry after 1",
		ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 1},
	}}}
	n := newTestNotifier(tg, nil)
	body := []byte("PK\x03\x04 report body")

	require.NoError(t, n.SendDocument(context.Background(), "report.xlsx", bytes.NewReader(body), "Отчёт"))
	require.Len(t, tg.sent, 2)
	for i, c := range tg.sent {
		doc, ok := c.(tgbotapi.DocumentConfig)
		require.True(t, ok)
		file, ok := doc.File.(tgbotapi.FileBytes)
		require.True(t, ok, "attempt %d", i)
		assert.Equal(t, "report.xlsx", file.Name)
		assert.Equal(t, body, file.Bytes, "attempt %d", i)
	}
}

func TestNotifierEditNotModifiedSendsNothingElse(t *testing.T) {
	tg := &fakeTelegram{errs: []error{&tgbotapi.Error{
		Code:    400,
		Message: "Bad Request: message is not modified: specified new message content and reply markup are exactly the same",
	}}}
	n := newTestNotifier(tg, nil)

	assert.True(t, n.Edit(context.Background(), clientID, 7, "то же самое", nil))
	msgs := tg.messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Edit)
}

func TestNotifierEditFallsBackToSend(t *testing.T) {
	tg := &fakeTelegram{errs: []error{&tgbotapi.Error{
		Code:    400,
		Message: "Bad Request: message to edit not found",
	}}}
	n := newTestNotifier(tg, nil)

	assert.True(t, n.Edit(context.Background(), clientID, 7, "новый текст", nil))
	msgs := tg.messages()
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].Edit)
	assert.False(t, msgs[1].Edit)
	assert.Equal(t, "новый текст", msgs[1].Text)
}
