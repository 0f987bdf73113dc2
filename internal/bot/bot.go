// Package bot is the Telegram transport of the car-service workshop.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"carservice/internal/booking"
	"carservice/internal/config"
	"carservice/internal/domain"
	"carservice/internal/metrics"
	"carservice/internal/model"
	"carservice/shared/access"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type telegramClient interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	SelfUser() tgbotapi.User
}

type realTelegramClient struct {
	api *tgbotapi.BotAPI
}

func (c *realTelegramClient) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	return c.api.Send(msg)
}

func (c *realTelegramClient) Request(msg tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return c.api.Request(msg)
}

func (c *realTelegramClient) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return c.api.GetUpdatesChan(cfg)
}

func (c *realTelegramClient) StopReceivingUpdates() {
	c.api.StopReceivingUpdates()
}

func (c *realTelegramClient) SelfUser() tgbotapi.User {
	return c.api.Self
}

// ReportExporter produces the audit report on demand.
type ReportExporter interface {
	ExportNow(ctx context.Context) error
}

// Deps are the services the bot talks to.
type Deps struct {
	Users        UserStore
	Appointments AppointmentStore
	Reviews      ReviewStore
	Booking      BookingFlow
	Orders       OrderService
	Diagnostics  DiagnosticsService
	Access       AccessChecker
	Exporter     ReportExporter
}

type Options struct {
	AdminID           int64
	Debug             bool
	MessagesPerSecond float64
	Workshop          *config.WorkshopConfig
	Now               func() time.Time
}

type Bot struct {
	tg         telegramClient
	notifier   *Notifier
	deps       Deps
	opts       Options
	workshop   atomic.Pointer[config.WorkshopConfig]
	state      *stateStore
	dispatcher *dispatcher
	logger     *zerolog.Logger
}

func New(token string, deps Deps, opts Options, logger *zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = opts.Debug
	return newBot(&realTelegramClient{api: api}, deps, opts, logger)
}

// NewWithTelegramClient allows injecting a mocked Telegram client for tests.
func NewWithTelegramClient(tg telegramClient, deps Deps, opts Options, logger *zerolog.Logger) (*Bot, error) {
	return newBot(tg, deps, opts, logger)
}

func newBot(tg telegramClient, deps Deps, opts Options, logger *zerolog.Logger) (*Bot, error) {
	if tg == nil {
		return nil, fmt.Errorf("telegram client is nil")
	}
	if deps.Users == nil || deps.Access == nil || deps.Booking == nil || deps.Orders == nil {
		return nil, fmt.Errorf("users, access, booking and orders are required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := logger.With().Str("component", "bot").Logger()
	b := &Bot{
		tg:         tg,
		notifier:   NewNotifier(tg, opts.MessagesPerSecond, opts.AdminID, deps.Users, logger),
		deps:       deps,
		opts:       opts,
		state:      newStateStore(),
		dispatcher: newDispatcher(),
		logger:     &l,
	}
	b.SetWorkshop(opts.Workshop)
	return b, nil
}

// Notifier exposes the outgoing message path for background jobs.
func (b *Bot) Notifier() *Notifier {
	return b.notifier
}

// SetWorkshop swaps the workshop catalogue. A nil config restores the defaults.
func (b *Bot) SetWorkshop(cfg *config.WorkshopConfig) {
	if cfg == nil {
		cfg = &config.WorkshopConfig{Name: "Автосервис", WorkTypes: config.DefaultWorkTypes}
	}
	b.workshop.Store(cfg)
}

func (b *Bot) workshopConfig() *config.WorkshopConfig {
	return b.workshop.Load()
}

var (
	clientMenu = tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnRequestService),
			tgbotapi.NewKeyboardButton(btnMyOrders),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnAppointments),
			tgbotapi.NewKeyboardButton(btnProfile),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnReviews),
			tgbotapi.NewKeyboardButton(btnContacts),
		),
	)

	masterMenu = tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnActiveOrders),
			tgbotapi.NewKeyboardButton(btnAppointments),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnDTCLookup),
			tgbotapi.NewKeyboardButton(btnDTCManual),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnDiagnostics),
			tgbotapi.NewKeyboardButton(btnProfile),
		),
	)

	adminMenu = tgbotapi.NewReplyKeyboard(
		append(masterMenu.Keyboard, tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnAdmin),
		))...,
	)
)

const (
	btnRequestService = "🚗 Записаться на сервис"
	btnMyOrders       = "📋 Мои заказы"
	btnAppointments   = "📅 Записи"
	btnProfile        = "👤 Профиль"
	btnReviews        = "⭐ Отзывы"
	btnContacts       = "ℹ️ Контакты"
	btnActiveOrders   = "🔧 Активные заказы"
	btnDTCLookup      = "🔍 Расшифровка DTC"
	btnDTCManual      = "✍️ Ручной DTC"
	btnDiagnostics    = "📊 Диагностика"
	btnAdmin          = "⚙️ Админка"
)

const adminHelp = "Команды администратора:\n" +
	"/role <id> <user|master|admin> — сменить роль\n" +
	"/block <id>, /unblock <id> — блокировка\n" +
	"/broadcast <текст> — рассылка\n" +
	"/hide_review <id> — скрыть отзыв\n" +
	"/export — выгрузить отчёт"

func (b *Bot) sendMainMenu(ctx context.Context, chatID, userID int64) {
	role, err := b.deps.Access.Role(ctx, userID)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("Failed to load role")
	}
	var markup tgbotapi.ReplyKeyboardMarkup
	switch role {
	case model.RoleAdmin:
		markup = adminMenu
	case model.RoleMaster:
		markup = masterMenu
	default:
		markup = clientMenu
	}
	b.notifier.Send(ctx, chatID, "Выберите действие:", markup)
}

// Start polls updates until ctx is cancelled, then waits for in-flight handlers.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.tg.GetUpdatesChan(u)
	b.logger.Info().Str("username", b.tg.SelfUser().UserName).Msg("Bot authorized")

	defer b.dispatcher.wait()
	for {
		select {
		case <-ctx.Done():
			b.tg.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.enqueue(ctx, update)
		}
	}
}

func updateSender(update *tgbotapi.Update) *tgbotapi.User {
	switch {
	case update.Message != nil:
		return update.Message.From
	case update.CallbackQuery != nil:
		return update.CallbackQuery.From
	}
	return nil
}

func (b *Bot) enqueue(ctx context.Context, update tgbotapi.Update) {
	from := updateSender(&update)
	if from == nil {
		return
	}
	requestID := uuid.New().String()
	l := b.logger.With().Str("request_id", requestID).Int64("user_id", from.ID).Logger()
	updateCtx := l.WithContext(ctx)
	b.dispatcher.dispatch(from.ID, func() {
		b.handleUpdate(updateCtx, &update)
	})
}

func (b *Bot) handleUpdate(ctx context.Context, update *tgbotapi.Update) {
	l := zerolog.Ctx(ctx)
	defer func() {
		if r := recover(); r != nil {
			l.Error().Interface("panic", r).Msg("Recovered from handler panic")
		}
	}()

	from := updateSender(update)
	if from == nil {
		return
	}
	if err := b.deps.Access.Middleware(ctx, from.ID); err != nil {
		if access.IsAccessDenied(err) {
			if update.Message != nil {
				b.reply(ctx, update.Message.Chat.ID, err.Error())
			} else if update.CallbackQuery != nil {
				_ = b.answerCallback(update.CallbackQuery.ID)
			}
			return
		}
		l.Error().Err(err).Msg("Access check failed")
		return
	}

	if update.CallbackQuery != nil {
		metrics.IncUpdate("callback")
		l.Debug().Str("data", update.CallbackQuery.Data).Msg("Handling callback query")
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	if update.Message != nil {
		metrics.IncUpdate("message")
		l.Debug().Str("text", update.Message.Text).Msg("Handling message")
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg == nil || msg.From == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	chatID, userID := msg.Chat.ID, msg.From.ID

	// Commands and menu buttons interrupt any pending text step.
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	if b.handleMenuButton(ctx, msg, text) {
		return
	}

	st := b.state.get(userID)
	if st.Step != stepNone {
		b.handleStepInput(ctx, msg, st, text)
		return
	}
	b.reply(ctx, chatID, "Не понял сообщение. Воспользуйтесь меню или /help.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID, userID := msg.Chat.ID, msg.From.ID
	switch msg.Command() {
	case "start":
		b.state.reset(userID)
		b.handleStart(ctx, msg)
	case "help":
		b.reply(ctx, chatID, "Пользуйтесь кнопками меню. /cancel прерывает текущее действие, /reviews показывает отзывы.")
	case "cancel":
		b.state.reset(userID)
		if _, err := b.deps.Booking.Cancel(ctx, userID); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to cancel booking session")
		}
		b.reply(ctx, chatID, "Операция отменена.")
		b.sendMainMenu(ctx, chatID, userID)
	case "profile":
		b.state.reset(userID)
		b.showProfile(ctx, chatID, userID)
	case "reviews":
		b.showReviews(ctx, chatID)
	default:
		if !b.handleAdminCommand(ctx, msg) {
			b.reply(ctx, chatID, "Неизвестная команда. /help")
		}
	}
}

func (b *Bot) handleMenuButton(ctx context.Context, msg *tgbotapi.Message, text string) bool {
	chatID, userID := msg.Chat.ID, msg.From.ID
	switch text {
	case btnRequestService:
		b.requestService(ctx, chatID, userID)
	case btnMyOrders:
		b.showClientOrders(ctx, chatID, userID)
	case btnAppointments:
		b.sendAppointmentScopes(ctx, chatID)
	case btnProfile:
		b.showProfile(ctx, chatID, userID)
	case btnReviews:
		b.showReviews(ctx, chatID)
	case btnContacts:
		b.showContacts(ctx, chatID)
	case btnActiveOrders:
		b.showActiveOrders(ctx, chatID, 0, userID, 0)
	case btnDTCLookup:
		b.startDTCLookup(ctx, chatID, userID)
	case btnDTCManual:
		b.startDTCManual(ctx, chatID, userID)
	case btnDiagnostics:
		b.sendDiagnosticsMenu(ctx, chatID, userID)
	case btnAdmin:
		if b.require(ctx, chatID, b.deps.Access.RequireAdmin(ctx, userID)) {
			b.reply(ctx, chatID, adminHelp)
		}
	default:
		return false
	}
	b.state.reset(userID)
	return true
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	u, created, err := b.deps.Users.RegisterUser(ctx, msg.From.ID, msg.From.UserName)
	if err != nil {
		b.replyError(ctx, msg.Chat.ID, err)
		return
	}
	ws := b.workshopConfig()
	if created {
		zerolog.Ctx(ctx).Info().Msg("New user registered")
		b.reply(ctx, msg.Chat.ID, fmt.Sprintf("👋 Добро пожаловать в %s!\nЗаполните профиль, чтобы записываться на сервис.", ws.Name))
	} else {
		b.reply(ctx, msg.Chat.ID, fmt.Sprintf("👋 С возвращением, %s!", u.DisplayName()))
	}
	b.sendMainMenu(ctx, msg.Chat.ID, msg.From.ID)
}

func (b *Bot) handleStepInput(ctx context.Context, msg *tgbotapi.Message, st *userState, text string) {
	switch st.Step {
	case stepProfileName, stepProfilePhone, stepProfileBrand, stepProfileModel,
		stepProfileYear, stepProfilePlate, stepProfileVIN, stepProfileKm:
		b.handleProfileStep(ctx, msg, st, text)
	case stepOrderCustom:
		b.createOrder(ctx, msg.Chat.ID, msg.From.ID, st.ClientID, text)
	case stepOrderDesc:
		b.updateOrderDescription(ctx, msg.Chat.ID, msg.From.ID, st, text)
	case stepOrderMileage:
		b.updateOrderMileage(ctx, msg.Chat.ID, msg.From.ID, st, text)
	case stepOrderReadyMsg:
		b.markReady(ctx, msg.Chat.ID, msg.From.ID, st.OrderID, text)
	case stepDTCLookup:
		b.lookupDTC(ctx, msg.Chat.ID, msg.From.ID, text)
	case stepDTCManual:
		b.recordManualDTC(ctx, msg.Chat.ID, msg.From.ID, st, text)
	case stepReview:
		b.saveReview(ctx, msg, text)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq == nil || cq.Message == nil {
		return
	}
	data := cq.Data
	_ = b.answerCallback(cq.ID)
	if data == "noop" {
		return
	}

	userID := cq.From.ID
	chatID := cq.Message.Chat.ID
	messageID := cq.Message.MessageID

	switch {
	case strings.HasPrefix(data, "mreq:"):
		b.handleRequestResponse(ctx, chatID, userID, data)
	case strings.HasPrefix(data, "bk:"), strings.HasPrefix(data, "date:"):
		b.handleBookingCallback(ctx, chatID, messageID, userID, data)
	case strings.HasPrefix(data, "appt:"):
		b.handleAppointmentsCallback(ctx, chatID, userID, data)
	case strings.HasPrefix(data, "ord:"):
		b.handleOrderCallback(ctx, chatID, messageID, userID, data)
	case strings.HasPrefix(data, "wt:"):
		b.handleWorkTypeCallback(ctx, chatID, userID, data)
	case strings.HasPrefix(data, "grade:"):
		b.handleGradeCallback(ctx, chatID, userID, data)
	case strings.HasPrefix(data, "dtc:"):
		b.handleDiagnosticsCallback(ctx, chatID, userID, data)
	case strings.HasPrefix(data, "profile:"):
		b.handleProfileCallback(ctx, chatID, userID, data)
	case data == "review:new":
		b.state.set(userID, &userState{Step: stepReview})
		b.reply(ctx, chatID, "✍️ Напишите ваш отзыв одним сообщением:")
	default:
		zerolog.Ctx(ctx).Warn().Str("data", data).Msg("Unknown callback")
	}
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	b.notifier.Send(ctx, chatID, text, nil)
}

func (b *Bot) answerCallback(id string) error {
	_, err := b.tg.Request(tgbotapi.NewCallback(id, ""))
	return err
}

// require replies with the denial reason and reports false when err is set.
func (b *Bot) require(ctx context.Context, chatID int64, err error) bool {
	if err == nil {
		return true
	}
	b.replyError(ctx, chatID, err)
	return false
}

// replyError logs err and sends the matching user-facing text.
func (b *Bot) replyError(ctx context.Context, chatID int64, err error) {
	l := zerolog.Ctx(ctx)
	switch {
	case domain.IsValidation(err), domain.IsConflict(err), access.IsAccessDenied(err):
		l.Debug().Err(err).Msg("Request rejected")
	default:
		l.Error().Err(err).Msg("Request failed")
	}
	b.reply(ctx, chatID, userMessage(err))
}

func userMessage(err error) string {
	var denied *access.AccessDeniedError
	var conflict domain.ConflictError
	switch {
	case errors.As(err, &denied):
		return denied.Reason
	case errors.Is(err, booking.ErrDayFull):
		return "😔 На этот день свободного времени нет. Выберите другой день."
	case errors.Is(err, booking.ErrPastDate):
		return "⚠️ Нельзя записать на прошедшую дату."
	case errors.Is(err, booking.ErrTooFar):
		return "⚠️ Слишком далёкая дата. Выберите дату ближе."
	case errors.Is(err, booking.ErrSlotTaken):
		return "⚠️ Это время уже занято. Выберите другое."
	case errors.Is(err, booking.ErrProfileIncomplete):
		return "⚠️ Профиль не заполнен: нужны имя и телефон. Откройте «" + btnProfile + "»."
	case errors.As(err, &conflict) && conflict.Resource == "order":
		return "⚠️ У этого клиента уже есть активный заказ у мастера."
	case domain.IsConflict(err):
		return "⚠️ Данные изменились. Начните действие заново."
	case domain.IsValidation(err):
		return "⚠️ Некорректный ввод. Попробуйте ещё раз."
	case domain.IsNotFound(err):
		return "❌ Не найдено. Возможно, запись уже удалена."
	}
	return "❌ Не удалось выполнить действие. Попробуйте позже."
}
