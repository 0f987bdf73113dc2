package orders

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"carservice/internal/domain"
	"carservice/internal/model"

	"github.com/rs/zerolog"
)

// Event types published after each successful operation.
const (
	EventCreated     = "order.created"
	EventReady       = "order.ready"
	EventResumed     = "order.resumed"
	EventClosed      = "order.closed"
	EventTransferred = "order.transferred"
	EventDeleted     = "order.deleted"
)

// Event is the payload of every order event.
type Event struct {
	Action     string      `json:"action"`
	Order      model.Order `json:"order"`
	Grade      int         `json:"grade,omitempty"`
	FromMaster int64       `json:"from_master,omitempty"`
}

// Store persists orders. Status changes are compare-and-set inside the store.
type Store interface {
	CreateOrder(ctx context.Context, o *model.Order) (*model.Appointment, error)
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	TransitionOrder(ctx context.Context, id int64, action string, from []model.OrderStatus, to model.OrderStatus, complied bool) (*model.Order, error)
	CloseOrder(ctx context.Context, id int64, grade, ratingDelta int) (*model.Order, error)
	TransferOrder(ctx context.Context, id, masterID int64, masterName, masterContact string) (*model.Order, error)
	DeleteOrder(ctx context.Context, id int64) (*model.Order, error)
	UpdateOrderDescription(ctx context.Context, id int64, description string) error
	UpdateOrderMileage(ctx context.Context, id int64, mileage int) error
	ListOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, error)
}

type UserDirectory interface {
	GetUser(ctx context.Context, telegramID int64) (*model.User, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

type Config struct {
	RatingMultiplier  int
	DescriptionMaxLen int
}

// Manager drives orders through in_work -> wait -> close.
type Manager struct {
	store     Store
	users     UserDirectory
	publisher EventPublisher
	cfg       Config
	logger    zerolog.Logger
}

func NewManager(store Store, users UserDirectory, publisher EventPublisher, cfg Config, logger *zerolog.Logger) *Manager {
	if cfg.RatingMultiplier <= 0 {
		cfg.RatingMultiplier = 1
	}
	if cfg.DescriptionMaxLen <= 0 {
		cfg.DescriptionMaxLen = 100
	}
	return &Manager{
		store:     store,
		users:     users,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With().Str("component", "orders").Logger(),
	}
}

// CreateRequest opens an order. A nil Vehicle copies the client's profile.
type CreateRequest struct {
	ClientID    int64
	MasterID    int64
	Description string
	Vehicle     *model.Vehicle
}

type CreateResult struct {
	Order *model.Order
	// RemovedAppointment is the pair's appointment consumed by the order, if any.
	RemovedAppointment *model.Appointment
}

func (m *Manager) CreateOrder(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	desc, err := m.validateDescription(req.Description)
	if err != nil {
		return nil, err
	}
	if req.ClientID == req.MasterID {
		return nil, domain.Validation("client", "master cannot open an order for themselves")
	}
	client, err := m.participant(ctx, req.ClientID, "client")
	if err != nil {
		return nil, err
	}
	master, err := m.participant(ctx, req.MasterID, "master")
	if err != nil {
		return nil, err
	}
	if !master.IsMaster() {
		return nil, domain.Validation("master", "user is not a master")
	}

	vehicle := client.Vehicle
	if req.Vehicle != nil {
		vehicle = *req.Vehicle
	}
	o := &model.Order{
		ClientID:      client.TelegramID,
		MasterID:      master.TelegramID,
		Description:   desc,
		Vehicle:       vehicle,
		ClientName:    client.Name,
		ClientContact: client.Contact,
		MasterName:    master.Name,
		MasterContact: master.Contact,
	}
	removed, err := m.store.CreateOrder(ctx, o)
	if err != nil {
		return nil, err
	}

	m.publish(EventCreated, Event{Action: "create", Order: *o})
	m.logger.Info().
		Int64("order_id", o.ID).
		Int64("client_id", o.ClientID).
		Int64("master_id", o.MasterID).
		Bool("appointment_removed", removed != nil).
		Msg("Order created")
	return &CreateResult{Order: o, RemovedAppointment: removed}, nil
}

// MarkReadyForPickup moves an in-work order to wait and flags the work as done.
func (m *Manager) MarkReadyForPickup(ctx context.Context, orderID int64) (*model.Order, error) {
	o, err := m.store.TransitionOrder(ctx, orderID, "mark ready",
		[]model.OrderStatus{model.OrderInWork}, model.OrderWait, true)
	if err != nil {
		return nil, err
	}
	m.publish(EventReady, Event{Action: "ready", Order: *o})
	return o, nil
}

// ResumeWork sends a waiting order back to work.
func (m *Manager) ResumeWork(ctx context.Context, orderID int64) (*model.Order, error) {
	o, err := m.store.TransitionOrder(ctx, orderID, "resume",
		[]model.OrderStatus{model.OrderWait}, model.OrderInWork, false)
	if err != nil {
		return nil, err
	}
	m.publish(EventResumed, Event{Action: "resume", Order: *o})
	return o, nil
}

// CloseOrder closes a waiting order; the master's rating grows with the grade.
func (m *Manager) CloseOrder(ctx context.Context, orderID int64, grade int) (*model.Order, error) {
	if grade < 1 || grade > 5 {
		return nil, domain.Validation("grade", "must be between 1 and 5")
	}
	o, err := m.store.CloseOrder(ctx, orderID, grade, grade*m.cfg.RatingMultiplier)
	if err != nil {
		return nil, err
	}
	m.publish(EventClosed, Event{Action: "close", Order: *o, Grade: grade})
	m.logger.Info().Int64("order_id", o.ID).Int("grade", grade).Int64("master_id", o.MasterID).Msg("Order closed")
	return o, nil
}

// TransferOrder hands a non-closed order to another master.
func (m *Manager) TransferOrder(ctx context.Context, orderID, newMasterID int64) (*model.Order, error) {
	current, err := m.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !current.IsActive() {
		return nil, domain.InvalidTransition("order", orderID, string(current.Status), "transfer")
	}
	if current.MasterID == newMasterID {
		return nil, domain.Validation("master", "order already belongs to this master")
	}
	if current.ClientID == newMasterID {
		return nil, domain.Validation("master", "cannot transfer to the client")
	}
	master, err := m.participant(ctx, newMasterID, "master")
	if err != nil {
		return nil, err
	}
	if !master.IsMaster() {
		return nil, domain.Validation("master", "user is not a master")
	}

	o, err := m.store.TransferOrder(ctx, orderID, master.TelegramID, master.Name, master.Contact)
	if err != nil {
		return nil, err
	}
	m.publish(EventTransferred, Event{Action: "transfer", Order: *o, FromMaster: current.MasterID})
	return o, nil
}

func (m *Manager) DeleteOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	o, err := m.store.DeleteOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	m.publish(EventDeleted, Event{Action: "delete", Order: *o})
	return o, nil
}

func (m *Manager) UpdateDescription(ctx context.Context, orderID int64, text string) error {
	desc, err := m.validateDescription(text)
	if err != nil {
		return err
	}
	return m.store.UpdateOrderDescription(ctx, orderID, desc)
}

func (m *Manager) UpdateMileage(ctx context.Context, orderID int64, mileage int) error {
	if mileage < 0 {
		return domain.Validation("mileage", "must not be negative")
	}
	return m.store.UpdateOrderMileage(ctx, orderID, mileage)
}

func (m *Manager) GetOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	return m.store.GetOrder(ctx, orderID)
}

func (m *Manager) ListOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, error) {
	return m.store.ListOrders(ctx, f)
}

func (m *Manager) validateDescription(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.Validation("description", "must not be empty")
	}
	if utf8.RuneCountInString(text) > m.cfg.DescriptionMaxLen {
		return "", domain.Validation("description", fmt.Sprintf("longer than %d characters", m.cfg.DescriptionMaxLen))
	}
	return text, nil
}

func (m *Manager) participant(ctx context.Context, id int64, field string) (*model.User, error) {
	u, err := m.users.GetUser(ctx, id)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.Validation(field, "profile incomplete")
		}
		return nil, fmt.Errorf("load %s: %w", field, err)
	}
	if !u.ProfileComplete() {
		return nil, domain.Validation(field, "profile incomplete")
	}
	return u, nil
}

func (m *Manager) publish(eventType string, ev Event) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.PublishJSON(eventType, ev); err != nil {
		m.logger.Warn().Err(err).Str("event", eventType).Msg("Failed to publish order event")
	}
}
