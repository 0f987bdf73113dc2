package bot

import (
	"context"

	"carservice/internal/booking"
	"carservice/internal/diagnostics"
	"carservice/internal/model"
	"carservice/internal/orders"
)

type UserStore interface {
	RegisterUser(ctx context.Context, telegramID int64, userName string) (*model.User, bool, error)
	GetUser(ctx context.Context, telegramID int64) (*model.User, error)
	UpdateProfile(ctx context.Context, u *model.User) error
	SetCanMessages(ctx context.Context, telegramID int64, enabled bool) error
	ListUsersByRole(ctx context.Context, roles ...model.Role) ([]model.User, error)
	ListBroadcastRecipients(ctx context.Context) ([]model.User, error)
}

type AppointmentStore interface {
	GetAppointment(ctx context.Context, id int64) (*model.Appointment, error)
	ListAppointments(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, error)
	DeleteAppointment(ctx context.Context, id int64) error
}

type ReviewStore interface {
	AddReview(ctx context.Context, r *model.Review) error
	ListVisibleReviews(ctx context.Context, limit int) ([]model.Review, error)
	HideReview(ctx context.Context, id int64) error
}

// BookingFlow is the booking dialog engine, keyed by the acting master.
type BookingFlow interface {
	Start(ctx context.Context, masterID, clientID int64) (*booking.Result, error)
	Advance(ctx context.Context, masterID int64, in booking.Input) (*booking.Result, error)
	Cancel(ctx context.Context, masterID int64) (*booking.Result, error)
	Prompt(ctx context.Context, masterID int64) (*booking.Result, error)
}

type OrderService interface {
	CreateOrder(ctx context.Context, req orders.CreateRequest) (*orders.CreateResult, error)
	MarkReadyForPickup(ctx context.Context, orderID int64) (*model.Order, error)
	ResumeWork(ctx context.Context, orderID int64) (*model.Order, error)
	CloseOrder(ctx context.Context, orderID int64, grade int) (*model.Order, error)
	TransferOrder(ctx context.Context, orderID, newMasterID int64) (*model.Order, error)
	DeleteOrder(ctx context.Context, orderID int64) (*model.Order, error)
	UpdateDescription(ctx context.Context, orderID int64, text string) error
	UpdateMileage(ctx context.Context, orderID int64, mileage int) error
	GetOrder(ctx context.Context, orderID int64) (*model.Order, error)
	ListOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, error)
}

type DiagnosticsService interface {
	Lookup(ctx context.Context, authorID int64, raw string) (*diagnostics.Decoded, bool, error)
	RecordManual(ctx context.Context, authorID, orderID int64, entry diagnostics.ManualEntry) (*model.DiagnosticRecord, error)
	Filter(ctx context.Context, kind model.EntryType) ([]model.DiagnosticRecord, error)
	HistoryAPISourced(ctx context.Context) ([]model.DiagnosticRecord, error)
}

type AccessChecker interface {
	Role(ctx context.Context, userID int64) (model.Role, error)
	Middleware(ctx context.Context, userID int64) error
	RequireMaster(ctx context.Context, userID int64) error
	RequireAdmin(ctx context.Context, userID int64) error
	SetRole(ctx context.Context, actorID, targetID int64, role model.Role) error
	BlockUser(ctx context.Context, actorID, targetID int64) error
	UnblockUser(ctx context.Context, actorID, targetID int64) error
}
