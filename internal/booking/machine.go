package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carservice/internal/domain"
	"carservice/internal/model"
	"carservice/internal/slots"

	"github.com/rs/zerolog"
)

var (
	// ErrDayFull is returned when the chosen day has no free hour left.
	ErrDayFull = domain.ValidationError{Field: "date", Msg: "no free time that day"}
	// ErrPastDate is returned for days before today.
	ErrPastDate = domain.ValidationError{Field: "date", Msg: "cannot book in the past"}
	// ErrTooFar is returned for days and months past the booking horizon.
	ErrTooFar = domain.ValidationError{Field: "date", Msg: "date is too far"}
	// ErrSlotTaken is returned when the picked hour or window is no longer free.
	ErrSlotTaken = domain.ConflictError{Resource: "appointment", Msg: "slot is no longer free"}
	// ErrProfileIncomplete is returned when a participant has no name or contact.
	ErrProfileIncomplete = domain.ValidationError{Field: "profile", Msg: "profile incomplete"}
)

// AppointmentStore is the storage the machine reads and commits to.
type AppointmentStore interface {
	ListAppointmentsForDate(ctx context.Context, masterID int64, date time.Time) ([]model.Appointment, error)
	ListAppointmentsInRange(ctx context.Context, masterID int64, from, to time.Time) ([]model.Appointment, error)
	BookAppointment(ctx context.Context, a *model.Appointment) (*model.Appointment, error)
}

// UserDirectory resolves participants.
type UserDirectory interface {
	GetUser(ctx context.Context, telegramID int64) (*model.User, error)
}

// EventPublisher receives domain events.
type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

type Config struct {
	Durations    []float64
	PastDays     int
	FutureMonths int
	Location     *time.Location
	Now          func() time.Time
}

// CalendarView describes a month page of the day picker.
type CalendarView struct {
	Year   int
	Month  time.Month
	Busy   map[int]bool
	Today  time.Time
	Latest time.Time
}

// Selectable reports whether day of the viewed month can be picked.
func (v *CalendarView) Selectable(day int) bool {
	d := time.Date(v.Year, v.Month, day, 0, 0, 0, 0, v.Today.Location())
	return !d.Before(v.Today) && !d.After(v.Latest) && !v.Busy[day]
}

// Confirmation is what the client is told after a commit.
type Confirmation struct {
	MasterName     string
	MasterUserName string
	MasterContact  string
	ClientName     string
	Date           time.Time
	Start          model.Clock
	End            model.Clock
}

// Result is the state reached after an input, with what the next prompt needs.
type Result struct {
	State        State
	MasterID     int64
	ClientID     int64
	Date         time.Time
	Hour         int
	FreeHours    []int
	Calendar     *CalendarView
	Durations    []float64
	Appointment  *model.Appointment
	Replaced     *model.Appointment
	Confirmation *Confirmation
}

// Machine runs booking sessions. Each session is advanced by one goroutine at a time;
// different sessions may run concurrently.
type Machine struct {
	fsm       *FSM
	store     SessionStore
	calc      *slots.Calculator
	appts     AppointmentStore
	users     UserDirectory
	publisher EventPublisher
	cfg       Config
	logger    zerolog.Logger
}

func NewMachine(
	store SessionStore,
	calc *slots.Calculator,
	appts AppointmentStore,
	users UserDirectory,
	publisher EventPublisher,
	cfg Config,
	logger *zerolog.Logger,
) *Machine {
	if len(cfg.Durations) == 0 {
		cfg.Durations = []float64{0.5, 1.0, 1.5, 2.0, 2.5, 3.0}
	}
	if cfg.PastDays <= 0 {
		cfg.PastDays = 30
	}
	if cfg.FutureMonths <= 0 {
		cfg.FutureMonths = 12
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Machine{
		fsm:       NewFSM(),
		store:     store,
		calc:      calc,
		appts:     appts,
		users:     users,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With().Str("component", "booking").Logger(),
	}
}

func (m *Machine) today() time.Time {
	return model.DateOnly(m.cfg.Now().In(m.cfg.Location))
}

func (m *Machine) latest() time.Time {
	return m.today().AddDate(0, m.cfg.FutureMonths, 0)
}

// Start opens a session for masterID booking clientID, replacing any earlier one.
func (m *Machine) Start(ctx context.Context, masterID, clientID int64) (*Result, error) {
	for _, id := range []int64{masterID, clientID} {
		u, err := m.users.GetUser(ctx, id)
		if err != nil && !domain.IsNotFound(err) {
			return nil, fmt.Errorf("load user %d: %w", id, err)
		}
		if !u.ProfileComplete() {
			return nil, ErrProfileIncomplete
		}
	}

	s := NewSession(masterID, clientID, m.cfg.Now())
	if err := m.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	m.logger.Debug().Int64("master_id", masterID).Int64("client_id", clientID).Msg("Booking session started")
	return m.result(s), nil
}

// Session returns the live session of masterID or nil.
func (m *Machine) Session(ctx context.Context, masterID int64) (*Session, error) {
	return m.store.Get(ctx, masterID)
}

// Advance applies one input to the master's session. On error the session keeps
// its stage, except a lost race at commit which returns it to time selection.
func (m *Machine) Advance(ctx context.Context, masterID int64, in Input) (*Result, error) {
	if in.Kind == InputCancel {
		return m.Cancel(ctx, masterID)
	}

	s, err := m.store.Get(ctx, masterID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if s == nil {
		return nil, domain.NotFoundError{Resource: "booking session", ID: masterID}
	}
	if !m.fsm.Accepts(s.State, in.Kind) {
		return nil, domain.Validation("input", fmt.Sprintf("%s is not expected at %s", in.Kind, s.State))
	}

	switch in.Kind {
	case InputToday:
		return m.pickDate(ctx, s, m.today())
	case InputChooseDay:
		today := m.today()
		return m.showMonth(ctx, s, today.Year(), today.Month())
	case InputPickDay:
		return m.pickDate(ctx, s, model.DateOnly(in.Date.In(m.cfg.Location)))
	case InputNavigate:
		return m.navigate(ctx, s, in.Year, in.Month)
	case InputPickHour:
		return m.pickHour(ctx, s, in.Hour)
	case InputPickDuration:
		return m.commit(ctx, s, in.Duration)
	}
	return nil, domain.Validation("input", fmt.Sprintf("unknown input %q", in.Kind))
}

// Cancel ends the master's session. It is a no-op when there is none.
func (m *Machine) Cancel(ctx context.Context, masterID int64) (*Result, error) {
	if err := m.store.Delete(ctx, masterID); err != nil {
		return nil, fmt.Errorf("delete session: %w", err)
	}
	return &Result{State: StateCancelled, MasterID: masterID}, nil
}

// Prompt rebuilds the view of the current stage, e.g. after a rejected input.
func (m *Machine) Prompt(ctx context.Context, masterID int64) (*Result, error) {
	s, err := m.store.Get(ctx, masterID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if s == nil {
		return nil, domain.NotFoundError{Resource: "booking session", ID: masterID}
	}
	res := m.result(s)
	switch s.State {
	case StateChoosingDay:
		view, err := m.calendar(ctx, s.MasterID, s.ViewYear, s.ViewMonth)
		if err != nil {
			return nil, err
		}
		res.Calendar = view
	case StateChoosingTime:
		free, err := m.freeHours(ctx, s.MasterID, s.Date)
		if err != nil {
			return nil, err
		}
		res.FreeHours = free
	}
	return res, nil
}

func (m *Machine) pickDate(ctx context.Context, s *Session, date time.Time) (*Result, error) {
	today := m.today()
	if date.Before(today) {
		return nil, ErrPastDate
	}
	if date.After(m.latest()) {
		return nil, ErrTooFar
	}
	free, err := m.freeHours(ctx, s.MasterID, date)
	if err != nil {
		return nil, err
	}
	if len(free) == 0 {
		return nil, ErrDayFull
	}

	s.Date = date
	if err := m.move(ctx, s, StateChoosingTime); err != nil {
		return nil, err
	}
	res := m.result(s)
	res.FreeHours = free
	return res, nil
}

func (m *Machine) showMonth(ctx context.Context, s *Session, year int, month time.Month) (*Result, error) {
	view, err := m.calendar(ctx, s.MasterID, year, month)
	if err != nil {
		return nil, err
	}
	s.ViewYear, s.ViewMonth = year, month
	if err := m.move(ctx, s, StateChoosingDay); err != nil {
		return nil, err
	}
	res := m.result(s)
	res.Calendar = view
	return res, nil
}

func (m *Machine) navigate(ctx context.Context, s *Session, year int, month time.Month) (*Result, error) {
	if month < time.January || month > time.December {
		return nil, domain.Validation("month", "out of range")
	}
	today := m.today()
	target := time.Date(year, month, 1, 0, 0, 0, 0, m.cfg.Location)
	earliest := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, m.cfg.Location).AddDate(0, 0, -m.cfg.PastDays)
	if target.Before(earliest) {
		return nil, domain.ValidationError{Field: "month", Msg: "cannot go further back"}
	}
	if target.After(m.latest()) {
		return nil, ErrTooFar
	}
	return m.showMonth(ctx, s, year, month)
}

func (m *Machine) pickHour(ctx context.Context, s *Session, hour int) (*Result, error) {
	if !m.calc.WorkingHours().Has(hour) {
		return nil, domain.Validation("hour", "outside working hours")
	}
	free, err := m.freeHours(ctx, s.MasterID, s.Date)
	if err != nil {
		return nil, err
	}
	if !contains(free, hour) {
		return nil, ErrSlotTaken
	}

	s.Hour = hour
	if err := m.move(ctx, s, StateChoosingDuration); err != nil {
		return nil, err
	}
	res := m.result(s)
	res.Durations = m.cfg.Durations
	return res, nil
}

func (m *Machine) commit(ctx context.Context, s *Session, duration float64) (*Result, error) {
	if !m.validDuration(duration) {
		return nil, domain.Validation("duration", fmt.Sprintf("unsupported duration %.1f", duration))
	}

	start := model.NewClock(s.Hour, 0)
	a := &model.Appointment{
		ClientID: s.ClientID,
		MasterID: s.MasterID,
		Date:     s.Date,
		Start:    start,
		End:      start.AddHours(duration),
	}
	replaced, err := m.appts.BookAppointment(ctx, a)
	if err != nil {
		if domain.IsConflict(err) {
			if mvErr := m.move(ctx, s, StateChoosingTime); mvErr != nil {
				return nil, errors.Join(err, mvErr)
			}
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("book appointment: %w", err)
	}

	if err := m.store.Delete(ctx, s.MasterID); err != nil {
		m.logger.Warn().Err(err).Int64("master_id", s.MasterID).Msg("Failed to drop committed session")
	}

	confirmation := m.confirmation(ctx, a)

	if m.publisher != nil {
		if err := m.publisher.PublishJSON(EventAppointmentBooked, a); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to publish appointment event")
		}
	}
	m.logger.Info().
		Int64("appointment_id", a.ID).
		Int64("master_id", a.MasterID).
		Int64("client_id", a.ClientID).
		Str("date", a.Date.Format(model.DateLayout)).
		Str("window", a.Start.String()+"-"+a.End.String()).
		Bool("replaced", replaced != nil).
		Msg("Appointment booked")

	s.State = StateCommitted
	res := m.result(s)
	res.Appointment = a
	res.Replaced = replaced
	res.Confirmation = confirmation
	return res, nil
}

// EventAppointmentBooked is published with the stored appointment as payload.
const EventAppointmentBooked = "appointment.booked"

// confirmation never fails: the appointment is already stored, so a missing
// participant only leaves the name fields empty.
func (m *Machine) confirmation(ctx context.Context, a *model.Appointment) *Confirmation {
	c := &Confirmation{Date: a.Date, Start: a.Start, End: a.End}
	if master, err := m.users.GetUser(ctx, a.MasterID); err != nil {
		m.logger.Warn().Err(err).Int64("appointment_id", a.ID).Int64("master_id", a.MasterID).Msg("Failed to load master for confirmation")
	} else {
		c.MasterName, c.MasterUserName, c.MasterContact = master.Name, master.UserName, master.Contact
	}
	if client, err := m.users.GetUser(ctx, a.ClientID); err != nil {
		m.logger.Warn().Err(err).Int64("appointment_id", a.ID).Int64("client_id", a.ClientID).Msg("Failed to load client for confirmation")
	} else {
		c.ClientName = client.Name
	}
	return c
}

func (m *Machine) move(ctx context.Context, s *Session, to State) error {
	if !m.fsm.CanTransition(s.State, to) {
		return domain.InvalidTransition("booking session", s.MasterID, string(s.State), string(to))
	}
	s.State = to
	s.UpdatedAt = m.cfg.Now()
	if err := m.store.Save(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (m *Machine) freeHours(ctx context.Context, masterID int64, date time.Time) ([]int, error) {
	list, err := m.appts.ListAppointmentsForDate(ctx, masterID, date)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return m.calc.FreeHours(date, list).Sorted(), nil
}

func (m *Machine) calendar(ctx context.Context, masterID int64, year int, month time.Month) (*CalendarView, error) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, m.cfg.Location)
	last := first.AddDate(0, 1, -1)
	list, err := m.appts.ListAppointmentsInRange(ctx, masterID, first, last)
	if err != nil {
		return nil, fmt.Errorf("list month appointments: %w", err)
	}
	return &CalendarView{
		Year:   year,
		Month:  month,
		Busy:   m.calc.BusyDays(year, month, m.cfg.Location, list),
		Today:  m.today(),
		Latest: m.latest(),
	}, nil
}

func (m *Machine) validDuration(d float64) bool {
	for _, v := range m.cfg.Durations {
		if v == d {
			return true
		}
	}
	return false
}

func (m *Machine) result(s *Session) *Result {
	return &Result{
		State:    s.State,
		MasterID: s.MasterID,
		ClientID: s.ClientID,
		Date:     s.Date,
		Hour:     s.Hour,
	}
}

func contains(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
