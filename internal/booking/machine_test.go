package booking

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"carservice/internal/domain"
	"carservice/internal/model"
	"carservice/internal/slots"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	masterID int64 = 10
	clientID int64 = 20
)

var fixedNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

type fakeAppointments struct {
	mu      sync.Mutex
	list    []model.Appointment
	nextID  int64
	bookErr error
}

func (f *fakeAppointments) ListAppointmentsForDate(_ context.Context, master int64, date time.Time) ([]model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Appointment
	for _, a := range f.list {
		if a.MasterID == master && a.Date.Format(model.DateLayout) == date.Format(model.DateLayout) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAppointments) ListAppointmentsInRange(_ context.Context, master int64, from, to time.Time) ([]model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Appointment
	for _, a := range f.list {
		if a.MasterID == master && !a.Date.Before(from) && !a.Date.After(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAppointments) BookAppointment(_ context.Context, a *model.Appointment) (*model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bookErr != nil {
		return nil, f.bookErr
	}
	var replaced *model.Appointment
	kept := f.list[:0]
	for _, x := range f.list {
		if x.ClientID == a.ClientID && x.MasterID == a.MasterID {
			x := x
			replaced = &x
			continue
		}
		kept = append(kept, x)
	}
	f.list = kept
	var sameDay []model.Appointment
	for _, x := range f.list {
		if x.MasterID == a.MasterID {
			sameDay = append(sameDay, x)
		}
	}
	if !slots.IntervalFree(a.Date, a.Start, a.End, sameDay) {
		return nil, domain.ConflictError{Resource: "appointment", Msg: "taken"}
	}
	f.nextID++
	a.ID = f.nextID
	f.list = append(f.list, *a)
	return replaced, nil
}

type mockUsers struct {
	mock.Mock
}

func (m *mockUsers) GetUser(ctx context.Context, id int64) (*model.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*model.User), args.Error(1)
	}
	return nil, args.Error(1)
}

type recordingPublisher struct {
	events []string
}

func (p *recordingPublisher) PublishJSON(eventType string, _ any) error {
	p.events = append(p.events, eventType)
	return nil
}

func completeUsers() *mockUsers {
	users := &mockUsers{}
	users.On("GetUser", mock.Anything, masterID).Return(&model.User{
		TelegramID: masterID, Name: "Пётр", UserName: "petr_master", Contact: "+79000000010", Role: model.RoleMaster,
	}, nil)
	users.On("GetUser", mock.Anything, clientID).Return(&model.User{
		TelegramID: clientID, Name: "Анна", Contact: "+79000000020",
	}, nil)
	return users
}

func newTestMachine(t *testing.T, appts *fakeAppointments, users UserDirectory) (*Machine, *MemoryStore, *recordingPublisher) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	store := NewMemoryStore(30 * time.Minute)
	store.now = func() time.Time { return fixedNow }
	pub := &recordingPublisher{}
	m := NewMachine(store, slots.NewCalculator(8, 24), appts, users, pub, Config{
		Location: time.UTC,
		Now:      func() time.Time { return fixedNow },
	}, &logger)
	return m, store, pub
}

func onDay(d int, start, end model.Clock, client int64) model.Appointment {
	return model.Appointment{ClientID: client, MasterID: masterID, Date: time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC), Start: start, End: end}
}

func TestMachineTodayHappyPath(t *testing.T) {
	appts := &fakeAppointments{list: []model.Appointment{onDay(10, model.NewClock(10, 0), model.NewClock(11, 30), 99)}}
	m, store, pub := newTestMachine(t, appts, completeUsers())
	ctx := context.Background()

	res, err := m.Start(ctx, masterID, clientID)
	require.NoError(t, err)
	assert.Equal(t, StateChoosingOption, res.State)

	res, err = m.Advance(ctx, masterID, Input{Kind: InputToday})
	require.NoError(t, err)
	assert.Equal(t, StateChoosingTime, res.State)
	assert.NotContains(t, res.FreeHours, 10)
	assert.NotContains(t, res.FreeHours, 11)
	assert.Contains(t, res.FreeHours, 14)

	res, err = m.Advance(ctx, masterID, Input{Kind: InputPickHour, Hour: 14})
	require.NoError(t, err)
	assert.Equal(t, StateChoosingDuration, res.State)
	assert.Len(t, res.Durations, 6)

	res, err = m.Advance(ctx, masterID, Input{Kind: InputPickDuration, Duration: 1.5})
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, res.State)
	require.NotNil(t, res.Appointment)
	assert.Equal(t, "14:00", res.Appointment.Start.String())
	assert.Equal(t, "15:30", res.Appointment.End.String())
	assert.Equal(t, "2026-03-10", res.Appointment.Date.Format(model.DateLayout))
	require.NotNil(t, res.Confirmation)
	assert.Equal(t, "Пётр", res.Confirmation.MasterName)

	assert.Equal(t, 0, store.Len(), "committed session must be dropped")
	assert.Equal(t, []string{EventAppointmentBooked}, pub.events)

	_, err = m.Advance(ctx, masterID, Input{Kind: InputPickDuration, Duration: 1})
	assert.True(t, domain.IsNotFound(err))
}

func TestMachineCalendarPath(t *testing.T) {
	var full []model.Appointment
	full = append(full, onDay(12, model.NewClock(8, 0), model.NewClock(23, 59), 98))
	appts := &fakeAppointments{list: full}
	m, _, _ := newTestMachine(t, appts, completeUsers())
	ctx := context.Background()

	_, err := m.Start(ctx, masterID, clientID)
	require.NoError(t, err)

	res, err := m.Advance(ctx, masterID, Input{Kind: InputChooseDay})
	require.NoError(t, err)
	assert.Equal(t, StateChoosingDay, res.State)
	require.NotNil(t, res.Calendar)
	assert.True(t, res.Calendar.Busy[12])
	assert.False(t, res.Calendar.Selectable(9), "past day")
	assert.False(t, res.Calendar.Selectable(12), "busy day")
	assert.True(t, res.Calendar.Selectable(13))

	_, err = m.Advance(ctx, masterID, Input{Kind: InputPickDay, Date: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)})
	assert.ErrorIs(t, err, ErrPastDate)

	_, err = m.Advance(ctx, masterID, Input{Kind: InputPickDay, Date: time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)})
	assert.ErrorIs(t, err, ErrDayFull)
	assert.True(t, domain.IsValidation(err))

	sess, err := m.Session(ctx, masterID)
	require.NoError(t, err)
	assert.Equal(t, StateChoosingDay, sess.State, "rejected input keeps the stage")

	res, err = m.Advance(ctx, masterID, Input{Kind: InputPickDay, Date: time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, StateChoosingTime, res.State)
	assert.Len(t, res.FreeHours, 16)
}

func TestMachineNavigationBounds(t *testing.T) {
	m, _, _ := newTestMachine(t, &fakeAppointments{}, completeUsers())
	ctx := context.Background()

	_, err := m.Start(ctx, masterID, clientID)
	require.NoError(t, err)
	_, err = m.Advance(ctx, masterID, Input{Kind: InputChooseDay})
	require.NoError(t, err)

	tests := []struct {
		name  string
		year  int
		month time.Month
		ok    bool
	}{
		{"next month", 2026, time.April, true},
		{"previous month within window", 2026, time.February, true},
		{"two months back", 2026, time.January, false},
		{"eleven months ahead", 2027, time.February, true},
		{"beyond a year", 2027, time.April, false},
		{"invalid month", 2026, 13, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := m.Advance(ctx, masterID, Input{Kind: InputNavigate, Year: tt.year, Month: tt.month})
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.month, res.Calendar.Month)
				assert.Equal(t, StateChoosingDay, res.State)
			} else {
				assert.True(t, domain.IsValidation(err))
			}
		})
	}
}

func TestMachineTodayFull(t *testing.T) {
	appts := &fakeAppointments{list: []model.Appointment{onDay(10, model.NewClock(8, 0), model.NewClock(23, 59), 98)}}
	m, _, _ := newTestMachine(t, appts, completeUsers())
	ctx := context.Background()

	_, err := m.Start(ctx, masterID, clientID)
	require.NoError(t, err)

	_, err = m.Advance(ctx, masterID, Input{Kind: InputToday})
	assert.ErrorIs(t, err, ErrDayFull)

	sess, err := m.Session(ctx, masterID)
	require.NoError(t, err)
	assert.Equal(t, StateChoosingOption, sess.State)
}

func TestMachineRejectsInvalidInputs(t *testing.T) {
	appts := &fakeAppointments{list: []model.Appointment{onDay(10, model.NewClock(12, 0), model.NewClock(13, 0), 98)}}
	m, _, _ := newTestMachine(t, appts, completeUsers())
	ctx := context.Background()

	_, err := m.Start(ctx, masterID, clientID)
	require.NoError(t, err)

	_, err = m.Advance(ctx, masterID, Input{Kind: InputPickDuration, Duration: 1})
	assert.True(t, domain.IsValidation(err), "duration before time")

	_, err = m.Advance(ctx, masterID, Input{Kind: InputToday})
	require.NoError(t, err)

	_, err = m.Advance(ctx, masterID, Input{Kind: InputPickHour, Hour: 12})
	assert.ErrorIs(t, err, ErrSlotTaken)

	_, err = m.Advance(ctx, masterID, Input{Kind: InputPickHour, Hour: 5})
	assert.True(t, domain.IsValidation(err))

	_, err = m.Advance(ctx, masterID, Input{Kind: InputPickHour, Hour: 9})
	require.NoError(t, err)

	_, err = m.Advance(ctx, masterID, Input{Kind: InputPickDuration, Duration: 0})
	assert.True(t, domain.IsValidation(err))
	_, err = m.Advance(ctx, masterID, Input{Kind: InputPickDuration, Duration: 0.75})
	assert.True(t, domain.IsValidation(err))

	sess, err := m.Session(ctx, masterID)
	require.NoError(t, err)
	assert.Equal(t, StateChoosingDuration, sess.State)
}

func TestMachineCommitConflictReturnsToTime(t *testing.T) {
	appts := &fakeAppointments{}
	m, _, _ := newTestMachine(t, appts, completeUsers())
	ctx := context.Background()

	_, err := m.Start(ctx, masterID, clientID)
	require.NoError(t, err)
	_, err = m.Advance(ctx, masterID, Input{Kind: InputToday})
	require.NoError(t, err)
	_, err = m.Advance(ctx, masterID, Input{Kind: InputPickHour, Hour: 14})
	require.NoError(t, err)

	// another master session grabs 15:00 meanwhile
	appts.list = append(appts.list, onDay(10, model.NewClock(15, 0), model.NewClock(16, 0), 77))

	_, err = m.Advance(ctx, masterID, Input{Kind: InputPickDuration, Duration: 2})
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.True(t, domain.IsConflict(err))

	res, err := m.Prompt(ctx, masterID)
	require.NoError(t, err)
	assert.Equal(t, StateChoosingTime, res.State)
	assert.NotContains(t, res.FreeHours, 15)
	assert.Contains(t, res.FreeHours, 14)

	_, err = m.Advance(ctx, masterID, Input{Kind: InputPickHour, Hour: 14})
	require.NoError(t, err)
	res, err = m.Advance(ctx, masterID, Input{Kind: InputPickDuration, Duration: 1})
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, res.State)
}

func TestMachineCommitStorageFailure(t *testing.T) {
	appts := &fakeAppointments{bookErr: errors.New("disk full")}
	m, _, _ := newTestMachine(t, appts, completeUsers())
	ctx := context.Background()

	_, err := m.Start(ctx, masterID, clientID)
	require.NoError(t, err)
	_, err = m.Advance(ctx, masterID, Input{Kind: InputToday})
	require.NoError(t, err)
	_, err = m.Advance(ctx, masterID, Input{Kind: InputPickHour, Hour: 14})
	require.NoError(t, err)

	_, err = m.Advance(ctx, masterID, Input{Kind: InputPickDuration, Duration: 1})
	require.Error(t, err)
	assert.False(t, domain.IsConflict(err))

	sess, err := m.Session(ctx, masterID)
	require.NoError(t, err)
	assert.Equal(t, StateChoosingDuration, sess.State)
}

func TestMachineRebookingReplacesPrior(t *testing.T) {
	appts := &fakeAppointments{list: []model.Appointment{onDay(11, model.NewClock(9, 0), model.NewClock(10, 0), clientID)}}
	appts.nextID = 1
	appts.list[0].ID = 1
	m, _, _ := newTestMachine(t, appts, completeUsers())
	ctx := context.Background()

	_, err := m.Start(ctx, masterID, clientID)
	require.NoError(t, err)
	_, err = m.Advance(ctx, masterID, Input{Kind: InputToday})
	require.NoError(t, err)
	_, err = m.Advance(ctx, masterID, Input{Kind: InputPickHour, Hour: 16})
	require.NoError(t, err)
	res, err := m.Advance(ctx, masterID, Input{Kind: InputPickDuration, Duration: 0.5})
	require.NoError(t, err)

	require.NotNil(t, res.Replaced)
	assert.Equal(t, int64(1), res.Replaced.ID)
	assert.Len(t, appts.list, 1)
	assert.Equal(t, "16:30", res.Appointment.End.String())
}

func TestMachineCancelIsIdempotent(t *testing.T) {
	m, store, _ := newTestMachine(t, &fakeAppointments{}, completeUsers())
	ctx := context.Background()

	_, err := m.Start(ctx, masterID, clientID)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		res, err := m.Advance(ctx, masterID, Input{Kind: InputCancel})
		require.NoError(t, err)
		assert.Equal(t, StateCancelled, res.State)
	}
	assert.Equal(t, 0, store.Len())

	_, err = m.Advance(ctx, masterID, Input{Kind: InputToday})
	assert.True(t, domain.IsNotFound(err))
}

func TestMachineStartRequiresProfiles(t *testing.T) {
	users := &mockUsers{}
	users.On("GetUser", mock.Anything, masterID).Return(&model.User{TelegramID: masterID, Name: "Пётр", Contact: "+7"}, nil).Once()
	users.On("GetUser", mock.Anything, clientID).Return(&model.User{TelegramID: clientID, Name: "Анна"}, nil).Once()

	m, _, _ := newTestMachine(t, &fakeAppointments{}, users)
	_, err := m.Start(context.Background(), masterID, clientID)
	assert.ErrorIs(t, err, ErrProfileIncomplete)
	users.AssertExpectations(t)

	missing := &mockUsers{}
	missing.On("GetUser", mock.Anything, masterID).Return(nil, domain.NotFound("user", masterID)).Once()
	m, _, _ = newTestMachine(t, &fakeAppointments{}, missing)
	_, err = m.Start(context.Background(), masterID, clientID)
	assert.ErrorIs(t, err, ErrProfileIncomplete)
}

func TestMachineSessionExpiry(t *testing.T) {
	m, store, _ := newTestMachine(t, &fakeAppointments{}, completeUsers())
	ctx := context.Background()

	_, err := m.Start(ctx, masterID, clientID)
	require.NoError(t, err)

	store.now = func() time.Time { return fixedNow.Add(31 * time.Minute) }
	_, err = m.Advance(ctx, masterID, Input{Kind: InputToday})
	assert.True(t, domain.IsNotFound(err))
	assert.Equal(t, 1, store.Cleanup())
}

func TestMachineSessionsAreIndependent(t *testing.T) {
	users := completeUsers()
	const otherMaster int64 = 11
	users.On("GetUser", mock.Anything, otherMaster).Return(&model.User{TelegramID: otherMaster, Name: "Олег", Contact: "+7"}, nil)

	m, _, _ := newTestMachine(t, &fakeAppointments{}, users)
	ctx := context.Background()

	_, err := m.Start(ctx, masterID, clientID)
	require.NoError(t, err)
	_, err = m.Start(ctx, otherMaster, clientID)
	require.NoError(t, err)

	_, err = m.Advance(ctx, masterID, Input{Kind: InputToday})
	require.NoError(t, err)

	other, err := m.Session(ctx, otherMaster)
	require.NoError(t, err)
	assert.Equal(t, StateChoosingOption, other.State)
}

func TestMachineCommitSurvivesConfirmationLookupFailure(t *testing.T) {
	users := &mockUsers{}
	users.On("GetUser", mock.Anything, masterID).Return(&model.User{
		TelegramID: masterID, Name: "Пётр", Contact: "+79000000010", Role: model.RoleMaster,
	}, nil)
	users.On("GetUser", mock.Anything, clientID).Return(&model.User{
		TelegramID: clientID, Name: "Анна", Contact: "+79000000020",
	}, nil).Once()
	users.On("GetUser", mock.Anything, clientID).Return(nil, errors.New("database is locked"))

	appts := &fakeAppointments{}
	m, store, pub := newTestMachine(t, appts, users)
	ctx := context.Background()

	_, err := m.Start(ctx, masterID, clientID)
	require.NoError(t, err)
	_, err = m.Advance(ctx, masterID, Input{Kind: InputToday})
	require.NoError(t, err)
	_, err = m.Advance(ctx, masterID, Input{Kind: InputPickHour, Hour: 14})
	require.NoError(t, err)

	res, err := m.Advance(ctx, masterID, Input{Kind: InputPickDuration, Duration: 1})
	require.NoError(t, err, "a stored appointment must be reported as committed")
	assert.Equal(t, StateCommitted, res.State)
	require.NotNil(t, res.Appointment)
	require.NotNil(t, res.Confirmation)
	assert.Equal(t, "Пётр", res.Confirmation.MasterName)
	assert.Empty(t, res.Confirmation.ClientName)
	assert.Equal(t, "14:00", res.Confirmation.Start.String())

	require.Len(t, appts.list, 1)
	assert.Equal(t, clientID, appts.list[0].ClientID)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, []string{EventAppointmentBooked}, pub.events)
	assert.Contains(t, FormatMasterSummary(res.Confirmation, false), "Клиент записан(а)")
}
