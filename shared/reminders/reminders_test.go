package reminders

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"carservice/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryAppointments struct {
	mu    sync.Mutex
	appts []model.Appointment
}

func (m *memoryAppointments) ListUnremindedAppointments(_ context.Context, from, to time.Time) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Appointment
	for _, a := range m.appts {
		if !a.ReminderSent && !a.Date.Before(from) && !a.Date.After(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memoryAppointments) MarkReminderSent(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.appts {
		if m.appts[i].ID == id {
			m.appts[i].ReminderSent = true
		}
	}
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []int64
	fail map[int64]bool
}

func (n *recordingNotifier) SendReminder(_ context.Context, a model.Appointment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail[a.ID] {
		return errors.New("telegram: chat not found")
	}
	n.sent = append(n.sent, a.ID)
	return nil
}

func appointmentAt(id int64, day time.Time, hour int) model.Appointment {
	return model.Appointment{
		ID: id, ClientID: 100 + id, MasterID: 1, Date: model.DateOnly(day),
		Start: model.NewClock(hour, 0), End: model.NewClock(hour+1, 0),
	}
}

func newTestService(appts AppointmentSource, n Notifier, now time.Time) (*Service, *Metrics) {
	logger := zerolog.New(io.Discard)
	m := NewMetrics("test", prometheus.NewRegistry())
	s := NewService(Config{Lead: 24 * time.Hour}, appts, n, m, &logger)
	s.now = func() time.Time { return now }
	return s, m
}

func TestCheckNowSendsDueRemindersOnce(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)
	today := model.DateOnly(now)
	store := &memoryAppointments{appts: []model.Appointment{
		appointmentAt(1, today, 9),                   // already started
		appointmentAt(2, today, 15),                  // due
		appointmentAt(3, today.AddDate(0, 0, 1), 10), // due, within 24h
		appointmentAt(4, today.AddDate(0, 0, 1), 13), // beyond the lead
		{ID: 5, Date: today, Start: model.NoClock, End: model.NoClock},
	}}
	notifier := &recordingNotifier{}
	s, m := newTestService(store, notifier, now)

	assert.Equal(t, 2, s.CheckNow(context.Background()))
	assert.ElementsMatch(t, []int64{2, 3}, notifier.sent)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RemindersSentTotal.WithLabelValues("sent")))

	assert.Equal(t, 0, s.CheckNow(context.Background()))
	assert.Len(t, notifier.sent, 2)
}

func TestFailedSendIsRetriedNextPass(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)
	store := &memoryAppointments{appts: []model.Appointment{appointmentAt(1, now, 18)}}
	notifier := &recordingNotifier{fail: map[int64]bool{1: true}}
	s, m := newTestService(store, notifier, now)

	assert.Equal(t, 0, s.CheckNow(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RemindersSentTotal.WithLabelValues("failed")))

	notifier.fail = nil
	assert.Equal(t, 1, s.CheckNow(context.Background()))
	require.Len(t, notifier.sent, 1)
}

func TestStartStopsWithContext(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)
	s, _ := newTestService(&memoryAppointments{}, &recordingNotifier{}, now)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
