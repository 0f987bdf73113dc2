package reminders

import (
	"context"
	"sync"
	"time"

	"carservice/internal/model"

	"github.com/rs/zerolog"
)

type Config struct {
	// CheckInterval is how often upcoming appointments are scanned. Default: 15 minutes.
	CheckInterval time.Duration

	// Lead is how long before the visit the reminder goes out. Default: 24 hours.
	Lead time.Duration

	// MaxConcurrentNotifications limits parallel sends. Default: 10.
	MaxConcurrentNotifications int
}

// Service reminds clients of upcoming appointments, once per appointment.
type Service struct {
	config    Config
	appts     AppointmentSource
	notifier  Notifier
	metrics   *Metrics
	logger    zerolog.Logger
	now       func() time.Time
	mu        sync.Mutex
	isRunning bool
}

func NewService(cfg Config, appts AppointmentSource, notifier Notifier, metrics *Metrics, logger *zerolog.Logger) *Service {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 15 * time.Minute
	}
	if cfg.Lead <= 0 {
		cfg.Lead = 24 * time.Hour
	}
	if cfg.MaxConcurrentNotifications <= 0 {
		cfg.MaxConcurrentNotifications = 10
	}
	return &Service{
		config:   cfg,
		appts:    appts,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger.With().Str("component", "reminders").Logger(),
		now:      time.Now,
	}
}

// Start runs a check immediately and then on every interval until ctx is done.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.logger.Info().
		Dur("check_interval", s.config.CheckInterval).
		Dur("lead", s.config.Lead).
		Msg("Reminder service started")

	s.CheckNow(ctx)

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Reminder service stopped")
			return
		case <-ticker.C:
			s.CheckNow(ctx)
		}
	}
}

// CheckNow sends every reminder that is due and returns how many were delivered.
func (s *Service) CheckNow(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	now := s.now()
	deadline := now.Add(s.config.Lead)
	candidates, err := s.appts.ListUnremindedAppointments(ctx, model.DateOnly(now), model.DateOnly(deadline))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list upcoming appointments")
		return 0
	}

	var due []model.Appointment
	for _, a := range candidates {
		if !a.HasWindow() {
			continue
		}
		start := a.StartsAt()
		if start.After(now) && !start.After(deadline) {
			due = append(due, a)
		}
	}
	s.metrics.setDue(len(due))
	if len(due) == 0 {
		return 0
	}

	sem := make(chan struct{}, s.config.MaxConcurrentNotifications)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sent int
	)
	for _, a := range due {
		wg.Add(1)
		sem <- struct{}{}
		go func(a model.Appointment) {
			defer wg.Done()
			defer func() { <-sem }()
			if s.send(ctx, a) {
				mu.Lock()
				sent++
				mu.Unlock()
			}
		}(a)
	}
	wg.Wait()
	return sent
}

func (s *Service) send(ctx context.Context, a model.Appointment) bool {
	started := time.Now()
	err := s.notifier.SendReminder(ctx, a)
	s.metrics.observeSend(time.Since(started).Seconds())
	if err != nil {
		s.metrics.incSent("failed")
		s.logger.Error().Err(err).Int64("appointment_id", a.ID).Int64("client_id", a.ClientID).Msg("Failed to send reminder")
		return false
	}
	s.metrics.incSent("sent")

	// The message is out; a failed mark only risks a duplicate on the next pass.
	if err := s.appts.MarkReminderSent(ctx, a.ID); err != nil {
		s.logger.Error().Err(err).Int64("appointment_id", a.ID).Msg("Failed to mark reminder as sent")
	}
	s.logger.Info().Int64("appointment_id", a.ID).Int64("client_id", a.ClientID).Msg("Reminder sent")
	return true
}
