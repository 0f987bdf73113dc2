package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carservice/internal/api"
	"carservice/internal/booking"
	"carservice/internal/bot"
	"carservice/internal/config"
	"carservice/internal/database"
	"carservice/internal/diagnostics"
	"carservice/internal/events"
	"carservice/internal/google"
	"carservice/internal/metrics"
	"carservice/internal/orders"
	"carservice/internal/repository"
	"carservice/internal/slots"
	"carservice/shared/access"
	"carservice/shared/audit"
	"carservice/shared/reminders"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn().Err(err).Msg("failed to read .env")
	}

	cfg, err := config.Load(os.Getenv("CARSERVICE_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	if cfg.Telegram.BotToken == "" || cfg.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		logger.Fatal().Msg("set telegram.bot_token in config")
	}
	if cfg.Telegram.Debug {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	if cfg.AdminID != 0 {
		if err := db.EnsureAdmin(ctx, cfg.AdminID); err != nil {
			logger.Fatal().Err(err).Int64("admin_id", cfg.AdminID).Msg("failed to seed admin")
		}
	}

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	bus := events.NewEventBus(&logger)
	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		metrics.Subscribe(bus)
	}

	memory := booking.NewMemoryStore(cfg.SessionTimeout())
	go memory.RunJanitor(ctx, time.Minute, func(int) { metrics.SetActiveSessions(memory.Len()) })

	var sessions booking.SessionStore = memory
	if cfg.Sessions.Backend == "redis" {
		if rdb == nil {
			logger.Fatal().Msg("sessions.backend is redis but redis.address is empty")
		}
		sessions = repository.NewFailoverSessionStore(booking.NewRedisStore(rdb, cfg.SessionTimeout()), memory, &logger)
	}

	calc := slots.NewCalculator(cfg.Schedule.FirstHour, cfg.Schedule.LastHour)
	machine := booking.NewMachine(sessions, calc, db, db, bus, booking.Config{
		Durations:    cfg.Schedule.Durations,
		PastDays:     cfg.Booking.CalendarPastDays,
		FutureMonths: cfg.Booking.CalendarFutureMonths,
		Location:     time.Local,
	}, &logger)

	orderManager := orders.NewManager(db, db, bus, orders.Config{
		RatingMultiplier:  cfg.Orders.RatingMultiplier,
		DescriptionMaxLen: cfg.Orders.DescriptionMaxLen,
	}, &logger)

	var remote diagnostics.Decoder
	if cfg.OBD2.Enabled && cfg.OBD2.APIKey != "" {
		client := diagnostics.NewOBD2Client(cfg.OBD2.BaseURL, cfg.OBD2.Host, cfg.OBD2.APIKey, cfg.OBD2Timeout())
		if rdb != nil {
			client.UseRedisCache(rdb, cfg.OBD2CacheTTL())
		}
		remote = client
	}
	recorder := diagnostics.NewRecorder(db, db, diagnostics.NewFallbackDecoder(remote, &logger), bus, &logger)

	workshop, err := config.LoadWorkshopConfig(cfg.WorkshopFile)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.WorkshopFile).Msg("workshop config not loaded, using defaults")
	}

	exporter := &reportExporter{}
	b, err := bot.New(cfg.Telegram.BotToken, bot.Deps{
		Users:        db,
		Appointments: db,
		Reviews:      db,
		Booking:      machine,
		Orders:       orderManager,
		Diagnostics:  recorder,
		Access:       access.NewService(db, &logger),
		Exporter:     exporter,
	}, bot.Options{
		AdminID:  cfg.AdminID,
		Debug:    cfg.Telegram.Debug,
		Workshop: workshop,
	}, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create bot error")
	}

	if workshop != nil {
		go func() {
			if err := config.WatchWorkshop(ctx, cfg.WorkshopFile, 30*time.Second, b.SetWorkshop); err != nil {
				logger.Warn().Err(err).Msg("workshop config watcher stopped")
			}
		}()
	}

	if cfg.Backup.Enabled {
		backups := database.NewBackupService(db, database.BackupConfig{
			Enabled:       true,
			Interval:      cfg.BackupInterval(),
			StoragePath:   cfg.Backup.Path,
			RetentionDays: cfg.Backup.RetentionDays,
		}, &logger)
		go backups.Start(ctx)
	}

	if cfg.Reminders.Enabled {
		svc := reminders.NewService(reminders.Config{
			CheckInterval: cfg.ReminderInterval(),
			Lead:          cfg.ReminderLead(),
		}, db, b.Notifier(), reminders.NewMetrics("carservice", prometheus.DefaultRegisterer), &logger)
		go svc.Start(ctx)
	}

	if cfg.Audit.Enabled {
		svc := audit.NewService(audit.Config{
			RetentionDays: cfg.Audit.RetentionDays,
			ReportName:    "Автосервис",
		}, db, audit.NewExcelizeWriter, b.Notifier(), db, &logger)
		exporter.svc = svc
		go svc.Start(ctx)
	}

	if cfg.Sheets.Enabled {
		sheets, err := google.NewSheetsService(ctx, cfg.Sheets.CredentialsFile, cfg.Sheets.SpreadsheetID, cfg.Sheets.SheetName, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("sheets journal disabled")
		} else {
			if err := sheets.WriteHeader(ctx); err != nil {
				logger.Warn().Err(err).Msg("failed to write sheet header")
			}
			sheets.Subscribe(bus)
			go sheets.Start(ctx)
		}
	}

	if cfg.API.Enabled {
		srv := api.NewHTTPServer(api.Config{Port: cfg.API.Port, APIKey: cfg.API.APIKey}, calc, db, db, db, &logger)
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("api server error")
			}
		}()
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.Monitoring.GRPCHealthPort != 0 {
		go startGRPCHealthServer(ctx, cfg.Monitoring.GRPCHealthPort, db, &logger)
	}

	logger.Info().Str("sessions", cfg.Sessions.Backend).Msg("Car service bot started")
	b.Start(ctx)
	logger.Info().Msg("Car service bot stopped")
}

// reportExporter lets the bot reach the audit service, which itself needs the bot's notifier.
type reportExporter struct {
	svc *audit.Service
}

func (e *reportExporter) ExportNow(ctx context.Context) error {
	if e.svc == nil {
		return errors.New("audit export is disabled")
	}
	return e.svc.ExportNow(ctx)
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

// startGRPCHealthServer serves grpc.health.v1 and flips to NOT_SERVING when the db stops answering.
func startGRPCHealthServer(ctx context.Context, port int, db *database.DB, logger *zerolog.Logger) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		logger.Error().Err(err).Msg("grpc health listen error")
		return
	}

	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				hs.Shutdown()
				srv.GracefulStop()
				return
			case <-ticker.C:
				ctxPing, cancel := context.WithTimeout(ctx, time.Second)
				status := healthpb.HealthCheckResponse_SERVING
				if err := db.PingContext(ctxPing); err != nil {
					status = healthpb.HealthCheckResponse_NOT_SERVING
				}
				cancel()
				hs.SetServingStatus("", status)
			}
		}
	}()

	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		logger.Error().Err(err).Msg("grpc health server error")
	}
}
