package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"carservice/internal/model"
	"carservice/internal/slots"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// AppointmentReader is the subset of the appointment store the API reads.
type AppointmentReader interface {
	ListAppointmentsForDate(ctx context.Context, masterID int64, date time.Time) ([]model.Appointment, error)
	ListAppointmentsInRange(ctx context.Context, masterID int64, from, to time.Time) ([]model.Appointment, error)
}

type OrderReader interface {
	ListOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, error)
}

type UserReader interface {
	GetUser(ctx context.Context, telegramID int64) (*model.User, error)
}

// Config controls the listener and authentication.
type Config struct {
	Port   int
	APIKey string
}

// HTTPServer exposes read-only schedule and order data to partner systems.
type HTTPServer struct {
	server *http.Server
	calc   *slots.Calculator
	appts  AppointmentReader
	orders OrderReader
	users  UserReader
	apiKey string
	now    func() time.Time
	logger zerolog.Logger
}

func NewHTTPServer(
	cfg Config,
	calc *slots.Calculator,
	appts AppointmentReader,
	orders OrderReader,
	users UserReader,
	logger *zerolog.Logger,
) *HTTPServer {
	s := &HTTPServer{
		calc:   calc,
		appts:  appts,
		orders: orders,
		users:  users,
		apiKey: cfg.APIKey,
		now:    time.Now,
		logger: logger.With().Str("component", "api").Logger(),
	}

	router := mux.NewRouter()
	s.RegisterRoutes(router)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	return s
}

// RegisterRoutes mounts the API under /api/v1.
func (s *HTTPServer) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.Use(s.authMiddleware)
	v1.HandleFunc("/masters/{id:[0-9]+}/availability", s.handleAvailability).Methods(http.MethodGet)
	v1.HandleFunc("/masters/{id:[0-9]+}/busy-days", s.handleBusyDays).Methods(http.MethodGet)
	v1.HandleFunc("/orders", s.handleOrders).Methods(http.MethodGet)
}

func (s *HTTPServer) Handler() http.Handler { return s.server.Handler }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.server.Addr).Msg("API server started")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *HTTPServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("x-api-key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
