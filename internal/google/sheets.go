package google

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"carservice/internal/events"
	"carservice/internal/model"
	"carservice/internal/orders"

	"github.com/rs/zerolog"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

var orderHeaders = []interface{}{
	"ID", "Клиент", "Телефон клиента", "Мастер", "Телефон мастера", "Статус",
	"Работы", "Автомобиль", "Госномер", "Пробег", "Оценка", "Создан", "Обновлён",
}

// valuesAPI is the slice of the Sheets API the journal needs.
type valuesAPI interface {
	Append(ctx context.Context, spreadsheetID, rng string, values [][]interface{}) (updatedRange string, err error)
	Update(ctx context.Context, spreadsheetID, rng string, values [][]interface{}) error
}

type sheetsValues struct {
	svc *sheets.Service
}

func (s sheetsValues) Append(ctx context.Context, id, rng string, values [][]interface{}) (string, error) {
	resp, err := s.svc.Spreadsheets.Values.Append(id, rng, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if resp.Updates == nil {
		return "", nil
	}
	return resp.Updates.UpdatedRange, nil
}

func (s sheetsValues) Update(ctx context.Context, id, rng string, values [][]interface{}) error {
	_, err := s.svc.Spreadsheets.Values.Update(id, rng, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// SheetsService mirrors orders into a spreadsheet, one row per order.
type SheetsService struct {
	api           valuesAPI
	spreadsheetID string
	sheetName     string
	logger        zerolog.Logger

	mu       sync.Mutex
	rowCache map[int64]int
	queue    chan model.Order
}

// NewSheetsService authenticates with a service-account JSON key.
func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID, sheetName string, logger *zerolog.Logger) (*SheetsService, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	conf, err := googleoauth.JWTConfigFromJSON(data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	svc, err := sheets.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return newSheetsService(sheetsValues{svc: svc}, spreadsheetID, sheetName, logger), nil
}

func newSheetsService(api valuesAPI, spreadsheetID, sheetName string, logger *zerolog.Logger) *SheetsService {
	if sheetName == "" {
		sheetName = "Orders"
	}
	return &SheetsService{
		api:           api,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger.With().Str("component", "sheets").Logger(),
		rowCache:      make(map[int64]int),
		queue:         make(chan model.Order, 256),
	}
}

// WriteHeader rewrites the first row.
func (s *SheetsService) WriteHeader(ctx context.Context) error {
	return s.api.Update(ctx, s.spreadsheetID, s.sheetName+"!A1", [][]interface{}{orderHeaders})
}

// UpsertOrder updates the order's row, appending one on first sight.
func (s *SheetsService) UpsertOrder(ctx context.Context, o *model.Order) error {
	values := [][]interface{}{orderRowValues(o)}
	if row, ok := s.getCachedRow(o.ID); ok {
		rng := fmt.Sprintf("%s!A%d", s.sheetName, row)
		return s.api.Update(ctx, s.spreadsheetID, rng, values)
	}

	updated, err := s.api.Append(ctx, s.spreadsheetID, s.sheetName+"!A1", values)
	if err != nil {
		return err
	}
	if row, ok := rowFromRange(updated); ok {
		s.setCachedRow(o.ID, row)
	}
	return nil
}

// Subscribe queues every order event for the journal.
func (s *SheetsService) Subscribe(bus *events.EventBus) {
	for _, t := range []string{
		orders.EventCreated, orders.EventReady, orders.EventResumed,
		orders.EventClosed, orders.EventTransferred, orders.EventDeleted,
	} {
		bus.Subscribe(t, s.handleEvent)
	}
}

func (s *SheetsService) handleEvent(e events.Event) error {
	var ev orders.Event
	if err := e.Decode(&ev); err != nil {
		return err
	}
	if e.Type == orders.EventDeleted {
		ev.Order.Status = "deleted"
	}
	select {
	case s.queue <- ev.Order:
		return nil
	default:
		return fmt.Errorf("sheets queue full, order %d skipped", ev.Order.ID)
	}
}

// Start drains the queue until ctx is done.
func (s *SheetsService) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case o := <-s.queue:
			callCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			if err := s.UpsertOrder(callCtx, &o); err != nil {
				s.logger.Error().Err(err).Int64("order_id", o.ID).Msg("Failed to write order to sheet")
			}
			cancel()
		}
	}
}

func (s *SheetsService) getCachedRow(orderID int64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rowCache[orderID]
	return row, ok
}

func (s *SheetsService) setCachedRow(orderID int64, row int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowCache[orderID] = row
}

func (s *SheetsService) deleteCacheRow(orderID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rowCache, orderID)
}

// ClearCache forgets known rows; later writes append.
func (s *SheetsService) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowCache = make(map[int64]int)
}

func orderRowValues(o *model.Order) []interface{} {
	car := o.Vehicle.Brand + " " + o.Vehicle.Model
	if o.Vehicle.Year > 0 {
		car += " " + strconv.Itoa(o.Vehicle.Year)
	}
	return []interface{}{
		o.ID,
		o.ClientName,
		o.ClientContact,
		o.MasterName,
		o.MasterContact,
		string(o.Status),
		o.Description,
		car,
		o.Vehicle.Plate,
		o.Vehicle.Mileage,
		o.Grade,
		o.CreatedAt.Format("2006-01-02 15:04:05"),
		o.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

var rangeRow = regexp.MustCompile(`![A-Z]+(\d+)`)

// rowFromRange extracts the first row number from "Orders!A5:M5".
func rowFromRange(rng string) (int, bool) {
	m := rangeRow.FindStringSubmatch(rng)
	if m == nil {
		return 0, false
	}
	row, err := strconv.Atoi(m[1])
	return row, err == nil
}
