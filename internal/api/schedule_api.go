package api

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"carservice/internal/domain"
	"carservice/internal/metrics"
	"carservice/internal/model"

	"github.com/gorilla/mux"
)

const monthLayout = "2006-01"

// AvailabilityResponse is the response for GET /api/v1/masters/{id}/availability.
type AvailabilityResponse struct {
	MasterID     int64  `json:"master_id"`
	Date         string `json:"date"`
	WorkingHours []int  `json:"working_hours"`
	FreeHours    []int  `json:"free_hours"`
	DayFull      bool   `json:"day_full"`
}

// BusyDaysResponse is the response for GET /api/v1/masters/{id}/busy-days.
type BusyDaysResponse struct {
	MasterID int64  `json:"master_id"`
	Month    string `json:"month"`
	BusyDays []int  `json:"busy_days"`
}

type OrdersResponse struct {
	Orders []model.Order `json:"orders"`
	Count  int           `json:"count"`
}

// handleAvailability returns the free hour buckets of a master on one date.
// GET /api/v1/masters/{id}/availability?date=YYYY-MM-DD
func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability")

	masterID, ok := s.resolveMaster(w, r)
	if !ok {
		return
	}

	dateStr := r.URL.Query().Get("date")
	if dateStr == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	date, err := time.ParseInLocation(model.DateLayout, dateStr, s.location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	list, err := s.appts.ListAppointmentsForDate(r.Context(), masterID, date)
	if err != nil {
		s.logger.Error().Err(err).Int64("master_id", masterID).Msg("list appointments failed")
		writeError(w, http.StatusInternalServerError, "failed to load appointments")
		return
	}

	free := s.calc.FreeHours(date, list).Sorted()
	writeJSON(w, http.StatusOK, AvailabilityResponse{
		MasterID:     masterID,
		Date:         dateStr,
		WorkingHours: s.calc.WorkingHours().Sorted(),
		FreeHours:    free,
		DayFull:      len(free) == 0,
	})
}

// handleBusyDays returns the fully booked days of a month.
// GET /api/v1/masters/{id}/busy-days?month=YYYY-MM
func (s *HTTPServer) handleBusyDays(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("busy_days")

	masterID, ok := s.resolveMaster(w, r)
	if !ok {
		return
	}

	loc := s.location()
	monthStr := r.URL.Query().Get("month")
	var first time.Time
	if monthStr == "" {
		now := s.now().In(loc)
		first = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		monthStr = first.Format(monthLayout)
	} else {
		parsed, err := time.ParseInLocation(monthLayout, monthStr, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid month format; expected YYYY-MM")
			return
		}
		first = parsed
	}
	last := first.AddDate(0, 1, -1)

	list, err := s.appts.ListAppointmentsInRange(r.Context(), masterID, first, last)
	if err != nil {
		s.logger.Error().Err(err).Int64("master_id", masterID).Msg("list appointments failed")
		writeError(w, http.StatusInternalServerError, "failed to load appointments")
		return
	}

	busy := s.calc.BusyDays(first.Year(), first.Month(), loc, list)
	days := make([]int, 0, len(busy))
	for d := range busy {
		days = append(days, d)
	}
	sort.Ints(days)

	writeJSON(w, http.StatusOK, BusyDaysResponse{MasterID: masterID, Month: monthStr, BusyDays: days})
}

// handleOrders lists orders matching the query filter.
// GET /api/v1/orders?client_id=&master_id=&active=&status=
func (s *HTTPServer) handleOrders(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("orders")

	filter, err := parseOrderFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := s.orders.ListOrders(r.Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("list orders failed")
		writeError(w, http.StatusInternalServerError, "failed to load orders")
		return
	}
	if list == nil {
		list = []model.Order{}
	}
	writeJSON(w, http.StatusOK, OrdersResponse{Orders: list, Count: len(list)})
}

func parseOrderFilter(r *http.Request) (model.OrderFilter, error) {
	q := r.URL.Query()
	var f model.OrderFilter
	var err error

	if v := q.Get("client_id"); v != "" {
		if f.ClientID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return f, fmt.Errorf("invalid client_id")
		}
	}
	if v := q.Get("master_id"); v != "" {
		if f.MasterID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return f, fmt.Errorf("invalid master_id")
		}
	}
	if v := q.Get("active"); v != "" {
		if f.ActiveOnly, err = strconv.ParseBool(v); err != nil {
			return f, fmt.Errorf("invalid active; expected true or false")
		}
	}
	if v := q.Get("status"); v != "" {
		status := model.OrderStatus(v)
		switch status {
		case model.OrderInWork, model.OrderWait, model.OrderClosed:
			f.Status = status
		default:
			return f, fmt.Errorf("invalid status; expected in_work, wait or close")
		}
	}
	return f, nil
}

// resolveMaster writes the error response itself when the boolean is false.
func (s *HTTPServer) resolveMaster(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid master id")
		return 0, false
	}

	u, err := s.users.GetUser(r.Context(), id)
	switch {
	case domain.IsNotFound(err):
		writeError(w, http.StatusNotFound, "master not found")
		return 0, false
	case err != nil:
		s.logger.Error().Err(err).Int64("master_id", id).Msg("get user failed")
		writeError(w, http.StatusInternalServerError, "failed to load master")
		return 0, false
	case !u.IsMaster():
		writeError(w, http.StatusNotFound, "master not found")
		return 0, false
	}
	return id, true
}

func (s *HTTPServer) location() *time.Location {
	return s.now().Location()
}
