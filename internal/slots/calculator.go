package slots

import (
	"sort"
	"time"

	"carservice/internal/model"
)

// Default working-hour domain: buckets [08:00, 09:00) ... [23:00, 24:00).
const (
	DefaultFirstHour = 8
	DefaultLastHour  = 24
)

// HourSet is a set of hour-bucket start hours.
type HourSet map[int]struct{}

func (s HourSet) Has(h int) bool {
	_, ok := s[h]
	return ok
}

// Sorted returns the hours in ascending order.
func (s HourSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for h := range s {
		out = append(out, h)
	}
	sort.Ints(out)
	return out
}

// Calculator derives occupied and free hour buckets of a master's day.
// It performs no I/O; callers pass the appointments recorded for the date.
type Calculator struct {
	firstHour int
	lastHour  int
}

func NewCalculator(firstHour, lastHour int) *Calculator {
	if firstHour < 0 || firstHour > 23 {
		firstHour = DefaultFirstHour
	}
	if lastHour <= firstHour || lastHour > 24 {
		lastHour = DefaultLastHour
	}
	return &Calculator{firstHour: firstHour, lastHour: lastHour}
}

// WorkingHours is the full bucket domain.
func (c *Calculator) WorkingHours() HourSet {
	out := make(HourSet, c.lastHour-c.firstHour)
	for h := c.firstHour; h < c.lastHour; h++ {
		out[h] = struct{}{}
	}
	return out
}

// OccupiedHours marks every bucket of date that intersects an appointment window.
// Appointments without a window are skipped; an end at or before the start wraps
// to the next day, and only this date's buckets are reported.
func (c *Calculator) OccupiedHours(date time.Time, appointments []model.Appointment) HourSet {
	day := model.DateOnly(date)
	occupied := make(HourSet)
	for i := range appointments {
		a := &appointments[i]
		if !a.HasWindow() {
			continue
		}
		start, end := a.Interval(day)
		for h := a.Start.Hour(); h < 24; h++ {
			bucketStart := day.Add(time.Duration(h) * time.Hour)
			if !bucketStart.Before(end) {
				break
			}
			if isOverlapping(start, end, bucketStart, bucketStart.Add(time.Hour)) {
				occupied[h] = struct{}{}
			}
		}
	}
	return occupied
}

// FreeHours is the working-hour domain minus the occupied buckets.
func (c *Calculator) FreeHours(date time.Time, appointments []model.Appointment) HourSet {
	occupied := c.OccupiedHours(date, appointments)
	free := make(HourSet)
	for h := c.firstHour; h < c.lastHour; h++ {
		if !occupied.Has(h) {
			free[h] = struct{}{}
		}
	}
	return free
}

func (c *Calculator) IsDayFull(date time.Time, appointments []model.Appointment) bool {
	return len(c.FreeHours(date, appointments)) == 0
}

// BusyDays returns the days of the month that have no free bucket.
// Appointments outside the month are ignored.
func (c *Calculator) BusyDays(year int, month time.Month, loc *time.Location, appointments []model.Appointment) map[int]bool {
	if loc == nil {
		loc = time.Local
	}
	byDay := make(map[int][]model.Appointment)
	for _, a := range appointments {
		if a.Date.Year() != year || a.Date.Month() != month {
			continue
		}
		byDay[a.Date.Day()] = append(byDay[a.Date.Day()], a)
	}

	busy := make(map[int]bool)
	for day, list := range byDay {
		date := time.Date(year, month, day, 0, 0, 0, 0, loc)
		if c.IsDayFull(date, list) {
			busy[day] = true
		}
	}
	return busy
}

// IntervalFree reports whether [start, end) on date avoids every window in appointments.
func IntervalFree(date time.Time, start, end model.Clock, appointments []model.Appointment) bool {
	candidate := model.Appointment{Date: model.DateOnly(date), Start: start, End: end}
	for i := range appointments {
		if candidate.OverlapsWith(&appointments[i]) {
			return false
		}
	}
	return true
}

// DaysIn returns the number of days in month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func isOverlapping(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}
