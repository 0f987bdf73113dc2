package model

import "time"

// DateLayout is the storage and callback format of calendar dates.
const DateLayout = "2006-01-02"

// Appointment is a reserved time window with a master on one calendar date.
type Appointment struct {
	ID           int64     `json:"id"`
	ClientID     int64     `json:"client_id"`
	MasterID     int64     `json:"master_id"`
	Date         time.Time `json:"date"`
	Start        Clock     `json:"start"`
	End          Clock     `json:"end"`
	ReminderSent bool      `json:"reminder_sent"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasWindow reports whether both ends are set and the window is not empty.
func (a *Appointment) HasWindow() bool {
	return a.Start.Valid() && a.End.Valid() && a.Start != a.End
}

// Interval returns the absolute window anchored at day.
// An end at or before the start belongs to the following day.
func (a *Appointment) Interval(day time.Time) (start, end time.Time) {
	d := DateOnly(day)
	start = d.Add(time.Duration(a.Start) * time.Minute)
	end = d.Add(time.Duration(a.End) * time.Minute)
	if !end.After(start) {
		end = end.Add(24 * time.Hour)
	}
	return start, end
}

// StartsAt is the absolute start of the appointment on its own date.
func (a *Appointment) StartsAt() time.Time {
	s, _ := a.Interval(a.Date)
	return s
}

// OverlapsWith uses half-open [start, end) semantics on the appointments' own dates.
func (a *Appointment) OverlapsWith(other *Appointment) bool {
	if !a.HasWindow() || !other.HasWindow() {
		return false
	}
	s1, e1 := a.Interval(a.Date)
	s2, e2 := other.Interval(other.Date)
	return s1.Before(e2) && s2.Before(e1)
}

// DateOnly truncates t to local midnight of its calendar day.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// AppointmentFilter narrows appointment listings. Zero fields match everything;
// From and To bound the date inclusively.
type AppointmentFilter struct {
	ClientID int64
	MasterID int64
	From     time.Time
	To       time.Time
}

// DateScope is a relative date window for appointment listings.
type DateScope string

const (
	ScopeToday DateScope = "today"
	ScopeMonth DateScope = "month"
	ScopeAll   DateScope = "all"
)

// Filter builds the listing filter for the scope as of now. ScopeMonth is the
// calendar month containing now.
func (s DateScope) Filter(clientID, masterID int64, now time.Time) AppointmentFilter {
	f := AppointmentFilter{ClientID: clientID, MasterID: masterID}
	today := DateOnly(now)
	switch s {
	case ScopeToday:
		f.From, f.To = today, today
	case ScopeMonth:
		f.From = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		f.To = f.From.AddDate(0, 1, -1)
	}
	return f
}
