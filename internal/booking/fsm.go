// Package booking drives the appointment-booking dialog a master runs for a client.
package booking

import (
	"time"
)

// State represents the current stage of a booking session.
type State string

const (
	StateChoosingOption   State = "choosing_option"
	StateChoosingDay      State = "choosing_day"
	StateChoosingTime     State = "choosing_time"
	StateChoosingDuration State = "choosing_duration"
	StateCommitted        State = "committed"
	StateCancelled        State = "cancelled"
)

// Terminal reports whether no further input is accepted.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateCancelled
}

// InputKind identifies what the user picked.
type InputKind string

const (
	InputToday        InputKind = "today"
	InputChooseDay    InputKind = "choose_day"
	InputPickDay      InputKind = "pick_day"
	InputNavigate     InputKind = "navigate"
	InputPickHour     InputKind = "pick_hour"
	InputPickDuration InputKind = "pick_duration"
	InputCancel       InputKind = "cancel"
)

// Input is one user action fed to Advance.
type Input struct {
	Kind     InputKind
	Date     time.Time  // InputPickDay
	Year     int        // InputNavigate
	Month    time.Month // InputNavigate
	Hour     int        // InputPickHour
	Duration float64    // InputPickDuration, hours
}

// Session is the in-flight booking dialog. It is keyed by the acting master.
type Session struct {
	MasterID  int64      `json:"master_id"`
	ClientID  int64      `json:"client_id"`
	State     State      `json:"state"`
	Date      time.Time  `json:"date"`
	Hour      int        `json:"hour"`
	ViewYear  int        `json:"view_year"`
	ViewMonth time.Month `json:"view_month"`
	StartedAt time.Time  `json:"started_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewSession creates a session at the first stage.
func NewSession(masterID, clientID int64, now time.Time) *Session {
	return &Session{
		MasterID:  masterID,
		ClientID:  clientID,
		State:     StateChoosingOption,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// IsExpired checks if the session has been idle longer than timeout.
func (s *Session) IsExpired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.UpdatedAt) > timeout
}

// FSM holds the allowed stage transitions and the inputs each stage accepts.
type FSM struct {
	transitions map[State][]State
	inputs      map[State][]InputKind
}

// NewFSM creates a new FSM with predefined transitions.
func NewFSM() *FSM {
	return &FSM{
		transitions: map[State][]State{
			StateChoosingOption:   {StateChoosingTime, StateChoosingDay, StateCancelled},
			StateChoosingDay:      {StateChoosingDay, StateChoosingTime, StateCancelled},
			StateChoosingTime:     {StateChoosingDuration, StateCancelled},
			StateChoosingDuration: {StateCommitted, StateChoosingTime, StateCancelled},
		},
		inputs: map[State][]InputKind{
			StateChoosingOption:   {InputToday, InputChooseDay},
			StateChoosingDay:      {InputPickDay, InputNavigate},
			StateChoosingTime:     {InputPickHour},
			StateChoosingDuration: {InputPickDuration},
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *FSM) CanTransition(from, to State) bool {
	for _, s := range f.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Accepts reports whether state takes input of the given kind.
func (f *FSM) Accepts(state State, kind InputKind) bool {
	for _, k := range f.inputs[state] {
		if k == kind {
			return true
		}
	}
	return false
}
