package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Clock is a time of day in minutes after midnight.
type Clock int

// NoClock marks a missing start or end time.
const NoClock Clock = -1

const (
	minutesPerDay = 24 * 60
	lastMinute    = Clock(minutesPerDay - 1)
)

func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ClockFromHours converts fractional hours (13.5) into a clock value.
// Minutes are rounded; anything at or past 24:00 is clamped to 23:59.
func ClockFromHours(h float64) Clock {
	if h < 0 {
		return NoClock
	}
	hours := int(h)
	minutes := int(math.Round((h - float64(hours)) * 60))
	if minutes >= 60 {
		hours++
		minutes -= 60
	}
	if hours >= 24 {
		return lastMinute
	}
	return NewClock(hours, minutes)
}

// ParseClock parses "HH:MM". An empty string yields NoClock.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return NoClock, nil
	}
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return NoClock, fmt.Errorf("invalid clock %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return NoClock, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return NoClock, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return NoClock, fmt.Errorf("invalid clock %q", s)
	}
	return NewClock(h, m), nil
}

func (c Clock) Valid() bool { return c >= 0 && c < minutesPerDay }

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) String() string {
	if !c.Valid() {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// AddHours returns c shifted by fractional hours with the same clamping as ClockFromHours.
func (c Clock) AddHours(h float64) Clock {
	return ClockFromHours(float64(c)/60 + h)
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	v, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
