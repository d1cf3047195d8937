package models

import (
	"fmt"
	"time"
)

const minutesPerDay = 24 * 60

// Clock is a time of day with minute precision, counted from midnight.
type Clock int

// ClockOf drops the calendar part of t.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

// NewClock builds a clock from hours and minutes.
func NewClock(hour, minute int) Clock {
	return Clock(0).Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return ClockOf(t), nil
}

// Add shifts the clock, wrapping around midnight.
func (c Clock) Add(d time.Duration) Clock {
	m := (int(c) + int(d/time.Minute)) % minutesPerDay
	if m < 0 {
		m += minutesPerDay
	}
	return Clock(m)
}

func (c Clock) Before(o Clock) bool { return c < o }

func (c Clock) After(o Clock) bool { return c > o }

func (c Clock) Hour() int { return int(c) / 60 }

func (c Clock) Minute() int { return int(c) % 60 }

// On places the clock on the calendar date of date, in date's location.
func (c Clock) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, c.Hour(), c.Minute(), 0, 0, date.Location())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// MinutesUntil returns the forward distance to o, crossing midnight if needed.
func (c Clock) MinutesUntil(o Clock) int {
	diff := int(o) - int(c)
	if diff <= 0 {
		diff += minutesPerDay
	}
	return diff
}
