package timegraph

import (
	"time"

	"restobook/internal/models"
)

// Claim is a run of reserved slots on one table.
type Claim struct {
	Day      time.Time // operating day, midnight
	Capacity int
	Table    int
	Times    []models.Clock

	first int
	open  models.Clock
}

// StartTime places the first slot on the calendar.
func (c Claim) StartTime() time.Time {
	if len(c.Times) == 0 {
		return time.Time{}
	}
	return c.at(c.Times[0])
}

// EndTime is the end of the last slot; an end exactly at midnight lands on the next date.
func (c Claim) EndTime() time.Time {
	if len(c.Times) == 0 {
		return time.Time{}
	}
	return c.at(c.Times[len(c.Times)-1].Add(models.SlotInterval))
}

func (c Claim) at(clock models.Clock) time.Time {
	if clock.Before(c.open) {
		return clock.On(c.Day.AddDate(0, 0, 1))
	}
	return clock.On(c.Day)
}

// SameTimes compares time sequences only.
func (c Claim) SameTimes(o Claim) bool {
	if len(c.Times) != len(o.Times) {
		return false
	}
	for i := range c.Times {
		if c.Times[i] != o.Times[i] {
			return false
		}
	}
	return true
}

// Match is an exact-length run starting at the requested time.
type Match struct {
	Claim
	Before int // free slots right before the run
	After  int // free slots right after the run
}

func (m *Match) slack() int { return m.Before + m.After }

func (m *Match) perfect() bool { return m.Before == 0 && m.After == 0 }

func (m *Match) flush() bool { return m.Before == 0 || m.After == 0 }

// Suggestion is a best-effort run offered instead of the requested one.
type Suggestion struct {
	Claim
}

type Kind int

const (
	Waitlist Kind = iota
	Success
	Suggested
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Suggested:
		return "suggested"
	default:
		return "waitlist"
	}
}

// Outcome of a search. Every claim in it is already reserved.
type Outcome struct {
	Kind        Kind
	Match       *Match
	Suggestions []Suggestion
}
