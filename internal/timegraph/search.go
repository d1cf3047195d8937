package timegraph

import (
	"fmt"

	"restobook/internal/models"
)

// inRange reports whether t lies in [start, end); a range whose end is not after its start wraps midnight.
func inRange(t, start, end models.Clock) bool {
	if end.After(start) {
		return !t.Before(start) && t.Before(end)
	}
	return !t.Before(start) || t.Before(end)
}

// appropriate looks for need free slots starting exactly at index at.
// Nothing is reserved.
func appropriate(slots []*Slot, at, need int) (before, after int, ok bool) {
	if at < 0 || at >= len(slots) || need <= 0 {
		return 0, 0, false
	}
	for i := at - 1; i >= 0 && slots[i].available; i-- {
		before++
	}
	if at+need > len(slots) {
		// the run would go past closing
		return 0, 0, false
	}
	for i := at; i < at+need; i++ {
		if !slots[i].available {
			return 0, 0, false
		}
	}
	for i := at + need; i < len(slots) && slots[i].available; i++ {
		after++
	}
	return before, after, true
}

// suggest scans slots[lo:hi) for the first free run of need slots, or a shorter
// run of at least minSlots cut off by a taken slot. Returns the run start and length.
func suggest(slots []*Slot, lo, hi, need, minSlots int) (first, length int, ok bool) {
	if hi > len(slots) {
		hi = len(slots)
	}
	run := 0
	for i := lo; i < hi; i++ {
		if slots[i].available {
			run++
			if run == need {
				return i - run + 1, run, true
			}
			continue
		}
		if run >= minSlots {
			return i - run, run, true
		}
		run = 0
	}
	return 0, 0, false
}

func reserve(slots []*Slot) {
	for _, s := range slots {
		s.reserve()
	}
}

// bestMatch scans a tier for an appropriate run at index at and reserves the winner.
// A run with no slack on either side wins outright; then runs flush with one
// neighbour; then the largest combined slack. Ties keep the lower table number.
func (g *DayGrid) bestMatch(capacity, at, need int) *Match {
	var best, flush *Match

	for _, table := range g.tables[capacity] {
		before, after, ok := appropriate(g.slots(capacity, table), at, need)
		if !ok {
			continue
		}
		m := &Match{Claim: g.claim(capacity, table, at, need), Before: before, After: after}
		if m.perfect() {
			best, flush = m, m
			break
		}
		if m.flush() && (flush == nil || m.slack() > flush.slack()) {
			flush = m
		}
		if best == nil || m.slack() > best.slack() {
			best = m
		}
	}

	if flush != nil {
		best = flush
	}
	if best != nil {
		reserve(g.claimed(best.Claim))
	}
	return best
}

// suggestions appends reserved best-effort runs from one tier until limit is reached.
// A run whose times repeat an accepted suggestion is skipped before anything is reserved.
func (g *DayGrid) suggestions(acc []Suggestion, capacity, lo, hi, need, minSlots, limit int) []Suggestion {
	for _, table := range g.tables[capacity] {
		if len(acc) >= limit {
			break
		}
		first, length, ok := suggest(g.slots(capacity, table), lo, hi, need, minSlots)
		if !ok {
			continue
		}
		cand := Suggestion{Claim: g.claim(capacity, table, first, length)}
		if containsTimes(acc, cand) {
			continue
		}
		reserve(g.claimed(cand.Claim))
		acc = append(acc, cand)
	}
	return acc
}

func containsTimes(list []Suggestion, s Suggestion) bool {
	for _, other := range list {
		if other.SameTimes(s.Claim) {
			return true
		}
	}
	return false
}

// firstMatch serves the first request of a freshly built day: the lowest
// numbered table of the tier takes the run and slack is reported as zero.
func (g *DayGrid) firstMatch(capacity, at, need int) *Match {
	tables := g.tables[capacity]
	if len(tables) == 0 {
		return nil
	}
	if _, _, ok := appropriate(g.slots(capacity, tables[0]), at, need); !ok {
		return nil
	}
	m := &Match{Claim: g.claim(capacity, tables[0], at, need)}
	reserve(g.claimed(m.Claim))
	return m
}

// apply marks a persisted booking on the grid.
func (g *DayGrid) apply(b *models.Booking) error {
	capacity, ok := g.tierOf[b.TableNumber]
	if !ok {
		return fmt.Errorf("booking %d: %w: %d", b.ID, ErrUnknownTable, b.TableNumber)
	}
	start, end := models.ClockOf(b.StartTime), models.ClockOf(b.EndTime)
	for _, s := range g.slots(capacity, b.TableNumber) {
		if !inRange(s.Time, start, end) {
			continue
		}
		if !s.available {
			return &ConsistencyError{Day: g.Date, Table: b.TableNumber, At: s.Time, BookingID: b.ID, HolderID: s.holder}
		}
		s.book(b.ID)
	}
	return nil
}
