package timegraph

import (
	"sort"
	"time"

	"restobook/internal/models"
)

// Hours resolves the session a timestamp belongs to.
type Hours interface {
	OpenAt(t time.Time) time.Time
	CloseAt(t time.Time) time.Time
	OperatingDay(t time.Time) time.Time
}

// DayGrid is capacity → table → slots for one operating day.
// Its shape is fixed at build time; only slot state changes.
type DayGrid struct {
	Date  time.Time
	Open  time.Time
	Close time.Time

	tiers  map[int]map[int][]*Slot
	tables map[int][]int // capacity → sorted table numbers
	tierOf map[int]int   // table → capacity
	n      int
}

// BuildDay lays out an empty grid for date using hours at 14:00 of that date.
func BuildDay(date time.Time, tables []*models.RestTable, hours Hours) *DayGrid {
	y, m, d := date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, date.Location())
	midday := time.Date(y, m, d, 14, 0, 0, 0, date.Location())

	grid := &DayGrid{
		Date:   day,
		Open:   hours.OpenAt(midday),
		Close:  hours.CloseAt(midday),
		tiers:  make(map[int]map[int][]*Slot),
		tables: make(map[int][]int),
		tierOf: make(map[int]int),
	}

	if grid.Close.After(grid.Open) {
		grid.n = int(grid.Close.Sub(grid.Open) / models.SlotInterval)
	}
	openClock := models.ClockOf(grid.Open)

	for _, table := range tables {
		if _, dup := grid.tierOf[table.TableNumber]; dup {
			continue
		}
		slots := make([]*Slot, grid.n)
		for i := range slots {
			slots[i] = newSlot(openClock.Add(time.Duration(i) * models.SlotInterval))
		}
		if grid.tiers[table.Capacity] == nil {
			grid.tiers[table.Capacity] = make(map[int][]*Slot)
		}
		grid.tiers[table.Capacity][table.TableNumber] = slots
		grid.tables[table.Capacity] = append(grid.tables[table.Capacity], table.TableNumber)
		grid.tierOf[table.TableNumber] = table.Capacity
	}
	for capacity := range grid.tables {
		sort.Ints(grid.tables[capacity])
	}

	return grid
}

// Len is the number of slots per table.
func (g *DayGrid) Len() int {
	return g.n
}

// Tables returns table numbers of a tier in ascending order.
func (g *DayGrid) Tables(capacity int) []int {
	return g.tables[capacity]
}

func (g *DayGrid) slots(capacity, table int) []*Slot {
	return g.tiers[capacity][table]
}

// index of the slot starting at t, or -1.
func (g *DayGrid) index(t time.Time) int {
	if t.Before(g.Open) || !t.Before(g.Close) {
		return -1
	}
	offset := t.Sub(g.Open)
	if offset%models.SlotInterval != 0 {
		return -1
	}
	return int(offset / models.SlotInterval)
}

// clamp returns the index of the first slot at or after t, bounded to [0, Len].
func (g *DayGrid) clamp(t time.Time) int {
	if !t.After(g.Open) {
		return 0
	}
	if !t.Before(g.Close) {
		return g.n
	}
	offset := t.Sub(g.Open)
	i := int(offset / models.SlotInterval)
	if offset%models.SlotInterval != 0 {
		i++
	}
	return i
}

func (g *DayGrid) claim(capacity, table, first, count int) Claim {
	slots := g.slots(capacity, table)[first : first+count]
	times := make([]models.Clock, len(slots))
	for i, s := range slots {
		times[i] = s.Time
	}
	return Claim{
		Day:      g.Date,
		Capacity: capacity,
		Table:    table,
		Times:    times,
		first:    first,
		open:     models.ClockOf(g.Open),
	}
}

// claimed returns the grid slots a claim refers to, nil when the grid has no such run.
func (g *DayGrid) claimed(c Claim) []*Slot {
	slots := g.slots(c.Capacity, c.Table)
	if slots == nil || c.first < 0 || c.first+len(c.Times) > len(slots) {
		return nil
	}
	return slots[c.first : c.first+len(c.Times)]
}

// SlotState is a read-only copy of a slot.
type SlotState struct {
	Time      models.Clock
	Available bool
	Holder    int64
}

type TableSchedule struct {
	TableNumber int
	Capacity    int
	Slots       []SlotState
}

// DaySchedule is a detached copy of a day grid.
type DaySchedule struct {
	Date   time.Time
	Open   time.Time
	Close  time.Time
	Tables []TableSchedule
}

func (g *DayGrid) snapshot() *DaySchedule {
	out := &DaySchedule{Date: g.Date, Open: g.Open, Close: g.Close}

	capacities := make([]int, 0, len(g.tables))
	for capacity := range g.tables {
		capacities = append(capacities, capacity)
	}
	sort.Ints(capacities)

	for _, capacity := range capacities {
		for _, table := range g.tables[capacity] {
			src := g.slots(capacity, table)
			states := make([]SlotState, len(src))
			for i, s := range src {
				states[i] = SlotState{Time: s.Time, Available: s.available, Holder: s.holder}
			}
			out.Tables = append(out.Tables, TableSchedule{TableNumber: table, Capacity: capacity, Slots: states})
		}
	}
	return out
}
