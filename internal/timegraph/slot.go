package timegraph

import "restobook/internal/models"

const (
	NoHolder int64 = 0
	// ReservedHolder помечает слот, занятый поиском, но ещё не привязанный к брони
	ReservedHolder int64 = -1
)

// Slot is one 30-minute interval of one table. Guarded by the owning day's lock.
type Slot struct {
	Time      models.Clock
	available bool
	holder    int64
}

func newSlot(t models.Clock) *Slot {
	return &Slot{Time: t, available: true, holder: NoHolder}
}

func (s *Slot) Available() bool { return s.available }

func (s *Slot) Holder() int64 { return s.holder }

func (s *Slot) reserve() {
	s.available = false
	s.holder = ReservedHolder
}

func (s *Slot) book(id int64) {
	s.available = false
	s.holder = id
}

func (s *Slot) release() {
	s.available = true
	s.holder = NoHolder
}
