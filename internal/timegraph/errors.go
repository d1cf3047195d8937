package timegraph

import (
	"errors"
	"fmt"
	"time"

	"restobook/internal/models"
)

var (
	// ErrLockTimeout is retryable: the day guard was busy for longer than the policy allows.
	ErrLockTimeout = errors.New("day lock timeout")

	// ErrConsistency marks persisted bookings that overlap on one table.
	ErrConsistency = errors.New("overlapping bookings in store")

	ErrDayNotLoaded = errors.New("day is not loaded")
	ErrUnknownTable = errors.New("table is not in the day grid")

	// ErrSlotTaken: a claimed slot already belongs to another booking.
	ErrSlotTaken = errors.New("slot is held by another booking")
)

// ConsistencyError aborts a rebuild.
type ConsistencyError struct {
	Day       time.Time
	Table     int
	At        models.Clock
	BookingID int64
	HolderID  int64
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("booking %d overlaps booking %d on table %d at %s %s",
		e.BookingID, e.HolderID, e.Table, e.Day.Format(time.DateOnly), e.At)
}

func (e *ConsistencyError) Is(target error) bool {
	return target == ErrConsistency
}

// SlotTakenError rejects an assignment over another booking's slot.
type SlotTakenError struct {
	Day      time.Time
	Table    int
	At       models.Clock
	HolderID int64
}

func (e *SlotTakenError) Error() string {
	return fmt.Sprintf("table %d at %s %s is held by booking %d",
		e.Table, e.Day.Format(time.DateOnly), e.At, e.HolderID)
}

func (e *SlotTakenError) Is(target error) bool {
	return target == ErrSlotTaken
}
