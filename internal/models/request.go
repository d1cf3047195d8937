package models

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidRequest = errors.New("invalid booking request")

// BookingRequest is what a guest asks for.
type BookingRequest struct {
	RequestID     int64     `json:"request_id"`
	CorrelationID string    `json:"correlation_id"`
	StartTime     time.Time `json:"start_time"`
	Duration      int       `json:"duration"` // minutes
	Notes         string    `json:"notes,omitempty"`
	Persons       int       `json:"persons"`
	GuestID       int64     `json:"guest_id"`
}

func (r *BookingRequest) Span() time.Duration {
	return time.Duration(r.Duration) * time.Minute
}

func (r *BookingRequest) EndTime() time.Time {
	return r.StartTime.Add(r.Span())
}

// Validate checks the request against the grid rules. maxPersons <= 0 means the default.
func (r *BookingRequest) Validate(maxPersons int) error {
	if maxPersons <= 0 {
		maxPersons = DefaultMaxPersons
	}
	if r.StartTime.IsZero() {
		return fmt.Errorf("%w: start_time is required", ErrInvalidRequest)
	}
	if r.StartTime.Minute()%30 != 0 || r.StartTime.Second() != 0 || r.StartTime.Nanosecond() != 0 {
		return fmt.Errorf("%w: start_time must be aligned to 30 minutes", ErrInvalidRequest)
	}
	span := r.Span()
	if span <= 0 || span%SlotInterval != 0 {
		return fmt.Errorf("%w: duration must be a positive multiple of 30 minutes", ErrInvalidRequest)
	}
	if span < MinBookingDuration {
		return fmt.Errorf("%w: duration must be at least %s", ErrInvalidRequest, MinBookingDuration)
	}
	if span >= 24*time.Hour {
		return fmt.Errorf("%w: duration must be shorter than a day", ErrInvalidRequest)
	}
	if r.Persons <= 0 || r.Persons > maxPersons {
		return fmt.Errorf("%w: persons must be between 1 and %d", ErrInvalidRequest, maxPersons)
	}
	return nil
}

// Slot is a bookable candidate as seen by the guest.
type Slot struct {
	BookingID int64     `json:"booking_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// SlotConfirmation picks one of the suggested slots.
type SlotConfirmation struct {
	CorrelationID string  `json:"correlation_id"`
	Slot          Slot    `json:"slot"`
	RejectedIDs   []int64 `json:"rejected_ids,omitempty"`
}

func (c *SlotConfirmation) Validate() error {
	if c.CorrelationID == "" {
		return fmt.Errorf("%w: correlation_id is required", ErrInvalidRequest)
	}
	if c.Slot.BookingID <= 0 {
		return fmt.Errorf("%w: slot.booking_id is required", ErrInvalidRequest)
	}
	return nil
}
