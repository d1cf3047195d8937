package models

import "time"

type Booking struct {
	ID            int64      `json:"id"`
	GuestID       int64      `json:"guest_id"`
	TableNumber   int        `json:"table_number"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       time.Time  `json:"end_time"`
	Status        string     `json:"status"` // pending, confirmed
	Persons       int        `json:"persons"`
	Notes         string     `json:"notes,omitempty"`
	CorrelationID string     `json:"correlation_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// IsExpired reports whether a pending booking outlived its hold.
func (b *Booking) IsExpired(now time.Time) bool {
	return b.Status == StatusPending && b.ExpiresAt != nil && !b.ExpiresAt.After(now)
}
