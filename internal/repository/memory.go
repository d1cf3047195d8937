package repository

import (
	"context"
	"sync"
	"time"

	"restobook/internal/models"
)

type MemoryStateRepository struct {
	responses sync.Map

	mu         sync.Mutex
	waitlists  map[string]int64
	rateLimits map[int64]*rateLimitEntry
}

func NewMemoryStateRepository() *MemoryStateRepository {
	return &MemoryStateRepository{
		waitlists:  make(map[string]int64),
		rateLimits: make(map[int64]*rateLimitEntry),
	}
}

type storedResponse struct {
	resp      *models.BookingResponse
	expiresAt time.Time
}

func (r *MemoryStateRepository) GetResponse(_ context.Context, correlationID string) (*models.BookingResponse, error) {
	val, ok := r.responses.Load(correlationID)
	if !ok {
		return nil, nil
	}
	stored := val.(*storedResponse)
	if !stored.expiresAt.IsZero() && time.Now().After(stored.expiresAt) {
		r.responses.Delete(correlationID)
		return nil, nil
	}
	return stored.resp, nil
}

func (r *MemoryStateRepository) SaveResponse(_ context.Context, resp *models.BookingResponse, ttl time.Duration) error {
	if resp.CorrelationID == "" {
		return nil
	}
	stored := &storedResponse{resp: resp}
	if ttl > 0 {
		stored.expiresAt = time.Now().Add(ttl)
	}
	r.responses.Store(resp.CorrelationID, stored)
	return nil
}

func (r *MemoryStateRepository) NextWaitlistPosition(_ context.Context, day time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := day.Format(time.DateOnly)
	r.waitlists[key]++
	return r.waitlists[key], nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryStateRepository) CheckRateLimit(_ context.Context, guestID int64, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	entry, ok := r.rateLimits[guestID]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{count: 1, expiresAt: now.Add(window)}
		r.rateLimits[guestID] = entry
	} else {
		entry.count++
	}

	return entry.count <= limit, nil
}
