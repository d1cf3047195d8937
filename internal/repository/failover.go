package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"restobook/internal/domain"
	"restobook/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverStateRepository switches to the fallback when the primary errors
// and probes the primary again once a minute.
type FailoverStateRepository struct {
	primary  domain.RequestStateRepository
	fallback domain.RequestStateRepository
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverStateRepository(primary, fallback domain.RequestStateRepository, logger *zerolog.Logger) *FailoverStateRepository {
	return &FailoverStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// usePrimary reports whether the next call should go to the primary.
func (r *FailoverStateRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// Try to recover after 1 minute
	if time.Since(r.lastCheck) > recoveryInterval {
		r.lastCheck = time.Now()
		return true
	}
	return false
}

func (r *FailoverStateRepository) report(err error) {
	if err == nil {
		if r.isDown.CompareAndSwap(true, false) {
			r.logger.Info().Msg("Primary state repository recovered")
		}
		return
	}
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary state repository failed, falling back to memory")
	}
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

func (r *FailoverStateRepository) GetResponse(ctx context.Context, correlationID string) (*models.BookingResponse, error) {
	if r.usePrimary() {
		resp, err := r.primary.GetResponse(ctx, correlationID)
		r.report(err)
		if err == nil {
			return resp, nil
		}
	}
	return r.fallback.GetResponse(ctx, correlationID)
}

func (r *FailoverStateRepository) SaveResponse(ctx context.Context, resp *models.BookingResponse, ttl time.Duration) error {
	if r.usePrimary() {
		err := r.primary.SaveResponse(ctx, resp, ttl)
		r.report(err)
		if err == nil {
			return nil
		}
	}
	return r.fallback.SaveResponse(ctx, resp, ttl)
}

func (r *FailoverStateRepository) NextWaitlistPosition(ctx context.Context, day time.Time) (int64, error) {
	if r.usePrimary() {
		pos, err := r.primary.NextWaitlistPosition(ctx, day)
		r.report(err)
		if err == nil {
			return pos, nil
		}
	}
	return r.fallback.NextWaitlistPosition(ctx, day)
}

func (r *FailoverStateRepository) CheckRateLimit(ctx context.Context, guestID int64, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, guestID, limit, window)
		r.report(err)
		if err == nil {
			return allowed, nil
		}
	}
	return r.fallback.CheckRateLimit(ctx, guestID, limit, window)
}
