package worker

import (
	"context"
	"fmt"
	"time"

	"restobook/internal/config"
	"restobook/internal/models"

	"github.com/rs/zerolog"
)

// Maintainer is the scheduler-side housekeeping surface.
type Maintainer interface {
	SweepExpired(ctx context.Context) (int, error)
	Cleanup(ctx context.Context) error
}

// Maintenance sweeps expired holds on an interval and runs the nightly cleanup.
type Maintenance struct {
	target    Maintainer
	interval  time.Duration
	cleanupAt models.Clock
	loc       *time.Location
	now       func() time.Time
	logger    *zerolog.Logger
}

func NewMaintenance(target Maintainer, cfg config.SweeperConfig, loc *time.Location, logger *zerolog.Logger) (*Maintenance, error) {
	at, err := models.ParseClock(cfg.CleanupTime)
	if err != nil {
		return nil, fmt.Errorf("sweeper.cleanup_time: %w", err)
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Maintenance{
		target:    target,
		interval:  interval,
		cleanupAt: at,
		loc:       loc,
		now:       time.Now,
		logger:    logger,
	}, nil
}

// Start blocks until ctx is done.
func (m *Maintenance) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Ждем ближайшего времени очистки, дальше раз в сутки
	wait := untilNext(m.now().In(m.loc), m.cleanupAt)
	timer := time.NewTimer(wait)
	defer timer.Stop()

	m.logger.Info().Dur("sweep_interval", m.interval).Str("cleanup_at", m.cleanupAt.String()).Dur("next_cleanup_in", wait).
		Msg("maintenance started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("maintenance stopped")
			return
		case <-ticker.C:
			m.Sweep(ctx)
		case <-timer.C:
			m.RunCleanup(ctx)
			timer.Reset(untilNext(m.now().In(m.loc), m.cleanupAt))
		}
	}
}

// Sweep runs one expiry sweep and logs the outcome.
func (m *Maintenance) Sweep(ctx context.Context) {
	n, err := m.target.SweepExpired(ctx)
	if err != nil {
		m.logger.Error().Err(err).Int("expired", n).Msg("expiry sweep failed")
		return
	}
	if n > 0 {
		m.logger.Debug().Int("expired", n).Msg("expiry sweep")
	}
}

func (m *Maintenance) RunCleanup(ctx context.Context) {
	started := m.now()
	if err := m.target.Cleanup(ctx); err != nil {
		m.logger.Error().Err(err).Msg("nightly cleanup failed")
		return
	}
	m.logger.Info().Dur("took", m.now().Sub(started)).Msg("nightly cleanup finished")
}

// untilNext is the wait from now to the next occurrence of at, never zero.
func untilNext(now time.Time, at models.Clock) time.Duration {
	next := at.On(now)
	if !next.After(now) {
		next = at.On(now.AddDate(0, 0, 1))
	}
	return next.Sub(now)
}
