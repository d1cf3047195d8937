package timegraph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"restobook/internal/config"
	"restobook/internal/metrics"
	"restobook/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// TableSource is the part of the booking store the graph reads.
type TableSource interface {
	ListTables(ctx context.Context) ([]*models.RestTable, error)
	ListTablesWithBookings(ctx context.Context) ([]*models.RestTable, error)
}

// Tiers gives the next larger capacity.
type Tiers interface {
	Upgrade(tier int) (int, bool)
}

type Policy struct {
	LockTimeout        time.Duration
	MaxSuggestions     int
	MinSuggestionSlots int
	SuggestionWindow   time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		LockTimeout:        models.DefaultLockTimeout,
		MaxSuggestions:     models.DefaultMaxSuggestions,
		MinSuggestionSlots: models.DefaultMinSuggestionSlots,
		SuggestionWindow:   models.DefaultSuggestionWindow,
	}
}

func PolicyFromConfig(cfg config.SchedulerConfig) Policy {
	p := DefaultPolicy()
	if cfg.LockTimeout > 0 {
		p.LockTimeout = cfg.LockTimeout
	}
	if cfg.MaxSuggestions > 0 {
		p.MaxSuggestions = cfg.MaxSuggestions
	}
	if cfg.MinSuggestionSlots > 0 {
		p.MinSuggestionSlots = cfg.MinSuggestionSlots
	}
	if cfg.SuggestionWindow > 0 {
		p.SuggestionWindow = cfg.SuggestionWindow
	}
	return p
}

// Graph holds one grid per operating day.
//
// Lock order: maintenance (shared for requests, exclusive for FillIn), then the
// day lock, then mu for short map access. Slots are only touched under their day lock.
type Graph struct {
	tables TableSource
	tiers  Tiers
	hours  Hours
	policy Policy
	logger *zerolog.Logger

	maintenance sync.RWMutex

	mu    sync.Mutex
	days  map[string]*DayGrid
	locks map[string]*dayLock
}

func New(tables TableSource, tiers Tiers, hours Hours, policy Policy, logger *zerolog.Logger) *Graph {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Graph{
		tables: tables,
		tiers:  tiers,
		hours:  hours,
		policy: policy,
		logger: logger,
		days:   make(map[string]*DayGrid),
		locks:  make(map[string]*dayLock),
	}
}

func dayKey(day time.Time) string {
	return day.Format(time.DateOnly)
}

func (g *Graph) lockDay(ctx context.Context, day time.Time) (func(), error) {
	key := dayKey(day)

	g.mu.Lock()
	l, ok := g.locks[key]
	if !ok {
		l = newDayLock()
		g.locks[key] = l
	}
	g.mu.Unlock()

	if err := l.acquire(ctx, g.policy.LockTimeout); err != nil {
		if errors.Is(err, ErrLockTimeout) {
			metrics.IncLockTimeout()
			g.logger.Warn().Str("day", key).Dur("timeout", g.policy.LockTimeout).Msg("day lock timeout")
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
		return nil, err
	}
	return l.release, nil
}

// lockLoadedDay locks a day that already has a grid. For a day without one it
// returns a nil grid and creates no lock entry. A grid, once built, stays until
// FillIn swaps the map, so callers must hold maintenance shared.
func (g *Graph) lockLoadedDay(ctx context.Context, day time.Time) (*DayGrid, func(), error) {
	if g.day(day) == nil {
		return nil, nil, nil
	}
	unlock, err := g.lockDay(ctx, day)
	if err != nil {
		return nil, nil, err
	}
	return g.day(day), unlock, nil
}

func (g *Graph) day(day time.Time) *DayGrid {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.days[dayKey(day)]
}

func (g *Graph) putDay(grid *DayGrid) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.days[dayKey(grid.Date)] = grid
}

// FindBooking searches and reserves slots for a request on its operating day.
// tier must be a known capacity; the next larger tier is tried when it is full.
func (g *Graph) FindBooking(ctx context.Context, start time.Time, duration time.Duration, tier int, correlationID string) (*Outcome, error) {
	need := int(duration / models.SlotInterval)
	if need <= 0 {
		return nil, fmt.Errorf("duration %s is shorter than one slot", duration)
	}

	g.maintenance.RLock()
	defer g.maintenance.RUnlock()

	day := g.hours.OperatingDay(start)
	unlock, err := g.lockDay(ctx, day)
	if err != nil {
		return nil, err
	}
	defer unlock()

	log := g.logger.With().Str("correlation_id", correlationID).Str("day", dayKey(day)).Int("tier", tier).Logger()

	grid := g.day(day)
	if grid == nil {
		tables, err := g.tables.ListTables(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load tables: %w", err)
		}
		grid = BuildDay(day, tables, g.hours)
		g.putDay(grid)
		log.Debug().Int("slots", grid.Len()).Msg("day grid built")

		if m := grid.firstMatch(tier, grid.index(start), need); m != nil {
			return &Outcome{Kind: Success, Match: m}, nil
		}
	}

	upgrade, hasUpgrade := 0, false
	if g.tiers != nil {
		upgrade, hasUpgrade = g.tiers.Upgrade(tier)
	}

	if at := grid.index(start); at >= 0 {
		if m := grid.bestMatch(tier, at, need); m != nil {
			return &Outcome{Kind: Success, Match: m}, nil
		}
		if hasUpgrade {
			if m := grid.bestMatch(upgrade, at, need); m != nil {
				log.Debug().Int("upgrade", upgrade).Msg("seated at a larger table")
				return &Outcome{Kind: Success, Match: m}, nil
			}
		}
	}

	lo := grid.clamp(start.Add(-g.policy.SuggestionWindow))
	hi := grid.clamp(start.Add(duration + g.policy.SuggestionWindow))

	var suggestions []Suggestion
	suggestions = grid.suggestions(suggestions, tier, lo, hi, need, g.policy.MinSuggestionSlots, g.policy.MaxSuggestions)
	if hasUpgrade {
		suggestions = grid.suggestions(suggestions, upgrade, lo, hi, need, g.policy.MinSuggestionSlots, g.policy.MaxSuggestions)
	}
	if len(suggestions) > 0 {
		return &Outcome{Kind: Suggested, Suggestions: suggestions}, nil
	}

	return &Outcome{Kind: Waitlist}, nil
}

// Assign hands the slots of a claim to a booking id. Slots freed by a rebuild
// since the search are taken again; a slot held by another booking fails the
// whole claim with ErrSlotTaken and nothing is changed.
func (g *Graph) Assign(ctx context.Context, c Claim, bookingID int64) error {
	return g.withClaim(ctx, c, func(slots []*Slot) error {
		for _, s := range slots {
			switch {
			case s.available, s.holder == ReservedHolder, s.holder == bookingID:
			default:
				return &SlotTakenError{Day: c.Day, Table: c.Table, At: s.Time, HolderID: s.holder}
			}
		}
		for _, s := range slots {
			s.book(bookingID)
		}
		return nil
	})
}

// Release frees the slots of a claim that are still only reserved.
func (g *Graph) Release(ctx context.Context, c Claim) error {
	return g.withClaim(ctx, c, func(slots []*Slot) error {
		for _, s := range slots {
			if s.holder == ReservedHolder {
				s.release()
			}
		}
		return nil
	})
}

func (g *Graph) withClaim(ctx context.Context, c Claim, fn func([]*Slot) error) error {
	g.maintenance.RLock()
	defer g.maintenance.RUnlock()

	grid, unlock, err := g.lockLoadedDay(ctx, c.Day)
	if err != nil {
		return err
	}
	if grid == nil {
		return fmt.Errorf("%w: %s", ErrDayNotLoaded, dayKey(c.Day))
	}
	defer unlock()

	slots := grid.claimed(c)
	if slots == nil {
		return fmt.Errorf("%w: %d", ErrUnknownTable, c.Table)
	}
	return fn(slots)
}

// UnreserveByBookingID frees every slot held by one of ids on ref's operating day.
func (g *Graph) UnreserveByBookingID(ctx context.Context, ids []int64, ref time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	g.maintenance.RLock()
	defer g.maintenance.RUnlock()

	grid, unlock, err := g.lockLoadedDay(ctx, g.hours.OperatingDay(ref))
	if err != nil {
		return 0, err
	}
	if grid == nil {
		return 0, nil
	}
	defer unlock()

	wanted := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	released := 0
	for _, byTable := range grid.tiers {
		for _, slots := range byTable {
			for _, s := range slots {
				if _, ok := wanted[s.holder]; ok && !s.available {
					s.release()
					released++
				}
			}
		}
	}
	return released, nil
}

// FillIn rebuilds every day from the store. Requests wait until it finishes.
// On failure the previous graph stays in place.
func (g *Graph) FillIn(ctx context.Context) error {
	g.maintenance.Lock()
	defer g.maintenance.Unlock()

	started := time.Now()

	tables, err := g.tables.ListTablesWithBookings(ctx)
	if err != nil {
		metrics.IncRebuild("failed")
		return fmt.Errorf("failed to load tables with bookings: %w", err)
	}

	byDay := make(map[string][]*models.Booking)
	dates := make(map[string]time.Time)
	total := 0
	for _, table := range tables {
		for _, b := range table.Bookings {
			if b.TableNumber == 0 {
				b.TableNumber = table.TableNumber
			}
			day := g.hours.OperatingDay(b.StartTime)
			key := dayKey(day)
			byDay[key] = append(byDay[key], b)
			dates[key] = day
			total++
		}
	}

	var mu sync.Mutex
	days := make(map[string]*DayGrid, len(byDay))

	eg, egCtx := errgroup.WithContext(ctx)
	for key, bookings := range byDay {
		eg.Go(func() error {
			grid := BuildDay(dates[key], tables, g.hours)
			for _, b := range bookings {
				if err := egCtx.Err(); err != nil {
					return err
				}
				if err := grid.apply(b); err != nil {
					return err
				}
			}
			mu.Lock()
			days[key] = grid
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		metrics.IncRebuild("failed")
		var ce *ConsistencyError
		if errors.As(err, &ce) {
			g.logger.Error().Err(err).Int64("booking_id", ce.BookingID).Int64("holder_id", ce.HolderID).
				Int("table", ce.Table).Msg("time graph rebuild aborted")
		}
		return fmt.Errorf("failed to rebuild time graph: %w", err)
	}

	g.mu.Lock()
	g.days = days
	g.locks = make(map[string]*dayLock)
	g.mu.Unlock()

	metrics.IncRebuild("ok")
	g.logger.Info().
		Int("days", len(days)).
		Int("bookings", total).
		Dur("took", time.Since(started)).
		Msg("time graph rebuilt")
	return nil
}

// Snapshot copies the grid of an operating date. A day nobody booked yet comes back empty.
func (g *Graph) Snapshot(ctx context.Context, date time.Time) (*DaySchedule, error) {
	y, m, d := date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, date.Location())

	g.maintenance.RLock()
	defer g.maintenance.RUnlock()

	grid, unlock, err := g.lockLoadedDay(ctx, day)
	if err != nil {
		return nil, err
	}
	if grid != nil {
		defer unlock()
		return grid.snapshot(), nil
	}

	tables, err := g.tables.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load tables: %w", err)
	}
	return BuildDay(day, tables, g.hours).snapshot(), nil
}
