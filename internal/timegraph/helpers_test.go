package timegraph

import (
	"context"
	"testing"
	"time"

	"restobook/internal/capacity"
	"restobook/internal/models"
	"restobook/internal/workhours"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeTables struct {
	tables []*models.RestTable
	err    error
	calls  int
}

func (f *fakeTables) ListTables(_ context.Context) ([]*models.RestTable, error) {
	f.calls++
	return f.tables, f.err
}

func (f *fakeTables) ListTablesWithBookings(_ context.Context) ([]*models.RestTable, error) {
	f.calls++
	return f.tables, f.err
}

func at(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func clocks(ss ...string) []models.Clock {
	out := make([]models.Clock, len(ss))
	for i, s := range ss {
		c, err := models.ParseClock(s)
		if err != nil {
			panic(err)
		}
		out[i] = c
	}
	return out
}

func table(number, capacity int, bookings ...*models.Booking) *models.RestTable {
	for _, b := range bookings {
		b.TableNumber = number
	}
	return &models.RestTable{TableNumber: number, Capacity: capacity, Bookings: bookings}
}

func booked(id int64, start, end string) *models.Booking {
	return &models.Booking{ID: id, StartTime: at(start), EndTime: at(end), Status: models.StatusConfirmed}
}

// hours: opens 10:00, closes 23:00 on weekdays and 01:00 after Friday and Saturday.
func testHours() *workhours.Oracle {
	return workhours.New(models.NewClock(10, 0), models.NewClock(23, 0), models.NewClock(1, 0))
}

func newTestGraph(t *testing.T, tables ...*models.RestTable) (*Graph, *fakeTables) {
	t.Helper()

	seen := map[int]struct{}{}
	var tiers []int
	for _, tb := range tables {
		if _, ok := seen[tb.Capacity]; !ok {
			seen[tb.Capacity] = struct{}{}
			tiers = append(tiers, tb.Capacity)
		}
	}

	src := &fakeTables{tables: tables}
	logger := zerolog.Nop()
	policy := DefaultPolicy()
	policy.LockTimeout = 50 * time.Millisecond

	g := New(src, capacity.NewStaticResolver(tiers...), testHours(), policy, &logger)
	return g, src
}

func loadedGraph(t *testing.T, tables ...*models.RestTable) *Graph {
	t.Helper()
	g, _ := newTestGraph(t, tables...)
	require.NoError(t, g.FillIn(context.Background()))
	return g
}

func slotsOf(t *testing.T, g *Graph, day time.Time, number int) []SlotState {
	t.Helper()
	snap, err := g.Snapshot(context.Background(), day)
	require.NoError(t, err)
	for _, ts := range snap.Tables {
		if ts.TableNumber == number {
			return ts.Slots
		}
	}
	t.Fatalf("table %d not in snapshot", number)
	return nil
}

func holderAt(t *testing.T, g *Graph, day time.Time, number int, clock string) SlotState {
	t.Helper()
	want := clocks(clock)[0]
	for _, s := range slotsOf(t, g, day, number) {
		if s.Time == want {
			return s
		}
	}
	t.Fatalf("no slot %s on table %d", clock, number)
	return SlotState{}
}
