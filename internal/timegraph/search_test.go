package timegraph

import (
	"testing"
	"time"

	"restobook/internal/models"

	"github.com/stretchr/testify/assert"
)

// row builds free slots from 10:00; 'x' marks a taken slot.
func row(pattern string) []*Slot {
	slots := make([]*Slot, len(pattern))
	for i, c := range pattern {
		slots[i] = newSlot(models.NewClock(10, 0).Add(models.SlotInterval * time.Duration(i)))
		if c == 'x' {
			slots[i].book(99)
		}
	}
	return slots
}

func TestInRange(t *testing.T) {
	c := func(s string) models.Clock { return clocks(s)[0] }

	tests := []struct {
		name    string
		t, s, e string
		want    bool
	}{
		{"inside", "12:00", "11:00", "13:00", true},
		{"at start", "11:00", "11:00", "13:00", true},
		{"at end", "13:00", "11:00", "13:00", false},
		{"before", "10:30", "11:00", "13:00", false},
		{"wrapped late evening", "23:30", "22:00", "01:00", true},
		{"wrapped after midnight", "00:30", "22:00", "01:00", true},
		{"wrapped midnight", "00:00", "22:00", "01:00", true},
		{"wrapped end excluded", "01:00", "22:00", "01:00", false},
		{"wrapped middle of day excluded", "12:00", "22:00", "01:00", false},
		{"wrapped just before start", "21:30", "22:00", "01:00", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inRange(c(tt.t), c(tt.s), c(tt.e)))
		})
	}
}

func TestAppropriate(t *testing.T) {
	tests := []struct {
		name          string
		pattern       string
		at, need      int
		before, after int
		ok            bool
	}{
		{"whole row free", "........", 2, 4, 2, 2, true},
		{"flush both sides", "x....x", 1, 4, 0, 0, true},
		{"only contiguous leading slack counts", "..x..", 4, 1, 1, 0, true},
		{"start taken", "..x...", 2, 2, 0, 0, false},
		{"interior taken", "......x.", 4, 4, 0, 0, false},
		{"past closing", "......", 4, 4, 0, 0, false},
		{"start out of range", "....", -1, 2, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before, after, ok := appropriate(row(tt.pattern), tt.at, tt.need)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.before, before)
				assert.Equal(t, tt.after, after)
			}
		})
	}
}

func TestSuggest(t *testing.T) {
	tests := []struct {
		name          string
		pattern       string
		lo, hi, need  int
		first, length int
		ok            bool
	}{
		{"first full run", "x......", 0, 7, 4, 1, 4, true},
		{"shorter run cut by taken slot", "x....x..", 0, 8, 6, 1, 4, true},
		{"too short then full", "..x.....", 0, 8, 4, 3, 4, true},
		{"window respected", "......", 3, 6, 4, 0, 0, false},
		{"short run at window end is not taken", "x.....", 0, 6, 6, 0, 0, false},
		{"nothing free", "xxxx", 0, 4, 2, 0, 0, false},
		{"hi beyond row", "....", 0, 10, 4, 0, 4, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, length, ok := suggest(row(tt.pattern), tt.lo, tt.hi, tt.need, 4)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.first, first)
				assert.Equal(t, tt.length, length)
			}
		})
	}
}
