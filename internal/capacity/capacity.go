package capacity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrCapacityExceeded = errors.New("party exceeds the largest table")

// Source lists distinct table capacities.
type Source interface {
	DistinctCapacities(ctx context.Context) ([]int, error)
}

// Resolver maps a party size onto a capacity tier.
type Resolver struct {
	source Source

	mu    sync.RWMutex
	tiers []int
}

func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// NewStaticResolver is handy when tiers are known up front.
func NewStaticResolver(tiers ...int) *Resolver {
	r := &Resolver{}
	r.set(tiers)
	return r
}

// Refresh reloads the tiers from the store.
func (r *Resolver) Refresh(ctx context.Context) error {
	if r.source == nil {
		return nil
	}
	tiers, err := r.source.DistinctCapacities(ctx)
	if err != nil {
		return fmt.Errorf("failed to load capacities: %w", err)
	}
	r.set(tiers)
	return nil
}

func (r *Resolver) set(tiers []int) {
	uniq := make([]int, 0, len(tiers))
	seen := make(map[int]struct{}, len(tiers))
	for _, t := range tiers {
		if t <= 0 {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		uniq = append(uniq, t)
	}
	sort.Ints(uniq)

	r.mu.Lock()
	r.tiers = uniq
	r.mu.Unlock()
}

// Tiers returns a copy of the ascending tier list.
func (r *Resolver) Tiers() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]int(nil), r.tiers...)
}

// Max is the largest party that can be seated automatically, 0 when no tables exist.
func (r *Resolver) Max() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.tiers) == 0 {
		return 0
	}
	return r.tiers[len(r.tiers)-1]
}

// Resolve returns the smallest tier that seats persons.
func (r *Resolver) Resolve(persons int) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := sort.SearchInts(r.tiers, persons)
	if i == len(r.tiers) {
		largest := 0
		if len(r.tiers) > 0 {
			largest = r.tiers[len(r.tiers)-1]
		}
		return 0, fmt.Errorf("%w: %d persons requested, at most %d can be seated without a manager", ErrCapacityExceeded, persons, largest)
	}
	return r.tiers[i], nil
}

// Upgrade returns the next tier above tier.
func (r *Resolver) Upgrade(tier int) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := sort.SearchInts(r.tiers, tier+1)
	if i == len(r.tiers) {
		return 0, false
	}
	return r.tiers[i], true
}
