package locker

import (
	"sort"
	"sync"
)

// Keyed hands out one mutex per key. Entries are reference counted and dropped
// once nobody holds or waits for them, so the map only grows with the number of
// visitors being mutated right now.
type Keyed struct {
	mu    sync.Mutex
	locks map[uint]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyed creates an empty keyed locker
func NewKeyed() *Keyed {
	return &Keyed{locks: make(map[uint]*entry)}
}

// Lock blocks until the key is free and returns the matching unlock function.
func (k *Keyed) Lock(key uint) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// LockMany locks several keys in ascending order to avoid lock-order inversions.
// Duplicate keys are locked once.
func (k *Keyed) LockMany(keys ...uint) func() {
	sorted := make([]uint, 0, len(keys))
	seen := make(map[uint]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		sorted = append(sorted, key)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	unlocks := make([]func(), 0, len(sorted))
	for _, key := range sorted {
		unlocks = append(unlocks, k.Lock(key))
	}

	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

// Size returns the number of keys currently tracked
func (k *Keyed) Size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
