// Package cache holds single-value TTL slots used for market data.
package cache

import (
	"sync"
	"time"

	"github.com/alim08/market_pulse/pkg/clock"
	"golang.org/x/sync/singleflight"
)

// Slot caches one value of T for a fixed freshness window. The value is
// only ever replaced wholesale.
type Slot[T any] struct {
	ttl   time.Duration
	clock clock.Clock

	mu        sync.RWMutex
	value     T
	fetchedAt time.Time
	filled    bool

	group singleflight.Group
}

// NewSlot returns an empty slot with the given freshness window.
func NewSlot[T any](ttl time.Duration, clk clock.Clock) *Slot[T] {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Slot[T]{ttl: ttl, clock: clk}
}

// TTL returns the configured freshness window.
func (s *Slot[T]) TTL() time.Duration { return s.ttl }

// Get returns the cached value if it is younger than the TTL.
func (s *Slot[T]) Get() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.filled || !s.fresh(s.fetchedAt) {
		var zero T
		return zero, false
	}
	return s.value, true
}

// Set stores v stamped with the current time.
func (s *Slot[T]) Set(v T) {
	s.SetAt(v, s.clock.Now())
}

// SetAt stores v with an explicit fetch time, e.g. one carried over from a
// shared cache. A value that is already stale at t is still stored but
// will not be served by Get.
func (s *Slot[T]) SetAt(v T, fetchedAt time.Time) {
	s.mu.Lock()
	s.value = v
	s.fetchedAt = fetchedAt
	s.filled = true
	s.mu.Unlock()
}

// Fresh reports whether a value fetched at t would still be served.
func (s *Slot[T]) Fresh(t time.Time) bool {
	return s.fresh(t)
}

// A fetch time ahead of the local clock is never fresh.
func (s *Slot[T]) fresh(t time.Time) bool {
	age := s.clock.Now().Sub(t)
	return age >= 0 && age < s.ttl
}

// Purge empties the slot.
func (s *Slot[T]) Purge() {
	s.mu.Lock()
	var zero T
	s.value = zero
	s.fetchedAt = time.Time{}
	s.filled = false
	s.mu.Unlock()
}

// State describes a slot for admin views.
type State struct {
	Filled    bool          `json:"filled"`
	Fresh     bool          `json:"fresh"`
	FetchedAt time.Time     `json:"fetched_at,omitempty"`
	Age       time.Duration `json:"age_ns"`
	TTL       time.Duration `json:"ttl_ns"`
}

// State snapshots the slot's bookkeeping.
func (s *Slot[T]) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := State{Filled: s.filled, TTL: s.ttl}
	if s.filled {
		st.FetchedAt = s.fetchedAt
		st.Age = s.clock.Now().Sub(s.fetchedAt)
		st.Fresh = st.Age >= 0 && st.Age < s.ttl
	}
	return st
}

type loaded[T any] struct {
	v   T
	hit bool
}

// Load returns the fresh value or runs fetch to produce one. Concurrent
// callers that miss share a single fetch. fetch returns the time its value
// was obtained and whether it may be cached; uncacheable results are handed
// to every waiter but leave the slot untouched. hit is true when no fetch
// ran for the value returned.
func (s *Slot[T]) Load(fetch func() (v T, fetchedAt time.Time, cacheable bool)) (v T, hit bool) {
	if v, ok := s.Get(); ok {
		return v, true
	}
	res, _, _ := s.group.Do("load", func() (interface{}, error) {
		return s.refresh(fetch), nil
	})
	r := res.(loaded[T])
	return r.v, r.hit
}

// refresh is the body of one flight.
func (s *Slot[T]) refresh(fetch func() (T, time.Time, bool)) loaded[T] {
	// a flight that just finished may have filled the slot
	if v, ok := s.Get(); ok {
		return loaded[T]{v: v, hit: true}
	}
	v, fetchedAt, cacheable := fetch()
	if cacheable {
		s.SetAt(v, fetchedAt)
	}
	return loaded[T]{v: v}
}
