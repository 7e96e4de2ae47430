package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// FetchFunc loads a value from the backend on a cache miss.
type FetchFunc[V any] func(ctx context.Context) (V, error)

// Store is a keyed TTL cache with request coalescing. Concurrent
// non-forced reads of the same missing or stale key share a single
// underlying fetch; a failed fetch never overwrites a previously
// cached value. The clock is injectable so tests control time.
type Store[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
	group   singleflight.Group
	now     func() time.Time

	hits      atomic.Int64
	misses    atomic.Int64
	coalesced atomic.Int64
}

type entry[V any] struct {
	value     V
	hasValue  bool
	expiresAt time.Time
}

// New creates a store using the wall clock.
func New[V any]() *Store[V] {
	return NewWithClock[V](time.Now)
}

// NewWithClock creates a store with a caller-supplied clock.
func NewWithClock[V any](now func() time.Time) *Store[V] {
	return &Store[V]{
		entries: make(map[string]*entry[V]),
		now:     now,
	}
}

// Read returns the cached value for key when fresh, otherwise fetches.
//
// Without force, concurrent callers of the same key coalesce onto one
// in-flight fetch and all receive its result, success or failure.
// With force, the freshness check and coalescing are both bypassed: a
// new fetch is always issued and the entry refreshed on success.
func (s *Store[V]) Read(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc[V], force bool) (V, error) {
	if !force {
		if v, ok := s.Peek(key); ok {
			s.hits.Add(1)
			return v, nil
		}
		s.misses.Add(1)

		v, err, shared := s.group.Do(key, func() (any, error) {
			val, err := fetch(ctx)
			if err != nil {
				return nil, err
			}
			s.set(key, val, ttl)
			return val, nil
		})
		if shared {
			s.coalesced.Add(1)
		}
		if err != nil {
			var zero V
			return zero, err
		}
		return v.(V), nil
	}

	// Forced refresh runs independently of any coalesced fetch of the
	// same key; non-forced readers keep waiting on their own flight.
	val, err := fetch(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	s.set(key, val, ttl)
	return val, nil
}

// Peek returns the cached value if fresh, without ever fetching.
func (s *Store[V]) Peek(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !e.hasValue || !s.now().Before(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Invalidate drops the cached value for key. An in-flight fetch is not
// cancelled; its eventual success repopulates the entry with data that
// is itself authoritative.
func (s *Store[V]) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// InvalidateAll drops every cached value in the store.
func (s *Store[V]) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry[V])
}

// Set writes a value directly, refreshing its TTL. Used for optimistic
// updates after a mutation whose effect on the domain is known.
func (s *Store[V]) Set(key string, value V, ttl time.Duration) {
	s.set(key, value, ttl)
}

// Len reports the number of entries currently held, fresh or stale.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stats reports cumulative hit/miss/coalesced counters.
func (s *Store[V]) Stats() (hits, misses, coalesced int64) {
	return s.hits.Load(), s.misses.Load(), s.coalesced.Load()
}

func (s *Store[V]) set(key string, value V, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &entry[V]{
		value:     value,
		hasValue:  true,
		expiresAt: s.now().Add(ttl),
	}
}
