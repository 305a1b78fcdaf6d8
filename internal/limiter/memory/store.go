package memory

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	count   int64
	resetAt time.Time
}

// Store is an in-process fixed-window counter for single-replica runs and
// tests.
type Store struct {
	mu        sync.Mutex
	entries   map[string]*entry
	nextSweep time.Time
}

func New() *Store {
	return &Store{entries: make(map[string]*entry)}
}

func (s *Store) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep(now, window)
	e, ok := s.entries[key]
	if !ok || now.After(e.resetAt) {
		e = &entry{resetAt: now.Add(window)}
		s.entries[key] = e
	}
	e.count++
	return e.count, nil
}

// sweep drops entries whose window has passed, at most once per window, so
// one-off keys (distinct client IPs) do not accumulate forever. Caller holds
// the lock.
func (s *Store) sweep(now time.Time, window time.Duration) {
	if now.Before(s.nextSweep) {
		return
	}
	s.nextSweep = now.Add(window)
	for key, e := range s.entries {
		if now.After(e.resetAt) {
			delete(s.entries, key)
		}
	}
}
