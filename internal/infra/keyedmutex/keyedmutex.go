// Package keyedmutex provides per-key mutual exclusion. The store uses it to
// serialize ledger transactions for the same product while transactions for
// different products proceed concurrently.
package keyedmutex

import (
	"context"
	"sync"
)

type slot struct {
	ch   chan struct{}
	refs int
}

// Mutex is a set of independently lockable keys. The zero value is not
// usable; construct with New.
type Mutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

// New returns an empty keyed mutex.
func New() *Mutex {
	return &Mutex{slots: map[string]*slot{}}
}

// Lock acquires the lock for key, blocking until it is free or ctx is done.
// On a ctx error the lock is not held.
func (m *Mutex) Lock(ctx context.Context, key string) error {
	m.mu.Lock()
	s, ok := m.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		m.slots[key] = s
	}
	s.refs++
	m.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		m.release(key, s)
		return ctx.Err()
	}
}

// Unlock releases the lock for key. It panics if the key is not held.
func (m *Mutex) Unlock(key string) {
	m.mu.Lock()
	s, ok := m.slots[key]
	m.mu.Unlock()
	if !ok {
		panic("keyedmutex: unlock of unheld key " + key)
	}
	<-s.ch
	m.release(key, s)
}

// release drops one reference and frees the slot when nobody waits on it.
func (m *Mutex) release(key string, s *slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(m.slots, key)
	}
}

// Len reports the number of keys with holders or waiters.
func (m *Mutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}
