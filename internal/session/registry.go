// Package session keeps server-side sessions that expire after a period of
// inactivity.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry[T any] struct {
	value    T
	lastSeen time.Time
}

// Registry maps session ids to values. Every successful Get refreshes the
// session's idle timer.
type Registry[T any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	items   map[string]*entry[T]
	onEvict func(id string, value T)
	now     func() time.Time
}

// NewRegistry creates a registry whose sessions expire after ttl of
// inactivity. onEvict, when non-nil, runs for every session that leaves the
// registry, whether deleted, expired or closed.
func NewRegistry[T any](ttl time.Duration, onEvict func(id string, value T)) *Registry[T] {
	return &Registry[T]{
		ttl:     ttl,
		items:   make(map[string]*entry[T]),
		onEvict: onEvict,
		now:     time.Now,
	}
}

// Create stores value under a fresh id.
func (r *Registry[T]) Create(value T) string {
	id := uuid.NewString()

	r.mu.Lock()
	r.items[id] = &entry[T]{value: value, lastSeen: r.now()}
	r.mu.Unlock()

	return id
}

func (r *Registry[T]) Get(id string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.items[id]
	if !ok || r.expired(e) {
		var zero T
		return zero, false
	}
	e.lastSeen = r.now()
	return e.value, true
}

// Delete removes the session and reports whether it existed.
func (r *Registry[T]) Delete(id string) bool {
	r.mu.Lock()
	e, ok := r.items[id]
	if ok {
		delete(r.items, id)
	}
	r.mu.Unlock()

	if ok && r.onEvict != nil {
		r.onEvict(id, e.value)
	}
	return ok
}

func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Sweep evicts every expired session and returns how many were removed.
func (r *Registry[T]) Sweep() int {
	r.mu.Lock()
	evicted := make(map[string]T)
	for id, e := range r.items {
		if r.expired(e) {
			evicted[id] = e.value
			delete(r.items, id)
		}
	}
	r.mu.Unlock()

	if r.onEvict != nil {
		for id, v := range evicted {
			r.onEvict(id, v)
		}
	}
	return len(evicted)
}

// Run sweeps every interval until ctx is cancelled.
func (r *Registry[T]) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// CloseAll evicts every session.
func (r *Registry[T]) CloseAll() {
	r.mu.Lock()
	all := r.items
	r.items = make(map[string]*entry[T])
	r.mu.Unlock()

	if r.onEvict != nil {
		for id, e := range all {
			r.onEvict(id, e.value)
		}
	}
}

func (r *Registry[T]) expired(e *entry[T]) bool {
	return r.now().Sub(e.lastSeen) > r.ttl
}
