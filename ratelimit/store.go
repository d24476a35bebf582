// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Entry is the request count of one client within its current window.
type Entry struct {
	Count   int
	ResetAt time.Time
}

// Expired reports whether the entry's window has elapsed at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ResetAt)
}

// Store holds rate limit entries keyed by client identifier. Implementations
// must be safe for concurrent use.
type Store interface {
	// Incr atomically counts one request for key. When there is no entry or
	// its window has elapsed at now, a new window of length window starts
	// with a count of one. It returns the entry after the update.
	Incr(ctx context.Context, key string, now time.Time, window time.Duration) (Entry, error)

	// Sweep deletes entries whose window has elapsed at now and returns how
	// many were deleted. It never modifies live entries.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// MemoryStore is a process-local Store. It is only correct for a single
// process; instances behind a load balancer each keep their own counts.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Incr(_ context.Context, key string, now time.Time, window time.Duration) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || e.Expired(now) {
		e = Entry{ResetAt: now.Add(window)}
	}
	e.Count++
	s.entries[key] = e
	return e, nil
}

// Get returns the entry for key. The boolean is false when there is none.
func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e, ok, nil
}

// Set creates or replaces the entry for key.
func (s *MemoryStore) Set(_ context.Context, key string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = e
	return nil
}

func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for k, e := range s.entries {
		if e.Expired(now) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of entries currently held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
