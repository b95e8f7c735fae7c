// Copyright 2026 Corridor
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// LocalStore is an in-process CounterStore. It only sees traffic through
// this node, so it is a degraded-mode fallback for FailOpen, not a
// replacement for the shared store.
type LocalStore struct {
	mu      sync.Mutex
	entries map[string][]time.Time
	now     func() time.Time
}

// NewLocalStore creates an in-process sliding-window store.
func NewLocalStore() *LocalStore {
	return &LocalStore{
		entries: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// CheckAndIncrement prunes, counts and conditionally records under one lock.
func (s *LocalStore) CheckAndIncrement(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	live := s.prune(key, now, window)
	if len(live) >= limit {
		s.entries[key] = live
		return false, nil
	}
	s.entries[key] = append(live, now)
	return true, nil
}

// Remaining reports the admissions left in the current window.
func (s *LocalStore) Remaining(_ context.Context, key string, limit int, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.prune(key, s.now(), window)
	s.entries[key] = live
	remaining := limit - len(live)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Reset drops all recorded admissions for a key.
func (s *LocalStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// prune returns the entries still inside the window. Caller holds the lock.
func (s *LocalStore) prune(key string, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	live := s.entries[key][:0]
	for _, ts := range s.entries[key] {
		if ts.After(cutoff) {
			live = append(live, ts)
		}
	}
	return live
}
