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

// Package ratelimit implements the distributed sliding-window admission
// gate. Admission decisions are taken against a shared counter store so a
// per-key limit holds across all gateway nodes, not per process.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRateLimited is returned when an admission check rejects the key.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrStoreUnavailable wraps counter-store failures so the limiter can
	// apply its configured failure policy.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
)

// CounterStore is the shared atomic counter consumed by the limiter. The
// check-and-record step must be atomic: a non-atomic read-then-write under
// concurrent callers permits overshoot past the limit.
type CounterStore interface {
	// CheckAndIncrement prunes entries older than now-window, counts the
	// remainder, and records the new entry only if count < limit. It
	// returns true when the request is admitted.
	CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	// Remaining reports how many admissions are left in the current
	// window for a key.
	Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)

	// Reset drops all recorded admissions for a key (admin operation).
	Reset(ctx context.Context, key string) error
}

// FailurePolicy decides what happens when the shared store is unreachable.
// The choice is a production-safety decision and must be explicit in
// configuration; the limiter has no silent default.
type FailurePolicy string

const (
	// FailOpen admits requests when the store is down, optionally
	// through a node-local fallback limiter.
	FailOpen FailurePolicy = "fail_open"
	// FailClosed rejects all requests when the store is down.
	FailClosed FailurePolicy = "fail_closed"
)

// IsValid returns true for a known failure policy.
func (p FailurePolicy) IsValid() bool {
	return p == FailOpen || p == FailClosed
}

// Config configures a Limiter.
type Config struct {
	// Limit is the maximum number of admissions per key per window.
	Limit int
	// Window is the trailing interval admissions are counted over.
	Window time.Duration
	// OnStoreFailure selects fail-open or fail-closed behavior.
	OnStoreFailure FailurePolicy
}

// Limiter is the admission gate. It delegates the atomic decision to the
// shared store and applies the configured failure policy when the store
// errors.
type Limiter struct {
	store    CounterStore
	fallback CounterStore // node-local, used by FailOpen; may be nil
	cfg      Config
}

// NewLimiter creates a limiter over a shared counter store. The failure
// policy must be set explicitly.
func NewLimiter(store CounterStore, cfg Config) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("ratelimit: counter store is required")
	}
	if cfg.Limit <= 0 {
		return nil, fmt.Errorf("ratelimit: limit must be positive, got %d", cfg.Limit)
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("ratelimit: window must be positive, got %s", cfg.Window)
	}
	if !cfg.OnStoreFailure.IsValid() {
		return nil, fmt.Errorf("ratelimit: failure policy must be %q or %q", FailOpen, FailClosed)
	}
	return &Limiter{store: store, cfg: cfg}, nil
}

// WithLocalFallback installs a node-local limiter consulted when the
// shared store is down and the policy is FailOpen. Without a fallback,
// FailOpen admits unconditionally.
func (l *Limiter) WithLocalFallback(fallback CounterStore) *Limiter {
	l.fallback = fallback
	return l
}

// Allow performs one admission check for a key. It returns nil on
// admission, ErrRateLimited on rejection, and surfaces store failures
// according to the configured policy.
func (l *Limiter) Allow(ctx context.Context, key string) error {
	admitted, err := l.store.CheckAndIncrement(ctx, key, l.cfg.Limit, l.cfg.Window)
	if err != nil {
		switch l.cfg.OnStoreFailure {
		case FailClosed:
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		case FailOpen:
			if l.fallback == nil {
				return nil
			}
			admitted, ferr := l.fallback.CheckAndIncrement(ctx, key, l.cfg.Limit, l.cfg.Window)
			if ferr != nil {
				return nil
			}
			if !admitted {
				return fmt.Errorf("%w: key %s (local fallback)", ErrRateLimited, key)
			}
			return nil
		}
	}
	if !admitted {
		return fmt.Errorf("%w: key %s", ErrRateLimited, key)
	}
	return nil
}

// Remaining reports the admissions left for a key in the current window.
func (l *Limiter) Remaining(ctx context.Context, key string) (int, error) {
	return l.store.Remaining(ctx, key, l.cfg.Limit, l.cfg.Window)
}

// Reset clears all recorded admissions for a key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.store.Reset(ctx, key)
}
