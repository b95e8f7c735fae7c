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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	now := time.Now()
	store := NewRedisStore(client, WithClock(func() time.Time { return now }))
	return store, &now
}

func TestRedisStoreSlidingWindow(t *testing.T) {
	store, now := newTestRedisStore(t)
	ctx := context.Background()

	limiter, err := NewLimiter(store, Config{
		Limit:          5,
		Window:         time.Second,
		OnStoreFailure: FailClosed,
	})
	if err != nil {
		t.Fatalf("NewLimiter() error = %v", err)
	}

	// First 5 admissions within the window succeed.
	for i := 0; i < 5; i++ {
		if err := limiter.Allow(ctx, "tenant-a"); err != nil {
			t.Fatalf("Allow() #%d error = %v, want nil", i+1, err)
		}
	}

	// The 6th within the same window is rejected.
	if err := limiter.Allow(ctx, "tenant-a"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Allow() #6 error = %v, want ErrRateLimited", err)
	}

	// A different key is not affected.
	if err := limiter.Allow(ctx, "tenant-b"); err != nil {
		t.Fatalf("Allow(tenant-b) error = %v, want nil", err)
	}

	// After the window elapses, admission succeeds again.
	*now = now.Add(1100 * time.Millisecond)
	if err := limiter.Allow(ctx, "tenant-a"); err != nil {
		t.Fatalf("Allow() after window error = %v, want nil", err)
	}
}

// Admissions landing on the same clock tick must each count toward the
// window; a shared sorted-set member would collapse them into one.
func TestRedisStoreSameTickAdmissionsAreDistinct(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	const limit = 3
	for i := 0; i < limit; i++ {
		admitted, err := store.CheckAndIncrement(ctx, "tenant-a", limit, time.Second)
		if err != nil {
			t.Fatalf("CheckAndIncrement() #%d error = %v", i+1, err)
		}
		if !admitted {
			t.Fatalf("CheckAndIncrement() #%d admitted = false, want true", i+1)
		}
	}

	admitted, err := store.CheckAndIncrement(ctx, "tenant-a", limit, time.Second)
	if err != nil {
		t.Fatalf("CheckAndIncrement() #%d error = %v", limit+1, err)
	}
	if admitted {
		t.Errorf("CheckAndIncrement() #%d admitted = true, want false", limit+1)
	}
}

func TestRedisStoreConcurrentAdmissions(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	const limit = 5
	const attempts = 20

	var wg sync.WaitGroup
	results := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			admitted, err := store.CheckAndIncrement(ctx, "tenant-a", limit, time.Second)
			if err != nil {
				t.Errorf("CheckAndIncrement() error = %v", err)
				return
			}
			results <- admitted
		}()
	}
	wg.Wait()
	close(results)

	admitted := 0
	for ok := range results {
		if ok {
			admitted++
		}
	}
	if admitted != limit {
		t.Errorf("admitted = %d, want exactly %d", admitted, limit)
	}
}

func TestRedisStoreRemainingAndReset(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.CheckAndIncrement(ctx, "tenant-a", 5, time.Second); err != nil {
			t.Fatalf("CheckAndIncrement() error = %v", err)
		}
	}

	remaining, err := store.Remaining(ctx, "tenant-a", 5, time.Second)
	if err != nil {
		t.Fatalf("Remaining() error = %v", err)
	}
	if remaining != 2 {
		t.Errorf("Remaining() = %d, want 2", remaining)
	}

	if err := store.Reset(ctx, "tenant-a"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	remaining, err = store.Remaining(ctx, "tenant-a", 5, time.Second)
	if err != nil {
		t.Fatalf("Remaining() after reset error = %v", err)
	}
	if remaining != 5 {
		t.Errorf("Remaining() after reset = %d, want 5", remaining)
	}
}

func TestLocalStoreSlidingWindow(t *testing.T) {
	store := NewLocalStore()
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		admitted, err := store.CheckAndIncrement(ctx, "tenant-a", 3, time.Second)
		if err != nil || !admitted {
			t.Fatalf("CheckAndIncrement() #%d = (%v, %v), want (true, nil)", i+1, admitted, err)
		}
	}

	admitted, err := store.CheckAndIncrement(ctx, "tenant-a", 3, time.Second)
	if err != nil {
		t.Fatalf("CheckAndIncrement() error = %v", err)
	}
	if admitted {
		t.Error("CheckAndIncrement() over limit = true, want false")
	}

	now = now.Add(1100 * time.Millisecond)
	admitted, err = store.CheckAndIncrement(ctx, "tenant-a", 3, time.Second)
	if err != nil || !admitted {
		t.Fatalf("CheckAndIncrement() after window = (%v, %v), want (true, nil)", admitted, err)
	}
}

// failingStore always errors, used to exercise failure policies.
type failingStore struct{}

func (failingStore) CheckAndIncrement(context.Context, string, int, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

func (failingStore) Remaining(context.Context, string, int, time.Duration) (int, error) {
	return 0, errors.New("connection refused")
}

func (failingStore) Reset(context.Context, string) error {
	return errors.New("connection refused")
}

func TestLimiterFailClosed(t *testing.T) {
	limiter, err := NewLimiter(failingStore{}, Config{
		Limit:          5,
		Window:         time.Second,
		OnStoreFailure: FailClosed,
	})
	if err != nil {
		t.Fatalf("NewLimiter() error = %v", err)
	}

	if err := limiter.Allow(context.Background(), "tenant-a"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Allow() error = %v, want ErrStoreUnavailable", err)
	}
}

func TestLimiterFailOpen(t *testing.T) {
	limiter, err := NewLimiter(failingStore{}, Config{
		Limit:          2,
		Window:         time.Second,
		OnStoreFailure: FailOpen,
	})
	if err != nil {
		t.Fatalf("NewLimiter() error = %v", err)
	}

	// Without a fallback, FailOpen admits unconditionally.
	for i := 0; i < 5; i++ {
		if err := limiter.Allow(context.Background(), "tenant-a"); err != nil {
			t.Fatalf("Allow() #%d error = %v, want nil", i+1, err)
		}
	}

	// With a local fallback, the per-node limit still applies.
	limiter.WithLocalFallback(NewLocalStore())
	var rejected bool
	for i := 0; i < 5; i++ {
		if err := limiter.Allow(context.Background(), "tenant-b"); errors.Is(err, ErrRateLimited) {
			rejected = true
		}
	}
	if !rejected {
		t.Error("Allow() with local fallback never rejected, want rejection past limit")
	}
}

func TestNewLimiterValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero limit", Config{Limit: 0, Window: time.Second, OnStoreFailure: FailOpen}},
		{"zero window", Config{Limit: 5, Window: 0, OnStoreFailure: FailOpen}},
		{"missing policy", Config{Limit: 5, Window: time.Second}},
		{"unknown policy", Config{Limit: 5, Window: time.Second, OnStoreFailure: "maybe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLimiter(NewLocalStore(), tt.cfg); err == nil {
				t.Error("NewLimiter() error = nil, want validation error")
			}
		})
	}
}
