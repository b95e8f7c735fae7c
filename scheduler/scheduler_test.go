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

package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newBlockingScheduler(t *testing.T, globalLimit int64) *Scheduler {
	t.Helper()
	s, err := New(Config{
		GlobalLimit:        globalLimit,
		SessionWaitPolicy:  WaitBlock,
		SessionWaitTimeout: 2 * time.Second,
		GlobalWaitTimeout:  2 * time.Second,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestSessionLaneSerializes(t *testing.T) {
	s := newBlockingScheduler(t, 10)
	ctx := context.Background()

	var overlap atomic.Bool
	var running atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket, err := s.Acquire(ctx, "s1")
			if err != nil {
				t.Errorf("Acquire(s1) error = %v", err)
				return
			}
			defer ticket.Release()

			if running.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
		}()
	}
	wg.Wait()

	if overlap.Load() {
		t.Error("two executions for the same session id overlapped in time")
	}
}

func TestDistinctSessionsRunConcurrently(t *testing.T) {
	s := newBlockingScheduler(t, 10)
	ctx := context.Background()

	t1, err := s.Acquire(ctx, "s1")
	if err != nil {
		t.Fatalf("Acquire(s1) error = %v", err)
	}
	defer t1.Release()

	// s2 must not wait for s1's lane.
	done := make(chan struct{})
	go func() {
		t2, err := s.Acquire(ctx, "s2")
		if err != nil {
			t.Errorf("Acquire(s2) error = %v", err)
		} else {
			t2.Release()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Acquire(s2) blocked behind s1's session lane")
	}
}

func TestGlobalLimitBounds(t *testing.T) {
	s, err := New(Config{
		GlobalLimit:        2,
		SessionWaitPolicy:  WaitBlock,
		SessionWaitTimeout: time.Second,
		GlobalWaitTimeout:  50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	t1, err := s.Acquire(ctx, "s1")
	if err != nil {
		t.Fatalf("Acquire(s1) error = %v", err)
	}
	t2, err := s.Acquire(ctx, "s2")
	if err != nil {
		t.Fatalf("Acquire(s2) error = %v", err)
	}
	if got := s.InFlight(); got != 2 {
		t.Errorf("InFlight() = %d, want 2", got)
	}

	// Third distinct session exceeds the global limit and times out.
	if _, err := s.Acquire(ctx, "s3"); !errors.Is(err, ErrTimeout) {
		t.Fatalf("Acquire(s3) error = %v, want ErrTimeout", err)
	}

	// Freeing a slot admits the waiter.
	t1.Release()
	t3, err := s.Acquire(ctx, "s3")
	if err != nil {
		t.Fatalf("Acquire(s3) after release error = %v", err)
	}
	t3.Release()
	t2.Release()

	if got := s.InFlight(); got != 0 {
		t.Errorf("InFlight() after releases = %d, want 0", got)
	}
}

func TestRejectPolicy(t *testing.T) {
	s, err := New(Config{
		GlobalLimit:       10,
		SessionWaitPolicy: WaitReject,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	t1, err := s.Acquire(ctx, "s1")
	if err != nil {
		t.Fatalf("Acquire(s1) error = %v", err)
	}

	if _, err := s.Acquire(ctx, "s1"); !errors.Is(err, ErrBusy) {
		t.Errorf("Acquire(s1) while held error = %v, want ErrBusy", err)
	}

	t1.Release()
	t2, err := s.Acquire(ctx, "s1")
	if err != nil {
		t.Fatalf("Acquire(s1) after release error = %v", err)
	}
	t2.Release()
}

func TestSessionWaitTimeout(t *testing.T) {
	s, err := New(Config{
		GlobalLimit:        10,
		SessionWaitPolicy:  WaitBlock,
		SessionWaitTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	t1, err := s.Acquire(ctx, "s1")
	if err != nil {
		t.Fatalf("Acquire(s1) error = %v", err)
	}
	defer t1.Release()

	if _, err := s.Acquire(ctx, "s1"); !errors.Is(err, ErrTimeout) {
		t.Errorf("Acquire(s1) while held error = %v, want ErrTimeout", err)
	}
}

func TestAcquireCancellation(t *testing.T) {
	s := newBlockingScheduler(t, 10)

	t1, err := s.Acquire(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Acquire(s1) error = %v", err)
	}
	defer t1.Release()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := s.Acquire(ctx, "s1")
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Acquire() after cancel error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled Acquire() did not return")
	}
}

func TestReleaseIdempotent(t *testing.T) {
	s := newBlockingScheduler(t, 1)
	ctx := context.Background()

	ticket, err := s.Acquire(ctx, "s1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	ticket.Release()
	ticket.Release() // must not free a second slot or panic

	// The single global slot is free exactly once.
	t2, err := s.Acquire(ctx, "s2")
	if err != nil {
		t.Fatalf("Acquire(s2) error = %v", err)
	}
	defer t2.Release()
	if got := s.InFlight(); got != 1 {
		t.Errorf("InFlight() = %d, want 1", got)
	}
}

func TestLaneMapDoesNotLeak(t *testing.T) {
	s := newBlockingScheduler(t, 10)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		ticket, err := s.Acquire(ctx, "s1")
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		ticket.Release()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lanes) != 0 {
		t.Errorf("lanes map has %d entries after all releases, want 0", len(s.lanes))
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero global limit", Config{SessionWaitPolicy: WaitBlock}},
		{"missing wait policy", Config{GlobalLimit: 5}},
		{"unknown wait policy", Config{GlobalLimit: 5, SessionWaitPolicy: "spin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("New() error = nil, want validation error")
			}
		})
	}
}
