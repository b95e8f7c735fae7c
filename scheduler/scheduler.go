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

// Package scheduler gates mission execution behind two independently
// acquired lanes: a per-session exclusive lane that serializes all
// executions for one session id, and a bounded global lane that caps
// concurrent executions across all sessions.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrBusy is returned when the session lane is held and the wait
	// policy is to reject rather than queue.
	ErrBusy = errors.New("session is busy")

	// ErrTimeout is returned when a lane could not be acquired within
	// the configured wait timeout.
	ErrTimeout = errors.New("scheduler acquisition timed out")
)

// WaitPolicy decides how a second admission request for a busy session id
// behaves.
type WaitPolicy string

const (
	// WaitBlock queues the caller until the session lane frees or the
	// session wait timeout elapses.
	WaitBlock WaitPolicy = "block"
	// WaitReject fails immediately with ErrBusy.
	WaitReject WaitPolicy = "reject"
)

// IsValid returns true for a known wait policy.
func (p WaitPolicy) IsValid() bool {
	return p == WaitBlock || p == WaitReject
}

// Config configures a Scheduler.
type Config struct {
	// GlobalLimit caps concurrent executions across all sessions.
	GlobalLimit int64
	// SessionWaitPolicy selects blocking or rejection for busy sessions.
	SessionWaitPolicy WaitPolicy
	// SessionWaitTimeout bounds the queue time under WaitBlock.
	SessionWaitTimeout time.Duration
	// GlobalWaitTimeout bounds the wait for a free global slot.
	GlobalWaitTimeout time.Duration
}

// sessionLane is a one-slot semaphore per session id, refcounted so the
// map entry can be dropped once nobody holds or waits on it. A weighted
// semaphore rather than a mutex so waiters queue in arrival order and
// honor context cancellation.
type sessionLane struct {
	sem  *semaphore.Weighted
	refs int
}

// Scheduler composes the session lane and the global lane. The two lanes
// have independent timeout and release semantics.
type Scheduler struct {
	cfg      Config
	global   *semaphore.Weighted
	inflight atomic.Int64

	mu    sync.Mutex
	lanes map[string]*sessionLane
}

// New creates a scheduler. GlobalLimit must be positive and the wait
// policy must be set explicitly.
func New(cfg Config) (*Scheduler, error) {
	if cfg.GlobalLimit <= 0 {
		return nil, fmt.Errorf("scheduler: global limit must be positive, got %d", cfg.GlobalLimit)
	}
	if !cfg.SessionWaitPolicy.IsValid() {
		return nil, fmt.Errorf("scheduler: session wait policy must be %q or %q", WaitBlock, WaitReject)
	}
	return &Scheduler{
		cfg:    cfg,
		global: semaphore.NewWeighted(cfg.GlobalLimit),
		lanes:  make(map[string]*sessionLane),
	}, nil
}

// Ticket represents held session and global lanes. Release is safe to
// call more than once and from any exit path.
type Ticket struct {
	SessionID  string
	AcquiredAt time.Time

	release func()
	once    sync.Once
}

// Release frees both lanes. Idempotent.
func (t *Ticket) Release() {
	t.once.Do(t.release)
}

// Acquire admits one execution for a session id. It takes the session
// lane first, then a global slot, and undoes the session lane if the
// global wait fails so a stuck global pool cannot leak session locks.
func (s *Scheduler) Acquire(ctx context.Context, sessionID string) (*Ticket, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("scheduler: session id is required")
	}

	lane := s.refLane(sessionID)
	if err := s.acquireSession(ctx, lane); err != nil {
		s.unrefLane(sessionID)
		return nil, err
	}

	if err := s.acquireGlobal(ctx); err != nil {
		lane.sem.Release(1)
		s.unrefLane(sessionID)
		return nil, err
	}

	s.inflight.Add(1)
	return &Ticket{
		SessionID:  sessionID,
		AcquiredAt: time.Now(),
		release: func() {
			s.inflight.Add(-1)
			s.global.Release(1)
			lane.sem.Release(1)
			s.unrefLane(sessionID)
		},
	}, nil
}

// InFlight reports how many global slots are currently held.
func (s *Scheduler) InFlight() int64 {
	return s.inflight.Load()
}

func (s *Scheduler) acquireSession(ctx context.Context, lane *sessionLane) error {
	switch s.cfg.SessionWaitPolicy {
	case WaitReject:
		if !lane.sem.TryAcquire(1) {
			return ErrBusy
		}
		return nil
	default:
		waitCtx := ctx
		if s.cfg.SessionWaitTimeout > 0 {
			var cancel context.CancelFunc
			waitCtx, cancel = context.WithTimeout(ctx, s.cfg.SessionWaitTimeout)
			defer cancel()
		}
		if err := lane.sem.Acquire(waitCtx, 1); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: session lane", ErrTimeout)
		}
		return nil
	}
}

func (s *Scheduler) acquireGlobal(ctx context.Context) error {
	waitCtx := ctx
	if s.cfg.GlobalWaitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.cfg.GlobalWaitTimeout)
		defer cancel()
	}
	if err := s.global.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: global lane", ErrTimeout)
	}
	return nil
}

func (s *Scheduler) refLane(sessionID string) *sessionLane {
	s.mu.Lock()
	defer s.mu.Unlock()
	lane, ok := s.lanes[sessionID]
	if !ok {
		lane = &sessionLane{sem: semaphore.NewWeighted(1)}
		s.lanes[sessionID] = lane
	}
	lane.refs++
	return lane
}

func (s *Scheduler) unrefLane(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lane, ok := s.lanes[sessionID]
	if !ok {
		return
	}
	lane.refs--
	if lane.refs <= 0 {
		delete(s.lanes, sessionID)
	}
}
