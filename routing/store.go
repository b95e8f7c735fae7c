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

package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// snapshot is the immutable unit swapped on publish. Readers only ever see
// a complete snapshot, never a partially updated rule set.
type snapshot struct {
	live    *PolicyVersion
	history []PolicyVersion
}

// Store holds the live routing policy and its version history. Publishing
// is single-writer; resolution reads the live snapshot through an atomic
// pointer and takes no locks.
type Store struct {
	current atomic.Pointer[snapshot]

	mu   sync.Mutex // serializes Publish/Rollback
	path string     // optional JSON persistence
	repo Repository // optional external history repository
}

// StoreOption configures a Store during creation.
type StoreOption func(*Store)

// WithPersistencePath enables JSON snapshot persistence so a restarted
// node reloads the live policy and history.
func WithPersistencePath(path string) StoreOption {
	return func(s *Store) {
		s.path = path
	}
}

// WithHistoryRepository mirrors published versions into an external
// repository (e.g. Postgres). Repository failures do not fail the publish;
// the in-memory swap is the source of truth for the running node.
func WithHistoryRepository(repo Repository) StoreOption {
	return func(s *Store) {
		s.repo = repo
	}
}

// NewStore creates a store with no live policy.
func NewStore(opts ...StoreOption) (*Store, error) {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(&snapshot{})

	if s.path != "" {
		if err := s.loadFromFile(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Live returns the live policy version, or nil if none is published.
func (s *Store) Live() *PolicyVersion {
	return s.current.Load().live
}

// Resolve matches attributes against the live policy. With no live policy
// every resolution is an explicit no-match.
func (s *Store) Resolve(attrs Attributes) Decision {
	live := s.current.Load().live
	if live == nil {
		return Decision{Matched: false}
	}
	return Resolve(attrs, live.Rules)
}

// ListVersions returns the ordered version history, oldest first.
func (s *Store) ListVersions() []PolicyVersion {
	history := s.current.Load().history
	out := make([]PolicyVersion, len(history))
	copy(out, history)
	return out
}

// Publish validates a new policy version and atomically makes it live.
// Validation failures leave the live policy untouched.
func (s *Store) Publish(ctx context.Context, version PolicyVersion) error {
	if err := validateRules(version.Rules); err != nil {
		return err
	}
	newV, err := parseVersion(version.Version)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRoutingInvalid, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.current.Load()
	if snap.live != nil {
		liveV, err := parseVersion(snap.live.Version)
		if err == nil && compareVersions(newV, liveV) <= 0 {
			return fmt.Errorf("%w: %q does not increase over live %q",
				ErrPolicyVersionConflict, version.Version, snap.live.Version)
		}
	}
	for _, past := range snap.history {
		if past.Version == version.Version {
			return fmt.Errorf("%w: %q already published", ErrPolicyVersionConflict, version.Version)
		}
	}

	if version.PublishedAt.IsZero() {
		version.PublishedAt = time.Now().UTC()
	}

	next := &snapshot{
		live:    &version,
		history: append(append([]PolicyVersion{}, snap.history...), version),
	}
	s.current.Store(next)

	if err := s.persist(next); err != nil {
		log.Printf("routing: failed to persist policy snapshot: %v", err)
	}
	if s.repo != nil {
		if err := s.repo.SaveVersion(ctx, &version); err != nil {
			log.Printf("routing: failed to mirror policy version %s: %v", version.Version, err)
		}
	}
	return nil
}

// Rollback re-publishes the rules of a historical version under a new,
// strictly increasing version identifier. History stays immutable; the
// rollback itself becomes a new entry.
func (s *Store) Rollback(ctx context.Context, fromVersion, newVersion string) error {
	var found *PolicyVersion
	for _, past := range s.ListVersions() {
		if past.Version == fromVersion {
			p := past
			found = &p
			break
		}
	}
	if found == nil {
		return fmt.Errorf("%w: %s", ErrVersionNotFound, fromVersion)
	}

	return s.Publish(ctx, PolicyVersion{
		Version: newVersion,
		Name:    fmt.Sprintf("rollback of %s", fromVersion),
		Rules:   found.Rules,
	})
}

func validateRules(rules []Rule) error {
	seen := make(map[string]bool, len(rules))
	for i, rule := range rules {
		if rule.ID == "" {
			return fmt.Errorf("%w: rule %d has empty id", ErrRoutingInvalid, i)
		}
		if seen[rule.ID] {
			return fmt.Errorf("%w: duplicate rule id %q", ErrRoutingInvalid, rule.ID)
		}
		seen[rule.ID] = true
		if !rule.Scope.IsValid() {
			return fmt.Errorf("%w: rule %q has invalid scope %q", ErrRoutingInvalid, rule.ID, rule.Scope)
		}
		if rule.Match == "" {
			return fmt.Errorf("%w: rule %q has empty match key", ErrRoutingInvalid, rule.ID)
		}
		if rule.Priority < 0 {
			return fmt.Errorf("%w: rule %q has negative priority", ErrRoutingInvalid, rule.ID)
		}
		switch rule.Target.Kind {
		case TargetFastAction:
			if rule.Target.Tool == "" {
				return fmt.Errorf("%w: rule %q fast_action target requires a tool", ErrRoutingInvalid, rule.ID)
			}
		case TargetComplexMission:
			// goal hint may be empty
		default:
			return fmt.Errorf("%w: rule %q has invalid target kind %q", ErrRoutingInvalid, rule.ID, rule.Target.Kind)
		}
	}
	return nil
}

// parseVersion parses a dotted integer version ("1.0.3").
func parseVersion(v string) ([]int, error) {
	if v == "" {
		return nil, fmt.Errorf("empty version")
	}
	parts := strings.Split(v, ".")
	nums := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("malformed version %q", v)
		}
		nums = append(nums, n)
	}
	return nums, nil
}

func compareVersions(a, b []int) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		av, bv := 0, 0
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

// persistedState is the on-disk form of the store.
type persistedState struct {
	Live    *PolicyVersion  `json:"live,omitempty"`
	History []PolicyVersion `json:"history"`
}

func (s *Store) persist(snap *snapshot) error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(persistedState{Live: snap.live, History: snap.history}, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) loadFromFile() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read routing policy snapshot: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}
	var state persistedState
	if err := json.Unmarshal(raw, &state); err != nil {
		return fmt.Errorf("parse routing policy snapshot: %w", err)
	}
	s.current.Store(&snapshot{live: state.Live, history: state.History})
	return nil
}
