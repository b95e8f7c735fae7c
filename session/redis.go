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

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore persists sessions as JSON snapshots so any gateway node can
// resume a session another node started. Terminal sessions keep a bounded
// TTL; running sessions never expire.
type RedisStore struct {
	client      *redis.Client
	keyPrefix   string
	terminalTTL time.Duration
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithTerminalTTL bounds how long completed and failed sessions are kept.
// Zero keeps them forever.
func WithTerminalTTL(ttl time.Duration) RedisStoreOption {
	return func(s *RedisStore) {
		s.terminalTTL = ttl
	}
}

// NewRedisStore creates a session store over an existing Redis client.
func NewRedisStore(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client:    client,
		keyPrefix: "corridor:session:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(id string) string {
	return s.keyPrefix + id
}

// runningSet is the index of non-terminal session ids.
func (s *RedisStore) runningSet() string {
	return s.keyPrefix + "running"
}

// Load reads and decodes a session snapshot.
func (s *RedisStore) Load(ctx context.Context, id string) (*Session, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &sess, nil
}

// Save writes the whole snapshot and maintains the running-id index in one
// transaction, so a crash between the two cannot desynchronize them.
func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", sess.ID, err)
	}

	pipe := s.client.TxPipeline()
	if sess.Status.Terminal() {
		pipe.Set(ctx, s.key(sess.ID), raw, s.terminalTTL)
		pipe.SRem(ctx, s.runningSet(), sess.ID)
	} else {
		pipe.Set(ctx, s.key(sess.ID), raw, 0)
		pipe.SAdd(ctx, s.runningSet(), sess.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}

// Delete removes a session and its index entry.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(id))
	pipe.SRem(ctx, s.runningSet(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// ListRunning returns ids of non-terminal sessions.
func (s *RedisStore) ListRunning(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.runningSet()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list running sessions: %w", err)
	}
	return ids, nil
}
