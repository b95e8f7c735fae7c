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
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// admitScript performs prune+count+record as one atomic unit on the Redis
// server. A client-side pipeline of the same commands is not sufficient:
// two concurrent callers can both observe count < limit and both record,
// overshooting the limit.
var admitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count < limit then
    redis.call('ZADD', key, now, member)
    redis.call('PEXPIRE', key, window * 2)
    return 1
end
return 0
`)

// RedisStore is a CounterStore over a Redis sorted set per key. Scores are
// admission timestamps in milliseconds; membership over the trailing window
// is the current count.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	now       func() time.Time
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix overrides the default "corridor:ratelimit:" key prefix.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		s.keyPrefix = prefix
	}
}

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) RedisStoreOption {
	return func(s *RedisStore) {
		s.now = now
	}
}

// NewRedisStore creates a counter store over an existing Redis client.
func NewRedisStore(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client:    client,
		keyPrefix: "corridor:ratelimit:",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DialRedis connects a new client from a redis:// URL and verifies the
// connection before returning.
func DialRedis(redisURL string, opts ...RedisStoreOption) (*RedisStore, error) {
	parsed, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(parsed)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStore(client, opts...), nil
}

// CheckAndIncrement runs the atomic admit script for a key.
func (s *RedisStore) CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := s.now()
	// Members must be unique per admission: a bare timestamp collides when
	// two admissions land on the same tick, making ZADD overwrite instead
	// of add and the window admit past the limit.
	member := fmt.Sprintf("%d:%s", now.UnixNano(), uuid.NewString())
	res, err := admitScript.Run(ctx, s.client,
		[]string{s.keyPrefix + key},
		now.UnixMilli(), window.Milliseconds(), limit, member,
	).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed for %s: %w", key, err)
	}
	return res == 1, nil
}

// Remaining counts the admissions left in the current window.
func (s *RedisStore) Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	minScore := s.now().Add(-window).UnixMilli()
	count, err := s.client.ZCount(ctx, s.keyPrefix+key,
		fmt.Sprintf("%d", minScore), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("rate limit status failed for %s: %w", key, err)
	}
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Reset drops all recorded admissions for a key.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("rate limit reset failed for %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
