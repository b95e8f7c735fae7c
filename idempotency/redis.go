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

package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore is a RecordStore shared across gateway nodes. The unseen-key
// claim uses SET NX so exactly one of two racing calls observes Fresh.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	retention time.Duration
}

// NewRedisStore creates a record store over an existing Redis client.
// A non-positive retention falls back to DefaultRetention.
func NewRedisStore(client *redis.Client, retention time.Duration) *RedisStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisStore{
		client:    client,
		keyPrefix: "corridor:idem:",
		retention: retention,
	}
}

func (s *RedisStore) composite(endpoint, key string) string {
	return fmt.Sprintf("%s%s::%s", s.keyPrefix, endpoint, key)
}

// GetOrCreate claims an unseen key with SET NX, otherwise classifies the
// stored record against the payload hash.
func (s *RedisStore) GetOrCreate(ctx context.Context, endpoint, key, payloadHash string) (Outcome, *Record, error) {
	pending := Record{PayloadHash: payloadHash, CreatedAt: time.Now().UTC()}
	raw, err := json.Marshal(pending)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to encode pending record: %w", err)
	}

	composite := s.composite(endpoint, key)
	claimed, err := s.client.SetNX(ctx, composite, raw, s.retention).Result()
	if err != nil {
		return 0, nil, fmt.Errorf("idempotency claim failed: %w", err)
	}
	if claimed {
		return Fresh, nil, nil
	}

	stored, err := s.client.Get(ctx, composite).Bytes()
	if err == redis.Nil {
		// Record expired between SETNX and GET; treat as a retryable miss.
		return 0, nil, fmt.Errorf("idempotency record vanished for %s/%s", endpoint, key)
	}
	if err != nil {
		return 0, nil, fmt.Errorf("idempotency lookup failed: %w", err)
	}

	var record Record
	if err := json.Unmarshal(stored, &record); err != nil {
		return 0, nil, fmt.Errorf("failed to decode idempotency record: %w", err)
	}
	if record.PayloadHash != payloadHash {
		return Conflict, nil, nil
	}
	return Replayed, &record, nil
}

// Complete rewrites the record with the response, preserving retention
// from the original claim time.
func (s *RedisStore) Complete(ctx context.Context, endpoint, key string, status int, body []byte) error {
	composite := s.composite(endpoint, key)
	stored, err := s.client.Get(ctx, composite).Bytes()
	if err != nil {
		return fmt.Errorf("no pending record for %s/%s: %w", endpoint, key, err)
	}

	var record Record
	if err := json.Unmarshal(stored, &record); err != nil {
		return fmt.Errorf("failed to decode pending record: %w", err)
	}
	record.Status = status
	record.Body = append([]byte(nil), body...)

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode idempotency record: %w", err)
	}
	if err := s.client.Set(ctx, composite, raw, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("failed to store idempotency record: %w", err)
	}
	return nil
}

// Delete drops a record.
func (s *RedisStore) Delete(ctx context.Context, endpoint, key string) error {
	if err := s.client.Del(ctx, s.composite(endpoint, key)).Err(); err != nil {
		return fmt.Errorf("failed to delete idempotency record: %w", err)
	}
	return nil
}
