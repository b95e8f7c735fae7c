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
	"fmt"
	"sync"
	"time"
)

// MemoryStore is a single-process RecordStore for tests and single-node
// deployments. Expired records are pruned lazily on access.
type MemoryStore struct {
	mu        sync.Mutex
	records   map[string]*Record
	retention time.Duration
	now       func() time.Time
}

// NewMemoryStore creates an in-process record store. A non-positive
// retention falls back to DefaultRetention.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryStore{
		records:   make(map[string]*Record),
		retention: retention,
		now:       time.Now,
	}
}

func recordKey(endpoint, key string) string {
	return fmt.Sprintf("%s::%s", endpoint, key)
}

// GetOrCreate claims an unseen key or classifies a seen one.
func (s *MemoryStore) GetOrCreate(_ context.Context, endpoint, key, payloadHash string) (Outcome, *Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	composite := recordKey(endpoint, key)
	existing, ok := s.records[composite]
	if ok && now.Sub(existing.CreatedAt) > s.retention {
		delete(s.records, composite)
		ok = false
	}
	if !ok {
		s.records[composite] = &Record{PayloadHash: payloadHash, CreatedAt: now}
		return Fresh, nil, nil
	}
	if existing.PayloadHash != payloadHash {
		return Conflict, nil, nil
	}
	copied := *existing
	return Replayed, &copied, nil
}

// Complete fills in the response for a pending record.
func (s *MemoryStore) Complete(_ context.Context, endpoint, key string, status int, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[recordKey(endpoint, key)]
	if !ok {
		return fmt.Errorf("no pending record for %s/%s", endpoint, key)
	}
	record.Status = status
	record.Body = append([]byte(nil), body...)
	return nil
}

// Delete drops a record.
func (s *MemoryStore) Delete(_ context.Context, endpoint, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, recordKey(endpoint, key))
	return nil
}
