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

// Package idempotency guards side-effecting endpoints so a retried request
// with the same Idempotency-Key produces its side effect at most once. The
// first call executes the handler and stores the response; identical
// repeats replay the stored response verbatim; a repeat with a different
// payload under the same key is rejected as a conflict.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConflict is returned when a key is reused with a different
	// request payload.
	ErrConflict = errors.New("idempotency key reused with different payload")

	// ErrInFlight is returned when an identical request under the same
	// key has not finished yet.
	ErrInFlight = errors.New("request with this idempotency key is still in flight")
)

// DefaultRetention is how long records are kept when no retention is
// configured. Keys older than this may be admitted as fresh again.
const DefaultRetention = 24 * time.Hour

// Outcome classifies a key lookup.
type Outcome int

const (
	// Fresh means the key was unseen and a pending record was created.
	Fresh Outcome = iota
	// Replayed means the key was seen before with an identical payload.
	Replayed
	// Conflict means the key was seen before with a different payload.
	Conflict
)

// Record is the stored result for one (endpoint, key) pair. Status zero
// marks a pending record whose handler has not completed.
type Record struct {
	PayloadHash string          `json:"payload_hash"`
	Status      int             `json:"status"`
	Body        json.RawMessage `json:"body,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// RecordStore is the shared record store. GetOrCreate must be atomic:
// two concurrent calls for the same unseen key must yield exactly one
// Fresh outcome.
type RecordStore interface {
	// GetOrCreate claims the key with the payload hash if unseen and
	// returns Fresh. For a seen key it compares hashes and returns
	// Replayed (with the record) or Conflict.
	GetOrCreate(ctx context.Context, endpoint, key, payloadHash string) (Outcome, *Record, error)

	// Complete fills in the response for a pending record.
	Complete(ctx context.Context, endpoint, key string, status int, body []byte) error

	// Delete drops a pending record so a failed handler can be retried.
	Delete(ctx context.Context, endpoint, key string) error
}

// HashPayload returns the canonical hex SHA-256 of a request payload.
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Result is what Execute hands back to the transport layer.
type Result struct {
	Status   int
	Body     []byte
	Replayed bool
}

// Handler produces the response for a first-time request.
type Handler func(ctx context.Context) (status int, body []byte, err error)

// Guard wraps handlers with the at-most-once protocol.
type Guard struct {
	store RecordStore
}

// NewGuard creates a guard over a shared record store.
func NewGuard(store RecordStore) *Guard {
	return &Guard{store: store}
}

// Execute runs the handler at most once per (endpoint, key, payload).
// An empty key disables protection and always runs the handler.
func (g *Guard) Execute(ctx context.Context, endpoint, key string, payload []byte, handler Handler) (*Result, error) {
	if key == "" {
		status, body, err := handler(ctx)
		if err != nil {
			return nil, err
		}
		return &Result{Status: status, Body: body}, nil
	}

	hash := HashPayload(payload)
	outcome, record, err := g.store.GetOrCreate(ctx, endpoint, key, hash)
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup failed: %w", err)
	}

	switch outcome {
	case Replayed:
		if record.Status == 0 {
			return nil, ErrInFlight
		}
		return &Result{Status: record.Status, Body: record.Body, Replayed: true}, nil
	case Conflict:
		return nil, ErrConflict
	}

	status, body, err := handler(ctx)
	if err != nil {
		// Release the claim so the caller can retry the same key.
		if derr := g.store.Delete(ctx, endpoint, key); derr != nil {
			return nil, fmt.Errorf("handler failed (%w); record cleanup also failed: %v", err, derr)
		}
		return nil, err
	}

	if err := g.store.Complete(ctx, endpoint, key, status, body); err != nil {
		return nil, fmt.Errorf("failed to store idempotency record: %w", err)
	}
	return &Result{Status: status, Body: body}, nil
}
