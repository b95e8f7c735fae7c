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

// Package session holds the persisted state of a mission: its status, its
// append-only history of reasoning steps, and its accumulated usage. The
// controller owns a session exclusively while it holds the session lane;
// between runs the store owns it.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a session id has no persisted state.
var ErrNotFound = errors.New("session not found")

// Status is the lifecycle state of a session.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSuspended Status = "suspended"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the session can never run again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Role classifies a history entry.
type Role string

const (
	RoleThought     Role = "thought"
	RoleAction      Role = "action"
	RoleObservation Role = "observation"
	RoleFinalAnswer Role = "final_answer"
)

// HistoryEntry is one step in a session's history. Entries are immutable
// once appended; insertion order is significant.
type HistoryEntry struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Usage accumulates reported token consumption across iterations.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add folds one iteration's consumption into the running total.
func (u *Usage) Add(prompt, completion int) {
	u.PromptTokens += prompt
	u.CompletionTokens += completion
	u.TotalTokens += prompt + completion
}

// Session is the whole persisted snapshot for one mission. The controller
// persists it after every iteration, so a reload continues from exactly
// the last completed step.
type Session struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	Goal        string         `json:"goal"`
	Status      Status         `json:"status"`
	FailureCode string         `json:"failure_code,omitempty"`
	History     []HistoryEntry `json:"history"`
	Iterations  int            `json:"iterations"`

	// ToolFailureStreak counts consecutive failed tool executions; it
	// survives persistence so a resumed session keeps its circuit-breaker
	// progress.
	ToolFailureStreak int `json:"tool_failure_streak,omitempty"`

	Usage     Usage     `json:"usage"`
	Result    string    `json:"result,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a fresh running session.
func New(id, tenantID, goal string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		TenantID:  tenantID,
		Goal:      goal,
		Status:    StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a history entry stamped now.
func (s *Session) Append(role Role, content string) {
	s.History = append(s.History, HistoryEntry{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

// Clone returns a deep copy so callers never share history backing arrays
// with a store.
func (s *Session) Clone() *Session {
	copied := *s
	copied.History = append([]HistoryEntry(nil), s.History...)
	return &copied
}

// Store is the persistence capability consumed by the controller. Save
// writes the whole snapshot; there are no partial updates.
type Store interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, sess *Session) error
	Delete(ctx context.Context, id string) error
	// ListRunning returns ids of sessions in a non-terminal status,
	// used for operational introspection and crash recovery sweeps.
	ListRunning(ctx context.Context) ([]string, error)
}
