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

// Package tools defines the tool-execution capability consumed by the
// gateway (FastAction dispatch, classifier capability checks) and the
// controller loop. Sandboxed execution internals live outside this module.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned when a tool name is not registered.
var ErrNotFound = errors.New("tool not found")

// Definition describes one tool in the capability schema.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Output is the observation produced by one tool execution.
type Output struct {
	Success bool   `json:"success"`
	Content string `json:"content"`
}

// Handler executes one tool call.
type Handler func(ctx context.Context, args json.RawMessage) (*Output, error)

// Registry is the tool-execution capability.
// Implementations must be safe for concurrent use.
type Registry interface {
	// List returns the capability schema of all registered tools.
	List(ctx context.Context) ([]Definition, error)

	// Execute runs the named tool and returns its observation.
	// Unknown names return ErrNotFound.
	Execute(ctx context.Context, name string, args json.RawMessage) (*Output, error)
}

// StaticRegistry is an in-process Registry backed by a map. It serves tests
// and single-binary deployments; production systems supply an adapter to
// their sandboxed executor.
type StaticRegistry struct {
	mu       sync.RWMutex
	defs     map[string]Definition
	handlers map[string]Handler
}

// NewStaticRegistry creates an empty registry.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		defs:     make(map[string]Definition),
		handlers: make(map[string]Handler),
	}
}

// Register adds or replaces a tool.
func (r *StaticRegistry) Register(def Definition, handler Handler) error {
	if def.Name == "" {
		return fmt.Errorf("tool definition requires a name")
	}
	if handler == nil {
		return fmt.Errorf("tool %q requires a handler", def.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Name] = def
	r.handlers[def.Name] = handler
	return nil
}

// List implements Registry. Definitions are returned in name order so the
// capability schema is stable across calls.
func (r *StaticRegistry) List(ctx context.Context) ([]Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

// Execute implements Registry.
func (r *StaticRegistry) Execute(ctx context.Context, name string, args json.RawMessage) (*Output, error) {
	r.mu.RLock()
	handler, ok := r.handlers[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return handler(ctx, args)
}
