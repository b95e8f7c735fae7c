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

// Package llm defines the reasoning-capability interface consumed by the
// intent classifier and the controller loop. Concrete provider clients
// (OpenAI, Anthropic, Bedrock, ...) live outside this module and are wired
// in by the surrounding system.
package llm

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the reasoning capability cannot be
// reached. Callers fall back to deterministic behavior (classifier) or
// abort the in-flight session (controller).
var ErrUnavailable = errors.New("reasoning capability unavailable")

// Message is one turn of accumulated history sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage is the token consumption reported by the provider for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Generation is the model output for one call.
type Generation struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        Usage  `json:"usage"`
}

// Client is the unified interface for reasoning backends.
// Implementations must be safe for concurrent use.
type Client interface {
	// Generate produces the next completion for the given history.
	// The context should be used for cancellation and timeout.
	Generate(ctx context.Context, messages []Message) (*Generation, error)
}

// ClientFunc adapts a plain function to the Client interface, mainly for
// tests and small deployments.
type ClientFunc func(ctx context.Context, messages []Message) (*Generation, error)

// Generate implements Client.
func (f ClientFunc) Generate(ctx context.Context, messages []Message) (*Generation, error) {
	return f(ctx, messages)
}
