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

// Package intent classifies requests the routing policy did not match.
// It asks the reasoning model for a structured decision and falls back to
// a deterministic keyword heuristic when the model is unreachable, returns
// malformed output, is below the confidence threshold, or names a tool the
// registry does not have. Classification therefore always produces an
// answer.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"corridor/platform/llm"
	"corridor/platform/tools"
)

// Kind distinguishes the two execution paths.
type Kind string

const (
	// KindFastAction dispatches a single tool call directly.
	KindFastAction Kind = "fast_action"
	// KindComplexMission enters the scheduled controller loop.
	KindComplexMission Kind = "complex_mission"
)

// Intent is a classification outcome.
type Intent struct {
	Kind Kind            `json:"kind"`
	Tool string          `json:"tool,omitempty"`
	Args json.RawMessage `json:"args,omitempty"`
	Goal string          `json:"goal,omitempty"`
}

// Diagnostics reports how the classification was produced, for response
// envelopes and logs.
type Diagnostics struct {
	Source         string  `json:"source"` // "model" or "heuristic"
	Confidence     float64 `json:"confidence,omitempty"`
	FallbackReason string  `json:"fallback_reason,omitempty"`
}

// DefaultMinConfidence is the threshold below which a model decision is
// discarded in favor of the heuristic.
const DefaultMinConfidence = 0.6

// Classifier decides FastAction vs ComplexMission for unrouted requests.
type Classifier struct {
	client        llm.Client
	registry      tools.Registry
	minConfidence float64
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithMinConfidence overrides the model-confidence threshold.
func WithMinConfidence(threshold float64) Option {
	return func(c *Classifier) {
		c.minConfidence = threshold
	}
}

// New creates a classifier. A nil client disables the model path; the
// heuristic still works.
func New(client llm.Client, registry tools.Registry, opts ...Option) *Classifier {
	c := &Classifier{
		client:        client,
		registry:      registry,
		minConfidence: DefaultMinConfidence,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// modelDecision is the structured JSON the prompt asks the model for.
type modelDecision struct {
	IntentType string          `json:"intent_type"`
	Tool       string          `json:"tool_name,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
	Goal       string          `json:"goal,omitempty"`
	Confidence float64         `json:"confidence"`
}

// Classify produces an intent plus diagnostics. It never fails: every
// model-path problem degrades to the deterministic heuristic.
func (c *Classifier) Classify(ctx context.Context, content string) (*Intent, *Diagnostics) {
	intent, confidence, reason := c.classifyWithModel(ctx, content)
	if intent != nil {
		return intent, &Diagnostics{Source: "model", Confidence: confidence}
	}
	return c.classifyWithRules(content), &Diagnostics{Source: "heuristic", FallbackReason: reason}
}

func (c *Classifier) classifyWithModel(ctx context.Context, content string) (*Intent, float64, string) {
	if c.client == nil {
		return nil, 0, "model_not_configured"
	}

	defs, err := c.registry.List(ctx)
	if err != nil {
		return nil, 0, "tool_registry_unavailable"
	}
	known := make(map[string]bool, len(defs))
	descriptions := make([]string, 0, len(defs))
	for _, def := range defs {
		known[def.Name] = true
		descriptions = append(descriptions, fmt.Sprintf("%s: %s", def.Name, def.Description))
	}

	gen, err := c.client.Generate(ctx, []llm.Message{
		{
			Role: "system",
			Content: "You are an intent router. Return ONLY compact JSON with keys: " +
				"intent_type (fast_action|complex_mission), tool_name (optional), " +
				"args (optional object), goal (optional), confidence (0..1).",
		},
		{
			Role:    "user",
			Content: fmt.Sprintf("message: %s\navailable_tools: %s", content, strings.Join(descriptions, " | ")),
		},
	})
	if err != nil {
		return nil, 0, "model_unavailable"
	}

	raw, ok := extractJSONObject(gen.Content)
	if !ok {
		return nil, 0, "model_invalid_json"
	}
	var decision modelDecision
	if err := json.Unmarshal([]byte(raw), &decision); err != nil {
		return nil, 0, "model_invalid_json"
	}
	if decision.Confidence < c.minConfidence {
		return nil, decision.Confidence, "model_low_confidence"
	}

	switch decision.IntentType {
	case string(KindFastAction):
		if decision.Tool == "" {
			return nil, decision.Confidence, "model_missing_tool"
		}
		if !known[decision.Tool] {
			return nil, decision.Confidence, "model_unknown_tool"
		}
		args := decision.Args
		if len(args) == 0 {
			args = defaultArgs(content)
		}
		return &Intent{Kind: KindFastAction, Tool: decision.Tool, Args: args}, decision.Confidence, ""
	case string(KindComplexMission):
		goal := decision.Goal
		if goal == "" {
			goal = extractGoal(content)
		}
		return &Intent{Kind: KindComplexMission, Goal: goal}, decision.Confidence, ""
	default:
		return nil, decision.Confidence, "model_unusable_decision"
	}
}

var fastActionKeywords = []string{
	"search", "find", "lookup", "get", "fetch", "read",
	"list", "show", "what is", "who is", "calculate", "convert",
}

var complexMissionKeywords = []string{
	"create", "build", "develop", "implement", "design", "analyze",
	"review", "fix", "debug", "refactor", "optimize", "explain",
	"compare", "plan", "help me", "how do i", "write", "generate",
}

// classifyWithRules is the deterministic keyword heuristic. Mission
// keywords are checked first so "find and fix the bug" plans rather than
// dispatching a lookup. Unrecognized content defaults to a mission, the
// safer path.
func (c *Classifier) classifyWithRules(content string) *Intent {
	lower := strings.ToLower(content)

	for _, kw := range complexMissionKeywords {
		if strings.Contains(lower, kw) {
			return &Intent{Kind: KindComplexMission, Goal: extractGoal(content)}
		}
	}
	for _, kw := range fastActionKeywords {
		if strings.HasPrefix(lower, kw) || strings.Contains(lower, " "+kw) {
			return &Intent{
				Kind: KindFastAction,
				Tool: heuristicTool(lower),
				Args: defaultArgs(content),
			}
		}
	}
	return &Intent{Kind: KindComplexMission, Goal: extractGoal(content)}
}

// heuristicTool maps fast-action phrasing to a registry tool name.
func heuristicTool(lower string) string {
	switch {
	case strings.Contains(lower, "search") || strings.Contains(lower, "find"):
		return "search"
	case strings.Contains(lower, "calculate") || strings.Contains(lower, "compute"):
		return "calculator"
	case strings.Contains(lower, "read") || strings.Contains(lower, "get"):
		return "read_artifact"
	case strings.Contains(lower, "list") || strings.Contains(lower, "show"):
		return "list"
	default:
		return "generic"
	}
}

// extractGoal takes the first sentence, clipped to 200 characters.
func extractGoal(content string) string {
	goal := content
	if idx := strings.IndexAny(content, ".!?"); idx >= 0 {
		goal = content[:idx]
	}
	if len(goal) > 200 {
		return goal[:200] + "..."
	}
	return goal
}

func defaultArgs(content string) json.RawMessage {
	raw, _ := json.Marshal(map[string]string{"query": content})
	return raw
}

// extractJSONObject tolerates models that wrap the JSON in prose or code
// fences: it takes the outermost brace pair when the content is not
// already valid JSON.
func extractJSONObject(content string) (string, bool) {
	if json.Valid([]byte(content)) {
		return content, true
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return content[start : end+1], true
}
