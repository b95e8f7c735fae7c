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

import "time"

// Scope identifies which request attribute a rule matches against.
// Precedence is fixed: channel beats account beats peer, regardless of
// priority values.
type Scope string

const (
	ScopeChannel Scope = "channel"
	ScopeAccount Scope = "account"
	ScopePeer    Scope = "peer"
)

// IsValid returns true for a known scope.
func (s Scope) IsValid() bool {
	switch s {
	case ScopeChannel, ScopeAccount, ScopePeer:
		return true
	default:
		return false
	}
}

// rank returns the precedence position of a scope; lower wins.
func (s Scope) rank() int {
	switch s {
	case ScopeChannel:
		return 0
	case ScopeAccount:
		return 1
	case ScopePeer:
		return 2
	default:
		return 3
	}
}

// TargetKind is the routing outcome type of a rule.
type TargetKind string

const (
	// TargetFastAction dispatches a tool directly, bypassing the
	// controller loop.
	TargetFastAction TargetKind = "fast_action"
	// TargetComplexMission starts a controller session.
	TargetComplexMission TargetKind = "complex_mission"
)

// Target is the resolved route of a matching rule.
type Target struct {
	Kind TargetKind `json:"kind"`
	// Tool is set for fast_action targets.
	Tool string `json:"tool,omitempty"`
	// GoalHint is set for complex_mission targets and is prefixed onto
	// the extracted goal.
	GoalHint string `json:"goal_hint,omitempty"`
}

// Rule is one entry of a routing policy. Rules are immutable once
// published.
type Rule struct {
	ID       string `json:"id"`
	Scope    Scope  `json:"scope"`
	Match    string `json:"match"`
	Priority int    `json:"priority"`
	Target   Target `json:"target"`
}

// Attributes are the request attributes a policy resolves against.
type Attributes struct {
	Channel string `json:"channel,omitempty"`
	Account string `json:"account,omitempty"`
	Peer    string `json:"peer,omitempty"`
}

// value returns the attribute value for a scope; empty means absent.
func (a Attributes) value(s Scope) string {
	switch s {
	case ScopeChannel:
		return a.Channel
	case ScopeAccount:
		return a.Account
	case ScopePeer:
		return a.Peer
	default:
		return ""
	}
}

// Decision is the outcome of resolving attributes against a rule set.
// Matched is false for an explicit no-match; a no-match is never an error.
type Decision struct {
	Matched bool   `json:"matched"`
	RuleID  string `json:"rule_id,omitempty"`
	Scope   Scope  `json:"scope,omitempty"`
	Target  Target `json:"target,omitempty"`
}

// PolicyVersion is an immutable published rule set. Version identifiers
// are dotted integers ("1.0.3") and must strictly increase across
// publishes.
type PolicyVersion struct {
	Version     string    `json:"version"`
	Name        string    `json:"name,omitempty"`
	Rules       []Rule    `json:"rules"`
	PublishedAt time.Time `json:"published_at"`
}
