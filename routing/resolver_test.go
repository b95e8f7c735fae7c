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

import (
	"testing"
)

func fastRule(id string, scope Scope, match, tool string, priority int) Rule {
	return Rule{
		ID:       id,
		Scope:    scope,
		Match:    match,
		Priority: priority,
		Target:   Target{Kind: TargetFastAction, Tool: tool},
	}
}

func missionRule(id string, scope Scope, match, hint string, priority int) Rule {
	return Rule{
		ID:       id,
		Scope:    scope,
		Match:    match,
		Priority: priority,
		Target:   Target{Kind: TargetComplexMission, GoalHint: hint},
	}
}

func TestResolveScopeSpecificityWins(t *testing.T) {
	// A channel rule beats account and peer rules regardless of their
	// priority values.
	rules := []Rule{
		fastRule("peer-rule", ScopePeer, "alice", "search", 100),
		fastRule("account-rule", ScopeAccount, "acme", "search", 50),
		fastRule("channel-rule", ScopeChannel, "support", "search", 1),
	}
	attrs := Attributes{Channel: "support", Account: "acme", Peer: "alice"}

	decision := Resolve(attrs, rules)
	if !decision.Matched {
		t.Fatal("expected a match")
	}
	if decision.RuleID != "channel-rule" {
		t.Errorf("winner = %s, want channel-rule", decision.RuleID)
	}
	if decision.Scope != ScopeChannel {
		t.Errorf("scope = %s, want channel", decision.Scope)
	}
}

func TestResolvePriorityWithinScope(t *testing.T) {
	rules := []Rule{
		fastRule("low", ScopeAccount, "acme", "search", 10),
		fastRule("high", ScopeAccount, "acme", "calculator", 20),
	}
	attrs := Attributes{Account: "acme"}

	decision := Resolve(attrs, rules)
	if decision.RuleID != "high" {
		t.Errorf("winner = %s, want high (priority 20 beats 10)", decision.RuleID)
	}
}

func TestResolveLexicographicTieBreak(t *testing.T) {
	rules := []Rule{
		fastRule("r2", ScopeAccount, "acme", "search", 5),
		fastRule("r1", ScopeAccount, "acme", "calculator", 5),
	}
	attrs := Attributes{Account: "acme"}

	decision := Resolve(attrs, rules)
	if decision.RuleID != "r1" {
		t.Errorf("winner = %s, want r1 (lexicographic tie-break)", decision.RuleID)
	}
}

func TestResolveNoMatchIsExplicit(t *testing.T) {
	rules := []Rule{
		fastRule("r1", ScopeChannel, "support", "search", 1),
	}

	decision := Resolve(Attributes{Channel: "sales"}, rules)
	if decision.Matched {
		t.Error("expected explicit no-match")
	}
	if decision.RuleID != "" {
		t.Errorf("no-match decision carries rule id %q", decision.RuleID)
	}
}

func TestResolveEmptyAttributeNeverMatches(t *testing.T) {
	// A rule with an empty match key cannot be published, but an empty
	// request attribute must not match anything either.
	rules := []Rule{
		fastRule("r1", ScopePeer, "alice", "search", 1),
	}

	decision := Resolve(Attributes{}, rules)
	if decision.Matched {
		t.Error("empty attributes must not match")
	}
}

func TestResolveDeterministic(t *testing.T) {
	rules := []Rule{
		missionRule("m1", ScopeChannel, "support", "escalation", 3),
		fastRule("f1", ScopeChannel, "support", "search", 3),
		fastRule("f2", ScopeAccount, "acme", "calculator", 9),
	}
	attrs := Attributes{Channel: "support", Account: "acme"}

	first := Resolve(attrs, rules)
	for i := 0; i < 100; i++ {
		if got := Resolve(attrs, rules); got != first {
			t.Fatalf("resolution not deterministic: run %d got %+v, first %+v", i, got, first)
		}
	}
	// f1 beats m1 on the lexicographic tie-break at equal scope/priority.
	if first.RuleID != "f1" {
		t.Errorf("winner = %s, want f1", first.RuleID)
	}
}

func TestSimulateDoesNotMutate(t *testing.T) {
	candidates := []Rule{
		fastRule("draft-1", ScopeChannel, "support", "search", 1),
		missionRule("draft-2", ScopePeer, "vip", "priority handling", 2),
	}
	scenarios := []Attributes{
		{Channel: "support"},
		{Peer: "vip"},
		{Account: "nobody"},
	}

	decisions := Simulate(scenarios, candidates)
	if len(decisions) != 3 {
		t.Fatalf("got %d decisions, want 3", len(decisions))
	}
	if !decisions[0].Matched || decisions[0].RuleID != "draft-1" {
		t.Errorf("scenario 0: %+v, want draft-1 match", decisions[0])
	}
	if !decisions[1].Matched || decisions[1].RuleID != "draft-2" {
		t.Errorf("scenario 1: %+v, want draft-2 match", decisions[1])
	}
	if decisions[2].Matched {
		t.Errorf("scenario 2 should not match, got %+v", decisions[2])
	}
}
