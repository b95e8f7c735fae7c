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

import "sort"

// Resolve matches attributes against a rule set and returns a
// deterministic decision. Precedence: scope specificity
// (channel > account > peer), then higher numeric priority, then
// lexicographically smallest rule ID. Resolve is pure: same rules and
// same attributes always yield the same decision, and no match is an
// explicit outcome rather than an error.
func Resolve(attrs Attributes, rules []Rule) Decision {
	var matches []Rule
	for _, rule := range rules {
		v := attrs.value(rule.Scope)
		if v != "" && v == rule.Match {
			matches = append(matches, rule)
		}
	}
	if len(matches) == 0 {
		return Decision{Matched: false}
	}

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Scope.rank() != b.Scope.rank() {
			return a.Scope.rank() < b.Scope.rank()
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.ID < b.ID
	})

	winner := matches[0]
	return Decision{
		Matched: true,
		RuleID:  winner.ID,
		Scope:   winner.Scope,
		Target:  winner.Target,
	}
}

// Simulate runs the same resolution as Resolve against an unpublished
// candidate rule set for a list of scenarios. It never mutates state and
// is used for pre-rollout verification of draft policies.
func Simulate(scenarios []Attributes, candidates []Rule) []Decision {
	decisions := make([]Decision, 0, len(scenarios))
	for _, attrs := range scenarios {
		decisions = append(decisions, Resolve(attrs, candidates))
	}
	return decisions
}
