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

import "errors"

var (
	// ErrRoutingInvalid is returned when a publish contains a malformed
	// rule (empty scope, match key, rule id, or duplicate rule ids).
	ErrRoutingInvalid = errors.New("routing policy invalid")

	// ErrPolicyVersionConflict is returned when a published version does
	// not strictly increase over the live version.
	ErrPolicyVersionConflict = errors.New("policy version conflict")

	// ErrVersionNotFound is returned when a rollback references a version
	// missing from history.
	ErrVersionNotFound = errors.New("policy version not found")
)
