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

package types

import "fmt"

// ErrorCode is a stable, machine-readable identifier carried in every error
// envelope. Codes are part of the public API contract and must not change
// between releases.
type ErrorCode string

const (
	CodeRoutingInvalid        ErrorCode = "ROUTING_INVALID"
	CodePolicyVersionConflict ErrorCode = "POLICY_VERSION_CONFLICT"
	CodeRateLimited           ErrorCode = "RATE_LIMITED"
	CodeSchedulerBusy         ErrorCode = "SCHEDULER_BUSY"
	CodeSchedulerTimeout      ErrorCode = "SCHEDULER_TIMEOUT"
	CodeSessionNotFound       ErrorCode = "SESSION_NOT_FOUND"
	CodeSessionTerminal       ErrorCode = "SESSION_TERMINAL"
	CodeMaxIterations         ErrorCode = "MAX_ITERATIONS_EXCEEDED"
	CodeBudgetExceeded        ErrorCode = "BUDGET_EXCEEDED"
	CodeToolExecution         ErrorCode = "TOOL_EXECUTION_ERROR"
	CodeReasoningUnavailable  ErrorCode = "REASONING_UNAVAILABLE"
	CodeIdempotencyConflict   ErrorCode = "IDEMPOTENCY_CONFLICT"
	CodeCancelled             ErrorCode = "CANCELLED"
	CodeUnauthorized          ErrorCode = "UNAUTHORIZED"
	CodeInvalidRequest        ErrorCode = "INVALID_REQUEST"
	CodeInternal              ErrorCode = "INTERNAL"
)

// retryableCodes are the admission-time conditions a client may safely retry
// after backing off. Validation conflicts and terminal session states are not
// retryable.
var retryableCodes = map[ErrorCode]bool{
	CodeRateLimited:          true,
	CodeSchedulerBusy:        true,
	CodeSchedulerTimeout:     true,
	CodeReasoningUnavailable: true,
	CodeInternal:             true,
}

// Retryable reports whether a client may retry a request that failed with
// this code.
func (c ErrorCode) Retryable() bool {
	return retryableCodes[c]
}

// APIError is the error payload of a response envelope.
type APIError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAPIError builds an APIError with the retryable flag derived from the
// code.
func NewAPIError(code ErrorCode, message string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Retryable: code.Retryable(),
	}
}
