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

// APIVersion is the wire version reported in every response envelope.
const APIVersion = "v1"

// Envelope is the uniform response shape for the request path and the admin
// surface. Exactly one of Data and Error is set.
type Envelope struct {
	Version string      `json:"version"`
	TraceID string      `json:"trace_id"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// OK builds a success envelope.
func OK(traceID string, data interface{}) Envelope {
	return Envelope{Version: APIVersion, TraceID: traceID, Data: data}
}

// Fail builds an error envelope.
func Fail(traceID string, code ErrorCode, message string) Envelope {
	return Envelope{Version: APIVersion, TraceID: traceID, Error: NewAPIError(code, message)}
}
