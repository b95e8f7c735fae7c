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

/*
Package types provides shared type definitions used across Corridor
components.

# Overview

This package contains the wire-level contract every Corridor node speaks:
the response envelope and the stable error-code taxonomy. It is imported by
the gateway surface and by every core package that needs to map an internal
error onto a client-visible code.

# Response Envelope

Every response carries {version, trace_id, data} on success or
{version, trace_id, error:{code, message, retryable}} on failure:

	env := types.OK(traceID, result)
	env := types.Fail(traceID, types.CodeRateLimited, "limit exceeded")

# Error Codes

Codes are stable strings (RATE_LIMITED, SESSION_NOT_FOUND, ...). The
Retryable flag is derived from the code, never set by hand, so clients can
rely on it for backoff decisions.

# Thread Safety

All types in this package are value types and are safe for concurrent use.
*/
package types
