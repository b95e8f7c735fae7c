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

// Package main is the entry point for the Corridor gateway service.
//
// The gateway is the admission and orchestration front door for
// autonomous agent workloads:
// - Rate-limits and routes incoming requests against versioned policies
// - Classifies unrouted requests into fast actions or complex missions
// - Schedules missions under per-session and global concurrency lanes
// - Runs the resumable reasoning/action loop with per-step persistence
//
// Usage:
//
//	./gateway
//
// Environment Variables:
//
//	CORRIDOR_CONFIG - path to the YAML configuration file
//	CORRIDOR_PORT - HTTP server port (default: 8080)
//	CORRIDOR_REDIS_URL - shared Redis store URL
//	CORRIDOR_POSTGRES_DSN - policy history database (optional)
//	CORRIDOR_JWT_SECRET - secret for bearer token validation
package main

import (
	"corridor/platform/gateway"
)

func main() {
	gateway.Run(gateway.RunDeps{})
}
