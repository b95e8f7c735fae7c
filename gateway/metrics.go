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

package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics
var (
	promRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corridor_gateway_requests_total",
			Help: "Total number of requests processed by the gateway",
		},
		[]string{"status"},
	)
	promRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "corridor_gateway_request_duration_milliseconds",
			Help:    "Request duration in milliseconds",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 5000},
		},
		[]string{"path"},
	)
	promRateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "corridor_gateway_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)
	promRoutingDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corridor_gateway_routing_decisions_total",
			Help: "Routing decisions by source (policy, model, heuristic)",
		},
		[]string{"source"},
	)
	promSessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "corridor_gateway_sessions_started_total",
			Help: "Total number of controller sessions started",
		},
	)
	promSessionsTerminal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corridor_gateway_sessions_terminal_total",
			Help: "Sessions reaching a terminal status",
		},
		[]string{"status"},
	)
	promIdempotentReplays = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "corridor_gateway_idempotent_replays_total",
			Help: "Total number of responses served from idempotency records",
		},
	)
)

func init() {
	prometheus.MustRegister(promRequestsTotal)
	prometheus.MustRegister(promRequestDuration)
	prometheus.MustRegister(promRateLimited)
	prometheus.MustRegister(promRoutingDecisions)
	prometheus.MustRegister(promSessionsStarted)
	prometheus.MustRegister(promSessionsTerminal)
	prometheus.MustRegister(promIdempotentReplays)
}
