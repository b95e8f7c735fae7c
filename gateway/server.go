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

// Package gateway wires the admission pipeline onto an HTTP surface:
// rate limiter, routing policy, fallback classifier, idempotency guard,
// dual-lane scheduler and the controller loop, with the response envelope
// and error taxonomy shared by every endpoint.
package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"corridor/platform/config"
	"corridor/platform/controller"
	"corridor/platform/idempotency"
	"corridor/platform/intent"
	"corridor/platform/llm"
	"corridor/platform/ratelimit"
	"corridor/platform/routing"
	"corridor/platform/scheduler"
	"corridor/platform/session"
	"corridor/platform/shared/logger"
	"corridor/platform/shared/types"
	"corridor/platform/tools"
)

// Deps are the external capabilities the gateway composes. All fields are
// required except Repository.
type Deps struct {
	LLM          llm.Client
	Tools        tools.Registry
	Sessions     session.Store
	CounterStore ratelimit.CounterStore
	Records      idempotency.RecordStore
	// Repository mirrors published policy versions into durable history;
	// nil disables mirroring.
	Repository routing.Repository
}

// Server is the gateway's HTTP surface and its composed pipeline.
type Server struct {
	cfg       *config.Config
	log       *logger.Logger
	jwtSecret string

	policies   *routing.Store
	classifier *intent.Classifier
	limiter    *ratelimit.Limiter
	sched      *scheduler.Scheduler
	guard      *idempotency.Guard
	ctrl       *controller.Controller
	sessions   session.Store
}

// NewServer composes the pipeline from configuration and capabilities.
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	routingOpts := []routing.StoreOption{}
	if cfg.Routing.PersistencePath != "" {
		routingOpts = append(routingOpts, routing.WithPersistencePath(cfg.Routing.PersistencePath))
	}
	if deps.Repository != nil {
		routingOpts = append(routingOpts, routing.WithHistoryRepository(deps.Repository))
	}
	policies, err := routing.NewStore(routingOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize routing store: %w", err)
	}

	limiter, err := ratelimit.NewLimiter(deps.CounterStore, ratelimit.Config{
		Limit:          cfg.RateLimit.Limit,
		Window:         cfg.RateLimit.Window,
		OnStoreFailure: ratelimit.FailurePolicy(cfg.RateLimit.OnStoreFailure),
	})
	if err != nil {
		return nil, err
	}
	if cfg.RateLimit.OnStoreFailure == string(ratelimit.FailOpen) {
		limiter.WithLocalFallback(ratelimit.NewLocalStore())
	}

	sched, err := scheduler.New(scheduler.Config{
		GlobalLimit:        cfg.Scheduler.GlobalLimit,
		SessionWaitPolicy:  scheduler.WaitPolicy(cfg.Scheduler.SessionWaitPolicy),
		SessionWaitTimeout: cfg.Scheduler.SessionWaitTimeout,
		GlobalWaitTimeout:  cfg.Scheduler.GlobalWaitTimeout,
	})
	if err != nil {
		return nil, err
	}

	ctrl, err := controller.New(deps.LLM, deps.Tools, deps.Sessions, controller.Config{
		MaxIterations:        cfg.Controller.MaxIterations,
		TokenBudget:          cfg.Controller.TokenBudget,
		MaxToolFailureStreak: cfg.Controller.MaxToolFailureStreak,
	})
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:        cfg,
		log:        logger.New("gateway"),
		jwtSecret:  cfg.Server.JWTSecret,
		policies:   policies,
		classifier: intent.New(deps.LLM, deps.Tools, intent.WithMinConfidence(cfg.Intent.MinConfidence)),
		limiter:    limiter,
		sched:      sched,
		guard:      idempotency.NewGuard(deps.Records),
		ctrl:       ctrl,
		sessions:   deps.Sessions,
	}, nil
}

// Handler builds the full middleware and routing stack.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(func(next http.Handler) http.Handler { return s.withAuth(next) })

	api.HandleFunc("/requests", s.handleRequest).Methods("POST")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}/resume", s.handleResumeSession).Methods("POST")
	api.HandleFunc("/sessions/{id}/cancel", s.handleCancelSession).Methods("POST")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/policies", s.handlePublishPolicy).Methods("POST")
	admin.HandleFunc("/policies", s.handleListPolicyVersions).Methods("GET")
	admin.HandleFunc("/policies/simulate", s.handleSimulatePolicy).Methods("POST")
	admin.HandleFunc("/policies/rollback", s.handleRollbackPolicy).Methods("POST")
	admin.HandleFunc("/ratelimit/{key}", s.handleRateLimitStatus).Methods("GET")
	admin.HandleFunc("/ratelimit/{key}", s.handleFlushRateLimit).Methods("DELETE")

	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(s.withTrace(s.withMetrics(r)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "healthy",
		"service":   "corridor-gateway",
		"timestamp": time.Now().UTC(),
	})
}

// writeEnvelope writes a success envelope.
func (s *Server) writeEnvelope(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	promRequestsTotal.WithLabelValues(fmt.Sprintf("%d", status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(types.OK(traceFrom(r.Context()), data)); err != nil {
		s.log.Error(tenantFrom(r.Context()), traceFrom(r.Context()), "failed to encode response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// writeError writes a failure envelope with the taxonomy code.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code types.ErrorCode, message string) {
	promRequestsTotal.WithLabelValues(fmt.Sprintf("%d", status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.Fail(traceFrom(r.Context()), code, message))
}
