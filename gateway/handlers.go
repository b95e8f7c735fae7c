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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"corridor/platform/controller"
	"corridor/platform/idempotency"
	"corridor/platform/intent"
	"corridor/platform/llm"
	"corridor/platform/ratelimit"
	"corridor/platform/routing"
	"corridor/platform/scheduler"
	"corridor/platform/session"
	"corridor/platform/shared/types"
)

// requestBody is the request-path payload.
type requestBody struct {
	Content string `json:"content"`
	Channel string `json:"channel,omitempty"`
	Account string `json:"account,omitempty"`
	Peer    string `json:"peer,omitempty"`
}

// requestOutcome is the request-path response data.
type requestOutcome struct {
	Type    string              `json:"type"` // fast_action | complex_mission
	Tool    string              `json:"tool,omitempty"`
	Result  string              `json:"result,omitempty"`
	Success *bool               `json:"success,omitempty"`
	Session *session.Session    `json:"session,omitempty"`
	Routing *routingDiagnostics `json:"routing"`
}

// routingDiagnostics reports how the request was routed.
type routingDiagnostics struct {
	Source         string  `json:"source"` // policy | model | heuristic
	RuleID         string  `json:"rule_id,omitempty"`
	Scope          string  `json:"scope,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
	FallbackReason string  `json:"fallback_reason,omitempty"`
}

// handleRequest runs the admission pipeline: rate limiter, policy
// resolver, fallback classifier, then either direct tool dispatch or a
// scheduled controller session. Mutations honor the Idempotency-Key
// header; omitting it disables replay protection for that call.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := tenantFrom(ctx)

	var body requestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, http.StatusBadRequest, types.CodeInvalidRequest, "malformed JSON body")
		return
	}
	if strings.TrimSpace(body.Content) == "" {
		s.writeError(w, r, http.StatusBadRequest, types.CodeInvalidRequest, "content is required")
		return
	}

	limitKey := tenant
	if limitKey == "" {
		limitKey = clientAddr(r)
	}
	if err := s.limiter.Allow(ctx, limitKey); err != nil {
		promRateLimited.Inc()
		s.writeMappedError(w, r, err)
		return
	}

	decision := s.policies.Resolve(routing.Attributes{
		Channel: body.Channel,
		Account: body.Account,
		Peer:    body.Peer,
	})

	var in *intent.Intent
	diag := &routingDiagnostics{}
	if decision.Matched {
		diag.Source = "policy"
		diag.RuleID = decision.RuleID
		diag.Scope = string(decision.Scope)
		in = intentFromTarget(decision.Target, body.Content)
	} else {
		classified, cdiag := s.classifier.Classify(ctx, body.Content)
		in = classified
		diag.Source = cdiag.Source
		diag.Confidence = cdiag.Confidence
		diag.FallbackReason = cdiag.FallbackReason
	}
	promRoutingDecisions.WithLabelValues(diag.Source).Inc()

	if in.Kind == intent.KindFastAction {
		s.dispatchFastAction(w, r, tenant, in, diag)
		return
	}
	s.runMission(w, r, tenant, in.Goal, diag)
}

// intentFromTarget converts a policy match into the classifier's intent
// shape so both paths share one dispatch.
func intentFromTarget(target routing.Target, content string) *intent.Intent {
	switch target.Kind {
	case routing.TargetFastAction:
		args, _ := json.Marshal(map[string]string{"query": content})
		return &intent.Intent{Kind: intent.KindFastAction, Tool: target.Tool, Args: args}
	default:
		goal := content
		if target.GoalHint != "" {
			goal = target.GoalHint + ": " + content
		}
		return &intent.Intent{Kind: intent.KindComplexMission, Goal: goal}
	}
}

// dispatchFastAction executes the tool directly, under the idempotency
// guard: a retried side-effecting call with the same key must not run
// its tool twice.
func (s *Server) dispatchFastAction(w http.ResponseWriter, r *http.Request, tenant string, in *intent.Intent, diag *routingDiagnostics) {
	payload, _ := json.Marshal(map[string]interface{}{
		"tool": in.Tool, "args": in.Args, "tenant": tenant,
	})
	s.serveGuarded(w, r, tenant, payload, func(ctx context.Context) (int, []byte, error) {
		output, err := s.ctrl.FastAction(ctx, in.Tool, in.Args)
		if err != nil {
			return 0, nil, err
		}
		raw, merr := json.Marshal(types.OK(traceFrom(r.Context()), requestOutcome{
			Type:    string(intent.KindFastAction),
			Tool:    in.Tool,
			Result:  output.Content,
			Success: &output.Success,
			Routing: diag,
		}))
		if merr != nil {
			return 0, nil, merr
		}
		return http.StatusOK, raw, nil
	})
}

// runMission starts a controller session under the scheduler lanes,
// also wrapped by the idempotency guard.
func (s *Server) runMission(w http.ResponseWriter, r *http.Request, tenant, goal string, diag *routingDiagnostics) {
	payload, _ := json.Marshal(map[string]string{"goal": goal, "tenant": tenant})
	s.serveGuarded(w, r, tenant, payload, func(ctx context.Context) (int, []byte, error) {
		sessionID := uuid.NewString()
		ticket, err := s.sched.Acquire(ctx, sessionID)
		if err != nil {
			return 0, nil, err
		}
		defer ticket.Release()

		promSessionsStarted.Inc()
		sess, runErr := s.ctrl.Run(ctx, session.New(sessionID, tenant, goal))
		if sess != nil && sess.Status.Terminal() {
			promSessionsTerminal.WithLabelValues(string(sess.Status)).Inc()
		}
		if runErr != nil {
			return 0, nil, runErr
		}

		raw, merr := json.Marshal(types.OK(traceFrom(r.Context()), requestOutcome{
			Type:    string(intent.KindComplexMission),
			Result:  sess.Result,
			Session: sess,
			Routing: diag,
		}))
		if merr != nil {
			return 0, nil, merr
		}
		return http.StatusOK, raw, nil
	})
}

// serveGuarded runs the handler under the idempotency guard and writes the
// stored envelope verbatim, so a replayed call returns bytes identical to
// the original, original trace id included. An empty Idempotency-Key
// disables replay protection for the call.
func (s *Server) serveGuarded(w http.ResponseWriter, r *http.Request, tenant string, payload []byte, handler idempotency.Handler) {
	ctx := r.Context()
	result, err := s.guard.Execute(ctx, "POST /api/v1/requests", r.Header.Get("Idempotency-Key"), payload, handler)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	if result.Replayed {
		promIdempotentReplays.Inc()
	}

	promRequestsTotal.WithLabelValues(fmt.Sprintf("%d", result.Status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.Status)
	if _, err := w.Write(result.Body); err != nil {
		s.log.Error(tenant, traceFrom(ctx), "failed to write response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.Split(fwd, ",")[0]
	}
	return r.RemoteAddr
}

// writeMappedError translates component errors into taxonomy codes and
// HTTP statuses.
func (s *Server) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := mapError(err)
	s.writeError(w, r, status, code, err.Error())
}

func mapError(err error) (int, types.ErrorCode) {
	switch {
	case errors.Is(err, ratelimit.ErrRateLimited):
		return http.StatusTooManyRequests, types.CodeRateLimited
	case errors.Is(err, ratelimit.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, types.CodeRateLimited
	case errors.Is(err, scheduler.ErrBusy):
		return http.StatusConflict, types.CodeSchedulerBusy
	case errors.Is(err, scheduler.ErrTimeout):
		return http.StatusServiceUnavailable, types.CodeSchedulerTimeout
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, types.CodeSessionNotFound
	case errors.Is(err, controller.ErrTerminal):
		return http.StatusConflict, types.CodeSessionTerminal
	case errors.Is(err, controller.ErrMaxIterations):
		return http.StatusUnprocessableEntity, types.CodeMaxIterations
	case errors.Is(err, controller.ErrBudgetExceeded):
		return http.StatusUnprocessableEntity, types.CodeBudgetExceeded
	case errors.Is(err, controller.ErrToolFailureStreak):
		return http.StatusUnprocessableEntity, types.CodeToolExecution
	case errors.Is(err, controller.ErrCancelled):
		return http.StatusConflict, types.CodeCancelled
	case errors.Is(err, llm.ErrUnavailable):
		return http.StatusServiceUnavailable, types.CodeReasoningUnavailable
	case errors.Is(err, idempotency.ErrConflict), errors.Is(err, idempotency.ErrInFlight):
		return http.StatusConflict, types.CodeIdempotencyConflict
	case errors.Is(err, routing.ErrRoutingInvalid):
		return http.StatusBadRequest, types.CodeRoutingInvalid
	case errors.Is(err, routing.ErrPolicyVersionConflict):
		return http.StatusConflict, types.CodePolicyVersionConflict
	case errors.Is(err, routing.ErrVersionNotFound):
		return http.StatusNotFound, types.CodeInvalidRequest
	default:
		return http.StatusInternalServerError, types.CodeInternal
	}
}

// --- session endpoints ---

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Load(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	s.writeEnvelope(w, r, http.StatusOK, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.sessions.ListRunning(r.Context())
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	s.writeEnvelope(w, r, http.StatusOK, map[string]interface{}{"running": ids})
}

// handleResumeSession reloads the last persisted snapshot and continues
// the loop under a freshly acquired session lane.
func (s *Server) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	ticket, err := s.sched.Acquire(ctx, id)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	defer ticket.Release()

	sess, err := s.ctrl.Resume(ctx, id)
	if err != nil {
		if errors.Is(err, controller.ErrTerminal) {
			// Terminal sessions report their state without re-running.
			s.writeEnvelope(w, r, http.StatusOK, sess)
			return
		}
		s.writeMappedError(w, r, err)
		return
	}
	promSessionsTerminal.WithLabelValues(string(sess.Status)).Inc()
	s.writeEnvelope(w, r, http.StatusOK, sess)
}

// handleCancelSession marks a session failed with CANCELLED. The write
// happens under the session lane: a loop actively running the session
// holds that lane, and cancelling without it would let the loop's next
// per-iteration persist overwrite the terminal snapshot.
func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	ticket, err := s.sched.Acquire(ctx, id)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	defer ticket.Release()

	sess, err := s.ctrl.Cancel(ctx, id)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	s.writeEnvelope(w, r, http.StatusOK, sess)
}

// --- admin endpoints ---

type publishBody struct {
	Version string         `json:"version"`
	Name    string         `json:"name,omitempty"`
	Rules   []routing.Rule `json:"rules"`
}

func (s *Server) handlePublishPolicy(w http.ResponseWriter, r *http.Request) {
	var body publishBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, http.StatusBadRequest, types.CodeInvalidRequest, "malformed JSON body")
		return
	}
	err := s.policies.Publish(r.Context(), routing.PolicyVersion{
		Version: body.Version,
		Name:    body.Name,
		Rules:   body.Rules,
	})
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	s.log.Info(tenantFrom(r.Context()), traceFrom(r.Context()), "policy published", map[string]interface{}{
		"version": body.Version,
		"rules":   len(body.Rules),
	})
	s.writeEnvelope(w, r, http.StatusCreated, map[string]string{"version": body.Version})
}

func (s *Server) handleListPolicyVersions(w http.ResponseWriter, r *http.Request) {
	s.writeEnvelope(w, r, http.StatusOK, map[string]interface{}{
		"versions": s.policies.ListVersions(),
	})
}

type simulateBody struct {
	Scenarios []routing.Attributes `json:"scenarios"`
	// Rules are the candidate set; when omitted, the live policy is used.
	Rules []routing.Rule `json:"rules,omitempty"`
}

// handleSimulatePolicy runs resolution against a draft rule set without
// mutating the live policy, for pre-rollout verification.
func (s *Server) handleSimulatePolicy(w http.ResponseWriter, r *http.Request) {
	var body simulateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, http.StatusBadRequest, types.CodeInvalidRequest, "malformed JSON body")
		return
	}
	if len(body.Scenarios) == 0 {
		s.writeError(w, r, http.StatusBadRequest, types.CodeInvalidRequest, "at least one scenario is required")
		return
	}

	rules := body.Rules
	if rules == nil {
		if live := s.policies.Live(); live != nil {
			rules = live.Rules
		}
	}
	s.writeEnvelope(w, r, http.StatusOK, map[string]interface{}{
		"decisions": routing.Simulate(body.Scenarios, rules),
	})
}

type rollbackBody struct {
	FromVersion string `json:"from_version"`
	NewVersion  string `json:"new_version"`
}

func (s *Server) handleRollbackPolicy(w http.ResponseWriter, r *http.Request) {
	var body rollbackBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, http.StatusBadRequest, types.CodeInvalidRequest, "malformed JSON body")
		return
	}
	if err := s.policies.Rollback(r.Context(), body.FromVersion, body.NewVersion); err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	s.writeEnvelope(w, r, http.StatusCreated, map[string]string{"version": body.NewVersion})
}

// handleRateLimitStatus reports the admissions left in the current
// window for a key.
func (s *Server) handleRateLimitStatus(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	remaining, err := s.limiter.Remaining(r.Context(), key)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	s.writeEnvelope(w, r, http.StatusOK, map[string]interface{}{
		"key":       key,
		"remaining": remaining,
	})
}

// handleFlushRateLimit drops all recorded admissions for a key.
func (s *Server) handleFlushRateLimit(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if err := s.limiter.Reset(r.Context(), key); err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	s.writeEnvelope(w, r, http.StatusOK, map[string]string{"flushed": key})
}
