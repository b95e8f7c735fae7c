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
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"corridor/platform/shared/types"
)

type contextKey string

const (
	tenantKey contextKey = "tenant_id"
	traceKey  contextKey = "trace_id"
)

// tenantFrom returns the authenticated tenant id, empty when auth is
// disabled.
func tenantFrom(ctx context.Context) string {
	tenant, _ := ctx.Value(tenantKey).(string)
	return tenant
}

// traceFrom returns the request's trace id.
func traceFrom(ctx context.Context) string {
	trace, _ := ctx.Value(traceKey).(string)
	return trace
}

// withTrace assigns every request a trace id, honoring an inbound
// X-Trace-ID so callers can correlate across hops.
func (s *Server) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		trace := r.Header.Get("X-Trace-ID")
		if trace == "" {
			trace = uuid.NewString()
		}
		w.Header().Set("X-Trace-ID", trace)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), traceKey, trace)))
	})
}

// withMetrics records request duration per route.
func (s *Server) withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		promRequestDuration.WithLabelValues(r.URL.Path).Observe(float64(time.Since(start).Milliseconds()))
	})
}

// withAuth validates the bearer token and attaches the tenant id. An
// empty configured secret disables authentication (local development).
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.jwtSecret == "" {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			s.writeError(w, r, http.StatusUnauthorized, types.CodeUnauthorized, "missing bearer token")
			return
		}

		tenant, err := s.validateToken(tokenString)
		if err != nil {
			s.log.Warn("", traceFrom(r.Context()), "token rejected", map[string]interface{}{
				"error": err.Error(),
			})
			s.writeError(w, r, http.StatusUnauthorized, types.CodeUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tenantKey, tenant)))
	})
}

// validateToken parses an HS256 token and extracts the tenant claim.
func (s *Server) validateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}
	tenant, _ := claims["tenant_id"].(string)
	if tenant == "" {
		return "", fmt.Errorf("token missing tenant_id claim")
	}
	return tenant, nil
}
