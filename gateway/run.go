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
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	"corridor/platform/config"
	"corridor/platform/idempotency"
	"corridor/platform/llm"
	"corridor/platform/ratelimit"
	"corridor/platform/routing"
	"corridor/platform/session"
	"corridor/platform/tools"
)

// RunDeps are the capabilities supplied by the deployment: the concrete
// reasoning provider and tool executor live outside this module and are
// injected by the binary.
type RunDeps struct {
	LLM   llm.Client
	Tools tools.Registry
}

// degradedClient stands in when the deployment supplies no reasoning
// provider. Policy and heuristic routed fast actions keep working;
// missions fail with REASONING_UNAVAILABLE instead of the process
// refusing to start.
func degradedClient() llm.Client {
	return llm.ClientFunc(func(context.Context, []llm.Message) (*llm.Generation, error) {
		return nil, llm.ErrUnavailable
	})
}

// Run is the service entry point: it loads configuration, dials the
// shared stores, composes the server and serves until SIGINT/SIGTERM,
// then drains in-flight requests.
func Run(deps RunDeps) {
	cfg, err := config.Load(os.Getenv("CORRIDOR_CONFIG"))
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("failed to parse Redis URL: %v", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}

	var repo routing.Repository
	if cfg.Postgres.DSN != "" {
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			log.Fatalf("failed to open Postgres: %v", err)
		}
		defer db.Close()
		repo = routing.NewPostgresRepository(db)
	}

	registry := deps.Tools
	if registry == nil {
		registry = tools.NewStaticRegistry()
	}
	client := deps.LLM
	if client == nil {
		log.Println("no reasoning client supplied, serving in degraded mode (heuristic routing only)")
		client = degradedClient()
	}

	server, err := NewServer(cfg, Deps{
		LLM:          client,
		Tools:        registry,
		Sessions:     session.NewRedisStore(rdb),
		CounterStore: ratelimit.NewRedisStore(rdb),
		Records:      idempotency.NewRedisStore(rdb, cfg.Idempotency.Retention),
		Repository:   repo,
	})
	if err != nil {
		log.Fatalf("failed to compose gateway: %v", err)
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // controller sessions can run long
	}

	go func() {
		log.Printf("corridor gateway listening on :%d", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("shutting down, draining in-flight requests")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	if err := rdb.Close(); err != nil {
		log.Printf("redis close error: %v", err)
	}
}
