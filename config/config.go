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

// Package config loads gateway configuration from a YAML file with
// environment-variable overrides. Environment always wins over the file
// so deployments can tune a shared base config per node.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full gateway configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Redis       RedisConfig       `yaml:"redis"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Controller  ControllerConfig  `yaml:"controller"`
	Idempotency IdempotencyConfig `yaml:"idempotency"`
	Intent      IntentConfig      `yaml:"intent"`
	Routing     RoutingConfig     `yaml:"routing"`
}

// ServerConfig covers the HTTP surface.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	JWTSecret      string   `yaml:"jwt_secret"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// RedisConfig locates the shared counter/record/session store.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// PostgresConfig locates the routing policy history database. Empty DSN
// disables the history repository.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// RateLimitConfig tunes the sliding-window admission gate.
type RateLimitConfig struct {
	Limit          int           `yaml:"limit"`
	Window         time.Duration `yaml:"window"`
	OnStoreFailure string        `yaml:"on_store_failure"` // fail_open | fail_closed
}

// SchedulerConfig tunes the dual-lane gate.
type SchedulerConfig struct {
	GlobalLimit        int64         `yaml:"global_limit"`
	SessionWaitPolicy  string        `yaml:"session_wait_policy"` // block | reject
	SessionWaitTimeout time.Duration `yaml:"session_wait_timeout"`
	GlobalWaitTimeout  time.Duration `yaml:"global_wait_timeout"`
}

// ControllerConfig tunes the reasoning loop.
type ControllerConfig struct {
	MaxIterations        int `yaml:"max_iterations"`
	TokenBudget          int `yaml:"token_budget"`
	MaxToolFailureStreak int `yaml:"max_tool_failure_streak"`
}

// IdempotencyConfig tunes record retention.
type IdempotencyConfig struct {
	Retention time.Duration `yaml:"retention"`
}

// IntentConfig tunes the fallback classifier.
type IntentConfig struct {
	MinConfidence float64 `yaml:"min_confidence"`
}

// RoutingConfig tunes policy persistence.
type RoutingConfig struct {
	PersistencePath string `yaml:"persistence_path"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"*"},
		},
		Redis: RedisConfig{URL: "redis://localhost:6379"},
		RateLimit: RateLimitConfig{
			Limit:          60,
			Window:         time.Minute,
			OnStoreFailure: "fail_open",
		},
		Scheduler: SchedulerConfig{
			GlobalLimit:        32,
			SessionWaitPolicy:  "block",
			SessionWaitTimeout: 30 * time.Second,
			GlobalWaitTimeout:  30 * time.Second,
		},
		Controller: ControllerConfig{
			MaxIterations:        10,
			TokenBudget:          50000,
			MaxToolFailureStreak: 3,
		},
		Idempotency: IdempotencyConfig{Retention: 24 * time.Hour},
		Intent:      IntentConfig{MinConfidence: 0.6},
	}
}

// Load reads the YAML file at path (skipped when empty), then applies
// environment overrides, then validates. Unknown YAML keys are rejected
// so typos fail loudly.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv layers CORRIDOR_* environment variables over the file values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("CORRIDOR_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CORRIDOR_JWT_SECRET"); v != "" {
		cfg.Server.JWTSecret = v
	}
	if v := os.Getenv("CORRIDOR_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("CORRIDOR_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("CORRIDOR_RATE_LIMIT"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.Limit = limit
		}
	}
	if v := os.Getenv("CORRIDOR_RATE_LIMIT_WINDOW"); v != "" {
		if window, err := time.ParseDuration(v); err == nil {
			cfg.RateLimit.Window = window
		}
	}
	if v := os.Getenv("CORRIDOR_RATE_LIMIT_FAILURE_POLICY"); v != "" {
		cfg.RateLimit.OnStoreFailure = v
	}
	if v := os.Getenv("CORRIDOR_SCHEDULER_GLOBAL_LIMIT"); v != "" {
		if limit, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Scheduler.GlobalLimit = limit
		}
	}
	if v := os.Getenv("CORRIDOR_SCHEDULER_WAIT_POLICY"); v != "" {
		cfg.Scheduler.SessionWaitPolicy = v
	}
	if v := os.Getenv("CORRIDOR_ROUTING_PERSISTENCE_PATH"); v != "" {
		cfg.Routing.PersistencePath = v
	}
}

// Validate rejects configurations the components would refuse at
// construction time, so startup fails before any listener opens.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	}
	if c.RateLimit.Limit <= 0 {
		return fmt.Errorf("config: rate limit must be positive, got %d", c.RateLimit.Limit)
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("config: rate limit window must be positive, got %s", c.RateLimit.Window)
	}
	switch c.RateLimit.OnStoreFailure {
	case "fail_open", "fail_closed":
	default:
		return fmt.Errorf("config: rate limit failure policy must be fail_open or fail_closed, got %q", c.RateLimit.OnStoreFailure)
	}
	if c.Scheduler.GlobalLimit <= 0 {
		return fmt.Errorf("config: scheduler global limit must be positive, got %d", c.Scheduler.GlobalLimit)
	}
	switch c.Scheduler.SessionWaitPolicy {
	case "block", "reject":
	default:
		return fmt.Errorf("config: scheduler wait policy must be block or reject, got %q", c.Scheduler.SessionWaitPolicy)
	}
	if c.Controller.MaxIterations <= 0 {
		return fmt.Errorf("config: controller max iterations must be positive, got %d", c.Controller.MaxIterations)
	}
	if c.Intent.MinConfidence < 0 || c.Intent.MinConfidence > 1 {
		return fmt.Errorf("config: intent min confidence must be in [0,1], got %f", c.Intent.MinConfidence)
	}
	return nil
}
