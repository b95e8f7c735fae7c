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

// Package controller runs the reasoning/action loop for complex missions.
//
// Each iteration asks the reasoning model for the next step, parses it,
// executes any requested tool, appends the thought/action and observation
// to the session history, and persists the whole session snapshot before
// looping. Persistence after every iteration is what makes resumption
// correct: a crash loses at most the in-flight step, and Resume continues
// from the last persisted iteration without re-executing tools whose
// observations were already recorded.
//
// The caller must hold the session lane for the session id before
// invoking Run or Resume; the loop itself does not acquire scheduler
// lanes.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"corridor/platform/llm"
	"corridor/platform/session"
	"corridor/platform/shared/logger"
	"corridor/platform/shared/types"
	"corridor/platform/tools"
)

var (
	// ErrMaxIterations is returned when the loop exhausts its iteration
	// ceiling without a final answer.
	ErrMaxIterations = errors.New("maximum iterations exceeded")

	// ErrBudgetExceeded is returned when accumulated token usage crosses
	// the configured ceiling.
	ErrBudgetExceeded = errors.New("token budget exceeded")

	// ErrCancelled is returned when the caller's context is cancelled
	// mid-execution.
	ErrCancelled = errors.New("session cancelled")

	// ErrTerminal is returned when Resume is called on a completed or
	// failed session.
	ErrTerminal = errors.New("session already terminal")

	// ErrToolFailureStreak is returned when too many consecutive tool
	// executions failed.
	ErrToolFailureStreak = errors.New("consecutive tool failures exceeded limit")
)

// Config tunes the loop's termination conditions.
type Config struct {
	// MaxIterations caps reasoning iterations per mission.
	MaxIterations int
	// TokenBudget caps accumulated total tokens; zero disables the check.
	TokenBudget int
	// MaxToolFailureStreak is how many consecutive failed tool
	// executions are tolerated before the mission fails.
	MaxToolFailureStreak int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxIterations:        10,
		TokenBudget:          50000,
		MaxToolFailureStreak: 3,
	}
}

// Controller drives sessions through the reasoning/action state machine.
type Controller struct {
	client   llm.Client
	registry tools.Registry
	store    session.Store
	log      *logger.Logger
	cfg      Config
}

// New creates a controller. All collaborators are required.
func New(client llm.Client, registry tools.Registry, store session.Store, cfg Config) (*Controller, error) {
	if client == nil {
		return nil, fmt.Errorf("controller: reasoning client is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("controller: tool registry is required")
	}
	if store == nil {
		return nil, fmt.Errorf("controller: session store is required")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultConfig().MaxIterations
	}
	if cfg.MaxToolFailureStreak <= 0 {
		cfg.MaxToolFailureStreak = DefaultConfig().MaxToolFailureStreak
	}
	return &Controller{
		client:   client,
		registry: registry,
		store:    store,
		log:      logger.New("controller"),
		cfg:      cfg,
	}, nil
}

// Run executes a fresh mission session to termination. The session is
// persisted before the first iteration so a crash during iteration one is
// resumable.
func (c *Controller) Run(ctx context.Context, sess *session.Session) (*session.Session, error) {
	if err := c.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to persist new session: %w", err)
	}
	return c.runLoop(ctx, sess)
}

// Resume reloads the last persisted snapshot and continues from exactly
// that iteration. Terminal sessions are returned as-is with ErrTerminal;
// no step is re-run.
func (c *Controller) Resume(ctx context.Context, sessionID string) (*session.Session, error) {
	sess, err := c.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		return sess, ErrTerminal
	}
	sess.Status = session.StatusRunning
	return c.runLoop(ctx, sess)
}

// Cancel marks a non-terminal session failed with a cancellation code and
// persists the terminal state.
func (c *Controller) Cancel(ctx context.Context, sessionID string) (*session.Session, error) {
	sess, err := c.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		return sess, ErrTerminal
	}
	c.fail(ctx, sess, types.CodeCancelled)
	return sess, nil
}

// FastAction dispatches a single tool call directly, bypassing the loop
// and the scheduler.
func (c *Controller) FastAction(ctx context.Context, tool string, args []byte) (*tools.Output, error) {
	return c.registry.Execute(ctx, tool, args)
}

func (c *Controller) runLoop(ctx context.Context, sess *session.Session) (*session.Session, error) {
	c.log.Info(sess.TenantID, sess.ID, "starting reasoning loop", map[string]interface{}{
		"iteration": sess.Iterations,
		"history":   len(sess.History),
	})

	for sess.Iterations < c.cfg.MaxIterations {
		if ctx.Err() != nil {
			c.fail(ctx, sess, types.CodeCancelled)
			return sess, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		}
		if c.cfg.TokenBudget > 0 && sess.Usage.TotalTokens >= c.cfg.TokenBudget {
			c.fail(ctx, sess, types.CodeBudgetExceeded)
			return sess, fmt.Errorf("%w: used %d of %d tokens", ErrBudgetExceeded, sess.Usage.TotalTokens, c.cfg.TokenBudget)
		}
		if sess.ToolFailureStreak >= c.cfg.MaxToolFailureStreak {
			c.fail(ctx, sess, types.CodeToolExecution)
			return sess, fmt.Errorf("%w: %d in a row", ErrToolFailureStreak, sess.ToolFailureStreak)
		}

		gen, err := c.client.Generate(ctx, c.buildMessages(ctx, sess))
		if err != nil {
			if ctx.Err() != nil {
				c.fail(ctx, sess, types.CodeCancelled)
				return sess, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
			}
			c.fail(ctx, sess, types.CodeReasoningUnavailable)
			return sess, fmt.Errorf("%w: %v", llm.ErrUnavailable, err)
		}
		sess.Usage.Add(gen.Usage.PromptTokens, gen.Usage.CompletionTokens)

		action := ParseAction(gen.Content)
		c.log.Debug(sess.TenantID, sess.ID, "parsed model action", map[string]interface{}{
			"iteration": sess.Iterations,
			"kind":      action.Kind.String(),
			"tool":      action.Tool,
		})
		switch action.Kind {
		case ActionFinalAnswer:
			sess.Append(session.RoleFinalAnswer, action.Text)
			sess.Result = action.Text
			sess.Status = session.StatusCompleted
			sess.Iterations++
			if err := c.persist(ctx, sess); err != nil {
				return sess, err
			}
			c.log.Info(sess.TenantID, sess.ID, "mission completed", map[string]interface{}{
				"iterations": sess.Iterations,
				"tokens":     sess.Usage.TotalTokens,
			})
			return sess, nil

		case ActionThought:
			sess.Append(session.RoleThought, action.Text)

		case ActionToolCall:
			sess.Append(session.RoleAction, formatToolCall(action))
			observation := c.executeTool(ctx, sess, action)
			sess.Append(session.RoleObservation, observation)
		}

		sess.Iterations++
		if err := c.persist(ctx, sess); err != nil {
			return sess, err
		}
	}

	c.fail(ctx, sess, types.CodeMaxIterations)
	return sess, fmt.Errorf("%w: %d", ErrMaxIterations, c.cfg.MaxIterations)
}

// executeTool runs the requested tool and renders its observation text.
// Failures are fed back into the loop rather than aborting it; the streak
// counter escalates persistent failure to fatal at the top of the loop.
func (c *Controller) executeTool(ctx context.Context, sess *session.Session, action Action) string {
	output, err := c.registry.Execute(ctx, action.Tool, action.Args)
	switch {
	case err != nil:
		sess.ToolFailureStreak++
		c.log.Warn(sess.TenantID, sess.ID, "tool execution error", map[string]interface{}{
			"tool":   action.Tool,
			"error":  err.Error(),
			"streak": sess.ToolFailureStreak,
		})
		return fmt.Sprintf("Tool '%s' error: %v", action.Tool, err)
	case !output.Success:
		sess.ToolFailureStreak++
		return fmt.Sprintf("Tool '%s' failed:\n%s", action.Tool, output.Content)
	default:
		sess.ToolFailureStreak = 0
		return fmt.Sprintf("Tool '%s' succeeded:\n%s", action.Tool, output.Content)
	}
}

// fail persists the terminal state before returning so resumption
// attempts observe it.
func (c *Controller) fail(ctx context.Context, sess *session.Session, code types.ErrorCode) {
	sess.Status = session.StatusFailed
	sess.FailureCode = string(code)
	if err := c.persist(ctx, sess); err != nil {
		c.log.Error(sess.TenantID, sess.ID, "failed to persist terminal state", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (c *Controller) persist(ctx context.Context, sess *session.Session) error {
	// Persist with a background-derived context so cancellation of the
	// request cannot leave the snapshot unwritten.
	saveCtx := ctx
	if ctx.Err() != nil {
		saveCtx = context.Background()
	}
	if err := c.store.Save(saveCtx, sess); err != nil {
		return fmt.Errorf("failed to persist session %s: %w", sess.ID, err)
	}
	return nil
}

const systemPrompt = `You are an autonomous agent working toward a goal.
Respond with exactly one of:
THOUGHT: <your reasoning>
ACTION: <tool name>
ARGS: <JSON arguments>
FINAL ANSWER: <the completed result>
Available tools:
%s`

// buildMessages renders the session history into the model conversation.
// Thoughts, actions and final answers replay as assistant turns;
// observations replay as user turns, mirroring how they were produced.
func (c *Controller) buildMessages(ctx context.Context, sess *session.Session) []llm.Message {
	var toolContext strings.Builder
	if defs, err := c.registry.List(ctx); err == nil {
		for _, def := range defs {
			fmt.Fprintf(&toolContext, "- %s: %s\n", def.Name, def.Description)
		}
	}

	messages := []llm.Message{
		{Role: "system", Content: fmt.Sprintf(systemPrompt, toolContext.String())},
		{Role: "user", Content: sess.Goal},
	}
	for _, entry := range sess.History {
		switch entry.Role {
		case session.RoleObservation:
			messages = append(messages, llm.Message{Role: "user", Content: "OBSERVATION: " + entry.Content})
		default:
			messages = append(messages, llm.Message{Role: "assistant", Content: entry.Content})
		}
	}
	return messages
}

func formatToolCall(action Action) string {
	return fmt.Sprintf(`{"tool":%q,"args":%s}`, action.Tool, string(action.Args))
}
