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

package controller

import (
	"encoding/json"
	"strings"
)

// ActionKind classifies a parsed model response.
type ActionKind int

const (
	// ActionThought means the model produced reasoning with no tool call.
	ActionThought ActionKind = iota
	// ActionToolCall means the model requested a tool execution.
	ActionToolCall
	// ActionFinalAnswer means the model declared the mission done.
	ActionFinalAnswer
)

func (k ActionKind) String() string {
	switch k {
	case ActionToolCall:
		return "tool_call"
	case ActionFinalAnswer:
		return "final_answer"
	default:
		return "thought"
	}
}

// Action is one parsed step of the reasoning loop.
type Action struct {
	Kind ActionKind
	Tool string
	Args json.RawMessage
	Text string
}

// ParseAction extracts a structured action from raw model output. Formats
// are tried in order: a FINAL ANSWER prefix, a function-call JSON object
// or array, then ACTION:/ARGS: text lines. Anything else is a thought, so
// parsing never fails.
func ParseAction(response string) Action {
	trimmed := strings.TrimSpace(response)

	if answer, ok := strings.CutPrefix(trimmed, "FINAL ANSWER:"); ok {
		return Action{Kind: ActionFinalAnswer, Text: strings.TrimSpace(answer)}
	}
	if action, ok := parseFunctionCall(trimmed); ok {
		return action
	}
	if action, ok := parseTextFormat(trimmed); ok {
		return action
	}
	return Action{Kind: ActionThought, Text: trimmed}
}

// functionCall covers both the nested provider format
// {"function":{"name":...,"arguments":"..."}} and the flat
// {"name":...,"arguments":{...}} form.
type functionCall struct {
	Function *struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func parseFunctionCall(response string) (Action, bool) {
	if !strings.HasPrefix(response, "{") && !strings.HasPrefix(response, "[") {
		return Action{}, false
	}

	raw := []byte(response)
	if strings.HasPrefix(response, "[") {
		var calls []json.RawMessage
		if err := json.Unmarshal(raw, &calls); err != nil || len(calls) == 0 {
			return Action{}, false
		}
		raw = calls[0]
	}

	var call functionCall
	if err := json.Unmarshal(raw, &call); err != nil {
		return Action{}, false
	}

	if call.Function != nil {
		if call.Function.Name == "" {
			return Action{}, false
		}
		args := json.RawMessage(call.Function.Arguments)
		if !json.Valid(args) {
			return Action{}, false
		}
		return Action{Kind: ActionToolCall, Tool: call.Function.Name, Args: args}, true
	}

	if call.Name != "" {
		args := call.Arguments
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		return Action{Kind: ActionToolCall, Tool: call.Name, Args: args}, true
	}
	return Action{}, false
}

func parseTextFormat(response string) (Action, bool) {
	var tool, args string
	for _, line := range strings.Split(response, "\n") {
		if rest, ok := strings.CutPrefix(line, "ACTION:"); ok {
			tool = strings.TrimSpace(rest)
		} else if rest, ok := strings.CutPrefix(line, "ARGS:"); ok {
			args = strings.TrimSpace(rest)
		}
	}
	if tool == "" || args == "" {
		return Action{}, false
	}
	if !json.Valid([]byte(args)) {
		return Action{}, false
	}
	return Action{Kind: ActionToolCall, Tool: tool, Args: json.RawMessage(args)}, true
}
