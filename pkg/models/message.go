// Package models provides the conversation and ERP domain types shared by the
// opsassist packages.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Role indicates the turn author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// OperationCall is a request from the reasoning engine to run one catalog operation.
// CallID is echoed back in the matching OperationResult.
type OperationCall struct {
	CallID string          `json:"callId"`
	Name   string          `json:"operationName"`
	Input  json.RawMessage `json:"rawInput,omitempty"`
}

// OperationResult is the settled outcome of one OperationCall.
type OperationResult struct {
	CallID  string          `json:"callId"`
	Payload json.RawMessage `json:"payload"`
	IsError bool            `json:"isError,omitempty"`
}

// Turn is one entry of a conversation. Exactly one of Text, Calls or Results is
// meaningful, depending on Role:
//
//	{"role":"user","text":"..."}
//	{"role":"assistant","content":"..."}            final or interim text
//	{"role":"assistant","content":[OperationCall]}  requested calls
//	{"role":"tool","results":[OperationResult]}
type Turn struct {
	Role    Role
	Text    string
	Calls   []OperationCall
	Results []OperationResult
}

// UserTurn builds a user turn.
func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Text: text}
}

// AssistantText builds an assistant turn carrying a textual answer.
func AssistantText(text string) Turn {
	return Turn{Role: RoleAssistant, Text: text}
}

// AssistantCalls builds an assistant turn carrying a batch of operation calls.
func AssistantCalls(calls []OperationCall) Turn {
	return Turn{Role: RoleAssistant, Calls: calls}
}

// ToolTurn builds a tool turn carrying the results of the preceding call batch.
func ToolTurn(results []OperationResult) Turn {
	return Turn{Role: RoleTool, Results: results}
}

type turnWire struct {
	Role    Role              `json:"role"`
	Text    string            `json:"text,omitempty"`
	Content json.RawMessage   `json:"content,omitempty"`
	Results []OperationResult `json:"results,omitempty"`
}

// MarshalJSON encodes the turn using the role-dependent wire shape.
func (t Turn) MarshalJSON() ([]byte, error) {
	w := turnWire{Role: t.Role}
	switch t.Role {
	case RoleUser:
		w.Text = t.Text
	case RoleAssistant:
		var err error
		if len(t.Calls) > 0 {
			w.Content, err = json.Marshal(t.Calls)
		} else {
			w.Content, err = json.Marshal(t.Text)
		}
		if err != nil {
			return nil, err
		}
	case RoleTool:
		w.Results = t.Results
		if w.Results == nil {
			w.Results = []OperationResult{}
		}
	default:
		return nil, fmt.Errorf("unknown turn role %q", t.Role)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the role-dependent wire shape.
func (t *Turn) UnmarshalJSON(data []byte) error {
	var w turnWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*t = Turn{Role: w.Role}
	switch w.Role {
	case RoleUser:
		t.Text = w.Text
		if t.Text == "" && len(w.Content) > 0 {
			// Some clients send user text under "content".
			if err := json.Unmarshal(w.Content, &t.Text); err != nil {
				return fmt.Errorf("user turn content: %w", err)
			}
		}
	case RoleAssistant:
		if len(w.Content) == 0 || string(w.Content) == "null" {
			t.Text = w.Text
			return nil
		}
		if w.Content[0] == '[' {
			if err := json.Unmarshal(w.Content, &t.Calls); err != nil {
				return fmt.Errorf("assistant turn calls: %w", err)
			}
			return nil
		}
		if err := json.Unmarshal(w.Content, &t.Text); err != nil {
			return fmt.Errorf("assistant turn content: %w", err)
		}
	case RoleTool:
		t.Results = w.Results
	case "":
		return errors.New("turn role is required")
	default:
		return fmt.Errorf("unknown turn role %q", w.Role)
	}
	return nil
}

// LoopState is the state of a conversation loop.
type LoopState string

const (
	StateAwaitingModel  LoopState = "AWAITING_MODEL"
	StateExecutingTools LoopState = "EXECUTING_TOOLS"
	StateDone           LoopState = "DONE"
	StateAbortedLimit   LoopState = "ABORTED_LIMIT"
)

// Terminal reports whether no further transitions are possible.
func (s LoopState) Terminal() bool {
	return s == StateDone || s == StateAbortedLimit
}
