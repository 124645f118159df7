// Package conversation holds the transcript of one assistant session.
//
// A State is an ordered list of turns whose first element is always the
// system prompt. Turns are values; State hands out copies so a turn cannot
// change once appended.
package conversation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-edgeassist/pkg/inference"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the four transcript roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	// ID is the provider's call identifier, echoed back on the tool turn.
	ID string `json:"id,omitempty"`

	// Name is the tool's wire name.
	Name string `json:"name"`

	// Arguments is the raw JSON object the model produced.
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Args decodes the arguments into a map. Empty arguments decode to an empty map.
func (c ToolCall) Args() (map[string]any, error) {
	args := map[string]any{}
	if len(c.Arguments) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(c.Arguments, &args); err != nil {
		return nil, fmt.Errorf("decode arguments for %s: %w", c.Name, err)
	}
	return args, nil
}

// Turn is one message in the transcript.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls is set on assistant turns that requested tools.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID and Name are set on tool turns.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`

	At time.Time `json:"at"`
}

// System returns a system turn.
func System(content string) Turn {
	return Turn{Role: RoleSystem, Content: content}
}

// User returns a user turn.
func User(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// Assistant returns a plain assistant turn.
func Assistant(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// ToolRequest returns an assistant turn carrying tool calls.
func ToolRequest(content string, calls []ToolCall) Turn {
	return Turn{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolResult returns a tool turn answering call.
func ToolResult(call ToolCall, content string) Turn {
	return Turn{Role: RoleTool, Content: content, ToolCallID: call.ID, Name: call.Name}
}

func (t Turn) clone() Turn {
	if t.ToolCalls == nil {
		return t
	}
	calls := make([]ToolCall, len(t.ToolCalls))
	for i, c := range t.ToolCalls {
		calls[i] = c
		calls[i].Arguments = append(json.RawMessage(nil), c.Arguments...)
	}
	t.ToolCalls = calls
	return t
}

// Message converts the turn to the inference wire type.
func (t Turn) Message() inference.Message {
	msg := inference.Message{
		Role:       inference.Role(t.Role),
		Content:    t.Content,
		ToolCallID: t.ToolCallID,
		Name:       t.Name,
	}
	for _, c := range t.ToolCalls {
		args := string(c.Arguments)
		if args == "" {
			args = "{}"
		}
		msg.ToolCalls = append(msg.ToolCalls, inference.ToolCall{ID: c.ID, Name: c.Name, Arguments: args})
	}
	return msg
}

// FromToolCalls converts provider tool calls. Arguments that are not valid
// JSON are kept as a JSON string so the turn stays encodable.
func FromToolCalls(calls []inference.ToolCall) []ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]ToolCall, len(calls))
	for i, c := range calls {
		args := json.RawMessage(c.Arguments)
		if c.Arguments != "" && !json.Valid(args) {
			args, _ = json.Marshal(c.Arguments)
		}
		out[i] = ToolCall{ID: c.ID, Name: c.Name, Arguments: args}
	}
	return out
}
