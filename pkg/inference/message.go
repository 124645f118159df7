package inference

import "github.com/google/jsonschema-go/jsonschema"

// Role is who a message is from, in OpenAI chat terms.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a chat request or the model's reply.
//
// An assistant message either carries Content or ToolCalls; local models
// sometimes return both, in which case the calls win. A tool message answers
// the call named by ToolCallID and Name.
type Message struct {
	Role       Role
	Content    string
	Name       string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	// ID may be empty; Ollama's OpenAI endpoint does not always set one.
	ID   string
	Name string

	// Arguments is the raw JSON text the model produced. It is not
	// guaranteed to be valid JSON.
	Arguments string
}

// Tool is a function offered to the model.
type Tool struct {
	Type     string // always "function"
	Function ToolFunction
}

// ToolFunction is the name, purpose and argument schema of a tool.
type ToolFunction struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewToolMessage answers the tool call id with content.
func NewToolMessage(id, name, content string) Message {
	return Message{Role: RoleTool, ToolCallID: id, Name: name, Content: content}
}

// NewTool offers a function named name. The schema is shared, not copied.
func NewTool(name, description string, params *jsonschema.Schema) Tool {
	return Tool{
		Type:     "function",
		Function: ToolFunction{Name: name, Description: description, Parameters: params},
	}
}
