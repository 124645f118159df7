package inference

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"
)

func TestNewGeminiRequiresKey(t *testing.T) {
	_, err := NewGemini(context.Background())
	if !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("Expected ErrNoAPIKey, got %v", err)
	}
}

func TestConvertMessages(t *testing.T) {
	system, contents := convertMessages([]Message{
		NewSystemMessage("You are a local assistant."),
		NewUserMessage("turn on the light"),
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "set_light", Arguments: `{"status":"on"}`}}},
		{Role: RoleTool, ToolCallID: "c1", Content: "The light has been turned on successfully."},
		NewAssistantMessage("Done."),
	})

	if system == nil || len(system.Parts) != 1 || system.Parts[0].Text != "You are a local assistant." {
		t.Fatalf("system instruction not extracted: %+v", system)
	}
	if len(contents) != 4 {
		t.Fatalf("Expected 4 contents, got %d", len(contents))
	}

	call := contents[1]
	if call.Role != string(genai.RoleModel) {
		t.Errorf("Expected model role for tool call, got %s", call.Role)
	}
	if fc := call.Parts[0].FunctionCall; fc == nil || fc.Name != "set_light" || fc.Args["status"] != "on" {
		t.Errorf("function call not mapped: %+v", call.Parts[0])
	}

	result := contents[2].Parts[0].FunctionResponse
	if result == nil || result.Name != "set_light" {
		t.Fatalf("function response should resolve the call name: %+v", contents[2].Parts[0])
	}
	if result.Response["output"] != "The light has been turned on successfully." {
		t.Errorf("Unexpected function response: %v", result.Response)
	}
}
