package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

// fakeOllama serves the OpenAI-compatible routes the client uses. handle
// gets the decoded chat body and returns the assistant message and finish
// reason to reply with.
type fakeOllama struct {
	t      *testing.T
	hits   atomic.Int32
	handle func(body map[string]any) (map[string]any, string)
}

func newFakeOllama(t *testing.T, handle func(map[string]any) (map[string]any, string)) (*fakeOllama, *Client) {
	t.Helper()
	f := &fakeOllama{t: t, handle: handle}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	c, err := NewClient(WithBaseURL(srv.URL), WithAPIKey("test-key"), WithRetry(2, time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return f, c
}

func (f *fakeOllama) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.hits.Add(1)
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)

	switch r.URL.Path {
	case "/models":
		enc.Encode(map[string]any{"object": "list", "data": []any{}})

	case "/embeddings":
		enc.Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 1, "embedding": []float32{0, 1}},
				{"object": "embedding", "index": 0, "embedding": []float32{1, 0}},
			},
			"usage": map[string]int{"prompt_tokens": 3, "total_tokens": 3},
		})

	case "/chat/completions":
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			f.t.Errorf("Authorization = %q", got)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		msg, finish := f.handle(body)
		if msg == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			enc.Encode(map[string]any{"error": map[string]any{"message": finish}})
			return
		}
		enc.Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"model":   body["model"],
			"choices": []map[string]any{{"index": 0, "message": msg, "finish_reason": finish}},
			"usage":   map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})

	default:
		f.t.Errorf("unexpected path %s", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func text(s string) map[string]any { return map[string]any{"role": "assistant", "content": s} }

func TestClientPlainChat(t *testing.T) {
	_, c := newFakeOllama(t, func(body map[string]any) (map[string]any, string) {
		if body["model"] != DefaultModel {
			t.Errorf("model = %v", body["model"])
		}
		if _, ok := body["tools"]; ok {
			t.Error("tools sent although none were offered")
		}
		if _, ok := body["tool_choice"]; ok {
			t.Error("tool_choice sent without tools")
		}
		return text("Hello! How can I help?"), "stop"
	})

	resp, err := c.Chat(context.Background(), &ChatRequest{
		Messages:   []Message{NewUserMessage("Hello")},
		ToolChoice: "auto",
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Message.Content != "Hello! How can I help?" || resp.FinishReason != "stop" || resp.Usage.TotalTokens != 15 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Model != DefaultModel {
		t.Errorf("model = %q", resp.Model)
	}
}

func TestClientOffersToolsAndParsesCalls(t *testing.T) {
	_, c := newFakeOllama(t, func(body map[string]any) (map[string]any, string) {
		tools, _ := body["tools"].([]any)
		if len(tools) != 1 {
			t.Errorf("tools = %v", body["tools"])
			return text("no tools"), "stop"
		}
		fn := tools[0].(map[string]any)["function"].(map[string]any)
		status := fn["parameters"].(map[string]any)["properties"].(map[string]any)["status"].(map[string]any)
		if fn["name"] != "set_light" || len(status["enum"].([]any)) != 2 {
			t.Errorf("function = %v", fn)
		}
		if body["temperature"] != 0.2 {
			t.Errorf("temperature = %v", body["temperature"])
		}
		return map[string]any{
			"role":    "assistant",
			"content": "",
			"tool_calls": []map[string]any{{
				"id":       "call-123",
				"type":     "function",
				"function": map[string]any{"name": "set_light", "arguments": `{"status":"on"}`},
			}},
		}, "tool_calls"
	})

	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: map[string]*jsonschema.Schema{"status": {Type: "string", Enum: []any{"on", "off"}}},
		Required:   []string{"status"},
	}
	resp, err := c.Chat(context.Background(), &ChatRequest{
		Messages:    []Message{NewUserMessage("turn on the light")},
		Tools:       []Tool{NewTool("set_light", "Switch the light", schema)},
		Temperature: Float(0.2),
	})
	if err != nil {
		t.Fatal(err)
	}
	want := ToolCall{ID: "call-123", Name: "set_light", Arguments: `{"status":"on"}`}
	if len(resp.Message.ToolCalls) != 1 || resp.Message.ToolCalls[0] != want {
		t.Errorf("calls = %+v", resp.Message.ToolCalls)
	}
}

func TestClientForwardsToolTurns(t *testing.T) {
	_, c := newFakeOllama(t, func(body map[string]any) (map[string]any, string) {
		msgs, _ := body["messages"].([]any)
		if len(msgs) != 3 {
			t.Errorf("messages = %v", msgs)
			return text(""), "stop"
		}
		asst := msgs[1].(map[string]any)
		calls, _ := asst["tool_calls"].([]any)
		if len(calls) != 1 || calls[0].(map[string]any)["id"] != "call-1" {
			t.Errorf("assistant turn = %v", asst)
		}
		tool := msgs[2].(map[string]any)
		if tool["role"] != "tool" || tool["tool_call_id"] != "call-1" || tool["name"] != "set_light" {
			t.Errorf("tool turn = %v", tool)
		}
		return text("The light is now on."), "stop"
	})

	_, err := c.Chat(context.Background(), &ChatRequest{Messages: []Message{
		NewUserMessage("turn on the light"),
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call-1", Name: "set_light", Arguments: `{"status":"on"}`}}},
		NewToolMessage("call-1", "set_light", "The light has been turned on successfully."),
	}})
	if err != nil {
		t.Fatal(err)
	}
}

func TestClientEmbedKeepsInputOrder(t *testing.T) {
	_, c := newFakeOllama(t, nil)

	resp, err := c.Embed(context.Background(), &EmbedRequest{Input: []string{"hello darkness", "my old friend"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Embeddings) != 2 || resp.Embeddings[0][0] != 1 || resp.Embeddings[1][1] != 1 {
		t.Errorf("embeddings = %v", resp.Embeddings)
	}
}

func TestClientHealth(t *testing.T) {
	f, c := newFakeOllama(t, nil)
	if err := c.Health(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.hits.Load() != 1 {
		t.Errorf("hits = %d", f.hits.Load())
	}
}

func TestClientRetriesWhileModelLoads(t *testing.T) {
	var n atomic.Int32
	f, c := newFakeOllama(t, func(map[string]any) (map[string]any, string) {
		if n.Add(1) == 1 {
			return nil, "model loading"
		}
		return text("ok"), "stop"
	})

	resp, err := c.Chat(context.Background(), &ChatRequest{Messages: []Message{NewUserMessage("hi")}})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Message.Content != "ok" || f.hits.Load() != 2 {
		t.Errorf("content %q after %d hits", resp.Message.Content, f.hits.Load())
	}
}

func TestClientGivesUpAfterRetries(t *testing.T) {
	f, c := newFakeOllama(t, func(map[string]any) (map[string]any, string) { return nil, "still loading" })

	_, err := c.Chat(context.Background(), &ChatRequest{Messages: []Message{NewUserMessage("hi")}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.IsServerError() || apiErr.Provider != providerClient {
		t.Fatalf("err = %v", err)
	}
	if f.hits.Load() != 3 {
		t.Errorf("hits = %d, want 3", f.hits.Load())
	}
}

func TestClientDoesNotRetryBadKey(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "Invalid API key", "type": "invalid_request_error", "code": "invalid_api_key"},
		})
	}))
	defer srv.Close()

	c, _ := NewClient(WithBaseURL(srv.URL), WithAPIKey("bad-key"), WithRetry(3, time.Millisecond))
	defer c.Close()

	_, err := c.Chat(context.Background(), &ChatRequest{Messages: []Message{NewUserMessage("test")}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.IsUnauthorized() || apiErr.Code != "invalid_api_key" {
		t.Fatalf("err = %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("401 retried: %d attempts", hits.Load())
	}
}

func TestNewClient(t *testing.T) {
	c, err := NewClient()
	if err != nil {
		t.Fatalf("no API key should be fine for a local server: %v", err)
	}
	if c.Capabilities() != (Capabilities{Chat: true, Tools: true, Embeddings: true}) {
		t.Errorf("Capabilities = %+v", c.Capabilities())
	}
	if c.Name() != "local" {
		t.Errorf("Name = %q", c.Name())
	}
	c.Close()

	if _, err := NewClient(WithBaseURL("")); !errors.Is(err, ErrNoBaseURL) {
		t.Errorf("err = %v, want ErrNoBaseURL", err)
	}
}
