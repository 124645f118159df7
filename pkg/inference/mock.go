package inference

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

// MockDim is the size of the vectors the default Mock embedder returns.
const MockDim = 16

// Mock is a scriptable Provider for tests. Every call is recorded.
type Mock struct {
	ChatFunc   func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	EmbedFunc  func(ctx context.Context, req *EmbedRequest) (*EmbedResponse, error)
	HealthFunc func(ctx context.Context) error
	CloseFunc  func() error

	// CapabilitiesOverride replaces the capabilities derived from which
	// funcs are set.
	CapabilitiesOverride *Capabilities

	mu    sync.Mutex
	calls []MockCall
}

// MockCall is one recorded invocation.
type MockCall struct {
	Method string
	Time   time.Time

	// Chat is a copy of the request, set for Chat calls only.
	Chat *ChatRequest
}

// NewMock returns a mock that answers every chat with a fixed assistant
// message and embeds text by hashing its words.
func NewMock() *Mock {
	return &Mock{
		ChatFunc: func(context.Context, *ChatRequest) (*ChatResponse, error) {
			return &ChatResponse{
				Message:      NewAssistantMessage("Mock response"),
				FinishReason: "stop",
				Usage:        Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
			}, nil
		},
		EmbedFunc: func(_ context.Context, req *EmbedRequest) (*EmbedResponse, error) {
			out := &EmbedResponse{Embeddings: make([][]float32, len(req.Input))}
			for i, text := range req.Input {
				out.Embeddings[i] = hashEmbed(text)
			}
			return out, nil
		},
		HealthFunc: func(context.Context) error { return nil },
	}
}

// hashEmbed buckets bytes of text into MockDim slots. Equal text gives
// equal vectors; that is all tests need.
func hashEmbed(text string) []float32 {
	v := make([]float32, MockDim)
	h := fnv.New32a()
	for i := 0; i < len(text); i++ {
		h.Reset()
		h.Write([]byte{text[i]})
		v[h.Sum32()%MockDim]++
	}
	return v
}

// NewScript returns a mock whose Chat replays replies in order and fails
// once they run out.
func NewScript(replies ...Message) *Mock {
	m := NewMock()
	var (
		mu   sync.Mutex
		next int
	)
	m.ChatFunc = func(context.Context, *ChatRequest) (*ChatResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(replies) {
			return nil, WrapError("mock", fmt.Errorf("script exhausted after %d replies", len(replies)))
		}
		msg := replies[next]
		next++
		finish := "stop"
		if len(msg.ToolCalls) > 0 {
			finish = "tool_calls"
		}
		return &ChatResponse{Message: msg, FinishReason: finish}, nil
	}
	return m
}

// WithError returns a mock whose Chat, Embed and Health all fail with err.
func WithError(err error) *Mock {
	return &Mock{
		ChatFunc:   func(context.Context, *ChatRequest) (*ChatResponse, error) { return nil, err },
		EmbedFunc:  func(context.Context, *EmbedRequest) (*EmbedResponse, error) { return nil, err },
		HealthFunc: func(context.Context) error { return err },
	}
}

func (m *Mock) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	snap := *req
	snap.Messages = append([]Message(nil), req.Messages...)
	snap.Tools = append([]Tool(nil), req.Tools...)
	m.record(MockCall{Method: "Chat", Chat: &snap})
	if m.ChatFunc == nil {
		return nil, WrapError("mock", ErrProviderUnavailable)
	}
	return m.ChatFunc(ctx, req)
}

func (m *Mock) Embed(ctx context.Context, req *EmbedRequest) (*EmbedResponse, error) {
	m.record(MockCall{Method: "Embed"})
	if m.EmbedFunc == nil {
		return nil, WrapError("mock", ErrEmbeddingsNotSupported)
	}
	return m.EmbedFunc(ctx, req)
}

func (m *Mock) Capabilities() Capabilities {
	if m.CapabilitiesOverride != nil {
		return *m.CapabilitiesOverride
	}
	return Capabilities{Chat: m.ChatFunc != nil, Tools: true, Embeddings: m.EmbedFunc != nil}
}

func (m *Mock) Health(ctx context.Context) error {
	m.record(MockCall{Method: "Health"})
	if m.HealthFunc == nil {
		return nil
	}
	return m.HealthFunc(ctx)
}

func (m *Mock) Close() error {
	m.record(MockCall{Method: "Close"})
	if m.CloseFunc == nil {
		return nil
	}
	return m.CloseFunc()
}

func (m *Mock) record(c MockCall) {
	c.Time = time.Now()
	m.mu.Lock()
	m.calls = append(m.calls, c)
	m.mu.Unlock()
}

// Calls returns every recorded call, oldest first.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// ChatRequests returns the request snapshots seen by Chat.
func (m *Mock) ChatRequests() []*ChatRequest {
	var out []*ChatRequest
	for _, c := range m.Calls() {
		if c.Chat != nil {
			out = append(out, c.Chat)
		}
	}
	return out
}

// CallCount counts calls to method.
func (m *Mock) CallCount(method string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

// LastCall returns the most recent call, or nil.
func (m *Mock) LastCall() *MockCall {
	calls := m.Calls()
	if len(calls) == 0 {
		return nil
	}
	return &calls[len(calls)-1]
}

// Reset forgets recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}

var _ Provider = (*Mock)(nil)
