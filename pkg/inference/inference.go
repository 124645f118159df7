// Package inference talks to tool-calling chat models.
//
// Client speaks the OpenAI chat completions protocol, which is what Ollama
// serves on /v1 and what the assistant uses on the device. Gemini is the
// optional cloud model. Chain puts them behind one Provider, local first.
//
//	client, _ := inference.NewClient(
//	    inference.WithBaseURL("http://localhost:11434/v1"),
//	    inference.WithModel("llama3.2"),
//	)
//	resp, _ := client.Chat(ctx, &inference.ChatRequest{
//	    Messages: []inference.Message{inference.NewUserMessage("turn on the light")},
//	    Tools:    registry.Tools(),
//	})
//	for _, call := range resp.Message.ToolCalls {
//	    // run call.Name with call.Arguments
//	}
package inference

import "context"

// Provider is a chat and embedding backend.
type Provider interface {
	// Chat must not offer tools to the model when req.Tools is empty.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	Embed(ctx context.Context, req *EmbedRequest) (*EmbedResponse, error)
	Capabilities() Capabilities

	// Health checks that the endpoint is reachable and the key accepted.
	Health(ctx context.Context) error
	Close() error
}

// Capabilities says what a provider can do. A Chain uses it to skip
// members that cannot serve a request.
type Capabilities struct {
	Chat       bool
	Tools      bool
	Embeddings bool
}

// ChatRequest is one chat completion call. Zero values mean "use the
// provider default".
type ChatRequest struct {
	Messages []Message
	Model    string

	MaxTokens   int
	Temperature *float64
	Stop        []string

	// Tools are offered to the model. Empty means a plain completion; the
	// orchestrator relies on this for its synthesis call.
	Tools []Tool

	// ToolChoice is "auto", "none" or "required". Ignored without Tools.
	ToolChoice string
}

// ChatResponse is the model's reply.
type ChatResponse struct {
	Message      Message
	FinishReason string
	Usage        Usage
	Model        string
	LatencyMs    int64
}

// EmbedRequest asks for one vector per input.
type EmbedRequest struct {
	Input []string
	Model string
}

// EmbedResponse holds vectors in input order.
type EmbedResponse struct {
	Embeddings [][]float32
	Usage      Usage
	LatencyMs  int64
}

// Usage is the token accounting reported by the endpoint, when it reports any.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Float returns &v, for Temperature.
func Float(v float64) *float64 {
	return &v
}
