package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ai "github.com/sashabaranov/go-openai"
)

const providerClient = "local"

// Client talks to any OpenAI-compatible endpoint. On the device that is
// Ollama or a llama.cpp server; nothing here is Ollama specific.
type Client struct {
	api    *ai.Client
	config *Config
	logger *slog.Logger
}

// NewClient builds a client from DefaultConfig and opts.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, WrapError(providerClient, err)
	}

	wire := ai.DefaultConfig(cfg.APIKey)
	wire.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	wire.HTTPClient = cfg.HTTPClient

	return &Client{
		api:    ai.NewClientWithConfig(wire),
		config: cfg,
		logger: cfg.Logger.With("component", "inference.client"),
	}, nil
}

func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	began := time.Now()
	wireReq := c.chatRequest(req)

	var out ai.ChatCompletionResponse
	err := c.retry(ctx, "chat", func(ctx context.Context) (err error) {
		out, err = c.api.CreateChatCompletion(ctx, wireReq)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, WrapError(providerClient, ErrEmptyResponse)
	}

	first := out.Choices[0]
	return &ChatResponse{
		Message: Message{
			Role:      RoleAssistant,
			Content:   first.Message.Content,
			ToolCalls: fromWireCalls(first.Message.ToolCalls),
		},
		FinishReason: string(first.FinishReason),
		Usage: Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		},
		Model:     out.Model,
		LatencyMs: time.Since(began).Milliseconds(),
	}, nil
}

func (c *Client) Embed(ctx context.Context, req *EmbedRequest) (*EmbedResponse, error) {
	began := time.Now()
	wireReq := ai.EmbeddingRequest{
		Input: req.Input,
		Model: ai.EmbeddingModel(or(req.Model, c.config.EmbedModel)),
	}

	var out ai.EmbeddingResponse
	err := c.retry(ctx, "embed", func(ctx context.Context) (err error) {
		out, err = c.api.CreateEmbeddings(ctx, wireReq)
		return err
	})
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(out.Data))
	for _, d := range out.Data {
		if d.Index >= 0 && d.Index < len(vectors) {
			vectors[d.Index] = d.Embedding
		}
	}
	return &EmbedResponse{
		Embeddings: vectors,
		Usage:      Usage{PromptTokens: out.Usage.PromptTokens, TotalTokens: out.Usage.TotalTokens},
		LatencyMs:  time.Since(began).Milliseconds(),
	}, nil
}

// Name identifies the client in chain logs.
func (c *Client) Name() string { return providerClient }

func (c *Client) Capabilities() Capabilities {
	return Capabilities{Chat: true, Tools: true, Embeddings: true}
}

// Health lists models; any answer means the server is up.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("health check: %w", c.classify(err))
	}
	return nil
}

func (c *Client) Close() error {
	c.config.HTTPClient.CloseIdleConnections()
	return nil
}

// chatRequest fills request gaps from the client config and converts the
// result to the wire type. Tool choice is only sent alongside tools.
func (c *Client) chatRequest(req *ChatRequest) ai.ChatCompletionRequest {
	out := ai.ChatCompletionRequest{
		Model:     or(req.Model, c.config.Model),
		Messages:  toWireMessages(req.Messages),
		Tools:     toWireTools(req.Tools),
		Stop:      req.Stop,
		MaxTokens: req.MaxTokens,
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = c.config.MaxTokens
	}
	temp := c.config.Temperature
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	out.Temperature = float32(temp)
	if req.ToolChoice != "" && len(out.Tools) > 0 {
		out.ToolChoice = req.ToolChoice
	}
	return out
}

// retry gives every attempt its own timeout and backs off linearly
// between attempts. Errors the server will repeat are returned at once.
func (c *Client) retry(ctx context.Context, op string, call func(context.Context) error) error {
	var err error
	for n := 0; ; n++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		raw := call(attemptCtx)
		cancel()
		if raw == nil {
			return nil
		}
		err = c.classify(raw)

		if n >= c.config.MaxRetries || ctx.Err() != nil || !retryable(err) {
			return err
		}
		c.logger.Warn("request failed, retrying", "op", op, "attempt", n+1, "error", raw)

		select {
		case <-ctx.Done():
			return WrapError(providerClient, ctx.Err())
		case <-time.After(c.config.RetryDelay * time.Duration(n+1)):
		}
	}
}

// retryable treats anything that is not a definite API answer, such as a
// refused connection, as worth another try.
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	return true
}

// classify turns go-openai errors into APIError.
func (c *Client) classify(err error) error {
	var (
		apiErr *ai.APIError
		reqErr *ai.RequestError
	)
	switch {
	case errors.As(err, &apiErr):
		out := &APIError{Provider: providerClient, StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
		if apiErr.Code != nil {
			out.Code = fmt.Sprint(apiErr.Code)
		}
		return out
	case errors.As(err, &reqErr):
		return &APIError{Provider: providerClient, StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}
	return WrapError(providerClient, err)
}

func toWireMessages(msgs []Message) []ai.ChatCompletionMessage {
	out := make([]ai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		out[i] = ai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, call := range m.ToolCalls {
			out[i].ToolCalls = append(out[i].ToolCalls, ai.ToolCall{
				ID:       call.ID,
				Type:     ai.ToolTypeFunction,
				Function: ai.FunctionCall{Name: call.Name, Arguments: call.Arguments},
			})
		}
	}
	return out
}

// toWireTools returns nil for no tools so the field is omitted.
func toWireTools(tools []Tool) []ai.Tool {
	var out []ai.Tool
	for _, t := range tools {
		out = append(out, ai.Tool{
			Type: ai.ToolTypeFunction,
			Function: &ai.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		})
	}
	return out
}

func fromWireCalls(calls []ai.ToolCall) []ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]ToolCall, len(calls))
	for i, call := range calls {
		out[i] = ToolCall{ID: call.ID, Name: call.Function.Name, Arguments: call.Function.Arguments}
	}
	return out
}

func or(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

var _ Provider = (*Client)(nil)
