package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

const providerGemini = "gemini"

// Gemini is the cloud fallback behind the local model in a Chain. Tool
// calls map onto Gemini function calls.
type Gemini struct {
	client *genai.Client
	config *Config
	logger *slog.Logger
}

// NewGemini needs an API key; the model defaults to gemini-2.0-flash.
func NewGemini(ctx context.Context, opts ...Option) (*Gemini, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = "https://generativelanguage.googleapis.com"
	cfg.Model = "gemini-2.0-flash"
	cfg.EmbedModel = "text-embedding-004"
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, WrapError(providerGemini, ErrNoAPIKey)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	})
	if err != nil {
		return nil, WrapError(providerGemini, fmt.Errorf("create client: %w", err))
	}

	return &Gemini{
		client: client,
		config: cfg,
		logger: cfg.Logger.With("component", "inference.gemini"),
	}, nil
}

func (g *Gemini) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" || !strings.HasPrefix(model, "gemini") {
		model = g.config.Model
	}

	system, contents := convertMessages(req.Messages)

	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: system,
		StopSequences:     req.Stop,
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = g.config.MaxTokens
	}
	if maxTokens > 0 {
		genCfg.MaxOutputTokens = int32(maxTokens)
	}

	temp := g.config.Temperature
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	genCfg.Temperature = genai.Ptr(float32(temp))

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, len(req.Tools))
		for i, t := range req.Tools {
			decls[i] = &genai.FunctionDeclaration{
				Name:                 t.Function.Name,
				Description:          t.Function.Description,
				ParametersJsonSchema: t.Function.Parameters,
			}
		}
		genCfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, genCfg)
	if err != nil {
		return nil, WrapError(providerGemini, err)
	}
	if len(resp.Candidates) == 0 {
		return nil, WrapError(providerGemini, ErrEmptyResponse)
	}

	msg := Message{Role: RoleAssistant, Content: resp.Text()}
	for _, fc := range resp.FunctionCalls() {
		args, err := json.Marshal(fc.Args)
		if err != nil {
			return nil, WrapError(providerGemini, fmt.Errorf("encode args for %s: %w", fc.Name, err))
		}
		id := fc.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{ID: id, Name: fc.Name, Arguments: string(args)})
	}

	out := &ChatResponse{
		Message:      msg,
		FinishReason: string(resp.Candidates[0].FinishReason),
		Model:        model,
		LatencyMs:    time.Since(start).Milliseconds(),
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// Embed generates embeddings using Gemini's embedding model.
func (g *Gemini) Embed(ctx context.Context, req *EmbedRequest) (*EmbedResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" || !strings.Contains(model, "embedding") {
		model = g.config.EmbedModel
	}

	contents := make([]*genai.Content, len(req.Input))
	for i, text := range req.Input {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	resp, err := g.client.Models.EmbedContent(ctx, model, contents, nil)
	if err != nil {
		return nil, WrapError(providerGemini, err)
	}

	embeddings := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		embeddings[i] = e.Values
	}
	return &EmbedResponse{
		Embeddings: embeddings,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

// Name identifies the provider in chain logs.
func (g *Gemini) Name() string { return providerGemini }

// Capabilities returns what Gemini supports.
func (g *Gemini) Capabilities() Capabilities {
	return Capabilities{
		Chat:       true,
		Tools:      true,
		Embeddings: true,
	}
}

// Health checks Gemini API connectivity.
func (g *Gemini) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()
	if _, err := g.client.Models.Get(ctx, g.config.Model, nil); err != nil {
		return WrapError(providerGemini, fmt.Errorf("health check: %w", err))
	}
	return nil
}

func (g *Gemini) Close() error {
	return nil
}

// convertMessages splits the system prompt out and maps the remaining turns to
// Gemini contents. Tool results become function responses keyed by the
// preceding call's name.
func convertMessages(msgs []Message) (*genai.Content, []*genai.Content) {
	var system *genai.Content
	contents := make([]*genai.Content, 0, len(msgs))
	callNames := make(map[string]string)

	for _, msg := range msgs {
		switch msg.Role {
		case RoleSystem:
			system = genai.NewContentFromText(msg.Content, genai.RoleUser)

		case RoleAssistant:
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.NewPartFromText(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var args map[string]any
				if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
					args = map[string]any{}
				}
				callNames[tc.ID] = tc.Name
				parts = append(parts, genai.NewPartFromFunctionCall(tc.Name, args))
			}
			if len(parts) > 0 {
				contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
			}

		case RoleTool:
			name := msg.Name
			if name == "" {
				name = callNames[msg.ToolCallID]
			}
			part := genai.NewPartFromFunctionResponse(name, map[string]any{"output": msg.Content})
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))

		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}

	return system, contents
}

var _ Provider = (*Gemini)(nil)
