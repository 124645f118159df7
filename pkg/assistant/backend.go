package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-edgeassist/internal/config"
	"github.com/teslashibe/go-edgeassist/pkg/inference"
)

// Backend is the model as the assistant uses it: chat for decisions and
// synthesis, embeddings for song identification.
type Backend struct {
	// Chat is the local model, followed by Gemini when a key is configured.
	Chat inference.Provider

	// Embed is always the local endpoint. Vectors from different embedding
	// models do not share a space, so it never falls back.
	Embed inference.Provider
}

// Close releases the providers. Embed is always part of Chat.
func (b *Backend) Close() error {
	return b.Chat.Close()
}

// NewBackend builds the providers described by cfg.
func NewBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	local, err := inference.NewClient(
		inference.WithBaseURL(cfg.Model.URL),
		inference.WithAPIKey(cfg.Model.APIKey),
		inference.WithModel(cfg.Model.Name),
		inference.WithEmbedModel(cfg.Model.EmbedModel),
		inference.WithMaxTokens(cfg.Model.MaxTokens),
		inference.WithTemperature(cfg.Model.Temperature),
		inference.WithTimeout(cfg.Model.Timeout),
		inference.WithRetry(cfg.Model.Retries, 500*time.Millisecond),
		inference.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("local model: %w", err)
	}

	if cfg.Gemini.APIKey == "" {
		return &Backend{Chat: local, Embed: local}, nil
	}

	cloud, err := inference.NewGemini(ctx,
		inference.WithAPIKey(cfg.Gemini.APIKey),
		inference.WithModel(cfg.Gemini.Model),
		inference.WithMaxTokens(cfg.Model.MaxTokens),
		inference.WithTemperature(cfg.Model.Temperature),
		inference.WithTimeout(cfg.Model.Timeout),
		inference.WithLogger(logger),
	)
	if err != nil {
		local.Close()
		return nil, fmt.Errorf("gemini: %w", err)
	}
	chain, err := inference.NewChainWithLogger(logger, local, cloud)
	if err != nil {
		local.Close()
		cloud.Close()
		return nil, err
	}
	logger.Info("cloud fallback enabled", "model", cfg.Gemini.Model)
	return &Backend{Chat: chain, Embed: local}, nil
}
