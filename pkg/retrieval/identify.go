package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/teslashibe/go-edgeassist/pkg/inference"
)

// Identification replies.
const (
	ReplyNoRecording   = "Failed to record audio."
	ReplyNoTranscript  = "Could not transcribe audio."
	ReplyNoDatabase    = "Database not found. Cannot identify music."
	NotFound           = "Music not found"
	identifiedTemplate = "I identified the song as: %s (Time: %.2fs)"
	errorReplyTemplate = "An error occurred during music detection: %s"
)

const promptTemplate = `You are a music expert helper. Your task is to identify which song the following lyrics belong to.
Use the provided context which contains lyrics and their associated music names.

Context:
%s

User Input Text: %s

Based on the context, identify the song name. If the input text matches the lyrics in the context, return ONLY the Music Name.
If no match is found, return "Music not found".
`

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, req *inference.EmbedRequest) (*inference.EmbedResponse, error)
}

// Model answers the grounded identification prompt.
type Model interface {
	Chat(ctx context.Context, req *inference.ChatRequest) (*inference.ChatResponse, error)
}

// Options configures an Identifier.
type Options struct {
	// DB is the corpus path. It is opened per identification so a corpus
	// built while the assistant runs is picked up.
	DB string

	TopK        int
	EmbedModel  string
	Model       string
	Temperature float64

	Logger *slog.Logger
}

// Identifier runs listen, embed, search and answer. Every result is a
// sentence for the user; nothing is returned as an error.
type Identifier struct {
	listener Listener
	embedder Embedder
	model    Model
	opts     Options
	logger   *slog.Logger
}

// NewIdentifier creates an identifier.
func NewIdentifier(l Listener, e Embedder, m Model, opts Options) *Identifier {
	if opts.TopK < 1 {
		opts.TopK = 3
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if l == nil {
		l = Unavailable
	}
	return &Identifier{
		listener: l,
		embedder: e,
		model:    m,
		opts:     opts,
		logger:   opts.Logger.With("component", "retrieval"),
	}
}

// WithListener returns a copy that hears through l.
func (id *Identifier) WithListener(l Listener) *Identifier {
	c := *id
	if l == nil {
		l = Unavailable
	}
	c.listener = l
	return &c
}

// Identify listens for lyrics and names the song.
func (id *Identifier) Identify(ctx context.Context) string {
	sung, err := id.listener.Listen(ctx)
	if err != nil {
		id.logger.Error("listen failed", "error", err)
		return ReplyNoRecording
	}
	sung = strings.TrimSpace(sung)
	if sung == "" {
		return ReplyNoTranscript
	}

	store, err := Open(ctx, id.opts.DB)
	if err != nil {
		if errors.Is(err, ErrNoDatabase) {
			id.logger.Warn("corpus missing", "db", id.opts.DB)
			return ReplyNoDatabase
		}
		return fmt.Sprintf(errorReplyTemplate, err)
	}
	defer store.Close()

	start := time.Now()
	id.logger.Info("detecting music", "lyrics", sung)

	answer, err := id.answer(ctx, store, sung)
	if err != nil {
		id.logger.Error("identification failed", "error", err)
		return fmt.Sprintf(errorReplyTemplate, err)
	}

	msg := fmt.Sprintf(identifiedTemplate, answer, time.Since(start).Seconds())
	id.logger.Info("identified", "answer", answer, "duration", time.Since(start))
	return msg
}

func (id *Identifier) answer(ctx context.Context, store *Store, sung string) (string, error) {
	emb, err := id.embedder.Embed(ctx, &inference.EmbedRequest{Input: []string{sung}, Model: id.opts.EmbedModel})
	if err != nil {
		return "", fmt.Errorf("embed: %w", err)
	}
	if len(emb.Embeddings) == 0 {
		return "", inference.ErrEmptyResponse
	}

	matches, err := store.Search(ctx, emb.Embeddings[0], id.opts.TopK)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return NotFound, nil
	}

	resp, err := id.model.Chat(ctx, &inference.ChatRequest{
		Messages:    []inference.Message{inference.NewUserMessage(Prompt(matches, sung))},
		Model:       id.opts.Model,
		Temperature: inference.Float(id.opts.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("answer: %w", err)
	}
	answer := strings.TrimSpace(resp.Message.Content)
	if answer == "" {
		answer = NotFound
	}
	return answer, nil
}

// Prompt builds the grounding prompt for the matched chunks.
func Prompt(matches []Match, sung string) string {
	parts := make([]string, len(matches))
	for i, m := range matches {
		song := m.Song
		if song == "" {
			song = "Unknown"
		}
		parts[i] = fmt.Sprintf("Music Name: %s\nLyrics content: %s", song, m.Content)
	}
	return fmt.Sprintf(promptTemplate, strings.Join(parts, "\n\n"), sung)
}
