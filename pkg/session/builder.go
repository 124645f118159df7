package session

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-edgeassist/pkg/conversation"
	"github.com/teslashibe/go-edgeassist/pkg/orchestrator"
	"github.com/teslashibe/go-edgeassist/pkg/tools"
)

// Builder holds what every new session is made from.
type Builder struct {
	SystemPrompt string
	MaxTurns     int

	Model        orchestrator.Model
	Orchestrator orchestrator.Config

	Hardware   tools.Hardware
	Identifier tools.Identifier

	// NewPlayer returns the player owned by one session.
	NewPlayer func() tools.Player

	ToolTimeout time.Duration

	// Observer sees every turn appended to any session.
	Observer func(id string, t conversation.Turn)

	Logger *slog.Logger
}

// Build creates a session with its own transcript, player and tools.
func (b Builder) Build(id string) (*Session, error) {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session", id)

	var player tools.Player
	if b.NewPlayer != nil {
		player = b.NewPlayer()
	}

	reg, err := tools.NewRegistry(tools.Bind(tools.Surfaces{
		Hardware:   b.Hardware,
		Player:     player,
		Identifier: b.Identifier,
	}))
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	exec := tools.NewExecutor(reg, tools.WithTimeout(b.ToolTimeout), tools.WithLogger(logger))

	ocfg := b.Orchestrator
	ocfg.Tools = reg.Tools()
	ocfg.Logger = logger

	prompt := b.SystemPrompt
	if prompt == "" {
		prompt = tools.SystemPrompt()
	}
	opts := []conversation.Option{conversation.WithMaxTurns(b.MaxTurns)}
	if b.Observer != nil {
		observe := b.Observer
		opts = append(opts, conversation.WithObserver(func(t conversation.Turn) { observe(id, t) }))
	}

	now := time.Now()
	return &Session{
		id:      id,
		created: now,
		last:    now,
		state:   conversation.NewState(prompt, opts...),
		orch:    orchestrator.New(b.Model, exec, ocfg),
		player:  player,
		lock:    NewRequestLock(),
		logger:  logger.With("component", "session"),
	}, nil
}
