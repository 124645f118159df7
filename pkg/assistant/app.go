// Package assistant wires the edge assistant together: model backend,
// hardware, player, song identification, sessions and the surfaces that
// feed them.
package assistant

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-edgeassist/internal/config"
	"github.com/teslashibe/go-edgeassist/pkg/hardware"
	"github.com/teslashibe/go-edgeassist/pkg/hub"
	"github.com/teslashibe/go-edgeassist/pkg/inference"
	"github.com/teslashibe/go-edgeassist/pkg/media"
	"github.com/teslashibe/go-edgeassist/pkg/orchestrator"
	"github.com/teslashibe/go-edgeassist/pkg/retrieval"
	"github.com/teslashibe/go-edgeassist/pkg/safety"
	"github.com/teslashibe/go-edgeassist/pkg/session"
	"github.com/teslashibe/go-edgeassist/pkg/tools"
	"github.com/teslashibe/go-edgeassist/pkg/web"
)

// ConsoleSession is the session ID used by the terminal.
const ConsoleSession = "console"

// App owns every long-lived component and their lifecycle.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	in  io.Reader
	out io.Writer

	// Console enables the terminal surface in Run.
	console bool

	backend    *Backend
	ownBackend bool

	surface    *hardware.Surface
	identifier *retrieval.Identifier
	hub        *hub.Hub
	builder    session.Builder
	sessions   *session.Manager
	web        *web.Server
}

// Option configures an App.
type Option func(*App)

// WithBackend uses b instead of building providers from the config.
// The caller keeps ownership of b.
func WithBackend(b *Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithIO replaces stdin and stdout.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(a *App) {
		a.in = in
		a.out = out
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithConsole turns the terminal surface on or off.
func WithConsole(on bool) Option {
	return func(a *App) { a.console = on }
}

// New creates an App. Call Init before Run.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{
		cfg:     cfg,
		in:      os.Stdin,
		out:     os.Stdout,
		console: true,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a, nil
}

// Init builds the components. Nothing is started.
func (a *App) Init(ctx context.Context) error {
	if a.backend == nil {
		b, err := NewBackend(ctx, a.cfg, a.logger)
		if err != nil {
			return err
		}
		a.backend = b
		a.ownBackend = true
	}

	a.surface = hardware.NewSurface(&hardware.SimLight{}, hardware.NewSimSensor(), a.logger)

	a.identifier = retrieval.NewIdentifier(retrieval.Unavailable, a.backend.Embed, a.backend.Chat, retrieval.Options{
		DB:          a.cfg.Retrieval.DB,
		TopK:        a.cfg.Retrieval.TopK,
		EmbedModel:  a.cfg.Model.EmbedModel,
		Model:       a.cfg.Retrieval.Model,
		Temperature: a.cfg.Retrieval.Temperature,
		Logger:      a.logger,
	})

	a.builder = session.Builder{
		SystemPrompt: a.cfg.SystemPrompt,
		MaxTurns:     a.cfg.History.MaxTurns,
		Model:        a.backend.Chat,
		Orchestrator: orchestrator.Config{
			Model:       a.cfg.Model.Name,
			Temperature: inference.Float(a.cfg.Model.Temperature),
			MaxTokens:   a.cfg.Model.MaxTokens,
			Policy:      safety.NewBrace(a.cfg.Safety.Markers...),
		},
		Hardware:    a.surface,
		Identifier:  a.identifier,
		NewPlayer:   a.newPlayer,
		ToolTimeout: a.cfg.Tools.Timeout,
		Logger:      a.logger,
	}

	if a.cfg.Web.Enabled {
		a.hub = hub.New("turns", a.logger)
		a.builder.Observer = web.Publisher(a.hub)
	}
	a.sessions = session.NewManager(a.builder, a.cfg.Session.TTL)

	if a.cfg.Web.Enabled {
		a.web = web.NewServer(a.sessions, a.hub, web.Options{
			Addr:       a.cfg.Web.Addr,
			Model:      a.cfg.Model.Name,
			Health:     a.backend.Chat.Health,
			AskTimeout: 2*a.cfg.Model.Timeout + a.cfg.Tools.Timeout,
			Logger:     a.logger,
		})
	}

	a.logger.Info("assistant ready",
		"model", a.cfg.Model.Name,
		"tools", len(tools.IDs()),
		"web", a.cfg.Web.Enabled,
	)
	a.logger.Debug("config", a.cfg.Redacted()...)
	return nil
}

func (a *App) newPlayer() tools.Player {
	return media.Bounded(media.NewRecorder(a.logger), a.cfg.Player.CommandTimeout)
}

// Sessions returns the session manager. Valid after Init.
func (a *App) Sessions() *session.Manager { return a.sessions }

// Surface returns the hardware surface. Valid after Init.
func (a *App) Surface() *hardware.Surface { return a.surface }

// Run starts every enabled surface and blocks until ctx is done. When the
// console is the only surface, leaving it ends Run.
func (a *App) Run(ctx context.Context) error {
	if a.sessions == nil {
		return errors.New("assistant: Run called before Init")
	}
	if !a.console && a.web == nil {
		return errors.New("assistant: no surface enabled")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.sessions.Run(ctx) })

	if a.web != nil {
		g.Go(func() error { return a.web.Run(ctx) })
	}

	if a.console {
		c, err := a.newConsole(ctx)
		if err != nil {
			return err
		}
		defer c.sess.Close()
		g.Go(func() error {
			err := c.Run(ctx)
			if a.web == nil {
				cancel()
			}
			return err
		})
	}

	return g.Wait()
}

// newConsole builds the terminal session. It hears sung lyrics through the
// console itself.
func (a *App) newConsole(ctx context.Context) (*Console, error) {
	c := newConsole(ctx, a.in, a.out, a.logger)
	b := a.builder
	b.Identifier = a.identifier.WithListener(c)
	sess, err := b.Build(ConsoleSession)
	if err != nil {
		return nil, err
	}
	c.sess = sess
	return c, nil
}

// Ask runs a single request in a fresh session and closes it. Lyrics for
// song identification are read from the app's input.
func (a *App) Ask(ctx context.Context, utterance string) (orchestrator.Reply, error) {
	if a.sessions == nil {
		return orchestrator.Reply{}, errors.New("assistant: Ask called before Init")
	}
	b := a.builder
	b.Identifier = a.identifier.WithListener(retrieval.NewLineListener(bufio.NewReader(a.in), a.out))
	sess, err := b.Build("oneshot")
	if err != nil {
		return orchestrator.Reply{}, err
	}
	defer sess.Close()
	return sess.Ask(ctx, utterance)
}

// Shutdown closes every session and the model backend.
func (a *App) Shutdown() error {
	var errs []error
	if a.sessions != nil {
		errs = append(errs, a.sessions.Close())
	}
	if a.backend != nil && a.ownBackend {
		if err := a.backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close backend: %w", err))
		}
	}
	return errors.Join(errs...)
}
