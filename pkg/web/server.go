// Package web serves the assistant over HTTP: a small REST API for asking
// questions and reading transcripts, and a websocket feed of every turn.
package web

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-edgeassist/pkg/conversation"
	"github.com/teslashibe/go-edgeassist/pkg/hub"
	"github.com/teslashibe/go-edgeassist/pkg/session"
)

// Event is what websocket clients receive for every appended turn.
type Event struct {
	Type    string            `json:"type"`
	Session string            `json:"session"`
	Turn    conversation.Turn `json:"turn"`
}

// Publisher returns a session observer that publishes turns on h under
// the session id.
func Publisher(h *hub.Hub) func(id string, t conversation.Turn) {
	return func(id string, t conversation.Turn) {
		if t.Role == conversation.RoleSystem {
			return
		}
		h.PublishJSON(id, Event{Type: "turn", Session: id, Turn: t})
	}
}

// Options configures a Server.
type Options struct {
	Addr string

	// Model names the configured model in /api/status.
	Model string

	// Health checks the model backend for /api/status. Optional.
	Health func(ctx context.Context) error

	// AskTimeout bounds one /api/ask request. Zero means no bound.
	AskTimeout time.Duration

	Logger *slog.Logger
}

// Server is the web surface.
type Server struct {
	app      *fiber.App
	opts     Options
	sessions *session.Manager
	hub      *hub.Hub
	logger   *slog.Logger
	started  time.Time
}

// NewServer creates the server and its routes. The hub should be the one
// the session builder publishes to.
func NewServer(sessions *session.Manager, h *hub.Hub, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		opts:     opts,
		sessions: sessions,
		hub:      h,
		logger:   opts.Logger.With("component", "web"),
		started:  time.Now(),
	}

	app := fiber.New(fiber.Config{
		AppName:               "edgeassist",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/tools", s.handleListTools)
	api.Post("/ask", s.handleAsk)
	api.Get("/sessions", s.handleListSessions)
	api.Get("/sessions/:id/transcript", s.handleTranscript)
	api.Post("/sessions/:id/reset", s.handleReset)
	api.Delete("/sessions/:id", s.handleDeleteSession)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.handleWS))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is done, then shuts down gracefully. The hub is
// run alongside and stops with it.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.Run(ctx)

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("web console listening", "addr", s.opts.Addr)
		errc <- s.app.Listen(s.opts.Addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
