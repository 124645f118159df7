package web

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-edgeassist/pkg/conversation"
	"github.com/teslashibe/go-edgeassist/pkg/hub"
	"github.com/teslashibe/go-edgeassist/pkg/orchestrator"
	"github.com/teslashibe/go-edgeassist/pkg/session"
	"github.com/teslashibe/go-edgeassist/pkg/tools"
)

// Status is the /api/status body.
type Status struct {
	Status   string  `json:"status"`
	Model    string  `json:"model"`
	Backend  string  `json:"backend"`
	Sessions int     `json:"sessions"`
	Clients  int     `json:"clients"`
	Tools    int     `json:"tools"`
	Uptime   float64 `json:"uptime_seconds"`
}

// handleStatus reports liveness and the model backend's health.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	st := Status{
		Status:   "ok",
		Model:    s.opts.Model,
		Backend:  "unchecked",
		Sessions: s.sessions.Len(),
		Clients:  s.hub.ClientCount(),
		Tools:    len(tools.IDs()),
		Uptime:   time.Since(s.started).Seconds(),
	}
	if s.opts.Health != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()
		if err := s.opts.Health(ctx); err != nil {
			st.Status = "degraded"
			st.Backend = err.Error()
		} else {
			st.Backend = "ok"
		}
	}
	return c.JSON(st)
}

// ToolInfo describes an available tool.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
	Terminal    bool   `json:"terminal,omitempty"`
}

// handleListTools returns the catalog as advertised to the model.
func (s *Server) handleListTools(c *fiber.Ctx) error {
	defs := tools.Definitions()
	out := make([]ToolInfo, len(defs))
	for i, d := range defs {
		out[i] = ToolInfo{Name: d.Name, Description: d.Description, Parameters: d.Parameters, Terminal: d.Terminal}
	}
	return c.JSON(out)
}

// AskRequest is the /api/ask body. An empty session starts a new one.
type AskRequest struct {
	Session string `json:"session"`
	Text    string `json:"text"`
}

// ToolResult summarizes one executed tool in an AskResponse.
type ToolResult struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Content  string `json:"content"`
	Terminal bool   `json:"terminal,omitempty"`
}

// AskResponse is the /api/ask reply.
type AskResponse struct {
	Session    string            `json:"session"`
	Text       string            `json:"text"`
	Path       orchestrator.Path `json:"path"`
	Tools      []ToolResult      `json:"tools,omitempty"`
	DurationMS int64             `json:"duration_ms"`
}

func (s *Server) handleAsk(c *fiber.Ctx) error {
	var req AskRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "text is required")
	}

	sess, err := s.sessions.Get(req.Session)
	if err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}

	ctx := c.UserContext()
	if s.opts.AskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.AskTimeout)
		defer cancel()
	}

	reply, err := sess.Ask(ctx, req.Text)
	switch {
	case errors.Is(err, session.ErrEmptyUtterance):
		return fiber.NewError(fiber.StatusBadRequest, "text is required")
	case errors.Is(err, session.ErrBusy):
		return fiber.NewError(fiber.StatusConflict, "session is busy")
	case err != nil:
		return err
	}

	resp := AskResponse{
		Session:    sess.ID(),
		Text:       reply.Text,
		Path:       reply.Path,
		DurationMS: reply.Duration.Milliseconds(),
	}
	for _, o := range reply.Outcomes {
		resp.Tools = append(resp.Tools, ToolResult{Name: o.Tool, Kind: o.Kind.String(), Content: o.Content, Terminal: o.Terminal})
	}
	return c.JSON(resp)
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"sessions": s.sessions.IDs()})
}

// Transcript is the /api/sessions/:id/transcript body.
type Transcript struct {
	Session string              `json:"session"`
	Turns   []conversation.Turn `json:"turns"`
}

func (s *Server) handleTranscript(c *fiber.Ctx) error {
	sess, ok := s.sessions.Lookup(c.Params("id"))
	if !ok {
		return fiber.ErrNotFound
	}
	return c.JSON(Transcript{Session: sess.ID(), Turns: sess.Transcript()})
}

func (s *Server) handleReset(c *fiber.Ctx) error {
	sess, ok := s.sessions.Lookup(c.Params("id"))
	if !ok {
		return fiber.ErrNotFound
	}
	if err := sess.Reset(); err != nil {
		return fiber.NewError(fiber.StatusConflict, "session is busy")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleDeleteSession(c *fiber.Ctx) error {
	if !s.sessions.Delete(c.Params("id")) {
		return fiber.ErrNotFound
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleWS streams turn events until the client goes away. ?session=<id>
// narrows the feed to one session.
func (s *Server) handleWS(c *websocket.Conn) {
	client := hub.NewClient(s.hub, c, c.Query("session"))
	if client == nil {
		return
	}
	client.Run()
}
