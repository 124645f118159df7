// Package session gives every conversation its own transcript, tools and
// player, and serializes the requests made against it.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-edgeassist/pkg/conversation"
	"github.com/teslashibe/go-edgeassist/pkg/orchestrator"
	"github.com/teslashibe/go-edgeassist/pkg/tools"
)

var (
	// ErrEmptyUtterance is returned by Ask for blank input.
	ErrEmptyUtterance = errors.New("session: empty utterance")

	// ErrBusy is returned when the context ends while another request runs,
	// and by Reset while a request is in flight.
	ErrBusy = errors.New("session: busy")

	// ErrClosed is returned by a closed Manager.
	ErrClosed = errors.New("session: manager closed")
)

// Session is one conversation. Requests against a session run one at a
// time; different sessions share nothing mutable.
type Session struct {
	id      string
	created time.Time

	state  *conversation.State
	orch   *orchestrator.Orchestrator
	player tools.Player
	lock   *RequestLock
	logger *slog.Logger

	mu   sync.Mutex
	last time.Time
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Created returns when the session was built.
func (s *Session) Created() time.Time { return s.created }

// Player returns the session's playback handle.
func (s *Session) Player() tools.Player { return s.player }

// Ask runs one request. It waits for any request already in flight.
func (s *Session) Ask(ctx context.Context, utterance string) (orchestrator.Reply, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return orchestrator.Reply{}, ErrEmptyUtterance
	}

	s.logger.Debug("lock acquiring")
	if !s.lock.LockWithContext(ctx) {
		s.logger.Warn("lock timeout")
		return orchestrator.Reply{}, fmt.Errorf("%w: %v", ErrBusy, ctx.Err())
	}
	defer s.lock.Unlock()

	s.touch()
	defer s.touch()

	return s.orch.Handle(ctx, s.state, utterance), nil
}

// Transcript returns a copy of every turn so far.
func (s *Session) Transcript() []conversation.Turn {
	return s.state.Turns()
}

// Reset drops everything but the system prompt. It does not wait for a
// running request; it fails with ErrBusy instead.
func (s *Session) Reset() error {
	if !s.lock.TryLock() {
		return ErrBusy
	}
	defer s.lock.Unlock()

	s.state.Reset()
	s.touch()
	return nil
}

// LastActive returns the time of the last request or reset.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Busy reports whether a request is running.
func (s *Session) Busy() bool {
	return s.lock.Busy()
}

// Close releases the player if it holds resources.
func (s *Session) Close() error {
	if c, ok := s.player.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Session) touch() {
	s.mu.Lock()
	s.last = time.Now()
	s.mu.Unlock()
}
