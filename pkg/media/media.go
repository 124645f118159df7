// Package media provides the playback control surface.
//
// Control commands are fire-and-forget: they return once the player has
// accepted the command, never after the track ends.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

var (
	// ErrCommandTimeout is returned when a command outlives its bound.
	ErrCommandTimeout = errors.New("media: command timed out")

	// ErrEmptyQuery is returned by Play for a blank query.
	ErrEmptyQuery = errors.New("media: empty query")
)

// Player controls playback.
type Player interface {
	Play(ctx context.Context, query string) error
	TogglePause(ctx context.Context) error
	Stop(ctx context.Context) error
}

// State is the playback state of a Recorder.
type State string

const (
	Idle    State = "idle"
	Playing State = "playing"
	Paused  State = "paused"
)

// Status is a snapshot of a Recorder.
type Status struct {
	State   State     `json:"state"`
	Track   string    `json:"track,omitempty"`
	Since   time.Time `json:"since"`
	History []string  `json:"history,omitempty"`
}

// Recorder is an in-process player. It tracks what would be playing and
// logs every command, which is all a headless install needs.
type Recorder struct {
	mu      sync.Mutex
	state   State
	track   string
	since   time.Time
	history []string
	logger  *slog.Logger
}

// NewRecorder creates an idle recorder.
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{state: Idle, since: time.Now(), logger: logger.With("component", "media")}
}

func (r *Recorder) Play(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return ErrEmptyQuery
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Idle {
		r.logger.Info("replacing track", "track", r.track)
	}
	r.set(Playing, query)
	r.history = append(r.history, query)
	r.logger.Info("playing", "query", query)
	return nil
}

func (r *Recorder) TogglePause(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case Playing:
		r.set(Paused, r.track)
	case Paused:
		r.set(Playing, r.track)
	default:
		r.logger.Warn("toggle with nothing playing")
		return nil
	}
	r.logger.Info("toggled", "state", r.state)
	return nil
}

func (r *Recorder) Stop(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Idle {
		r.logger.Warn("already stopped")
		return nil
	}
	r.set(Idle, "")
	r.logger.Info("stopped")
	return nil
}

// Status returns a copy of the current state.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		State:   r.state,
		Track:   r.track,
		Since:   r.since,
		History: append([]string(nil), r.history...),
	}
}

func (r *Recorder) set(s State, track string) {
	r.state = s
	r.track = track
	r.since = time.Now()
}

// Bounded wraps p so no command blocks longer than timeout.
func Bounded(p Player, timeout time.Duration) Player {
	if timeout <= 0 {
		return p
	}
	return &bounded{p: p, timeout: timeout}
}

type bounded struct {
	p       Player
	timeout time.Duration
}

func (b *bounded) Play(ctx context.Context, query string) error {
	return b.do(ctx, "play", func(ctx context.Context) error { return b.p.Play(ctx, query) })
}

func (b *bounded) TogglePause(ctx context.Context) error {
	return b.do(ctx, "pause", b.p.TogglePause)
}

func (b *bounded) Stop(ctx context.Context) error {
	return b.do(ctx, "stop", b.p.Stop)
}

func (b *bounded) do(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", name, ErrCommandTimeout)
		}
		return ctx.Err()
	}
}
