package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Kind classifies an execution outcome.
type Kind int

const (
	// OK means the capability ran and returned text.
	OK Kind = iota

	// NotFound means the model asked for a tool that does not exist.
	NotFound

	// Failure means argument decoding, validation or the capability failed.
	Failure
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case NotFound:
		return "not_found"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// Outcome is the result of one tool call. Content is what enters the transcript.
type Outcome struct {
	Tool     string
	Kind     Kind
	Content  string
	Terminal bool
	Err      error
	Duration time.Duration
}

func (o Outcome) String() string {
	return o.Content
}

// ErrTimeout is reported when a capability outlives the executor timeout.
var ErrTimeout = errors.New("tools: timed out")

// Executor runs tool calls against a Registry. Failures never escape as
// errors; they come back as textual outcomes the model can react to.
type Executor struct {
	registry *Registry
	timeout  time.Duration
	logger   *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithTimeout bounds each capability invocation. Zero means no bound.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = d }
}

// WithLogger sets the executor's logger.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor creates an executor over r.
func NewExecutor(r *Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{registry: r, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "tools.executor")
	return e
}

// Registry returns the registry the executor resolves against.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute resolves name, validates args and invokes the capability.
func (e *Executor) Execute(ctx context.Context, name string, args json.RawMessage) Outcome {
	start := time.Now()

	def, capability, ok := e.registry.Resolve(name)
	if !ok {
		e.logger.Error("tool not found", "tool", name)
		return Outcome{
			Tool:     name,
			Kind:     NotFound,
			Content:  fmt.Sprintf("Error: Tool %s implementation missing.", name),
			Duration: time.Since(start),
		}
	}

	out := Outcome{Tool: name, Terminal: def.Terminal}

	args = normalize(args)
	if err := validate(def, args); err != nil {
		out.Kind = Failure
		out.Err = err
		out.Content = fmt.Sprintf("Error: invalid arguments for %s: %v", name, err)
		out.Duration = time.Since(start)
		e.logger.Warn("tool arguments rejected", "tool", name, "args", string(args), "error", err)
		return out
	}

	content, err := e.invoke(ctx, capability, args)
	out.Duration = time.Since(start)
	if err != nil {
		out.Kind = Failure
		out.Err = err
		if errors.Is(err, ErrBadArguments) {
			out.Content = fmt.Sprintf("Error: invalid arguments for %s: %v", name, err)
		} else {
			out.Content = fmt.Sprintf("Error: %s failed: %v", name, err)
		}
		e.logger.Warn("tool failed", "tool", name, "error", err, "duration", out.Duration)
		return out
	}

	out.Kind = OK
	out.Content = content
	e.logger.Info("tool executed", "tool", name, "args", string(args), "duration", out.Duration)
	return out
}

// invoke runs the capability on its own goroutine so a capability that
// ignores its context cannot hold the request past the timeout.
func (e *Executor) invoke(ctx context.Context, c Capability, args json.RawMessage) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	type result struct {
		content string
		err     error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		content, err := c.Invoke(ctx, args)
		done <- result{content, err}
	}()

	select {
	case r := <-done:
		return r.content, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", ctx.Err()
	}
}

// normalize maps absent or null arguments to an empty object.
func normalize(args json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("{}")
	}
	return trimmed
}

func validate(def Definition, args json.RawMessage) error {
	var m map[string]any
	if err := json.Unmarshal(args, &m); err != nil {
		return fmt.Errorf("%w: %v", ErrBadArguments, err)
	}
	if m == nil {
		m = map[string]any{}
	}
	if err := def.validate(m); err != nil {
		return fmt.Errorf("%w: %v", ErrBadArguments, err)
	}
	return nil
}
