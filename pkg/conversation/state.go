package conversation

import (
	"sync"
	"time"

	"github.com/teslashibe/go-edgeassist/pkg/inference"
)

// State is the transcript of one session. The first turn is always the
// system prompt. Safe for concurrent readers; writes come from the single
// request in flight for the owning session.
type State struct {
	mu       sync.RWMutex
	turns    []Turn
	maxTurns int
	observe  func(Turn)
	now      func() time.Time
}

// Option configures a State.
type Option func(*State)

// WithMaxTurns bounds the non-system history. Zero keeps everything.
//
// The window is applied when a user turn is appended: older turns are dropped
// whole requests at a time, so the retained history always starts at a user
// turn and never opens with an orphaned tool result. The request in flight is
// never trimmed.
func WithMaxTurns(n int) Option {
	return func(s *State) { s.maxTurns = n }
}

// WithObserver registers fn to receive a copy of every appended turn.
func WithObserver(fn func(Turn)) Option {
	return func(s *State) { s.observe = fn }
}

// NewState starts a transcript with the given system prompt.
func NewState(systemPrompt string, opts ...Option) *State {
	s := &State{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	sys := System(systemPrompt)
	sys.At = s.now()
	s.turns = []Turn{sys}
	return s
}

// Append adds a turn to the end of the transcript.
func (s *State) Append(t Turn) {
	t = t.clone()
	if t.At.IsZero() {
		t.At = s.now()
	}

	s.mu.Lock()
	if t.Role == RoleUser {
		s.trimLocked()
	}
	s.turns = append(s.turns, t)
	observe := s.observe
	s.mu.Unlock()

	if observe != nil {
		observe(t.clone())
	}
}

// trimLocked makes room for one more turn under the window.
func (s *State) trimLocked() {
	if s.maxTurns <= 0 {
		return
	}
	history := s.turns[1:]
	keep := s.maxTurns - 1
	if len(history) <= keep {
		return
	}

	start := len(history) - keep
	for start < len(history) && history[start].Role != RoleUser {
		start++
	}

	kept := make([]Turn, 0, 1+len(history)-start)
	kept = append(kept, s.turns[0])
	kept = append(kept, history[start:]...)
	s.turns = kept
}

// Turns returns a copy of the transcript.
func (s *State) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	for i, t := range s.turns {
		out[i] = t.clone()
	}
	return out
}

// Len returns the number of turns including the system turn.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Last returns the most recent turn.
func (s *State) Last() Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turns[len(s.turns)-1].clone()
}

// System returns the system turn.
func (s *State) System() Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turns[0]
}

// Reset drops everything but the system turn.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = s.turns[:1:1]
}

// UnansweredResult stands in for the result of a tool call the transcript
// holds no tool turn for, such as calls at or after a terminal tool.
const UnansweredResult = "No result was recorded for this call."

// Messages returns the transcript in inference wire form. Tool turns answer
// the calls of the assistant turn before them in order; every call left
// unanswered is followed by an UnansweredResult tool message so that each
// call sent to a provider has a result. The stored transcript is unchanged.
func (s *State) Messages() []inference.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := make([]inference.Message, 0, len(s.turns))
	for i := 0; i < len(s.turns); i++ {
		t := s.turns[i]
		msgs = append(msgs, t.Message())
		if len(t.ToolCalls) == 0 {
			continue
		}
		answered := 0
		for i+1 < len(s.turns) && s.turns[i+1].Role == RoleTool {
			i++
			answered++
			msgs = append(msgs, s.turns[i].Message())
		}
		for _, c := range t.ToolCalls[min(answered, len(t.ToolCalls)):] {
			msgs = append(msgs, ToolResult(c, UnansweredResult).Message())
		}
	}
	return msgs
}
