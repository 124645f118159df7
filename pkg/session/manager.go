package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager owns the live sessions and expires idle ones.
type Manager struct {
	builder Builder
	ttl     time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a manager. A ttl of zero keeps sessions forever.
func NewManager(b Builder, ttl time.Duration) *Manager {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		builder:  b,
		ttl:      ttl,
		logger:   logger.With("component", "sessions"),
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for id, creating it when missing. An empty id
// creates a session with a fresh identifier.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if id == "" {
		id = uuid.NewString()
	}
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}

	s, err := m.builder.Build(id)
	if err != nil {
		return nil, err
	}
	m.sessions[id] = s
	m.logger.Info("session created", "session", id, "active", len(m.sessions))
	return s, nil
}

// Lookup returns an existing session.
func (m *Manager) Lookup(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete closes and forgets a session.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		m.close(s)
		m.logger.Info("session deleted", "session", id)
	}
	return ok
}

// IDs returns the live session IDs in sorted order.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Reap expires sessions idle since before now minus the TTL. Sessions with
// a request in flight are kept.
func (m *Manager) Reap(now time.Time) int {
	if m.ttl <= 0 {
		return 0
	}
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.Busy() || now.Sub(s.LastActive()) <= m.ttl {
			continue
		}
		delete(m.sessions, id)
		expired = append(expired, s)
	}
	m.mu.Unlock()

	for _, s := range expired {
		m.close(s)
		m.logger.Info("session expired", "session", s.ID())
	}
	return len(expired)
}

// Run reaps on an interval until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	if m.ttl <= 0 {
		<-ctx.Done()
		return nil
	}
	interval := max(m.ttl/2, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			m.Reap(now)
		}
	}
}

// Close closes every session. Later calls to Get fail.
func (m *Manager) Close() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.closed = true
	m.mu.Unlock()

	for _, s := range sessions {
		m.close(s)
	}
	return nil
}

func (m *Manager) close(s *Session) {
	if err := s.Close(); err != nil {
		m.logger.Warn("session close failed", "session", s.ID(), "error", err)
	}
}
