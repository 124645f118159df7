package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Hub routes published messages to the watchers subscribed to them.
type Hub struct {
	name   string
	logger *slog.Logger

	inbox      chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once

	// watchers is written only by Run; mu lets ClientCount read it.
	mu       sync.RWMutex
	watchers map[*Client]struct{}
}

// New creates a hub named name. Nothing is delivered until Run starts.
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("component", "hub", "hub", name),
		inbox:      make(chan Message, queueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		watchers:   make(map[*Client]struct{}),
	}
}

// Run routes messages until ctx is done, then closes every watcher's
// queue so their connections say goodbye.
func (h *Hub) Run(ctx context.Context) {
	defer h.stopOnce.Do(func() { close(h.done) })

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.watchers {
				h.drop(c)
			}
			h.mu.Unlock()
			h.logger.Debug("hub stopped")
			return

		case c := <-h.register:
			h.mu.Lock()
			h.watchers[c] = struct{}{}
			n := len(h.watchers)
			h.mu.Unlock()
			h.logger.Info("watcher joined", "topic", c.topic, "watchers", n)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.watchers[c]; ok {
				h.drop(c)
			}
			n := len(h.watchers)
			h.mu.Unlock()
			h.logger.Info("watcher left", "watchers", n)

		case msg := <-h.inbox:
			h.route(msg)
		}
	}
}

// route hands msg to every interested watcher. One whose queue is full is
// too slow to keep and gets disconnected.
func (h *Hub) route(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.watchers {
		if !msg.wants(c.topic) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.drop(c)
			h.logger.Warn("dropped slow watcher", "topic", c.topic)
		}
	}
}

// drop must be called with mu held.
func (h *Hub) drop(c *Client) {
	delete(h.watchers, c)
	close(c.send)
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Publish queues msg without blocking. A full queue loses the message.
func (h *Hub) Publish(msg Message) {
	select {
	case h.inbox <- msg:
	default:
		h.logger.Warn("publish queue full, message lost", "topic", msg.Topic)
	}
}

// PublishJSON encodes v and publishes it on topic.
func (h *Hub) PublishJSON(topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Publish(NewJSONMessage(data).On(topic))
	return nil
}

// ClientCount returns the number of connected watchers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers)
}
