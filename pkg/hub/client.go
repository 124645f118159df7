package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

// Watchers never send anything but control frames, so the read side only
// needs room for a close reason.
const (
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
	pingEvery    = idleTimeout * 9 / 10
	readLimit    = 4 << 10
	queueSize    = 256
)

// Client is one watcher connection.
type Client struct {
	hub   *Hub
	conn  Conn
	topic string
	send  chan Message
}

// NewClient registers a watcher of topic with h; an empty topic follows
// every message. It returns nil once h has stopped.
func NewClient(h *Hub, conn Conn, topic string) *Client {
	c := &Client{hub: h, conn: conn, topic: topic, send: make(chan Message, queueSize)}
	select {
	case h.register <- c:
		return c
	case <-h.done:
		return nil
	}
}

// Topic is the watcher's subscription.
func (c *Client) Topic() string { return c.topic }

// Run delivers queued messages in the background and blocks until the
// peer goes away.
func (c *Client) Run() {
	go c.deliver()
	c.receive()
}

// receive keeps the read deadline moving on pongs and returns on the first
// read error, which is how disconnects show up.
func (c *Client) receive() {
	defer c.leave()

	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(idleTimeout)) }
	c.conn.SetReadLimit(readLimit)
	extend("")
	c.conn.SetPongHandler(extend)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) leave() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
	c.conn.Close()
}

// deliver is the connection's only writer. A closed queue means the hub
// dropped us; say goodbye with a close frame.
func (c *Client) deliver() {
	ping := time.NewTicker(pingEvery)
	defer ping.Stop()
	defer c.conn.Close()

	for {
		var err error
		select {
		case msg, open := <-c.send:
			if !open {
				c.write(websocket.CloseMessage, nil)
				return
			}
			err = c.write(frameOf(msg.Type), msg.Data)
		case <-ping.C:
			err = c.write(websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}

func (c *Client) write(frame int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(frame, data)
}

func frameOf(f Frame) int {
	if f == BinaryMessage {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}
