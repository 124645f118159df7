// Package hub fans published messages out to websocket watchers. A single
// goroutine owns the watcher set; watchers may follow one topic or all.
package hub

import "time"

// Frame selects the websocket frame a message is written as.
type Frame int

const (
	JSONMessage   Frame = iota // text frame
	BinaryMessage              // binary frame
)

// Message is one published payload. Topic is matched against each
// watcher's subscription; an empty Topic reaches only watchers of
// everything.
type Message struct {
	Type  Frame
	Topic string
	Data  []byte
}

// NewJSONMessage wraps pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps raw bytes.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// On returns a copy of m addressed to topic.
func (m Message) On(topic string) Message {
	m.Topic = topic
	return m
}

// wants reports whether a watcher subscribed to topic receives m.
func (m Message) wants(topic string) bool {
	return topic == "" || topic == m.Topic
}

// Conn is the slice of a websocket connection a Client drives. The fiber
// and gorilla connections both satisfy it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}
