package retrieval

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrNoMicrophone is returned by listeners that cannot capture audio.
var ErrNoMicrophone = errors.New("retrieval: no audio input on this surface")

// Listener captures what the user sings and returns it as text.
type Listener interface {
	Listen(ctx context.Context) (string, error)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context) (string, error)

func (f ListenerFunc) Listen(ctx context.Context) (string, error) { return f(ctx) }

// Unavailable is the listener for surfaces without a microphone.
var Unavailable Listener = ListenerFunc(func(context.Context) (string, error) {
	return "", ErrNoMicrophone
})

// Static always hears text.
func Static(text string) Listener {
	return ListenerFunc(func(context.Context) (string, error) { return text, nil })
}

// LineListener prompts on w and reads one line from r. It stands in for
// capture and transcription on a terminal.
type LineListener struct {
	Prompt string

	mu sync.Mutex
	r  *bufio.Reader
	w  io.Writer
}

// NewLineListener creates a listener that shares r with the caller's loop.
func NewLineListener(r *bufio.Reader, w io.Writer) *LineListener {
	return &LineListener{
		Prompt: "Please sing the song you want to identify: ",
		r:      r,
		w:      w,
	}
}

// Listen blocks on the reader; the context is only checked before the
// prompt is printed.
func (l *LineListener) Listen(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := fmt.Fprint(l.w, l.Prompt); err != nil {
		return "", err
	}
	s, err := l.r.ReadString('\n')
	if err == io.EOF && s != "" {
		err = nil
	}
	return strings.TrimSpace(s), err
}
