package assistant

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/teslashibe/go-edgeassist/pkg/conversation"
	"github.com/teslashibe/go-edgeassist/pkg/session"
	"github.com/teslashibe/go-edgeassist/pkg/tools"
)

// SingPrompt is printed before the console reads sung lyrics.
const SingPrompt = "Please sing the song you want to identify: "

// Console is the terminal surface: one line in, one reply out. It stands in
// for the capture, transcription and speech stages of a device.
//
// The console also serves as the identifier's listener, so lyrics are read
// from the same input stream as requests.
type Console struct {
	out    io.Writer
	lines  <-chan string
	sess   *session.Session
	logger *slog.Logger
}

// newConsole starts pumping lines from in. The pump stops at EOF or when
// ctx is done.
func newConsole(ctx context.Context, in io.Reader, out io.Writer, logger *slog.Logger) *Console {
	return &Console{
		out:    out,
		lines:  pump(ctx, in),
		logger: logger.With("component", "console"),
	}
}

func pump(ctx context.Context, in io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case ch <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// Listen prompts for lyrics and returns the next input line.
func (c *Console) Listen(ctx context.Context) (string, error) {
	fmt.Fprint(c.out, SingPrompt)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	}
}

// Run reads requests until EOF, "exit" or "quit", or until ctx is done.
func (c *Console) Run(ctx context.Context) error {
	fmt.Fprintln(c.out, "Type a request, /help for commands, exit to quit.")
	for {
		fmt.Fprint(c.out, "> ")

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out)
			return nil
		case l, ok := <-c.lines:
			if !ok {
				fmt.Fprintln(c.out)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "/help":
			fmt.Fprintln(c.out, "/reset       forget the conversation")
			fmt.Fprintln(c.out, "/transcript  print the conversation so far")
			fmt.Fprintln(c.out, "/tools       list the tools the assistant can call")
			fmt.Fprintln(c.out, "exit         quit")
			continue
		case "/reset":
			if err := c.sess.Reset(); err != nil {
				fmt.Fprintln(c.out, "Still working on the last request.")
				continue
			}
			fmt.Fprintln(c.out, "Conversation cleared.")
			continue
		case "/transcript":
			c.printTranscript()
			continue
		case "/tools":
			for _, d := range tools.Definitions() {
				fmt.Fprintf(c.out, "%-24s %s\n", d.Name, d.Description)
			}
			continue
		}

		reply, err := c.sess.Ask(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("request failed", "error", err)
			continue
		}
		c.logger.Debug("reply", "path", reply.Path, "duration", reply.Duration)
		fmt.Fprintf(c.out, "ASSISTANT: %s\n\n", reply.Text)
	}
}

func (c *Console) printTranscript() {
	for _, t := range c.sess.Transcript() {
		switch t.Role {
		case conversation.RoleSystem:
			continue
		case conversation.RoleTool:
			fmt.Fprintf(c.out, "  [%s] %s\n", t.Name, t.Content)
		default:
			text := t.Content
			if len(t.ToolCalls) > 0 {
				calls := make([]string, len(t.ToolCalls))
				for i, tc := range t.ToolCalls {
					calls[i] = tc.Name + string(compact(tc.Arguments))
				}
				text = "calls " + strings.Join(calls, ", ")
			}
			fmt.Fprintf(c.out, "%s: %s\n", strings.ToUpper(string(t.Role)), text)
		}
	}
}

func compact(raw json.RawMessage) json.RawMessage {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}
