package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v3"

	"github.com/teslashibe/go-edgeassist/internal/log"
	"github.com/teslashibe/go-edgeassist/pkg/web"
)

func watchAction(ctx context.Context, c *cli.Command) error {
	target := c.String("url")
	if target == "" {
		target = feedURL(c.String("addr"), c.String("session"))
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", target, err)
	}
	defer ws.Close()
	log.Info("watching", "url", target)

	go func() {
		<-ctx.Done()
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		var ev web.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Warn("bad event", "error", err)
			continue
		}
		fmt.Println(formatEvent(ev))
	}
}

// feedURL turns a listen address into the local websocket URL, optionally
// narrowed to one session.
func feedURL(addr, session string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	if session != "" {
		u.RawQuery = url.Values{"session": {session}}.Encode()
	}
	return u.String()
}

func formatEvent(ev web.Event) string {
	t := ev.Turn
	text := t.Content
	switch {
	case len(t.ToolCalls) > 0:
		names := make([]string, len(t.ToolCalls))
		for i, tc := range t.ToolCalls {
			names[i] = tc.Name
		}
		text = "-> " + strings.Join(names, ", ")
	case t.Name != "":
		text = "[" + t.Name + "] " + text
	}
	return fmt.Sprintf("%s %-9s %s", ev.Session, t.Role, text)
}
