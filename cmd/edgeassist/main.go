// edgeassist is a local voice assistant for small edge devices: a tool-calling
// model switches a light, reads a sensor, drives a music player and names
// songs from sung lyrics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/teslashibe/go-edgeassist/internal/config"
	"github.com/teslashibe/go-edgeassist/internal/log"
)

const version = "0.3.0"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "edgeassist: %v\n", err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "edgeassist",
		Usage:   "local tool-calling voice assistant",
		Version: version,
		Flags:   config.Flags(),
		Before:  setupLogging,
		Action:  runAction,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "start the console and, with --web, the web console",
				Action: runAction,
			},
			{
				Name:      "ask",
				Usage:     "answer a single request and exit",
				ArgsUsage: "<text>",
				Action:    askAction,
			},
			{
				Name:   "tools",
				Usage:  "print the tool catalog as JSON",
				Action: toolsAction,
			},
			{
				Name:      "ingest",
				Usage:     "embed a directory of lyrics files into the songs database",
				ArgsUsage: "<dir>",
				Action:    ingestAction,
			},
			{
				Name:   "songs",
				Usage:  "list the songs in the songs database",
				Action: songsAction,
			},
			{
				Name:  "watch",
				Usage: "tail the turn feed of a running web console",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "url", Usage: "websocket URL (defaults to the local --addr)"},
					&cli.StringFlag{Name: "session", Usage: "only show turns of this session"},
				},
				Action: watchAction,
			},
		},
	}
}

func setupLogging(ctx context.Context, c *cli.Command) (context.Context, error) {
	log.Setup(log.Options{
		Level:  c.String("log-level"),
		Format: c.String("log-format"),
	})
	return ctx, nil
}
