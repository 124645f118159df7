package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/teslashibe/go-edgeassist/internal/config"
	"github.com/teslashibe/go-edgeassist/internal/log"
	"github.com/teslashibe/go-edgeassist/pkg/assistant"
	"github.com/teslashibe/go-edgeassist/pkg/retrieval"
	"github.com/teslashibe/go-edgeassist/pkg/tools"
)

func runAction(ctx context.Context, c *cli.Command) error {
	cfg, err := config.FromCommand(c)
	if err != nil {
		return err
	}
	fmt.Print(banner())

	app, err := assistant.New(cfg, assistant.WithLogger(log.L()))
	if err != nil {
		return err
	}
	if err := app.Init(ctx); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer app.Shutdown()

	return app.Run(ctx)
}

func askAction(ctx context.Context, c *cli.Command) error {
	text := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if text == "" {
		return errors.New("ask: nothing to ask")
	}
	cfg, err := config.FromCommand(c)
	if err != nil {
		return err
	}

	app, err := assistant.New(cfg, assistant.WithLogger(log.L()), assistant.WithConsole(false))
	if err != nil {
		return err
	}
	if err := app.Init(ctx); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer app.Shutdown()

	reply, err := app.Ask(ctx, text)
	if err != nil {
		return err
	}
	log.Debug("reply", "path", reply.Path, "duration", reply.Duration)
	fmt.Println(reply.Text)
	return nil
}

type toolJSON struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
	Terminal    bool   `json:"terminal,omitempty"`
}

func toolsAction(ctx context.Context, c *cli.Command) error {
	defs := tools.Definitions()
	out := make([]toolJSON, len(defs))
	for i, d := range defs {
		out[i] = toolJSON{Name: d.Name, Description: d.Description, Parameters: d.Parameters, Terminal: d.Terminal}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func ingestAction(ctx context.Context, c *cli.Command) error {
	dir := c.Args().First()
	if dir == "" {
		return errors.New("ingest: lyrics directory required")
	}
	cfg, err := config.FromCommand(c)
	if err != nil {
		return err
	}

	backend, err := assistant.NewBackend(ctx, cfg, log.L())
	if err != nil {
		return err
	}
	defer backend.Close()

	store, err := retrieval.Create(ctx, cfg.Retrieval.DB)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := retrieval.Ingest(ctx, store, backend.Embed, cfg.Model.EmbedModel, dir)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	log.Info("ingested", "db", cfg.Retrieval.DB, "songs", stats.Songs, "chunks", stats.Chunks)
	return nil
}

func songsAction(ctx context.Context, c *cli.Command) error {
	cfg, err := config.FromCommand(c)
	if err != nil {
		return err
	}
	store, err := retrieval.Open(ctx, cfg.Retrieval.DB)
	if err != nil {
		return err
	}
	defer store.Close()

	songs, err := store.Songs(ctx)
	if err != nil {
		return err
	}
	for _, s := range songs {
		fmt.Println(s)
	}
	return nil
}
