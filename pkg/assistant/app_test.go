package assistant

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/teslashibe/go-edgeassist/internal/config"
	"github.com/teslashibe/go-edgeassist/pkg/inference"
	"github.com/teslashibe/go-edgeassist/pkg/orchestrator"
	"github.com/teslashibe/go-edgeassist/pkg/retrieval"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Retrieval.DB = filepath.Join(t.TempDir(), "missing.db")
	cfg.Tools.Timeout = 5 * time.Second
	return cfg
}

func call(name, args string) inference.Message {
	return inference.Message{
		Role:      inference.RoleAssistant,
		ToolCalls: []inference.ToolCall{{ID: "call_1", Name: name, Arguments: args}},
	}
}

func newApp(t *testing.T, model *inference.Mock, input string) (*App, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	a, err := New(testConfig(t),
		WithBackend(&Backend{Chat: model, Embed: model}),
		WithIO(strings.NewReader(input), &out),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Shutdown() })
	return a, &out
}

func runApp(t *testing.T, a *App) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestConsoleTurnsOnLight(t *testing.T) {
	model := inference.NewScript(
		call("set_light", `{"status":"on"}`),
		inference.NewAssistantMessage("The light is on."),
	)
	a, out := newApp(t, model, "turn on the light\nexit\n")
	runApp(t, a)

	if !strings.Contains(out.String(), "ASSISTANT: The light is on.") {
		t.Errorf("output = %q", out.String())
	}
	if got := a.Surface().LightState(); got != "on" {
		t.Errorf("light = %q, want on", got)
	}
	if n := model.CallCount("Chat"); n != 2 {
		t.Errorf("chat calls = %d, want 2", n)
	}
}

func TestConsoleReadsLyricsFromInput(t *testing.T) {
	model := inference.NewScript(call("identify_song", `{}`))
	a, out := newApp(t, model, "what song is this\nla la la\n")
	runApp(t, a)

	got := out.String()
	if !strings.Contains(got, SingPrompt) {
		t.Errorf("missing sing prompt in %q", got)
	}
	if !strings.Contains(got, "ASSISTANT: "+retrieval.ReplyNoDatabase) {
		t.Errorf("output = %q", got)
	}
	// The lyrics line was consumed by the listener, not treated as a request.
	if n := model.CallCount("Chat"); n != 1 {
		t.Errorf("chat calls = %d, want 1", n)
	}
}

func TestConsoleCommands(t *testing.T) {
	model := inference.NewScript(inference.NewAssistantMessage("Hello there."))
	a, out := newApp(t, model, "\nhi\n/transcript\n/reset\n/transcript\n/tools\n/help\n")
	runApp(t, a)

	got := out.String()
	for _, want := range []string{
		"USER: hi",
		"ASSISTANT: Hello there.",
		"Conversation cleared.",
		"identify_song",
		"/reset",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Count(got, "USER: hi") != 1 {
		t.Errorf("transcript not cleared: %q", got)
	}
}

func TestConsoleModelFailure(t *testing.T) {
	model := inference.WithError(errors.New("connection refused"))
	a, out := newApp(t, model, "hello\nquit\n")
	runApp(t, a)

	if !strings.Contains(out.String(), orchestrator.InternalErrorReply) {
		t.Errorf("output = %q", out.String())
	}
}

func TestConsoleStopsOnCancel(t *testing.T) {
	model := inference.NewMock()
	pr, pw := io.Pipe()
	defer pw.Close()

	a, err := New(testConfig(t),
		WithBackend(&Backend{Chat: model, Embed: model}),
		WithIO(pr, io.Discard),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer a.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	pw.Close()
}

func TestAsk(t *testing.T) {
	model := inference.NewScript(
		call("get_environment_metrics", `{}`),
		inference.NewAssistantMessage("It is warm."),
	)
	a, _ := newApp(t, model, "")

	reply, err := a.Ask(context.Background(), "how warm is it")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Text != "It is warm." || reply.Path != orchestrator.PathSynthesized {
		t.Errorf("reply = %+v", reply)
	}
	if n := a.Sessions().Len(); n != 0 {
		t.Errorf("one-shot session leaked into manager: %d", n)
	}
}

func TestRunBeforeInit(t *testing.T) {
	a, err := New(testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Run(context.Background()); err == nil {
		t.Error("expected error")
	}
	if _, err := a.Ask(context.Background(), "hi"); err == nil {
		t.Error("expected error")
	}
}

func TestRunWithoutSurface(t *testing.T) {
	model := inference.NewMock()
	a, err := New(testConfig(t),
		WithBackend(&Backend{Chat: model, Embed: model}),
		WithConsole(false),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := a.Run(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Model.URL = ""
	if _, err := New(cfg); err == nil {
		t.Error("expected error")
	}
}

func TestShutdownLeavesBorrowedBackendOpen(t *testing.T) {
	model := inference.NewMock()
	a, _ := newApp(t, model, "")
	if err := a.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if n := model.CallCount("Close"); n != 0 {
		t.Errorf("Close calls = %d, want 0", n)
	}
}

func TestNewBackendLocalOnly(t *testing.T) {
	b, err := NewBackend(context.Background(), config.Default(), slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if _, ok := b.Chat.(*inference.Client); !ok {
		t.Errorf("chat = %T, want *inference.Client", b.Chat)
	}
	if b.Embed != b.Chat {
		t.Error("embed should be the local client")
	}
}
