package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/teslashibe/go-edgeassist/pkg/conversation"
	"github.com/teslashibe/go-edgeassist/pkg/inference"
	"github.com/teslashibe/go-edgeassist/pkg/media"
	"github.com/teslashibe/go-edgeassist/pkg/orchestrator"
	"github.com/teslashibe/go-edgeassist/pkg/tools"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type nopHardware struct{}

func (nopHardware) SetLight(context.Context, string) string        { return "ok" }
func (nopHardware) ReadEnvironment(context.Context, string) string { return "ok" }

type nopIdentifier struct{}

func (nopIdentifier) Identify(context.Context) string { return "Music not found" }

func echoModel() *inference.Mock {
	m := inference.NewMock()
	m.ChatFunc = func(_ context.Context, req *inference.ChatRequest) (*inference.ChatResponse, error) {
		last := req.Messages[len(req.Messages)-1]
		return &inference.ChatResponse{Message: inference.NewAssistantMessage("echo: " + last.Content)}, nil
	}
	return m
}

func testBuilder(model orchestrator.Model) Builder {
	return Builder{
		SystemPrompt: "sys",
		MaxTurns:     20,
		Model:        model,
		Hardware:     nopHardware{},
		Identifier:   nopIdentifier{},
		NewPlayer:    func() tools.Player { return media.NewRecorder(nil) },
		ToolTimeout:  time.Second,
	}
}

func TestAsk(t *testing.T) {
	s, err := testBuilder(echoModel()).Build("s1")
	if err != nil {
		t.Fatal(err)
	}
	r, err := s.Ask(context.Background(), "  hello ")
	if err != nil {
		t.Fatal(err)
	}
	if r.Text != "echo: hello" {
		t.Errorf("reply = %q", r.Text)
	}
	if n := len(s.Transcript()); n != 3 {
		t.Errorf("transcript has %d turns", n)
	}

	if err := s.Reset(); err != nil {
		t.Fatal(err)
	}
	if n := len(s.Transcript()); n != 1 {
		t.Errorf("after reset %d turns", n)
	}
}

func TestAskEmpty(t *testing.T) {
	model := echoModel()
	s, _ := testBuilder(model).Build("s1")
	if _, err := s.Ask(context.Background(), " \t\n"); !errors.Is(err, ErrEmptyUtterance) {
		t.Fatalf("err = %v", err)
	}
	if model.CallCount("Chat") != 0 || len(s.Transcript()) != 1 {
		t.Error("empty utterance reached the model")
	}
}

func TestBuildRequiresSurfaces(t *testing.T) {
	b := testBuilder(echoModel())
	b.NewPlayer = nil
	if _, err := b.Build("x"); err == nil {
		t.Fatal("expected error without a player")
	}
}

func TestAskSerialized(t *testing.T) {
	var (
		mu       sync.Mutex
		inFlight int
		maxSeen  int
	)
	model := inference.NewMock()
	model.ChatFunc = func(context.Context, *inference.ChatRequest) (*inference.ChatResponse, error) {
		mu.Lock()
		inFlight++
		maxSeen = max(maxSeen, inFlight)
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return &inference.ChatResponse{Message: inference.NewAssistantMessage("ok")}, nil
	}

	s, _ := testBuilder(model).Build("s1")
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Ask(context.Background(), "hi"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("saw %d concurrent requests on one session", maxSeen)
	}
	if n := len(s.Transcript()); n != 11 {
		t.Errorf("transcript has %d turns, want 11", n)
	}
}

func TestAskBusy(t *testing.T) {
	release := make(chan struct{})
	model := inference.NewMock()
	model.ChatFunc = func(context.Context, *inference.ChatRequest) (*inference.ChatResponse, error) {
		<-release
		return &inference.ChatResponse{Message: inference.NewAssistantMessage("done")}, nil
	}
	s, _ := testBuilder(model).Build("s1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Ask(context.Background(), "first")
	}()
	for !s.Busy() {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Ask(ctx, "second"); !errors.Is(err, ErrBusy) {
		t.Errorf("err = %v", err)
	}

	close(release)
	<-done
}

func TestResetWhileBusy(t *testing.T) {
	release := make(chan struct{})
	model := inference.NewMock()
	model.ChatFunc = func(context.Context, *inference.ChatRequest) (*inference.ChatResponse, error) {
		<-release
		return &inference.ChatResponse{Message: inference.NewAssistantMessage("done")}, nil
	}
	s, _ := testBuilder(model).Build("s1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Ask(context.Background(), "first")
	}()
	for !s.Busy() {
		time.Sleep(time.Millisecond)
	}

	if err := s.Reset(); !errors.Is(err, ErrBusy) {
		t.Errorf("Reset during a request = %v, want ErrBusy", err)
	}
	close(release)
	<-done

	turns := s.Transcript()
	if len(turns) != 3 || turns[0].Role != conversation.RoleSystem || turns[1].Role != conversation.RoleUser {
		t.Fatalf("transcript = %+v", turns)
	}
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset when idle = %v", err)
	}
	if len(s.Transcript()) != 1 {
		t.Error("idle reset kept turns")
	}
}

func TestSessionsIsolated(t *testing.T) {
	m := NewManager(testBuilder(echoModel()), 0)
	defer m.Close()

	a, _ := m.Get("a")
	b, _ := m.Get("b")
	a.Ask(context.Background(), "only in a")

	if len(b.Transcript()) != 1 {
		t.Error("session b saw session a's turns")
	}
	if a.Player() == b.Player() {
		t.Error("sessions share a player")
	}
}

func TestManagerGet(t *testing.T) {
	m := NewManager(testBuilder(echoModel()), time.Minute)
	defer m.Close()

	s1, err := m.Get("kitchen")
	if err != nil {
		t.Fatal(err)
	}
	s2, _ := m.Get("kitchen")
	if s1 != s2 {
		t.Error("Get created a second session for the same id")
	}

	anon, _ := m.Get("")
	if anon.ID() == "" || anon.ID() == "kitchen" {
		t.Errorf("anonymous id = %q", anon.ID())
	}
	if m.Len() != 2 {
		t.Errorf("len = %d", m.Len())
	}
	if _, ok := m.Lookup("nope"); ok {
		t.Error("Lookup invented a session")
	}
	if !m.Delete("kitchen") || m.Delete("kitchen") {
		t.Error("Delete should succeed exactly once")
	}
	if ids := m.IDs(); len(ids) != 1 || ids[0] != anon.ID() {
		t.Errorf("ids = %v", ids)
	}
}

func TestManagerReap(t *testing.T) {
	m := NewManager(testBuilder(echoModel()), time.Minute)
	defer m.Close()

	old, _ := m.Get("old")
	fresh, _ := m.Get("fresh")
	fresh.touch()

	now := old.LastActive().Add(2 * time.Minute)
	fresh.mu.Lock()
	fresh.last = now
	fresh.mu.Unlock()

	if n := m.Reap(now); n != 1 {
		t.Fatalf("reaped %d", n)
	}
	if _, ok := m.Lookup("old"); ok {
		t.Error("idle session survived")
	}
	if _, ok := m.Lookup("fresh"); !ok {
		t.Error("active session reaped")
	}
}

func TestManagerReapSkipsBusy(t *testing.T) {
	m := NewManager(testBuilder(echoModel()), time.Minute)
	defer m.Close()

	s, _ := m.Get("busy")
	s.lock.TryLock()
	defer s.lock.Unlock()

	if n := m.Reap(time.Now().Add(time.Hour)); n != 0 {
		t.Errorf("reaped %d busy sessions", n)
	}
}

func TestManagerRunStops(t *testing.T) {
	m := NewManager(testBuilder(echoModel()), time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestManagerClose(t *testing.T) {
	m := NewManager(testBuilder(echoModel()), 0)
	m.Get("a")
	m.Close()
	if m.Len() != 0 {
		t.Error("sessions left after Close")
	}
	if _, err := m.Get("b"); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v", err)
	}
}

func TestObserver(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	b := testBuilder(echoModel())
	b.Observer = func(id string, turn conversation.Turn) {
		mu.Lock()
		seen = append(seen, id+":"+string(turn.Role))
		mu.Unlock()
	}
	s, _ := b.Build("obs")
	s.Ask(context.Background(), "hi")

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != "obs:user" || seen[1] != "obs:assistant" {
		t.Errorf("seen = %v", seen)
	}
}

func TestRequestLock(t *testing.T) {
	l := NewRequestLock()
	if !l.TryLock() || l.TryLock() {
		t.Fatal("TryLock should succeed once")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if l.LockWithContext(ctx) {
		t.Error("locked a held lock")
	}
	l.Unlock()
	l.Unlock()
	if l.Busy() {
		t.Error("lock still busy")
	}
}
