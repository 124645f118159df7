package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-edgeassist/pkg/conversation"
	"github.com/teslashibe/go-edgeassist/pkg/hub"
	"github.com/teslashibe/go-edgeassist/pkg/inference"
	"github.com/teslashibe/go-edgeassist/pkg/media"
	"github.com/teslashibe/go-edgeassist/pkg/orchestrator"
	"github.com/teslashibe/go-edgeassist/pkg/session"
	"github.com/teslashibe/go-edgeassist/pkg/tools"
)

type quietHardware struct{}

func (quietHardware) SetLight(_ context.Context, status string) string {
	return "The light has been turned " + status + " successfully."
}

func (quietHardware) ReadEnvironment(context.Context, string) string {
	return "Temperature is 20.0°C and Humidity is 50.0%."
}

type quietIdentifier struct{}

func (quietIdentifier) Identify(context.Context) string { return "Failed to record audio." }

func newTestServer(t *testing.T, model orchestrator.Model, health func(context.Context) error) (*Server, *session.Manager) {
	t.Helper()
	h := hub.New("test", nil)
	m := session.NewManager(session.Builder{
		SystemPrompt: "sys",
		Model:        model,
		Hardware:     quietHardware{},
		Identifier:   quietIdentifier{},
		NewPlayer:    func() tools.Player { return media.NewRecorder(nil) },
		Observer:     Publisher(h),
	}, 0)
	t.Cleanup(func() { m.Close() })
	return NewServer(m, h, Options{Model: "llama3.2", Health: health}), m
}

func do(t *testing.T, s *Server, method, path, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer(t, inference.NewMock(), func(context.Context) error { return errors.New("ollama down") })
	code, body := do(t, s, http.MethodGet, "/api/status", "")
	if code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	var st Status
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatal(err)
	}
	if st.Status != "degraded" || st.Backend != "ollama down" || st.Model != "llama3.2" || st.Tools != 6 {
		t.Errorf("status = %+v", st)
	}
}

func TestListTools(t *testing.T) {
	s, _ := newTestServer(t, inference.NewMock(), nil)
	code, body := do(t, s, http.MethodGet, "/api/tools", "")
	if code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	var list []struct {
		Name       string `json:"name"`
		Terminal   bool   `json:"terminal"`
		Parameters struct {
			Type       string                     `json:"type"`
			Properties map[string]json.RawMessage `json:"properties"`
		} `json:"parameters"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 6 || list[0].Name != "set_light" || !list[5].Terminal {
		t.Fatalf("tools = %s", body)
	}
	if list[0].Parameters.Type != "object" || !strings.Contains(string(list[0].Parameters.Properties["status"]), `"on"`) {
		t.Errorf("set_light parameters = %s", body)
	}
}

func TestAskFlow(t *testing.T) {
	model := inference.NewScript(
		inference.Message{Role: inference.RoleAssistant, ToolCalls: []inference.ToolCall{{ID: "1", Name: "set_light", Arguments: `{"status":"on"}`}}},
		inference.NewAssistantMessage("Done, the light is on."),
	)
	s, m := newTestServer(t, model, nil)

	code, body := do(t, s, http.MethodPost, "/api/ask", `{"session":"den","text":"turn on the light"}`)
	if code != http.StatusOK {
		t.Fatalf("code = %d body = %s", code, body)
	}
	var resp AskResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Session != "den" || resp.Text != "Done, the light is on." || resp.Path != orchestrator.PathSynthesized {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.Tools) != 1 || resp.Tools[0].Kind != "ok" {
		t.Errorf("tools = %+v", resp.Tools)
	}

	code, body = do(t, s, http.MethodGet, "/api/sessions/den/transcript", "")
	if code != http.StatusOK {
		t.Fatalf("transcript code = %d", code)
	}
	var tr Transcript
	if err := json.Unmarshal(body, &tr); err != nil {
		t.Fatal(err)
	}
	if len(tr.Turns) != 5 || tr.Turns[3].Role != conversation.RoleTool {
		t.Errorf("transcript = %s", body)
	}

	code, _ = do(t, s, http.MethodPost, "/api/sessions/den/reset", "")
	if code != http.StatusNoContent {
		t.Errorf("reset code = %d", code)
	}
	sess, _ := m.Lookup("den")
	if len(sess.Transcript()) != 1 {
		t.Error("reset kept turns")
	}

	if code, _ := do(t, s, http.MethodDelete, "/api/sessions/den", ""); code != http.StatusNoContent {
		t.Errorf("delete code = %d", code)
	}
	if code, _ := do(t, s, http.MethodDelete, "/api/sessions/den", ""); code != http.StatusNotFound {
		t.Errorf("second delete code = %d", code)
	}
}

func TestAskNewSession(t *testing.T) {
	s, m := newTestServer(t, inference.NewScript(inference.NewAssistantMessage("hi")), nil)
	code, body := do(t, s, http.MethodPost, "/api/ask", `{"text":"hello"}`)
	if code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	var resp AskResponse
	json.Unmarshal(body, &resp)
	if resp.Session == "" {
		t.Fatal("no session id returned")
	}
	if _, ok := m.Lookup(resp.Session); !ok {
		t.Error("session not registered")
	}
}

func TestAskErrors(t *testing.T) {
	s, m := newTestServer(t, inference.NewMock(), nil)

	if code, _ := do(t, s, http.MethodPost, "/api/ask", `{"session":"a","text":"   "}`); code != http.StatusBadRequest {
		t.Errorf("blank text code = %d", code)
	}
	if code, _ := do(t, s, http.MethodPost, "/api/ask", `{"text":""}`); code != http.StatusBadRequest {
		t.Errorf("missing text code = %d", code)
	}
	if ids := m.IDs(); len(ids) != 0 {
		t.Errorf("blank asks created sessions %v", ids)
	}
	if code, _ := do(t, s, http.MethodPost, "/api/ask", `{"session":`); code != http.StatusBadRequest {
		t.Errorf("bad json code = %d", code)
	}
	code, body := do(t, s, http.MethodGet, "/api/sessions/missing/transcript", "")
	if code != http.StatusNotFound || !strings.Contains(string(body), "error") {
		t.Errorf("missing transcript = %d %s", code, body)
	}
}

func TestResetBusySession(t *testing.T) {
	release := make(chan struct{})
	model := inference.NewMock()
	model.ChatFunc = func(context.Context, *inference.ChatRequest) (*inference.ChatResponse, error) {
		<-release
		return &inference.ChatResponse{Message: inference.NewAssistantMessage("done")}, nil
	}
	s, m := newTestServer(t, model, nil)
	sess, err := m.Get("den")
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.Ask(context.Background(), "turn on the light")
	}()
	for !sess.Busy() {
		time.Sleep(time.Millisecond)
	}

	code, _ := do(t, s, http.MethodPost, "/api/sessions/den/reset", "")
	close(release)
	<-done
	if code != http.StatusConflict {
		t.Errorf("reset during a request = %d, want 409", code)
	}
	if turns := sess.Transcript(); len(turns) != 3 || turns[1].Role != conversation.RoleUser {
		t.Errorf("transcript = %+v", turns)
	}
}

func TestAskModelFailure(t *testing.T) {
	s, _ := newTestServer(t, inference.WithError(errors.New("refused")), nil)
	code, body := do(t, s, http.MethodPost, "/api/ask", `{"session":"x","text":"hello"}`)
	if code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	var resp AskResponse
	json.Unmarshal(body, &resp)
	if resp.Text != orchestrator.InternalErrorReply || resp.Path != orchestrator.PathFailed {
		t.Errorf("resp = %+v", resp)
	}
}

func TestWSRequiresUpgrade(t *testing.T) {
	s, _ := newTestServer(t, inference.NewMock(), nil)
	if code, _ := do(t, s, http.MethodGet, "/ws", ""); code != http.StatusUpgradeRequired {
		t.Errorf("code = %d", code)
	}
}

func TestPublisherSkipsSystem(t *testing.T) {
	h := hub.New("pub", nil)
	pub := Publisher(h)
	// Nothing runs the hub, so the only observable effect is not panicking
	// and not blocking.
	pub("s", conversation.System("sys"))
	pub("s", conversation.User("hi"))
}
