// Package orchestrator drives one request through the model, the tools and
// back: decide, execute, synthesize.
package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/teslashibe/go-edgeassist/pkg/conversation"
	"github.com/teslashibe/go-edgeassist/pkg/inference"
	"github.com/teslashibe/go-edgeassist/pkg/safety"
	"github.com/teslashibe/go-edgeassist/pkg/tools"
)

// Fixed replies for the two paths that never reach the user as model text.
const (
	InternalErrorReply = "I encountered an internal error while processing your request."
	ClarifyReply       = "I'm sorry, I tried to access a tool that doesn't exist. Could you try rephrasing? (Internal Error)"
)

// Model is the part of an inference provider the orchestrator needs.
type Model interface {
	Chat(ctx context.Context, req *inference.ChatRequest) (*inference.ChatResponse, error)
}

// Executor runs a single tool call.
type Executor interface {
	Execute(ctx context.Context, name string, args json.RawMessage) tools.Outcome
}

// Stage is a step of the request state machine.
type Stage int

const (
	AwaitingUserInput Stage = iota
	ModelDecision
	ToolExecution
	ModelSynthesis
	DirectResponse
	Done
)

func (s Stage) String() string {
	switch s {
	case AwaitingUserInput:
		return "awaiting_user_input"
	case ModelDecision:
		return "model_decision"
	case ToolExecution:
		return "tool_execution"
	case ModelSynthesis:
		return "model_synthesis"
	case DirectResponse:
		return "direct_response"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Path says how a reply was produced.
type Path string

const (
	PathDirect      Path = "direct"
	PathSynthesized Path = "synthesized"
	PathTerminal    Path = "terminal"
	PathRejected    Path = "rejected"
	PathFailed      Path = "failed"
)

// Reply is the result of one request. Text is always set.
type Reply struct {
	Text     string          `json:"text"`
	Path     Path            `json:"path"`
	Outcomes []tools.Outcome `json:"-"`

	// Err is the model error behind PathFailed.
	Err error `json:"-"`

	Duration time.Duration `json:"duration"`
}

// Config holds the model parameters used for every request.
type Config struct {
	// Model overrides the provider's default model name.
	Model string

	// Temperature and MaxTokens apply to both model calls. Nil and zero
	// leave the provider defaults.
	Temperature *float64
	MaxTokens   int

	// Tools is the list advertised on the decision call.
	Tools []inference.Tool

	// Policy screens direct responses. Nil means safety.NewBrace().
	Policy safety.Policy

	Logger *slog.Logger
}

// Orchestrator is stateless across requests; the caller owns the
// conversation and must not run two requests against one State at once.
type Orchestrator struct {
	model  Model
	exec   Executor
	cfg    Config
	policy safety.Policy
	logger *slog.Logger
}

// New creates an orchestrator.
func New(model Model, exec Executor, cfg Config) *Orchestrator {
	o := &Orchestrator{
		model:  model,
		exec:   exec,
		cfg:    cfg,
		policy: cfg.Policy,
		logger: cfg.Logger,
	}
	if o.policy == nil {
		o.policy = safety.NewBrace()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "orchestrator")
	return o
}

// Handle appends the utterance to state, runs the pipeline and returns
// exactly one reply. It never returns an error; model failures become
// InternalErrorReply and leave state as it was at the point of failure.
func (o *Orchestrator) Handle(ctx context.Context, state *conversation.State, utterance string) Reply {
	start := time.Now()
	r := o.run(ctx, state, utterance)
	r.Duration = time.Since(start)
	o.logger.Info("request done",
		"path", r.Path,
		"tools", len(r.Outcomes),
		"duration", r.Duration,
	)
	return r
}

func (o *Orchestrator) run(ctx context.Context, state *conversation.State, utterance string) Reply {
	stage := AwaitingUserInput
	state.Append(conversation.User(utterance))
	o.logger.Debug("processing input", "stage", stage, "input", utterance)

	stage = ModelDecision
	decision, err := o.chat(ctx, state, o.cfg.Tools)
	if err != nil {
		return o.fail(stage, err)
	}

	if len(decision.ToolCalls) == 0 {
		stage = DirectResponse
		if o.policy.Suspicious(decision.Content) {
			o.logger.Warn("withheld tool-shaped content", "stage", stage, "content", decision.Content)
			return Reply{Text: ClarifyReply, Path: PathRejected}
		}
		state.Append(conversation.Assistant(decision.Content))
		return Reply{Text: decision.Content, Path: PathDirect}
	}

	stage = ToolExecution
	calls := conversation.FromToolCalls(decision.ToolCalls)
	state.Append(conversation.ToolRequest(decision.Content, calls))
	o.logger.Info("tool usage requested", "stage", stage, "calls", len(calls))

	var outcomes []tools.Outcome
	for _, call := range calls {
		out := o.exec.Execute(ctx, call.Name, call.Arguments)
		outcomes = append(outcomes, out)
		if out.Terminal {
			o.logger.Info("terminal tool returned", "tool", call.Name, "kind", out.Kind)
			return Reply{Text: out.Content, Path: PathTerminal, Outcomes: outcomes}
		}
		state.Append(conversation.ToolResult(call, out.Content))
	}

	stage = ModelSynthesis
	final, err := o.chat(ctx, state, nil)
	if err != nil {
		r := o.fail(stage, err)
		r.Outcomes = outcomes
		return r
	}
	text := final.Content
	if text == "" && len(outcomes) > 0 {
		text = outcomes[len(outcomes)-1].Content
	}
	state.Append(conversation.Assistant(text))
	return Reply{Text: text, Path: PathSynthesized, Outcomes: outcomes}
}

func (o *Orchestrator) chat(ctx context.Context, state *conversation.State, offered []inference.Tool) (inference.Message, error) {
	req := &inference.ChatRequest{
		Messages:    state.Messages(),
		Model:       o.cfg.Model,
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
		Tools:       offered,
	}
	resp, err := o.model.Chat(ctx, req)
	if err != nil {
		return inference.Message{}, err
	}
	if resp == nil {
		return inference.Message{}, inference.ErrEmptyResponse
	}
	return resp.Message, nil
}

func (o *Orchestrator) fail(stage Stage, err error) Reply {
	o.logger.Error("inference pipeline failed", "stage", stage, "error", err)
	return Reply{Text: InternalErrorReply, Path: PathFailed, Err: err}
}
