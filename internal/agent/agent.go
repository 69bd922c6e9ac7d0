// Package agent runs a bounded tool-calling conversation between an LLM and
// a set of Gmail tools.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pysugar/gmail-agent-nexus/internal/apperr"
	"github.com/pysugar/gmail-agent-nexus/internal/auth/token"
	"github.com/pysugar/gmail-agent-nexus/internal/logging"
	"github.com/pysugar/gmail-agent-nexus/internal/metrics"
	"github.com/pysugar/gmail-agent-nexus/internal/util"
)

var (
	// ErrMaxTurns is returned when the model still requests tools after the
	// turn budget is spent.
	ErrMaxTurns = errors.New("agent exceeded max turns")
	// ErrModel wraps a failed model call.
	ErrModel = errors.New("model call failed")
)

// DefaultMaxTurns bounds Run when New is given a non-positive limit.
const DefaultMaxTurns = 5

// Role identifies the author of a Message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	RoleTool  Role = "tool"
)

// ToolCall is one function invocation requested by the model.
type ToolCall struct {
	Name string
	Args json.RawMessage
}

// ToolResult answers a ToolCall. Exactly one of Output or Error is set.
type ToolResult struct {
	Name   string
	Output any
	Error  string
}

// Message is one entry of the conversation history.
type Message struct {
	Role        Role
	Text        string
	ToolCalls   []ToolCall   // RoleModel only
	ToolResults []ToolResult // RoleTool only
}

// Model produces the next model message for a conversation.
type Model interface {
	Generate(ctx context.Context, system string, history []Message, tools []Tool) (Message, error)
}

// ToolCallRecord is the caller-visible trace of one dispatched tool call.
type ToolCallRecord struct {
	Name  string          `json:"name"`
	Args  json.RawMessage `json:"args,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Result is the outcome of Run.
type Result struct {
	Reply     string           `json:"reply"`
	Turns     int              `json:"turns"`
	ToolCalls []ToolCallRecord `json:"tool_calls"`
}

// Agent drives Model and dispatches its tool calls.
type Agent struct {
	model    Model
	tools    []Tool
	byName   map[string]Tool
	system   string
	maxTurns int
	logger   *slog.Logger
}

// New builds an Agent with the Gmail system prompt.
func New(model Model, tools []Tool, maxTurns int, logger *slog.Logger) *Agent {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	if logger == nil {
		logger = slog.Default()
	}
	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		byName[t.Name()] = t
	}
	return &Agent{
		model:    model,
		tools:    tools,
		byName:   byName,
		system:   SystemPrompt,
		maxTurns: maxTurns,
		logger:   logger,
	}
}

// Run loops model call, tool dispatch, result append until the model answers
// without tool calls or maxTurns model calls have been made.
func (a *Agent) Run(ctx context.Context, prompt string) (*Result, error) {
	history := []Message{{Role: RoleUser, Text: prompt}}
	res := &Result{ToolCalls: []ToolCallRecord{}}

	for turn := 1; turn <= a.maxTurns; turn++ {
		res.Turns = turn
		reply, err := a.model.Generate(ctx, a.system, history, a.tools)
		if err != nil {
			return nil, fmt.Errorf("%w: turn %d: %v", ErrModel, turn, err)
		}
		reply.Role = RoleModel
		history = append(history, reply)

		if len(reply.ToolCalls) == 0 {
			metrics.AgentTurns.Observe(float64(turn))
			res.Reply = reply.Text
			return res, nil
		}

		results := make([]ToolResult, 0, len(reply.ToolCalls))
		for _, call := range reply.ToolCalls {
			r, err := a.dispatch(ctx, call)
			if err != nil {
				return nil, err
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			results = append(results, r)
			res.ToolCalls = append(res.ToolCalls, ToolCallRecord{Name: call.Name, Args: call.Args, Error: r.Error})
		}
		history = append(history, Message{Role: RoleTool, ToolResults: results})
	}

	metrics.AgentTurns.Observe(float64(a.maxTurns))
	a.logger.WarnContext(ctx, "agent stopped at turn limit", slog.Int("max_turns", a.maxTurns))
	return res, ErrMaxTurns
}

// dispatch runs one tool call. Tool failures become a caller-safe
// ToolResult.Error; the returned error is set only when the run must stop
// (the account needs re-authorization).
func (a *Agent) dispatch(ctx context.Context, call ToolCall) (ToolResult, error) {
	log := a.logger.With(logging.Operation("agent_tool"), slog.String("tool", call.Name))

	tool, ok := a.byName[call.Name]
	if !ok {
		log.WarnContext(ctx, "model requested unknown tool")
		return ToolResult{Name: call.Name, Error: "unknown tool: " + call.Name}, nil
	}

	args := call.Args
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	out, err := tool.Invoke(ctx, args)
	if err != nil {
		log.WarnContext(ctx, "tool failed", logging.Err(err))
		if errors.Is(err, token.ErrReauthRequired) {
			return ToolResult{}, err
		}
		return ToolResult{Name: call.Name, Error: toolErrorText(err)}, nil
	}

	if log.Enabled(ctx, slog.LevelDebug) {
		if raw, err := json.Marshal(out); err == nil {
			log.DebugContext(ctx, "tool result", slog.String("output", util.TruncateBytes(raw)))
		}
	}
	return ToolResult{Name: call.Name, Output: out}, nil
}

// toolErrorText is what the model and the caller see for a failed tool.
// Input errors keep their message; everything else is reduced to its reason.
func toolErrorText(err error) string {
	var ie *inputError
	if errors.As(err, &ie) {
		return ie.msg
	}
	c, _ := apperr.Classify(err)
	return c.String()
}
