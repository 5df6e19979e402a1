package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"CodeChat/internal/provider"
	"CodeChat/internal/session"
	"CodeChat/internal/telemetry"
	"CodeChat/internal/tools"
)

// ErrToolLoop is returned when the model keeps asking for tools past the
// step limit.
var ErrToolLoop = errors.New("agent exceeded tool step limit")

// Completer is the provider call the runner needs. *provider.Client
// implements it.
type Completer interface {
	Complete(ctx context.Context, req provider.Request) (*provider.Response, error)
}

// Result is one agent reply.
type Result struct {
	Text      string
	ToolsUsed []string
}

// Runner executes agents.
type Runner struct {
	agents   *Registry
	tools    *tools.Registry
	llm      Completer
	shared   []string
	maxSteps int
	logger   *slog.Logger
	tracer   trace.Tracer
}

// RunnerOptions tune a Runner. Shared names tools offered to every agent
// on top of its own set.
type RunnerOptions struct {
	MaxSteps int
	Shared   []string
}

func NewRunner(agents *Registry, toolReg *tools.Registry, llm Completer, opts RunnerOptions, logger *slog.Logger) *Runner {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = 5
	}
	if toolReg == nil {
		toolReg = tools.NewRegistry()
	}
	return &Runner{
		agents:   agents,
		tools:    toolReg,
		llm:      llm,
		shared:   opts.Shared,
		maxSteps: opts.MaxSteps,
		logger:   logger,
		tracer:   telemetry.Tracer(),
	}
}

// Generate runs agent id over msgs and returns its final text reply.
// Tool calls requested by the model are executed and fed back until the
// model answers in plain text or the step limit is reached.
func (r *Runner) Generate(ctx context.Context, id ID, msgs []session.Message) (*Result, error) {
	def, err := r.agents.Lookup(id)
	if err != nil {
		return nil, err
	}

	ctx, span := r.tracer.Start(ctx, "agent_generate",
		trace.WithAttributes(
			attribute.String("agent.id", string(id)),
			attribute.Int("agent.messages", len(msgs)),
		))
	defer span.End()

	conversation := make([]provider.Message, len(msgs))
	for i, m := range msgs {
		conversation[i] = provider.Message{
			Role:    strings.ToLower(string(m.Role)),
			Content: m.Content,
		}
	}

	req := provider.Request{
		System: def.Instructions,
		Tools:  r.tools.Specs(append(append([]string(nil), def.Tools...), r.shared...)),
	}

	var used []string
	for step := 0; step < r.maxSteps; step++ {
		req.Messages = conversation
		resp, err := r.llm.Complete(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		if len(resp.ToolCalls) == 0 {
			if resp.Text == "" {
				span.SetStatus(codes.Error, provider.ErrEmptyReply.Error())
				return nil, provider.ErrEmptyReply
			}
			span.SetAttributes(attribute.Int("agent.steps", step+1), attribute.StringSlice("agent.tools_used", used))
			return &Result{Text: resp.Text, ToolsUsed: used}, nil
		}

		r.logger.Info("handling tool use", "agent", id, "tools_count", len(resp.ToolCalls), "step", step+1)

		results := make([]provider.ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			used = append(used, call.Name)
			results = append(results, r.invoke(ctx, call))
		}

		conversation = append(conversation,
			provider.Message{Role: string(session.RoleAssistant), Content: resp.Text, ToolCalls: resp.ToolCalls},
			provider.Message{Role: string(session.RoleUser), ToolResults: results},
		)
	}

	span.SetStatus(codes.Error, ErrToolLoop.Error())
	return nil, fmt.Errorf("%w (%d steps)", ErrToolLoop, r.maxSteps)
}

// invoke runs one tool call. Failures are reported back to the model as
// an error result rather than aborting the turn.
func (r *Runner) invoke(ctx context.Context, call provider.ToolCall) provider.ToolResult {
	tool, ok := r.tools.Get(call.Name)
	if !ok {
		r.logger.Warn("model requested unknown tool", "tool", call.Name)
		return provider.ToolResult{CallID: call.ID, Content: "Error: unknown tool " + call.Name, IsError: true}
	}

	ctx, span := r.tracer.Start(ctx, "tool_call", trace.WithAttributes(attribute.String("tool.name", call.Name)))
	defer span.End()

	out, err := tool.Call(ctx, call.Input)
	if err != nil {
		span.RecordError(err)
		r.logger.Error("tool invocation failed", "tool", call.Name, "error", err)
		return provider.ToolResult{CallID: call.ID, Content: fmt.Sprintf("Error: %v", err), IsError: true}
	}
	return provider.ToolResult{CallID: call.ID, Content: out}
}
