package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"CodeChat/internal/provider"
	"CodeChat/internal/session"
	"CodeChat/internal/tools"
)

func TestSelect(t *testing.T) {
	tests := []struct {
		message string
		want    ID
	}{
		{"hello", GeneralCodingAgent},
		{"how do I start with Go?", GeneralCodingAgent},
		{"Please do a Code Review of my module", CodeReviewAgent},
		{"can you REFACTOR this", CodeReviewAgent},
		{"请帮我做代码审查", CodeReviewAgent},
		{"这个怎么重构", CodeReviewAgent},
		{"```go\nfmt.Println(1)\n```", CodeReviewAgent},
		{"const x = 1", CodeReviewAgent},
		{"def main(): pass", CodeReviewAgent},
		{"what is a function pointer", CodeReviewAgent},
		{"Constant folding", GeneralCodingAgent},
	}
	for _, tt := range tests {
		if got := Select(tt.message); got != tt.want {
			t.Errorf("Select(%q) = %s, want %s", tt.message, got, tt.want)
		}
	}
}

func TestReviewPrompt(t *testing.T) {
	p := ReviewPrompt("x := 1", "go", "a test")
	for _, want := range []string{
		"Language: go\n",
		"Context: a test\n",
		"```go\nx := 1\n```",
		"1. A code quality score (1-10)",
		"5. Best practice recommendations",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}

	bare := ReviewPrompt("x", "", "")
	if strings.Contains(bare, "Language:") || strings.Contains(bare, "Context:") {
		t.Errorf("empty language/context should be omitted:\n%s", bare)
	}
}

func TestRegistryLookup(t *testing.T) {
	reg := DefaultRegistry()
	for _, id := range Known {
		if _, err := reg.Lookup(id); err != nil {
			t.Errorf("Lookup(%s): %v", id, err)
		}
	}
	if _, err := reg.Lookup("nope"); !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("Lookup(nope) = %v, want ErrAgentNotFound", err)
	}
	if ids := reg.IDs(); len(ids) != 2 || ids[0] != CodeReviewAgent {
		t.Errorf("IDs = %v", ids)
	}
}

// scripted returns canned responses in order and records requests.
type scripted struct {
	responses []*provider.Response
	err       error
	requests  []provider.Request
}

func (s *scripted) Complete(_ context.Context, req provider.Request) (*provider.Response, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return &provider.Response{ToolCalls: []provider.ToolCall{{ID: "again", Name: tools.CodeExplanation, Input: map[string]any{"code": "x"}}}}, nil
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func newRunner(llm Completer, maxSteps int) *Runner {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRunner(DefaultRegistry(), tools.NewRegistry(tools.Builtin()...), llm, RunnerOptions{MaxSteps: maxSteps}, logger)
}

func history() []session.Message {
	now := time.Now()
	return []session.Message{
		session.Greeting(now),
		session.NewMessage(session.RoleUser, "explain this", now),
	}
}

func TestGeneratePlainReply(t *testing.T) {
	llm := &scripted{responses: []*provider.Response{{Text: "done"}}}
	res, err := newRunner(llm, 5).Generate(context.Background(), GeneralCodingAgent, history())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Text != "done" || len(res.ToolsUsed) != 0 {
		t.Fatalf("result = %+v", res)
	}

	req := llm.requests[0]
	if !strings.Contains(req.System, "programming assistant") {
		t.Errorf("system prompt not the general agent's: %q", req.System)
	}
	if len(req.Tools) != 1 || req.Tools[0].Name != tools.CodeExplanation {
		t.Errorf("tools = %+v", req.Tools)
	}
	if req.Messages[0].Role != "assistant" || req.Messages[1].Role != "user" {
		t.Errorf("roles = %q, %q", req.Messages[0].Role, req.Messages[1].Role)
	}
}

func TestGenerateToolLoop(t *testing.T) {
	llm := &scripted{responses: []*provider.Response{
		{ToolCalls: []provider.ToolCall{
			{ID: "t1", Name: tools.CodeReview, Input: map[string]any{"code": "let a"}},
			{ID: "t2", Name: "missing-tool"},
		}},
		{Text: "review ready"},
	}}

	res, err := newRunner(llm, 5).Generate(context.Background(), CodeReviewAgent, history())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Text != "review ready" {
		t.Fatalf("text = %q", res.Text)
	}
	if len(res.ToolsUsed) != 2 || res.ToolsUsed[0] != tools.CodeReview {
		t.Fatalf("ToolsUsed = %v", res.ToolsUsed)
	}

	follow := llm.requests[1].Messages
	last := follow[len(follow)-1]
	if len(last.ToolResults) != 2 {
		t.Fatalf("tool results = %+v", last.ToolResults)
	}
	if last.ToolResults[0].IsError || !last.ToolResults[1].IsError {
		t.Errorf("error flags = %v, %v", last.ToolResults[0].IsError, last.ToolResults[1].IsError)
	}
	if prev := follow[len(follow)-2]; prev.Role != "assistant" || len(prev.ToolCalls) != 2 {
		t.Errorf("assistant tool-call turn missing: %+v", prev)
	}
}

func TestGenerateStepLimit(t *testing.T) {
	llm := &scripted{}
	_, err := newRunner(llm, 3).Generate(context.Background(), GeneralCodingAgent, history())
	if !errors.Is(err, ErrToolLoop) {
		t.Fatalf("err = %v, want ErrToolLoop", err)
	}
	if len(llm.requests) != 3 {
		t.Fatalf("requests = %d, want 3", len(llm.requests))
	}
}

func TestGenerateErrors(t *testing.T) {
	llm := &scripted{err: provider.ErrRateLimited}
	if _, err := newRunner(llm, 5).Generate(context.Background(), GeneralCodingAgent, history()); !errors.Is(err, provider.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}

	empty := &scripted{responses: []*provider.Response{{}}}
	if _, err := newRunner(empty, 5).Generate(context.Background(), GeneralCodingAgent, history()); !errors.Is(err, provider.ErrEmptyReply) {
		t.Fatalf("err = %v, want ErrEmptyReply", err)
	}

	if _, err := newRunner(empty, 5).Generate(context.Background(), "ghost", history()); !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("err = %v, want ErrAgentNotFound", err)
	}
}
