package tools

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"CodeChat/internal/mcp"
)

func TestBuiltinTools(t *testing.T) {
	reg := NewRegistry(Builtin()...)

	want := []string{CodeExplanation, CodeOptimization, CodeReview}
	got := reg.Names()
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Names() = %v, want %v", got, want)
		}
	}

	specs := reg.Specs([]string{CodeReview, "missing"})
	if len(specs) != 1 || specs[0].Name != CodeReview {
		t.Fatalf("Specs = %+v", specs)
	}
}

func TestCodeReviewToolFrame(t *testing.T) {
	tool, ok := NewRegistry(Builtin()...).Get(CodeReview)
	if !ok {
		t.Fatal("code review tool missing")
	}
	ct := tool.(*codeTool)
	ct.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	out, err := tool.Call(context.Background(), map[string]any{"code": "let x = 1"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}

	var frame map[string]any
	if err := json.Unmarshal([]byte(out), &frame); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if frame["language"] != "unknown" {
		t.Errorf("language = %v, want unknown", frame["language"])
	}
	if frame["timestamp"] != "2025-01-02T03:04:05Z" {
		t.Errorf("timestamp = %v", frame["timestamp"])
	}
	if _, ok := frame["analysis"].(map[string]any); !ok {
		t.Errorf("analysis missing: %v", frame)
	}
}

func TestCodeToolRequiresCode(t *testing.T) {
	for _, tool := range Builtin() {
		if _, err := tool.Call(context.Background(), map[string]any{}); err == nil {
			t.Errorf("%s: expected error without code", tool.Spec().Name)
		}
	}
}

func TestOptimizationDefaults(t *testing.T) {
	tool, _ := NewRegistry(Builtin()...).Get(CodeOptimization)
	out, err := tool.Call(context.Background(), map[string]any{"code": "x", "language": "go"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	var frame map[string]any
	_ = json.Unmarshal([]byte(out), &frame)
	if frame["optimizationType"] != "all" || frame["language"] != "go" {
		t.Errorf("frame = %v", frame)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	reg := NewRegistry(Builtin()...)
	if err := reg.Register(Builtin()[0]); err == nil {
		t.Fatal("expected duplicate error")
	}
}

func TestDiscover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req mcp.Request
		_ = json.NewDecoder(r.Body).Decode(&req)

		var result any
		switch req.Method {
		case mcp.MethodInitialize:
			result = mcp.InitializeResult{ProtocolVersion: mcp.ProtocolVersion}
		case mcp.MethodListTools:
			result = mcp.ListToolsResult{Tools: []mcp.ToolInfo{
				{Name: "grep", Description: "search"},
				{Name: CodeReview}, // collides with a builtin
			}}
		case mcp.MethodCallTool:
			result = mcp.CallToolResult{Content: []mcp.Content{{Type: "text", Text: "3 matches"}}}
		}
		raw, _ := json.Marshal(result)
		id := req.ID
		_ = json.NewEncoder(w).Encode(mcp.Response{JSONRPC: "2.0", ID: &id, Result: raw})
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := NewRegistry(Builtin()...)
	clients := mcp.NewClientRegistry()
	defer clients.Close()

	found := Discover(context.Background(), []string{srv.URL, "http://127.0.0.1:1"}, reg, clients, logger)
	if len(found) != 1 || found[0] != "grep" {
		t.Fatalf("discovered %v, want [grep]", found)
	}
	if clients.Count() != 1 {
		t.Fatalf("clients = %d, want 1", clients.Count())
	}

	grep, ok := reg.Get("grep")
	if !ok {
		t.Fatal("grep not registered")
	}
	out, err := grep.Call(context.Background(), map[string]any{"pattern": "x"})
	if err != nil || out != "3 matches" {
		t.Fatalf("Call = %q, %v", out, err)
	}
	again := Discover(context.Background(), []string{srv.URL, srv.URL}, reg, clients, logger)
	if len(again) != 0 || clients.Count() != 1 {
		t.Fatalf("rediscovery = %v with %d clients, want no new connections", again, clients.Count())
	}
}
