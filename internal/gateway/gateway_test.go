package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"CodeChat/internal/agent"
	"CodeChat/internal/chatbot"
	"CodeChat/internal/config"
	"CodeChat/internal/session"
)

type fakeChat struct {
	creds    bool
	turnErr  error
	turns    []chatbot.TurnRequest
	reviews  int
	cleared  []string
	clearErr error
}

func (f *fakeChat) HasCredential() bool { return f.creds }

func (f *fakeChat) ProcessTurn(_ context.Context, req chatbot.TurnRequest) (*chatbot.TurnResult, error) {
	f.turns = append(f.turns, req)
	if f.turnErr != nil {
		return nil, f.turnErr
	}
	return &chatbot.TurnResult{
		Message: session.Message{
			ID:        "m-2",
			Role:      session.RoleAssistant,
			Content:   "reply to " + req.Content,
			Timestamp: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		AgentUsed: string(agent.GeneralCodingAgent),
		ToolsUsed: []string{},
		Method:    chatbot.MethodAgent,
	}, nil
}

func (f *fakeChat) ReviewCode(_ context.Context, code, _, _ string) (*chatbot.TurnResult, error) {
	f.reviews++
	return &chatbot.TurnResult{
		Message:   session.Message{Content: "review of " + code},
		AgentUsed: string(agent.CodeReviewAgent),
		Method:    chatbot.MethodDirect,
	}, nil
}

func (f *fakeChat) HealthCheck(context.Context) chatbot.HealthReport {
	return chatbot.HealthReport{
		Status:    "healthy",
		Agents:    []chatbot.AgentStatus{{Name: "codeReviewAgent", Available: true}},
		Timestamp: "2025-03-01T12:00:00Z",
	}
}

func (f *fakeChat) ValidateAPIKey(context.Context) chatbot.KeyValidation {
	return chatbot.KeyValidation{Error: "API key is not configured"}
}

func (f *fakeChat) AvailableModels(context.Context) []string { return []string{"m1", "m2"} }

func (f *fakeChat) AvailableAgents() []string {
	return []string{"codeReviewAgent", "generalCodingAgent"}
}

func (f *fakeChat) ClearConversation(_ context.Context, id string) error {
	f.cleared = append(f.cleared, id)
	return f.clearErr
}

func (f *fakeChat) Conversation(context.Context, string) ([]session.Message, error) {
	return []session.Message{session.Greeting(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))}, nil
}

type gqlResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func newTestServer(t *testing.T, chat Chat) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	schema, err := NewSchema(NewResolver(chat, logger))
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	srv := httptest.NewServer(NewRouter(config.Defaults().Server, schema, logger))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, query string, vars map[string]any) gqlResponse {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"query": query, "variables": vars})
	resp, err := http.Post(srv.URL+"/graphql", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /graphql: %v", err)
	}
	defer resp.Body.Close()

	var out gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Errors) > 0 {
		t.Fatalf("graphql errors: %+v", out.Errors)
	}
	return out
}

type chatResult struct {
	Success bool    `json:"success"`
	Error   *string `json:"error"`
	Message *struct {
		ID        string `json:"id"`
		Content   string `json:"content"`
		Role      string `json:"role"`
		Timestamp string `json:"timestamp"`
	} `json:"message"`
	AgentUsed        *string   `json:"agentUsed"`
	ToolsUsed        *[]string `json:"toolsUsed"`
	ProcessingMethod *string   `json:"processingMethod"`
}

const sendMessage = `mutation Send($input: SendMessageInput!) {
  sendMessage(input: $input) {
    success error agentUsed toolsUsed processingMethod
    message { id content role timestamp }
  }
}`

func send(t *testing.T, srv *httptest.Server, input map[string]any) chatResult {
	t.Helper()
	out := post(t, srv, sendMessage, map[string]any{"input": input})
	var res chatResult
	if err := json.Unmarshal(out.Data["sendMessage"], &res); err != nil {
		t.Fatalf("decode sendMessage: %v", err)
	}
	return res
}

func TestSendMessage(t *testing.T) {
	chat := &fakeChat{creds: true}
	srv := newTestServer(t, chat)

	res := send(t, srv, map[string]any{
		"content": "hello",
		"conversationHistory": []map[string]any{
			{"id": "1", "content": "Hi!", "role": "ASSISTANT", "timestamp": "2025-03-01T11:59:00.000Z"},
		},
		"agentType":      "AUTO_SELECT",
		"conversationId": "c-9",
	})

	if !res.Success || res.Error != nil {
		t.Fatalf("result = %+v", res)
	}
	if res.Message.Role != "ASSISTANT" || res.Message.ID != "m-2" || res.Message.Timestamp != "2025-03-01T12:00:00.000Z" {
		t.Errorf("message = %+v", res.Message)
	}
	if *res.ProcessingMethod != "MASTRA" || *res.AgentUsed != "generalCodingAgent" {
		t.Errorf("meta = %s / %s", *res.ProcessingMethod, *res.AgentUsed)
	}
	if res.ToolsUsed == nil || len(*res.ToolsUsed) != 0 {
		t.Errorf("toolsUsed = %v", res.ToolsUsed)
	}

	req := chat.turns[0]
	if req.Agent != "" || req.ConversationID != "c-9" {
		t.Errorf("request = %+v", req)
	}
	h := req.History[0]
	if h.ID != "1" || h.Role != session.RoleAssistant || h.Content != "Hi!" ||
		!h.Timestamp.Equal(time.Date(2025, 3, 1, 11, 59, 0, 0, time.UTC)) {
		t.Errorf("history = %+v", h)
	}
}

func TestSendMessageExplicitAgent(t *testing.T) {
	chat := &fakeChat{creds: true}
	srv := newTestServer(t, chat)

	send(t, srv, map[string]any{"content": "hello", "agentType": "CODE_REVIEW_AGENT"})
	if chat.turns[0].Agent != agent.CodeReviewAgent {
		t.Errorf("agent = %q", chat.turns[0].Agent)
	}
}

func TestSendMessageValidation(t *testing.T) {
	tests := []struct {
		name    string
		chat    *fakeChat
		content string
		want    string
	}{
		{"empty", &fakeChat{creds: true}, "", errEmptyContent},
		{"whitespace", &fakeChat{creds: true}, "  \n\t ", errEmptyContent},
		{"no credential", &fakeChat{}, "hello", "API key is not configured"},
		{"orchestration failure", &fakeChat{creds: true, turnErr: errors.New("rate limit exceeded")}, "hello", "rate limit exceeded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.chat)
			res := send(t, srv, map[string]any{"content": tt.content})
			if res.Success || res.Error == nil || *res.Error != tt.want {
				t.Fatalf("result = %+v, want error %q", res, tt.want)
			}
			if res.Message != nil {
				t.Errorf("failed response carries a message: %+v", res.Message)
			}
			if tt.chat.turnErr == nil && len(tt.chat.turns) != 0 {
				t.Errorf("backend contacted %d times", len(tt.chat.turns))
			}
		})
	}
}

func TestSendMessageBadHistory(t *testing.T) {
	chat := &fakeChat{creds: true}
	srv := newTestServer(t, chat)

	res := send(t, srv, map[string]any{
		"content": "hello",
		"conversationHistory": []map[string]any{
			{"id": "1", "content": "x", "role": "USER", "timestamp": "yesterday"},
		},
	})
	if res.Success || res.Error == nil {
		t.Fatalf("result = %+v", res)
	}
	if len(chat.turns) != 0 {
		t.Error("backend contacted with bad history")
	}
}

func TestReviewCode(t *testing.T) {
	chat := &fakeChat{creds: true}
	srv := newTestServer(t, chat)

	q := `mutation { reviewCode(input: {code: "x := 1", language: "go"}) { success content agentUsed error processingMethod } }`
	out := post(t, srv, q, nil)

	var res struct {
		Success          bool   `json:"success"`
		Content          string `json:"content"`
		AgentUsed        string `json:"agentUsed"`
		ProcessingMethod string `json:"processingMethod"`
	}
	_ = json.Unmarshal(out.Data["reviewCode"], &res)
	if !res.Success || res.Content != "review of x := 1" || res.AgentUsed != "codeReviewAgent" || res.ProcessingMethod != "CLAUDE_DIRECT" {
		t.Fatalf("result = %+v", res)
	}

	empty := post(t, srv, `mutation { reviewCode(input: {code: " "}) { success error } }`, nil)
	var failed struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(empty.Data["reviewCode"], &failed)
	if failed.Success || failed.Error == "" || chat.reviews != 1 {
		t.Fatalf("empty code result = %+v, reviews = %d", failed, chat.reviews)
	}
}

func TestQueries(t *testing.T) {
	srv := newTestServer(t, &fakeChat{creds: true})

	out := post(t, srv, `{
  health
  availableModels
  availableAgents
  validateApiKey { valid error }
  mastraHealth { status timestamp error agents { name available } }
  conversation(id: "c-1") { id role content }
}`, nil)

	var health string
	_ = json.Unmarshal(out.Data["health"], &health)
	if health == "" {
		t.Error("empty health")
	}

	var agents []string
	_ = json.Unmarshal(out.Data["availableAgents"], &agents)
	if len(agents) != 2 {
		t.Errorf("availableAgents = %v", agents)
	}

	var key struct {
		Valid bool   `json:"valid"`
		Error string `json:"error"`
	}
	_ = json.Unmarshal(out.Data["validateApiKey"], &key)
	if key.Valid || key.Error == "" {
		t.Errorf("validateApiKey = %+v", key)
	}

	var mh struct {
		Status string  `json:"status"`
		Error  *string `json:"error"`
		Agents []struct {
			Name      string `json:"name"`
			Available bool   `json:"available"`
		} `json:"agents"`
	}
	_ = json.Unmarshal(out.Data["mastraHealth"], &mh)
	if mh.Status != "healthy" || mh.Error != nil || len(mh.Agents) != 1 || !mh.Agents[0].Available {
		t.Errorf("mastraHealth = %+v", mh)
	}

	var conv []struct {
		ID   string `json:"id"`
		Role string `json:"role"`
	}
	_ = json.Unmarshal(out.Data["conversation"], &conv)
	if len(conv) != 1 || conv[0].ID != session.GreetingID || conv[0].Role != "ASSISTANT" {
		t.Errorf("conversation = %+v", conv)
	}
}

func TestClearConversation(t *testing.T) {
	chat := &fakeChat{creds: true}
	srv := newTestServer(t, chat)

	out := post(t, srv, `mutation { a: clearConversation b: clearConversation(conversationId: "c-1") }`, nil)
	var a, b bool
	_ = json.Unmarshal(out.Data["a"], &a)
	_ = json.Unmarshal(out.Data["b"], &b)
	if !a || !b {
		t.Fatalf("clearConversation = %v, %v", a, b)
	}
	if len(chat.cleared) != 2 || chat.cleared[0] != "" || chat.cleared[1] != "c-1" {
		t.Errorf("cleared = %v", chat.cleared)
	}
}

func TestGetQueryAndHealthz(t *testing.T) {
	srv := newTestServer(t, &fakeChat{})

	resp, err := http.Get(srv.URL + "/graphql?query=" + url.QueryEscape("{ health }"))
	if err != nil {
		t.Fatalf("GET /graphql: %v", err)
	}
	defer resp.Body.Close()
	var out gqlResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if _, ok := out.Data["health"]; !ok {
		t.Errorf("GET response = %+v", out)
	}

	hz, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	hz.Body.Close()
	if hz.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", hz.StatusCode)
	}
}

func TestGetRejectsMutation(t *testing.T) {
	chat := &fakeChat{creds: true}
	srv := newTestServer(t, chat)

	q := `mutation { sendMessage(input: {content: "hi"}) { success } }`
	resp, err := http.Get(srv.URL + "/graphql?query=" + url.QueryEscape(q))
	if err != nil {
		t.Fatalf("GET /graphql: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
	if got := resp.Header.Get("Allow"); got != http.MethodPost {
		t.Errorf("Allow = %q", got)
	}
	if len(chat.turns) != 0 {
		t.Errorf("mutation ran over GET: %d turns", len(chat.turns))
	}
}

func TestHasMutation(t *testing.T) {
	tests := []struct {
		doc  string
		want bool
	}{
		{"{ health }", false},
		{"query Q { health }", false},
		{"mutation { clearConversation(conversationId: \"c\") }", true},
		{"# mutation\n{ health }", false},
		{`query { reviewCode(code: "mutation { x }") { success } }`, false},
		{`{ a } mutation M { b }`, true},
		{"subscription { x }", true},
	}
	for _, tt := range tests {
		if got := hasMutation(tt.doc); got != tt.want {
			t.Errorf("hasMutation(%q) = %v, want %v", tt.doc, got, tt.want)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, &fakeChat{})

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/graphql", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow-origin = %q", got)
	}
}
