// Package chatbot orchestrates a chat turn: pick an agent, run it, and fall
// back to a direct provider call when the agent path fails.
package chatbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"CodeChat/internal/agent"
	"CodeChat/internal/cache"
	"CodeChat/internal/config"
	"CodeChat/internal/session"
	"CodeChat/internal/store"
	"CodeChat/internal/telemetry"
)

// Processing methods reported with every reply.
const (
	MethodAgent  = "MASTRA"
	MethodDirect = "CLAUDE_DIRECT"
)

// FallbackAgent is reported as the agent of a direct provider reply.
const FallbackAgent = "claude-fallback"

// ErrNoCredential is returned when the provider has no API key configured.
var ErrNoCredential = errors.New("API key is not configured")

// Generator runs a named agent. *agent.Runner implements it.
type Generator interface {
	Generate(ctx context.Context, id agent.ID, msgs []session.Message) (*agent.Result, error)
}

// Direct is the plain provider path. *provider.Client implements it.
type Direct interface {
	Backend() string
	Send(ctx context.Context, msgs []session.Message) (string, error)
	Validate(ctx context.Context) error
	ListModels(ctx context.Context) ([]string, error)
}

// Deps are the collaborators of a Service. Cache, Store and Metrics are
// optional.
type Deps struct {
	Agents   *agent.Registry
	Runner   Generator
	Provider Direct
	Cache    *cache.Cache
	Store    *store.Store
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
}

// Service handles chat turns and the service-level queries around them.
type Service struct {
	agents   *agent.Registry
	runner   Generator
	direct   Direct
	cache    *cache.Cache
	store    *store.Store
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
	orch     config.Orchestrator
	models   []string
	hasCreds bool
}

// New builds a Service. Credential presence is decided from cfg once.
func New(cfg config.Provider, orch config.Orchestrator, d Deps) *Service {
	return &Service{
		agents:   d.Agents,
		runner:   d.Runner,
		direct:   d.Provider,
		cache:    d.Cache,
		store:    d.Store,
		metrics:  d.Metrics,
		logger:   d.Logger,
		tracer:   telemetry.Tracer(),
		now:      time.Now,
		orch:     orch,
		models:   cfg.Models,
		hasCreds: cfg.HasCredential(),
	}
}

// TurnRequest is one user message plus the history the client replays.
// An empty Agent means the selector decides.
type TurnRequest struct {
	Content        string
	History        []session.Message
	Agent          agent.ID
	ConversationID string
}

// TurnResult is the assistant reply to a turn.
type TurnResult struct {
	Message   session.Message
	AgentUsed string
	ToolsUsed []string
	Method    string
}

// outcome is what a phase produces before it becomes a Message.
type outcome struct {
	Text      string   `json:"text"`
	AgentUsed string   `json:"agent_used"`
	ToolsUsed []string `json:"tools_used"`
	Method    string   `json:"method"`
}

// HasCredential reports whether a provider credential is configured.
func (s *Service) HasCredential() bool { return s.hasCreds }

// ProcessTurn answers one user message. The history is forwarded as is,
// followed by the new user message.
func (s *Service) ProcessTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	id := req.Agent
	if id == "" {
		id = agent.Select(req.Content)
	}

	ctx, span := s.tracer.Start(ctx, "process_turn",
		trace.WithAttributes(
			attribute.String("agent.selected", string(id)),
			attribute.Int("history.len", len(req.History)),
		))
	defer span.End()

	user := session.NewMessage(session.RoleUser, req.Content, s.now())
	msgs := session.WithTurn(req.History, user)

	out, err := s.run(ctx, id, msgs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	reply := session.NewMessage(session.RoleAssistant, out.Text, s.now())
	if req.ConversationID != "" && s.store != nil {
		if err := s.store.Append(ctx, req.ConversationID, s.direct.Backend(), user, reply); err != nil {
			s.logger.Warn("failed to save transcript", "conversation_id", req.ConversationID, "error", err)
		}
	}

	span.SetAttributes(attribute.String("agent.used", out.AgentUsed), attribute.String("processing.method", out.Method))
	return &TurnResult{
		Message:   reply,
		AgentUsed: out.AgentUsed,
		ToolsUsed: out.ToolsUsed,
		Method:    out.Method,
	}, nil
}

// ReviewCode runs the review agent over a fixed review prompt.
func (s *Service) ReviewCode(ctx context.Context, code, language, reviewContext string) (*TurnResult, error) {
	ctx, span := s.tracer.Start(ctx, "review_code", trace.WithAttributes(attribute.String("code.language", language)))
	defer span.End()

	prompt := agent.ReviewPrompt(code, language, reviewContext)
	msgs := []session.Message{session.NewMessage(session.RoleUser, prompt, s.now())}

	out, err := s.run(ctx, agent.CodeReviewAgent, msgs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return &TurnResult{
		Message:   session.NewMessage(session.RoleAssistant, out.Text, s.now()),
		AgentUsed: out.AgentUsed,
		ToolsUsed: out.ToolsUsed,
		Method:    out.Method,
	}, nil
}

// run serves msgs from the cache or through the phases, and counts the turn.
func (s *Service) run(ctx context.Context, id agent.ID, msgs []session.Message) (*outcome, error) {
	key := cache.GenerateCacheKey(string(id), msgs)
	if out, ok := s.cached(ctx, key); ok {
		return out, nil
	}

	out, err := s.phases(ctx, id, msgs)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Turns.Add(ctx, 1, metric.WithAttributes(
			attribute.String("agent", out.AgentUsed),
			attribute.String("method", out.Method)))
	}
	s.remember(key, out)
	return out, nil
}

// phases is the turn state machine: agent phase, then at most one
// fallback phase.
func (s *Service) phases(ctx context.Context, id agent.ID, msgs []session.Message) (*outcome, error) {
	start := time.Now()
	out, err := s.phaseAgent(ctx, id, msgs)
	if err == nil {
		s.logger.Info("turn answered by agent",
			"agent", id,
			"tools_used", out.ToolsUsed,
			"duration_ms", time.Since(start).Milliseconds())
		return out, nil
	}

	s.logger.Warn("agent phase failed, falling back to direct provider call", "agent", id, "error", err)
	if s.metrics != nil {
		s.metrics.Fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("agent", string(id))))
	}

	out, err = s.phaseFallback(ctx, msgs)
	if err != nil {
		s.logger.Error("fallback phase failed", "agent", id, "error", err)
		return nil, err
	}
	s.logger.Info("turn answered by fallback", "duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

func (s *Service) phaseAgent(ctx context.Context, id agent.ID, msgs []session.Message) (*outcome, error) {
	if s.runner == nil {
		return nil, errors.New("agent runner is not configured")
	}
	ctx, cancel := withTimeout(ctx, s.orch.AgentTimeout)
	defer cancel()

	res, err := s.runner.Generate(ctx, id, msgs)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", id, err)
	}
	tools := res.ToolsUsed
	if tools == nil {
		tools = []string{}
	}
	return &outcome{Text: res.Text, AgentUsed: string(id), ToolsUsed: tools, Method: MethodAgent}, nil
}

func (s *Service) phaseFallback(ctx context.Context, msgs []session.Message) (*outcome, error) {
	ctx, cancel := withTimeout(ctx, s.orch.FallbackTimeout)
	defer cancel()

	text, err := s.direct.Send(ctx, msgs)
	if err != nil {
		return nil, err
	}
	return &outcome{Text: text, AgentUsed: FallbackAgent, ToolsUsed: []string{}, Method: MethodDirect}, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (s *Service) cached(ctx context.Context, key string) (*outcome, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, ok := s.cache.Get(key)
	if !ok {
		return nil, false
	}
	var out outcome
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out.Method != MethodAgent {
		s.cache.Delete(key)
		return nil, false
	}
	if s.metrics != nil {
		s.metrics.CacheHits.Add(ctx, 1)
	}
	s.logger.Debug("reply served from cache", "agent", out.AgentUsed)
	return &out, true
}

// remember caches agent replies only. A fallback reply must not stop the
// next identical turn from retrying the agent.
func (s *Service) remember(key string, out *outcome) {
	if s.cache == nil || out.Method != MethodAgent {
		return
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return
	}
	s.cache.Set(key, string(raw))
}

// AgentStatus is one entry of a HealthReport.
type AgentStatus struct {
	Name      string
	Available bool
}

// HealthReport describes agent availability.
type HealthReport struct {
	Status    string
	Agents    []AgentStatus
	Timestamp string
	Error     string
}

// HealthCheck reports each known agent. It never fails; problems are
// reported in the result.
func (s *Service) HealthCheck(ctx context.Context) (report HealthReport) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("health check panicked", "panic", r)
			report = HealthReport{
				Status:    "error",
				Agents:    []AgentStatus{},
				Timestamp: s.now().UTC().Format(time.RFC3339),
				Error:     fmt.Sprint(r),
			}
		}
	}()

	report = HealthReport{Status: "healthy", Agents: make([]AgentStatus, 0, len(agent.Known))}
	for _, id := range agent.Known {
		_, err := s.agents.Lookup(id)
		report.Agents = append(report.Agents, AgentStatus{Name: string(id), Available: err == nil})
	}
	report.Timestamp = s.now().UTC().Format(time.RFC3339)
	return report
}

// KeyValidation is the result of ValidateAPIKey.
type KeyValidation struct {
	Valid bool
	Error string
}

// ValidateAPIKey probes the provider with a minimal request.
func (s *Service) ValidateAPIKey(ctx context.Context) KeyValidation {
	if !s.hasCreds {
		return KeyValidation{Error: ErrNoCredential.Error()}
	}
	if err := s.direct.Validate(ctx); err != nil {
		s.logger.Warn("API key validation failed", "error", err)
		return KeyValidation{Error: err.Error()}
	}
	return KeyValidation{Valid: true}
}

// AvailableModels asks the backend for its models and falls back to the
// configured list.
func (s *Service) AvailableModels(ctx context.Context) []string {
	models, err := s.direct.ListModels(ctx)
	if err == nil && len(models) > 0 {
		return models
	}
	out := make([]string, len(s.models))
	copy(out, s.models)
	return out
}

// AvailableAgents lists the registered agent IDs.
func (s *Service) AvailableAgents() []string {
	ids := s.agents.IDs()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// ClearConversation resets a stored transcript to the greeting. Without a
// conversation id or a store there is nothing to clear.
func (s *Service) ClearConversation(ctx context.Context, conversationID string) error {
	if conversationID == "" || s.store == nil {
		return nil
	}
	if err := s.store.Reset(ctx, conversationID, s.direct.Backend()); err != nil {
		return fmt.Errorf("failed to clear conversation: %w", err)
	}
	s.logger.Info("conversation cleared", "conversation_id", conversationID)
	return nil
}

// Conversation returns a stored transcript. Unknown ids, or no store,
// yield just the greeting.
func (s *Service) Conversation(ctx context.Context, conversationID string) ([]session.Message, error) {
	if s.store == nil {
		return []session.Message{session.Greeting(s.now())}, nil
	}
	conv, err := s.store.Load(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return []session.Message{session.Greeting(s.now())}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return conv.Messages, nil
}
