// Package provider talks to the external LLM APIs and reduces their
// failures to a small, stable set of user-facing errors.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"CodeChat/internal/config"
	"CodeChat/internal/session"
	"CodeChat/internal/telemetry"
)

// Message is one provider-facing conversation entry. An assistant message
// may carry tool calls; a user message may carry tool results instead of
// text.
type Message struct {
	Role        string
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolResult answers a ToolCall.
type ToolResult struct {
	CallID  string
	Content string
	IsError bool
}

// ToolSpec advertises a tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Request is a single completion call.
type Request struct {
	System      string
	Messages    []Message
	Tools       []ToolSpec
	MaxTokens   int
	Temperature *float64
}

// Response is the model's answer to a Request.
type Response struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason string
	Model      string
	Usage      Usage
}

// Usage reports token counts for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Backend is one LLM API. Implementations return raw errors; Client
// classifies them.
type Backend interface {
	Name() string
	Complete(ctx context.Context, model string, req Request) (*Response, error)
}

// ModelLister is implemented by backends that can enumerate their models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Options are the per-call defaults of a Client.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Client wraps a Backend with defaults, tracing, metrics and error
// classification.
type Client struct {
	backend Backend
	opts    Options
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *telemetry.Metrics
}

// New builds the Client for the configured backend. The API key is taken
// from cfg only.
func New(cfg config.Provider, logger *slog.Logger, metrics *telemetry.Metrics) (*Client, error) {
	hc := &http.Client{Timeout: cfg.Timeout}

	var b Backend
	switch cfg.Backend {
	case config.BackendAnthropic:
		b = NewAnthropic(cfg.BaseURL, cfg.APIKey, hc)
	case config.BackendOpenAI, config.BackendGrok:
		b = NewOpenAI(cfg.Backend, cfg.BaseURL, cfg.APIKey, hc)
	case config.BackendOllama:
		b = NewOllama(cfg.BaseURL, hc)
	default:
		return nil, fmt.Errorf("unknown backend: %s", cfg.Backend)
	}

	return NewWithBackend(b, Options{
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}, logger, metrics), nil
}

// NewWithBackend builds a Client around an existing Backend. metrics may
// be nil.
func NewWithBackend(b Backend, opts Options, logger *slog.Logger, metrics *telemetry.Metrics) *Client {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1000
	}
	return &Client{
		backend: b,
		opts:    opts,
		logger:  logger,
		tracer:  telemetry.Tracer(),
		metrics: metrics,
	}
}

// Backend returns the backend name.
func (c *Client) Backend() string { return c.backend.Name() }

// Model returns the default model.
func (c *Client) Model() string { return c.opts.Model }

// Complete runs one completion call and classifies any failure.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, c.backend.Name()+"_api_call",
		trace.WithAttributes(
			attribute.String("llm.backend", c.backend.Name()),
			attribute.String("llm.model", c.opts.Model),
			attribute.Int("llm.messages", len(req.Messages)),
			attribute.Int("llm.tools", len(req.Tools)),
		))
	defer span.End()

	if req.MaxTokens <= 0 {
		req.MaxTokens = c.opts.MaxTokens
	}
	if req.Temperature == nil {
		t := c.opts.Temperature
		req.Temperature = &t
	}

	start := time.Now()
	resp, err := c.backend.Complete(ctx, c.opts.Model, req)
	duration := time.Since(start)

	backendAttr := metric.WithAttributes(attribute.String("backend", c.backend.Name()))
	if c.metrics != nil {
		c.metrics.ProviderDuration.Record(ctx, float64(duration.Milliseconds()), backendAttr)
	}

	if err != nil {
		classified := Classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, classified.Error())
		c.logger.Warn("provider call failed",
			"backend", c.backend.Name(),
			"model", c.opts.Model,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return nil, classified
	}

	if c.metrics != nil {
		c.metrics.Tokens.Add(ctx, int64(resp.Usage.InputTokens),
			metric.WithAttributes(attribute.String("backend", c.backend.Name()), attribute.String("direction", "input")))
		c.metrics.Tokens.Add(ctx, int64(resp.Usage.OutputTokens),
			metric.WithAttributes(attribute.String("backend", c.backend.Name()), attribute.String("direction", "output")))
	}
	span.SetAttributes(attribute.String("llm.stop_reason", resp.StopReason))

	c.logger.Debug("provider call finished",
		"backend", c.backend.Name(),
		"model", resp.Model,
		"stop_reason", resp.StopReason,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"duration_ms", duration.Milliseconds())
	return resp, nil
}

// Send forwards a plain conversation and returns the reply text. Roles are
// lowercased for the provider; content is sent as is.
func (c *Client) Send(ctx context.Context, msgs []session.Message) (string, error) {
	reqMessages := make([]Message, len(msgs))
	for i, msg := range msgs {
		reqMessages[i] = Message{
			Role:    strings.ToLower(string(msg.Role)),
			Content: msg.Content,
		}
	}

	resp, err := c.Complete(ctx, Request{Messages: reqMessages})
	if err != nil {
		return "", err
	}
	if resp.Text == "" {
		return "", ErrEmptyReply
	}
	return resp.Text, nil
}

// Validate issues a minimal request to prove the credential works.
func (c *Client) Validate(ctx context.Context) error {
	_, err := c.Complete(ctx, Request{
		Messages:  []Message{{Role: string(session.RoleUser), Content: "test"}},
		MaxTokens: 10,
	})
	return err
}

// ListModels asks the backend for its models when it can enumerate them.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	lister, ok := c.backend.(ModelLister)
	if !ok {
		return nil, ErrNotSupported
	}
	models, err := lister.ListModels(ctx)
	if err != nil {
		return nil, Classify(err)
	}
	return models, nil
}
