// Package mcp is a minimal Model Context Protocol client used to offer
// remote tools to agents. One Client speaks JSON-RPC over an HTTP,
// WebSocket or stdio Transport.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

// Transport carries one JSON-RPC exchange to a server.
type Transport interface {
	RoundTrip(ctx context.Context, req Request) (*Response, error)
	Close() error
}

// Client is a connection to one MCP server.
type Client struct {
	name      string
	transport Transport
	reqID     atomic.Int64
	logger    *slog.Logger
}

// NewClient wraps a transport.
func NewClient(name string, t Transport, logger *slog.Logger) *Client {
	return &Client{name: name, transport: t, logger: logger}
}

// Dial picks the transport from the target: ws:// and wss:// URLs use
// WebSocket, http:// and https:// use HTTP, anything else is started as a
// local command speaking stdio.
func Dial(ctx context.Context, target string, logger *slog.Logger) (*Client, error) {
	var (
		t   Transport
		err error
	)
	switch {
	case strings.HasPrefix(target, "ws://"), strings.HasPrefix(target, "wss://"):
		t, err = NewWebSocketTransport(ctx, target)
	case strings.HasPrefix(target, "http://"), strings.HasPrefix(target, "https://"):
		t = NewHTTPTransport(target)
	default:
		t, err = NewStdioTransport(target, logger)
	}
	if err != nil {
		return nil, err
	}
	return NewClient(target, t, logger), nil
}

// Name returns the client identifier
func (c *Client) Name() string {
	return c.name
}

// Initialize performs the MCP handshake.
func (c *Client) Initialize(ctx context.Context) error {
	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      Implementation{Name: "codechat", Version: "1.0.0"},
	}

	var result InitializeResult
	if err := c.call(ctx, MethodInitialize, params, &result); err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}

	c.logger.Info("MCP server initialized",
		"server", result.ServerInfo.Name,
		"version", result.ServerInfo.Version,
		"protocol", result.ProtocolVersion)
	return nil
}

// ListTools returns the tools this server offers.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	var result ListToolsResult
	if err := c.call(ctx, MethodListTools, nil, &result); err != nil {
		return nil, fmt.Errorf("list tools failed: %w", err)
	}
	return result.Tools, nil
}

// CallTool invokes a tool with given arguments
func (c *Client) CallTool(ctx context.Context, toolName string, args map[string]any) (*CallToolResult, error) {
	params := CallToolParams{Name: toolName, Arguments: args}

	var result CallToolResult
	if err := c.call(ctx, MethodCallTool, params, &result); err != nil {
		return nil, fmt.Errorf("call tool %s failed: %w", toolName, err)
	}
	return &result, nil
}

// Close disconnects from the MCP server
func (c *Client) Close() error {
	return c.transport.Close()
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	req := Request{
		JSONRPC: "2.0",
		ID:      c.reqID.Add(1),
		Method:  method,
		Params:  params,
	}

	resp, err := c.transport.RoundTrip(ctx, req)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}
	return nil
}

// matches reports whether resp answers req; server notifications carry no id.
func matches(req Request, resp *Response) bool {
	return resp.ID != nil && *resp.ID == req.ID
}

// ClientRegistry manages multiple MCP clients
type ClientRegistry struct {
	clients map[string]*Client
	mu      sync.RWMutex
}

// NewClientRegistry creates a new client registry
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{clients: make(map[string]*Client)}
}

// Register adds a client to the registry
func (r *ClientRegistry) Register(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client.Name()] = client
}

// Get retrieves a client by name
func (r *ClientRegistry) Get(name string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[name]
	return client, ok
}

// Count returns the number of registered clients
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Close closes all registered clients
func (r *ClientRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, client := range r.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close client %s: %w", name, err)
		}
	}
	r.clients = make(map[string]*Client)
	return firstErr
}
