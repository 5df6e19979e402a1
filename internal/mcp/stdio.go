package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
)

// StdioTransport runs a local MCP server and exchanges newline-delimited
// JSON-RPC over its stdin/stdout. Stderr is forwarded to the log.
type StdioTransport struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	scanner *bufio.Scanner
	logger  *slog.Logger
	mu      sync.Mutex
	closed  bool
}

// NewStdioTransport starts command. A bare *.py path is run with python3.
func NewStdioTransport(command string, logger *slog.Logger) (*StdioTransport, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("empty MCP server command")
	}
	if len(fields) == 1 && strings.HasSuffix(fields[0], ".py") {
		fields = []string{"python3", fields[0]}
	}

	cmd := exec.Command(fields[0], fields[1:]...) //nolint:gosec // operator-configured command

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start MCP server %q: %w", command, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	t := &StdioTransport{
		cmd:     cmd,
		stdin:   stdin,
		scanner: scanner,
		logger:  logger.With("server", command),
	}
	go t.logStderr(stderr)

	return t, nil
}

// RoundTrip writes the request and reads lines until the matching
// response. A context deadline cannot interrupt a blocked read; callers
// rely on Close to unblock it.
func (t *StdioTransport) RoundTrip(ctx context.Context, req Request) (*Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, errors.New("client is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	requestJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	if _, err := t.stdin.Write(append(requestJSON, '\n')); err != nil {
		return nil, fmt.Errorf("failed to write request: %w", err)
	}

	for t.scanner.Scan() {
		var resp Response
		if err := json.Unmarshal(t.scanner.Bytes(), &resp); err != nil {
			t.logger.Debug("skipping non JSON-RPC line", "error", err)
			continue
		}
		if matches(req, &resp) {
			return &resp, nil
		}
	}
	if err := t.scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return nil, errors.New("EOF from MCP server")
}

func (t *StdioTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	_ = t.stdin.Close()
	if t.cmd.Process != nil {
		if err := t.cmd.Process.Kill(); err != nil {
			t.logger.Warn("failed to kill MCP server process", "error", err)
		}
		_ = t.cmd.Wait()
	}
	return nil
}

func (t *StdioTransport) logStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		t.logger.Warn("MCP server stderr", "message", scanner.Text())
	}
}
