package tools

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"CodeChat/internal/mcp"
	"CodeChat/internal/provider"
)

// remoteTool forwards calls to a tool hosted on an MCP server.
type remoteTool struct {
	client *mcp.Client
	info   mcp.ToolInfo
}

func (t *remoteTool) Spec() provider.ToolSpec {
	return provider.ToolSpec{
		Name:        t.info.Name,
		Description: t.info.Description,
		InputSchema: t.info.InputSchema,
	}
}

func (t *remoteTool) Call(ctx context.Context, input map[string]any) (string, error) {
	res, err := t.client.CallTool(ctx, t.info.Name, input)
	if err != nil {
		return "", err
	}
	if res.IsError {
		return "", errors.New(res.Text())
	}
	return res.Text(), nil
}

// Discover connects to every target concurrently, performs the MCP
// handshake and registers the tools each server offers. A server that
// cannot be reached is logged and skipped, as is one already held in
// clients. Connected clients are added to clients so the caller can
// close them.
func Discover(ctx context.Context, targets []string, reg *Registry, clients *mcp.ClientRegistry, logger *slog.Logger) []string {
	var (
		mu         sync.Mutex
		discovered []string
	)

	g, ctx := errgroup.WithContext(ctx)
	seen := make(map[string]bool, len(targets))
	for _, target := range targets {
		if seen[target] {
			continue
		}
		seen[target] = true
		if _, ok := clients.Get(target); ok {
			logger.Debug("MCP server already connected", "target", target)
			continue
		}
		target := target
		g.Go(func() error {
			found, err := discoverOne(ctx, target, reg, clients, logger)
			if err != nil {
				logger.Warn("MCP server unavailable", "target", target, "error", err)
				return nil
			}
			mu.Lock()
			discovered = append(discovered, found...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return discovered
}

func discoverOne(ctx context.Context, target string, reg *Registry, clients *mcp.ClientRegistry, logger *slog.Logger) ([]string, error) {
	client, err := mcp.Dial(ctx, target, logger)
	if err != nil {
		return nil, err
	}
	if err := client.Initialize(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	infos, err := client.ListTools(ctx)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	clients.Register(client)

	var names []string
	for _, info := range infos {
		if err := reg.Register(&remoteTool{client: client, info: info}); err != nil {
			logger.Warn("skipping MCP tool", "target", target, "tool", info.Name, "error", err)
			continue
		}
		names = append(names, info.Name)
	}
	logger.Info("MCP tools discovered", "target", target, "count", len(names))
	return names, nil
}
