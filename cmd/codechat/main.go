package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"CodeChat/internal/agent"
	"CodeChat/internal/cache"
	"CodeChat/internal/chatbot"
	"CodeChat/internal/config"
	"CodeChat/internal/gateway"
	"CodeChat/internal/mcp"
	"CodeChat/internal/provider"
	"CodeChat/internal/store"
	"CodeChat/internal/telemetry"
	"CodeChat/internal/tools"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", config.DefaultConfigFile, "Path to YAML config file")
	port := flag.String("port", "", "HTTP listen port (overrides config)")
	backend := flag.String("backend", "", "LLM backend (anthropic|openai|grok|ollama)")
	debug := flag.Bool("debug", false, "Enable debug logging to stdout")
	flag.Parse()

	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		return err
	}

	// Flags win over YAML and environment.
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *backend != "" && *backend != cfg.Provider.Backend {
		cfg.Provider.Backend = *backend
		cfg.Provider.APIKey = ""
		cfg.Provider.BaseURL = ""
		cfg.Provider.Model = ""
		cfg.Provider.Models = nil
	}
	if *debug {
		cfg.Logging.Level = "debug"
		cfg.Logging.Stdout = true
	}
	if err := config.Finalize(cfg); err != nil {
		return err
	}

	logger, logFile, err := telemetry.InitLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logFile.Close()

	ctx := context.Background()
	shutdownTelemetry, err := telemetry.InitTelemetry(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer shutdownTelemetry()

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	llm, err := provider.New(cfg.Provider, logger, metrics)
	if err != nil {
		return err
	}
	if !cfg.Provider.HasCredential() {
		logger.Warn("no API key configured; chat requests will be rejected", "backend", cfg.Provider.Backend)
	}

	var replyCache *cache.Cache
	if cfg.Cache.Enabled {
		replyCache, err = cache.New(cfg.Cache.MaxSizeMB<<20, cfg.Cache.TTL)
		if err != nil {
			return fmt.Errorf("failed to create cache: %w", err)
		}
		defer replyCache.Close()
	}

	var transcripts *store.Store
	if cfg.Store.Enabled {
		transcripts, err = store.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer transcripts.Close()
	}

	toolReg := tools.NewRegistry(tools.Builtin()...)
	mcpClients := mcp.NewClientRegistry()
	defer mcpClients.Close()

	var shared []string
	if cfg.MCP.Enabled {
		targets := append(append([]string(nil), cfg.MCP.Local...), cfg.MCP.Remote...)
		discoverCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		shared = tools.Discover(discoverCtx, targets, toolReg, mcpClients, logger)
		cancel()
	}

	agents := agent.DefaultRegistry()
	runner := agent.NewRunner(agents, toolReg, llm, agent.RunnerOptions{
		MaxSteps: cfg.Orchestrator.MaxToolSteps,
		Shared:   shared,
	}, logger)

	svc := chatbot.New(cfg.Provider, cfg.Orchestrator, chatbot.Deps{
		Agents:   agents,
		Runner:   runner,
		Provider: llm,
		Cache:    replyCache,
		Store:    transcripts,
		Metrics:  metrics,
		Logger:   logger,
	})

	schema, err := gateway.NewSchema(gateway.NewResolver(svc, logger))
	if err != nil {
		return fmt.Errorf("failed to parse schema: %w", err)
	}
	srv := gateway.NewServer(cfg.Server, gateway.NewRouter(cfg.Server, schema, logger))

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting server",
			"addr", srv.Addr,
			"backend", cfg.Provider.Backend,
			"model", llm.Model(),
			"tools", toolReg.Names())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			done <- syscall.SIGTERM
		}
	}()

	<-done
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
