// Package config holds CodeChat runtime configuration.
// Precedence: defaults < YAML file < environment variables < CLI flags.
package config

import "time"

const (
	BackendOllama    = "ollama"
	BackendAnthropic = "anthropic"
	BackendGrok      = "grok"
	BackendOpenAI    = "openai"
)

// Config holds application configuration
type Config struct {
	Server       Server       `yaml:"server"`
	Provider     Provider     `yaml:"provider"`
	Orchestrator Orchestrator `yaml:"orchestrator"`
	Logging      Logging      `yaml:"logging"`
	Telemetry    Telemetry    `yaml:"telemetry"`
	Cache        Cache        `yaml:"cache"`
	Store        Store        `yaml:"store"`
	MCP          MCP          `yaml:"mcp"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port           string        `yaml:"port"`
	CORSOrigin     string        `yaml:"cors_origin"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	BodyLimit      int64         `yaml:"body_limit"`
}

// Provider holds the LLM backend selection and its credential.
type Provider struct {
	Backend     string        `yaml:"backend"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Models      []string      `yaml:"models"` // advertised through availableModels
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Orchestrator bounds the two phases of a chat turn.
type Orchestrator struct {
	AgentTimeout    time.Duration `yaml:"agent_timeout"`
	FallbackTimeout time.Duration `yaml:"fallback_timeout"`
	MaxToolSteps    int           `yaml:"max_tool_steps"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Dir     string `yaml:"dir"`
	Stdout  bool   `yaml:"stdout"`
}

// Telemetry controls the OpenTelemetry file exporters.
type Telemetry struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// Cache configures the in-process reply cache.
type Cache struct {
	Enabled   bool          `yaml:"enabled"`
	MaxSizeMB int64         `yaml:"max_size_mb"`
	TTL       time.Duration `yaml:"ttl"`
}

// Store configures the sqlite transcript store.
type Store struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MCP lists tool servers whose tools are offered to every agent.
type MCP struct {
	Enabled bool     `yaml:"enabled"`
	Local   []string `yaml:"local"`  // commands started over stdio
	Remote  []string `yaml:"remote"` // http(s):// or ws(s):// URLs
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:           "8787",
			CORSOrigin:     "*",
			RequestTimeout: 120 * time.Second,
			BodyLimit:      1 << 20,
		},
		Provider: Provider{
			Backend:     BackendAnthropic,
			MaxTokens:   1000,
			Temperature: 0.7,
			Timeout:     60 * time.Second,
		},
		Orchestrator: Orchestrator{
			AgentTimeout:    60 * time.Second,
			FallbackTimeout: 45 * time.Second,
			MaxToolSteps:    5,
		},
		Logging: Logging{
			Level:   "info",
			Service: "codechat",
			Dir:     "logs",
		},
		Telemetry: Telemetry{
			Enabled: true,
			Dir:     "logs",
		},
		Cache: Cache{
			Enabled:   true,
			MaxSizeMB: 64,
			TTL:       10 * time.Minute,
		},
		Store: Store{
			Enabled: true,
			Path:    "codechat.db",
		},
	}
}

// BackendDefaults fills in the base URL, model and advertised model list
// for the configured backend when they were not set explicitly.
func (p *Provider) BackendDefaults() {
	var baseURL, model string
	var models []string
	switch p.Backend {
	case BackendAnthropic:
		baseURL = "https://api.anthropic.com"
		model = "claude-3-5-sonnet-20241022"
		models = []string{
			"claude-3-5-sonnet-20241022",
			"claude-3-5-haiku-20241022",
			"claude-3-opus-20240229",
		}
	case BackendOpenAI:
		baseURL = "https://api.openai.com"
		model = "gpt-3.5-turbo"
	case BackendGrok:
		baseURL = "https://api.grok.x.ai"
		model = "grok-1"
	case BackendOllama:
		baseURL = "http://localhost:11434"
		model = "llama3:latest"
	}
	if p.BaseURL == "" {
		p.BaseURL = baseURL
	}
	if p.Model == "" {
		p.Model = model
	}
	if len(p.Models) == 0 {
		p.Models = models
		if len(p.Models) == 0 && p.Model != "" {
			p.Models = []string{p.Model}
		}
	}
}

// HasCredential reports whether the backend can be called. Ollama runs
// locally and needs no key.
func (p Provider) HasCredential() bool {
	return p.Backend == BackendOllama || p.APIKey != ""
}
