package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "codechat.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path. Backend
// defaults are resolved after the overlays so that a backend switched by
// environment still picks up its own base URL and model.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := Finalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Finalize resolves backend defaults and validates cfg. It is called again
// by main after CLI flags are applied.
func Finalize(cfg *Config) error {
	cfg.Provider.Backend = strings.ToLower(strings.TrimSpace(cfg.Provider.Backend))
	if cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = credentialFromEnv(cfg.Provider.Backend)
	}
	cfg.Provider.BackendDefaults()

	if err := validate(cfg); err != nil {
		return fmt.Errorf("config validate: %w", err)
	}
	return nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "CODECHAT_PORT")
	setString(&cfg.Server.CORSOrigin, "CODECHAT_CORS_ORIGIN")
	setDuration(&cfg.Server.RequestTimeout, "CODECHAT_REQUEST_TIMEOUT")

	setString(&cfg.Provider.Backend, "CODECHAT_BACKEND")
	setString(&cfg.Provider.APIKey, "CODECHAT_API_KEY")
	setString(&cfg.Provider.BaseURL, "CODECHAT_PROVIDER_URL")
	setString(&cfg.Provider.Model, "CODECHAT_MODEL")
	setInt(&cfg.Provider.MaxTokens, "CODECHAT_MAX_TOKENS")
	setFloat64(&cfg.Provider.Temperature, "CODECHAT_TEMPERATURE")
	setDuration(&cfg.Provider.Timeout, "CODECHAT_PROVIDER_TIMEOUT")

	setDuration(&cfg.Orchestrator.AgentTimeout, "CODECHAT_AGENT_TIMEOUT")
	setDuration(&cfg.Orchestrator.FallbackTimeout, "CODECHAT_FALLBACK_TIMEOUT")
	setInt(&cfg.Orchestrator.MaxToolSteps, "CODECHAT_MAX_TOOL_STEPS")

	setString(&cfg.Logging.Level, "CODECHAT_LOG_LEVEL")
	setString(&cfg.Logging.Dir, "CODECHAT_LOG_DIR")
	setBool(&cfg.Logging.Stdout, "CODECHAT_LOG_STDOUT")

	setBool(&cfg.Telemetry.Enabled, "CODECHAT_TELEMETRY")
	setBool(&cfg.Cache.Enabled, "CODECHAT_CACHE")
	setDuration(&cfg.Cache.TTL, "CODECHAT_CACHE_TTL")
	setBool(&cfg.Store.Enabled, "CODECHAT_STORE")
	setString(&cfg.Store.Path, "CODECHAT_DB_PATH")

	setBool(&cfg.MCP.Enabled, "CODECHAT_MCP_ENABLED")
	setList(&cfg.MCP.Local, "CODECHAT_MCP_LOCAL")
	setList(&cfg.MCP.Remote, "CODECHAT_MCP_REMOTE")
}

// credentialFromEnv looks up the conventional key variable for a backend.
func credentialFromEnv(backend string) string {
	var keys []string
	switch backend {
	case BackendAnthropic:
		keys = []string{"ANTHROPIC_API_KEY", "CLAUDE_API_KEY"}
	case BackendOpenAI:
		keys = []string{"OPENAI_API_KEY"}
	case BackendGrok:
		keys = []string{"GROK_API_KEY"}
	}
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// validate checks that required fields are set. A missing API key is not
// a load error: every mutation reports it as a failed response instead.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Provider.Backend {
	case BackendAnthropic, BackendOpenAI, BackendGrok, BackendOllama:
	default:
		return fmt.Errorf("unknown provider.backend %q (ollama|anthropic|grok|openai)", cfg.Provider.Backend)
	}
	if cfg.Provider.MaxTokens <= 0 {
		return errors.New("provider.max_tokens must be positive")
	}
	if cfg.Orchestrator.AgentTimeout <= 0 || cfg.Orchestrator.FallbackTimeout <= 0 {
		return errors.New("orchestrator timeouts must be positive")
	}
	if cfg.Orchestrator.MaxToolSteps < 1 {
		return errors.New("orchestrator.max_tool_steps must be at least 1")
	}
	if cfg.Cache.Enabled && cfg.Cache.MaxSizeMB <= 0 {
		return errors.New("cache.max_size_mb must be positive when the cache is enabled")
	}
	if cfg.Store.Enabled && cfg.Store.Path == "" {
		return errors.New("store.path is required when the store is enabled")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setList(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*dst = out
	}
}
