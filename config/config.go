// Package config loads runtime configuration from a YAML file with
// environment variable substitution. Values of the form ${VAR} or
// ${VAR:-default} are resolved against the process environment before
// parsing, so secrets stay out of the file itself. A .env file next to
// the working directory is loaded first when present.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// Config is the top-level runtime configuration.
type Config struct {
	// Server holds HTTP transport settings.
	Server ServerConfig `yaml:"server"`
	// Sessions holds conversation persistence settings.
	Sessions SessionsConfig `yaml:"sessions"`
	// Agents holds agent definition discovery settings.
	Agents AgentsConfig `yaml:"agents"`
	// Models holds provider credentials and the default model spec.
	Models ModelsConfig `yaml:"models"`
	// Guardrail holds safety evaluation settings.
	Guardrail GuardrailConfig `yaml:"guardrail"`
	// Tools holds settings for built-in tool backends.
	Tools ToolsConfig `yaml:"tools"`
	// Logging holds log level and format.
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SessionsConfig configures where session state is persisted.
type SessionsConfig struct {
	Root string `yaml:"root"`
}

// AgentsConfig configures agent definition discovery.
type AgentsConfig struct {
	Dir string `yaml:"dir"`
	// Router is the name of the entry-point agent for chat requests.
	Router string `yaml:"router"`
	// MaxIterations caps model/tool round trips per turn. Zero means the
	// executor default.
	MaxIterations int `yaml:"max_iterations"`
}

// ModelsConfig configures model providers.
type ModelsConfig struct {
	// Default is a "provider:model" spec, e.g. "openai:gpt-4o-mini".
	Default         string `yaml:"default"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
}

// GuardrailConfig configures the input/output safety checks.
type GuardrailConfig struct {
	// Enabled toggles guardrail evaluation entirely.
	Enabled bool `yaml:"enabled"`
	// Model is the "provider:model" spec used by the evaluator. Empty means
	// the default model.
	Model string `yaml:"model"`
	// Timeout bounds a single evaluation. Zero means 10s.
	Timeout time.Duration `yaml:"timeout"`
	// FailOpen approves content when evaluation times out instead of
	// rejecting the turn.
	FailOpen bool `yaml:"fail_open"`
}

// ToolsConfig configures built-in tool backends.
type ToolsConfig struct {
	// SupportDBPath points at the SQLite support database. Empty disables
	// the support tools.
	SupportDBPath string `yaml:"support_db_path"`
	// KnowledgePath points at the persistent vector store directory. Empty
	// disables the rag_search tool.
	KnowledgePath string `yaml:"knowledge_path"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with sensible local development defaults.
func Default() *Config {
	return &Config{
		Server:    ServerConfig{Addr: ":8080"},
		Sessions:  SessionsConfig{Root: "./sessions"},
		Agents:    AgentsConfig{Dir: "./agents", Router: "router"},
		Models:    ModelsConfig{Default: "openai:gpt-4o-mini"},
		Guardrail: GuardrailConfig{Enabled: true, Timeout: 10 * time.Second},
		Logging:   LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads the YAML file at path, substitutes environment variables and
// returns the merged configuration. A missing file yields defaults.
func Load(path string) (*Config, error) {
	// Best effort: a .env file is optional.
	_ = godotenv.Load()

	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	expanded := SubstituteEnv(string(raw))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// SubstituteEnv replaces ${VAR} and ${VAR:-default} references with values
// from the environment. Unset variables without a default become empty.
func SubstituteEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envPattern.FindStringSubmatch(match)
		if v, ok := os.LookupEnv(groups[1]); ok {
			return v
		}
		return groups[2]
	})
}

// applyEnv fills provider credentials from the conventional environment
// variables when the file leaves them empty.
func (c *Config) applyEnv() {
	if c.Models.OpenAIAPIKey == "" {
		c.Models.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Models.AnthropicAPIKey == "" {
		c.Models.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
}
