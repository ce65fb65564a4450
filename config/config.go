// Package config loads agentbridge settings from YAML with environment
// overrides and converts legacy agent definitions.
//
// Load order: defaults, then the YAML file, then AGENTBRIDGE_* variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentbridge/core"
	"github.com/hupe1980/agentbridge/logging"
)

// Backend names accepted by EngineConfig.Backend and AgentConfig.Backend.
const (
	BackendSimulated = "simulated"
	BackendAnthropic = "anthropic"
	BackendOpenAI    = "openai"
)

// Broker types accepted by BrokerConfig.Type.
const (
	BrokerMemory = "memory"
	BrokerRedis  = "redis"
)

// Config is the root configuration document.
type Config struct {
	Log     logging.Config `yaml:"log"`
	Engine  EngineConfig   `yaml:"engine"`
	Broker  BrokerConfig   `yaml:"broker"`
	Metrics MetricsConfig  `yaml:"metrics"`
	Agents  []AgentConfig  `yaml:"agents"`
}

// EngineConfig selects the reasoning backend and global run limits.
type EngineConfig struct {
	// Backend is simulated (default), anthropic or openai.
	Backend string `yaml:"backend" env:"AGENTBRIDGE_ENGINE_BACKEND"`
	Model   string `yaml:"model" env:"AGENTBRIDGE_ENGINE_MODEL"`
	// APIKey is only read from the environment.
	APIKey string `yaml:"-" env:"AGENTBRIDGE_ENGINE_API_KEY"`
	// BaseURL overrides the provider endpoint, e.g. for a gateway.
	BaseURL string `yaml:"base_url" env:"AGENTBRIDGE_ENGINE_BASE_URL"`

	// MaxConcurrentInvocations caps in-flight runs. 0 = unlimited.
	MaxConcurrentInvocations int64 `yaml:"max_concurrent_invocations" env:"AGENTBRIDGE_ENGINE_MAX_CONCURRENT_INVOCATIONS"`
	// Timeout is the default per-run timeout. 0 = none.
	Timeout time.Duration `yaml:"timeout" env:"AGENTBRIDGE_ENGINE_TIMEOUT"`
	// Degraded turns run failures into flagged replies.
	Degraded bool `yaml:"degraded" env:"AGENTBRIDGE_ENGINE_DEGRADED"`
	// SimulatedDelay is slept by the simulated backend before each call.
	SimulatedDelay time.Duration `yaml:"simulated_delay" env:"AGENTBRIDGE_ENGINE_SIMULATED_DELAY"`
	// RateLimit caps runs per second per agent. 0 = unlimited.
	RateLimit float64 `yaml:"rate_limit" env:"AGENTBRIDGE_ENGINE_RATE_LIMIT"`
	RateBurst int     `yaml:"rate_burst" env:"AGENTBRIDGE_ENGINE_RATE_BURST"`
}

// BrokerConfig selects the team context store.
type BrokerConfig struct {
	// Type is memory (default) or redis.
	Type          string `yaml:"type" env:"AGENTBRIDGE_BROKER_TYPE"`
	RedisAddr     string `yaml:"redis_addr" env:"AGENTBRIDGE_BROKER_REDIS_ADDR"`
	RedisPassword string `yaml:"-" env:"AGENTBRIDGE_BROKER_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"AGENTBRIDGE_BROKER_REDIS_DB"`
	Prefix        string `yaml:"prefix" env:"AGENTBRIDGE_BROKER_PREFIX"`
	// MaxRetries bounds optimistic-lock retries of Update on redis.
	MaxRetries int `yaml:"max_retries" env:"AGENTBRIDGE_BROKER_MAX_RETRIES"`
}

// MetricsConfig toggles the Prometheus collector.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"AGENTBRIDGE_METRICS_ENABLED"`
	Namespace string `yaml:"namespace" env:"AGENTBRIDGE_METRICS_NAMESPACE"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: logging.Config{
			Backend: "slog",
			Level:   "info",
			Format:  "json",
		},
		Engine: EngineConfig{
			Backend: BackendSimulated,
		},
		Broker: BrokerConfig{
			Type:       BrokerMemory,
			Prefix:     "agentbridge:",
			MaxRetries: 10,
		},
		Metrics: MetricsConfig{
			Namespace: "agentbridge",
		},
	}
}

// Load reads path (optional) over the defaults, applies environment
// overrides and validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a YAML document over the defaults without reading the
// environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section and returns the first problem as a
// *core.ConfigurationError.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return &core.ConfigurationError{Field: "log.level", Err: err}
	}
	switch strings.ToLower(c.Log.Backend) {
	case "", "slog", "zap", "none", "noop":
	default:
		return core.NewConfigurationError("log.backend", fmt.Sprintf("unknown backend %q", c.Log.Backend))
	}

	if !validBackend(c.Engine.Backend) {
		return core.NewConfigurationError("engine.backend", fmt.Sprintf("unknown backend %q", c.Engine.Backend))
	}
	if c.Engine.MaxConcurrentInvocations < 0 {
		return core.NewConfigurationError("engine.max_concurrent_invocations", "must not be negative")
	}
	if c.Engine.Timeout < 0 || c.Engine.SimulatedDelay < 0 {
		return core.NewConfigurationError("engine.timeout", "must not be negative")
	}
	if c.Engine.RateLimit < 0 || c.Engine.RateBurst < 0 {
		return core.NewConfigurationError("engine.rate_limit", "must not be negative")
	}

	switch c.Broker.Type {
	case "", BrokerMemory:
	case BrokerRedis:
		if c.Broker.RedisAddr == "" {
			return core.NewConfigurationError("broker.redis_addr", "required for redis broker")
		}
	default:
		return core.NewConfigurationError("broker.type", fmt.Sprintf("unknown broker %q", c.Broker.Type))
	}
	if c.Broker.MaxRetries < 0 {
		return core.NewConfigurationError("broker.max_retries", "must not be negative")
	}

	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if a.Name == "" {
			return core.NewConfigurationError(fmt.Sprintf("agents[%d].name", i), "agent name is required")
		}
		if err := a.Validate(); err != nil {
			var cfgErr *core.ConfigurationError
			if errors.As(err, &cfgErr) {
				cfgErr.Field = fmt.Sprintf("agents[%d].%s", i, cfgErr.Field)
			}
			return err
		}
		if seen[a.Name] {
			return core.NewConfigurationError(fmt.Sprintf("agents[%d].name", i), fmt.Sprintf("duplicate agent %q", a.Name))
		}
		seen[a.Name] = true
	}
	return nil
}

// Agent returns the agent definition named name.
func (c *Config) Agent(name string) (AgentConfig, bool) {
	for _, a := range c.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return AgentConfig{}, false
}

func validBackend(b string) bool {
	switch b {
	case "", BackendSimulated, BackendAnthropic, BackendOpenAI:
		return true
	default:
		return false
	}
}
