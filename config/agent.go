package config

import (
	"fmt"
	"time"

	"github.com/hupe1980/agentbridge/core"
)

// Agent kinds.
const (
	KindConversational = "conversational"
	KindDialogue       = "dialogue"
)

// Agent types. TypeTeam selects the team-aware variant of a kind.
const (
	TypeStandard = "standard"
	TypeTeam     = "team"
)

// AgentConfig describes one agent facade.
type AgentConfig struct {
	Name string `yaml:"name"`
	// Kind is conversational (default) or dialogue.
	Kind string `yaml:"kind,omitempty"`
	// Type is standard (default) or team.
	Type string `yaml:"type,omitempty"`

	Role         string `yaml:"role,omitempty"`
	Description  string `yaml:"description,omitempty"`
	SystemPrompt string `yaml:"system_prompt,omitempty"`

	// Team is the team id a team agent joins; TeamRole its role there.
	Team     string `yaml:"team,omitempty"`
	TeamRole string `yaml:"team_role,omitempty"`

	// Tools names catalog tools; Categories adds whole catalog categories.
	Tools      []string `yaml:"tools,omitempty"`
	Categories []string `yaml:"categories,omitempty"`

	// Nil keeps the default (true).
	MemoryEnabled    *bool `yaml:"memory_enabled,omitempty"`
	EnableReflection *bool `yaml:"enable_reflection,omitempty"`

	// Zero keeps the defaults (10 and 100).
	MaxChainLength int `yaml:"max_chain_length,omitempty"`
	MaxHistory     int `yaml:"max_history,omitempty"`

	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Backend overrides EngineConfig.Backend for this agent.
	Backend string `yaml:"backend,omitempty"`
	Model   string `yaml:"model,omitempty"`
}

// Validate checks the agent definition.
func (a AgentConfig) Validate() error {
	switch a.Kind {
	case "", KindConversational, KindDialogue:
	default:
		return core.NewConfigurationError("kind", fmt.Sprintf("unknown kind %q", a.Kind))
	}
	switch a.Type {
	case "", TypeStandard, TypeTeam:
	default:
		return core.NewConfigurationError("type", fmt.Sprintf("unknown type %q", a.Type))
	}
	if !validBackend(a.Backend) {
		return core.NewConfigurationError("backend", fmt.Sprintf("unknown backend %q", a.Backend))
	}
	if a.MaxChainLength < 0 {
		return core.NewConfigurationError("max_chain_length", "must not be negative")
	}
	if a.MaxHistory < 0 {
		return core.NewConfigurationError("max_history", "must not be negative")
	}
	if a.Timeout < 0 {
		return core.NewConfigurationError("timeout", "must not be negative")
	}
	return nil
}

// IsTeam reports whether the team variant is selected.
func (a AgentConfig) IsTeam() bool { return a.Type == TypeTeam }

// MemoryOn returns MemoryEnabled, default true.
func (a AgentConfig) MemoryOn() bool { return boolOr(a.MemoryEnabled, true) }

// ReflectionOn returns EnableReflection, default true.
func (a AgentConfig) ReflectionOn() bool { return boolOr(a.EnableReflection, true) }

// Bool returns a pointer to b, for literal AgentConfig values.
func Bool(b bool) *bool { return &b }

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
