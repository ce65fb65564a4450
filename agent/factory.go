package agent

import (
	"fmt"

	"github.com/hupe1980/agentbridge/config"
	"github.com/hupe1980/agentbridge/core"
	"github.com/hupe1980/agentbridge/engine"
	"github.com/hupe1980/agentbridge/internal/util"
	"github.com/hupe1980/agentbridge/tool"
)

// CreateConversationalAgent builds a conversational facade from a definition.
// Type "team" yields a *TeamConversationalAgent (default name "TeamAgent",
// role "member"), anything else a *ConversationalAgent (default name
// "Agent"). Tools are resolved from catalog by name and category. The
// system prompt may use the template fields described at renderPrompt.
func CreateConversationalAgent(def config.AgentConfig, catalog *tool.Catalog, optFns ...func(o *Options)) (Chatter, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	tools, err := resolveTools(def, catalog)
	if err != nil {
		return nil, err
	}
	optFns = append(optFns, fromDefinition(def))

	if def.IsTeam() {
		name := nameOr(def.Name, "TeamAgent")
		prompt, err := renderPrompt(def, name, tools)
		if err != nil {
			return nil, err
		}
		a, err := NewTeamConversationalAgent(name, def.TeamRole, prompt, def.MemoryOn(), tools, optFns...)
		if err != nil {
			return nil, err
		}
		return a, nil
	}

	name := nameOr(def.Name, "Agent")
	prompt, err := renderPrompt(def, name, tools)
	if err != nil {
		return nil, err
	}
	a, err := NewConversationalAgent(name, prompt, def.MemoryOn(), tools, optFns...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// CreateDialogueAgent builds a dialogue facade from a definition. Type
// "team" yields a *TeamDialogueAgent (default name "TeamDialogueAgent"),
// anything else a *DialogueAgentWithTools (default name "DialogueAgent").
func CreateDialogueAgent(def config.AgentConfig, catalog *tool.Catalog, optFns ...func(o *Options)) (ToolSender, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	tools, err := resolveTools(def, catalog)
	if err != nil {
		return nil, err
	}
	optFns = append(optFns, fromDefinition(def))

	if def.IsTeam() {
		name := nameOr(def.Name, "TeamDialogueAgent")
		prompt, err := renderPrompt(def, name, tools)
		if err != nil {
			return nil, err
		}
		a, err := NewTeamDialogueAgent(name, prompt, def.TeamRole, tools, optFns...)
		if err != nil {
			return nil, err
		}
		return a, nil
	}

	name := nameOr(def.Name, "DialogueAgent")
	prompt, err := renderPrompt(def, name, tools)
	if err != nil {
		return nil, err
	}
	a, err := NewDialogueAgentWithTools(name, prompt, tools, optFns...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// fromDefinition applies the definition on top of the caller's options.
func fromDefinition(def config.AgentConfig) func(o *Options) {
	return func(o *Options) {
		if def.Role != "" {
			o.Role = def.Role
		}
		if def.Description != "" {
			o.Description = def.Description
		}
		if def.Backend != "" {
			o.Backend = def.Backend
		}

		prev := o.Configure
		o.Configure = func(cfg *engine.Config) {
			if prev != nil {
				prev(cfg)
			}
			cfg.EnableReflection = def.ReflectionOn()
			if def.MaxChainLength > 0 {
				cfg.MaxChainLength = def.MaxChainLength
			}
			if def.MaxHistory > 0 {
				cfg.MaxHistory = def.MaxHistory
			}
			if def.Timeout > 0 {
				cfg.Timeout = def.Timeout
			}
		}
	}
}

// renderPrompt expands template markers in the definition's system prompt.
// Fields: .name .role .description .team .team_role and .tools (names).
func renderPrompt(def config.AgentConfig, name string, tools []tool.Tool) (string, error) {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name()
	}
	out, err := util.RenderTemplate(def.SystemPrompt, map[string]any{
		"name":        name,
		"role":        def.Role,
		"description": def.Description,
		"team":        def.Team,
		"team_role":   def.TeamRole,
		"tools":       names,
	})
	if err != nil {
		return "", &core.ConfigurationError{Field: "system_prompt", Message: err.Error(), Err: err}
	}
	return out, nil
}

// resolveTools collects the named tools, then whole categories, skipping
// repeats.
func resolveTools(def config.AgentConfig, catalog *tool.Catalog) ([]tool.Tool, error) {
	if len(def.Tools) == 0 && len(def.Categories) == 0 {
		return nil, nil
	}
	if catalog == nil {
		return nil, fmt.Errorf("agent %s: tools requested without a catalog", def.Name)
	}

	named, err := catalog.Resolve(def.Tools...)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", def.Name, err)
	}

	seen := make(map[string]bool, len(named))
	out := make([]tool.Tool, 0, len(named))
	for _, t := range append(named, catalog.ToolsByCategory(def.Categories...)...) {
		if seen[t.Name()] {
			continue
		}
		seen[t.Name()] = true
		out = append(out, t)
	}
	return out, nil
}

func nameOr(name, def string) string {
	if name == "" {
		return def
	}
	return name
}
