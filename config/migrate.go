package config

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentbridge/core"
)

// DefaultMigratedName names a legacy agent that had no name.
const DefaultMigratedName = "migrated_agent"

// Legacy defaults applied when a key is absent.
const (
	legacyMaxHistory     = 100
	legacyMaxChainLength = 10
)

// legacyKeys lists the keys MigrateLegacy understands.
var legacyKeys = map[string]bool{
	"name":              true,
	"tools":             true,
	"enable_memory":     true,
	"max_memory_length": true,
	"max_iterations":    true,
	"llm":               true,
	"prompt_template":   true,
	"description":       true,
	"type":              true,
}

// Migration is the outcome of MigrateLegacy.
type Migration struct {
	Agent AgentConfig
	// Unmapped lists legacy keys without a counterpart, sorted.
	Unmapped []string
}

// ParseLegacy decodes a legacy JSON or YAML agent definition.
func ParseLegacy(data []byte) (map[string]any, error) {
	var legacy map[string]any
	if err := yaml.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("parse legacy config: %w", err)
	}
	if legacy == nil {
		legacy = map[string]any{}
	}
	return legacy, nil
}

// MigrateLegacy converts a REACT-style agent definition to an AgentConfig:
//
//	name              -> name (default "migrated_agent")
//	tools             -> tools
//	enable_memory     -> enable_reflection (default true)
//	max_memory_length -> max_history (default 100)
//	max_iterations    -> max_chain_length (default 10)
//	llm               -> backend / model
//	prompt_template   -> system_prompt
func MigrateLegacy(legacy map[string]any) (*Migration, error) {
	agent := AgentConfig{
		Name:             DefaultMigratedName,
		Kind:             KindConversational,
		Type:             TypeStandard,
		EnableReflection: Bool(true),
		MaxHistory:       legacyMaxHistory,
		MaxChainLength:   legacyMaxChainLength,
	}

	if v, ok := legacy["name"]; ok {
		s, err := asString("name", v)
		if err != nil {
			return nil, err
		}
		if s != "" {
			agent.Name = s
		}
	}

	if v, ok := legacy["description"]; ok {
		s, err := asString("description", v)
		if err != nil {
			return nil, err
		}
		agent.Description = s
	}

	if v, ok := legacy["type"]; ok {
		s, err := asString("type", v)
		if err != nil {
			return nil, err
		}
		if s == TypeTeam {
			agent.Type = TypeTeam
		}
	}

	if v, ok := legacy["tools"]; ok {
		tools, err := toolNames(v)
		if err != nil {
			return nil, err
		}
		agent.Tools = tools
		if len(tools) > 0 {
			agent.Kind = KindDialogue
		}
	}

	if v, ok := legacy["enable_memory"]; ok {
		b, isBool := v.(bool)
		if !isBool {
			return nil, core.NewConfigurationError("enable_memory", fmt.Sprintf("expected bool, got %T", v))
		}
		agent.EnableReflection = Bool(b)
	}

	if v, ok := legacy["max_memory_length"]; ok {
		n, err := asInt("max_memory_length", v)
		if err != nil {
			return nil, err
		}
		agent.MaxHistory = n
	}

	if v, ok := legacy["max_iterations"]; ok {
		n, err := asInt("max_iterations", v)
		if err != nil {
			return nil, err
		}
		agent.MaxChainLength = n
	}

	if v, ok := legacy["llm"]; ok {
		backend, model, err := llmSettings(v)
		if err != nil {
			return nil, err
		}
		agent.Backend, agent.Model = backend, model
	}

	if v, ok := legacy["prompt_template"]; ok {
		s, err := asString("prompt_template", v)
		if err != nil {
			return nil, err
		}
		agent.SystemPrompt = s
	}

	if err := agent.Validate(); err != nil {
		return nil, err
	}

	var unmapped []string
	for k := range legacy {
		if !legacyKeys[k] {
			unmapped = append(unmapped, k)
		}
	}
	sort.Strings(unmapped)

	return &Migration{Agent: agent, Unmapped: unmapped}, nil
}

// MarshalAgents renders agent definitions as the agents section of a
// configuration file.
func MarshalAgents(agents ...AgentConfig) ([]byte, error) {
	return yaml.Marshal(struct {
		Agents []AgentConfig `yaml:"agents"`
	}{Agents: agents})
}

func asString(field string, v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case nil:
		return "", nil
	default:
		return "", core.NewConfigurationError(field, fmt.Sprintf("expected string, got %T", v))
	}
}

func asInt(field string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, core.NewConfigurationError(field, fmt.Sprintf("expected integer, got %v", n))
		}
		return int(n), nil
	default:
		return 0, core.NewConfigurationError(field, fmt.Sprintf("expected integer, got %T", v))
	}
}

// toolNames accepts a list of names or of objects carrying a name.
func toolNames(v any) ([]string, error) {
	list, ok := v.([]any)
	if !ok {
		if v == nil {
			return nil, nil
		}
		return nil, core.NewConfigurationError("tools", fmt.Sprintf("expected list, got %T", v))
	}
	names := make([]string, 0, len(list))
	for i, item := range list {
		switch t := item.(type) {
		case string:
			names = append(names, t)
		case map[string]any:
			name, _ := t["name"].(string)
			if name == "" {
				return nil, core.NewConfigurationError(fmt.Sprintf("tools[%d]", i), "tool object without name")
			}
			names = append(names, name)
		default:
			return nil, core.NewConfigurationError(fmt.Sprintf("tools[%d]", i), fmt.Sprintf("unsupported tool entry %T", item))
		}
	}
	return names, nil
}

// llmSettings maps a legacy llm entry (a model name or an object with
// provider / model keys) to a backend and model.
func llmSettings(v any) (string, string, error) {
	switch llm := v.(type) {
	case string:
		return providerFor(llm), llm, nil
	case map[string]any:
		model, _ := llm["model"].(string)
		if model == "" {
			model, _ = llm["model_name"].(string)
		}
		provider, _ := llm["provider"].(string)
		backend := strings.ToLower(provider)
		if backend == "" {
			backend = providerFor(model)
		}
		if !validBackend(backend) {
			return "", "", core.NewConfigurationError("llm.provider", fmt.Sprintf("unsupported provider %q", provider))
		}
		return backend, model, nil
	default:
		return "", "", core.NewConfigurationError("llm", fmt.Sprintf("expected string or object, got %T", v))
	}
}

func providerFor(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "claude"):
		return BackendAnthropic
	case strings.HasPrefix(m, "gpt"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return BackendOpenAI
	default:
		return BackendSimulated
	}
}
