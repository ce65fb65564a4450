package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/agentbridge/core"
	"github.com/hupe1980/agentbridge/engine"
	"github.com/hupe1980/agentbridge/team"
	"github.com/hupe1980/agentbridge/tool"
)

// Info summarizes a conversational agent.
type Info struct {
	Name               string `json:"name" yaml:"name"`
	Type               string `json:"type" yaml:"type"`
	Backend            string `json:"backend" yaml:"backend"`
	MemoryEnabled      bool   `json:"memory_enabled" yaml:"memory_enabled"`
	ToolsCount         int    `json:"tools_count" yaml:"tools_count"`
	ConversationLength int    `json:"conversation_length" yaml:"conversation_length"`
	// SystemPrompt is cut to 100 characters.
	SystemPrompt string `json:"system_prompt" yaml:"system_prompt"`
	TeamRole     string `json:"team_role,omitempty" yaml:"team_role,omitempty"`
}

// ConversationalAgent is the plain chat facade.
type ConversationalAgent struct {
	name          string
	kind          string
	memoryEnabled bool
	opts          Options
	adapter       *engine.Adapter
	link          *teamLink

	mu           sync.RWMutex
	systemPrompt string
}

// NewConversationalAgent creates and initializes a conversational facade.
// An empty name becomes "ConversationalAgent" and an empty systemPrompt the
// default collaborative prompt. With memoryEnabled the last five exchanges
// are replayed into every turn.
func NewConversationalAgent(name, systemPrompt string, memoryEnabled bool, tools []tool.Tool, optFns ...func(o *Options)) (*ConversationalAgent, error) {
	return newConversationalAgent("ConversationalAgent", name, systemPrompt, memoryEnabled, tools, newOptions(optFns...))
}

func newConversationalAgent(kind, name, systemPrompt string, memoryEnabled bool, tools []tool.Tool, opts Options) (*ConversationalAgent, error) {
	if name == "" {
		name = DefaultConversationalName
	}
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	a, err := newAdapter(name, systemPrompt, tools, opts)
	if err != nil {
		return nil, err
	}

	opts.Logger.Info("agent.conversational.initialized", "agent", name, "tools", len(tools), "memory", memoryEnabled)

	return &ConversationalAgent{
		name:          name,
		kind:          kind,
		memoryEnabled: memoryEnabled,
		opts:          opts,
		adapter:       a,
		systemPrompt:  systemPrompt,
	}, nil
}

// Name returns the agent name.
func (c *ConversationalAgent) Name() string { return c.name }

// Adapter returns the backend adapter driving this facade.
func (c *ConversationalAgent) Adapter() *engine.Adapter { return c.adapter }

// Chat runs one conversational turn. Team variants fill in the team context
// when chatCtx carries none.
func (c *ConversationalAgent) Chat(ctx context.Context, message string, chatCtx *ChatContext) (string, error) {
	if c.link != nil && (chatCtx == nil || chatCtx.Team == nil) {
		tc, err := c.link.context(ctx, "")
		if err != nil {
			return "", err
		}
		merged := ChatContext{Team: tc}
		if chatCtx != nil {
			merged.PreviousMessages = chatCtx.PreviousMessages
		}
		chatCtx = &merged
	}
	return c.chat(ctx, message, chatCtx)
}

// GenerateResponse is an alias of Chat kept for legacy call sites.
func (c *ConversationalAgent) GenerateResponse(ctx context.Context, prompt string, chatCtx *ChatContext) (string, error) {
	return c.Chat(ctx, prompt, chatCtx)
}

func (c *ConversationalAgent) chat(ctx context.Context, message string, chatCtx *ChatContext) (string, error) {
	preamble, err := c.preamble(ctx, chatCtx)
	if err != nil {
		return "", err
	}

	out, err := c.adapter.Run(ctx, message, engine.WithPreamble(preamble))
	if err != nil {
		c.opts.Logger.Error("agent.chat.failed", "agent", c.name, "error", err)
		return "", err
	}
	out = engine.StripReflection(out)

	if c.link != nil {
		// The turn is already recorded; a failed publish is only logged.
		_ = c.link.publishOutput(ctx, out)
	}

	c.opts.Logger.Debug("agent.chat.success", "agent", c.name, "chars", len(out))
	return out, nil
}

// preamble assembles the system prompt, recent exchanges, caller messages
// and the team note.
func (c *ConversationalAgent) preamble(ctx context.Context, chatCtx *ChatContext) (string, error) {
	var msgs []core.Message
	if c.memoryEnabled {
		turns, err := c.adapter.History(ctx)
		if err != nil {
			return "", err
		}
		msgs = lastExchanges(turns, c.window())
	}
	if chatCtx != nil {
		msgs = append(msgs, chatCtx.PreviousMessages...)
		if chatCtx.Team != nil {
			msgs = append(msgs, core.Message{Role: "system", Content: "Team context: " + chatCtx.Team.String()})
		}
	}

	parts := []string{c.SystemPrompt()}
	if conv := renderConversation(msgs); conv != "" {
		parts = append(parts, conv)
	}
	return strings.Join(parts, "\n\n"), nil
}

// window is ContextWindow, narrowed by a smaller MaxHistory.
func (c *ConversationalAgent) window() int {
	if h := c.adapter.Config().MaxHistory; h > 0 && h < ContextWindow {
		return h
	}
	return ContextWindow
}

// GetMemory returns the recorded exchanges, oldest first. It is empty when
// memory is disabled.
func (c *ConversationalAgent) GetMemory(ctx context.Context) ([]core.Turn, error) {
	if !c.memoryEnabled {
		return nil, nil
	}
	return c.adapter.History(ctx)
}

// ClearMemory drops this agent's recorded exchanges.
func (c *ConversationalAgent) ClearMemory(ctx context.Context) error {
	if err := c.adapter.Reset(ctx); err != nil {
		return err
	}
	c.opts.Logger.Info("agent.memory.cleared", "agent", c.name)
	return nil
}

// Recall searches past exchanges, newest first.
func (c *ConversationalAgent) Recall(ctx context.Context, query string, limit int) ([]core.Turn, error) {
	return c.adapter.Recall(ctx, query, limit)
}

// SystemPrompt returns the active system prompt.
func (c *ConversationalAgent) SystemPrompt() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.systemPrompt
}

// SetSystemPrompt replaces the system prompt for following turns.
func (c *ConversationalAgent) SetSystemPrompt(prompt string) {
	c.mu.Lock()
	c.systemPrompt = prompt
	c.mu.Unlock()
	c.adapter.SetSystemPrompt(prompt)
	c.opts.Logger.Info("agent.system_prompt.updated", "agent", c.name)
}

// AddTool registers a tool with the backend.
func (c *ConversationalAgent) AddTool(t tool.Tool) error {
	if err := c.adapter.AddTools(t); err != nil {
		return err
	}
	c.opts.Logger.Info("agent.tool.added", "agent", c.name, "tool", t.Name())
	return nil
}

// GetAgentInfo summarizes the agent.
func (c *ConversationalAgent) GetAgentInfo(ctx context.Context) Info {
	memory, err := c.GetMemory(ctx)
	if err != nil {
		c.opts.Logger.Warn("agent.info.history_failed", "agent", c.name, "error", err)
	}
	info := Info{
		Name:               c.name,
		Type:               c.kind,
		Backend:            c.opts.Backend,
		MemoryEnabled:      c.memoryEnabled,
		ToolsCount:         c.adapter.Tools().Len(),
		ConversationLength: len(memory),
		SystemPrompt:       truncate(c.SystemPrompt(), 100),
	}
	if c.link != nil {
		info.TeamRole = c.link.role
	}
	return info
}

// TeamConversationalAgent is a conversational facade that belongs to a team.
type TeamConversationalAgent struct {
	*ConversationalAgent
}

// NewTeamConversationalAgent creates a conversational facade that joins
// Options.Team under teamRole (default "member") and prefixes its system
// prompt with the team briefing.
func NewTeamConversationalAgent(name, teamRole, systemPrompt string, memoryEnabled bool, tools []tool.Tool, optFns ...func(o *Options)) (*TeamConversationalAgent, error) {
	opts := newOptions(optFns...)
	if name == "" {
		name = "TeamAgent"
	}
	if teamRole == "" {
		teamRole = DefaultTeamRole
	}
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	if opts.Role == "" {
		opts.Role = teamRole
	}

	link, err := joinTeam(name, teamRole, opts.Description, opts)
	if err != nil {
		return nil, err
	}

	c, err := newConversationalAgent("TeamConversationalAgent", name, TeamPrompt(systemPrompt, teamRole), memoryEnabled, tools, opts)
	if err != nil {
		_ = link.team.RemoveMember(name)
		return nil, err
	}
	c.link = link

	opts.Logger.Info("agent.team.joined", "agent", name, "team", link.team.ID(), "role", teamRole)
	return &TeamConversationalAgent{ConversationalAgent: c}, nil
}

// TeamPrompt wraps a system prompt with the team briefing.
func TeamPrompt(systemPrompt, teamRole string) string {
	return fmt.Sprintf("\n%s\n\nYou are part of a team of AI agents. Your specific role is: %s\nCollaborate effectively with other team members and maintain team context.\n", systemPrompt, teamRole)
}

// TeamRole returns the agent's role in its team.
func (t *TeamConversationalAgent) TeamRole() string { return t.link.role }

// Team returns the team the agent joined.
func (t *TeamConversationalAgent) Team() *team.Team { return t.link.team }

// RegisterTeamMember adds a teammate under memberName.
func (t *TeamConversationalAgent) RegisterTeamMember(memberName string, info core.AgentInfo) error {
	info.Name = memberName
	if _, err := t.link.team.AddMember(info); err != nil {
		return err
	}
	t.opts.Logger.Info("agent.team.member_registered", "agent", t.name, "member", memberName)
	return nil
}

// UpdateSharedContext publishes values to the team context in key order.
func (t *TeamConversationalAgent) UpdateSharedContext(ctx context.Context, values map[string]any) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := t.link.publish(ctx, k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

// TeamChat runs a turn with the current team context and the sender's name.
func (t *TeamConversationalAgent) TeamChat(ctx context.Context, message, sender string) (string, error) {
	tc, err := t.link.context(ctx, sender)
	if err != nil {
		return "", err
	}
	return t.chat(ctx, message, &ChatContext{Team: tc})
}
