package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentbridge/core"
	"github.com/hupe1980/agentbridge/engine"
	"github.com/hupe1980/agentbridge/team"
	"github.com/hupe1980/agentbridge/tool"
)

// DialogueEntry is one completed Send call.
type DialogueEntry struct {
	Timestamp      time.Time `json:"timestamp" yaml:"timestamp"`
	Message        string    `json:"message" yaml:"message"`
	Response       string    `json:"response" yaml:"response"`
	ToolsAvailable int       `json:"tools_available" yaml:"tools_available"`
}

// ToolInfo describes a registered tool and how often it ran.
type ToolInfo struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	UsageCount  int    `json:"usage_count" yaml:"usage_count"`
	Failures    int    `json:"failures" yaml:"failures"`
}

// DialogueStats summarizes a dialogue agent.
type DialogueStats struct {
	Name           string         `json:"name" yaml:"name"`
	TotalDialogues int            `json:"total_dialogues" yaml:"total_dialogues"`
	ToolsCount     int            `json:"tools_count" yaml:"tools_count"`
	ToolUsage      map[string]int `json:"tool_usage_stats" yaml:"tool_usage_stats"`
	Backend        string         `json:"backend" yaml:"backend"`
	LastActivity   *time.Time     `json:"last_activity" yaml:"last_activity"`
}

// DialogueAgentWithTools is the tool-using dialogue facade. Replies are
// formatted "[name]: response".
type DialogueAgentWithTools struct {
	name        string
	role        string
	description string
	opts        Options
	adapter     *engine.Adapter
	link        *teamLink

	mu            sync.RWMutex
	systemMessage string
	history       []DialogueEntry
}

// NewDialogueAgentWithTools creates and initializes a dialogue facade. Role
// defaults to "assistant" and Description to "Tool-enabled agent <name>".
func NewDialogueAgentWithTools(name, systemMessage string, tools []tool.Tool, optFns ...func(o *Options)) (*DialogueAgentWithTools, error) {
	return newDialogueAgent(name, systemMessage, tools, newOptions(optFns...))
}

func newDialogueAgent(name, systemMessage string, tools []tool.Tool, opts Options) (*DialogueAgentWithTools, error) {
	if name == "" {
		name = "DialogueAgent"
	}
	if systemMessage == "" {
		systemMessage = DefaultDialoguePrompt
	}
	if opts.Role == "" {
		opts.Role = engine.DefaultRole
	}
	if opts.Description == "" {
		opts.Description = "Tool-enabled agent " + name
	}

	a, err := newAdapter(name, systemMessage, tools, opts)
	if err != nil {
		return nil, err
	}

	opts.Logger.Info("agent.dialogue.initialized", "agent", name, "tools", len(tools))

	return &DialogueAgentWithTools{
		name:          name,
		role:          opts.Role,
		description:   opts.Description,
		opts:          opts,
		adapter:       a,
		systemMessage: systemMessage,
	}, nil
}

// Name returns the agent name.
func (d *DialogueAgentWithTools) Name() string { return d.name }

// Adapter returns the backend adapter driving this facade.
func (d *DialogueAgentWithTools) Adapter() *engine.Adapter { return d.adapter }

// Send runs one dialogue turn. Tool directives in message are executed
// through the agent's tool bridge.
func (d *DialogueAgentWithTools) Send(ctx context.Context, message string, opts ...SendOption) (string, error) {
	var so SendOptions
	for _, fn := range opts {
		fn(&so)
	}

	if d.link != nil {
		tc, err := d.link.context(ctx, "")
		if err != nil {
			return "", err
		}
		so.Notes = append(so.Notes, "Team context: "+tc.String())
	}

	runOpts := []engine.RunOption{engine.WithPreamble(d.preamble(so.Notes))}
	if so.Timeout > 0 {
		runOpts = append(runOpts, engine.WithTimeout(so.Timeout))
	}
	if len(so.Metadata) > 0 {
		runOpts = append(runOpts, engine.WithMetadata(so.Metadata))
	}

	d.opts.Logger.Debug("agent.send.start", "agent", d.name, "message", truncate(message, 100))

	out, err := d.adapter.Run(ctx, message, runOpts...)
	if err != nil {
		d.opts.Logger.Error("agent.send.failed", "agent", d.name, "error", err)
		return "", err
	}
	reply := fmt.Sprintf("[%s]: %s", d.name, out)

	d.mu.Lock()
	d.history = append(d.history, DialogueEntry{
		Timestamp:      time.Now().UTC(),
		Message:        message,
		Response:       reply,
		ToolsAvailable: d.adapter.Tools().Len(),
	})
	d.mu.Unlock()

	if d.link != nil {
		_ = d.link.publishOutput(ctx, out)
	}
	return reply, nil
}

// GenerateReply answers the newest message.
func (d *DialogueAgentWithTools) GenerateReply(ctx context.Context, messages []core.Message, opts ...SendOption) (string, error) {
	if len(messages) == 0 {
		return "No messages to respond to.", nil
	}
	return d.Send(ctx, messages[len(messages)-1].Content, opts...)
}

func (d *DialogueAgentWithTools) preamble(notes []string) string {
	tools := toolNames(d.adapter.Tools())
	available := "none"
	if len(tools) > 0 {
		available = strings.Join(tools, ", ")
	}

	d.mu.RLock()
	system := d.systemMessage
	d.mu.RUnlock()

	var sb strings.Builder
	sb.WriteString(system)
	fmt.Fprintf(&sb, "\n\nAgent Role: %s\nDescription: %s\nAvailable Tools: %s", d.role, d.description, available)
	for _, n := range notes {
		sb.WriteString("\n")
		sb.WriteString(n)
	}
	return sb.String()
}

// AddTool registers a tool at runtime.
func (d *DialogueAgentWithTools) AddTool(t tool.Tool) error {
	if err := d.adapter.AddTools(t); err != nil {
		return err
	}
	d.opts.Logger.Info("agent.tool.added", "agent", d.name, "tool", t.Name())
	return nil
}

// RemoveTool unregisters a tool; its usage counters stay in GetStats.
func (d *DialogueAgentWithTools) RemoveTool(name string) bool {
	if !d.adapter.RemoveTool(name) {
		return false
	}
	d.opts.Logger.Info("agent.tool.removed", "agent", d.name, "tool", name)
	return true
}

// GetAvailableTools lists registered tools in registration order.
func (d *DialogueAgentWithTools) GetAvailableTools() []ToolInfo {
	bridge := d.adapter.Tools()
	names := bridge.Names()
	out := make([]ToolInfo, 0, len(names))
	for _, name := range names {
		info := ToolInfo{Name: name, Description: "No description available"}
		if t, ok := bridge.Get(name); ok && t.Description() != "" {
			info.Description = t.Description()
		}
		if s, ok := bridge.Stats(name); ok {
			info.UsageCount = s.Calls
			info.Failures = s.Failures
		}
		out = append(out, info)
	}
	return out
}

// Describe returns "name (role): description".
func (d *DialogueAgentWithTools) Describe() string {
	return fmt.Sprintf("%s (%s): %s", d.name, d.role, d.description)
}

// GetDialogueHistory returns a copy of the completed dialogues.
func (d *DialogueAgentWithTools) GetDialogueHistory() []DialogueEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]DialogueEntry, len(d.history))
	copy(out, d.history)
	return out
}

// ClearHistory drops the dialogue history and the recorded turns.
func (d *DialogueAgentWithTools) ClearHistory(ctx context.Context) error {
	d.mu.Lock()
	d.history = nil
	d.mu.Unlock()

	if err := d.adapter.Reset(ctx); err != nil {
		return err
	}
	d.opts.Logger.Info("agent.history.cleared", "agent", d.name)
	return nil
}

// GetStats summarizes dialogue and tool usage. Tool usage includes tools
// that were removed since.
func (d *DialogueAgentWithTools) GetStats() DialogueStats {
	bridge := d.adapter.Tools()

	usage := make(map[string]int)
	for _, s := range bridge.AllStats() {
		usage[s.Name] = s.Calls
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := DialogueStats{
		Name:           d.name,
		TotalDialogues: len(d.history),
		ToolsCount:     bridge.Len(),
		ToolUsage:      usage,
		Backend:        d.opts.Backend,
	}
	if n := len(d.history); n > 0 {
		last := d.history[n-1].Timestamp
		stats.LastActivity = &last
	}
	return stats
}

// CoordinationEntry is one CoordinateWithTeam call.
type CoordinationEntry struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Message   string    `json:"coordination_message" yaml:"coordination_message"`
	Response  string    `json:"response" yaml:"response"`
	Targets   []string  `json:"target_agents" yaml:"target_agents"`
}

// TeamStats extends DialogueStats with coordination counters.
type TeamStats struct {
	DialogueStats     `yaml:",inline"`
	TeamRole          string     `json:"team_role" yaml:"team_role"`
	CoordinationCount int        `json:"coordination_count" yaml:"coordination_count"`
	LastCoordination  *time.Time `json:"last_coordination" yaml:"last_coordination"`
}

// TeamDialogueAgent is a dialogue facade that belongs to a team. Besides its
// own tools it gets team_context_get and team_context_set.
type TeamDialogueAgent struct {
	*DialogueAgentWithTools

	coordMu      sync.RWMutex
	coordination []CoordinationEntry
}

// NewTeamDialogueAgent creates a dialogue facade that joins Options.Team
// under teamRole (default "member").
func NewTeamDialogueAgent(name, systemMessage, teamRole string, tools []tool.Tool, optFns ...func(o *Options)) (*TeamDialogueAgent, error) {
	opts := newOptions(optFns...)
	if name == "" {
		name = "TeamDialogueAgent"
	}
	if systemMessage == "" {
		systemMessage = DefaultDialoguePrompt
	}
	if teamRole == "" {
		teamRole = DefaultTeamRole
	}

	link, err := joinTeam(name, teamRole, opts.Description, opts)
	if err != nil {
		return nil, err
	}

	all := make([]tool.Tool, 0, len(tools)+2)
	all = append(all, tools...)
	all = append(all, tool.NewTeamContextTools(link.team.Broker(), link.team.ID(), name)...)

	d, err := newDialogueAgent(name, TeamDialoguePrompt(systemMessage, teamRole), all, opts)
	if err != nil {
		_ = link.team.RemoveMember(name)
		return nil, err
	}
	d.link = link

	opts.Logger.Info("agent.team.joined", "agent", name, "team", link.team.ID(), "role", teamRole)
	return &TeamDialogueAgent{DialogueAgentWithTools: d}, nil
}

// TeamDialoguePrompt wraps a system message with the team briefing.
func TeamDialoguePrompt(systemMessage, teamRole string) string {
	return fmt.Sprintf("\n%s\n\nTEAM ROLE: %s\nYou are part of a collaborative team of AI agents. Coordinate effectively with team members,\nshare relevant information, and leverage team expertise to solve complex problems.\n", systemMessage, teamRole)
}

// TeamRole returns the agent's role in its team.
func (t *TeamDialogueAgent) TeamRole() string { return t.link.role }

// Team returns the team the agent joined.
func (t *TeamDialogueAgent) Team() *team.Team { return t.link.team }

// CoordinateWithTeam sends a coordination request and publishes the outcome
// under "coordination:<name>". A failed publish is logged; the reply is
// still returned because the turn was recorded.
func (t *TeamDialogueAgent) CoordinateWithTeam(ctx context.Context, message string, targets []string) (string, error) {
	reply, err := t.Send(ctx, "Team coordination required: "+message,
		WithSendMetadata(map[string]string{
			"type":          "team_coordination",
			"from_agent":    t.name,
			"role":          t.link.role,
			"target_agents": strings.Join(targets, ","),
		}),
	)
	if err != nil {
		return "", err
	}

	entry := CoordinationEntry{
		Timestamp: time.Now().UTC(),
		Message:   message,
		Response:  reply,
		Targets:   append([]string(nil), targets...),
	}
	t.coordMu.Lock()
	t.coordination = append(t.coordination, entry)
	t.coordMu.Unlock()

	targetList := make([]any, len(targets))
	for i, s := range targets {
		targetList[i] = s
	}
	// The turn is already recorded; a failed publish is only logged.
	_ = t.link.publish(ctx, CoordinationKeyPrefix+t.name, map[string]any{
		"message":  message,
		"response": reply,
		"role":     t.link.role,
		"targets":  targetList,
	})
	return reply, nil
}

// GetCoordinationHistory returns a copy of the coordination log.
func (t *TeamDialogueAgent) GetCoordinationHistory() []CoordinationEntry {
	t.coordMu.RLock()
	defer t.coordMu.RUnlock()
	out := make([]CoordinationEntry, len(t.coordination))
	copy(out, t.coordination)
	return out
}

// GetTeamStats extends GetStats with the team role and coordination counts.
func (t *TeamDialogueAgent) GetTeamStats() TeamStats {
	stats := TeamStats{
		DialogueStats: t.GetStats(),
		TeamRole:      t.link.role,
	}

	t.coordMu.RLock()
	defer t.coordMu.RUnlock()
	stats.CoordinationCount = len(t.coordination)
	if n := len(t.coordination); n > 0 {
		last := t.coordination[n-1].Timestamp
		stats.LastCoordination = &last
	}
	return stats
}
