package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentbridge/core"
	"github.com/hupe1980/agentbridge/engine"
	"github.com/hupe1980/agentbridge/internal/metrics"
	"github.com/hupe1980/agentbridge/logging"
	"github.com/hupe1980/agentbridge/team"
	"github.com/hupe1980/agentbridge/tool"
)

// Defaults carried over from the legacy agents.
const (
	DefaultSystemPrompt       = "You are a helpful AI assistant that collaborates effectively with other agents."
	DefaultDialoguePrompt     = "You are a helpful AI assistant."
	DefaultTeamRole           = team.RoleMember
	DefaultBackend            = "simulated"
	DefaultConversationalName = "ConversationalAgent"

	// ContextWindow is the number of past exchanges replayed into each turn.
	ContextWindow = 5

	// LastOutputKeyPrefix prefixes the team context key a team agent
	// publishes its latest reply under.
	LastOutputKeyPrefix = "last_output:"
	// CoordinationKeyPrefix prefixes the key written by CoordinateWithTeam.
	CoordinationKeyPrefix = "coordination:"
)

// Chatter is the conversational capability.
type Chatter interface {
	Chat(ctx context.Context, message string, chatCtx *ChatContext) (string, error)
}

// ToolSender is the tool-using dialogue capability.
type ToolSender interface {
	Send(ctx context.Context, message string, opts ...SendOption) (string, error)
}

// TeamChatter is the team conversation capability.
type TeamChatter interface {
	Chatter
	TeamChat(ctx context.Context, message, sender string) (string, error)
}

// ChatContext carries optional per-call context. A nil *ChatContext is the
// same as an empty one.
type ChatContext struct {
	// PreviousMessages are replayed after the agent's own recent exchanges.
	PreviousMessages []core.Message
	// Team is rendered as a "Team context:" system note.
	Team *TeamContext
}

// TeamContext describes the team around a turn.
type TeamContext struct {
	Role    string
	Members []string
	Shared  map[string]any
	Sender  string
}

// String renders the team context on a single line with sorted shared keys.
func (tc *TeamContext) String() string {
	if tc == nil {
		return ""
	}
	parts := []string{
		"role=" + tc.Role,
		"members=[" + strings.Join(tc.Members, ", ") + "]",
	}
	if tc.Sender != "" {
		parts = append(parts, "sender="+tc.Sender)
	}
	if len(tc.Shared) > 0 {
		keys := make([]string, 0, len(tc.Shared))
		for k := range tc.Shared {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		shared := make([]string, len(keys))
		for i, k := range keys {
			shared[i] = k + "=" + engine.FormatValue(tc.Shared[k])
		}
		parts = append(parts, "shared={"+strings.Join(shared, "; ")+"}")
	}
	return strings.Join(parts, " ")
}

// SendOptions holds per-call settings of Send.
type SendOptions struct {
	// Notes are extra context lines for the backend.
	Notes []string
	// Metadata is attached to the recorded turn's run.
	Metadata map[string]string
	// Timeout overrides the agent timeout for this call.
	Timeout time.Duration
}

// SendOption configures a single Send call.
type SendOption func(o *SendOptions)

// WithNote adds a context line for the backend.
func WithNote(note string) SendOption {
	return func(o *SendOptions) { o.Notes = append(o.Notes, note) }
}

// WithSendMetadata attaches run metadata.
func WithSendMetadata(md map[string]string) SendOption {
	return func(o *SendOptions) {
		if o.Metadata == nil {
			o.Metadata = make(map[string]string, len(md))
		}
		for k, v := range md {
			o.Metadata[k] = v
		}
	}
}

// WithSendTimeout bounds a single call.
func WithSendTimeout(d time.Duration) SendOption {
	return func(o *SendOptions) { o.Timeout = d }
}

// Options configures a facade and the adapter it owns.
type Options struct {
	// Role and Description identify the agent to its backend and team.
	Role        string
	Description string
	// Backend is the backend name reported by GetAgentInfo and GetStats.
	Backend string

	Reasoner       core.Reasoner
	Turns          core.TurnStore
	Logger         logging.Logger
	Metrics        *metrics.Collector
	TracerProvider trace.TracerProvider
	Callbacks      *engine.CallbackManager

	// Configure adjusts the adapter configuration before Initialize.
	Configure func(cfg *engine.Config)

	// Team is joined by the team variants. Nil creates a private team with
	// an in-memory broker.
	Team *team.Team
}

func newOptions(optFns ...func(o *Options)) Options {
	opts := Options{Backend: DefaultBackend}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.Backend == "" {
		opts.Backend = DefaultBackend
	}
	return opts
}

// newAdapter builds and initializes the adapter behind a facade. Facades
// replay recent exchanges themselves, so adapter-side history is off.
func newAdapter(name, systemPrompt string, tools []tool.Tool, opts Options) (*engine.Adapter, error) {
	a := engine.NewAdapter(func(o *engine.AdapterOptions) {
		if opts.Reasoner != nil {
			o.Reasoner = opts.Reasoner
		}
		if opts.Turns != nil {
			o.Turns = opts.Turns
		}
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
		o.TracerProvider = opts.TracerProvider
		o.Callbacks = opts.Callbacks
	})

	cfg := engine.DefaultConfig(name)
	cfg.SystemPrompt = systemPrompt
	cfg.Tools = tools
	cfg.MemoryEnabled = false
	if opts.Role != "" {
		cfg.Role = opts.Role
	}
	cfg.Description = opts.Description
	if opts.Configure != nil {
		opts.Configure(&cfg)
	}

	if err := a.Initialize(cfg); err != nil {
		return nil, err
	}
	return a, nil
}

// teamLink connects a team variant to its team's context.
type teamLink struct {
	team   *team.Team
	agent  string
	role   string
	logger logging.Logger
}

func joinTeam(agent, role, description string, opts Options) (*teamLink, error) {
	t := opts.Team
	if t == nil {
		t = team.New(agent, team.NewInMemoryBroker())
	}
	if _, err := t.AddMember(core.AgentInfo{Name: agent, Role: role, Description: description}); err != nil {
		return nil, err
	}
	return &teamLink{team: t, agent: agent, role: role, logger: opts.Logger}, nil
}

// context reads the team snapshot into a TeamContext for one turn.
func (l *teamLink) context(ctx context.Context, sender string) (*TeamContext, error) {
	snap, err := l.team.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("read team context: %w", err)
	}
	shared := make(map[string]any, len(snap))
	for k, e := range snap {
		shared[k] = e.Value
	}
	return &TeamContext{
		Role:    l.role,
		Members: l.team.MemberNames(),
		Shared:  shared,
		Sender:  sender,
	}, nil
}

func (l *teamLink) publish(ctx context.Context, key string, value any) error {
	if err := l.team.Publish(ctx, l.agent, key, value); err != nil {
		l.logger.Warn("agent.team.publish.failed", "agent", l.agent, "team", l.team.ID(), "key", key, "error", err)
		return fmt.Errorf("write team context: %w", err)
	}
	return nil
}

func (l *teamLink) publishOutput(ctx context.Context, output string) error {
	return l.publish(ctx, LastOutputKeyPrefix+l.agent, output)
}

// lastExchanges returns the newest n turns as user/assistant messages.
func lastExchanges(turns []core.Turn, n int) []core.Message {
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	msgs := make([]core.Message, 0, 2*len(turns))
	for _, t := range turns {
		msgs = append(msgs, t.Messages()...)
	}
	return msgs
}

// renderConversation formats context messages as "- role: content" lines.
func renderConversation(msgs []core.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Previous conversation:\n")
	for _, m := range msgs {
		role := m.Role
		if role == "" {
			role = "user"
		}
		fmt.Fprintf(&sb, "- %s: %s\n", role, m.Content)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func toolNames(b *tool.Bridge) []string {
	if b == nil {
		return nil
	}
	return b.Names()
}
