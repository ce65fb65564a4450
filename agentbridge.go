// Package agentbridge wires the adapter layer together from one
// configuration: logger, metrics, team context broker, turn store, reasoning
// backend, engine registry and the agent facades declared in the config.
//
// Most applications:
//  1. Load a config.Config (config.Load) or start from config.Default()
//  2. Create a Bridge via New
//  3. Call LoadAgents, then talk to agents through Conversational / Dialogue
//     or run them by name with Run
//
// Defaults are in-memory and offline (simulated backend), so a zero setup is
// safe for local development and tests.
package agentbridge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentbridge/agent"
	"github.com/hupe1980/agentbridge/config"
	"github.com/hupe1980/agentbridge/core"
	"github.com/hupe1980/agentbridge/engine"
	"github.com/hupe1980/agentbridge/internal/metrics"
	"github.com/hupe1980/agentbridge/logging"
	"github.com/hupe1980/agentbridge/memory"
	"github.com/hupe1980/agentbridge/model"
	"github.com/hupe1980/agentbridge/model/anthropic"
	"github.com/hupe1980/agentbridge/model/openai"
	"github.com/hupe1980/agentbridge/team"
	"github.com/hupe1980/agentbridge/tool"
)

// ErrUnknownAgent is returned for agent names no facade was created for.
var ErrUnknownAgent = errors.New("unknown agent")

// Options configures a Bridge. Unset fields are derived from Config.
type Options struct {
	// Config defaults to config.Default().
	Config *config.Config

	// Logger overrides the logger built from Config.Log.
	Logger logging.Logger
	// Registerer receives the metric families when Config.Metrics.Enabled.
	// Nil uses prometheus.DefaultRegisterer.
	Registerer     prometheus.Registerer
	TracerProvider trace.TracerProvider

	// Broker overrides the broker selected by Config.Broker.
	Broker core.ContextBroker
	// Turns overrides the turn store (redis when the broker is redis,
	// in-memory otherwise).
	Turns core.TurnStore
	// RedisClient is used instead of dialing Config.Broker.RedisAddr.
	RedisClient redis.UniversalClient

	// Reasoner overrides the backend selection for every agent.
	Reasoner core.Reasoner
	// Catalog resolves tool names in agent definitions. Defaults to
	// tool.DefaultCatalog().
	Catalog *tool.Catalog
	// Callbacks are installed on every adapter.
	Callbacks *engine.CallbackManager
}

// Bridge is the assembled adapter layer.
type Bridge struct {
	opts       Options
	cfg        *config.Config
	logger     logging.Logger
	metrics    *metrics.Collector
	broker     core.ContextBroker
	turns      core.TurnStore
	engine     *engine.Engine
	redis      redis.UniversalClient
	ownsClient bool

	mu        sync.Mutex
	teams     map[string]*team.Team
	chatters  map[string]agent.Chatter
	senders   map[string]agent.ToolSender
	reasoners map[string]core.Reasoner
}

// New assembles a Bridge. It fails when the configuration is invalid or the
// logger cannot be built.
func New(optFns ...func(o *Options)) (*Bridge, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Catalog == nil {
		opts.Catalog = tool.DefaultCatalog()
	}

	logger := opts.Logger
	if logger == nil {
		l, err := logging.New(cfg.Log)
		if err != nil {
			return nil, &core.ConfigurationError{Field: "log", Err: err}
		}
		logger = l
	}

	b := &Bridge{
		opts:      opts,
		cfg:       cfg,
		logger:    logger,
		teams:     make(map[string]*team.Team),
		chatters:  make(map[string]agent.Chatter),
		senders:   make(map[string]agent.ToolSender),
		reasoners: make(map[string]core.Reasoner),
	}

	if cfg.Metrics.Enabled {
		b.metrics = metrics.NewCollector(cfg.Metrics.Namespace, opts.Registerer)
	}

	b.broker, b.turns = opts.Broker, opts.Turns
	if cfg.Broker.Type == config.BrokerRedis && (b.broker == nil || b.turns == nil) {
		b.redis = opts.RedisClient
		if b.redis == nil {
			b.redis = redis.NewClient(&redis.Options{
				Addr:     cfg.Broker.RedisAddr,
				Password: cfg.Broker.RedisPassword,
				DB:       cfg.Broker.RedisDB,
			})
			b.ownsClient = true
		}
		if b.broker == nil {
			b.broker = team.NewRedisBroker(b.redis, cfg.Broker.Prefix, b.brokerOptions)
		}
		if b.turns == nil {
			b.turns = memory.NewRedisStore(b.redis, cfg.Broker.Prefix)
		}
	}
	if b.broker == nil {
		b.broker = team.NewInMemoryBroker(b.brokerOptions)
	}
	if b.turns == nil {
		b.turns = memory.NewInMemoryStore()
	}

	b.engine = engine.New(func(o *engine.Options) {
		o.MaxConcurrentInvocations = cfg.Engine.MaxConcurrentInvocations
		o.Logger = logger
	})

	logger.Info("agentbridge.started",
		"backend", cfg.Engine.Backend,
		"broker", cfg.Broker.Type,
		"metrics", cfg.Metrics.Enabled,
	)
	return b, nil
}

func (b *Bridge) brokerOptions(o *team.BrokerOptions) {
	o.Logger = b.logger
	o.Metrics = b.metrics
	o.MaxRetries = b.cfg.Broker.MaxRetries
}

// Config returns the active configuration.
func (b *Bridge) Config() *config.Config { return b.cfg }

// Logger returns the shared logger.
func (b *Bridge) Logger() logging.Logger { return b.logger }

// Engine returns the registry holding every facade's adapter.
func (b *Bridge) Engine() *engine.Engine { return b.engine }

// Broker returns the team context broker.
func (b *Bridge) Broker() core.ContextBroker { return b.broker }

// Catalog returns the tool catalog used for agent definitions.
func (b *Bridge) Catalog() *tool.Catalog { return b.opts.Catalog }

// Team returns the team with the given id, creating it on first use.
func (b *Bridge) Team(id string) *team.Team {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.teams[id]
	if !ok {
		t = team.New(id, b.broker)
		b.teams[id] = t
	}
	return t
}

// Reasoner returns the reasoner for a backend and model, built once per pair.
// Empty values fall back to the engine defaults.
func (b *Bridge) Reasoner(backend, modelName string) (core.Reasoner, error) {
	if b.opts.Reasoner != nil {
		return b.opts.Reasoner, nil
	}
	if backend == "" {
		backend = b.cfg.Engine.Backend
	}
	if modelName == "" {
		modelName = b.cfg.Engine.Model
	}

	key := backend + "/" + modelName
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.reasoners[key]; ok {
		return r, nil
	}

	var m model.Model
	switch backend {
	case "", config.BackendSimulated:
		r := &engine.SimulatedReasoner{Delay: b.cfg.Engine.SimulatedDelay}
		b.reasoners[key] = r
		return r, nil
	case config.BackendAnthropic:
		m = anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = b.cfg.Engine.APIKey
			o.BaseURL = b.cfg.Engine.BaseURL
			if modelName != "" {
				o.Model = anthropicsdk.Model(modelName)
			}
		})
	case config.BackendOpenAI:
		m = openai.NewModel(func(o *openai.Options) {
			o.APIKey = b.cfg.Engine.APIKey
			o.BaseURL = b.cfg.Engine.BaseURL
			if modelName != "" {
				o.Model = modelName
			}
		})
	default:
		return nil, core.NewConfigurationError("backend", fmt.Sprintf("unknown backend %q", backend))
	}

	r := engine.NewModelReasoner(m, func(o *engine.ModelReasonerOptions) {
		o.Logger = b.logger
	})
	b.reasoners[key] = r
	return r, nil
}

// facadeOptions derives facade options for def from the bridge settings.
func (b *Bridge) facadeOptions(def config.AgentConfig) (func(o *agent.Options), error) {
	reasoner, err := b.Reasoner(def.Backend, def.Model)
	if err != nil {
		return nil, err
	}

	backend := def.Backend
	if backend == "" {
		backend = b.cfg.Engine.Backend
	}

	tm := b.teamFor(def)
	engineCfg := b.cfg.Engine
	return func(o *agent.Options) {
		o.Backend = backend
		o.Reasoner = reasoner
		o.Turns = b.turns
		o.Logger = b.logger
		o.Metrics = b.metrics
		o.TracerProvider = b.opts.TracerProvider
		o.Callbacks = b.opts.Callbacks
		o.Team = tm
		o.Configure = func(cfg *engine.Config) {
			cfg.Timeout = engineCfg.Timeout
			cfg.Degraded = engineCfg.Degraded
			cfg.RateLimit = engineCfg.RateLimit
			cfg.RateBurst = engineCfg.RateBurst
		}
	}, nil
}

// teamFor returns the team def joins, or nil for a standalone agent.
func (b *Bridge) teamFor(def config.AgentConfig) *team.Team {
	if !def.IsTeam() {
		return nil
	}
	id := def.Team
	if id == "" {
		id = def.Name
	}
	return b.Team(id)
}

// CreateAgent builds the facade described by def and registers its adapter
// with the engine. Kind "dialogue" yields a ToolSender, anything else a
// Chatter.
func (b *Bridge) CreateAgent(def config.AgentConfig) (any, error) {
	if def.Name == "" {
		return nil, core.NewConfigurationError("name", "agent name is required")
	}
	optFn, err := b.facadeOptions(def)
	if err != nil {
		return nil, err
	}

	var (
		facade  any
		adapter *engine.Adapter
	)
	switch def.Kind {
	case config.KindDialogue:
		s, err := agent.CreateDialogueAgent(def, b.opts.Catalog, optFn)
		if err != nil {
			return nil, err
		}
		facade, adapter = s, adapterOf(s)
	default:
		c, err := agent.CreateConversationalAgent(def, b.opts.Catalog, optFn)
		if err != nil {
			return nil, err
		}
		facade, adapter = c, adapterOf(c)
	}

	if err := b.engine.Register(adapter); err != nil {
		// The facade joined its team on construction; leave no orphan member.
		if tm := b.teamFor(def); tm != nil {
			_ = tm.RemoveMember(def.Name)
		}
		return nil, err
	}

	b.mu.Lock()
	switch f := facade.(type) {
	case agent.ToolSender:
		b.senders[def.Name] = f
	case agent.Chatter:
		b.chatters[def.Name] = f
	}
	b.mu.Unlock()

	b.logger.Info("agentbridge.agent.created", "agent", def.Name, "kind", def.Kind, "type", def.Type)
	return facade, nil
}

// LoadAgents creates every agent declared in the configuration.
func (b *Bridge) LoadAgents() error {
	for _, def := range b.cfg.Agents {
		if _, err := b.CreateAgent(def); err != nil {
			return fmt.Errorf("agent %s: %w", def.Name, err)
		}
	}
	return nil
}

// Conversational returns the conversational facade named name.
func (b *Bridge) Conversational(name string) (agent.Chatter, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.chatters[name]
	return c, ok
}

// Dialogue returns the dialogue facade named name.
func (b *Bridge) Dialogue(name string) (agent.ToolSender, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.senders[name]
	return s, ok
}

// Agents returns the names of all created facades, sorted.
func (b *Bridge) Agents() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.chatters)+len(b.senders))
	for n := range b.chatters {
		names = append(names, n)
	}
	for n := range b.senders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Send routes message to the named agent through its facade: Chat for
// conversational agents, Send for dialogue agents.
func (b *Bridge) Send(ctx context.Context, name, message string) (string, error) {
	if c, ok := b.Conversational(name); ok {
		return c.Chat(ctx, message, nil)
	}
	if s, ok := b.Dialogue(name); ok {
		return s.Send(ctx, message)
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownAgent, name)
}

// Run executes one raw adapter turn by agent name, bypassing the facade.
func (b *Bridge) Run(ctx context.Context, name, input string) (string, error) {
	return b.engine.Run(ctx, name, input)
}

// Close releases the Redis client if the bridge dialed it.
func (b *Bridge) Close() error {
	if b.ownsClient && b.redis != nil {
		return b.redis.Close()
	}
	return nil
}

func adapterOf(facade any) *engine.Adapter {
	if f, ok := facade.(interface{ Adapter() *engine.Adapter }); ok {
		return f.Adapter()
	}
	return nil
}
