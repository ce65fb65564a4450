package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentbridge/config"
	"github.com/hupe1980/agentbridge/core"
	"github.com/hupe1980/agentbridge/engine"
	"github.com/hupe1980/agentbridge/team"
	"github.com/hupe1980/agentbridge/tool"
)

func TestCreateConversationalAgent(t *testing.T) {
	t.Run("standard", func(t *testing.T) {
		a, err := CreateConversationalAgent(config.AgentConfig{}, nil)
		require.NoError(t, err)

		c, ok := a.(*ConversationalAgent)
		require.True(t, ok)
		assert.Equal(t, "Agent", c.Name())
		assert.True(t, c.GetAgentInfo(context.Background()).MemoryEnabled)
	})

	t.Run("team", func(t *testing.T) {
		tm := team.New("alpha", team.NewInMemoryBroker())
		a, err := CreateConversationalAgent(config.AgentConfig{Type: config.TypeTeam}, nil, withTeam(tm))
		require.NoError(t, err)

		c, ok := a.(*TeamConversationalAgent)
		require.True(t, ok)
		assert.Equal(t, "TeamAgent", c.Name())
		assert.Equal(t, DefaultTeamRole, c.TeamRole())
		assert.Equal(t, []string{"TeamAgent"}, tm.MemberNames())

		_, isTeam := a.(TeamChatter)
		assert.True(t, isTeam)
	})

	t.Run("definition overrides", func(t *testing.T) {
		def := config.AgentConfig{
			Name:             "writer",
			Role:             "author",
			SystemPrompt:     "Write well.",
			Backend:          config.BackendOpenAI,
			MemoryEnabled:    config.Bool(false),
			EnableReflection: config.Bool(false),
			MaxChainLength:   3,
			Timeout:          time.Second,
			Tools:            []string{"echo"},
			Categories:       []string{"text", "general"},
		}
		a, err := CreateConversationalAgent(def, tool.DefaultCatalog(), func(o *Options) {
			o.Configure = func(cfg *engine.Config) {
				cfg.Degraded = true
				cfg.MaxChainLength = 99
			}
		})
		require.NoError(t, err)

		c := a.(*ConversationalAgent)
		cfg := c.Adapter().Config()
		assert.Equal(t, "author", cfg.Role)
		assert.False(t, cfg.EnableReflection)
		assert.Equal(t, 3, cfg.MaxChainLength, "the definition wins over caller defaults")
		assert.True(t, cfg.Degraded, "caller settings not named by the definition survive")
		assert.Equal(t, time.Second, cfg.Timeout)

		info := c.GetAgentInfo(context.Background())
		assert.Equal(t, config.BackendOpenAI, info.Backend)
		assert.False(t, info.MemoryEnabled)
		assert.Equal(t, "Write well.", info.SystemPrompt)

		names := c.Adapter().Tools().Names()
		assert.Equal(t, "echo", names[0])
		assert.Contains(t, names, "word_count")
		assert.Contains(t, names, "uppercase")
		assert.Len(t, names, 3, "echo is not registered twice")
	})

	t.Run("unknown tool", func(t *testing.T) {
		_, err := CreateConversationalAgent(config.AgentConfig{Name: "x", Tools: []string{"nope"}}, tool.DefaultCatalog())
		assert.ErrorContains(t, err, `tool "nope" not found`)
	})

	t.Run("tools without catalog", func(t *testing.T) {
		_, err := CreateConversationalAgent(config.AgentConfig{Name: "x", Tools: []string{"echo"}}, nil)
		assert.Error(t, err)
	})
}

func TestCreateDialogueAgent(t *testing.T) {
	t.Run("standard", func(t *testing.T) {
		a, err := CreateDialogueAgent(config.AgentConfig{Tools: []string{"add"}}, tool.DefaultCatalog())
		require.NoError(t, err)

		d, ok := a.(*DialogueAgentWithTools)
		require.True(t, ok)
		assert.Equal(t, "DialogueAgent", d.Name())

		out, err := a.Send(context.Background(), "add(1, 2)")
		require.NoError(t, err)
		assert.Contains(t, out, "Tool add returned: 3")
	})

	t.Run("team", func(t *testing.T) {
		a, err := CreateDialogueAgent(config.AgentConfig{Name: "ops", Type: config.TypeTeam, TeamRole: "lead"}, nil)
		require.NoError(t, err)

		d, ok := a.(*TeamDialogueAgent)
		require.True(t, ok)
		assert.Equal(t, "lead", d.TeamRole())
		assert.Equal(t, "ops (assistant): Tool-enabled agent ops", d.Describe())
	})

	t.Run("invalid definition", func(t *testing.T) {
		_, err := CreateDialogueAgent(config.AgentConfig{Name: "x", Kind: "robot"}, nil)
		assert.Error(t, err)
	})
}

func TestCreateAgent_PromptTemplate(t *testing.T) {
	def := config.AgentConfig{
		Name:         "scribe",
		Role:         "writer",
		SystemPrompt: `You are {{.name}}, a {{.role}} using {{join ", " .tools}}.`,
		Tools:        []string{"echo", "uppercase"},
	}
	a, err := CreateConversationalAgent(def, tool.DefaultCatalog())
	require.NoError(t, err)
	assert.Equal(t, "You are scribe, a writer using echo, uppercase.", a.(*ConversationalAgent).SystemPrompt())

	def.SystemPrompt = "{{.name"
	_, err = CreateDialogueAgent(def, tool.DefaultCatalog())
	var cfgErr *core.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "system_prompt", cfgErr.Field)
}
