// Package anthropic backs model.Model with the Anthropic Messages API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/agentbridge/model"
)

// Provider is reported by Info.
const Provider = "anthropic"

// Options configures the adapter.
type Options struct {
	// Model defaults to Claude 3.5 Sonnet.
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64

	// APIKey overrides ANTHROPIC_API_KEY.
	APIKey string
	// BaseURL points the client at a proxy or gateway.
	BaseURL string

	// Client replaces the SDK client built from APIKey and BaseURL.
	Client *anthropic.Client
}

// Model sends text conversations to the Messages API. Streaming requests
// are answered with a single final chunk.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModel creates the adapter.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	client := opts.Client
	if client == nil {
		var reqOpts []option.RequestOption
		if opts.APIKey != "" {
			reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
		}
		if opts.BaseURL != "" {
			reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
		}
		c := anthropic.NewClient(reqOpts...)
		client = &c
	}
	return &Model{client: client, opts: opts}
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		msg, err := m.client.Messages.New(ctx, m.params(req))
		if err != nil {
			errCh <- fmt.Errorf("anthropic: create message: %w", err)
			return
		}
		out <- toResponse(msg)
	}()

	return out, errCh
}

// params lifts instructions and system-role messages into the system prompt;
// the Messages API only accepts user and assistant turns.
func (m *Model) params(req model.Request) anthropic.MessageNewParams {
	p := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
	}

	var system []string
	if req.Instructions != "" {
		system = append(system, req.Instructions)
	}
	for _, msg := range req.Messages {
		switch {
		case msg.Content == "":
		case msg.Role == "system":
			system = append(system, msg.Content)
		case msg.Role == "assistant":
			p.Messages = append(p.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			p.Messages = append(p.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	if len(system) > 0 {
		p.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}
	return p
}

func toResponse(msg *anthropic.Message) model.Response {
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}

	finish := string(msg.StopReason)
	if finish == "" {
		finish = "stop"
	}
	in, out := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	return model.Response{
		ID:           msg.ID,
		Text:         text.String(),
		FinishReason: finish,
		Usage:        &model.TokenUsage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out},
	}
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{Name: string(m.opts.Model), Provider: Provider}
}
