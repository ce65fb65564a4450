// Package openai backs model.Model with the OpenAI Chat Completions API,
// streaming and non-streaming.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/agentbridge/model"
)

// Provider is reported by Info.
const Provider = "openai"

// ErrNoChoices is returned when a completion carries no choice.
var ErrNoChoices = errors.New("openai: completion has no choices")

// Options configures the adapter.
type Options struct {
	// Model defaults to gpt-4o-mini.
	Model               string
	Temperature         float64
	MaxCompletionTokens int64

	// APIKey overrides OPENAI_API_KEY.
	APIKey string
	// BaseURL points the client at a compatible gateway.
	BaseURL string

	// Client replaces the SDK client built from APIKey and BaseURL.
	Client *openai.Client
}

// Model sends text conversations to Chat Completions.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates the adapter.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
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
		c := openai.NewClient(reqOpts...)
		client = &c
	}
	return &Model{client: client, opts: opts}
}

// Generate implements model.Model. Streamed requests emit one partial chunk
// per text delta and a final chunk with the whole text.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		var err error
		if req.Stream {
			err = m.stream(ctx, m.params(req), out)
		} else {
			err = m.complete(ctx, m.params(req), out)
		}
		if err != nil {
			errCh <- err
		}
	}()
	return out, errCh
}

func (m *Model) params(req model.Request) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.Instructions != "" {
		msgs = append(msgs, openai.SystemMessage(req.Instructions))
	}
	for _, msg := range req.Messages {
		if msg.Content == "" {
			continue
		}
		switch msg.Role {
		case "system":
			msgs = append(msgs, openai.SystemMessage(msg.Content))
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(msg.Content))
		default:
			msgs = append(msgs, openai.UserMessage(msg.Content))
		}
	}

	return openai.ChatCompletionNewParams{
		Model:               m.opts.Model,
		Messages:            msgs,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}
}

func (m *Model) complete(ctx context.Context, params openai.ChatCompletionNewParams, out chan<- model.Response) error {
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return fmt.Errorf("openai: create completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ErrNoChoices
	}

	choice := resp.Choices[0]
	out <- model.Response{
		ID:           resp.ID,
		Text:         choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
	return nil
}

func (m *Model) stream(ctx context.Context, params openai.ChatCompletionNewParams, out chan<- model.Response) error {
	s := m.client.Chat.Completions.NewStreaming(ctx, params)
	defer s.Close()

	var text strings.Builder
	for s.Next() {
		chunk := s.Current()
		for _, choice := range chunk.Choices {
			if d := choice.Delta.Content; d != "" {
				text.WriteString(d)
				out <- model.Response{ID: chunk.ID, Partial: true, Text: d}
			}
			if choice.FinishReason != "" {
				out <- model.Response{ID: chunk.ID, Text: text.String(), FinishReason: choice.FinishReason}
			}
		}
	}
	if err := s.Err(); err != nil {
		return fmt.Errorf("openai: stream completion: %w", err)
	}
	return nil
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: Provider}
}
