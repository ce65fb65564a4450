package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Message is one text turn sent to a provider.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Request captures the normalized model input produced by reasoners.
type Request struct {
	Instructions string    `json:"instructions"` // System instructions for the model
	Messages     []Message `json:"messages"`
	Stream       bool      `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model.
type Response struct {
	ID           string      `json:"id"`
	Partial      bool        `json:"partial"` // Indicates if this is a partial response
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", etc.
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Model is the minimal interface required by the model-driven reasoner.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// ErrEmptyResponse is returned by Collect when the model produced no final chunk.
var ErrEmptyResponse = errors.New("model returned no response")

// Collect drains a Generate call and returns the final text. Partial chunks
// are concatenated when no final chunk carries text.
func Collect(ctx context.Context, m Model, req Request) (string, *TokenUsage, error) {
	respCh, errCh := m.Generate(ctx, req)

	var partial strings.Builder
	var final *Response
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if r.Partial {
				partial.WriteString(r.Text)
				continue
			}
			rr := r
			final = &rr
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return "", nil, err
			}
		}
	}

	if final == nil {
		if partial.Len() == 0 {
			return "", nil, ErrEmptyResponse
		}
		return partial.String(), nil, nil
	}
	if final.Text == "" && partial.Len() > 0 {
		return partial.String(), final.Usage, nil
	}
	return final.Text, final.Usage, nil
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
type MockModel struct {
	info Info

	mu        sync.RWMutex
	responses map[string]string
	requests  []Request
	err       error
}

// NewMockModel constructs a MockModel.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: provider},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for the last user message.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// SetError makes every following Generate call fail with err.
func (m *MockModel) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Requests returns the requests received so far.
func (m *MockModel) Requests() []Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Generate implements Model; emits optional streaming char chunks then final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	failure := m.err
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)
		if failure != nil {
			errCh <- failure
			return
		}
		if len(req.Messages) == 0 {
			errCh <- fmt.Errorf("no messages provided")
			return
		}
		input := req.Messages[len(req.Messages)-1].Content

		m.mu.RLock()
		full, ok := m.responses[input]
		m.mu.RUnlock()
		if !ok {
			full = fmt.Sprintf("Mock response to: %s", input)
		}
		if req.Stream {
			for _, r := range full {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Text: string(r)}:
				}
			}
		}
		respCh <- Response{Text: full, FinishReason: "stop"}
	}()
	return respCh, errCh
}

// Info returns the configured model metadata.
func (m *MockModel) Info() Info { return m.info }
