package core

import (
	"strings"
	"time"
)

// ToolCallRecord captures one tool invocation performed during a turn.
type ToolCallRecord struct {
	ID      string         `json:"id"`
	Tool    string         `json:"tool"`
	Args    map[string]any `json:"args,omitempty"`
	Result  any            `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
	Latency time.Duration  `json:"latency"`
}

// Turn is one request/response exchange recorded against a single agent.
// Turns are append-only; stores hand out copies so a recorded turn never
// changes after it was written.
type Turn struct {
	ID        string            `json:"id"`
	Agent     string            `json:"agent"`
	Input     string            `json:"input"`
	Output    string            `json:"output"`
	Timestamp time.Time         `json:"timestamp"`
	Duration  time.Duration     `json:"duration"`
	Degraded  bool              `json:"degraded,omitempty"`
	ToolCalls []ToolCallRecord  `json:"tool_calls,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewTurn creates a turn with a fresh id and UTC timestamp.
func NewTurn(agent, input, output string) Turn {
	return Turn{
		ID:        NewID(),
		Agent:     agent,
		Input:     input,
		Output:    output,
		Timestamp: time.Now().UTC(),
	}
}

// Clone returns a deep copy of the turn.
func (t Turn) Clone() Turn {
	c := t
	if t.ToolCalls != nil {
		c.ToolCalls = make([]ToolCallRecord, len(t.ToolCalls))
		for i, tc := range t.ToolCalls {
			c.ToolCalls[i] = tc
			if tc.Args != nil {
				args := make(map[string]any, len(tc.Args))
				for k, v := range tc.Args {
					args[k] = v
				}
				c.ToolCalls[i].Args = args
			}
		}
	}
	if t.Metadata != nil {
		c.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// Matches reports whether query occurs in the turn's input or output
// (case-insensitive). An empty query matches every turn.
func (t Turn) Matches(query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(t.Input), q) || strings.Contains(strings.ToLower(t.Output), q)
}

// Messages expands the turn into its user and assistant messages.
func (t Turn) Messages() []Message {
	return []Message{
		{Role: "user", Content: t.Input, Timestamp: t.Timestamp},
		{Role: "assistant", Content: t.Output, Timestamp: t.Timestamp.Add(t.Duration)},
	}
}
