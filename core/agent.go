package core

import "time"

// AgentInfo identifies an agent within a team. Name is unique per team; Role
// is a free-form tag such as "leader" or "specialist".
type AgentInfo struct {
	Name        string `json:"name" yaml:"name"`
	Role        string `json:"role,omitempty" yaml:"role,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Message is a single piece of conversational context supplied by a caller
// (previous messages, system notes, team summaries).
type Message struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now().UTC()}
}
