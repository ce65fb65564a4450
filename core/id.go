package core

import "github.com/google/uuid"

// NewID returns a random identifier used for turns and tool calls.
func NewID() string { return uuid.NewString() }
