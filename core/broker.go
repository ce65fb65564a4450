package core

import (
	"context"
	"time"
)

// ContextEntry is one committed value in a team context.
type ContextEntry struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	Author    string    `json:"author"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpdateFunc computes a new value from the current one. It runs while the
// key's writer lock is held.
type UpdateFunc func(current any, exists bool) (any, error)

// ContextBroker is the shared key/value store grouped by team identifier.
//
// A team context is created on first access and destroyed by Teardown.
// Writes to one key are serialized: a reader always observes a whole value
// written by exactly one writer, never a mix.
type ContextBroker interface {
	Get(ctx context.Context, teamID, key string) (ContextEntry, bool, error)
	Set(ctx context.Context, teamID, key string, value any, author string) error
	Update(ctx context.Context, teamID, key, author string, fn UpdateFunc) (ContextEntry, error)
	Snapshot(ctx context.Context, teamID string) (map[string]ContextEntry, error)
	Delete(ctx context.Context, teamID, key string) error
	Teardown(ctx context.Context, teamID string) error
	Teams(ctx context.Context) ([]string, error)
}
