package team

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/agentbridge/core"
)

type slot struct {
	mu    sync.Mutex
	entry core.ContextEntry
}

type teamContext struct {
	mu    sync.RWMutex
	slots map[string]*slot
}

// InMemoryBroker is a process-local ContextBroker. Every key has its own
// writer lock; the team map lock is only held while locating a slot.
type InMemoryBroker struct {
	mu    sync.RWMutex
	teams map[string]*teamContext
	opts  BrokerOptions
}

// NewInMemoryBroker creates an empty broker.
func NewInMemoryBroker(optFns ...func(o *BrokerOptions)) *InMemoryBroker {
	return &InMemoryBroker{
		teams: make(map[string]*teamContext),
		opts:  newBrokerOptions(optFns...),
	}
}

func (b *InMemoryBroker) team(teamID string, create bool) *teamContext {
	b.mu.RLock()
	tc, ok := b.teams[teamID]
	b.mu.RUnlock()
	if ok || !create {
		return tc
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if tc, ok = b.teams[teamID]; ok {
		return tc
	}
	tc = &teamContext{slots: make(map[string]*slot)}
	b.teams[teamID] = tc
	b.opts.Logger.Debug("team.context.created", "team", teamID)
	return tc
}

func (tc *teamContext) slot(key string, create bool) *slot {
	tc.mu.RLock()
	s, ok := tc.slots[key]
	tc.mu.RUnlock()
	if ok || !create {
		return s
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()
	if s, ok = tc.slots[key]; ok {
		return s
	}
	s = &slot{}
	tc.slots[key] = s
	return s
}

// Get returns the entry stored under key.
func (b *InMemoryBroker) Get(ctx context.Context, teamID, key string) (core.ContextEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return core.ContextEntry{}, false, err
	}
	tc := b.team(teamID, true)
	s := tc.slot(key, false)
	if s == nil {
		b.opts.Metrics.RecordBrokerOp("get", nil)
		return core.ContextEntry{}, false, nil
	}

	s.mu.Lock()
	entry := s.entry
	s.mu.Unlock()

	b.opts.Metrics.RecordBrokerOp("get", nil)
	if entry.Key == "" {
		return core.ContextEntry{}, false, nil
	}
	entry.Value = cloneValue(entry.Value)
	return entry, true, nil
}

// Set stores value under key, replacing any previous value.
func (b *InMemoryBroker) Set(ctx context.Context, teamID, key string, value any, author string) error {
	_, err := b.Update(ctx, teamID, key, author, func(any, bool) (any, error) { return value, nil })
	return err
}

// Update computes a new value from the current one while holding the key's
// writer lock.
func (b *InMemoryBroker) Update(ctx context.Context, teamID, key, author string, fn core.UpdateFunc) (core.ContextEntry, error) {
	if err := ctx.Err(); err != nil {
		return core.ContextEntry{}, err
	}
	if key == "" {
		return core.ContextEntry{}, ErrEmptyKey
	}
	s := b.team(teamID, true).slot(key, true)

	s.mu.Lock()
	defer s.mu.Unlock()

	exists := s.entry.Key != ""
	next, err := fn(cloneValue(s.entry.Value), exists)
	if err != nil {
		b.opts.Metrics.RecordBrokerOp("update", err)
		return core.ContextEntry{}, err
	}

	s.entry = core.ContextEntry{
		Key:       key,
		Value:     cloneValue(next),
		Author:    author,
		UpdatedAt: time.Now().UTC(),
	}
	b.opts.Metrics.RecordBrokerOp("update", nil)
	b.opts.Logger.Debug("team.context.set", "team", teamID, "key", key, "author", author)

	out := s.entry
	out.Value = cloneValue(out.Value)
	return out, nil
}

// Snapshot returns a copy of every committed entry of the team.
func (b *InMemoryBroker) Snapshot(ctx context.Context, teamID string) (map[string]core.ContextEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tc := b.team(teamID, true)

	tc.mu.RLock()
	slots := make(map[string]*slot, len(tc.slots))
	for k, s := range tc.slots {
		slots[k] = s
	}
	tc.mu.RUnlock()

	out := make(map[string]core.ContextEntry, len(slots))
	for k, s := range slots {
		s.mu.Lock()
		entry := s.entry
		s.mu.Unlock()
		if entry.Key == "" {
			continue
		}
		entry.Value = cloneValue(entry.Value)
		out[k] = entry
	}
	b.opts.Metrics.RecordBrokerOp("snapshot", nil)
	return out, nil
}

// Delete removes key from the team context.
func (b *InMemoryBroker) Delete(ctx context.Context, teamID, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tc := b.team(teamID, false)
	if tc == nil {
		return nil
	}
	tc.mu.Lock()
	s, ok := tc.slots[key]
	delete(tc.slots, key)
	tc.mu.Unlock()

	if ok {
		// Wait for an in-flight writer before the slot is dropped.
		s.mu.Lock()
		s.entry = core.ContextEntry{}
		s.mu.Unlock()
	}
	b.opts.Metrics.RecordBrokerOp("delete", nil)
	return nil
}

// Teardown destroys the team context.
func (b *InMemoryBroker) Teardown(ctx context.Context, teamID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	delete(b.teams, teamID)
	b.mu.Unlock()
	b.opts.Metrics.RecordBrokerOp("teardown", nil)
	b.opts.Logger.Debug("team.context.teardown", "team", teamID)
	return nil
}

// Teams lists live team contexts sorted by id.
func (b *InMemoryBroker) Teams(_ context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.teams))
	for id := range b.teams {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// cloneValue deep-copies the container types callers commonly store so a
// reader never shares mutable state with the writer.
func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, e := range val {
			out[k] = e
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	default:
		return v
	}
}
