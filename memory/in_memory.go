package memory

import (
	"context"
	"sync"

	"github.com/hupe1980/agentbridge/core"
)

// InMemoryStore is a process-local TurnStore. Each agent's history is an
// append-only slice; reads return deep copies so recorded turns cannot be
// mutated by callers.
//
// Concurrency: a single RWMutex guards the map. Appends are O(1) and never
// block readers of other agents for longer than the append itself.
type InMemoryStore struct {
	mu    sync.RWMutex
	turns map[string][]core.Turn // agent -> turns
}

// NewInMemoryStore creates a new in-memory turn store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{turns: make(map[string][]core.Turn)}
}

// Append records a turn for agent.
func (m *InMemoryStore) Append(ctx context.Context, agent string, turn core.Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns[agent] = append(m.turns[agent], turn.Clone())
	return nil
}

// List returns all turns of agent in append order.
func (m *InMemoryStore) List(ctx context.Context, agent string) ([]core.Turn, error) {
	return m.Last(ctx, agent, 0)
}

// Last returns up to n most recent turns in append order. n <= 0 returns all.
func (m *InMemoryStore) Last(ctx context.Context, agent string, n int) ([]core.Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	turns := m.turns[agent]
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return cloneAll(turns), nil
}

// Search returns up to limit turns matching query, newest first. A
// case-insensitive substring match over input and output is used.
func (m *InMemoryStore) Search(ctx context.Context, agent, query string, limit int) ([]core.Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return searchNewestFirst(m.turns[agent], query, limit), nil
}

// Clear drops the history of agent only.
func (m *InMemoryStore) Clear(ctx context.Context, agent string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.turns, agent)
	return nil
}

// Agents returns the agents that have recorded history.
func (m *InMemoryStore) Agents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.turns))
	for a := range m.turns {
		out = append(out, a)
	}
	return out
}

func cloneAll(turns []core.Turn) []core.Turn {
	out := make([]core.Turn, len(turns))
	for i, t := range turns {
		out[i] = t.Clone()
	}
	return out
}

func searchNewestFirst(turns []core.Turn, query string, limit int) []core.Turn {
	out := make([]core.Turn, 0)
	for i := len(turns) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if turns[i].Matches(query) {
			out = append(out, turns[i].Clone())
		}
	}
	return out
}
