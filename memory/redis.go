package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/agentbridge/core"
)

// RedisStore keeps each agent's turns in a Redis list (RPUSH order) of JSON
// documents under "<prefix>turns:<agent>".
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store on client. Prefix namespaces all keys.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(agent string) string {
	return s.prefix + "turns:" + agent
}

// Append records a turn for agent.
func (s *RedisStore) Append(ctx context.Context, agent string, turn core.Turn) error {
	raw, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("encode turn: %w", err)
	}
	return s.client.RPush(ctx, s.key(agent), raw).Err()
}

// List returns all turns of agent in append order.
func (s *RedisStore) List(ctx context.Context, agent string) ([]core.Turn, error) {
	return s.Last(ctx, agent, 0)
}

// Last returns up to n most recent turns in append order. n <= 0 returns all.
func (s *RedisStore) Last(ctx context.Context, agent string, n int) ([]core.Turn, error) {
	start := int64(0)
	if n > 0 {
		start = int64(-n)
	}
	vals, err := s.client.LRange(ctx, s.key(agent), start, -1).Result()
	if err != nil {
		return nil, err
	}
	return decodeTurns(vals)
}

// Search returns up to limit turns matching query, newest first.
func (s *RedisStore) Search(ctx context.Context, agent, query string, limit int) ([]core.Turn, error) {
	turns, err := s.List(ctx, agent)
	if err != nil {
		return nil, err
	}
	return searchNewestFirst(turns, query, limit), nil
}

// Clear drops the history of agent only.
func (s *RedisStore) Clear(ctx context.Context, agent string) error {
	return s.client.Del(ctx, s.key(agent)).Err()
}

func decodeTurns(vals []string) ([]core.Turn, error) {
	out := make([]core.Turn, 0, len(vals))
	for _, v := range vals {
		var t core.Turn
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			return nil, fmt.Errorf("decode turn: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}
