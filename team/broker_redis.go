package team

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/agentbridge/core"
)

const lockStripes = 64

// RedisBroker is a ContextBroker backed by Redis so several processes can
// share team contexts.
//
// Every entry is its own string key "<prefix>team:{<id>}:<key>" holding a
// JSON document. The set "<prefix>team:{<id>}" lists the keys of a team and
// "<prefix>teams" indexes live teams. The braces form a Redis Cluster hash
// tag so a team's keys share one slot.
//
// Values round-trip through JSON: numbers come back as float64 and structs
// as map[string]any.
type RedisBroker struct {
	client redis.UniversalClient
	prefix string
	opts   BrokerOptions

	// Same-key updates from this process queue here instead of burning
	// optimistic retries against each other.
	locks [lockStripes]sync.Mutex
}

// NewRedisBroker creates a broker on client. Prefix namespaces all keys.
func NewRedisBroker(client redis.UniversalClient, prefix string, optFns ...func(o *BrokerOptions)) *RedisBroker {
	return &RedisBroker{client: client, prefix: prefix, opts: newBrokerOptions(optFns...)}
}

// Ping checks if the backing Redis is reachable.
func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) keysKey(teamID string) string {
	return b.prefix + "team:{" + teamID + "}"
}

func (b *RedisBroker) entryKey(teamID, key string) string {
	return b.keysKey(teamID) + ":" + key
}

func (b *RedisBroker) indexKey() string {
	return b.prefix + "teams"
}

func (b *RedisBroker) lock(entryKey string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(entryKey))
	return &b.locks[h.Sum32()%lockStripes]
}

// index records teamID as live. It runs outside the entry transaction
// because the index key lives in another cluster slot.
func (b *RedisBroker) index(ctx context.Context, teamID string) error {
	return b.client.SAdd(ctx, b.indexKey(), teamID).Err()
}

type redisEntry struct {
	Value     any       `json:"value"`
	Author    string    `json:"author"`
	UpdatedAt time.Time `json:"updated_at"`
}

func decodeEntry(key, raw string) (core.ContextEntry, error) {
	var e redisEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return core.ContextEntry{}, fmt.Errorf("decode context entry %s: %w", key, err)
	}
	return core.ContextEntry{Key: key, Value: e.Value, Author: e.Author, UpdatedAt: e.UpdatedAt}, nil
}

// Get returns the entry stored under key.
func (b *RedisBroker) Get(ctx context.Context, teamID, key string) (core.ContextEntry, bool, error) {
	raw, err := b.client.Get(ctx, b.entryKey(teamID, key)).Result()
	if errors.Is(err, redis.Nil) {
		b.opts.Metrics.RecordBrokerOp("get", nil)
		return core.ContextEntry{}, false, nil
	}
	b.opts.Metrics.RecordBrokerOp("get", err)
	if err != nil {
		return core.ContextEntry{}, false, err
	}
	entry, err := decodeEntry(key, raw)
	if err != nil {
		return core.ContextEntry{}, false, err
	}
	return entry, true, nil
}

// Set stores value under key in a single MULTI transaction.
func (b *RedisBroker) Set(ctx context.Context, teamID, key string, value any, author string) error {
	if key == "" {
		return ErrEmptyKey
	}
	raw, err := json.Marshal(redisEntry{Value: value, Author: author, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode context entry %s: %w", key, err)
	}

	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, b.entryKey(teamID, key), raw, 0)
		pipe.SAdd(ctx, b.keysKey(teamID), key)
		return nil
	})
	if err == nil {
		err = b.index(ctx, teamID)
	}
	b.opts.Metrics.RecordBrokerOp("set", err)
	if err == nil {
		b.opts.Logger.Debug("team.context.set", "team", teamID, "key", key, "author", author, "backend", "redis")
	}
	return err
}

// Update performs an optimistic read-modify-write with WATCH/MULTI on the
// entry key alone, so writers of different keys never conflict. Writers of
// the same key in this process are serialized; a writer in another process
// that commits first forces a retry, up to MaxRetries attempts.
func (b *RedisBroker) Update(ctx context.Context, teamID, key, author string, fn core.UpdateFunc) (core.ContextEntry, error) {
	if key == "" {
		return core.ContextEntry{}, ErrEmptyKey
	}
	entryKey := b.entryKey(teamID, key)

	mu := b.lock(entryKey)
	mu.Lock()
	defer mu.Unlock()

	var result core.ContextEntry
	txf := func(tx *redis.Tx) error {
		var current any
		exists := false

		raw, err := tx.Get(ctx, entryKey).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			entry, err := decodeEntry(key, raw)
			if err != nil {
				return err
			}
			current, exists = entry.Value, true
		}

		next, err := fn(current, exists)
		if err != nil {
			return err
		}

		encoded, err := json.Marshal(redisEntry{Value: next, Author: author, UpdatedAt: time.Now().UTC()})
		if err != nil {
			return fmt.Errorf("encode context entry %s: %w", key, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, entryKey, encoded, 0)
			pipe.SAdd(ctx, b.keysKey(teamID), key)
			return nil
		})
		if err != nil {
			return err
		}

		// Re-decode so the caller sees the JSON normalised value.
		result, err = decodeEntry(key, string(encoded))
		return err
	}

	for i := 0; i < b.opts.MaxRetries; i++ {
		err := b.client.Watch(ctx, txf, entryKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err == nil {
			err = b.index(ctx, teamID)
		}
		b.opts.Metrics.RecordBrokerOp("update", err)
		if err != nil {
			return core.ContextEntry{}, err
		}
		return result, nil
	}

	b.opts.Metrics.RecordBrokerOp("update", ErrUpdateConflict)
	return core.ContextEntry{}, fmt.Errorf("%w: %s/%s after %d attempts", ErrUpdateConflict, teamID, key, b.opts.MaxRetries)
}

// Snapshot returns every committed entry of the team.
func (b *RedisBroker) Snapshot(ctx context.Context, teamID string) (map[string]core.ContextEntry, error) {
	entries, err := b.snapshot(ctx, teamID)
	b.opts.Metrics.RecordBrokerOp("snapshot", err)
	return entries, err
}

func (b *RedisBroker) snapshot(ctx context.Context, teamID string) (map[string]core.ContextEntry, error) {
	keys, err := b.client.SMembers(ctx, b.keysKey(teamID)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]core.ContextEntry, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	entryKeys := make([]string, len(keys))
	for i, k := range keys {
		entryKeys[i] = b.entryKey(teamID, k)
	}
	raws, err := b.client.MGet(ctx, entryKeys...).Result()
	if err != nil {
		return nil, err
	}
	for i, raw := range raws {
		s, ok := raw.(string)
		if !ok {
			// Deleted between SMEMBERS and MGET.
			continue
		}
		entry, err := decodeEntry(keys[i], s)
		if err != nil {
			return nil, err
		}
		out[keys[i]] = entry
	}
	return out, nil
}

// Delete removes key from the team context.
func (b *RedisBroker) Delete(ctx context.Context, teamID, key string) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, b.entryKey(teamID, key))
		pipe.SRem(ctx, b.keysKey(teamID), key)
		return nil
	})
	b.opts.Metrics.RecordBrokerOp("delete", err)
	return err
}

// Teardown destroys the team context. The key set is watched so an entry
// added while the team is being dropped is deleted along with it.
func (b *RedisBroker) Teardown(ctx context.Context, teamID string) error {
	err := b.teardown(ctx, teamID)
	b.opts.Metrics.RecordBrokerOp("teardown", err)
	if err == nil {
		b.opts.Logger.Debug("team.context.teardown", "team", teamID, "backend", "redis")
	}
	return err
}

func (b *RedisBroker) teardown(ctx context.Context, teamID string) error {
	keysKey := b.keysKey(teamID)
	txf := func(tx *redis.Tx) error {
		keys, err := tx.SMembers(ctx, keysKey).Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, k := range keys {
				pipe.Del(ctx, b.entryKey(teamID, k))
			}
			pipe.Del(ctx, keysKey)
			return nil
		})
		return err
	}

	for i := 0; i < b.opts.MaxRetries; i++ {
		err := b.client.Watch(ctx, txf, keysKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return err
		}
		return b.client.SRem(ctx, b.indexKey(), teamID).Err()
	}
	return fmt.Errorf("%w: teardown %s after %d attempts", ErrUpdateConflict, teamID, b.opts.MaxRetries)
}

// Teams lists teams with a live context sorted by id.
func (b *RedisBroker) Teams(ctx context.Context) ([]string, error) {
	ids, err := b.client.SMembers(ctx, b.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}
