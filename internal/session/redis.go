package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 15 * time.Minute

// RedisBackend stores each session as one JSON value under session:<id>.
// Writes run inside WATCH/MULTI so a concurrent writer aborts the transaction.
type RedisBackend struct {
	client    *redis.Client
	baseTTL   time.Duration
	maxJitter int
}

func NewRedisBackend(client *redis.Client, ttl time.Duration) *RedisBackend {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisBackend{
		client:    client,
		baseTTL:   ttl,
		maxJitter: 5,
	}
}

func (r *RedisBackend) Get(ctx context.Context, id string) (Record, bool, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("redis get failed: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("unmarshal session failed: %w", err)
	}
	return rec, true, nil
}

func (r *RedisBackend) CompareAndSet(ctx context.Context, id string, expected uint64, payload []byte) (uint64, error) {
	key := sessionKey(id)
	next := expected + 1
	blob, err := json.Marshal(Record{Version: next, Payload: payload})
	if err != nil {
		return 0, fmt.Errorf("marshal session failed: %w", err)
	}

	txf := func(tx *redis.Tx) error {
		current, err := storedVersion(ctx, tx, key)
		if err != nil {
			return err
		}
		if current != expected {
			return conflict(id, expected, current)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, blob, r.ttl())
			return nil
		})
		return err
	}

	err = r.client.Watch(ctx, txf, key)
	switch {
	case err == nil:
		return next, nil
	case errors.Is(err, ErrVersionConflict):
		return 0, err
	case errors.Is(err, redis.TxFailedErr):
		return 0, fmt.Errorf("%w: session %s changed during write", ErrVersionConflict, id)
	default:
		return 0, fmt.Errorf("redis set failed: %w", err)
	}
}

func (r *RedisBackend) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisBackend) DeleteIfVersion(ctx context.Context, id string, expected uint64) error {
	key := sessionKey(id)
	txf := func(tx *redis.Tx) error {
		current, err := storedVersion(ctx, tx, key)
		if err != nil {
			return err
		}
		if current != expected {
			return conflict(id, expected, current)
		}
		if current == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}

	err := r.client.Watch(ctx, txf, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrVersionConflict):
		return err
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("%w: session %s changed during delete", ErrVersionConflict, id)
	default:
		return fmt.Errorf("redis delete failed: %w", err)
	}
}

func (r *RedisBackend) ttl() time.Duration {
	jitter := time.Duration(rand.Intn(r.maxJitter)) * time.Minute
	return r.baseTTL + jitter
}

func storedVersion(ctx context.Context, tx *redis.Tx, key string) (uint64, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get failed: %w", err)
	}
	var head struct {
		Version uint64 `json:"version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return 0, fmt.Errorf("unmarshal session failed: %w", err)
	}
	return head.Version, nil
}

func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}
