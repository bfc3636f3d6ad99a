package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisTailIndex keeps a point-in-time snapshot of the last known-good tail
// hash per partition in Redis, so a fresh process can resume without a full
// segment replay. It is an optimization layered over a LogStore, never a
// source of truth: a snapshot that disagrees with the store must be
// discarded.
type RedisTailIndex struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisTailIndex wraps an existing client. keyPrefix defaults to
// "awareness:tail".
func NewRedisTailIndex(client *redis.Client, keyPrefix string) *RedisTailIndex {
	if keyPrefix == "" {
		keyPrefix = "awareness:tail"
	}
	return &RedisTailIndex{client: client, keyPrefix: keyPrefix}
}

func (r *RedisTailIndex) key(partition string) string {
	return fmt.Sprintf("%s:%s", r.keyPrefix, partition)
}

// Save records the tail after a successful append. The write is transactional
// per key: a snapshot never moves backwards.
func (r *RedisTailIndex) Save(ctx context.Context, partition string, tail Tail) error {
	key := r.key(partition)
	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "count").Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil && current >= tail.Count {
			return nil // stale save, keep the newer snapshot
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "head_hash", tail.HeadHash, "count", tail.Count)
			return nil
		})
		return err
	}
	return r.client.Watch(ctx, txf, key)
}

// Load returns the stored snapshot for a partition. A missing snapshot is
// reported as (Tail{}, false, nil).
func (r *RedisTailIndex) Load(ctx context.Context, partition string) (Tail, bool, error) {
	values, err := r.client.HGetAll(ctx, r.key(partition)).Result()
	if err != nil {
		return Tail{}, false, err
	}
	if len(values) == 0 {
		return Tail{}, false, nil
	}
	count, err := strconv.Atoi(values["count"])
	if err != nil {
		return Tail{}, false, fmt.Errorf("store: corrupt tail snapshot for %s: %w", partition, err)
	}
	return Tail{HeadHash: values["head_hash"], Count: count}, true, nil
}

// Verify checks a loaded snapshot against the authoritative store, returning
// the trusted tail. On mismatch the snapshot is dropped.
func (r *RedisTailIndex) Verify(ctx context.Context, partition string, ls LogStore) (Tail, error) {
	snap, ok, err := r.Load(ctx, partition)
	if err != nil {
		return Tail{}, err
	}
	actual, err := ls.ReadTail(ctx, partition)
	if err != nil {
		return Tail{}, err
	}
	if ok && snap != actual {
		_ = r.client.Del(ctx, r.key(partition)).Err()
	}
	return actual, nil
}
