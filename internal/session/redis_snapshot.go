package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const snapshotKeyPrefix = "agent_session:"

// RedisSnapshotStore keeps snapshots in Redis with a fixed TTL, so an
// abandoned session's durable copy expires on its own.
type RedisSnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ SnapshotStore = &RedisSnapshotStore{}

func NewRedisSnapshotStore(client *redis.Client, ttl time.Duration) *RedisSnapshotStore {
	if ttl <= 0 {
		ttl = 2100 * time.Second
	}
	return &RedisSnapshotStore{client: client, ttl: ttl}
}

func (r *RedisSnapshotStore) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := r.client.Set(ctx, snapshotKeyPrefix+snap.SessionID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func (r *RedisSnapshotStore) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	data, err := r.client.Get(ctx, snapshotKeyPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

func (r *RedisSnapshotStore) Delete(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, snapshotKeyPrefix+sessionID).Err()
}
