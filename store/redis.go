package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis-backed checkpoint store for distributed deployments.
// Checkpoint payloads are stored as JSON strings; a sorted set per run,
// scored by version, provides the latest-version and history queries.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore creates a Redis-backed store and verifies connectivity.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "polymind:"
	}

	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix + "ckpt:",
	}, nil
}

// NewRedisStoreWithClient wraps an existing client; used by tests.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "polymind:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix + "ckpt:"}
}

func (s *RedisStore) dataKey(runID string, version int) string {
	return fmt.Sprintf("%sdata:%s:%d", s.keyPrefix, runID, version)
}

func (s *RedisStore) indexKey(runID string) string {
	return s.keyPrefix + "index:" + runID
}

func (s *RedisStore) versionKey(runID string) string {
	return s.keyPrefix + "version:" + runID
}

func (s *RedisStore) Save(ctx context.Context, cp *Checkpoint) error {
	if cp == nil || cp.RunID == "" {
		return ErrInvalidRun
	}
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}

	// Version allocation is atomic per run; the engine serializes writes
	// within a run, so INCR followed by SET is safe here.
	version, err := s.client.Incr(ctx, s.versionKey(cp.RunID)).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate version: %w", err)
	}
	cp.Version = int(version)

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.dataKey(cp.RunID, cp.Version), data, 0)
	pipe.ZAdd(ctx, s.indexKey(cp.RunID), redis.Z{Score: float64(cp.Version), Member: cp.Version})
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) load(ctx context.Context, runID string, version int) (*Checkpoint, error) {
	data, err := s.client.Get(ctx, s.dataKey(runID, version)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *RedisStore) Latest(ctx context.Context, runID string) (*Checkpoint, error) {
	version, err := s.client.Get(ctx, s.versionKey(runID)).Int()
	if err == redis.Nil || version == 0 {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.load(ctx, runID, version)
}

func (s *RedisStore) Version(ctx context.Context, runID string, version int) (*Checkpoint, error) {
	return s.load(ctx, runID, version)
}

func (s *RedisStore) List(ctx context.Context, runID string) ([]*Checkpoint, error) {
	members, err := s.client.ZRange(ctx, s.indexKey(runID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*Checkpoint, 0, len(members))
	for _, m := range members {
		var version int
		if _, err := fmt.Sscanf(m, "%d", &version); err != nil {
			continue
		}
		cp, err := s.load(ctx, runID, version)
		if err != nil {
			continue
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, runID string) error {
	members, err := s.client.ZRange(ctx, s.indexKey(runID), 0, -1).Result()
	if err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	for _, m := range members {
		var version int
		if _, err := fmt.Sscanf(m, "%d", &version); err == nil {
			pipe.Del(ctx, s.dataKey(runID, version))
		}
	}
	pipe.Del(ctx, s.indexKey(runID), s.versionKey(runID))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
