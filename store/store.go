// Package store provides durable keyed checkpoint storage for pipeline runs.
//
// A checkpoint is an append-only versioned snapshot of a run's state, keyed
// by run identifier. Stores must serialize writes within one run identifier;
// writes for distinct run identifiers may happen concurrently.
//
// Supported backends:
// - Memory: for development and testing (default)
// - SQLite: for single-node deployments
// - Redis: for distributed deployments
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Common errors
var (
	ErrNotFound    = errors.New("checkpoint not found")
	ErrStoreClosed = errors.New("store is closed")
	ErrInvalidRun  = errors.New("invalid run identifier")
)

// Type represents the type of storage backend.
type Type string

const (
	TypeMemory Type = "memory"
	TypeSQLite Type = "sqlite"
	TypeRedis  Type = "redis"
)

// Status describes the lifecycle of a run as recorded in its checkpoints.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Checkpoint is one durable snapshot of a run's state. Version increases
// monotonically within a run; the latest version is the resume point.
type Checkpoint struct {
	ID      string `json:"id"`
	RunID   string `json:"run_id"`
	Version int    `json:"version"`

	// Stage is the last stage that completed before this checkpoint was
	// written. Next is the stage the run will execute after it; empty
	// means the run reached a terminal stage.
	Stage string `json:"stage"`
	Next  string `json:"next,omitempty"`

	Status Status `json:"status"`

	// FailedStage and Error are set on failed checkpoints; State still
	// holds the last good state.
	FailedStage string `json:"failed_stage,omitempty"`
	Error       string `json:"error,omitempty"`

	State     json.RawMessage `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store is the durable checkpoint backend. Save appends a new version for
// the checkpoint's run; Latest returns the highest version for a run.
type Store interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Latest(ctx context.Context, runID string) (*Checkpoint, error)
	Version(ctx context.Context, runID string, version int) (*Checkpoint, error)
	List(ctx context.Context, runID string) ([]*Checkpoint, error)
	Delete(ctx context.Context, runID string) error

	Close() error
	Ping(ctx context.Context) error
}

// Config selects and configures a backend.
type Config struct {
	Type Type `yaml:"type" env:"TYPE"`

	// Path is the SQLite database file (only used when Type is "sqlite").
	Path string `yaml:"path" env:"PATH"`

	// Redis configuration (only used when Type is "redis").
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
}

// RedisConfig contains Redis-specific configuration.
type RedisConfig struct {
	Addr      string `yaml:"addr" env:"ADDR"`
	Password  string `yaml:"password" env:"PASSWORD"`
	DB        int    `yaml:"db" env:"DB"`
	PoolSize  int    `yaml:"pool_size" env:"POOL_SIZE"`
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		Type: TypeMemory,
		Path: "./data/polymind.db",
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "polymind:",
		},
	}
}

// New constructs a store from configuration.
func New(cfg Config) (Store, error) {
	switch cfg.Type {
	case TypeMemory, "":
		return NewMemoryStore(), nil
	case TypeSQLite:
		return NewSQLiteStore(cfg.Path)
	case TypeRedis:
		return NewRedisStore(cfg.Redis)
	default:
		return nil, errors.New("unknown store type: " + string(cfg.Type))
	}
}
