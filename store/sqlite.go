package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// checkpointRecord is the GORM model backing the sqlite store.
type checkpointRecord struct {
	ID          string `gorm:"primaryKey"`
	RunID       string `gorm:"index:idx_run_version,unique,priority:1"`
	Version     int    `gorm:"index:idx_run_version,unique,priority:2"`
	Stage       string
	Next        string
	Status      string
	FailedStage string
	Error       string
	State       []byte
	CreatedAt   time.Time
}

func (checkpointRecord) TableName() string { return "checkpoints" }

// SQLiteStore persists checkpoints in a local SQLite database. Suitable for
// single-node deployments where runs must survive process restarts.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.AutoMigrate(&checkpointRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate checkpoint schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func toRecord(cp *Checkpoint) *checkpointRecord {
	return &checkpointRecord{
		ID:          cp.ID,
		RunID:       cp.RunID,
		Version:     cp.Version,
		Stage:       cp.Stage,
		Next:        cp.Next,
		Status:      string(cp.Status),
		FailedStage: cp.FailedStage,
		Error:       cp.Error,
		State:       cp.State,
		CreatedAt:   cp.CreatedAt,
	}
}

func fromRecord(r *checkpointRecord) *Checkpoint {
	return &Checkpoint{
		ID:          r.ID,
		RunID:       r.RunID,
		Version:     r.Version,
		Stage:       r.Stage,
		Next:        r.Next,
		Status:      Status(r.Status),
		FailedStage: r.FailedStage,
		Error:       r.Error,
		State:       r.State,
		CreatedAt:   r.CreatedAt,
	}
}

func (s *SQLiteStore) Save(ctx context.Context, cp *Checkpoint) error {
	if cp == nil || cp.RunID == "" {
		return ErrInvalidRun
	}
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var max int
		if err := tx.Model(&checkpointRecord{}).
			Where("run_id = ?", cp.RunID).
			Select("COALESCE(MAX(version), 0)").
			Scan(&max).Error; err != nil {
			return err
		}
		cp.Version = max + 1
		return tx.Create(toRecord(cp)).Error
	})
}

func (s *SQLiteStore) Latest(ctx context.Context, runID string) (*Checkpoint, error) {
	var rec checkpointRecord
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("version DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromRecord(&rec), nil
}

func (s *SQLiteStore) Version(ctx context.Context, runID string, version int) (*Checkpoint, error) {
	var rec checkpointRecord
	err := s.db.WithContext(ctx).
		Where("run_id = ? AND version = ?", runID, version).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromRecord(&rec), nil
}

func (s *SQLiteStore) List(ctx context.Context, runID string) ([]*Checkpoint, error) {
	var recs []checkpointRecord
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("version ASC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]*Checkpoint, len(recs))
	for i := range recs {
		out[i] = fromRecord(&recs[i])
	}
	return out, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, runID string) error {
	return s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Delete(&checkpointRecord{}).Error
}

func (s *SQLiteStore) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}
