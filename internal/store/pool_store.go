// Package store persists loaded feed snapshots so later requests can reuse
// them without refetching.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/stitts-dev/cfl-optimizer/internal/normalizer"
)

var ErrSnapshotNotFound = errors.New("pool snapshot not found")

// PoolSnapshot is one loaded feed bundle. Lineups are never stored.
type PoolSnapshot struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Players   int            `gorm:"not null" json:"players"`
	Squads    int            `gorm:"not null" json:"squads"`
	Gameweeks int            `gorm:"not null" json:"gameweeks"`
	Bundle    datatypes.JSON `gorm:"type:jsonb;not null" json:"-"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

func (PoolSnapshot) TableName() string {
	return "pool_snapshots"
}

// DecodeBundle returns the stored feed bundle.
func (s *PoolSnapshot) DecodeBundle() (*normalizer.FeedBundle, error) {
	var bundle normalizer.FeedBundle
	if err := json.Unmarshal(s.Bundle, &bundle); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", s.ID, err)
	}
	return &bundle, nil
}

type PoolStore struct {
	db     *gorm.DB
	logger *logrus.Logger
	now    func() time.Time
}

func NewPoolStore(db *gorm.DB, logger *logrus.Logger) *PoolStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &PoolStore{db: db, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Migrate creates or updates the snapshot table.
func (s *PoolStore) Migrate() error {
	return s.db.AutoMigrate(&PoolSnapshot{})
}

func (s *PoolStore) Save(ctx context.Context, bundle *normalizer.FeedBundle) (*PoolSnapshot, error) {
	if bundle == nil {
		return nil, errors.New("bundle is required")
	}
	raw, err := json.Marshal(bundle)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bundle: %w", err)
	}

	snapshot := &PoolSnapshot{
		ID:        uuid.New(),
		Players:   len(bundle.Players),
		Squads:    len(bundle.Squads),
		Gameweeks: len(bundle.Gameweeks),
		Bundle:    datatypes.JSON(raw),
		CreatedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(snapshot).Error; err != nil {
		return nil, fmt.Errorf("failed to save pool snapshot: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"snapshot_id": snapshot.ID,
		"players":     snapshot.Players,
		"squads":      snapshot.Squads,
	}).Info("Saved pool snapshot")
	return snapshot, nil
}

// Latest returns the most recently saved snapshot.
func (s *PoolStore) Latest(ctx context.Context) (*PoolSnapshot, error) {
	var snapshot PoolSnapshot
	err := s.db.WithContext(ctx).Order("created_at DESC").First(&snapshot).Error
	return s.found(&snapshot, err)
}

func (s *PoolStore) Get(ctx context.Context, id uuid.UUID) (*PoolSnapshot, error) {
	var snapshot PoolSnapshot
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&snapshot).Error
	return s.found(&snapshot, err)
}

func (s *PoolStore) found(snapshot *PoolSnapshot, err error) (*PoolSnapshot, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pool snapshot: %w", err)
	}
	return snapshot, nil
}
