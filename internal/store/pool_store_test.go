package store

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/stitts-dev/cfl-optimizer/internal/normalizer"
	"github.com/stitts-dev/cfl-optimizer/pkg/database"
)

func newTestStore(t *testing.T) *PoolStore {
	t.Helper()
	db, err := database.NewConnection(":memory:", false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)
	s := NewPoolStore(db.DB, log)
	require.NoError(t, s.Migrate())
	return s
}

func testBundle(t *testing.T) *normalizer.FeedBundle {
	t.Helper()
	var bundle normalizer.FeedBundle
	require.NoError(t, json.Unmarshal([]byte(`{
		"players": [
			{"id": 1, "firstName": "Bo", "lastName": "Levi", "position": "quarterback", "squad": {"abbr": "BC"}, "cost": 12000,
			 "stats": {"projectedScores": 22.5, "avgPoints": 20, "points": {"gws": {"1": 18, "2": 24}}}},
			{"id": 2, "firstName": "Wide", "lastName": "Out", "position": "wide_receiver", "squad": {"abbr": "TOR"}, "cost": 9000, "stats": {"projectedScores": 12}}
		],
		"teams": [{"id": 7, "name": "BC Lions", "abbreviation": "BC", "cost": 6000, "projectedScores": 7}],
		"player_ownership": {"1": {"percents": 41.5}},
		"gameweeks": [{"id": 3, "status": "active", "matches": []}]
	}`), &bundle))
	return &bundle
}

func TestPoolStore_SaveAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	bundle := testBundle(t)

	saved, err := s.Save(ctx, bundle)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, saved.ID)
	assert.Equal(t, 2, saved.Players)
	assert.Equal(t, 1, saved.Squads)
	assert.Equal(t, 1, saved.Gameweeks)

	got, err := s.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, got.ID)
	assert.True(t, json.Valid(got.Bundle))
	assert.JSONEq(t, string(saved.Bundle), string(got.Bundle))

	decoded, err := got.DecodeBundle()
	require.NoError(t, err)
	assert.Equal(t, bundle.Players[0].Name(), decoded.Players[0].Name())
	assert.Equal(t, normalizer.FeedID("1"), decoded.Players[0].ID)
	assert.Equal(t, 41.5, decoded.PlayerOwnership["1"].Percents)
	gws, ok := decoded.Players[0].Stats.Gameweeks()
	require.True(t, ok)
	assert.Equal(t, 24.0, gws["2"])
}

func TestPoolStore_Latest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Latest(ctx)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	base := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	first, err := s.Save(ctx, testBundle(t))
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(time.Minute) }
	second, err := s.Save(ctx, &normalizer.FeedBundle{})
	require.NoError(t, err)

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.NotEqual(t, first.ID, latest.ID)
	assert.Equal(t, 0, latest.Players)
}

func TestPoolStore_Errors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	_, err = s.Save(ctx, nil)
	assert.Error(t, err)
}

func TestPoolSnapshot_DecodeBundleRejectsCorruptJSON(t *testing.T) {
	snapshot := &PoolSnapshot{ID: uuid.New(), Bundle: datatypes.JSON(`{"players": [`)}
	_, err := snapshot.DecodeBundle()
	assert.ErrorContains(t, err, "failed to decode snapshot")
}
