// services/orphan_test.go
package services

import (
	"context"
	"testing"

	"score-ingest-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func provisionalBMSDocs(hash string) (models.Chart, models.Song) {
	chart := models.Chart{
		Mode:       "7K",
		Difficulty: "CHART",
		Level:      "?",
		LevelNum:   0,
		IsPrimary:  true,
		HashSHA256: hash,
		Data:       map[string]any{"notecount": 1500},
	}
	song := models.Song{Title: "unknown bms", Artist: "unknown"}
	return chart, song
}

func TestOrphanResolveThreshold(t *testing.T) {
	ts := newTestServices(t, 2)
	ctx := context.Background()

	const hash = "aaaa1111"
	matchKey := ChartMatch{SHA256: hash}.Key("bms", "7K")
	chartDoc, songDoc := provisionalBMSDocs(hash)

	// First sighting queues, nothing admitted.
	chart, err := ts.orphans.Resolve(ctx, "bms:7K", "bms", "7K", chartDoc, songDoc, matchKey, 2, 1)
	require.NoError(t, err)
	assert.Nil(t, chart)

	// Same user again: deduplicated, still pending.
	chart, err = ts.orphans.Resolve(ctx, "bms:7K", "bms", "7K", chartDoc, songDoc, matchKey, 2, 1)
	require.NoError(t, err)
	assert.Nil(t, chart)

	var orphan models.OrphanChart
	require.NoError(t, ts.db.Where("match_key = ?", matchKey).First(&orphan).Error)
	assert.Equal(t, []int{1}, orphan.UserIDs)

	// A second distinct user crosses the threshold.
	chart, err = ts.orphans.Resolve(ctx, "bms:7K", "bms", "7K", chartDoc, songDoc, matchKey, 2, 2)
	require.NoError(t, err)
	require.NotNil(t, chart)
	assert.Equal(t, "bms", chart.Game)
	assert.Equal(t, hash, chart.HashSHA256)
	assert.NotEmpty(t, chart.ChartID)

	// Song got a real allocated ID and the queue entry is gone.
	var song models.Song
	require.NoError(t, ts.db.Where("game = ? AND song_id = ?", "bms", chart.SongID).First(&song).Error)
	assert.Equal(t, "unknown bms", song.Title)

	var count int64
	require.NoError(t, ts.db.Model(&models.OrphanChart{}).Where("match_key = ?", matchKey).Count(&count).Error)
	assert.Zero(t, count)

	// Resolvable through the catalog from now on.
	found, err := ts.catalog.FindChart(ctx, "bms", "7K", ChartMatch{SHA256: hash})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, chart.ChartID, found.ChartID)
}

func TestOrphanResolveThresholdOne(t *testing.T) {
	ts := newTestServices(t, 1)
	ctx := context.Background()

	chartDoc, songDoc := provisionalBMSDocs("bbbb2222")
	matchKey := ChartMatch{SHA256: "bbbb2222"}.Key("bms", "7K")

	chart, err := ts.orphans.Resolve(ctx, "bms:7K", "bms", "7K", chartDoc, songDoc, matchKey, 1, 7)
	require.NoError(t, err)
	require.NotNil(t, chart)
}

func TestOrphanForceResolve(t *testing.T) {
	ts := newTestServices(t, 5)
	ctx := context.Background()

	chartDoc, songDoc := provisionalBMSDocs("cccc3333")
	matchKey := ChartMatch{SHA256: "cccc3333"}.Key("bms", "7K")

	_, err := ts.orphans.Resolve(ctx, "bms:7K", "bms", "7K", chartDoc, songDoc, matchKey, 5, 1)
	require.NoError(t, err)

	chart, err := ts.orphans.ForceResolve(ctx, matchKey)
	require.NoError(t, err)
	require.NotNil(t, chart)

	// Nothing queued under an unknown key.
	chart, err = ts.orphans.ForceResolve(ctx, "sha256:nope:bms:7K")
	require.NoError(t, err)
	assert.Nil(t, chart)
}

func TestStoreOrphanScoreDeduplicates(t *testing.T) {
	ts := newTestServices(t, 2)
	ctx := context.Background()

	payload := []byte(`{"score":100}`)

	stored, err := ts.orphans.StoreOrphanScore(ctx, 1, "bms", "7K", "key1", payload, "chart not in catalog")
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = ts.orphans.StoreOrphanScore(ctx, 1, "bms", "7K", "key1", payload, "chart not in catalog")
	require.NoError(t, err)
	assert.False(t, stored)

	// Same payload from another user is a distinct row.
	stored, err = ts.orphans.StoreOrphanScore(ctx, 2, "bms", "7K", "key1", payload, "chart not in catalog")
	require.NoError(t, err)
	assert.True(t, stored)

	rows, err := ts.orphans.OrphanScoresFor(ctx, "key1")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	keys, err := ts.orphans.PendingMatchKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"key1"}, keys)
}
