// services/importer_test.go
package services

import (
	"context"
	"testing"
	"time"

	"score-ingest-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func iidxPayload(score float64, lamp string, at int64) RawPayload {
	return RawPayload{
		Mode:  "SP",
		Match: ChartMatch{SongID: intPtr(1), Difficulty: "ANOTHER"},
		Score: DryScore{
			Score:        score,
			Lamp:         lamp,
			Judgements:   map[string]int{"pgreat": 1500, "great": 300},
			TimeAchieved: at,
			Service:      "test-ir",
		},
	}
}

func TestImportPersistsScoresAndDerivations(t *testing.T) {
	ts := newTestServices(t, 2)
	ctx := context.Background()
	chart := seedIIDXChart(t, ts.db)

	at := int64(1_700_000_000_000)
	result, err := ts.importer.Import(ctx, 1, true, "file/batch-manual", "iidx", []RawPayload{
		iidxPayload(3600, "CLEAR", at),
		iidxPayload(3000, "HARD CLEAR", at+10*time.Minute.Milliseconds()),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Imported)
	assert.Zero(t, result.Skipped)
	assert.Zero(t, result.Orphaned)
	assert.Empty(t, result.Rejected)
	require.NotNil(t, result.ImportID)

	var scores []models.Score
	require.NoError(t, ts.db.Find(&scores).Error)
	require.Len(t, scores, 2)
	assert.Equal(t, *result.ImportID, scores[0].ImportID)

	// The PB composes the best score with the best lamp.
	var pb models.PBScore
	require.NoError(t, ts.db.Where("user_id = ? AND chart_id = ?", 1, chart.ChartID).First(&pb).Error)
	assert.Equal(t, 3600.0, pb.ScoreData.Score)
	assert.Equal(t, "HARD CLEAR", pb.ScoreData.Lamp)

	// Both plays are ten minutes apart: one session, recorded on the
	// import.
	var imp models.Import
	require.NoError(t, ts.db.Where("import_id = ?", *result.ImportID).First(&imp).Error)
	assert.Len(t, imp.ScoreIDs, 2)
	require.Len(t, imp.CreatedSessions, 1)
	assert.Equal(t, "Created", imp.CreatedSessions[0].Type)

	// Profile stats are flagged for the scheduler, not computed inline.
	var stats models.UserGameStats
	require.NoError(t, ts.db.Where("user_id = ? AND game = ? AND mode = ?", 1, "iidx", "SP").First(&stats).Error)
	assert.True(t, stats.Stale)
}

func TestImportIsIdempotent(t *testing.T) {
	ts := newTestServices(t, 2)
	ctx := context.Background()
	seedIIDXChart(t, ts.db)

	at := int64(1_700_000_000_000)
	payloads := []RawPayload{
		iidxPayload(3600, "CLEAR", at),
		iidxPayload(3000, "HARD CLEAR", at+1000),
	}

	first, err := ts.importer.Import(ctx, 1, true, "file/batch-manual", "iidx", payloads)
	require.NoError(t, err)
	require.Equal(t, 2, first.Imported)

	second, err := ts.importer.Import(ctx, 1, true, "file/batch-manual", "iidx", payloads)
	require.NoError(t, err)
	assert.Zero(t, second.Imported)
	assert.Equal(t, 2, second.Skipped)
	assert.Nil(t, second.ImportID)

	var count int64
	require.NoError(t, ts.db.Model(&models.Score{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestImportDeduplicatesWithinBatch(t *testing.T) {
	ts := newTestServices(t, 2)
	ctx := context.Background()
	seedIIDXChart(t, ts.db)

	p := iidxPayload(3600, "CLEAR", 1_700_000_000_000)
	result, err := ts.importer.Import(ctx, 1, true, "file/batch-manual", "iidx", []RawPayload{p, p})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Skipped)
}

func TestImportRejectsBadPayloadsIndependently(t *testing.T) {
	ts := newTestServices(t, 2)
	ctx := context.Background()
	seedIIDXChart(t, ts.db)

	bad := iidxPayload(3600, "SPARKLE CLEAR", 1_700_000_000_000)
	good := iidxPayload(3000, "CLEAR", 1_700_000_001_000)

	result, err := ts.importer.Import(ctx, 1, true, "file/batch-manual", "iidx", []RawPayload{bad, good})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Imported)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, 0, result.Rejected[0].PayloadIndex)

	require.NotNil(t, result.ImportID)
	var imp models.Import
	require.NoError(t, ts.db.Where("import_id = ?", *result.ImportID).First(&imp).Error)
	require.Len(t, imp.Errors, 1)
	assert.Equal(t, string(FailInvalidMetric), imp.Errors[0].Type)
}

func TestImportUnsupportedGameMode(t *testing.T) {
	ts := newTestServices(t, 2)
	ctx := context.Background()

	p := iidxPayload(3600, "CLEAR", 1_700_000_000_000)
	p.Mode = "9K"

	result, err := ts.importer.Import(ctx, 1, true, "file/batch-manual", "iidx", []RawPayload{p})
	require.NoError(t, err)

	assert.Zero(t, result.Imported)
	require.Len(t, result.Rejected, 1)
}

func bmsPayload(hash string, score float64, lamp string, at int64, provisional bool) RawPayload {
	p := RawPayload{
		Mode:  "7K",
		Match: ChartMatch{SHA256: hash},
		Score: DryScore{
			Score:        score,
			Lamp:         lamp,
			TimeAchieved: at,
			Service:      "test-ir",
		},
	}
	if provisional {
		chart, song := provisionalBMSDocs(hash)
		p.Provisional = &ProvisionalDocs{Chart: chart, Song: song}
	}
	return p
}

func TestImportOrphansUnknownChartThenPromotes(t *testing.T) {
	ts := newTestServices(t, 2)
	ctx := context.Background()

	const hash = "feedbeef01"
	at := int64(1_700_000_000_000)

	// First user: chart unknown, score parked on the orphan queue.
	result, err := ts.importer.Import(ctx, 1, true, "ir/bms-client", "bms", []RawPayload{
		bmsPayload(hash, 2400, "HARD CLEAR", at, true),
	})
	require.NoError(t, err)
	assert.Zero(t, result.Imported)
	assert.Equal(t, 1, result.Orphaned)
	assert.Nil(t, result.ImportID)

	var orphanScores int64
	require.NoError(t, ts.db.Model(&models.OrphanScore{}).Count(&orphanScores).Error)
	assert.EqualValues(t, 1, orphanScores)

	// Second user crosses the threshold: the chart is admitted, their own
	// score imports, and the first user's parked score is replayed.
	result, err = ts.importer.Import(ctx, 2, true, "ir/bms-client", "bms", []RawPayload{
		bmsPayload(hash, 2700, "CLEAR", at+1000, true),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Zero(t, result.Orphaned)

	chart, err := ts.catalog.FindChart(ctx, "bms", "7K", ChartMatch{SHA256: hash})
	require.NoError(t, err)
	require.NotNil(t, chart)

	var user1Scores, user2Scores []models.Score
	require.NoError(t, ts.db.Where("user_id = ?", 1).Find(&user1Scores).Error)
	require.NoError(t, ts.db.Where("user_id = ?", 2).Find(&user2Scores).Error)
	require.Len(t, user1Scores, 1)
	require.Len(t, user2Scores, 1)
	assert.Equal(t, chart.ChartID, user1Scores[0].ChartID)

	// Both users got PBs, ranked against each other.
	var pb1, pb2 models.PBScore
	require.NoError(t, ts.db.Where("user_id = ? AND chart_id = ?", 1, chart.ChartID).First(&pb1).Error)
	require.NoError(t, ts.db.Where("user_id = ? AND chart_id = ?", 2, chart.ChartID).First(&pb2).Error)
	assert.Equal(t, 2, pb1.RankingData.OutOf)
	assert.Equal(t, 2, pb2.RankingData.OutOf)

	// The queue drained completely.
	require.NoError(t, ts.db.Model(&models.OrphanScore{}).Count(&orphanScores).Error)
	assert.Zero(t, orphanScores)
}

func TestImportPromotionRescuesOwnEarlierPayload(t *testing.T) {
	ts := newTestServices(t, 2)
	ctx := context.Background()

	const hash = "0ddba11c9"
	at := int64(1_700_000_000_000)

	// User 2's first submission has no provisional docs: the payload is
	// parked without even queueing the chart.
	result, err := ts.importer.Import(ctx, 2, true, "ir/bms-client", "bms", []RawPayload{
		bmsPayload(hash, 2200, "EASY CLEAR", at, false),
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Orphaned)

	// User 1 queues the chart with provisional docs.
	result, err = ts.importer.Import(ctx, 1, true, "ir/bms-client", "bms", []RawPayload{
		bmsPayload(hash, 2000, "CLEAR", at, true),
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Orphaned)

	// User 2 crosses the threshold. Their parked payload is rescued into
	// this same import alongside the new play, not inserted twice.
	result, err = ts.importer.Import(ctx, 2, true, "ir/bms-client", "bms", []RawPayload{
		bmsPayload(hash, 2400, "HARD CLEAR", at+1000, true),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	require.NotNil(t, result.ImportID)

	var user2Scores []models.Score
	require.NoError(t, ts.db.Where("user_id = ?", 2).Find(&user2Scores).Error)
	assert.Len(t, user2Scores, 2)

	// Both of user 2's scores belong to the promoting import.
	var imp models.Import
	require.NoError(t, ts.db.Where("import_id = ?", *result.ImportID).First(&imp).Error)
	assert.Len(t, imp.ScoreIDs, 2)

	// User 1's parked score landed under their own identity.
	var user1Count int64
	require.NoError(t, ts.db.Model(&models.Score{}).Where("user_id = ?", 1).Count(&user1Count).Error)
	assert.EqualValues(t, 1, user1Count)

	var orphanScores int64
	require.NoError(t, ts.db.Model(&models.OrphanScore{}).Count(&orphanScores).Error)
	assert.Zero(t, orphanScores)

	// The PB composes both of user 2's plays.
	chart, err := ts.catalog.FindChart(ctx, "bms", "7K", ChartMatch{SHA256: hash})
	require.NoError(t, err)
	require.NotNil(t, chart)
	var pb models.PBScore
	require.NoError(t, ts.db.Where("user_id = ? AND chart_id = ?", 2, chart.ChartID).First(&pb).Error)
	assert.Equal(t, 2400.0, pb.ScoreData.Score)
	assert.Equal(t, "HARD CLEAR", pb.ScoreData.Lamp)
}

func TestImportRecordWriteFailureKeepsScores(t *testing.T) {
	ts := newTestServices(t, 2)
	ctx := context.Background()
	chart := seedIIDXChart(t, ts.db)

	require.NoError(t, ts.db.Migrator().DropTable(&models.Import{}))

	result, err := ts.importer.Import(ctx, 1, true, "file/batch-manual", "iidx", []RawPayload{
		iidxPayload(3600, "CLEAR", 1_700_000_000_000),
	})
	require.ErrorIs(t, err, ErrImportRecordWrite)

	// The scores are durable and every derivation still ran; only the
	// reversal record is missing.
	assert.Equal(t, 1, result.Imported)
	assert.Nil(t, result.ImportID)

	var count int64
	require.NoError(t, ts.db.Model(&models.Score{}).Where("user_id = ?", 1).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	var pb models.PBScore
	require.NoError(t, ts.db.Where("user_id = ? AND chart_id = ?", 1, chart.ChartID).First(&pb).Error)
	assert.Equal(t, 3600.0, pb.ScoreData.Score)

	require.NoError(t, ts.db.Model(&models.Session{}).Where("user_id = ?", 1).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestSweepReplaysAfterOutOfBandAdmission(t *testing.T) {
	ts := newTestServices(t, 5)
	ctx := context.Background()

	const hash = "cafe0042"
	at := int64(1_700_000_000_000)

	// Parked: threshold of 5 is far away.
	result, err := ts.importer.Import(ctx, 1, true, "ir/bms-client", "bms", []RawPayload{
		bmsPayload(hash, 2400, "HARD CLEAR", at, true),
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Orphaned)

	// The chart lands via a seed sync instead of queue promotion.
	chartDoc, songDoc := provisionalBMSDocs(hash)
	songDoc.Game = "bms"
	songDoc.SongID = 900
	require.NoError(t, ts.db.Create(&songDoc).Error)
	chartDoc.ChartID = "Cseed900"
	chartDoc.Game = "bms"
	chartDoc.SongID = 900
	require.NoError(t, ts.db.Create(&chartDoc).Error)

	replayed, err := ts.importer.SweepOrphanScores(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, replayed)

	var score models.Score
	require.NoError(t, ts.db.Where("user_id = ?", 1).First(&score).Error)
	assert.Equal(t, "Cseed900", score.ChartID)

	var pb models.PBScore
	require.NoError(t, ts.db.Where("user_id = ? AND chart_id = ?", 1, "Cseed900").First(&pb).Error)
	assert.Equal(t, "HARD CLEAR", pb.ScoreData.Lamp)
}
