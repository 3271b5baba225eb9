// services/normalizer_test.go
package services

import (
	"testing"

	"score-ingest-system/gameconfig"
	"score-ingest-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIIDXChart() *models.Chart {
	return &models.Chart{
		ChartID:  "Cnorm01",
		Game:     "iidx",
		Mode:     "SP",
		LevelNum: 12,
		Data:     map[string]any{"notecount": 2000},
	}
}

func TestNormalizeScore(t *testing.T) {
	cfg, ok := gameconfig.Get("iidx", "SP")
	require.True(t, ok)
	chart := testIIDXChart()

	t.Run("valid score", func(t *testing.T) {
		sd, ratings, err := NormalizeScore(DryScore{
			Score:      3600,
			Lamp:       "HARD CLEAR",
			Judgements: map[string]int{"pgreat": 1700, "great": 200},
		}, chart, cfg)
		require.NoError(t, err)

		assert.Equal(t, 90.0, sd.Percent)
		assert.Equal(t, "AAA", sd.Grade)
		assert.Equal(t, 7, sd.GradeIndex)
		assert.Equal(t, "HARD CLEAR", sd.Lamp)
		assert.Equal(t, 5, sd.LampIndex)
		assert.InDelta(t, 21.6, ratings["ktRating"], 0.001)
	})

	t.Run("missing lamp", func(t *testing.T) {
		_, _, err := NormalizeScore(DryScore{Score: 100}, chart, cfg)
		requireFailure(t, err, FailMissingRequiredMetric)
	})

	t.Run("unknown lamp", func(t *testing.T) {
		_, _, err := NormalizeScore(DryScore{Score: 100, Lamp: "PERFECT"}, chart, cfg)
		requireFailure(t, err, FailInvalidMetric)
	})

	t.Run("negative score", func(t *testing.T) {
		_, _, err := NormalizeScore(DryScore{Score: -1, Lamp: "CLEAR"}, chart, cfg)
		requireFailure(t, err, FailMetricOutOfRange)
	})

	t.Run("negative judgement", func(t *testing.T) {
		_, _, err := NormalizeScore(DryScore{
			Score: 100, Lamp: "CLEAR",
			Judgements: map[string]int{"great": -3},
		}, chart, cfg)
		requireFailure(t, err, FailMetricOutOfRange)
	})

	t.Run("score above chart maximum", func(t *testing.T) {
		// 2000 notes cap EX at 4000.
		_, _, err := NormalizeScore(DryScore{Score: 4002, Lamp: "CLEAR"}, chart, cfg)
		requireFailure(t, err, FailMetricOutOfRange)
	})

	t.Run("chart without notecount", func(t *testing.T) {
		bare := &models.Chart{ChartID: "Cnorm02", Game: "iidx", Mode: "SP"}
		_, _, err := NormalizeScore(DryScore{Score: 100, Lamp: "CLEAR"}, bare, cfg)
		requireFailure(t, err, FailInternal)
	})
}

func requireFailure(t *testing.T, err error, want FailureType) {
	t.Helper()
	var nerr *NormalizeError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, want, nerr.Type)
}
