// gameconfig/iidx.go
package gameconfig

import (
	"fmt"

	"score-ingest-system/models"
)

// Shared by IIDX and the BMS family, which clones its judgement model.
var beatLamps = []string{
	"NO PLAY",
	"FAILED",
	"ASSIST CLEAR",
	"EASY CLEAR",
	"CLEAR",
	"HARD CLEAR",
	"EX HARD CLEAR",
	"FULL COMBO",
}

var beatGrades = []string{"F", "E", "D", "C", "B", "A", "AA", "AAA", "MAX-", "MAX"}

var beatGradeBoundaries = []float64{0, 22.22, 33.33, 44.44, 55.55, 66.66, 77.77, 88.88, 94.44, 100}

// beatPercent converts an EX score into a percent of the chart's maximum
// (two points per note).
func beatPercent(score float64, chart *models.Chart) (float64, error) {
	notecount := chart.Notecount()
	if notecount <= 0 {
		return 0, fmt.Errorf("chart %s has no notecount, cannot derive percent", chart.ChartID)
	}
	return (100 * score) / float64(notecount*2), nil
}

// beatLampMerge copies the gauge-related hitMeta fields from the best-lamp
// score. Gauge history and break count are only meaningful in the context of
// the lamp they were achieved with.
func beatLampMerge(pb *models.PBScore, scorePB *models.Score, lampPB *models.Score) error {
	if lampPB.ScoreData.HitMeta == nil {
		return nil
	}
	if pb.ScoreData.HitMeta == nil {
		pb.ScoreData.HitMeta = map[string]any{}
	}
	for _, field := range []string{"bp", "gauge", "gaugeHistory", "comboBreak"} {
		if v, ok := lampPB.ScoreData.HitMeta[field]; ok {
			pb.ScoreData.HitMeta[field] = v
		}
	}
	return nil
}

func iidxRatings(sd *models.ScoreData, chart *models.Chart) map[string]float64 {
	if chart.LevelNum <= 0 {
		return nil
	}
	rating := chart.LevelNum * (sd.Percent / 100) * 2
	return map[string]float64{
		"ktRating": floorTo(rating, 2),
	}
}

func iidxConfig(mode string) *GamePTConfig {
	return &GamePTConfig{
		Game:            "iidx",
		Mode:            mode,
		Lamps:           beatLamps,
		Grades:          beatGrades,
		GradeBoundaries: beatGradeBoundaries,
		PercentMax:      100,
		ClearLamp:       "EASY CLEAR",
		PrimaryMetric:   "lamp",

		CalculatePercent: beatPercent,
		CalculateRatings: iidxRatings,

		MergeFns: []PBMergeFn{
			{Name: "Best Lamp Gauge", Apply: beatLampMerge},
		},
		SessionCalcs: []SessionCalc{
			AverageBestN("ktRating", 10),
		},
		ProfileRatingKeys: []string{"ktRating"},
	}
}

func init() {
	register(iidxConfig("SP"))
	register(iidxConfig("DP"))
}
