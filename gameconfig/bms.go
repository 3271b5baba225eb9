// gameconfig/bms.go
package gameconfig

import (
	"score-ingest-system/models"
)

// bmsRatings derives sieglinde, a clear-based difficulty rating. Hard clears
// weigh slightly above the chart's base level, easy clears slightly below.
func bmsRatings(sd *models.ScoreData, chart *models.Chart) map[string]float64 {
	if chart.LevelNum <= 0 {
		return nil
	}

	var sgl float64
	switch {
	case sd.Lamp == "HARD CLEAR" || sd.Lamp == "EX HARD CLEAR" || sd.Lamp == "FULL COMBO":
		sgl = chart.LevelNum * 1.1
	case sd.Lamp == "EASY CLEAR" || sd.Lamp == "CLEAR" || sd.Lamp == "ASSIST CLEAR":
		sgl = chart.LevelNum * 0.95
	default:
		return nil
	}

	return map[string]float64{
		"sieglinde": floorTo(sgl, 2),
	}
}

func bmsConfig(mode string) *GamePTConfig {
	return &GamePTConfig{
		Game:            "bms",
		Mode:            mode,
		Lamps:           beatLamps,
		Grades:          beatGrades,
		GradeBoundaries: beatGradeBoundaries,
		PercentMax:      100,
		ClearLamp:       "EASY CLEAR",
		PrimaryMetric:   "lamp",

		CalculatePercent: beatPercent,
		CalculateRatings: bmsRatings,

		MergeFns: []PBMergeFn{
			{Name: "Best Lamp Gauge", Apply: beatLampMerge},
		},
		SessionCalcs: []SessionCalc{
			AverageBestN("sieglinde", 10),
		},
		ProfileRatingKeys: []string{"sieglinde"},
	}
}

func init() {
	register(bmsConfig("7K"))
	register(bmsConfig("14K"))
}
