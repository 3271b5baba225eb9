// gameconfig/sdvx.go
package gameconfig

import (
	"score-ingest-system/models"
)

const sdvxMaxScore = 10_000_000

func sdvxPercent(score float64, chart *models.Chart) (float64, error) {
	return (score / sdvxMaxScore) * 100, nil
}

func sdvxRatings(sd *models.ScoreData, chart *models.Chart) map[string]float64 {
	if chart.LevelNum <= 0 {
		return nil
	}
	vf := chart.LevelNum * (sd.Score / sdvxMaxScore) * 2
	return map[string]float64{
		"vf6": floorTo(vf, 3),
	}
}

// sdvxLampMerge donates the best-lamp score's gauge reading; the gauge value
// only makes sense alongside the lamp it produced.
func sdvxLampMerge(pb *models.PBScore, scorePB *models.Score, lampPB *models.Score) error {
	if lampPB.ScoreData.HitMeta == nil {
		return nil
	}
	if v, ok := lampPB.ScoreData.HitMeta["gauge"]; ok {
		if pb.ScoreData.HitMeta == nil {
			pb.ScoreData.HitMeta = map[string]any{}
		}
		pb.ScoreData.HitMeta["gauge"] = v
	}
	return nil
}

func init() {
	register(&GamePTConfig{
		Game:            "sdvx",
		Mode:            "Single",
		Lamps:           []string{"FAILED", "CLEAR", "EXCESSIVE CLEAR", "ULTIMATE CHAIN", "PERFECT ULTIMATE CHAIN"},
		Grades:          []string{"D", "C", "B", "A", "A+", "AA", "AA+", "AAA", "AAA+", "S"},
		GradeBoundaries: []float64{0, 70, 80, 87, 90, 93, 95, 97, 98, 99},
		PercentMax:      100,
		ClearLamp:       "CLEAR",
		PrimaryMetric:   "lamp",

		CalculatePercent: sdvxPercent,
		CalculateRatings: sdvxRatings,

		MergeFns: []PBMergeFn{
			{Name: "Best Lamp Gauge", Apply: sdvxLampMerge},
		},
		SessionCalcs: []SessionCalc{
			AverageBestN("vf6", 10),
			// SDVX also totals volforce across the session, rather than
			// only averaging the top plays.
			SumOf("vf6", "vf6Sum"),
		},
		ProfileRatingKeys: []string{"vf6"},
	})
}
