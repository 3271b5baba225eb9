// gameconfig/calc.go
package gameconfig

import (
	"math"
	"sort"

	"score-ingest-system/models"
)

// AverageBestN builds a SessionCalc averaging the top n values of a per-score
// rating metric. If fewer than n member scores carry the metric the aggregate
// is null — an under-N average is misleading, so it is surfaced as "not
// enough data" instead of a lower number.
func AverageBestN(key string, n int) SessionCalc {
	return SessionCalc{
		Key: key,
		Calc: func(scores []models.Score) *float64 {
			vals := collectRatings(scores, key)
			if len(vals) < n {
				return nil
			}
			sort.Sort(sort.Reverse(sort.Float64Slice(vals)))

			sum := 0.0
			for _, v := range vals[:n] {
				sum += v
			}
			avg := roundTo(sum/float64(n), 2)
			return &avg
		},
	}
}

// SumOf builds a SessionCalc totalling a per-score rating metric across the
// whole session, reported under outKey. A session with no qualifying scores
// reports null.
func SumOf(key, outKey string) SessionCalc {
	return SessionCalc{
		Key: outKey,
		Calc: func(scores []models.Score) *float64 {
			vals := collectRatings(scores, key)
			if len(vals) == 0 {
				return nil
			}
			sum := 0.0
			for _, v := range vals {
				sum += v
			}
			sum = roundTo(sum, 2)
			return &sum
		},
	}
}

func collectRatings(scores []models.Score, key string) []float64 {
	vals := make([]float64, 0, len(scores))
	for _, s := range scores {
		if v, ok := s.CalculatedData[key]; ok {
			vals = append(vals, v)
		}
	}
	return vals
}

func roundTo(v float64, places int) float64 {
	shift := math.Pow(10, float64(places))
	return math.Round(v*shift) / shift
}

// floorTo truncates to the given decimal places. The epsilon absorbs binary
// representation error so that e.g. 17*0.95*2 still floors to 32.3, not
// 32.299.
func floorTo(v float64, places int) float64 {
	shift := math.Pow(10, float64(places))
	return math.Floor(v*shift+1e-9) / shift
}
