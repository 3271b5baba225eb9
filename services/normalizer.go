// services/normalizer.go
package services

import (
	"score-ingest-system/gameconfig"
	"score-ingest-system/models"
)

// DryScore is the uniform "not yet normalized" score shape every source
// adapter produces. Chart identity is resolved separately; this is only the
// play data.
type DryScore struct {
	Score      float64        `json:"score"`
	Lamp       string         `json:"lamp"`
	Judgements map[string]int `json:"judgements,omitempty"`
	HitMeta    map[string]any `json:"hit_meta,omitempty"`

	// TimeAchieved is unix millis; 0 when the source has no timestamp.
	TimeAchieved int64 `json:"time_achieved,omitempty"`

	Service string  `json:"service,omitempty"`
	Comment *string `json:"comment,omitempty"`
}

// NormalizeScore converts a dry score into the uniform ScoreData shape plus
// its per-score rating metrics. It is a pure function of (dry score, chart,
// game config): no store access, no side effects. Failures are typed
// *NormalizeError values and only ever reject this one score.
func NormalizeScore(dry DryScore, chart *models.Chart, cfg *gameconfig.GamePTConfig) (models.ScoreData, map[string]float64, error) {
	var sd models.ScoreData

	if dry.Lamp == "" {
		return sd, nil, normalizeFailf(FailMissingRequiredMetric, "score has no lamp")
	}

	lampIndex, ok := cfg.LampIndex(dry.Lamp)
	if !ok {
		return sd, nil, normalizeFailf(FailInvalidMetric, "invalid lamp %q for %s", dry.Lamp, gameconfig.Key(cfg.Game, cfg.Mode))
	}

	if dry.Score < 0 {
		return sd, nil, normalizeFailf(FailMetricOutOfRange, "negative score %v", dry.Score)
	}

	for name, count := range dry.Judgements {
		if count < 0 {
			return sd, nil, normalizeFailf(FailMetricOutOfRange, "negative %s judgement count %d", name, count)
		}
	}

	percent, err := cfg.CalculatePercent(dry.Score, chart)
	if err != nil {
		return sd, nil, &NormalizeError{Type: FailInternal, Message: err.Error()}
	}
	if percent > cfg.PercentMax {
		return sd, nil, normalizeFailf(FailMetricOutOfRange,
			"percent %.2f exceeds maximum %.2f for this chart", percent, cfg.PercentMax)
	}

	grade, gradeIndex, err := cfg.GradeFromPercent(percent)
	if err != nil {
		return sd, nil, &NormalizeError{Type: FailInternal, Message: err.Error()}
	}

	sd = models.ScoreData{
		Score:      dry.Score,
		Percent:    percent,
		Grade:      grade,
		GradeIndex: gradeIndex,
		Lamp:       dry.Lamp,
		LampIndex:  lampIndex,
		Judgements: dry.Judgements,
		HitMeta:    dry.HitMeta,
	}

	var ratings map[string]float64
	if cfg.CalculateRatings != nil {
		ratings = cfg.CalculateRatings(&sd, chart)
	}

	return sd, ratings, nil
}
