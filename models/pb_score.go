// models/pb_score.go
package models

// ComposedFromEntry names a merged field group and the score that donated it.
type ComposedFromEntry struct {
	Name    string `json:"name"`
	ScoreID string `json:"score_id"`
}

// ComposedFrom records which underlying scores contributed to a PB composite,
// so the composite is always explainable.
type ComposedFrom struct {
	ScorePB string              `json:"score_pb"`
	LampPB  string              `json:"lamp_pb"`
	Other   []ComposedFromEntry `json:"other,omitempty"`
}

// RankingData is this PB's position among all users' PBs on the chart.
type RankingData struct {
	Rank  int `json:"rank"`
	OutOf int `json:"out_of"`
}

// PBScore is the metric-wise best-of composite for one user on one chart. It
// is fully derived: it must always be reconstructable by replaying the user's
// scores on the chart, and must never exist without at least one backing
// Score.
type PBScore struct {
	UserID  int    `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	ChartID string `json:"chart_id" gorm:"primaryKey"`

	SongID int    `json:"song_id" gorm:"not null"`
	Game   string `json:"game" gorm:"index;not null"`
	Mode   string `json:"mode" gorm:"index;not null"`

	IsPrimary    bool  `json:"is_primary"`
	Highlight    bool  `json:"highlight" gorm:"default:false"`
	TimeAchieved int64 `json:"time_achieved"`

	ScoreData      ScoreData          `json:"score_data" gorm:"serializer:json"`
	CalculatedData map[string]float64 `json:"calculated_data" gorm:"serializer:json"`
	ComposedFrom   ComposedFrom       `json:"composed_from" gorm:"serializer:json"`
	RankingData    RankingData        `json:"ranking_data" gorm:"serializer:json"`

	Timestamps
}
