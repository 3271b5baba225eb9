// models/score.go
package models

// ScoreData is the uniform per-game score shape. Enum metrics (lamp, grade)
// carry both the string value and its index in the game's canonical ordered
// list, so "better" comparisons never parse strings.
type ScoreData struct {
	Score   float64 `json:"score"`
	Percent float64 `json:"percent"`

	Grade      string `json:"grade"`
	GradeIndex int    `json:"grade_index"`
	Lamp       string `json:"lamp"`
	LampIndex  int    `json:"lamp_index"`

	Judgements map[string]int `json:"judgements,omitempty"`

	// HitMeta holds optional game-specific metrics (gauge history, break
	// count, fast/slow...). Games are not required to report any of these.
	HitMeta map[string]any `json:"hit_meta,omitempty"`
}

// Score is a single play record. Immutable after creation except for comment
// and highlight; created exclusively by the import pipeline.
type Score struct {
	ScoreID string `json:"score_id" gorm:"primaryKey"`

	UserID int    `json:"user_id" gorm:"index;not null"`
	SongID int    `json:"song_id" gorm:"not null"`
	Game   string `json:"game" gorm:"index;not null"`
	Mode   string `json:"mode" gorm:"index;not null"`
	ChartID string `json:"chart_id" gorm:"index;not null"`

	// TimeAchieved is unix millis as reported by the source; 0 means the
	// source supplied no timestamp (such scores never join sessions).
	TimeAchieved int64 `json:"time_achieved" gorm:"index"`
	// TimeAdded is when this row was persisted, unix millis.
	TimeAdded int64 `json:"time_added"`

	ScoreData      ScoreData          `json:"score_data" gorm:"serializer:json"`
	CalculatedData map[string]float64 `json:"calculated_data" gorm:"serializer:json"`

	// Service names the source that submitted this score (an IR, a file
	// upload, a hook client...).
	Service    string `json:"service"`
	ImportType string `json:"import_type"`
	ImportID   string `json:"import_id" gorm:"index"`

	Comment   *string `json:"comment,omitempty"`
	Highlight bool    `json:"highlight" gorm:"default:false"`

	Timestamps
}
