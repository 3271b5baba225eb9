// models/chart.go
package models

// Chart is one playable difficulty of a Song for a game+mode. ChartID is the
// single canonical identity every score references.
type Chart struct {
	ChartID string `json:"chart_id" gorm:"primaryKey"`
	SongID  int    `json:"song_id" gorm:"index;not null"`
	Game    string `json:"game" gorm:"index;not null"`
	Mode    string `json:"mode" gorm:"index;not null"`

	Difficulty string  `json:"difficulty"`
	Level      string  `json:"level"`
	LevelNum   float64 `json:"level_num"`

	// IsPrimary is false for alternate versions of a chart (e.g. an old
	// revision of the same song slot). No column default: a false here must
	// be stored as false, and gorm treats a defaulted zero value as unset.
	IsPrimary bool `json:"is_primary"`

	// Versions lists which game releases contained this chart.
	Versions []string `json:"versions" gorm:"serializer:json"`

	// HashSHA256 identifies hash-keyed charts (BMS and friends). Kept as
	// its own column so chart resolution never has to query into Data.
	HashSHA256 string `json:"hash_sha256,omitempty" gorm:"index"`

	// Data holds other game-specific fields: notecounts, max percent, and
	// anything else the game's normalizer needs.
	Data map[string]any `json:"data" gorm:"serializer:json"`

	Timestamps
}

// Notecount returns the chart's notecount from Data, or 0 if absent.
func (c *Chart) Notecount() int {
	if c.Data == nil {
		return 0
	}
	switch v := c.Data["notecount"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		// JSON round-trips numbers as float64.
		return int(v)
	}
	return 0
}
