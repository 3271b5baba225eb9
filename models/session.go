// models/session.go
package models

// SessionScoreInfo describes one score's membership in a session. Deltas are
// measured against the PB that existed before the score was imported; a score
// on a chart the user had never played is just flagged as new.
type SessionScoreInfo struct {
	ScoreID    string `json:"score_id"`
	IsNewScore bool   `json:"is_new_score"`

	ScoreDelta   float64 `json:"score_delta,omitempty"`
	PercentDelta float64 `json:"percent_delta,omitempty"`
	GradeDelta   int     `json:"grade_delta,omitempty"`
	LampDelta    int     `json:"lamp_delta,omitempty"`
}

// Session groups a user's temporally-adjacent scores on one game+mode.
// CalculatedData values are nullable on purpose: an aggregate that does not
// have enough qualifying scores reports null, never a partial number.
type Session struct {
	SessionID string `json:"session_id" gorm:"primaryKey"`

	UserID int    `json:"user_id" gorm:"index;not null"`
	Game   string `json:"game" gorm:"index;not null"`
	Mode   string `json:"mode" gorm:"index;not null"`

	Name      string `json:"name"`
	Desc      *string `json:"desc,omitempty"`
	Highlight bool   `json:"highlight" gorm:"default:false"`

	ImportType string `json:"import_type"`

	TimeStarted  int64 `json:"time_started" gorm:"index"`
	TimeEnded    int64 `json:"time_ended" gorm:"index"`
	TimeInserted int64 `json:"time_inserted"`

	ScoreInfo      []SessionScoreInfo  `json:"score_info" gorm:"serializer:json"`
	CalculatedData map[string]*float64 `json:"calculated_data" gorm:"serializer:json"`

	Timestamps
}

// ScoreIDs returns the IDs of every member score, in session order.
func (s *Session) ScoreIDs() []string {
	ids := make([]string, 0, len(s.ScoreInfo))
	for _, info := range s.ScoreInfo {
		ids = append(ids, info.ScoreID)
	}
	return ids
}
