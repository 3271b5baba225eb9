// models/user_game_stats.go
package models

import "time"

// UserGameStats tracks per (user, game, mode) profile aggregates
// (denormalized for performance). Imports and reverts mark a row stale; the
// scheduler recomputes stale rows from the user's PBs.
type UserGameStats struct {
	UserID int    `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	Game   string `json:"game" gorm:"primaryKey"`
	Mode   string `json:"mode" gorm:"primaryKey"`

	// Ratings holds one value per rating key the game defines
	// (e.g. an average of the player's best PB ratings).
	Ratings map[string]float64 `json:"ratings" gorm:"serializer:json"`

	TotalScores int64 `json:"total_scores" gorm:"default:0"`
	TotalCharts int64 `json:"total_charts" gorm:"default:0"`

	Stale          bool       `json:"stale" gorm:"index;default:false"`
	LastRecomputed *time.Time `json:"last_recomputed,omitempty"`

	Timestamps
}
