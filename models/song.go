// models/song.go
package models

// Song is one piece of music in a game's catalog. The integer ID is unique
// within a game and is handed out by SongIDCounter — never by the caller.
type Song struct {
	Game   string `json:"game" gorm:"primaryKey"`
	SongID int    `json:"song_id" gorm:"primaryKey;autoIncrement:false"`

	Title  string `json:"title" gorm:"not null"`
	Artist string `json:"artist"`

	// Searchable aliases: alternative titles plus slugged/ASCII-folded
	// terms derived from them.
	AltTitles   []string `json:"alt_titles" gorm:"serializer:json"`
	SearchTerms []string `json:"search_terms" gorm:"serializer:json"`

	Timestamps
}

// SongIDCounter hands out per-game song IDs. NextID is only ever touched via
// an increment inside a transaction, so the value is never cached in process
// memory across requests.
type SongIDCounter struct {
	Game   string `json:"game" gorm:"primaryKey"`
	NextID int    `json:"next_id" gorm:"default:1"`
}
