// models/import.go
package models

// ImportError is one rejected payload inside an import.
type ImportError struct {
	PayloadIndex int    `json:"payload_index"`
	Type         string `json:"type"`
	Message      string `json:"message"`
}

// SessionInfoReturn records whether an import created a session or appended
// to an existing one.
type SessionInfoReturn struct {
	SessionID string `json:"session_id"`
	Type      string `json:"type"` // Created | Appended
}

// Import is one batch-ingestion event. It is written once, after every score
// in the batch has been persisted or individually rejected, and is the sole
// source of truth for which scores came from this ingestion event.
type Import struct {
	ImportID string `json:"import_id" gorm:"primaryKey"`

	UserID int    `json:"user_id" gorm:"index;not null"`
	Game   string `json:"game" gorm:"index;not null"`

	ImportType string `json:"import_type"`
	// UserIntent is true when a human deliberately started this import, as
	// opposed to an automated hook firing in the background.
	UserIntent bool `json:"user_intent"`

	ScoreIDs []string      `json:"score_ids" gorm:"serializer:json"`
	Errors   []ImportError `json:"errors" gorm:"serializer:json"`

	CreatedSessions []SessionInfoReturn `json:"created_sessions" gorm:"serializer:json"`

	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Orphaned int `json:"orphaned"`

	TimeStarted  int64 `json:"time_started"`
	TimeFinished int64 `json:"time_finished"`

	Timestamps
}
