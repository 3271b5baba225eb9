// models/orphan.go
package models

// OrphanChart is a chart signature seen in submitted data but not yet admitted
// to the catalog. It holds the provisional documents that will become the real
// Song and Chart if enough distinct players report it.
type OrphanChart struct {
	// MatchKey is the canonical serialization of the match criteria
	// (e.g. "sha256:<hash>" or "sha256:<hash>:Controller"). At most one
	// OrphanChart exists per key.
	MatchKey string `json:"match_key" gorm:"primaryKey"`

	// IDString is the game:mode pair this signature belongs to.
	IDString string `json:"id_string" gorm:"index;not null"`
	Game     string `json:"game" gorm:"not null"`
	Mode     string `json:"mode" gorm:"not null"`

	ChartDoc Chart `json:"chart_doc" gorm:"serializer:json"`
	SongDoc  Song  `json:"song_doc" gorm:"serializer:json"`

	// UserIDs is the deduplicated set of users who have reported this
	// signature. Promotion happens when len(UserIDs) reaches the queue
	// threshold.
	UserIDs []int `json:"user_ids" gorm:"serializer:json"`

	Timestamps
}

// OrphanScore is a raw payload that could not be resolved to a chart when it
// was submitted. It is kept verbatim so it can be replayed through the import
// pipeline once the chart exists.
type OrphanScore struct {
	// OrphanID is a content hash of (userID, matchKey, payload), so
	// resubmitting the same orphaned score is a no-op.
	OrphanID string `json:"orphan_id" gorm:"primaryKey"`

	UserID   int    `json:"user_id" gorm:"index;not null"`
	Game     string `json:"game" gorm:"not null"`
	Mode     string `json:"mode" gorm:"not null"`
	MatchKey string `json:"match_key" gorm:"index;not null"`

	Payload []byte `json:"payload"`
	ErrMsg  string `json:"err_msg"`

	TimeInserted int64 `json:"time_inserted"`
}
