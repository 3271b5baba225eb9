package models

import (
	"time"

	"gorm.io/gorm"
)

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// All returns every model registered for AutoMigrate, in dependency order.
func All() []any {
	return []any{
		&Song{},
		&SongIDCounter{},
		&Chart{},
		&OrphanChart{},
		&OrphanScore{},
		&Score{},
		&PBScore{},
		&Session{},
		&Import{},
		&UserGameStats{},
	}
}
