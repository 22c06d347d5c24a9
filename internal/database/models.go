package database

import (
	"time"

	"gorm.io/gorm"
)

// Setting is a key-value store for application settings
type Setting struct {
	Key       string    `gorm:"primaryKey"`
	Value     string    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP"`
}

// TableName overrides the table name
func (Setting) TableName() string {
	return "settings"
}

// PlaybackPosition remembers where playback of a file last stopped
type PlaybackPosition struct {
	ID              uint      `gorm:"primaryKey"`
	Path            string    `gorm:"not null;uniqueIndex"`
	PTSSeconds      float64   `gorm:"column:pts_seconds;not null;default:0"`
	DurationSeconds float64   `gorm:"not null;default:0"`
	DurationKnown   bool      `gorm:"default:false"`
	UpdatedAt       time.Time `gorm:"index;default:CURRENT_TIMESTAMP"`
}

// TableName overrides the table name
func (PlaybackPosition) TableName() string {
	return "playback_positions"
}

// Migrate runs GORM auto migrations
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Setting{},
		&PlaybackPosition{},
	)
}
