// Package history remembers the last browsed directory and where playback
// of each file stopped.
package history

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/crittr/crittr/internal/database"
	"github.com/crittr/crittr/internal/media"
)

const lastDirectoryKey = "last_directory"

const (
	// MinResume is the earliest position worth resuming from.
	MinResume = 1.0
	// EndMargin is how close to a known end a position counts as finished.
	EndMargin = 2.0
)

// Service provides settings and resume position management
type Service struct {
	db *gorm.DB
}

// Position is a saved playback position
type Position struct {
	Path      string
	PTS       float64
	Duration  media.Duration
	UpdatedAt time.Time
}

// Progress returns the watched fraction in [0, 1], or 0 when the duration
// is unknown.
func (p Position) Progress() float64 {
	if !p.Duration.Known || p.Duration.Value <= 0 {
		return 0
	}
	return min(max(p.PTS/p.Duration.Value, 0), 1)
}

// NewService creates a new history service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// SetLastDirectory records the directory a file was last opened from
func (s *Service) SetLastDirectory(dir string) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return database.SaveSetting(s.db, lastDirectoryKey, filepath.Clean(dir))
}

// LastDirectory returns the last recorded directory, or "" if none
func (s *Service) LastDirectory() (string, error) {
	if s.db == nil {
		return "", fmt.Errorf("database connection is nil")
	}
	return database.GetSetting(s.db, lastDirectoryKey)
}

// SavePosition stores pts for path, replacing any earlier position
func (s *Service) SavePosition(path string, pts float64, duration media.Duration) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	if path == "" {
		return errors.New("path must not be empty")
	}

	row := database.PlaybackPosition{
		Path:            path,
		PTSSeconds:      max(pts, 0),
		DurationSeconds: duration.Value,
		DurationKnown:   duration.Known,
		UpdatedAt:       time.Now(),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"pts_seconds", "duration_seconds", "duration_known", "updated_at"}),
	}).Create(&row).Error
}

// LastPosition returns the saved position for path
func (s *Service) LastPosition(path string) (Position, bool, error) {
	if s.db == nil {
		return Position{}, false, fmt.Errorf("database connection is nil")
	}

	var row database.PlaybackPosition
	err := s.db.Where("path = ?", path).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Position{}, false, nil
		}
		return Position{}, false, err
	}
	return toPosition(row), true, nil
}

// ResumeAt returns where playback of path should resume. Positions near
// the start, or within EndMargin of a known end, do not resume.
func (s *Service) ResumeAt(path string) (float64, bool, error) {
	pos, ok, err := s.LastPosition(path)
	if err != nil || !ok {
		return 0, false, err
	}
	if pos.PTS < MinResume {
		return 0, false, nil
	}
	if pos.Duration.Known && pos.PTS >= pos.Duration.Value-EndMargin {
		return 0, false, nil
	}
	return pos.PTS, true, nil
}

// Forget deletes the saved position for path
func (s *Service) Forget(path string) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.Where("path = ?", path).Delete(&database.PlaybackPosition{}).Error
}

// Recent returns saved positions, most recently updated first.
// A limit of 0 returns all of them.
func (s *Service) Recent(limit int) ([]Position, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	query := s.db.Order("updated_at DESC").Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []database.PlaybackPosition
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}

	positions := make([]Position, 0, len(rows))
	for _, row := range rows {
		positions = append(positions, toPosition(row))
	}
	return positions, nil
}

// Cleanup removes positions not updated since before
func (s *Service) Cleanup(before time.Time) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database connection is nil")
	}
	result := s.db.Where("updated_at < ?", before).Delete(&database.PlaybackPosition{})
	return result.RowsAffected, result.Error
}

func toPosition(row database.PlaybackPosition) Position {
	return Position{
		Path:      row.Path,
		PTS:       row.PTSSeconds,
		Duration:  media.Duration{Value: row.DurationSeconds, Known: row.DurationKnown},
		UpdatedAt: row.UpdatedAt,
	}
}
