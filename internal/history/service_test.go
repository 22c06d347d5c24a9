package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/crittr/crittr/internal/config"
	"github.com/crittr/crittr/internal/database"
	"github.com/crittr/crittr/internal/media"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Every new connection to :memory: would be a fresh, empty database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.RunMigrations(db))
	require.NoError(t, database.Migrate(db))
	return NewService(db)
}

func TestServiceOnFileDatabase(t *testing.T) {
	db, err := database.Open(&config.DatabaseConfig{
		Path:           filepath.Join(t.TempDir(), "crittr.db"),
		MaxConnections: 2,
		WALMode:        true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	s := NewService(db)
	require.NoError(t, s.SavePosition("/clips/a.mp4", 42, media.Duration{Value: 120, Known: true}))
	at, ok, err := s.ResumeAt("/clips/a.mp4")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 42.0, at)
}

func TestLastDirectory(t *testing.T) {
	s := newTestService(t)

	dir, err := s.LastDirectory()
	require.NoError(t, err)
	assert.Empty(t, dir)

	require.NoError(t, s.SetLastDirectory("/media/clips/"))
	require.NoError(t, s.SetLastDirectory("/media/films/../clips"))
	dir, err = s.LastDirectory()
	require.NoError(t, err)
	assert.Equal(t, "/media/clips", dir)
}

func TestSaveAndLoadPosition(t *testing.T) {
	s := newTestService(t)

	_, ok, err := s.LastPosition("/clips/a.mp4")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SavePosition("/clips/a.mp4", 12.5, media.Duration{Value: 60, Known: true}))
	require.NoError(t, s.SavePosition("/clips/a.mp4", 20, media.Duration{Value: 60, Known: true}))

	pos, ok, err := s.LastPosition("/clips/a.mp4")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 20.0, pos.PTS)
	assert.Equal(t, media.Duration{Value: 60, Known: true}, pos.Duration)
	assert.InDelta(t, 1.0/3, pos.Progress(), 1e-9)

	all, err := s.Recent(0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSavePositionRejectsEmptyPath(t *testing.T) {
	s := newTestService(t)
	assert.Error(t, s.SavePosition("", 1, media.Duration{}))
}

func TestResumeAt(t *testing.T) {
	tests := []struct {
		name     string
		pts      float64
		duration media.Duration
		wantOK   bool
	}{
		{name: "middle of known duration", pts: 30, duration: media.Duration{Value: 60, Known: true}, wantOK: true},
		{name: "unknown duration", pts: 30, duration: media.Duration{Value: 30}, wantOK: true},
		{name: "too close to start", pts: 0.5, duration: media.Duration{Value: 60, Known: true}},
		{name: "finished", pts: 59, duration: media.Duration{Value: 60, Known: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(t)
			require.NoError(t, s.SavePosition("/clips/a.mp4", tt.pts, tt.duration))

			at, ok, err := s.ResumeAt("/clips/a.mp4")
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.pts, at)
			}
		})
	}

	s := newTestService(t)
	_, ok, err := s.ResumeAt("/never/played.mp4")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecentAndForget(t *testing.T) {
	s := newTestService(t)
	for _, p := range []string{"/a.mp4", "/b.mp4", "/c.mp4"} {
		require.NoError(t, s.SavePosition(p, 5, media.Duration{}))
		time.Sleep(5 * time.Millisecond)
	}

	recent, err := s.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "/c.mp4", recent[0].Path)
	assert.Equal(t, "/b.mp4", recent[1].Path)
	assert.Zero(t, recent[0].Progress())

	require.NoError(t, s.Forget("/c.mp4"))
	require.NoError(t, s.Forget("/c.mp4"))
	recent, err = s.Recent(0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "/b.mp4", recent[0].Path)
}

func TestCleanup(t *testing.T) {
	s := newTestService(t)
	require.NoError(t, s.SavePosition("/old.mp4", 5, media.Duration{}))

	n, err := s.Cleanup(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.Cleanup(time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestNilDatabase(t *testing.T) {
	s := NewService(nil)
	assert.Error(t, s.SetLastDirectory("/x"))
	_, err := s.LastDirectory()
	assert.Error(t, err)
	assert.Error(t, s.SavePosition("/x", 1, media.Duration{}))
	_, _, err = s.LastPosition("/x")
	assert.Error(t, err)
	assert.Error(t, s.Forget("/x"))
	_, err = s.Recent(1)
	assert.Error(t, err)
}
