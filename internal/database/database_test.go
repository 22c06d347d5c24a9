package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/crittr/crittr/internal/config"
)

func testConfig(t *testing.T) *config.DatabaseConfig {
	t.Helper()
	return &config.DatabaseConfig{
		Path:           filepath.Join(t.TempDir(), "db", "crittr.db"),
		MaxConnections: 2,
		WALMode:        true,
	}
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeDB(db) })
	return db
}

func TestOpenAppliesMigrations(t *testing.T) {
	db := openTestDB(t)

	applied, err := appliedMigrations(db)
	require.NoError(t, err)
	assert.True(t, applied["20260301"])
	assert.True(t, applied["20260412"])

	assert.True(t, db.Migrator().HasTable(&PlaybackPosition{}))
	assert.True(t, db.Migrator().HasColumn(&PlaybackPosition{}, "DurationKnown"))
	assert.True(t, db.Migrator().HasTable(&Setting{}))
}

func TestOpenIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	db, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, SaveSetting(db, "last_directory", "/clips"))
	require.NoError(t, closeDB(db))

	db, err = Open(cfg)
	require.NoError(t, err)
	defer closeDB(db)

	v, err := GetSetting(db, "last_directory")
	require.NoError(t, err)
	assert.Equal(t, "/clips", v)
}

func TestLegacyPositionsGainDurationKnown(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Path), 0755))

	legacy, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{})
	require.NoError(t, err)
	initial, err := migrationsFS.ReadFile("migrations/20260301_initial_schema.sql")
	require.NoError(t, err)
	require.NoError(t, legacy.Exec(string(initial)).Error)
	require.NoError(t, legacy.Exec(`CREATE TABLE schema_migrations (name TEXT PRIMARY KEY, applied_at DATETIME DEFAULT CURRENT_TIMESTAMP)`).Error)
	require.NoError(t, legacy.Exec(`INSERT INTO schema_migrations (name) VALUES ('20260301')`).Error)
	require.NoError(t, legacy.Exec(`INSERT INTO playback_positions (path, pts_seconds, duration_seconds) VALUES ('/a.mp4', 3, 12.5), ('/b.mp4', 7, 0)`).Error)
	require.NoError(t, closeDB(legacy))

	db, err := Open(cfg)
	require.NoError(t, err)
	defer closeDB(db)

	var positions []PlaybackPosition
	require.NoError(t, db.Order("path").Find(&positions).Error)
	require.Len(t, positions, 2)
	assert.True(t, positions[0].DurationKnown)
	assert.Equal(t, 12.5, positions[0].DurationSeconds)
	assert.False(t, positions[1].DurationKnown)
	assert.Equal(t, 7.0, positions[1].PTSSeconds)
}

func TestSettings(t *testing.T) {
	db := openTestDB(t)

	v, err := GetSetting(db, "missing")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, SaveSetting(db, "k", "one"))
	require.NoError(t, SaveSetting(db, "k", "two"))
	v, err = GetSetting(db, "k")
	require.NoError(t, err)
	assert.Equal(t, "two", v)

	var count int64
	require.NoError(t, db.Model(&Setting{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	require.NoError(t, ClearSetting(db, "k"))
	require.NoError(t, ClearSetting(db, "k"))
	v, err = GetSetting(db, "k")
	require.NoError(t, err)
	assert.Empty(t, v)

	assert.Error(t, SaveSetting(db, "", "x"))
}

func TestMigrationName(t *testing.T) {
	assert.Equal(t, "20260301", migrationName("20260301_initial_schema.sql"))
	assert.Equal(t, "notes.sql", migrationName("notes.sql"))
}

func TestInitAndClose(t *testing.T) {
	require.NoError(t, Init(testConfig(t)))
	assert.NotNil(t, GetDB())
	require.NoError(t, Close())
	assert.Nil(t, GetDB())
	require.NoError(t, Close())
}
