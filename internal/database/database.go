// Package database stores crittr's settings and saved playback positions
// in SQLite.
package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/crittr/crittr/internal/config"
)

// DB is the global database instance
var DB *gorm.DB

// Init opens the database at cfg.Path and installs it as DB
func Init(cfg *config.DatabaseConfig) error {
	db, err := Open(cfg)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// Open opens the database, applies the SQL migrations, then lets GORM
// reconcile the model schema.
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(db); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Reconnect so GORM does not reuse a schema cached before the SQL
	// migrations changed it.
	if err := closeDB(db); err != nil {
		return nil, fmt.Errorf("failed to close database connection: %w", err)
	}
	db, err = connect(cfg)
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("failed to run auto migrations: %w\n\n"+
			"Hint: an incompatible database from an older build can be removed:\n"+
			"  rm -f %s", err, cfg.Path)
	}
	return db, nil
}

func connect(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	conns := max(cfg.MaxConnections, 1)
	sqlDB.SetMaxOpenConns(conns)
	sqlDB.SetMaxIdleConns(max(conns/2, 1))

	pragmas := []string{"PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"}
	if cfg.WALMode {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	if cfg.AutoVacuum {
		pragmas = append(pragmas, "PRAGMA auto_vacuum=INCREMENTAL")
	}
	for _, p := range pragmas {
		if err := db.Exec(p).Error; err != nil {
			closeDB(db)
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return db, nil
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Close closes the global database connection
func Close() error {
	if DB == nil {
		return nil
	}
	err := closeDB(DB)
	DB = nil
	return err
}

// GetDB returns the global database instance
func GetDB() *gorm.DB {
	return DB
}
