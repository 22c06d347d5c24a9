package database

import (
	"embed"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var migrationNameRe = regexp.MustCompile(`^(\d{8})_.+\.sql$`)

type migration struct {
	filename string
	name     string
	sql      string
}

// prerequisites are checked inside the migration transaction. A failed
// check marks the migration applied without running it, which is how a
// schema that already has the change is handled.
var prerequisites = map[string]func(tx *gorm.DB) error{
	"20260412": func(tx *gorm.DB) error {
		if err := requireTable(tx, "playback_positions"); err != nil {
			return err
		}
		return requireNoColumn(tx, "playback_positions", "duration_known")
	},
}

// RunMigrations applies every embedded SQL migration not yet recorded in
// schema_migrations, in filename order.
func RunMigrations(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("failed to get migrations: %w", err)
	}

	applied, err := appliedMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.name] {
			continue
		}
		if err := applyMigration(db, m); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.filename, err)
		}
	}
	return nil
}

func loadMigrations() ([]migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		content, err := migrationsFS.ReadFile(path.Join("migrations", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", entry.Name(), err)
		}
		migrations = append(migrations, migration{
			filename: entry.Name(),
			name:     migrationName(entry.Name()),
			sql:      string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].name < migrations[j].name
	})
	return migrations, nil
}

// migrationName extracts the date prefix of YYYYMMDD_description.sql
func migrationName(filename string) string {
	matches := migrationNameRe.FindStringSubmatch(filename)
	if len(matches) < 2 {
		return filename
	}
	return matches[1]
}

func appliedMigrations(db *gorm.DB) (map[string]bool, error) {
	var names []string
	if err := db.Table("schema_migrations").Pluck("name", &names).Error; err != nil {
		return nil, err
	}
	applied := make(map[string]bool, len(names))
	for _, n := range names {
		applied[n] = true
	}
	return applied, nil
}

func applyMigration(db *gorm.DB, m migration) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	if check, ok := prerequisites[m.name]; ok {
		if err := check(tx); err != nil {
			tx.Rollback()
			if err := db.Exec("INSERT OR IGNORE INTO schema_migrations (name) VALUES (?)", m.name).Error; err != nil {
				return fmt.Errorf("failed to record skipped migration %s: %w", m.filename, err)
			}
			return nil
		}
	}

	if err := tx.Exec(m.sql).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Exec("INSERT INTO schema_migrations (name) VALUES (?)", m.name).Error; err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

func requireTable(db *gorm.DB, table string) error {
	var count int64
	if err := db.Raw("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("table %s does not exist yet", table)
	}
	return nil
}

func requireNoColumn(db *gorm.DB, table, column string) error {
	var count int64
	if err := db.Raw("SELECT COUNT(*) FROM pragma_table_info(?) WHERE name=?", table, column).Scan(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return errors.New(column + " column already exists")
	}
	return nil
}
