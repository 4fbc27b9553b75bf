package db

import (
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/jmoiron/sqlx"
	embeddedmigrations "github.com/ruledesk/ruledesk/migrations"
)

type migration struct {
	id       string
	checksum string
	sql      string
}

// MigrateUp runs all pending migrations against the database.
// Detects driver type, selects the matching embedded migration set,
// validates checksums of applied migrations, and applies pending ones in
// lexical order, each in its own transaction.
func MigrateUp(db *sqlx.DB) error {
	var migrationsFS embed.FS
	var dir string

	switch db.DriverName() {
	case "sqlite3":
		migrationsFS = embeddedmigrations.SqliteMigrations
		dir = "sqlite"
	case "postgres":
		migrationsFS = embeddedmigrations.PostgresMigrations
		dir = "postgres"
	default:
		return fmt.Errorf("unsupported database driver: %s", db.DriverName())
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS migrations (
		migration_id TEXT PRIMARY KEY,
		checksum TEXT NOT NULL,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations, err := parseMigrationFiles(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("failed to parse migrations: %w", err)
	}

	applied := map[string]string{}
	rows := []struct {
		MigrationID string `db:"migration_id"`
		Checksum    string `db:"checksum"`
	}{}
	if err := db.Select(&rows, `SELECT migration_id, checksum FROM migrations`); err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}
	for _, r := range rows {
		applied[r.MigrationID] = r.Checksum
	}

	for _, m := range migrations {
		if sum, ok := applied[m.id]; ok {
			// Checksum mismatch means an applied file was edited after the
			// fact; refuse to continue on a diverged schema history.
			if sum != m.checksum {
				return fmt.Errorf("migration %s checksum mismatch (applied %s, embedded %s)", m.id, sum, m.checksum)
			}
			continue
		}

		tx, err := db.Beginx()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for %s: %w", m.id, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %s failed: %w", m.id, err)
		}
		if _, err := tx.Exec(db.Rebind(`INSERT INTO migrations (migration_id, checksum) VALUES (?, ?)`), m.id, m.checksum); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", m.id, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.id, err)
		}
	}

	return nil
}

func parseMigrationFiles(migrationsFS embed.FS, dir string) ([]migration, error) {
	var migrations []migration

	err := fs.WalkDir(migrationsFS, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".sql" {
			return nil
		}
		content, err := migrationsFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		migrations = append(migrations, migration{
			id:       filepath.Base(path),
			checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
			sql:      string(content),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].id < migrations[j].id })
	return migrations, nil
}
