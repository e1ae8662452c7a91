// Package sqlitemigrate applies embedded SQL migrations to a SQLite database.
package sqlitemigrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

const migrationTable = "schema_migrations"

// ApplyMigrations executes embedded *.sql migrations at most once per file.
// Files run in lexical order; each file's "-- +migrate Up" section runs in
// its own transaction and is recorded by file name.
func ApplyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	if sqlDB == nil {
		return fmt.Errorf("sql db is required")
	}

	names, err := fs.Glob(migrationFS, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	if _, err := sqlDB.Exec(fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
);
`, migrationTable)); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, name := range names {
		applied, err := isApplied(sqlDB, name)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied {
			continue
		}

		content, err := fs.ReadFile(migrationFS, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		upSQL := ExtractUpMigration(string(content))
		if strings.TrimSpace(upSQL) == "" {
			continue
		}

		tx, err := sqlDB.BeginTx(context.Background(), nil)
		if err != nil {
			return fmt.Errorf("begin migration transaction %s: %w", name, err)
		}
		if _, err := tx.Exec(upSQL); err != nil {
			if !IsAlreadyExistsError(err) {
				_ = tx.Rollback()
				return fmt.Errorf("exec migration %s: %w", name, err)
			}
		}
		if _, err := tx.Exec(
			fmt.Sprintf("INSERT OR IGNORE INTO %s (name, applied_at) VALUES (?, ?)", migrationTable),
			name,
			time.Now().UTC().UnixMilli(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}

	return nil
}

// ExtractUpMigration returns the SQL in the -- +migrate Up section.
func ExtractUpMigration(content string) string {
	upIdx := strings.Index(content, "-- +migrate Up")
	if upIdx == -1 {
		return content
	}
	downIdx := strings.Index(content, "-- +migrate Down")
	if downIdx == -1 {
		return content[upIdx+len("-- +migrate Up"):]
	}
	return content[upIdx+len("-- +migrate Up") : downIdx]
}

// IsAlreadyExistsError reports whether this error indicates idempotent DDL success.
func IsAlreadyExistsError(err error) bool {
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "already exists") || strings.Contains(value, "duplicate column name")
}

func isApplied(sqlDB *sql.DB, name string) (bool, error) {
	var found int
	row := sqlDB.QueryRow("SELECT 1 FROM "+migrationTable+" WHERE name = ?", name)
	err := row.Scan(&found)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
