package main

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

func migrate(db *sql.DB) error {
	if err := ensureMigrationsTable(db); err != nil {
		return err
	}
	files, err := listMigrationFiles()
	if err != nil {
		return err
	}
	latest := 0
	for _, file := range files {
		version, err := migrationVersion(file)
		if err != nil {
			return err
		}
		if version > latest {
			latest = version
		}
	}
	current, err := currentMigrationVersion(db)
	if err != nil {
		return err
	}
	if current > latest {
		return fmt.Errorf("database schema is newer (%d) than this binary supports (%d)", current, latest)
	}
	for _, file := range files {
		version, err := migrationVersion(file)
		if err != nil {
			return err
		}
		if version <= current {
			continue
		}
		body, err := migFS.ReadFile(file)
		if err != nil {
			return err
		}
		if err := execMigrationSQL(db, string(body)); err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		if err := markMigration(db, version); err != nil {
			return err
		}
	}
	return nil
}

func currentMigrationVersion(db *sql.DB) (int, error) {
	var value sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&value); err != nil {
		return 0, err
	}
	if !value.Valid {
		return 0, nil
	}
	return int(value.Int64), nil
}

func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`)
	return err
}

func listMigrationFiles() ([]string, error) {
	entries, err := migFS.ReadDir("migrations")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		files = append(files, "migrations/"+entry.Name())
	}
	sort.Strings(files)
	return files, nil
}

func migrationVersion(path string) (int, error) {
	base := strings.TrimSuffix(filepath.Base(path), ".sql")
	digits := base
	if i := strings.IndexFunc(base, func(r rune) bool { return r < '0' || r > '9' }); i >= 0 {
		digits = base[:i]
	}
	version, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("invalid migration name: %s", path)
	}
	return version, nil
}

func markMigration(db *sql.DB, version int) error {
	_, err := db.Exec(`INSERT INTO schema_migrations(version, applied_at) VALUES(?, ?)`,
		version, time.Now().UTC().Format(time.RFC3339))
	return err
}

func execMigrationSQL(db *sql.DB, body string) error {
	for _, part := range strings.Split(body, ";") {
		stmt := strings.TrimSpace(part)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
