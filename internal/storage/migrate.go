package storage

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// MigrationStatus represents the status of migrations.
type MigrationStatus struct {
	UpToDate bool
	Applied  []string
	Pending  []string
	Total    int
}

// CheckMigrations reports which embedded migrations have not been applied yet.
func (s *Store) CheckMigrations(ctx context.Context) (*MigrationStatus, error) {
	if err := s.ensureSchemaMigrationsTable(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	migrations, err := listMigrations(s.driver)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read applied versions: %w", err)
	}

	status := &MigrationStatus{Total: len(migrations)}
	for _, m := range migrations {
		if applied[versionOf(m)] {
			status.Applied = append(status.Applied, m)
		} else {
			status.Pending = append(status.Pending, m)
		}
	}
	status.UpToDate = len(status.Pending) == 0
	return status, nil
}

// Migrate applies every pending migration in order and returns the names applied.
func (s *Store) Migrate(ctx context.Context) ([]string, error) {
	status, err := s.CheckMigrations(ctx)
	if err != nil {
		return nil, err
	}

	for _, name := range status.Pending {
		data, err := fs.ReadFile(migrationFS, "migrations/"+name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}

		err = s.InTx(ctx, func(tx DB) error {
			if _, err := tx.ExecContext(ctx, string(data)); err != nil {
				return fmt.Errorf("execute: %w", err)
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, versionOf(name))
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("run migration %s: %w", name, err)
		}
	}

	return status.Pending, nil
}

func (s *Store) ensureSchemaMigrationsTable(ctx context.Context) error {
	var query string
	switch s.driver {
	case DriverSQLite:
		query = `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version TEXT PRIMARY KEY,
				applied_at TEXT NOT NULL DEFAULT (datetime('now'))
			)
		`
	default:
		query = `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version TEXT PRIMARY KEY,
				applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)
		`
	}
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *Store) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// listMigrations picks one file per version: the _sqlite.sql variant for sqlite
// when present, the plain .sql file otherwise.
func listMigrations(driver string) ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, err
	}

	sqliteFiles := make(map[string]string)
	plainFiles := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		if strings.HasSuffix(name, "_sqlite.sql") {
			sqliteFiles[strings.TrimSuffix(name, "_sqlite.sql")] = name
		} else {
			plainFiles[strings.TrimSuffix(name, ".sql")] = name
		}
	}

	var out []string
	for base, plain := range plainFiles {
		if driver == DriverSQLite {
			if lite, ok := sqliteFiles[base]; ok {
				out = append(out, lite)
				continue
			}
		}
		out = append(out, plain)
	}
	if driver == DriverSQLite {
		for base, lite := range sqliteFiles {
			if _, ok := plainFiles[base]; !ok {
				out = append(out, lite)
			}
		}
	}

	sort.Strings(out)
	return out, nil
}

func versionOf(name string) string {
	name = strings.TrimSuffix(name, ".sql")
	return strings.TrimSuffix(name, "_sqlite")
}
