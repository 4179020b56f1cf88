package database

import (
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"sort"
	"strings"
)

// Migration is one versioned SQL file.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// MigrationManager applies versioned SQL files from a filesystem, usually
// MigrationsFS, and records them in schema_migrations.
type MigrationManager struct {
	db   *sql.DB
	fsys fs.FS
	dir  string
}

// NewMigrationManager creates a migration manager reading *.sql files in dir.
func NewMigrationManager(db *sql.DB, fsys fs.FS, dir string) *MigrationManager {
	return &MigrationManager{
		db:   db,
		fsys: fsys,
		dir:  dir,
	}
}

// NewEmbeddedMigrationManager uses the migrations compiled into the binary.
func NewEmbeddedMigrationManager(db *sql.DB) *MigrationManager {
	return NewMigrationManager(db, MigrationsFS, "migrations")
}

// ApplyMigrations applies all pending migrations in version order. Each
// migration runs in its own transaction.
func (m *MigrationManager) ApplyMigrations() ([]string, error) {
	if err := m.createMigrationTable(); err != nil {
		return nil, fmt.Errorf("failed to create migration table: %w", err)
	}

	migrations, err := m.loadMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	applied, err := m.getAppliedMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	var versions []string
	for _, migration := range migrations {
		if slices.Contains(applied, migration.Version) {
			continue
		}
		if err := m.applyMigration(migration); err != nil {
			return versions, fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
		versions = append(versions, migration.Version)
	}

	return versions, nil
}

// Pending returns the versions not yet recorded in schema_migrations.
func (m *MigrationManager) Pending() ([]string, error) {
	if err := m.createMigrationTable(); err != nil {
		return nil, fmt.Errorf("failed to create migration table: %w", err)
	}
	migrations, err := m.loadMigrations()
	if err != nil {
		return nil, err
	}
	applied, err := m.getAppliedMigrations()
	if err != nil {
		return nil, err
	}

	var pending []string
	for _, migration := range migrations {
		if !slices.Contains(applied, migration.Version) {
			pending = append(pending, migration.Version)
		}
	}
	return pending, nil
}

func (m *MigrationManager) createMigrationTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// loadMigrations reads files named like "001_initial_schema.sql".
func (m *MigrationManager) loadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(m.fsys, m.dir)
	if err != nil {
		return nil, err
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		content, err := fs.ReadFile(m.fsys, path.Join(m.dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		parts := strings.Split(entry.Name(), "_")
		migrations = append(migrations, Migration{
			Version:     parts[0],
			Description: strings.TrimSuffix(strings.Join(parts[1:], "_"), ".sql"),
			SQL:         string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

func (m *MigrationManager) getAppliedMigrations() ([]string, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var versions []string
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}

	return versions, rows.Err()
}

func (m *MigrationManager) applyMigration(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration.Version); err != nil {
		return err
	}

	return tx.Commit()
}
