package postgres

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/silvergrove/coach"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const createMigrationsTableSQL = `
CREATE TABLE IF NOT EXISTS coach_migrations (
	id         SERIAL PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	checksum   TEXT NOT NULL
);`

type migrationFile struct {
	Name     string
	Up       string
	Down     string
	Checksum string
}

type migrationRecord struct {
	ID        int
	Name      string
	AppliedAt time.Time
	Checksum  string
}

// loadMigrations reads migration files from the embedded filesystem, parses
// them, and sorts by name.
func loadMigrations() ([]migrationFile, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	upFiles := make(map[string]string)
	downFiles := make(map[string]string)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}

		if strings.HasSuffix(name, ".up.sql") {
			upFiles[strings.TrimSuffix(name, ".up.sql")] = string(data)
		} else if strings.HasSuffix(name, ".down.sql") {
			downFiles[strings.TrimSuffix(name, ".down.sql")] = string(data)
		}
	}

	var migrations []migrationFile
	for key, up := range upFiles {
		migrations = append(migrations, migrationFile{
			Name:     key,
			Up:       up,
			Down:     downFiles[key],
			Checksum: fmt.Sprintf("%x", sha256.Sum256([]byte(up))),
		})
	}

	// Sort by name to ensure deterministic order.
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Name < migrations[j].Name
	})

	return migrations, nil
}

// ensureMigrationsTable creates the coach_migrations table if it doesn't exist.
func (s *PGStore) ensureMigrationsTable(ctx context.Context) error {
	_, err := s.db.Exec(ctx, createMigrationsTableSQL)
	return err
}

// appliedMigrations queries all applied migrations from the database.
func (s *PGStore) appliedMigrations(ctx context.Context) (map[string]migrationRecord, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, applied_at, checksum FROM coach_migrations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]migrationRecord)
	for rows.Next() {
		var rec migrationRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.AppliedAt, &rec.Checksum); err != nil {
			return nil, err
		}
		applied[rec.Name] = rec
	}

	return applied, rows.Err()
}

// Migrate applies all pending migrations in order, each in its own
// transaction. Already-applied migrations are checksum-verified.
func (s *PGStore) Migrate(ctx context.Context) error {
	if err := s.ensureMigrationsTable(ctx); err != nil {
		return fmt.Errorf("coach: ensure migrations table: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("coach: load migrations: %w", err)
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("coach: get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if rec, ok := applied[m.Name]; ok {
			if rec.Checksum != m.Checksum {
				return fmt.Errorf("coach: migration %s checksum mismatch (expected %s, got %s)", m.Name, rec.Checksum, m.Checksum)
			}
			continue
		}

		tx, err := s.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("coach: begin migration %s: %w", m.Name, err)
		}

		if _, err := tx.Exec(ctx, m.Up); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("coach: run migration %s: %w", m.Name, err)
		}

		if _, err := tx.Exec(ctx, `INSERT INTO coach_migrations (name, checksum) VALUES ($1, $2)`, m.Name, m.Checksum); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("coach: record migration %s: %w", m.Name, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("coach: commit migration %s: %w", m.Name, err)
		}

		s.logger.Debug("applied migration", "name", m.Name)
	}

	return nil
}

// Rollback rolls back the last applied migration.
func (s *PGStore) Rollback(ctx context.Context) error {
	if err := s.ensureMigrationsTable(ctx); err != nil {
		return fmt.Errorf("coach: ensure migrations table: %w", err)
	}

	var last migrationRecord
	err := s.db.QueryRow(ctx, `SELECT id, name FROM coach_migrations ORDER BY id DESC LIMIT 1`).
		Scan(&last.ID, &last.Name)
	if err != nil {
		return fmt.Errorf("coach: get last migration: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("coach: load migrations: %w", err)
	}

	var downSQL string
	for _, m := range migrations {
		if m.Name == last.Name {
			downSQL = m.Down
			break
		}
	}
	if downSQL == "" {
		return fmt.Errorf("coach: no down migration for %s", last.Name)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("coach: begin rollback %s: %w", last.Name, err)
	}

	if _, err := tx.Exec(ctx, downSQL); err != nil {
		tx.Rollback(ctx)
		return fmt.Errorf("coach: run rollback %s: %w", last.Name, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM coach_migrations WHERE id = $1`, last.ID); err != nil {
		tx.Rollback(ctx)
		return fmt.Errorf("coach: remove migration record %s: %w", last.Name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("coach: commit rollback %s: %w", last.Name, err)
	}

	return nil
}

// MigrationStatus returns all migrations with their applied status.
func (s *PGStore) MigrationStatus(ctx context.Context) ([]coach.MigrationRecord, error) {
	if err := s.ensureMigrationsTable(ctx); err != nil {
		return nil, fmt.Errorf("coach: ensure migrations table: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return nil, fmt.Errorf("coach: load migrations: %w", err)
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("coach: get applied migrations: %w", err)
	}

	var records []coach.MigrationRecord
	for _, m := range migrations {
		rec := coach.MigrationRecord{Name: m.Name}
		if appliedRec, ok := applied[m.Name]; ok {
			rec.Applied = true
			t := appliedRec.AppliedAt
			rec.AppliedAt = &t
			rec.Checksum = appliedRec.Checksum
		}
		records = append(records, rec)
	}

	return records, nil
}
