package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	embeddedmigrations "github.com/solatis/oasconform/migrations"
)

// ErrSchemaDrift is returned when the recorded migrations no longer match
// the embedded ones. Nothing is applied until the drift is resolved by hand.
var ErrSchemaDrift = errors.New("database schema has drifted from embedded migrations")

// MigrationState is where a migration stands against one database.
type MigrationState string

const (
	MigrationPending  MigrationState = "pending"
	MigrationApplied  MigrationState = "applied"
	MigrationModified MigrationState = "modified" // applied, but the embedded file changed since
	MigrationOrphaned MigrationState = "orphaned" // recorded, but no longer embedded
)

// MigrationStatus describes one migration version.
type MigrationStatus struct {
	Version   string
	Checksum  string
	State     MigrationState
	AppliedAt *time.Time
	Duration  time.Duration
}

// Pending returns the versions in statuses that still need applying.
func Pending(statuses []MigrationStatus) []string {
	var out []string
	for _, s := range statuses {
		if s.State == MigrationPending {
			out = append(out, s.Version)
		}
	}
	return out
}

const createTrackingTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version TEXT PRIMARY KEY,
    checksum TEXT NOT NULL,
    applied_at TEXT NOT NULL,
    duration_ms BIGINT NOT NULL
)`

type migrationFile struct {
	version  string
	checksum string
	sql      string
}

type appliedRow struct {
	Version    string `db:"version"`
	Checksum   string `db:"checksum"`
	AppliedAt  string `db:"applied_at"`
	DurationMs int64  `db:"duration_ms"`
}

// MigrateStatus compares the embedded migrations for the database's dialect
// with those recorded in it. Recorded versions that are no longer embedded
// are listed last.
func MigrateStatus(ctx context.Context, db *sqlx.DB) ([]MigrationStatus, error) {
	files, err := embeddedFiles(db.DriverName())
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, createTrackingTable); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var rows []appliedRow
	if err := db.SelectContext(ctx, &rows,
		"SELECT version, checksum, applied_at, duration_ms FROM schema_migrations ORDER BY version"); err != nil {
		return nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	recorded := make(map[string]appliedRow, len(rows))
	for _, r := range rows {
		recorded[r.Version] = r
	}

	statuses := make([]MigrationStatus, 0, len(files)+len(rows))
	for _, f := range files {
		s := MigrationStatus{Version: f.version, Checksum: f.checksum, State: MigrationPending}
		if r, ok := recorded[f.version]; ok {
			s.State = MigrationApplied
			if r.Checksum != f.checksum {
				s.State = MigrationModified
			}
			s.AppliedAt = parseAppliedAt(r.AppliedAt)
			s.Duration = time.Duration(r.DurationMs) * time.Millisecond
			delete(recorded, f.version)
		}
		statuses = append(statuses, s)
	}
	for _, r := range rows {
		if _, orphan := recorded[r.Version]; !orphan {
			continue
		}
		statuses = append(statuses, MigrationStatus{
			Version:   r.Version,
			Checksum:  r.Checksum,
			State:     MigrationOrphaned,
			AppliedAt: parseAppliedAt(r.AppliedAt),
			Duration:  time.Duration(r.DurationMs) * time.Millisecond,
		})
	}
	return statuses, nil
}

// MigrateUp applies pending migrations in version order, each in its own
// transaction, and returns how many were applied. It refuses to run when
// any recorded migration is modified or orphaned.
func MigrateUp(ctx context.Context, db *sqlx.DB) (int, error) {
	statuses, err := MigrateStatus(ctx, db)
	if err != nil {
		return 0, err
	}
	var drifted []string
	for _, s := range statuses {
		if s.State == MigrationModified || s.State == MigrationOrphaned {
			drifted = append(drifted, fmt.Sprintf("%s (%s)", s.Version, s.State))
		}
	}
	if len(drifted) > 0 {
		return 0, fmt.Errorf("%w: %s", ErrSchemaDrift, strings.Join(drifted, ", "))
	}

	files, err := embeddedFiles(db.DriverName())
	if err != nil {
		return 0, err
	}
	pending := make(map[string]bool)
	for _, v := range Pending(statuses) {
		pending[v] = true
	}

	applied := 0
	for _, f := range files {
		if !pending[f.version] {
			continue
		}
		if err := apply(ctx, db, f); err != nil {
			return applied, fmt.Errorf("migration %s: %w", f.version, err)
		}
		applied++
	}
	return applied, nil
}

func apply(ctx context.Context, db *sqlx.DB, f migrationFile) error {
	start := time.Now()
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// lib/pq rejects multi-statement Exec
	for _, stmt := range splitStatements(f.sql) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement failed: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		tx.Rebind("INSERT INTO schema_migrations (version, checksum, applied_at, duration_ms) VALUES (?, ?, ?, ?)"),
		f.version, f.checksum, time.Now().UTC().Format(time.RFC3339), time.Since(start).Milliseconds(),
	); err != nil {
		return fmt.Errorf("failed to record: %w", err)
	}
	return tx.Commit()
}

// embeddedFiles lists the dialect's migrations in version order. The version
// is the file name without its .sql suffix.
func embeddedFiles(driver string) ([]migrationFile, error) {
	var fsys fs.FS
	var dir string
	switch driver {
	case "sqlite3":
		fsys, dir = embeddedmigrations.SqliteMigrations, "sqlite"
	case "postgres":
		fsys, dir = embeddedmigrations.PostgresMigrations, "postgres"
	default:
		return nil, fmt.Errorf("no migrations for database driver %q", driver)
	}

	names, err := fs.Glob(fsys, dir+"/*.sql")
	if err != nil {
		return nil, err
	}
	files := make([]migrationFile, 0, len(names))
	for _, name := range names {
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		sum := sha256.Sum256(content)
		files = append(files, migrationFile{
			version:  strings.TrimSuffix(path.Base(name), ".sql"),
			checksum: hex.EncodeToString(sum[:]),
			sql:      string(content),
		})
	}
	return files, nil
}

// splitStatements drops full-line "--" comments and splits on ";".
func splitStatements(sql string) []string {
	var kept []string
	for _, line := range strings.Split(sql, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}
	var out []string
	for _, stmt := range strings.Split(strings.Join(kept, "\n"), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func parseAppliedAt(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
