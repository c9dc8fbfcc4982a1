package db

import (
	"context"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations returns the SQL migrations shipped with the binary.
func Migrations() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// ErrMigrationModified is returned by Up when an applied migration file no
// longer matches the checksum recorded when it ran.
var ErrMigrationModified = errors.New("applied migration was modified")

// Migration is one versioned SQL file.
type Migration struct {
	Version  int
	Name     string
	SQL      string
	Checksum string
}

// MigrationStatus describes a known migration against one schema.
type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt *time.Time
	// Modified is set when the file changed after it was applied.
	Modified bool
}

type appliedMigration struct {
	at       time.Time
	checksum string
}

// Migrator applies the form store's SQL files to a PostgreSQL schema and
// records each one in <schema>._migrations.
type Migrator struct {
	pool *pgxpool.Pool
	fsys fs.FS
	log  zerolog.Logger
}

// NewMigrator reads *.sql files from the root of fsys.
func NewMigrator(pool *pgxpool.Pool, fsys fs.FS, logger zerolog.Logger) *Migrator {
	return &Migrator{pool: pool, fsys: fsys, log: logger}
}

// EnsureMigrationsTable creates <schema>._migrations when missing.
func (m *Migrator) EnsureMigrationsTable(ctx context.Context, schema string) error {
	if err := ValidateSchema(schema); err != nil {
		return err
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s._migrations (
    version    INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    checksum   TEXT NOT NULL DEFAULT '',
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, schema)
	if _, err := m.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create %s._migrations: %w", schema, err)
	}
	return nil
}

// migrationVersion parses the numeric prefix of "001_form_record.sql".
func migrationVersion(name string) (int, bool) {
	if !strings.HasSuffix(name, ".sql") {
		return 0, false
	}
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, false
	}
	return v, true
}

func checksum(sql string) string {
	d := xxhash.New()
	d.WriteString(sql)
	return hex.EncodeToString(d.Sum(nil))
}

// LoadMigrations returns the versioned files of the migration FS in version
// order. Files without a numeric prefix and subdirectories are ignored.
func (m *Migrator) LoadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(m.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var out []Migration
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		version, ok := migrationVersion(e.Name())
		if !ok {
			continue
		}
		data, err := fs.ReadFile(m.fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		sql := string(data)
		out = append(out, Migration{
			Version:  version,
			Name:     e.Name(),
			SQL:      sql,
			Checksum: checksum(sql),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (m *Migrator) applied(ctx context.Context, schema string) (map[int]appliedMigration, error) {
	rows, err := m.pool.Query(ctx, fmt.Sprintf(`SELECT version, checksum, applied_at FROM %s._migrations`, schema))
	if err != nil {
		return nil, fmt.Errorf("query %s._migrations: %w", schema, err)
	}
	defer rows.Close()

	out := make(map[int]appliedMigration)
	for rows.Next() {
		var v int
		var a appliedMigration
		if err := rows.Scan(&v, &a.checksum, &a.at); err != nil {
			return nil, fmt.Errorf("scan %s._migrations: %w", schema, err)
		}
		out[v] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s._migrations: %w", schema, err)
	}
	return out, nil
}

// plan pairs every known migration with its applied state.
func plan(migrations []Migration, applied map[int]appliedMigration) []MigrationStatus {
	statuses := make([]MigrationStatus, 0, len(migrations))
	for _, mig := range migrations {
		s := MigrationStatus{Version: mig.Version, Name: mig.Name}
		if a, ok := applied[mig.Version]; ok {
			at := a.at
			s.Applied = true
			s.AppliedAt = &at
			// Rows recorded without a checksum are trusted.
			s.Modified = a.checksum != "" && a.checksum != mig.Checksum
		}
		statuses = append(statuses, s)
	}
	return statuses
}

func (m *Migrator) load(ctx context.Context, schema string) ([]Migration, []MigrationStatus, error) {
	if err := m.EnsureMigrationsTable(ctx, schema); err != nil {
		return nil, nil, err
	}
	migrations, err := m.LoadMigrations()
	if err != nil {
		return nil, nil, err
	}
	applied, err := m.applied(ctx, schema)
	if err != nil {
		return nil, nil, err
	}
	return migrations, plan(migrations, applied), nil
}

// Up applies pending migrations in version order, one transaction each, and
// returns how many ran. Nothing runs when an applied file was modified.
func (m *Migrator) Up(ctx context.Context, schema string) (int, error) {
	migrations, statuses, err := m.load(ctx, schema)
	if err != nil {
		return 0, err
	}

	for _, s := range statuses {
		if s.Modified {
			return 0, fmt.Errorf("%w: %s in schema %s", ErrMigrationModified, s.Name, schema)
		}
	}

	count := 0
	for i, mig := range migrations {
		if statuses[i].Applied {
			continue
		}
		if err := m.apply(ctx, schema, mig); err != nil {
			return count, fmt.Errorf("apply migration %d (%s): %w", mig.Version, mig.Name, err)
		}
		m.log.Info().Str("schema", schema).Int("version", mig.Version).Str("name", mig.Name).Msg("migration applied")
		count++
	}
	return count, nil
}

func (m *Migrator) apply(ctx context.Context, schema string, mig Migration) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL search_path TO %s, public", schema)); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}
	if _, err := tx.Exec(ctx, mig.SQL); err != nil {
		return fmt.Errorf("execute SQL: %w", err)
	}
	if _, err := tx.Exec(ctx,
		fmt.Sprintf("INSERT INTO %s._migrations (version, name, checksum) VALUES ($1, $2, $3)", schema),
		mig.Version, mig.Name, mig.Checksum,
	); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit(ctx)
}

// Status reports every known migration for schema, applied or pending.
func (m *Migrator) Status(ctx context.Context, schema string) ([]MigrationStatus, error) {
	_, statuses, err := m.load(ctx, schema)
	return statuses, err
}
