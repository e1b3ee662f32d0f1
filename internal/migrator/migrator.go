package migrator

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// lockKey serializes migrations across bot instances sharing a database.
const lockKey = 7_204_311

// Migrator manages database migrations.
type Migrator struct {
	db     *sqlx.DB
	log    *slog.Logger
	schema string
	files  fs.FS
}

// NewMigrator creates a new migrator instance.
func NewMigrator(db *sqlx.DB, log *slog.Logger, schema string) *Migrator {
	return &Migrator{
		db:     db,
		log:    log,
		schema: schema,
		files:  migrationsFS,
	}
}

// Run executes all pending migrations.
func (m *Migrator) Run() error {
	return m.RunContext(context.Background())
}

// RunContext executes all pending migrations, each in its own transaction.
func (m *Migrator) RunContext(ctx context.Context) error {
	op := "migrator.Run"
	m.log.Info("starting database migrations", slog.String("schema", m.schema))

	if err := m.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("%s: failed to create migrations table: %w", op, err)
	}

	migrations, err := Versions(m.files)
	if err != nil {
		return fmt.Errorf("%s: failed to get migration files: %w", op, err)
	}

	for _, migration := range migrations {
		if err := m.runMigration(ctx, migration); err != nil {
			return fmt.Errorf("%s: failed to run migration %s: %w", op, migration, err)
		}
	}

	m.log.Info("database migrations completed successfully",
		slog.Int("known", len(migrations)))
	return nil
}

func (m *Migrator) createMigrationsTable(ctx context.Context) error {
	schemaQuery := fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, m.schema)
	if _, err := m.db.ExecContext(ctx, schemaQuery); err != nil {
		return err
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`, m.schema)
	_, err := m.db.ExecContext(ctx, query)
	return err
}

// Versions lists migration file names found in files, sorted.
func Versions(files fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(files, "migrations")
	if err != nil {
		return nil, err
	}

	var migrations []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			migrations = append(migrations, entry.Name())
		}
	}

	sort.Strings(migrations)
	return migrations, nil
}

func (m *Migrator) runMigration(ctx context.Context, filename string) error {
	version := strings.TrimSuffix(filename, ".sql")

	content, err := fs.ReadFile(m.files, "migrations/"+filename)
	if err != nil {
		return fmt.Errorf("failed to read migration file: %w", err)
	}

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey); err != nil {
		return fmt.Errorf("failed to take migration lock: %w", err)
	}

	var applied int
	checkQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s.schema_migrations WHERE version = $1`, m.schema)
	if err := tx.GetContext(ctx, &applied, checkQuery, version); err != nil {
		return fmt.Errorf("failed to check migration: %w", err)
	}
	if applied > 0 {
		m.log.Debug("migration already applied", slog.String("version", version))
		return nil
	}

	m.log.Info("applying migration", slog.String("version", version))

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL search_path TO %s, public", m.schema)); err != nil {
		return fmt.Errorf("failed to set search_path: %w", err)
	}

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("failed to execute migration: %w", err)
	}

	insertQuery := fmt.Sprintf(
		`INSERT INTO %s.schema_migrations (version) VALUES ($1)`, m.schema)
	if _, err := tx.ExecContext(ctx, insertQuery, version); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	m.log.Info("migration applied successfully", slog.String("version", version))
	return nil
}

// GetAppliedMigrations returns the list of applied migrations.
func (m *Migrator) GetAppliedMigrations(ctx context.Context) ([]string, error) {
	var versions []string
	query := fmt.Sprintf(
		`SELECT version FROM %s.schema_migrations ORDER BY applied_at DESC`, m.schema)
	err := m.db.SelectContext(ctx, &versions, query)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return versions, nil
}
