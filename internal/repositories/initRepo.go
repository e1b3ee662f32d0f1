package repositories

import (
	"GuestReportBot/internal/config"
	"GuestReportBot/internal/migrator"
	"GuestReportBot/internal/utils/logger/sl"
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Repository provides access to the database.
type Repository struct {
	DB     *sqlx.DB
	log    *slog.Logger
	schema string
}

// New creates a new repository, connects to the database, and runs migrations.
func New(logger *slog.Logger, cfg *config.Config) (*Repository, error) {
	op := "repositories.New()"
	log := logger.With(
		slog.String("op", op))

	schema := cfg.DBConfig.Schema

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s sslmode=disable password=%s search_path=%s",
		cfg.DBConfig.Host, cfg.DBConfig.Port, cfg.DBConfig.User,
		cfg.DBConfig.Name, cfg.DBConfig.Password, schema)

	conn, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		log.Error("error connecting to database", sl.Err(err))
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	log.Debug("sqlx connected to database")

	m := migrator.NewMigrator(conn, log, schema)
	if err := m.Run(); err != nil {
		log.Error("error running database migrations", sl.Err(err))
		conn.Close()
		return nil, fmt.Errorf("%s: migrate: %w", op, err)
	}

	return &Repository{
		DB:     conn,
		log:    log,
		schema: schema,
	}, nil
}

// Shutdown closes the database connection.
func (r *Repository) Shutdown(ctx context.Context) error {
	op := "Repository.Shutdown"
	select {
	case <-ctx.Done():
		return fmt.Errorf("force exit %s: %w", op, ctx.Err())
	default:
	}
	if err := r.DB.Close(); err != nil {
		return fmt.Errorf("error exit %s: %w", op, err)
	}
	return nil
}
