package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
)

const createTableQuery = `
	CREATE SCHEMA IF NOT EXISTS commentsync;
	CREATE TABLE IF NOT EXISTS commentsync.checkpoints (
		key        TEXT PRIMARY KEY,
		document   BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
`

// PostgresStore keeps checkpoint documents in a PostgreSQL table.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// PostgresConfig holds configuration for the PostgreSQL checkpoint store.
type PostgresConfig struct {
	// DSN is the PostgreSQL connection string.
	DSN string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// ConnMaxLifetime is the maximum lifetime of a connection.
	ConnMaxLifetime time.Duration

	// CreateTable creates the checkpoint table if it does not exist.
	CreateTable bool
}

// NewPostgresStore opens the database and verifies the connection.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if cfg.CreateTable {
		if _, err := db.ExecContext(ctx, createTableQuery); err != nil {
			db.Close()
			return nil, fmt.Errorf("create checkpoint table: %w", err)
		}
	}

	return newPostgresStore(db, logger), nil
}

func newPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresStore{
		db:     db,
		logger: logger.With("component", "checkpoint-store", "backend", "postgres"),
	}
}

// Load retrieves the document stored under key.
func (s *PostgresStore) Load(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT document FROM commentsync.checkpoints WHERE key = $1`

	var doc []byte
	if err := s.db.QueryRowContext(ctx, query, key).Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load checkpoint %s: %w", key, err)
	}

	return doc, nil
}

// Save upserts the document stored under key.
func (s *PostgresStore) Save(ctx context.Context, key string, data []byte) error {
	query := `
		INSERT INTO commentsync.checkpoints (key, document, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key)
		DO UPDATE SET
			document = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query, key, data); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", key, err)
	}

	s.logger.Debug("checkpoint saved", "key", key, "size", len(data))
	return nil
}

// Ping verifies the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

var _ Store = (*PostgresStore)(nil)
