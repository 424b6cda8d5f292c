// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "datasheet_results"

// ResultArchiveConfig controls the Postgres connection pool used for the archive.
type ResultArchiveConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ResultArchive appends terminal request records to a Postgres table. It is
// write-only; status reads always go to the in-memory ledger.
type ResultArchive struct {
	pool  execCloser
	table string
}

// NewResultArchive creates a Postgres-backed ResultArchive using the provided config.
func NewResultArchive(ctx context.Context, cfg ResultArchiveConfig) (*ResultArchive, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ResultArchive{pool: pool, table: table}, nil
}

// NewResultArchiveWithPool constructs an archive from an existing pool (primarily for testing).
func NewResultArchiveWithPool(pool execCloser, table string) (*ResultArchive, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ResultArchive{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (a *ResultArchive) Close() {
	if a == nil || a.pool == nil {
		return
	}
	a.pool.Close()
}

// Archive inserts one terminal record. Re-archiving the same id is a no-op.
func (a *ResultArchive) Archive(ctx context.Context, record datasheet.RequestRecord) error {
	if a == nil || a.pool == nil {
		return fmt.Errorf("result archive is not configured")
	}
	if record.InternalID == "" {
		return fmt.Errorf("record internal id is required")
	}
	if !record.Status.Terminal() {
		return fmt.Errorf("archive %s: status %q is not terminal", record.InternalID, record.Status)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	internal_id,
	external_id,
	origin,
	url,
	site,
	status,
	payload,
	created_at,
	finished_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
) ON CONFLICT (internal_id) DO NOTHING`, a.table)

	args := []any{
		record.InternalID,
		nullable(record.ExternalID),
		string(record.Origin),
		record.SourceURL,
		nullable(record.Site),
		string(record.Status),
		[]byte(record.Result),
		record.CreatedAt,
		record.FinishedAt,
	}
	if _, err := a.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
