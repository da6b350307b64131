package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
)

//go:embed schema_sqlite.sql
var schemaSQLite string

//go:embed schema_postgres.sql
var schemaPostgres string

// schemaVersion is the current schema version. Bump this when the table
// layout changes; deployments recreate the pipeline table to adopt it.
const schemaVersion = 1

// ErrSchemaMismatch indicates the pipeline table was created by an
// incompatible version of this package.
var ErrSchemaMismatch = errors.New("schema version mismatch")

func (s *Store) schemaSQL() string {
	src := schemaSQLite
	if s.driver == DriverPostgres {
		src = schemaPostgres
	}
	// The embedded schema names the default table; deployments may point
	// several pipelines at one database under different table names.
	return strings.ReplaceAll(src, "pipeline_jobs", s.table)
}

func (s *Store) initSchema(ctx context.Context) error {
	versionTable := s.table + "_schema_version"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.schemaSQL()); err != nil {
		return fmt.Errorf("create pipeline table: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (version INTEGER NOT NULL)", versionTable),
	); err != nil {
		return fmt.Errorf("ensure schema version table: %w", err)
	}

	var version int
	row := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT version FROM %s LIMIT 1", versionTable))
	switch err := row.Scan(&version); {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx,
			s.driver.rebind(fmt.Sprintf("INSERT INTO %s (version) VALUES (?)", versionTable)),
			schemaVersion,
		); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version != schemaVersion:
		return fmt.Errorf("%w: table %s has version %d, expected %d",
			ErrSchemaMismatch, s.table, version, schemaVersion)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}
