package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"stagequeue/internal/logging"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is kept in PRAGMA user_version. Bump it with schema.sql.
const schemaVersion = 1

// ErrSchemaMismatch reports a database written for another schema that still
// holds requests.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// migrate brings the database to schemaVersion. A file from another version
// is rebuilt only while it holds no requests, which is where every event ends
// after a reset.
func (s *SQLite) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	switch version {
	case schemaVersion:
		return nil
	case 0:
		return s.applySchema(ctx, false)
	}

	held, err := s.requestRows(ctx)
	if err != nil {
		return err
	}
	if held > 0 {
		return fmt.Errorf("%w: %s is version %d with %d requests, expected version %d (reset the event with the release that wrote it, or remove the file)",
			ErrSchemaMismatch, s.path, version, held, schemaVersion)
	}
	s.logger.Info("rebuilding empty request database",
		logging.String("path", s.path),
		logging.Int("from_version", version),
		logging.Int("to_version", schemaVersion))
	return s.applySchema(ctx, true)
}

// requestRows counts requests in whatever requests table the file has.
func (s *SQLite) requestRows(ctx context.Context) (int, error) {
	var tables int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = 'requests'",
	).Scan(&tables); err != nil {
		return 0, fmt.Errorf("inspect schema: %w", err)
	}
	if tables == 0 {
		return 0, nil
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM requests").Scan(&n); err != nil {
		return 0, fmt.Errorf("count requests: %w", err)
	}
	return n, nil
}

func (s *SQLite) applySchema(ctx context.Context, rebuild bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if rebuild {
		for _, table := range []string{"requests", "settings"} {
			if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
				return fmt.Errorf("drop %s: %w", table, err)
			}
		}
	}
	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}
