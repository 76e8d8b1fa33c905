// Package sqlite provides the SQLite-backed module load ledger.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/plughost/internal/platform/id"
	sqlitemigrate "github.com/louisbranch/plughost/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/plughost/internal/services/host/storage"
	"github.com/louisbranch/plughost/internal/services/host/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

const defaultListLimit = 50

// Store provides SQLite-backed persistence for module load records.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.ModuleLoadStore = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the ledger at path and applies pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(ctx, sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// RecordModuleLoad appends one load attempt. Missing ids and timestamps are
// filled in.
func (s *Store) RecordModuleLoad(ctx context.Context, record storage.ModuleLoad) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	record.Module = strings.TrimSpace(record.Module)
	if record.Module == "" {
		return fmt.Errorf("module is required")
	}
	switch record.Outcome {
	case storage.LoadOutcomeLoaded, storage.LoadOutcomeFailed:
	default:
		return fmt.Errorf("unknown load outcome %q", record.Outcome)
	}
	if record.ID == "" {
		generated, err := id.NewID()
		if err != nil {
			return fmt.Errorf("generate record id: %w", err)
		}
		record.ID = generated
	}
	if record.LoadedAt.IsZero() {
		record.LoadedAt = time.Now()
	}

	_, err := s.sqlDB.ExecContext(ctx, `INSERT INTO module_loads
    (id, module, outcome, error, components, duration_ms, trace_id, span_id, loaded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.Module,
		string(record.Outcome),
		record.Error,
		record.Components,
		record.Duration.Milliseconds(),
		record.TraceID,
		record.SpanID,
		toMillis(record.LoadedAt),
	)
	if err != nil {
		return fmt.Errorf("insert module load: %w", err)
	}
	return nil
}

// ListModuleLoads returns the most recent attempts, newest first. An empty
// module lists every module.
func (s *Store) ListModuleLoads(ctx context.Context, module string, limit int) ([]storage.ModuleLoad, error) {
	return s.queryModuleLoads(ctx, condition{
		clause: "(? = '' OR module = ?)",
		params: []any{module, module},
	}, limit)
}

// QueryModuleLoads returns the most recent attempts matching an AIP-160
// filter such as `outcome = "failed" AND loaded_at > timestamp("2026-01-02T15:04:05Z")`.
func (s *Store) QueryModuleLoads(ctx context.Context, filter string, limit int) ([]storage.ModuleLoad, error) {
	cond, err := parseFilter(filter)
	if err != nil {
		return nil, err
	}
	return s.queryModuleLoads(ctx, cond, limit)
}

func (s *Store) queryModuleLoads(ctx context.Context, where condition, limit int) ([]storage.ModuleLoad, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT id, module, outcome, error, components, duration_ms, trace_id, span_id, loaded_at
FROM module_loads
WHERE ` + where.clause + `
ORDER BY loaded_at DESC, id
LIMIT ?`
	rows, err := s.sqlDB.QueryContext(ctx, query, append(where.params, limit)...)
	if err != nil {
		return nil, fmt.Errorf("query module loads: %w", err)
	}
	defer rows.Close()

	var out []storage.ModuleLoad
	for rows.Next() {
		var (
			record     storage.ModuleLoad
			outcome    string
			durationMS int64
			loadedAt   int64
		)
		if err := rows.Scan(&record.ID, &record.Module, &outcome, &record.Error, &record.Components, &durationMS, &record.TraceID, &record.SpanID, &loadedAt); err != nil {
			return nil, fmt.Errorf("scan module load: %w", err)
		}
		record.Outcome = storage.LoadOutcome(outcome)
		record.Duration = time.Duration(durationMS) * time.Millisecond
		record.LoadedAt = fromMillis(loadedAt)
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate module loads: %w", err)
	}
	return out, nil
}
