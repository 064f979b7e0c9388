package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/dagrun/dagrun/flow"
)

// SQLiteStore is a SQLite-backed flow.Store.
//
// Runs are stored as JSON documents in a single-file database, with the
// status and definition id broken out into columns for filtering. Designed
// for development, testing, and single-process deployments that need
// persistence without a database server.
//
// The store enables WAL mode so readers do not block the writer.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if necessary) a SQLite-backed store at
// path. Use ":memory:" for an in-memory database that vanishes on Close.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// SQLite supports a single writer; keep one pooled connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT NOT NULL PRIMARY KEY,
			definition_id TEXT NOT NULL,
			status TEXT NOT NULL,
			state TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create runs table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_runs_definition ON runs(definition_id)"); err != nil {
		return fmt.Errorf("create idx_runs_definition: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)"); err != nil {
		return fmt.Errorf("create idx_runs_status: %w", err)
	}
	return nil
}

// CreateRun inserts the initial state of a new run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *flow.Execution) error {
	doc, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", run.ID, err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO runs (id, definition_id, status, state) VALUES (?, ?, ?, ?)",
		run.ID, run.DefinitionID, string(run.Status), string(doc))
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// SaveRun replaces the stored state of an existing run.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *flow.Execution) error {
	doc, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", run.ID, err)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE runs SET status = ?, state = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		string(run.Status), string(doc), run.ID)
	if err != nil {
		return fmt.Errorf("update run %s: %w", run.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

// GetRun retrieves a run by id.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*flow.Execution, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, "SELECT state FROM runs WHERE id = ?", runID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", runID, err)
	}

	var run flow.Execution
	if err := json.Unmarshal([]byte(doc), &run); err != nil {
		return nil, fmt.Errorf("unmarshal run %s: %w", runID, err)
	}
	return &run, nil
}

// ListRuns returns the ids of all stored runs in sorted order.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM runs ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteRun removes a run's stored state. Deleting an unknown id is a
// no-op.
func (s *SQLiteStore) DeleteRun(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", runID); err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	return nil
}

// Path returns the database file path the store was opened with.
func (s *SQLiteStore) Path() string { return s.path }

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }
