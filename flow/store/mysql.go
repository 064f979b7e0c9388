package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	json "github.com/goccy/go-json"

	"github.com/dagrun/dagrun/flow"
)

// MySQLStore is a MySQL-backed flow.Store for deployments where several
// processes share run history. Runs are stored as JSON documents with the
// status and definition id broken out for filtering.
//
// The DSN must include parseTime=true, for example:
//
//	user:pass@tcp(localhost:3306)/dagrun?parseTime=true
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore connects to MySQL, verifies the connection, and creates
// the schema if needed.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) migrate(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS runs (
			id VARCHAR(255) NOT NULL PRIMARY KEY,
			definition_id VARCHAR(255) NOT NULL,
			status VARCHAR(32) NOT NULL,
			state JSON NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			INDEX idx_runs_definition (definition_id),
			INDEX idx_runs_status (status)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create runs table: %w", err)
	}
	return nil
}

// CreateRun inserts the initial state of a new run.
func (s *MySQLStore) CreateRun(ctx context.Context, run *flow.Execution) error {
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
func (s *MySQLStore) SaveRun(ctx context.Context, run *flow.Execution) error {
	doc, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", run.ID, err)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE runs SET status = ?, state = ? WHERE id = ?",
		string(run.Status), string(doc), run.ID)
	if err != nil {
		return fmt.Errorf("update run %s: %w", run.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// RowsAffected is also 0 when the update was a no-op rewrite of
		// identical state, so confirm absence before reporting not found.
		var exists int
		if qerr := s.db.QueryRowContext(ctx, "SELECT 1 FROM runs WHERE id = ?", run.ID).Scan(&exists); errors.Is(qerr, sql.ErrNoRows) {
			return fmt.Errorf("run %s: %w", run.ID, ErrNotFound)
		}
	}
	return nil
}

// GetRun retrieves a run by id.
func (s *MySQLStore) GetRun(ctx context.Context, runID string) (*flow.Execution, error) {
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
func (s *MySQLStore) ListRuns(ctx context.Context) ([]string, error) {
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
func (s *MySQLStore) DeleteRun(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", runID); err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	return nil
}

// Ping verifies the database connection is alive.
func (s *MySQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close releases the connection pool.
func (s *MySQLStore) Close() error { return s.db.Close() }
