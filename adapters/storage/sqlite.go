package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"beliefgraph/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	graph_name    TEXT NOT NULL,
	mode          TEXT NOT NULL,
	converged     INTEGER NOT NULL,
	iterations    INTEGER NOT NULL,
	final_delta   REAL NOT NULL,
	probabilities TEXT NOT NULL,
	input_hash    TEXT NOT NULL,
	created_at    INTEGER NOT NULL,
	metadata      TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_graph_created ON runs(graph_name, created_at DESC);
`

const runColumns = `id, graph_name, mode, converged, iterations, final_delta, probabilities, input_hash, created_at, metadata`

// SQLiteStore keeps runs in a SQLite database
type SQLiteStore struct {
	conn *sql.DB
	Path string
}

// NewSQLiteStore opens or creates the database with WAL mode enabled
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Storage("failed to create database directory", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Storage("opening database", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, errors.Storage("setting WAL mode", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, errors.Storage("creating schema", err)
	}

	return &SQLiteStore{conn: conn, Path: path}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, run *Run) error {
	prepare(run)

	probs, err := json.Marshal(run.Probabilities)
	if err != nil {
		return errors.Storage("failed to marshal probabilities", err)
	}
	var meta []byte
	if run.Metadata != nil {
		if meta, err = json.Marshal(run.Metadata); err != nil {
			return errors.Storage("failed to marshal metadata", err)
		}
	}

	_, err = s.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.GraphName, run.Mode, run.Converged, run.Iterations, run.FinalDelta,
		string(probs), run.InputHash, run.CreatedAt.UnixNano(), nullable(meta))
	if err != nil {
		return errors.Storage("failed to insert run", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Run, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("run", id)
	}
	if err != nil {
		return nil, errors.Storage("failed to read run", err)
	}
	return run, nil
}

func (s *SQLiteStore) List(ctx context.Context, filter *ListFilter) ([]*Run, error) {
	var where []string
	var args []interface{}
	if filter == nil {
		filter = &ListFilter{}
	}
	if filter.GraphName != "" {
		where = append(where, "graph_name = ?")
		args = append(args, filter.GraphName)
	}
	if filter.Mode != "" {
		where = append(where, "mode = ?")
		args = append(args, filter.Mode)
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.Since.UnixNano())
	}
	if !filter.Until.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, filter.Until.UnixNano())
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		query += " LIMIT -1"
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Storage("failed to query runs", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errors.Storage("failed to scan run", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Storage("failed to iterate runs", err)
	}
	return runs, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return errors.Storage("failed to delete run", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NotFound("run", id)
	}
	return nil
}

func (s *SQLiteStore) GetLatest(ctx context.Context, graphName string) (*Run, error) {
	runs, err := s.List(ctx, &ListFilter{GraphName: graphName, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, errors.NotFound("run for graph", graphName)
	}
	return runs[0], nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run       Run
		probs     string
		createdAt int64
		meta      sql.NullString
	)
	if err := sc.Scan(&run.ID, &run.GraphName, &run.Mode, &run.Converged, &run.Iterations,
		&run.FinalDelta, &probs, &run.InputHash, &createdAt, &meta); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(probs), &run.Probabilities); err != nil {
		return nil, err
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &run.Metadata); err != nil {
			return nil, err
		}
	}
	run.CreatedAt = time.Unix(0, createdAt).UTC()
	return &run, nil
}

func nullable(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return string(b)
}
