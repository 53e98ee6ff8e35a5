package sink

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const resultsSchema = `
CREATE TABLE IF NOT EXISTS results (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id   INTEGER NOT NULL,
	output     BLOB NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_agent ON results(agent_id);
`

// Result is one persisted emission
type Result struct {
	ID        int64     `json:"id"`
	AgentID   uint32    `json:"agent_id"`
	Output    []byte    `json:"output"`
	CreatedAt time.Time `json:"created_at"`
}

// SQLiteSink persists emissions so the surrounding system can collect them
// after the fact. The engine itself never reads results back; the Recent
// accessor exists for the daemon's results endpoint.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLiteSink opens (and if needed initializes) the results database
func OpenSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open results database: %w", err)
	}
	// One writer at a time keeps sqlite happy
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(resultsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize results schema: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

// Emit inserts the emission
func (s *SQLiteSink) Emit(ctx context.Context, agentID uint32, output []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO results (agent_id, output, created_at) VALUES (?, ?, ?)`,
		agentID, output, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to persist result: %w", err)
	}
	return nil
}

// Recent returns the newest results, newest first
func (s *SQLiteSink) Recent(ctx context.Context, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, output, created_at FROM results ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.AgentID, &r.Output, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Close closes the database
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
