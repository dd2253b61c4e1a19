// Package archive provides persistent run and model-call history for
// refinement runs. Records are append-only and indexed by session, so
// token usage can be aggregated per model or per run after the fact.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/refinery-ai/refinery/internal/reason"
)

// Run is one archived refinement run.
type Run struct {
	ID             string
	Timestamp      time.Time
	SessionID      string
	Query          string
	PromptType     string
	PromptPattern  string
	GeneratorModel string
	CriticModel    string
	Epochs         int
	Accepted       bool
	Output         string
	ElapsedMS      int64
	TracePath      string
}

// Summary holds aggregated token usage totals.
type Summary struct {
	TotalCalls        int
	TotalInputTokens  int64
	TotalOutputTokens int64
}

// Store is an append-only SQLite archive. It implements
// reason.Archiver. All public methods are safe for concurrent use
// (SQLite serializes writes).
type Store struct {
	db *sql.DB
}

// NewStore creates an archive at the given database path. The schema
// is created automatically on first use.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate archive schema: %w", err)
	}

	return s, nil
}

// NewStoreWithDB wraps an existing database handle, for tests that
// supply an in-memory database.
func NewStoreWithDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate archive schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id              TEXT PRIMARY KEY,
		timestamp       TEXT NOT NULL,
		session_id      TEXT NOT NULL,
		query           TEXT NOT NULL,
		prompt_type     TEXT NOT NULL,
		prompt_pattern  TEXT NOT NULL,
		generator_model TEXT NOT NULL,
		critic_model    TEXT NOT NULL,
		epochs          INTEGER NOT NULL,
		accepted        INTEGER NOT NULL,
		output          TEXT NOT NULL,
		elapsed_ms      INTEGER NOT NULL,
		trace_path      TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id);
	CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON runs(timestamp);

	CREATE TABLE IF NOT EXISTS llm_calls (
		id            TEXT PRIMARY KEY,
		timestamp     TEXT NOT NULL,
		session_id    TEXT NOT NULL,
		epoch         INTEGER NOT NULL,
		phase         TEXT NOT NULL,
		provider      TEXT NOT NULL,
		model         TEXT NOT NULL,
		input_tokens  INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		duration_ms   INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_calls_session ON llm_calls(session_id);
	CREATE INDEX IF NOT EXISTS idx_calls_model ON llm_calls(model);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordCall persists one model invocation.
func (s *Store) RecordCall(ctx context.Context, c reason.CallRecord) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate call record ID: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO llm_calls
			(id, timestamp, session_id, epoch, phase, provider, model,
			 input_tokens, output_tokens, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(),
		time.Now().UTC().Format(time.RFC3339),
		c.SessionID,
		c.Epoch,
		c.Phase,
		c.Provider,
		c.Model,
		c.InputTokens,
		c.OutputTokens,
		c.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert call record: %w", err)
	}
	return nil
}

// RecordRun persists one completed or failed refinement run.
func (s *Store) RecordRun(ctx context.Context, r reason.RunRecord) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate run record ID: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs
			(id, timestamp, session_id, query, prompt_type, prompt_pattern,
			 generator_model, critic_model, epochs, accepted, output,
			 elapsed_ms, trace_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(),
		time.Now().UTC().Format(time.RFC3339),
		r.SessionID,
		r.Query,
		r.PromptType,
		r.PromptPattern,
		r.GeneratorModel,
		r.CriticModel,
		r.Epochs,
		r.Accepted,
		r.Output,
		r.Elapsed.Milliseconds(),
		r.TracePath,
	)
	if err != nil {
		return fmt.Errorf("insert run record: %w", err)
	}
	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, session_id, query, prompt_type, prompt_pattern,
		        generator_model, critic_model, epochs, accepted, output,
		        elapsed_ms, COALESCE(trace_path, '')
		 FROM runs
		 ORDER BY timestamp DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var ts string
		if err := rows.Scan(&r.ID, &ts, &r.SessionID, &r.Query, &r.PromptType,
			&r.PromptPattern, &r.GeneratorModel, &r.CriticModel, &r.Epochs,
			&r.Accepted, &r.Output, &r.ElapsedMS, &r.TracePath); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			r.Timestamp = t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Usage returns aggregated token totals for one session, or for all
// sessions when sessionID is empty.
func (s *Store) Usage(ctx context.Context, sessionID string) (*Summary, error) {
	query := `SELECT COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0)
	          FROM llm_calls`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}

	var sum Summary
	row := s.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&sum.TotalCalls, &sum.TotalInputTokens, &sum.TotalOutputTokens); err != nil {
		return nil, fmt.Errorf("query usage summary: %w", err)
	}
	return &sum, nil
}

// UsageByModel returns per-model aggregated token totals.
func (s *Store) UsageByModel(ctx context.Context) (map[string]*Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT model, COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0)
		 FROM llm_calls
		 GROUP BY model
		 ORDER BY SUM(input_tokens) + SUM(output_tokens) DESC`)
	if err != nil {
		return nil, fmt.Errorf("query usage by model: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*Summary)
	for rows.Next() {
		var model string
		var sum Summary
		if err := rows.Scan(&model, &sum.TotalCalls, &sum.TotalInputTokens, &sum.TotalOutputTokens); err != nil {
			return nil, fmt.Errorf("scan usage by model: %w", err)
		}
		result[model] = &sum
	}
	return result, rows.Err()
}
