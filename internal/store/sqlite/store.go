// Package sqlite implements the run and audit stores on an embedded SQLite
// database through the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/alanyoungcy/lobsim/internal/domain"
)

// Compile-time interface checks.
var (
	_ domain.RunStore   = (*Store)(nil)
	_ domain.AuditStore = auditView{}
)

const schema = `
CREATE TABLE IF NOT EXISTS backtest_runs (
	id            TEXT PRIMARY KEY,
	source        TEXT NOT NULL,
	strategy      TEXT NOT NULL,
	fill_mode     TEXT NOT NULL,
	atomic_steps  INTEGER NOT NULL DEFAULT 0,
	start_index   INTEGER NOT NULL,
	end_index     INTEGER NOT NULL,
	starting_cash REAL NOT NULL,
	steps         INTEGER NOT NULL,
	skipped       INTEGER NOT NULL DEFAULT 0,
	metrics       TEXT NOT NULL,
	trade_stats   TEXT NOT NULL,
	agent_stats   TEXT NOT NULL,
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_backtest_runs_created_at ON backtest_runs (created_at DESC);

CREATE TABLE IF NOT EXISTS backtest_snapshots (
	run_id  TEXT NOT NULL REFERENCES backtest_runs (id) ON DELETE CASCADE,
	seq     INTEGER NOT NULL,
	step    INTEGER NOT NULL,
	payload TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	event      TEXT NOT NULL,
	detail     TEXT,
	created_at INTEGER NOT NULL
);`

// Store implements domain.RunStore. AuditLog exposes the audit table.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA foreign_keys = ON", "PRAGMA journal_mode = WAL", schema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: init schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

// Save writes the run header and snapshots in one transaction.
func (s *Store) Save(ctx context.Context, run domain.Run, snapshots []domain.Snapshot) error {
	metricsJSON, err := json.Marshal(run.Metrics)
	if err != nil {
		return fmt.Errorf("sqlite: marshal metrics: %w", err)
	}
	tradeJSON, err := json.Marshal(run.TradeStats)
	if err != nil {
		return fmt.Errorf("sqlite: marshal trade stats: %w", err)
	}
	agentJSON, err := json.Marshal(run.AgentStats)
	if err != nil {
		return fmt.Errorf("sqlite: marshal agent stats: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin save run %s: %w", run.ID, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO backtest_runs (
			id, source, strategy, fill_mode, atomic_steps,
			start_index, end_index, starting_cash, steps, skipped,
			metrics, trade_stats, agent_stats, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.Strategy, string(run.FillMode), run.AtomicSteps,
		run.StartIndex, run.EndIndex, run.StartingCash, run.Steps, run.Skipped,
		string(metricsJSON), string(tradeJSON), string(agentJSON), int64(run.Duration), run.CreatedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("sqlite: insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO backtest_snapshots (run_id, seq, step, payload) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for i, snap := range snapshots {
		payload, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("sqlite: marshal snapshot %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, run.ID, i, snap.Step, string(payload)); err != nil {
			return fmt.Errorf("sqlite: insert snapshot %d of run %s: %w", i, run.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit run %s: %w", run.ID, err)
	}
	return nil
}

const runSelectCols = `id, source, strategy, fill_mode, atomic_steps,
	start_index, end_index, starting_cash, steps, skipped,
	metrics, trade_stats, agent_stats, duration_ms, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (domain.Run, error) {
	var (
		run                               domain.Run
		fillMode                          string
		durationMs, createdAt             int64
		metricsJSON, tradeJSON, agentJSON string
	)
	if err := row.Scan(
		&run.ID, &run.Source, &run.Strategy, &fillMode, &run.AtomicSteps,
		&run.StartIndex, &run.EndIndex, &run.StartingCash, &run.Steps, &run.Skipped,
		&metricsJSON, &tradeJSON, &agentJSON, &durationMs, &createdAt,
	); err != nil {
		return domain.Run{}, err
	}
	run.FillMode = domain.FillMode(fillMode)
	run.Duration = domain.Millis(durationMs)
	run.CreatedAt = time.Unix(0, createdAt).UTC()

	if err := json.Unmarshal([]byte(metricsJSON), &run.Metrics); err != nil {
		return domain.Run{}, fmt.Errorf("unmarshal metrics: %w", err)
	}
	if err := json.Unmarshal([]byte(tradeJSON), &run.TradeStats); err != nil {
		return domain.Run{}, fmt.Errorf("unmarshal trade stats: %w", err)
	}
	if err := json.Unmarshal([]byte(agentJSON), &run.AgentStats); err != nil {
		return domain.Run{}, fmt.Errorf("unmarshal agent stats: %w", err)
	}
	return run, nil
}

// Get returns one run header, or domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (domain.Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runSelectCols+` FROM backtest_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Run{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Run{}, fmt.Errorf("sqlite: get run %s: %w", id, err)
	}
	return run, nil
}

// List returns run headers newest first.
func (s *Store) List(ctx context.Context, opts domain.ListOpts) ([]domain.Run, error) {
	query, args := paginate(`SELECT `+runSelectCols+` FROM backtest_runs WHERE 1=1`, opts)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Snapshots returns the step sequence of a run in recorded order.
func (s *Store) Snapshots(ctx context.Context, id string) ([]domain.Snapshot, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM backtest_runs WHERE id = ?`, id).Scan(&n); err != nil {
		return nil, fmt.Errorf("sqlite: check run %s: %w", id, err)
	}
	if n == 0 {
		return nil, domain.ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM backtest_snapshots WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: snapshots %s: %w", id, err)
	}
	defer rows.Close()

	snaps := []domain.Snapshot{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("sqlite: scan snapshot: %w", err)
		}
		var snap domain.Snapshot
		if err := json.Unmarshal([]byte(payload), &snap); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// ---------------------------------------------------------------------------
// Audit log
// ---------------------------------------------------------------------------

// AuditLog returns the audit log view of the database.
func (s *Store) AuditLog() domain.AuditStore { return auditView{s} }

type auditView struct{ s *Store }

// Log appends an audit entry.
func (a auditView) Log(ctx context.Context, event string, detail map[string]any) error {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("sqlite: marshal audit detail: %w", err)
	}
	if _, err := a.s.db.ExecContext(ctx,
		`INSERT INTO audit_log (event, detail, created_at) VALUES (?, ?, ?)`,
		event, string(detailJSON), time.Now().UnixNano(),
	); err != nil {
		return fmt.Errorf("sqlite: log audit event %s: %w", event, err)
	}
	return nil
}

// List returns audit entries newest first.
func (a auditView) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	query, args := paginate(`SELECT id, event, detail, created_at FROM audit_log WHERE 1=1`, opts)
	rows, err := a.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []domain.AuditEntry{}
	for rows.Next() {
		var (
			e         domain.AuditEntry
			detail    sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.Event, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan audit entry: %w", err)
		}
		if detail.Valid {
			if err := json.Unmarshal([]byte(detail.String), &e.Detail); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal audit detail: %w", err)
			}
		}
		e.CreatedAt = time.Unix(0, createdAt).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func paginate(base string, opts domain.ListOpts) (string, []any) {
	query := base
	var args []any
	if opts.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, opts.Since.UnixNano())
	}
	if opts.Until != nil {
		query += " AND created_at <= ?"
		args = append(args, opts.Until.UnixNano())
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if opts.Limit > 0 || opts.Offset > 0 {
		limit := opts.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, opts.Offset)
	}
	return query, args
}
