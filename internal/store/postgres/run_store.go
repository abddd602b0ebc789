package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/lobsim/internal/domain"
)

// RunStore implements domain.RunStore using PostgreSQL.
type RunStore struct {
	pool *pgxpool.Pool
}

// NewRunStore creates a RunStore backed by pool.
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

const runSelectCols = `id, source, strategy, fill_mode, atomic_steps,
	start_index, end_index, starting_cash, steps, skipped,
	metrics, trade_stats, agent_stats, duration_ms, created_at`

// Save writes the run header and its snapshots in one transaction. Snapshots
// are queued on a single pgx.Batch.
func (s *RunStore) Save(ctx context.Context, run domain.Run, snapshots []domain.Snapshot) error {
	metricsJSON, tradeJSON, agentJSON, err := marshalStats(run)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin save run %s: %w", run.ID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertRun = `
		INSERT INTO backtest_runs (
			id, source, strategy, fill_mode, atomic_steps,
			start_index, end_index, starting_cash, steps, skipped,
			metrics, trade_stats, agent_stats, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	if _, err := tx.Exec(ctx, insertRun,
		run.ID, run.Source, run.Strategy, string(run.FillMode), run.AtomicSteps,
		run.StartIndex, run.EndIndex, run.StartingCash, run.Steps, run.Skipped,
		metricsJSON, tradeJSON, agentJSON, int64(run.Duration), run.CreatedAt,
	); err != nil {
		return fmt.Errorf("postgres: insert run %s: %w", run.ID, err)
	}

	if len(snapshots) > 0 {
		batch := &pgx.Batch{}
		const insertSnap = `INSERT INTO backtest_snapshots (run_id, seq, step, payload) VALUES ($1, $2, $3, $4)`
		for i, snap := range snapshots {
			payload, err := json.Marshal(snap)
			if err != nil {
				return fmt.Errorf("postgres: marshal snapshot %d: %w", i, err)
			}
			batch.Queue(insertSnap, run.ID, i, snap.Step, payload)
		}

		br := tx.SendBatch(ctx, batch)
		for i := range snapshots {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("postgres: insert snapshot %d of run %s: %w", i, run.ID, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("postgres: close snapshot batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit run %s: %w", run.ID, err)
	}
	return nil
}

// Get returns one run header, or domain.ErrNotFound.
func (s *RunStore) Get(ctx context.Context, id string) (domain.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runSelectCols+` FROM backtest_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Run{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Run{}, fmt.Errorf("postgres: get run %s: %w", id, err)
	}
	return run, nil
}

// List returns run headers newest first.
func (s *RunStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Run, error) {
	query, args := paginate(`SELECT `+runSelectCols+` FROM backtest_runs WHERE 1=1`, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list runs rows: %w", err)
	}
	return runs, nil
}

// Snapshots returns the step sequence of a run in recorded order.
func (s *RunStore) Snapshots(ctx context.Context, id string) ([]domain.Snapshot, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM backtest_runs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("postgres: check run %s: %w", id, err)
	}
	if !exists {
		return nil, domain.ErrNotFound
	}

	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM backtest_snapshots WHERE run_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: snapshots %s: %w", id, err)
	}
	defer rows.Close()

	snaps := []domain.Snapshot{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot: %w", err)
		}
		var snap domain.Snapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: snapshots rows: %w", err)
	}
	return snaps, nil
}

func scanRun(row pgx.Row) (domain.Run, error) {
	var (
		run                               domain.Run
		fillMode                          string
		durationMs                        int64
		metricsJSON, tradeJSON, agentJSON []byte
	)
	if err := row.Scan(
		&run.ID, &run.Source, &run.Strategy, &fillMode, &run.AtomicSteps,
		&run.StartIndex, &run.EndIndex, &run.StartingCash, &run.Steps, &run.Skipped,
		&metricsJSON, &tradeJSON, &agentJSON, &durationMs, &run.CreatedAt,
	); err != nil {
		return domain.Run{}, err
	}
	run.FillMode = domain.FillMode(fillMode)
	run.Duration = domain.Millis(durationMs)
	if err := unmarshalStats(&run, metricsJSON, tradeJSON, agentJSON); err != nil {
		return domain.Run{}, err
	}
	return run, nil
}

func marshalStats(run domain.Run) (metrics, trades, agents []byte, err error) {
	if metrics, err = json.Marshal(run.Metrics); err != nil {
		return nil, nil, nil, fmt.Errorf("postgres: marshal metrics: %w", err)
	}
	if trades, err = json.Marshal(run.TradeStats); err != nil {
		return nil, nil, nil, fmt.Errorf("postgres: marshal trade stats: %w", err)
	}
	if agents, err = json.Marshal(run.AgentStats); err != nil {
		return nil, nil, nil, fmt.Errorf("postgres: marshal agent stats: %w", err)
	}
	return metrics, trades, agents, nil
}

func unmarshalStats(run *domain.Run, metrics, trades, agents []byte) error {
	if err := json.Unmarshal(metrics, &run.Metrics); err != nil {
		return fmt.Errorf("postgres: unmarshal metrics: %w", err)
	}
	if err := json.Unmarshal(trades, &run.TradeStats); err != nil {
		return fmt.Errorf("postgres: unmarshal trade stats: %w", err)
	}
	if err := json.Unmarshal(agents, &run.AgentStats); err != nil {
		return fmt.Errorf("postgres: unmarshal agent stats: %w", err)
	}
	return nil
}

// paginate appends the created_at window, newest-first ordering and
// LIMIT/OFFSET from opts to base.
func paginate(base string, opts domain.ListOpts) (string, []any) {
	query := base
	args := []any{}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.Since != nil {
		query += " AND created_at >= " + next(opts.Since.UTC().Truncate(time.Microsecond))
	}
	if opts.Until != nil {
		query += " AND created_at <= " + next(opts.Until.UTC().Truncate(time.Microsecond))
	}
	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT " + next(opts.Limit)
	}
	if opts.Offset > 0 {
		query += " OFFSET " + next(opts.Offset)
	}
	return query, args
}
