package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ni225-oracle/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrNoRuns is returned by LatestRun when nothing has been stored for a profile.
var ErrNoRuns = errors.New("no signal runs recorded")

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type SignalRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewSignalRepository(pool PgxPool, tracer trace.Tracer) *SignalRepository {
	return &SignalRepository{pool: pool, tracer: tracer}
}

// SaveRun stores the run header and its audit rows in one batch.
func (r *SignalRepository) SaveRun(ctx context.Context, run domain.SignalRun) error {
	ctx, span := r.tracer.Start(ctx, "signal-repo.save-run")
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", run.RunID),
		attribute.Int("rows", len(run.Rows)),
	)

	diags := run.Diagnostics
	if diags == nil {
		diags = []string{}
	}
	diagJSON, err := json.Marshal(diags)
	if err != nil {
		return fmt.Errorf("encode diagnostics: %w", err)
	}

	batch := &pgx.Batch{}
	batch.Queue(
		`INSERT INTO signal_runs (run_id, profile, run_at, signal_date, signal, action, manual_open, diagnostics)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.RunID, run.Profile, run.RunAt, run.SignalDate, float64(run.Signal), run.Action, run.ManualOpen, diagJSON,
	)
	for _, row := range run.Rows {
		features, err := json.Marshal(row.Features)
		if err != nil {
			return fmt.Errorf("encode features for %s: %w", row.Date.Format(domain.DateLayout), err)
		}
		batch.Queue(
			`INSERT INTO signal_rows (run_id, row_date, features, prediction)
			 VALUES ($1, $2, $3, $4)`,
			run.RunID, row.Date, features, row.Prediction,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("save run %s: %w", run.RunID, err)
		}
	}
	return nil
}

// LatestRun returns the most recent run for profile, audit rows included.
func (r *SignalRepository) LatestRun(ctx context.Context, profile string) (*domain.SignalRun, error) {
	ctx, span := r.tracer.Start(ctx, "signal-repo.latest-run")
	defer span.End()

	run := &domain.SignalRun{}
	var (
		signal   float64
		diagJSON []byte
	)
	err := r.pool.QueryRow(ctx,
		`SELECT run_id::text, profile, run_at, signal_date, signal, action, manual_open, diagnostics
		 FROM signal_runs
		 WHERE profile = $1
		 ORDER BY run_at DESC
		 LIMIT 1`,
		profile,
	).Scan(&run.RunID, &run.Profile, &run.RunAt, &run.SignalDate, &signal, &run.Action, &run.ManualOpen, &diagJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, err
	}
	run.Signal = domain.Signal(signal)
	if len(diagJSON) > 0 {
		if err := json.Unmarshal(diagJSON, &run.Diagnostics); err != nil {
			return nil, fmt.Errorf("decode diagnostics: %w", err)
		}
	}

	rows, err := r.pool.Query(ctx,
		`SELECT row_date, features, prediction
		 FROM signal_rows
		 WHERE run_id = $1
		 ORDER BY row_date ASC`,
		run.RunID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			row      domain.SignalRunRow
			features []byte
		)
		if err := rows.Scan(&row.Date, &features, &row.Prediction); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(features, &row.Features); err != nil {
			return nil, fmt.Errorf("decode features for %s: %w", row.Date.Format(domain.DateLayout), err)
		}
		run.Rows = append(run.Rows, row)
	}
	return run, rows.Err()
}
