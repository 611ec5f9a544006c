// Package store persists run results to PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-cli/internal/results"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schemaSQL = `
        CREATE TABLE IF NOT EXISTS runs (
            id          TEXT PRIMARY KEY,
            started_at  TIMESTAMPTZ NOT NULL,
            finished_at TIMESTAMPTZ NOT NULL,
            failed      BOOLEAN NOT NULL
        );
        CREATE TABLE IF NOT EXISTS scenario_outcomes (
            run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
            scenario    TEXT NOT NULL,
            status      TEXT NOT NULL,
            duration_ms BIGINT NOT NULL,
            error       TEXT NOT NULL DEFAULT '',
            screenshot  TEXT NOT NULL DEFAULT '',
            degraded    BIGINT NOT NULL DEFAULT 0,
            PRIMARY KEY (run_id, scenario)
        );
    `

const insertRunSQL = `
        INSERT INTO runs (id, started_at, finished_at, failed)
        VALUES ($1, $2, $3, $4);
    `

const selectOutcomesSQL = `
        SELECT scenario, status, duration_ms, error, screenshot, degraded
        FROM scenario_outcomes
        WHERE run_id = $1
        ORDER BY scenario ASC;
    `

var outcomeColumns = []string{"run_id", "scenario", "status", "duration_ms", "error", "screenshot", "degraded"}

// Store records runs and their scenario outcomes.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveRun writes the run row and all outcome rows in one transaction.
func (s *Store) SaveRun(ctx context.Context, run *results.Run) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, insertRunSQL, run.ID, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Failed()); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	if len(run.Outcomes) > 0 {
		if err := s.persistOutcomes(ctx, tx, run); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Saved run.", zap.String("run_id", run.ID), zap.Int("outcomes", len(run.Outcomes)))
	return nil
}

func (s *Store) persistOutcomes(ctx context.Context, tx pgx.Tx, run *results.Run) error {
	rows := make([][]interface{}, len(run.Outcomes))
	for i, o := range run.Outcomes {
		rows[i] = []interface{}{
			run.ID, o.Scenario, string(o.Status),
			o.Duration.Milliseconds(), o.Error, o.Screenshot, o.Degraded,
		}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"scenario_outcomes"}, outcomeColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy scenario outcomes: %w", err)
	}
	if int(copyCount) != len(run.Outcomes) {
		return fmt.Errorf("mismatch in copied outcomes count: expected %d, got %d", len(run.Outcomes), copyCount)
	}
	return nil
}

// GetOutcomesByRunID loads the outcomes recorded for runID.
func (s *Store) GetOutcomesByRunID(ctx context.Context, runID string) ([]results.Outcome, error) {
	rows, err := s.pool.Query(ctx, selectOutcomesSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []results.Outcome
	for rows.Next() {
		var o results.Outcome
		var status string
		var durationMS int64
		if err := rows.Scan(&o.Scenario, &status, &durationMS, &o.Error, &o.Screenshot, &o.Degraded); err != nil {
			return nil, fmt.Errorf("failed to scan outcome row: %w", err)
		}
		o.Status = results.Status(status)
		o.Duration = time.Duration(durationMS) * time.Millisecond
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return outcomes, nil
}
