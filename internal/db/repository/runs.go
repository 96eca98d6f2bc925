package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"ppexec/internal/domain"
)

// Compile-time check.
var _ domain.RunRepository = (*RunRepo)(nil)

const defaultListLimit = 50

// RunRepo implements RunRepository. Writes go through the single-connection
// write pool; reads use the read pool.
type RunRepo struct {
	write *sql.DB
	read  *sql.DB
	now   func() time.Time
}

// NewRunRepo creates a RunRepo. read may be nil, in which case write serves
// both.
func NewRunRepo(write, read *sql.DB) *RunRepo {
	if read == nil {
		read = write
	}
	return &RunRepo{write: write, read: read, now: time.Now}
}

// CreateRun inserts a run record.
func (r *RunRepo) CreateRun(ctx context.Context, run *domain.PipelineRun) error {
	steps, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	started := run.StartedAt
	if started.IsZero() {
		started = r.now()
	}
	_, err = r.write.ExecContext(ctx, `
		INSERT INTO pipeline_runs (id, status, trigger_type, steps, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Status, run.Trigger, string(steps), formatTime(started))
	return mapDBError(err)
}

// FinishRun records a run's final status.
func (r *RunRepo) FinishRun(ctx context.Context, id, status string, failedStep *int, errMsg *string) error {
	res, err := r.write.ExecContext(ctx, `
		UPDATE pipeline_runs
		SET status = ?, failed_step = ?, error_message = ?, finished_at = ?
		WHERE id = ?`,
		status, nullIntPtr(failedStep), nullStringPtr(errMsg), formatTime(r.now()), id)
	if err != nil {
		return mapDBError(err)
	}
	return requireAffected(res, "run %s", id)
}

// StartStep inserts a step record.
func (r *RunRepo) StartStep(ctx context.Context, sr *domain.StepRun) error {
	started := sr.StartedAt
	if started.IsZero() {
		started = r.now()
	}
	_, err := r.write.ExecContext(ctx, `
		INSERT INTO step_runs (run_id, step_index, command, status, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		sr.RunID, sr.StepIndex, sr.Command, sr.Status, formatTime(started))
	return mapDBError(err)
}

// FinishStep records a step's outcome.
func (r *RunRepo) FinishStep(ctx context.Context, runID string, index int, status string, rowsOut *int64, errMsg *string) error {
	res, err := r.write.ExecContext(ctx, `
		UPDATE step_runs
		SET status = ?, rows_out = ?, error_message = ?, finished_at = ?
		WHERE run_id = ? AND step_index = ?`,
		status, nullInt64Ptr(rowsOut), nullStringPtr(errMsg), formatTime(r.now()), runID, index)
	if err != nil {
		return mapDBError(err)
	}
	return requireAffected(res, "step %d of run %s", index, runID)
}

const runColumns = `id, status, trigger_type, steps, failed_step, error_message, started_at, finished_at`

// GetRun returns a run by ID.
func (r *RunRepo) GetRun(ctx context.Context, id string) (*domain.PipelineRun, error) {
	row := r.read.QueryRowContext(ctx, `SELECT `+runColumns+` FROM pipeline_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. A limit of zero or less
// means the default page size.
func (r *RunRepo) ListRuns(ctx context.Context, limit int) ([]domain.PipelineRun, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := r.read.QueryContext(ctx,
		`SELECT `+runColumns+` FROM pipeline_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	runs := make([]domain.PipelineRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ListStepRuns returns a run's steps in execution order.
func (r *RunRepo) ListStepRuns(ctx context.Context, runID string) ([]domain.StepRun, error) {
	rows, err := r.read.QueryContext(ctx, `
		SELECT run_id, step_index, command, status, rows_out, error_message, started_at, finished_at
		FROM step_runs WHERE run_id = ? ORDER BY step_index`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	out := make([]domain.StepRun, 0)
	for rows.Next() {
		var (
			sr         domain.StepRun
			rowsOut    sql.NullInt64
			errMsg     sql.NullString
			startedAt  string
			finishedAt sql.NullString
		)
		if err := rows.Scan(&sr.RunID, &sr.StepIndex, &sr.Command, &sr.Status, &rowsOut, &errMsg, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		if rowsOut.Valid {
			n := rowsOut.Int64
			sr.RowsOut = &n
		}
		sr.ErrorMessage = stringPtr(errMsg)
		sr.StartedAt = parseTime(startedAt)
		sr.FinishedAt = parseTimePtr(finishedAt)
		out = append(out, sr)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*domain.PipelineRun, error) {
	var (
		run        domain.PipelineRun
		steps      string
		failedStep sql.NullInt64
		errMsg     sql.NullString
		startedAt  string
		finishedAt sql.NullString
	)
	if err := s.Scan(&run.ID, &run.Status, &run.Trigger, &steps, &failedStep, &errMsg, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(steps), &run.Steps); err != nil {
		return nil, fmt.Errorf("decode steps of run %s: %w", run.ID, err)
	}
	if failedStep.Valid {
		i := int(failedStep.Int64)
		run.FailedStep = &i
	}
	run.ErrorMessage = stringPtr(errMsg)
	run.StartedAt = parseTime(startedAt)
	run.FinishedAt = parseTimePtr(finishedAt)
	return &run, nil
}

func requireAffected(res sql.Result, format string, args ...any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound(format+" not found", args...)
	}
	return nil
}
