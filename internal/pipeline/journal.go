package pipeline

import (
	"context"
	"log/slog"

	"ppexec/internal/domain"
)

// Journal writes never fail a run; errors are logged.

func (e *Executor) journalCreate(ctx context.Context, r *Run, logger *slog.Logger) {
	if e.journal == nil {
		return
	}
	err := e.journal.CreateRun(ctx, &domain.PipelineRun{
		ID:        r.id,
		Status:    domain.RunStatusRunning,
		Trigger:   r.trigger,
		Steps:     r.steps,
		StartedAt: r.startedAt,
	})
	if err != nil {
		logger.WarnContext(ctx, "journal: create run", "error", err)
	}
}

func (e *Executor) journalFinish(ctx context.Context, r *Run, logger *slog.Logger) {
	if e.journal == nil {
		return
	}
	status := domain.RunStatusSuccess
	var (
		failedStep *int
		errMsg     *string
	)
	if r.err != nil {
		status = domain.RunStatusFailed
		msg := r.err.Error()
		errMsg = &msg
		if i, ok := r.FailedStep(); ok {
			failedStep = &i
		}
	}
	if err := e.journal.FinishRun(ctx, r.id, status, failedStep, errMsg); err != nil {
		logger.WarnContext(ctx, "journal: finish run", "error", err)
	}
}

func (e *Executor) journalStartStep(ctx context.Context, runID string, index int, command string, logger *slog.Logger) {
	if e.journal == nil {
		return
	}
	err := e.journal.StartStep(ctx, &domain.StepRun{
		RunID:     runID,
		StepIndex: index,
		Command:   command,
		Status:    domain.StepStatusRunning,
	})
	if err != nil {
		logger.WarnContext(ctx, "journal: start step", "error", err)
	}
}

func (e *Executor) journalFinishStep(ctx context.Context, runID string, index int, rows *int64, stepErr *domain.Error, logger *slog.Logger) {
	if e.journal == nil {
		return
	}
	status := domain.StepStatusSuccess
	var errMsg *string
	if stepErr != nil {
		status = domain.StepStatusFailed
		msg := stepErr.Error()
		errMsg = &msg
	}
	if err := e.journal.FinishStep(ctx, runID, index, status, rows, errMsg); err != nil {
		logger.WarnContext(ctx, "journal: finish step", "error", err)
	}
}
