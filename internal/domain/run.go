package domain

import (
	"context"
	"time"
)

// Run and step status constants.
const (
	RunStatusRunning = "RUNNING"
	RunStatusSuccess = "SUCCESS"
	RunStatusFailed  = "FAILED"

	StepStatusRunning = "RUNNING"
	StepStatusSuccess = "SUCCESS"
	StepStatusFailed  = "FAILED"

	TriggerManual    = "MANUAL"
	TriggerAPI       = "API"
	TriggerScheduled = "SCHEDULED"
)

// PipelineRun is the journal record of one pipeline execution.
type PipelineRun struct {
	ID           string
	Status       string
	Trigger      string
	Steps        []Step
	FailedStep   *int
	ErrorMessage *string
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// StepRun is the journal record of one executed step.
type StepRun struct {
	RunID        string
	StepIndex    int
	Command      string
	Status       string
	RowsOut      *int64
	ErrorMessage *string
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// RunRepository persists pipeline runs and their steps.
type RunRepository interface {
	CreateRun(ctx context.Context, run *PipelineRun) error
	FinishRun(ctx context.Context, id, status string, failedStep *int, errMsg *string) error
	StartStep(ctx context.Context, sr *StepRun) error
	FinishStep(ctx context.Context, runID string, index int, status string, rowsOut *int64, errMsg *string) error
	GetRun(ctx context.Context, id string) (*PipelineRun, error)
	ListRuns(ctx context.Context, limit int) ([]PipelineRun, error)
	ListStepRuns(ctx context.Context, runID string) ([]StepRun, error)
}
