package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ppexec/internal/domain"
	"ppexec/internal/pipeline"
)

// RunError describes the failure of a run.
type RunError struct {
	Kind    string `json:"kind"`
	Step    *int   `json:"step,omitempty"`
	Command string `json:"command,omitempty"`
	Message string `json:"message"`
}

// RunResult is the response to an executed pipeline.
type RunResult struct {
	ID         string           `json:"id"`
	State      string           `json:"state"`
	Trigger    string           `json:"trigger"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Rows       int              `json:"rows"`
	Columns    []string         `json:"columns,omitempty"`
	Schema     string           `json:"schema,omitempty"`
	Preview    []map[string]any `json:"preview,omitempty"`
	Error      *RunError        `json:"error,omitempty"`
}

// StepRecord is one journaled step.
type StepRecord struct {
	Index      int        `json:"index"`
	Command    string     `json:"command"`
	Status     string     `json:"status"`
	RowsOut    *int64     `json:"rows_out,omitempty"`
	Error      *string    `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunRecord is a journaled run.
type RunRecord struct {
	ID         string        `json:"id"`
	Status     string        `json:"status"`
	Trigger    string        `json:"trigger"`
	FailedStep *int          `json:"failed_step,omitempty"`
	Error      *string       `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Steps      []domain.Step `json:"steps,omitempty"`
	StepRuns   []StepRecord  `json:"step_runs,omitempty"`
}

// createRun executes the posted step list synchronously.
func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	steps, err := pipeline.ParseSteps(body, pipeline.FormatJSON)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := s.exec.Execute(r.Context(), steps, domain.TriggerAPI)
	status := http.StatusOK
	if err != nil {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, s.runResult(run))
}

func (s *Server) runResult(run *pipeline.Run) RunResult {
	out := RunResult{
		ID:         run.ID(),
		State:      run.State().String(),
		Trigger:    run.Trigger(),
		StartedAt:  run.StartedAt(),
		FinishedAt: run.FinishedAt(),
	}
	if err := run.Err(); err != nil {
		derr := domain.AsError(err, "")
		out.Error = &RunError{Kind: derr.Kind.String(), Message: derr.Error()}
		if i, ok := run.FailedStep(); ok {
			out.Error.Step = &i
			out.Error.Command = derr.Command
		}
		return out
	}
	t := run.Table()
	if t == nil {
		return out
	}
	out.Rows = t.Len()
	out.Columns = t.Frame().Names()
	if ddl, err := t.DDL(); err == nil {
		out.Schema = ddl
	} else {
		s.logger.Warn("result schema unavailable", "run_id", run.ID(), "error", err)
	}
	out.Preview = t.Frame().Head(s.opts.PreviewRows).Records()
	return out
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, httpStatusFromError(errJournalDisabled), errJournalDisabled.Error())
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	runs, err := s.journal.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, httpStatusFromError(err), err.Error())
		return
	}
	out := make([]RunRecord, 0, len(runs))
	for _, run := range runs {
		rec := runRecord(run)
		rec.Steps = nil
		out = append(out, rec)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, httpStatusFromError(errJournalDisabled), errJournalDisabled.Error())
		return
	}
	id := chi.URLParam(r, "id")
	run, err := s.journal.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, httpStatusFromError(err), err.Error())
		return
	}
	steps, err := s.journal.ListStepRuns(r.Context(), id)
	if err != nil {
		writeError(w, httpStatusFromError(err), err.Error())
		return
	}
	rec := runRecord(*run)
	for _, sr := range steps {
		rec.StepRuns = append(rec.StepRuns, StepRecord{
			Index:      sr.StepIndex,
			Command:    sr.Command,
			Status:     sr.Status,
			RowsOut:    sr.RowsOut,
			Error:      sr.ErrorMessage,
			StartedAt:  sr.StartedAt,
			FinishedAt: sr.FinishedAt,
		})
	}
	writeJSON(w, http.StatusOK, rec)
}

func runRecord(run domain.PipelineRun) RunRecord {
	return RunRecord{
		ID:         run.ID,
		Status:     run.Status,
		Trigger:    run.Trigger,
		FailedStep: run.FailedStep,
		Error:      run.ErrorMessage,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Steps:      run.Steps,
	}
}
