// Package pipeline executes step lists against the unit registry, threading
// one table from each step to the next.
package pipeline

import (
	"fmt"
	"slices"
	"time"

	"ppexec/internal/domain"
	"ppexec/internal/table"
)

// State is the lifecycle state of a Run.
type State int

const (
	Idle State = iota
	Running
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Running:
		return "Running"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Run is one execution of a step list. A run is executed at most once.
type Run struct {
	id      string
	trigger string
	steps   []domain.Step

	state      State
	current    *table.Table
	err        *domain.Error
	startedAt  time.Time
	finishedAt time.Time
}

// NewRun creates an idle run for steps.
func NewRun(steps []domain.Step, trigger string) *Run {
	if trigger == "" {
		trigger = domain.TriggerManual
	}
	return &Run{id: domain.NewID(), trigger: trigger, steps: slices.Clone(steps)}
}

func (r *Run) ID() string            { return r.id }
func (r *Run) Trigger() string       { return r.trigger }
func (r *Run) Steps() []domain.Step  { return slices.Clone(r.steps) }
func (r *Run) State() State          { return r.state }
func (r *Run) StartedAt() time.Time  { return r.startedAt }
func (r *Run) FinishedAt() time.Time { return r.finishedAt }

// Table returns the current table: the pipeline result once Completed.
func (r *Run) Table() *table.Table { return r.current }

// Err returns the error that failed the run.
func (r *Run) Err() error {
	if r.err == nil {
		return nil
	}
	return r.err
}

// FailedStep returns the index of the step that failed the run.
func (r *Run) FailedStep() (int, bool) {
	if r.err == nil || !r.err.InStep() {
		return 0, false
	}
	return r.err.Step, true
}

func (r *Run) start() error {
	if r.state != Idle {
		return fmt.Errorf("run %s is %s, not Idle", r.id, r.state)
	}
	r.state = Running
	r.startedAt = time.Now().UTC()
	return nil
}

func (r *Run) complete(t *table.Table) {
	r.current = t
	r.state = Completed
	r.finishedAt = time.Now().UTC()
}

func (r *Run) fail(err *domain.Error) {
	r.current = nil
	r.err = err
	r.state = Failed
	r.finishedAt = time.Now().UTC()
}
