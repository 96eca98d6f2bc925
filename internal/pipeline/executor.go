package pipeline

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"ppexec/internal/command"
	"ppexec/internal/domain"
	"ppexec/internal/table"
)

// Executor runs pipelines against a unit registry. Runs on one executor are
// serialized.
type Executor struct {
	registry *command.Registry
	journal  domain.RunRepository
	threads  int
	logger   *slog.Logger

	mu sync.Mutex
}

// Option configures an Executor.
type Option func(*Executor)

// WithJournal records every run and its top-level steps in repo.
func WithJournal(repo domain.RunRepository) Option {
	return func(e *Executor) { e.journal = repo }
}

// WithThreads caps GOMAXPROCS for the duration of each run. Zero or less
// leaves it alone.
func WithThreads(n int) Option {
	return func(e *Executor) { e.threads = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExecutor creates an executor over registry.
func NewExecutor(registry *command.Registry, opts ...Option) *Executor {
	e := &Executor{registry: registry, logger: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	e.logger = e.logger.With("component", "executor")
	return e
}

// Registry returns the registry steps are resolved against.
func (e *Executor) Registry() *command.Registry { return e.registry }

// Execute runs steps in a new run and returns it. The error is the run's
// failure, if any.
func (e *Executor) Execute(ctx context.Context, steps []domain.Step, trigger string) (*Run, error) {
	r := NewRun(steps, trigger)
	return r, e.Run(ctx, r)
}

// Run executes an idle run. The first failing step stops the pipeline; the
// returned error is a *domain.Error naming that step.
func (e *Executor) Run(ctx context.Context, r *Run) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := r.start(); err != nil {
		return err
	}
	restore := limitThreads(e.threads)
	defer restore()

	logger := e.logger.With("run_id", r.id)
	logger.InfoContext(ctx, "pipeline started", "steps", len(r.steps), "trigger", r.trigger)
	e.journalCreate(ctx, r, logger)

	out, err := e.runSteps(ctx, r.id, r.steps, logger, true)
	if err != nil {
		derr := domain.AsError(err, "")
		r.fail(derr)
		logger.ErrorContext(ctx, "pipeline failed",
			"step", derr.Step, "command", derr.Command, "kind", derr.Kind.String(),
			"error", derr.Error(), "duration", r.finishedAt.Sub(r.startedAt))
		e.journalFinish(ctx, r, logger)
		return derr
	}

	r.complete(out)
	rows := 0
	if out != nil {
		rows = out.Len()
	}
	logger.InfoContext(ctx, "pipeline finished", "rows", rows, "duration", r.finishedAt.Sub(r.startedAt))
	e.journalFinish(ctx, r, logger)
	return nil
}

// runSteps threads a table through steps starting from nil. Top-level steps
// are journaled; subsearch steps are not.
func (e *Executor) runSteps(ctx context.Context, runID string, steps []domain.Step, logger *slog.Logger, top bool) (*table.Table, error) {
	var current *table.Table
	for i, step := range steps {
		started := time.Now()
		steplog := logger.With("step", i, "command", step.Name)
		steplog.DebugContext(ctx, "step started")
		if top {
			e.journalStartStep(ctx, runID, i, step.Name, steplog)
		}

		out, err := e.runStep(ctx, runID, step, current, steplog)
		if err != nil {
			stepErr := domain.AsError(err, step.Name).WithStep(i, step.Name)
			if top {
				e.journalFinishStep(ctx, runID, i, nil, stepErr, steplog)
			}
			return nil, stepErr
		}
		current = out

		rows := int64(out.Len())
		if top {
			e.journalFinishStep(ctx, runID, i, &rows, nil, steplog)
		}
		steplog.DebugContext(ctx, "step finished", "rows", rows, "duration", time.Since(started))
	}
	return current, nil
}

func (e *Executor) runStep(ctx context.Context, runID string, step domain.Step, in *table.Table, logger *slog.Logger) (out *table.Table, err error) {
	entry, ok := e.registry.Lookup(step.Name)
	if !ok {
		return nil, domain.ErrUnknownCommand(step.Name)
	}
	args, err := command.Bind(step.Name, entry.Syntax, e.resolveArgs(ctx, runID, step, logger))
	if err != nil {
		return nil, err
	}

	defer func() {
		if p := recover(); p != nil {
			out, err = nil, domain.ErrOther(step.Name, "panic: %v", p)
		}
	}()
	unit, err := entry.Factory(args)
	if err != nil {
		return nil, err
	}
	if unit == nil {
		return nil, domain.ErrOther(step.Name, "factory returned no unit")
	}
	out, err = unit.Transform(ctx, in)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, domain.ErrInvalidTransformResult(step.Name, "transform returned no table")
	}
	return out, nil
}

// resolveArgs turns a step's bindings into argument values. Subsearch
// bindings become tables computed on first use by running their steps as a
// sub-pipeline on this executor.
func (e *Executor) resolveArgs(ctx context.Context, runID string, step domain.Step, logger *slog.Logger) map[string][]command.Value {
	raw := make(map[string][]command.Value, len(step.Arguments))
	for name, bindings := range step.Arguments {
		for _, b := range bindings {
			if b.Type != domain.ArgumentTypeSubsearch {
				raw[name] = append(raw[name], command.Scalar(b.Value))
				continue
			}
			sub := b.Subsearch
			sublog := logger.With("subsearch", name)
			raw[name] = append(raw[name], command.LazyTable(func() (*table.Table, error) {
				return e.runSteps(ctx, runID, sub, sublog, false)
			}))
		}
	}
	return raw
}

// limitThreads sets GOMAXPROCS to n and returns a func restoring the
// previous value.
func limitThreads(n int) func() {
	if n <= 0 {
		return func() {}
	}
	prev := runtime.GOMAXPROCS(n)
	return func() { runtime.GOMAXPROCS(prev) }
}
