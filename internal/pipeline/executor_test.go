package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ppexec/internal/command"
	"ppexec/internal/command/builtin"
	"ppexec/internal/domain"
	"ppexec/internal/frame"
	"ppexec/internal/storage"
	"ppexec/internal/table"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type fixture struct {
	store *storage.Store
	reg   *command.Registry
	roots storage.Roots
	calls map[string]int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	roots := storage.Roots{
		Local:        filepath.Join(dir, "lpp"),
		Shared:       filepath.Join(dir, "spp"),
		InterProcess: filepath.Join(dir, "ips"),
	}
	store := storage.New(roots, storage.DefaultLayout(), discardLogger())
	reg := command.NewRegistry(store, command.DefaultSystemNames(), discardLogger())
	require.NoError(t, builtin.Register(reg, builtin.Options{TempDir: t.TempDir(), Logger: discardLogger()}))

	fx := &fixture{store: store, reg: reg, roots: roots, calls: map[string]int{}}
	none := command.Syntax{}
	register := func(name string, fn func(in *table.Table) (*table.Table, error)) {
		require.NoError(t, reg.Register(name, none, func(command.Args) (command.Unit, error) {
			return command.UnitFunc(func(_ context.Context, in *table.Table) (*table.Table, error) {
				fx.calls[name]++
				return fn(in)
			}), nil
		}))
	}
	register("make", func(*table.Table) (*table.Table, error) {
		return tableOf(t, []string{"x"}, [][]any{{1}, {2}}), nil
	})
	register("nothing", func(*table.Table) (*table.Table, error) { return nil, nil })
	register("boom", func(*table.Table) (*table.Table, error) { panic("kaboom") })
	register("pass", func(in *table.Table) (*table.Table, error) { return in, nil })
	return fx
}

func tableOf(t *testing.T, names []string, rows [][]any) *table.Table {
	t.Helper()
	f, err := frame.FromRows(names, rows)
	require.NoError(t, err)
	return table.New(f)
}

// step builds a step from key/value pairs; []domain.Step values become
// subsearch arguments.
func step(name string, kv ...any) domain.Step {
	s := domain.Step{Name: name, Arguments: map[string][]domain.Argument{}}
	for i := 0; i < len(kv); i += 2 {
		key := kv[i].(string)
		arg := domain.Argument{Key: key}
		if sub, ok := kv[i+1].([]domain.Step); ok {
			arg.Type = domain.ArgumentTypeSubsearch
			arg.Subsearch = sub
		} else {
			arg.Value = kv[i+1]
		}
		s.Arguments[key] = append(s.Arguments[key], arg)
	}
	return s
}

func seedInterProc(t *testing.T, fx *fixture) {
	t.Helper()
	ctx := context.Background()
	input := tableOf(t, []string{"a", "b", "c"}, [][]any{{1, 2, "a"}, {2, 3, "b"}, {3, 4, "c"}})
	join := tableOf(t, []string{"a", "d"}, [][]any{{1, 2.20}, {2, 3.14}, {3, 15.60}})
	require.NoError(t, fx.store.Write(ctx, domain.StorageInterProcess, "input_data", storage.Columnar, input))
	require.NoError(t, fx.store.Write(ctx, domain.StorageInterProcess, "join_data", storage.Columnar, join))
}

func readStep(path string) domain.Step {
	return step("sys_read_interproc", "path", path, "storage_type", "INTERPROCESSING")
}

func TestExecutor_FullPipeline(t *testing.T) {
	fx := newFixture(t)
	seedInterProc(t, fx)
	exec := NewExecutor(fx.reg, WithLogger(discardLogger()))

	steps := []domain.Step{
		readStep("input_data"),
		step("join", "field", "a", "jdf", []domain.Step{readStep("join_data")}),
		step("sys_write_result", "path", "output_data", "storage_type", "LOCAL_POST_PROCESSING"),
		step("sys_write_interproc", "path", "output_data"),
		readStep("output_data"),
	}
	r, err := exec.Execute(context.Background(), steps, "")
	require.NoError(t, err)
	assert.Equal(t, Completed, r.State())
	assert.Equal(t, domain.TriggerManual, r.Trigger())

	want := tableOf(t, []string{"a", "b", "c", "d"}, [][]any{
		{1, 2, "a", 2.20},
		{2, 3, "b", 3.14},
		{3, 4, "c", 15.60},
	})
	got := r.Table()
	require.NotNil(t, got)
	assert.True(t, want.Frame().Equal(got.Frame()), "got %v", got.Frame().Records())
	assert.Equal(t, storage.IndexName, got.Frame().IndexName())

	assert.DirExists(t, filepath.Join(fx.roots.InterProcess, "output_data", "parquet"))
	assert.DirExists(t, filepath.Join(fx.roots.Local, "output_data", "jsonl"))
	_, err = os.Stat(filepath.Join(fx.roots.Local, "output_data", "parquet"))
	assert.True(t, os.IsNotExist(err))
}

func TestExecutor_SumBeforeJoin(t *testing.T) {
	fx := newFixture(t)
	seedInterProc(t, fx)
	exec := NewExecutor(fx.reg, WithLogger(discardLogger()))

	sum := step("sum", "col", "a", "cols", "b")
	sum.Arguments["name"] = []domain.Argument{{Key: "name", Value: "e"}}
	steps := []domain.Step{
		readStep("input_data"),
		sum,
		step("join", "field", "a", "jdf", []domain.Step{readStep("join_data")}),
	}
	r, err := exec.Execute(context.Background(), steps, domain.TriggerAPI)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c", "e", "d"}, r.Table().Frame().Names())
	e, ok := r.Table().Frame().Column("e")
	require.True(t, ok)
	assert.Equal(t, []any{int64(3), int64(5), int64(7)}, e.Values())
}

func TestExecutor_AbortsAtFailingStep(t *testing.T) {
	tests := []struct {
		name     string
		failing  string
		wantKind domain.ErrorKind
	}{
		{name: "no table returned", failing: "nothing", wantKind: domain.KindInvalidTransformResult},
		{name: "unknown command", failing: "does_not_exist", wantKind: domain.KindUnknownCommand},
		{name: "panic", failing: "boom", wantKind: domain.KindOther},
		{name: "bad argument", failing: "head", wantKind: domain.KindInvalidArgument},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture(t)
			exec := NewExecutor(fx.reg, WithLogger(discardLogger()))

			middle := step(tc.failing)
			if tc.failing == "head" {
				middle = step("head", "count", "lots")
			}
			r, err := exec.Execute(context.Background(), []domain.Step{step("make"), middle, step("pass")}, "")
			require.Error(t, err)

			assert.Equal(t, Failed, r.State())
			assert.Nil(t, r.Table())
			assert.True(t, domain.IsKind(err, tc.wantKind), "got %v", err)
			idx, ok := r.FailedStep()
			require.True(t, ok)
			assert.Equal(t, 1, idx)
			assert.Equal(t, 1, fx.calls["make"])
			assert.Zero(t, fx.calls["pass"], "steps after the failure must not run")

			var derr *domain.Error
			require.ErrorAs(t, err, &derr)
			assert.Equal(t, tc.failing, derr.Command)
		})
	}
}

func TestExecutor_SubsearchFailure(t *testing.T) {
	fx := newFixture(t)
	seedInterProc(t, fx)
	exec := NewExecutor(fx.reg, WithLogger(discardLogger()))

	steps := []domain.Step{
		readStep("input_data"),
		step("join", "field", "a", "jdf", []domain.Step{readStep("missing")}),
	}
	r, err := exec.Execute(context.Background(), steps, "")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindStorageNotFound), "got %v", err)
	idx, ok := r.FailedStep()
	require.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestExecutor_EmptyPipeline(t *testing.T) {
	fx := newFixture(t)
	r, err := NewExecutor(fx.reg, WithLogger(discardLogger())).Execute(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Equal(t, Completed, r.State())
	assert.Nil(t, r.Table())
}

func TestExecutor_RunOnlyOnce(t *testing.T) {
	fx := newFixture(t)
	exec := NewExecutor(fx.reg, WithLogger(discardLogger()))
	r := NewRun([]domain.Step{step("make")}, "")
	assert.Equal(t, Idle, r.State())
	require.NoError(t, exec.Run(context.Background(), r))
	assert.Error(t, exec.Run(context.Background(), r))
	assert.Equal(t, 1, fx.calls["make"])
}

func TestExecutor_RestoresThreads(t *testing.T) {
	fx := newFixture(t)
	before := runtime.GOMAXPROCS(0)
	exec := NewExecutor(fx.reg, WithThreads(1), WithLogger(discardLogger()))
	_, err := exec.Execute(context.Background(), []domain.Step{step("make")}, "")
	require.NoError(t, err)
	assert.Equal(t, before, runtime.GOMAXPROCS(0))
}

type memJournal struct {
	mu    sync.Mutex
	runs  map[string]*domain.PipelineRun
	steps []domain.StepRun
}

func newMemJournal() *memJournal {
	return &memJournal{runs: map[string]*domain.PipelineRun{}}
}

func (m *memJournal) CreateRun(_ context.Context, run *domain.PipelineRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *memJournal) FinishRun(_ context.Context, id, status string, failedStep *int, errMsg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return domain.ErrNotFound("run %s", id)
	}
	r.Status, r.FailedStep, r.ErrorMessage = status, failedStep, errMsg
	return nil
}

func (m *memJournal) StartStep(_ context.Context, sr *domain.StepRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, *sr)
	return nil
}

func (m *memJournal) FinishStep(_ context.Context, runID string, index int, status string, rowsOut *int64, errMsg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.steps {
		if m.steps[i].RunID == runID && m.steps[i].StepIndex == index {
			m.steps[i].Status, m.steps[i].RowsOut, m.steps[i].ErrorMessage = status, rowsOut, errMsg
			return nil
		}
	}
	return domain.ErrNotFound("step %d", index)
}

func (m *memJournal) GetRun(_ context.Context, id string) (*domain.PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, domain.ErrNotFound("run %s", id)
	}
	return r, nil
}

func (m *memJournal) ListRuns(context.Context, int) ([]domain.PipelineRun, error) { return nil, nil }

func (m *memJournal) ListStepRuns(context.Context, string) ([]domain.StepRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.StepRun(nil), m.steps...), nil
}

func TestExecutor_Journal(t *testing.T) {
	t.Run("failed run", func(t *testing.T) {
		fx := newFixture(t)
		j := newMemJournal()
		exec := NewExecutor(fx.reg, WithJournal(j), WithLogger(discardLogger()))

		r, err := exec.Execute(context.Background(), []domain.Step{step("make"), step("nothing"), step("pass")}, domain.TriggerAPI)
		require.Error(t, err)

		rec, err := j.GetRun(context.Background(), r.ID())
		require.NoError(t, err)
		assert.Equal(t, domain.RunStatusFailed, rec.Status)
		assert.Equal(t, domain.TriggerAPI, rec.Trigger)
		require.NotNil(t, rec.FailedStep)
		assert.Equal(t, 1, *rec.FailedStep)
		require.NotNil(t, rec.ErrorMessage)
		assert.Contains(t, *rec.ErrorMessage, "InvalidTransformResult")

		steps, _ := j.ListStepRuns(context.Background(), r.ID())
		require.Len(t, steps, 2)
		assert.Equal(t, domain.StepStatusSuccess, steps[0].Status)
		require.NotNil(t, steps[0].RowsOut)
		assert.Equal(t, int64(2), *steps[0].RowsOut)
		assert.Equal(t, domain.StepStatusFailed, steps[1].Status)
	})

	t.Run("subsearch steps are not journaled", func(t *testing.T) {
		fx := newFixture(t)
		seedInterProc(t, fx)
		j := newMemJournal()
		exec := NewExecutor(fx.reg, WithJournal(j), WithLogger(discardLogger()))

		r, err := exec.Execute(context.Background(), []domain.Step{
			readStep("input_data"),
			step("join", "field", "a", "jdf", []domain.Step{readStep("join_data")}),
		}, "")
		require.NoError(t, err)

		rec, _ := j.GetRun(context.Background(), r.ID())
		assert.Equal(t, domain.RunStatusSuccess, rec.Status)
		assert.Nil(t, rec.FailedStep)
		steps, _ := j.ListStepRuns(context.Background(), r.ID())
		assert.Len(t, steps, 2)
	})
}
