package cli

import (
	"context"
	"fmt"
	"log/slog"

	"ppexec/internal/command"
	"ppexec/internal/command/builtin"
	"ppexec/internal/config"
	"ppexec/internal/db"
	"ppexec/internal/db/repository"
	"ppexec/internal/pipeline"
	"ppexec/internal/storage"
)

// app carries the state resolved by the root command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

// systemNames maps the configured system unit names.
func systemNames(cfg *config.Config) command.SystemNames {
	return command.SystemNames{
		ReadInterProc:  cfg.System.ReadInterProcName,
		WriteInterProc: cfg.System.WriteInterProcName,
		WriteResult:    cfg.System.WriteResultName,
		LocalAlias:     cfg.System.LocalStorageAlias,
		SharedAlias:    cfg.System.SharedStorageAlias,
		InterProcAlias: cfg.System.InterProcStorageAlias,
	}
}

func newStore(cfg *config.Config, logger *slog.Logger) *storage.Store {
	return storage.New(storage.Roots{
		Local:        cfg.Storage.Local,
		Shared:       cfg.Storage.Shared,
		InterProcess: cfg.Storage.InterProcess,
	}, storage.Layout{
		DataFile:   cfg.System.DataFileName,
		SchemaFile: cfg.System.SchemaFileName,
	}, logger)
}

// engine is everything a pipeline needs: storage, the unit registry and an
// executor, plus the journal when enabled.
type engine struct {
	store    *storage.Store
	registry *command.Registry
	exec     *pipeline.Executor
	journal  *repository.RunRepo
	pool     *db.Pool
}

func (e *engine) Close() error {
	if e.pool == nil {
		return nil
	}
	return e.pool.Close()
}

// newEngine wires the registry (system units, builtins, then plugins) and
// the executor.
func (a *app) newEngine(ctx context.Context, withJournal bool) (*engine, error) {
	cfg := a.cfg
	e := &engine{store: newStore(cfg, a.logger)}
	e.registry = command.NewRegistry(e.store, systemNames(cfg), a.logger)
	if err := builtin.Register(e.registry, builtin.Options{Threads: cfg.Runtime.Threads, Logger: a.logger}); err != nil {
		return nil, fmt.Errorf("register builtins: %w", err)
	}
	if cfg.Plugins.Dir != "" {
		_, _, err := e.registry.LoadPlugins(ctx, cfg.Plugins.Dir, command.LoadOptions{
			EntryPoint:     cfg.Plugins.EntryPoint,
			FollowSymlinks: cfg.Plugins.FollowSymlinks,
			MaxSteps:       cfg.Plugins.MaxSteps,
		})
		if err != nil {
			return nil, err
		}
	}

	opts := []pipeline.Option{pipeline.WithThreads(cfg.Runtime.Threads), pipeline.WithLogger(a.logger)}
	if withJournal && cfg.Journal.Enabled {
		pool, err := db.OpenJournal(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		e.pool = pool
		e.journal = repository.NewRunRepo(pool.Write, pool.Read)
		opts = append(opts, pipeline.WithJournal(e.journal))
	}
	e.exec = pipeline.NewExecutor(e.registry, opts...)
	return e, nil
}
