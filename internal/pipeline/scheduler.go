package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/robfig/cron/v3"

	"ppexec/internal/domain"
)

// Schedule runs the step list stored at Pipeline on a cron expression.
type Schedule struct {
	Name     string
	Cron     string
	Pipeline string
}

// Scheduler manages cron-based pipeline execution.
type Scheduler struct {
	cron    *cron.Cron
	exec    *Executor
	logger  *slog.Logger
	mu      sync.Mutex
	entries map[string]cron.EntryID // schedule name → cron entry
	load    func(path string) ([]domain.Step, error)
}

// NewScheduler creates a scheduler that runs pipelines on exec.
func NewScheduler(exec *Executor, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:    cron.New(),
		exec:    exec,
		logger:  logger.With("component", "scheduler"),
		entries: make(map[string]cron.EntryID),
		load:    LoadSteps,
	}
}

// Add registers a schedule. The pipeline file is read on every firing so
// edits take effect without a restart.
func (s *Scheduler) Add(sc Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := sc.Name
	if name == "" {
		name = sc.Pipeline
	}
	if _, dup := s.entries[name]; dup {
		return fmt.Errorf("schedule %q already registered", name)
	}

	path := sc.Pipeline
	entryID, err := s.cron.AddFunc(sc.Cron, func() { s.fire(context.Background(), name, path) })
	if err != nil {
		s.logger.Warn("invalid cron schedule", "schedule", name, "cron", sc.Cron, "error", err)
		return fmt.Errorf("schedule %q: %w", name, err)
	}
	s.entries[name] = entryID
	s.logger.Info("scheduled pipeline", "schedule", name, "cron", sc.Cron, "pipeline", path)
	return nil
}

// Entries returns the registered schedule names, sorted.
func (s *Scheduler) Entries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for name := range s.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("pipeline scheduler started", "schedules", len(s.Entries()))
}

// Stop stops the scheduler and waits for running pipelines to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("pipeline scheduler stopped")
}

func (s *Scheduler) fire(ctx context.Context, name, path string) {
	steps, err := s.load(path)
	if err != nil {
		s.logger.Warn("scheduled pipeline unreadable", "schedule", name, "error", err)
		return
	}
	r, err := s.exec.Execute(ctx, steps, domain.TriggerScheduled)
	if err != nil {
		s.logger.Warn("scheduled run failed", "schedule", name, "run_id", r.ID(), "error", err)
	}
}
