package command

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"

	"ppexec/internal/domain"
	"ppexec/internal/storage"
)

// Registry maps unit names to entries. The system units are registered at
// construction and can never be replaced.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]Entry
	names    SystemNames
	reserved map[string]struct{}
	logger   *slog.Logger
}

// NewRegistry creates a registry holding the three system units bound to
// store.
func NewRegistry(store *storage.Store, names SystemNames, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	names = names.withDefaults()
	r := &Registry{
		entries:  make(map[string]Entry),
		names:    names,
		reserved: make(map[string]struct{}),
		logger:   logger.With("component", "registry"),
	}
	for _, e := range systemEntries(store, names) {
		r.entries[e.Name] = e
		r.reserved[e.Name] = struct{}{}
	}
	return r
}

// SystemNames returns the names the system units were registered under.
func (r *Registry) SystemNames() SystemNames { return r.names }

// IsReserved reports whether name belongs to a system unit.
func (r *Registry) IsReserved(name string) bool {
	_, ok := r.reserved[name]
	return ok
}

// Register adds a Go unit. Registering a system name or registering the
// same builtin name twice fails.
func (r *Registry) Register(name string, syntax Syntax, factory Factory) error {
	return r.add(Entry{Name: name, Syntax: syntax, Factory: factory, Source: SourceBuiltin})
}

func (r *Registry) add(e Entry) error {
	if e.Name == "" {
		return domain.ErrInvalidArgument("", "unit name is empty")
	}
	if e.Factory == nil {
		return domain.ErrInvalidArgument(e.Name, "unit has no factory")
	}
	if err := e.Syntax.Validate(); err != nil {
		return domain.ErrInvalidArgument(e.Name, "%v", err)
	}
	if r.IsReserved(e.Name) {
		return domain.ErrInvalidArgument(e.Name, "%q is reserved for a system unit", e.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.entries[e.Name]; ok {
		if prev.Source == SourceBuiltin && e.Source == SourceBuiltin {
			return domain.ErrInvalidArgument(e.Name, "unit %q already registered", e.Name)
		}
		r.logger.Warn("unit replaced", "unit", e.Name, "previous", prev.Source, "source", e.Source, "origin", e.Origin)
	}
	r.entries[e.Name] = e
	return nil
}

// Lookup returns the entry registered under name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Names returns the registered unit names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Entries returns all entries sorted by name.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entry) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// LoadPlugins discovers plugin units under dir and registers them in
// directory order. Skipped plugins are logged and returned. It returns the
// number of units registered.
func (r *Registry) LoadPlugins(ctx context.Context, dir string, opts LoadOptions) (int, []Diagnostic, error) {
	opts.Reserved = append(opts.Reserved, r.names.Reserved()...)
	plugins, diags, err := Load(ctx, dir, opts)
	if err != nil {
		return 0, nil, fmt.Errorf("load plugins: %w", err)
	}

	loaded := 0
	for _, p := range plugins {
		if err := r.add(p); err != nil {
			diags = append(diags, Diagnostic{Dir: p.Origin, Reason: err.Error()})
			continue
		}
		loaded++
	}
	for _, d := range diags {
		r.logger.WarnContext(ctx, "plugin skipped", "dir", d.Dir, "reason", d.Reason)
	}
	r.logger.InfoContext(ctx, "plugins loaded", "dir", dir, "loaded", loaded, "skipped", len(diags))
	return loaded, diags, nil
}
