// Package builtin provides the transformation units compiled into the
// binary. Plugins may replace any of them by name.
package builtin

import (
	"fmt"
	"log/slog"

	"ppexec/internal/command"
	"ppexec/internal/domain"
	"ppexec/internal/table"
)

// Options configures the builtin units.
type Options struct {
	// TempDir holds the scratch files the sql unit hands to DuckDB. Empty
	// selects the system temp directory.
	TempDir string
	// Threads caps DuckDB worker threads. Zero leaves DuckDB's default.
	Threads int
	Logger  *slog.Logger
}

type unitDef struct {
	name    string
	syntax  command.Syntax
	factory func(opts Options) command.Factory
}

var units = []unitDef{
	{"sum", sumSyntax, func(Options) command.Factory { return newSum }},
	{"join", joinSyntax, func(Options) command.Factory { return newJoin }},
	{"sql", sqlSyntax, newSQLFactory},
	{"override", overrideSyntax, func(Options) command.Factory { return newOverride }},
	{"head", headSyntax, func(Options) command.Factory { return newHead }},
	{"select", selectSyntax, func(Options) command.Factory { return newSelect }},
}

// Register adds every builtin unit to reg.
func Register(reg *command.Registry, opts Options) error {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	for _, u := range units {
		if err := reg.Register(u.name, u.syntax, u.factory(opts)); err != nil {
			return fmt.Errorf("register %s: %w", u.name, err)
		}
	}
	return nil
}

// Names lists the builtin unit names.
func Names() []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = u.name
	}
	return out
}

func requireInput(unit string, in *table.Table) error {
	if in == nil {
		return domain.ErrInvalidArgument(unit, "no input table")
	}
	return nil
}
