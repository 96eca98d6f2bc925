// Package command holds the transformation-unit registry: the three system
// units bound to storage roots, explicitly registered Go units and units
// discovered from a Starlark plugin directory.
package command

import (
	"context"

	"ppexec/internal/table"
)

// Unit transforms one table into the next. A nil input means the unit is
// the first step of a pipeline (or sub-pipeline).
type Unit interface {
	Transform(ctx context.Context, in *table.Table) (*table.Table, error)
}

// UnitFunc adapts a function to Unit.
type UnitFunc func(ctx context.Context, in *table.Table) (*table.Table, error)

// Transform calls f.
func (f UnitFunc) Transform(ctx context.Context, in *table.Table) (*table.Table, error) {
	return f(ctx, in)
}

// Factory builds a unit for one step from its bound arguments.
type Factory func(args Args) (Unit, error)

// Source records where a registry entry came from.
type Source string

const (
	SourceSystem  Source = "system"
	SourceBuiltin Source = "builtin"
	SourcePlugin  Source = "plugin"
)

// Entry is one registered unit.
type Entry struct {
	Name    string  `json:"name"`
	Syntax  Syntax  `json:"syntax"`
	Source  Source  `json:"source"`
	Origin  string  `json:"origin,omitempty"`
	Factory Factory `json:"-"`
}
