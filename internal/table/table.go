// Package table attaches schema state to a frame: per-field dialect type
// overrides and the initial schema recorded when the frame was built or
// loaded. Together they decide the DDL a table is persisted with.
package table

import (
	"maps"

	"ppexec/internal/ddl"
	"ppexec/internal/frame"
)

// Table is the value threaded through a pipeline.
type Table struct {
	frame     *frame.Frame
	overrides map[string]string
	initial   map[string]string
}

// New wraps f and records its initial schema. Columns whose type cannot be
// derived yet are left out of the initial schema.
func New(f *frame.Frame) *Table {
	t := &Table{
		frame:     f,
		overrides: make(map[string]string),
		initial:   make(map[string]string),
	}
	for _, c := range f.Columns() {
		if dialect, err := t.fieldDialect(c); err == nil {
			t.initial[c.Name()] = dialect
		}
	}
	return t
}

// Frame returns the underlying frame. Units may modify it in place; the
// table's overrides and initial schema stay attached.
func (t *Table) Frame() *frame.Frame { return t.frame }

// Len returns the number of rows.
func (t *Table) Len() int { return t.frame.Len() }

// AddOverride pins field to dialect for every later schema derivation on
// this table. Adding the same override again has no effect.
func (t *Table) AddOverride(field, dialect string) error {
	if _, err := ddl.ParseField(ddl.FormatField(field, dialect)); err != nil {
		return err
	}
	t.overrides[field] = dialect
	return nil
}

// Overrides returns a copy of the overrides.
func (t *Table) Overrides() map[string]string { return maps.Clone(t.overrides) }

// InitialSchema returns a copy of the initial schema.
func (t *Table) InitialSchema() map[string]string { return maps.Clone(t.initial) }

// SeedInitialSchema replaces the initial schema with dialect types read from
// a persisted schema.
func (t *Table) SeedInitialSchema(dialect map[string]string) {
	t.initial = maps.Clone(dialect)
	if t.initial == nil {
		t.initial = make(map[string]string)
	}
}

// Derive wraps f, a frame computed from t's frame, keeping t's overrides and
// initial schema for the columns f still has.
func (t *Table) Derive(f *frame.Frame) *Table {
	out := &Table{
		frame:     f,
		overrides: make(map[string]string),
		initial:   make(map[string]string),
	}
	for _, name := range f.Names() {
		if o, ok := t.overrides[name]; ok {
			out.overrides[name] = o
		}
		if i, ok := t.initial[name]; ok {
			out.initial[name] = i
		}
	}
	return out
}
