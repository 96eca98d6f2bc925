package frame

import (
	"fmt"
	"slices"
)

// Frame is an ordered set of equally long named columns plus a row index.
type Frame struct {
	columns   []*Column
	index     []int64
	indexName string
}

// New builds a frame from columns, which must share one length and have
// unique names. The index is the 0-based row position.
func New(columns ...*Column) (*Frame, error) {
	f := &Frame{}
	for _, c := range columns {
		if _, ok := f.Column(c.Name()); ok {
			return nil, fmt.Errorf("duplicate column %q", c.Name())
		}
		if err := f.SetColumn(c); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// FromRows builds a frame from row-major data, inferring each column type.
func FromRows(names []string, rows [][]any) (*Frame, error) {
	cols := make([]*Column, len(names))
	for j, name := range names {
		values := make([]any, len(rows))
		for i, row := range rows {
			if len(row) != len(names) {
				return nil, fmt.Errorf("row %d has %d values, want %d", i, len(row), len(names))
			}
			values[i] = row[j]
		}
		cols[j] = InferColumn(name, values)
	}
	return New(cols...)
}

// FromRecords builds a frame from maps keyed by column name. Keys missing
// from a record become missing values.
func FromRecords(names []string, records []map[string]any) (*Frame, error) {
	rows := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(names))
		for j, name := range names {
			row[j] = rec[name]
		}
		rows[i] = row
	}
	return FromRows(names, rows)
}

func rangeIndex(n int) []int64 {
	idx := make([]int64, n)
	for i := range idx {
		idx[i] = int64(i)
	}
	return idx
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.index) }

// Width returns the number of columns.
func (f *Frame) Width() int { return len(f.columns) }

// Names returns the column names in order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.columns))
	for i, c := range f.columns {
		names[i] = c.Name()
	}
	return names
}

// Columns returns the columns in order.
func (f *Frame) Columns() []*Column { return slices.Clone(f.columns) }

// Column looks up a column by name.
func (f *Frame) Column(name string) (*Column, bool) {
	i := f.position(name)
	if i < 0 {
		return nil, false
	}
	return f.columns[i], true
}

func (f *Frame) position(name string) int {
	return slices.IndexFunc(f.columns, func(c *Column) bool { return c.Name() == name })
}

// Index returns a copy of the row index.
func (f *Frame) Index() []int64 { return slices.Clone(f.index) }

// IndexName returns the name of the row index.
func (f *Frame) IndexName() string { return f.indexName }

// SetIndexName names the row index.
func (f *Frame) SetIndexName(name string) { f.indexName = name }

// ResetIndex replaces the index with 0-based row positions.
func (f *Frame) ResetIndex() { f.index = rangeIndex(f.Len()) }

// SetColumn replaces the column with the same name or appends c. The first
// column added to an empty frame fixes the row count.
func (f *Frame) SetColumn(c *Column) error {
	if len(f.columns) == 0 && len(f.index) == 0 {
		f.index = rangeIndex(c.Len())
	}
	if c.Len() != f.Len() {
		return fmt.Errorf("column %q has %d rows, frame has %d", c.Name(), c.Len(), f.Len())
	}
	if i := f.position(c.Name()); i >= 0 {
		f.columns[i] = c
		return nil
	}
	f.columns = append(f.columns, c)
	return nil
}

// Drop removes the named columns.
func (f *Frame) Drop(names ...string) error {
	for _, name := range names {
		i := f.position(name)
		if i < 0 {
			return fmt.Errorf("column %q not found", name)
		}
		f.columns = slices.Delete(f.columns, i, i+1)
	}
	return nil
}

// Select returns a new frame with the named columns in the given order.
func (f *Frame) Select(names ...string) (*Frame, error) {
	out := &Frame{index: slices.Clone(f.index), indexName: f.indexName}
	for _, name := range names {
		c, ok := f.Column(name)
		if !ok {
			return nil, fmt.Errorf("column %q not found", name)
		}
		if _, dup := out.Column(name); dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		out.columns = append(out.columns, c)
	}
	return out, nil
}

// Take returns the rows at the given positions, keeping their index labels.
func (f *Frame) Take(rows []int) *Frame {
	out := &Frame{index: make([]int64, len(rows)), indexName: f.indexName}
	for i, r := range rows {
		out.index[i] = f.index[r]
	}
	for _, c := range f.columns {
		out.columns = append(out.columns, c.Take(rows))
	}
	return out
}

// Head returns the first n rows.
func (f *Frame) Head(n int) *Frame {
	n = max(0, min(n, f.Len()))
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return f.Take(rows)
}

// Row returns the values of row i in column order.
func (f *Frame) Row(i int) []any {
	row := make([]any, len(f.columns))
	for j, c := range f.columns {
		row[j] = c.Value(i)
	}
	return row
}

// Records returns every row as a map keyed by column name.
func (f *Frame) Records() []map[string]any {
	out := make([]map[string]any, f.Len())
	for i := range out {
		rec := make(map[string]any, len(f.columns))
		for _, c := range f.columns {
			rec[c.Name()] = c.Value(i)
		}
		out[i] = rec
	}
	return out
}

// Clone returns a frame sharing the immutable columns but with its own
// column list and index.
func (f *Frame) Clone() *Frame {
	return &Frame{
		columns:   slices.Clone(f.columns),
		index:     slices.Clone(f.index),
		indexName: f.indexName,
	}
}

// Equal reports whether two frames have the same columns, values and index
// labels. Index names and nullability are ignored.
func (f *Frame) Equal(o *Frame) bool {
	if f.Len() != o.Len() || f.Width() != o.Width() || !slices.Equal(f.index, o.index) {
		return false
	}
	for i, c := range f.columns {
		if !c.Equal(o.columns[i]) {
			return false
		}
	}
	return true
}
