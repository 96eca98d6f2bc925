package frame

import (
	"fmt"
	"iter"
	"reflect"
	"time"
)

// Column is a named, typed sequence of values. A nil entry is a missing
// value. Columns are not modified after construction.
type Column struct {
	name   string
	typ    Type
	values []any
}

// NewColumn coerces values to typ and returns the column. A missing value
// in a non-nullable column makes the column nullable.
func NewColumn(name string, typ Type, values []any) (*Column, error) {
	out := make([]any, len(values))
	for i, v := range values {
		c, err := Coerce(typ.Kind, v)
		if err != nil {
			return nil, fmt.Errorf("column %q row %d: %w", name, i, err)
		}
		if c == nil {
			typ.Nullable = true
		}
		out[i] = c
	}
	return &Column{name: name, typ: typ, values: out}, nil
}

// InferColumn builds a column whose type is inferred from its values:
// homogeneous scalars get a static kind, integers mixed with floats widen to
// Float64, and everything else (lists, mixed types, all-missing) is Dynamic.
func InferColumn(name string, values []any) *Column {
	kind := InferKind(values)
	typ := Of(kind)
	if kind == Utf8 {
		typ.Nullable = true
	}
	c, err := NewColumn(name, typ, values)
	if err != nil {
		// Inference only picks kinds every value converts to; fall back
		// to Dynamic if a conversion still fails.
		c, _ = NewColumn(name, Of(Dynamic), values)
	}
	return c
}

// InferKind returns the narrowest kind able to hold every non-missing value.
func InferKind(values []any) Kind {
	var seen Kind
	found := false
	for _, v := range values {
		if IsMissing(v) {
			continue
		}
		k := valueKind(Normalize(v))
		if !found {
			seen, found = k, true
			continue
		}
		if k == seen {
			continue
		}
		switch {
		case k.IsNumeric() && seen.IsNumeric():
			seen = widen(seen, k)
		default:
			return Dynamic
		}
	}
	if !found {
		return Dynamic
	}
	return seen
}

func valueKind(v any) Kind {
	switch v.(type) {
	case int64:
		return Int64
	case int32:
		return Int32
	case float64:
		return Float64
	case float32:
		return Float32
	case string:
		return Utf8
	case bool:
		return Bool
	case time.Time:
		return Timestamp
	}
	return Dynamic
}

func widen(a, b Kind) Kind {
	switch {
	case a.IsFloat() || b.IsFloat():
		if a == Float32 && b == Float32 {
			return Float32
		}
		return Float64
	case a == Int32 && b == Int32:
		return Int32
	}
	return Int64
}

// Name returns the column name.
func (c *Column) Name() string { return c.name }

// Type returns the column's native type.
func (c *Column) Type() Type { return c.typ }

// Len returns the number of rows.
func (c *Column) Len() int { return len(c.values) }

// Value returns the value at row i; nil if missing.
func (c *Column) Value(i int) any { return c.values[i] }

// Values returns a copy of the column values.
func (c *Column) Values() []any {
	out := make([]any, len(c.values))
	copy(out, c.values)
	return out
}

// IsMissing reports whether row i is missing.
func (c *Column) IsMissing(i int) bool { return IsMissing(c.values[i]) }

// Valid yields the non-missing values in row order. The sequence can be
// ranged over any number of times and always restarts at the first row.
func (c *Column) Valid() iter.Seq[any] {
	return func(yield func(any) bool) {
		for _, v := range c.values {
			if IsMissing(v) {
				continue
			}
			if !yield(v) {
				return
			}
		}
	}
}

// FirstValid returns the first non-missing value.
func (c *Column) FirstValid() (any, bool) {
	for v := range c.Valid() {
		return v, true
	}
	return nil, false
}

// Cast converts the column to typ. Casting to Dynamic keeps the values.
func (c *Column) Cast(typ Type) (*Column, error) {
	if c.typ.Kind == typ.Kind {
		out := *c
		out.typ.Nullable = c.typ.Nullable || typ.Nullable
		return &out, nil
	}
	out, err := NewColumn(c.name, typ, c.values)
	if err != nil {
		return nil, fmt.Errorf("cast %s to %s: %w", c.typ, typ, err)
	}
	return out, nil
}

// Rename returns a copy of the column under a new name.
func (c *Column) Rename(name string) *Column {
	out := *c
	out.name = name
	return &out
}

// Take returns a column holding the rows at the given positions; a negative
// position produces a missing value.
func (c *Column) Take(rows []int) *Column {
	out := make([]any, len(rows))
	typ := c.typ
	for i, r := range rows {
		if r < 0 {
			typ.Nullable = true
			continue
		}
		out[i] = c.values[r]
	}
	return &Column{name: c.name, typ: typ, values: out}
}

// Equal reports whether two columns have the same name, element kind and
// values. Nullability is not compared.
func (c *Column) Equal(o *Column) bool {
	if c.name != o.name || c.typ.Kind != o.typ.Kind || len(c.values) != len(o.values) {
		return false
	}
	for i := range c.values {
		if !ValuesEqual(c.values[i], o.values[i]) {
			return false
		}
	}
	return true
}

// ValuesEqual compares two cell values. Missing values are equal to each
// other and timestamps compare by instant.
func ValuesEqual(a, b any) bool {
	am, bm := IsMissing(a), IsMissing(b)
	if am || bm {
		return am && bm
	}
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	return reflect.DeepEqual(a, b)
}
