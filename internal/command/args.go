package command

import (
	"fmt"
	"slices"
	"sync"

	"ppexec/internal/domain"
	"ppexec/internal/frame"
	"ppexec/internal/table"
)

// Value is one resolved argument: a scalar or a table produced by a
// subsearch. Table values are computed on first use.
type Value struct {
	raw   any
	table func() (*table.Table, error)
}

// Scalar wraps a scalar argument value.
func Scalar(v any) Value { return Value{raw: frame.Normalize(v)} }

// TableOf wraps an already materialized table.
func TableOf(t *table.Table) Value {
	return Value{table: func() (*table.Table, error) { return t, nil }}
}

// LazyTable wraps a table that is computed by resolve the first time it is
// asked for. Later calls return the same result.
func LazyTable(resolve func() (*table.Table, error)) Value {
	return Value{table: sync.OnceValues(resolve)}
}

// IsTable reports whether v holds a table.
func (v Value) IsTable() bool { return v.table != nil }

// Table returns the table held by v, running its subsearch if needed.
func (v Value) Table() (*table.Table, error) {
	if v.table == nil {
		return nil, fmt.Errorf("argument is a scalar, not a table")
	}
	return v.table()
}

// Raw returns the scalar value, nil for tables.
func (v Value) Raw() any { return v.raw }

// String renders the scalar as a string. Missing values render empty.
func (v Value) String() string {
	if v.raw == nil {
		return ""
	}
	s, _ := frame.Coerce(frame.Utf8, v.raw)
	return s.(string)
}

// Int converts the scalar to an int64.
func (v Value) Int() (int64, error) {
	n, err := frame.Coerce(frame.Int64, v.raw)
	if err != nil {
		return 0, err
	}
	if n == nil {
		return 0, fmt.Errorf("missing value")
	}
	return n.(int64), nil
}

// Float converts the scalar to a float64.
func (v Value) Float() (float64, error) {
	f, err := frame.Coerce(frame.Float64, v.raw)
	if err != nil {
		return 0, err
	}
	if f == nil {
		return 0, fmt.Errorf("missing value")
	}
	return f.(float64), nil
}

// Bool converts the scalar to a bool.
func (v Value) Bool() (bool, error) {
	b, err := frame.Coerce(frame.Bool, v.raw)
	if err != nil {
		return false, err
	}
	if b == nil {
		return false, fmt.Errorf("missing value")
	}
	return b.(bool), nil
}

// Args is the argument view a unit factory receives.
type Args interface {
	// Get returns the first value bound to name.
	Get(name string) (Value, bool)
	// All returns every value bound to name in declaration order.
	All(name string) []Value
}

type argMap map[string][]Value

// NewArgs builds an argument view over raw.
func NewArgs(raw map[string][]Value) Args {
	out := make(argMap, len(raw))
	for k, vs := range raw {
		out[k] = slices.Clone(vs)
	}
	return out
}

func (a argMap) Get(name string) (Value, bool) {
	vs := a[name]
	if len(vs) == 0 {
		return Value{}, false
	}
	return vs[0], true
}

func (a argMap) All(name string) []Value { return slices.Clone(a[name]) }

// Bind checks raw against the unit's syntax and returns the argument view.
// Keyword arguments supplied under their rule key are moved to the rule
// name. Missing required arguments, repeated non-variadic arguments and
// scalar values for subsearch rules fail with InvalidArgument.
func Bind(unit string, syntax Syntax, raw map[string][]Value) (Args, error) {
	out := NewArgs(raw).(argMap)
	for _, r := range syntax.Rules {
		if r.Key != "" && r.Key != r.Name {
			if vs, ok := out[r.Key]; ok {
				out[r.Name] = append(out[r.Name], vs...)
				delete(out, r.Key)
			}
		}
		vs := out[r.Name]
		if r.Required && len(vs) == 0 {
			return nil, domain.ErrInvalidArgument(unit, "missing required argument %q", r.Name)
		}
		if len(vs) > 1 && !r.Inf {
			return nil, domain.ErrInvalidArgument(unit, "argument %q given %d times", r.Name, len(vs))
		}
		for _, v := range vs {
			if (r.Type == RuleSubsearch) != v.IsTable() {
				if v.IsTable() {
					return nil, domain.ErrInvalidArgument(unit, "argument %q does not take a subsearch", r.Name)
				}
				return nil, domain.ErrInvalidArgument(unit, "argument %q must be a subsearch", r.Name)
			}
		}
	}
	return out, nil
}

// RequireString returns the named argument as a non-empty string.
func RequireString(unit string, args Args, name string) (string, error) {
	v, ok := args.Get(name)
	if !ok || v.String() == "" {
		return "", domain.ErrInvalidArgument(unit, "missing required argument %q", name)
	}
	return v.String(), nil
}

// OptionalString returns the named argument or def when it is absent.
func OptionalString(args Args, name, def string) string {
	v, ok := args.Get(name)
	if !ok || v.Raw() == nil {
		return def
	}
	return v.String()
}

// Strings collects the string form of every value bound to the given names
// in order.
func Strings(args Args, names ...string) []string {
	var out []string
	for _, n := range names {
		for _, v := range args.All(n) {
			out = append(out, v.String())
		}
	}
	return out
}
