package command

import (
	"fmt"
	"sort"
	"time"

	"ppexec/internal/frame"
	"ppexec/internal/table"

	startime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
)

// tableValue exposes a table to plugin code. Mutating methods change the
// wrapped table in place.
type tableValue struct {
	t      *table.Table
	frozen bool
}

var (
	_ starlark.Value    = (*tableValue)(nil)
	_ starlark.HasAttrs = (*tableValue)(nil)
)

func newTableValue(t *table.Table) *tableValue { return &tableValue{t: t} }

func (v *tableValue) String() string {
	return fmt.Sprintf("<table %d rows x %d columns>", v.t.Len(), v.t.Frame().Width())
}
func (v *tableValue) Type() string          { return "table" }
func (v *tableValue) Freeze()               { v.frozen = true }
func (v *tableValue) Truth() starlark.Bool  { return starlark.True }
func (v *tableValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: table") }

type tableMethod func(v *tableValue, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

var tableMethods = map[string]tableMethod{
	"column":       tableColumn,
	"set_column":   tableSetColumn,
	"drop":         tableDrop,
	"select":       tableSelect,
	"head":         tableHead,
	"rows":         tableRows,
	"add_override": tableAddOverride,
	"join":         tableJoin,
}

func (v *tableValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "len":
		return starlark.MakeInt(v.t.Len()), nil
	case "columns":
		return stringList(v.t.Frame().Names()), nil
	case "ddl":
		s, err := v.t.DDL()
		if err != nil {
			return nil, err
		}
		return starlark.String(s), nil
	}
	m, ok := tableMethods[name]
	if !ok {
		return nil, nil
	}
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		return m(b.Receiver().(*tableValue), b.Name(), args, kwargs)
	}).BindReceiver(v), nil
}

func (v *tableValue) AttrNames() []string {
	names := []string{"len", "columns", "ddl"}
	for n := range tableMethods {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (v *tableValue) checkMutable(method string) error {
	if v.frozen {
		return fmt.Errorf("%s: cannot mutate frozen table", method)
	}
	return nil
}

func tableColumn(v *tableValue, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var col string
	if err := starlark.UnpackArgs(name, args, kwargs, "name", &col); err != nil {
		return nil, err
	}
	c, ok := v.t.Frame().Column(col)
	if !ok {
		return nil, fmt.Errorf("%s: column %q not found", name, col)
	}
	out := make([]starlark.Value, c.Len())
	for i := range out {
		out[i] = toStarlark(c.Value(i))
	}
	return starlark.NewList(out), nil
}

// set_column(name, values) assigns a list of values, or broadcasts a scalar
// over every row.
func tableSetColumn(v *tableValue, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := v.checkMutable(name); err != nil {
		return nil, err
	}
	var (
		col    string
		values starlark.Value
	)
	if err := starlark.UnpackArgs(name, args, kwargs, "name", &col, "values", &values); err != nil {
		return nil, err
	}
	var vals []any
	if seq, ok := values.(starlark.Indexable); ok && !isString(values) {
		vals = make([]any, seq.Len())
		for i := range vals {
			x, err := fromStarlark(seq.Index(i))
			if err != nil {
				return nil, fmt.Errorf("%s: values[%d]: %w", name, i, err)
			}
			vals[i] = x
		}
	} else {
		x, err := fromStarlark(values)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		vals = make([]any, v.t.Len())
		for i := range vals {
			vals[i] = x
		}
	}
	if err := v.t.Frame().SetColumn(frame.InferColumn(col, vals)); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return starlark.None, nil
}

func tableDrop(v *tableValue, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := v.checkMutable(name); err != nil {
		return nil, err
	}
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", name)
	}
	cols, err := stringArgs(name, args)
	if err != nil {
		return nil, err
	}
	if err := v.t.Frame().Drop(cols...); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return starlark.None, nil
}

func tableSelect(v *tableValue, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", name)
	}
	cols, err := stringArgs(name, args)
	if err != nil {
		return nil, err
	}
	f, err := v.t.Frame().Select(cols...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return newTableValue(v.t.Derive(f)), nil
}

func tableHead(v *tableValue, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	n := 5
	if err := starlark.UnpackArgs(name, args, kwargs, "n?", &n); err != nil {
		return nil, err
	}
	return newTableValue(v.t.Derive(v.t.Frame().Head(n))), nil
}

// rows() returns one dict per row keyed by column name.
func tableRows(v *tableValue, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(name, args, kwargs); err != nil {
		return nil, err
	}
	f := v.t.Frame()
	names := f.Names()
	out := make([]starlark.Value, f.Len())
	for i := range out {
		d := starlark.NewDict(len(names))
		for j, val := range f.Row(i) {
			if err := d.SetKey(starlark.String(names[j]), toStarlark(val)); err != nil {
				return nil, err
			}
		}
		out[i] = d
	}
	return starlark.NewList(out), nil
}

func tableAddOverride(v *tableValue, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := v.checkMutable(name); err != nil {
		return nil, err
	}
	var field, dialect string
	if err := starlark.UnpackArgs(name, args, kwargs, "field", &field, "type", &dialect); err != nil {
		return nil, err
	}
	if err := v.t.AddOverride(field, dialect); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

// join(other, on, how="left") merges other into a new table on the key
// columns in on, a name or a list of names.
func tableJoin(v *tableValue, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		other *tableValue
		on    starlark.Value
		how   string
	)
	if err := starlark.UnpackArgs(name, args, kwargs, "other", &other, "on", &on, "how?", &how); err != nil {
		return nil, err
	}
	var keys []string
	if s, ok := starlark.AsString(on); ok {
		keys = []string{s}
	} else if seq, ok := on.(starlark.Indexable); ok {
		var err error
		if keys, err = stringSeq(name, seq); err != nil {
			return nil, err
		}
	} else {
		return nil, fmt.Errorf("%s: on is a %s, want string or list", name, on.Type())
	}
	kind, err := frame.ParseJoinKind(how)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	f, err := frame.Join(v.t.Frame(), other.t.Frame(), keys, kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return newTableValue(v.t.Derive(f)), nil
}

// table(rows=[...], columns=[...]) builds a table from a list of dicts or,
// when columns is given, a list of lists.
func tableBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		rows    *starlark.List
		columns *starlark.List
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "rows?", &rows, "columns?", &columns); err != nil {
		return nil, err
	}
	var names []string
	if columns != nil {
		var err error
		if names, err = stringSeq(b.Name(), columns); err != nil {
			return nil, err
		}
	}

	var data [][]any
	if rows != nil {
		data = make([][]any, rows.Len())
		for i := range data {
			row, rowNames, err := tableRow(rows.Index(i), names)
			if err != nil {
				return nil, fmt.Errorf("%s: rows[%d]: %w", b.Name(), i, err)
			}
			if names == nil {
				names = rowNames
			}
			data[i] = row
		}
	}
	if data != nil && names == nil {
		names = []string{}
	}
	f, err := frame.FromRows(names, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return newTableValue(table.New(f)), nil
}

// tableRow converts a dict or list row. A dict row with no known column
// names defines them in key order.
func tableRow(v starlark.Value, names []string) ([]any, []string, error) {
	switch x := v.(type) {
	case *starlark.Dict:
		if names == nil {
			for _, k := range x.Keys() {
				s, ok := starlark.AsString(k)
				if !ok {
					return nil, nil, fmt.Errorf("key %s is not a string", k)
				}
				names = append(names, s)
			}
		}
		row := make([]any, len(names))
		for j, n := range names {
			val, found, err := x.Get(starlark.String(n))
			if err != nil {
				return nil, nil, err
			}
			if !found {
				continue
			}
			if row[j], err = fromStarlark(val); err != nil {
				return nil, nil, fmt.Errorf("%s: %w", n, err)
			}
		}
		return row, names, nil
	case starlark.Indexable:
		if names == nil {
			return nil, nil, fmt.Errorf("list rows need columns")
		}
		row := make([]any, x.Len())
		for j := range row {
			val, err := fromStarlark(x.Index(j))
			if err != nil {
				return nil, nil, err
			}
			row[j] = val
		}
		return row, names, nil
	}
	return nil, nil, fmt.Errorf("row is a %s, want dict or list", v.Type())
}

// argsValue exposes the step arguments to plugin code.
type argsValue struct{ args Args }

var (
	_ starlark.Value    = (*argsValue)(nil)
	_ starlark.HasAttrs = (*argsValue)(nil)
)

func (a *argsValue) String() string        { return "<args>" }
func (a *argsValue) Type() string          { return "args" }
func (a *argsValue) Freeze()               {}
func (a *argsValue) Truth() starlark.Bool  { return starlark.True }
func (a *argsValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: args") }

func (a *argsValue) AttrNames() []string { return []string{"all", "get"} }

func (a *argsValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "get":
		return starlark.NewBuiltin(name, a.get), nil
	case "all":
		return starlark.NewBuiltin(name, a.all), nil
	}
	return nil, nil
}

// get(name, default=None)
func (a *argsValue) get(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		name string
		def  starlark.Value = starlark.None
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "default?", &def); err != nil {
		return nil, err
	}
	v, ok := a.args.Get(name)
	if !ok {
		return def, nil
	}
	return valueToStarlark(v)
}

// all(name)
func (a *argsValue) all(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name); err != nil {
		return nil, err
	}
	vs := a.args.All(name)
	out := make([]starlark.Value, len(vs))
	for i, v := range vs {
		sv, err := valueToStarlark(v)
		if err != nil {
			return nil, err
		}
		out[i] = sv
	}
	return starlark.NewList(out), nil
}

func valueToStarlark(v Value) (starlark.Value, error) {
	if !v.IsTable() {
		return toStarlark(v.Raw()), nil
	}
	t, err := v.Table()
	if err != nil {
		return nil, err
	}
	if t == nil {
		return starlark.None, nil
	}
	return newTableValue(t), nil
}

func toStarlark(v any) starlark.Value {
	switch x := v.(type) {
	case nil:
		return starlark.None
	case int64:
		return starlark.MakeInt64(x)
	case int32:
		return starlark.MakeInt64(int64(x))
	case int:
		return starlark.MakeInt(x)
	case float64:
		return starlark.Float(x)
	case float32:
		return starlark.Float(float64(x))
	case string:
		return starlark.String(x)
	case bool:
		return starlark.Bool(x)
	case time.Time:
		return startime.Time(x)
	case []any:
		out := make([]starlark.Value, len(x))
		for i, e := range x {
			out[i] = toStarlark(e)
		}
		return starlark.NewList(out)
	}
	return starlark.String(fmt.Sprint(v))
}

func fromStarlark(v starlark.Value) (any, error) {
	switch x := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Int:
		n, ok := x.Int64()
		if !ok {
			return nil, fmt.Errorf("integer %s out of range", x)
		}
		return n, nil
	case starlark.Float:
		return float64(x), nil
	case starlark.String:
		return string(x), nil
	case starlark.Bool:
		return bool(x), nil
	case startime.Time:
		return time.Time(x).UTC(), nil
	case starlark.Indexable:
		out := make([]any, x.Len())
		for i := range out {
			e, err := fromStarlark(x.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = e
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value of type %s", v.Type())
}

func isString(v starlark.Value) bool {
	_, ok := v.(starlark.String)
	return ok
}

func stringList(ss []string) *starlark.List {
	out := make([]starlark.Value, len(ss))
	for i, s := range ss {
		out[i] = starlark.String(s)
	}
	return starlark.NewList(out)
}

func stringSeq(fn string, seq starlark.Indexable) ([]string, error) {
	out := make([]string, seq.Len())
	for i := range out {
		s, ok := starlark.AsString(seq.Index(i))
		if !ok {
			return nil, fmt.Errorf("%s: element %d is a %s, want string", fn, i, seq.Index(i).Type())
		}
		out[i] = s
	}
	return out, nil
}

// stringArgs accepts either positional names or a single list of names.
func stringArgs(fn string, args starlark.Tuple) ([]string, error) {
	if len(args) == 1 {
		if l, ok := args[0].(*starlark.List); ok {
			return stringSeq(fn, l)
		}
	}
	return stringSeq(fn, args)
}
