package table

import (
	"ppexec/internal/ddl"
	"ppexec/internal/frame"
)

// NativeSchema is a parsed DDL string: the fields in order, plus the native
// type and the original dialect type of every field.
type NativeSchema struct {
	Fields  ddl.Schema
	Native  map[string]frame.Type
	Dialect map[string]string
}

// FromDDL parses a DDL string into native and dialect type maps. Array
// fields are Dynamic natively and keep their ARRAY<...> dialect type.
func FromDDL(s string) (*NativeSchema, error) {
	fields, err := ddl.Parse(s)
	if err != nil {
		return nil, err
	}
	ns := &NativeSchema{
		Fields:  fields,
		Native:  make(map[string]frame.Type, len(fields)),
		Dialect: make(map[string]string, len(fields)),
	}
	for _, f := range fields {
		typ, err := ddl.DialectToNative(f.Dialect())
		if err != nil {
			return nil, err
		}
		ns.Native[f.Name] = typ
		ns.Dialect[f.Name] = f.Dialect()
	}
	return ns, nil
}

// Cast converts every column of f named in the schema to its native type.
// Dynamic fields are left as loaded.
func (ns *NativeSchema) Cast(f *frame.Frame) error {
	for _, field := range ns.Fields {
		c, ok := f.Column(field.Name)
		if !ok {
			continue
		}
		typ := ns.Native[field.Name]
		if typ.Kind == frame.Dynamic {
			continue
		}
		cast, err := c.Cast(typ)
		if err != nil {
			return err
		}
		if err := f.SetColumn(cast); err != nil {
			return err
		}
	}
	return nil
}

// Schema derives the table's DDL schema in column order.
func (t *Table) Schema() (ddl.Schema, error) {
	cols := t.frame.Columns()
	out := make(ddl.Schema, 0, len(cols))
	for _, c := range cols {
		dialect, err := t.fieldDialect(c)
		if err != nil {
			return nil, err
		}
		f, err := ddl.ParseField(ddl.FormatField(c.Name(), dialect))
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// DDL derives the table's schema and formats it.
func (t *Table) DDL() (string, error) {
	s, err := t.Schema()
	if err != nil {
		return "", err
	}
	return ddl.Format(s), nil
}

// fieldDialect derives one column's dialect type. Overrides win outright.
// Dynamic columns are classified by sampling, falling back to the initial
// schema (then NULL) when every value is missing. Static columns report
// their initial dialect type whenever it still maps to the column's kind,
// so that an untouched BIGINT column is not rewritten as LONG.
func (t *Table) fieldDialect(c *frame.Column) (string, error) {
	name := c.Name()
	if o, ok := t.overrides[name]; ok {
		return o, nil
	}
	typ := c.Type()
	if typ.Kind == frame.Dynamic {
		if _, ok := c.FirstValid(); !ok {
			if initial, ok := t.initial[name]; ok {
				return initial, nil
			}
			return ddl.TypeNull, nil
		}
		return ddl.NativeToDialect(name, typ, c.Valid())
	}
	computed, err := ddl.NativeToDialect(name, typ, c.Valid())
	if err != nil {
		return "", err
	}
	if initial, ok := t.initial[name]; ok && keepsInitial(initial, c) {
		return initial, nil
	}
	return computed, nil
}

func keepsInitial(initial string, c *frame.Column) bool {
	if ddl.BaseType(initial) == ddl.TypeNull {
		_, found := c.FirstValid()
		return !found
	}
	native, err := ddl.DialectToNative(initial)
	if err != nil {
		return false
	}
	return native.Kind == c.Type().Kind
}
