package ddl

import (
	"regexp"
	"strings"

	"ppexec/internal/domain"
)

// fieldRe matches one schema field: a backtick-quoted name (backticks
// doubled inside), a type with optional precision, an optional <ELEMENT>
// and an optional NOT NULL suffix.
var fieldRe = regexp.MustCompile("(?i)^`((?:[^`]|``)*)`\\s+" +
	`([A-Z][A-Z0-9_]*(?:\(\s*\d+\s*(?:,\s*\d+\s*)?\))?)` +
	`(?:<([A-Z][A-Z0-9_]*(?:\(\s*\d+\s*(?:,\s*\d+\s*)?\))?)>)?` +
	`(\s+NOT\s+NULL)?$`)

var spaceRe = regexp.MustCompile(`\s+`)

// Field is one declaration of a DDL schema.
type Field struct {
	Name string
	// Type is the upper-cased type name with its parameters, e.g. LONG,
	// DECIMAL(10,2) or ARRAY.
	Type string
	// Element is the array element type; empty unless Type is ARRAY.
	Element string
	NotNull bool
}

// Dialect returns the field's full dialect type, e.g. ARRAY<LONG>.
func (f Field) Dialect() string {
	if f.Element != "" {
		return f.Type + "<" + f.Element + ">"
	}
	return f.Type
}

// Schema is an ordered list of fields with unique names.
type Schema []Field

// Names returns the field names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Lookup finds a field by name.
func (s Schema) Lookup(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// String formats the schema as a DDL string.
func (s Schema) String() string { return Format(s) }

// Parse parses a DDL string. Fields are separated by commas outside of
// backticks, parentheses and angle brackets. An empty string is an empty
// schema.
func Parse(ddl string) (Schema, error) {
	ddl = strings.TrimSpace(ddl)
	if ddl == "" {
		return Schema{}, nil
	}
	parts := splitFields(ddl)
	schema := make(Schema, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, part := range parts {
		f, err := ParseField(part)
		if err != nil {
			return nil, err
		}
		if seen[f.Name] {
			return nil, domain.ErrMalformedSchema(f.Name, "duplicate field %q", f.Name)
		}
		seen[f.Name] = true
		schema = append(schema, f)
	}
	return schema, nil
}

// ParseField parses a single "`name` TYPE" declaration.
func ParseField(decl string) (Field, error) {
	m := fieldRe.FindStringSubmatch(strings.TrimSpace(decl))
	if m == nil {
		return Field{}, domain.ErrMalformedSchema("", "field %q does not match the DDL grammar", decl)
	}
	f := Field{
		Name:    UnquoteIdentifier(m[1]),
		Type:    normalizeType(m[2]),
		Element: normalizeType(m[3]),
		NotNull: m[4] != "",
	}
	if f.Element != "" && f.Type != TypeArray {
		return Field{}, domain.ErrMalformedSchema(f.Name, "type %s cannot have an element type", f.Type)
	}
	if f.Type == TypeArray && f.Element == "" {
		return Field{}, domain.ErrMalformedSchema(f.Name, "ARRAY needs an element type")
	}
	return f, nil
}

func normalizeType(t string) string {
	return strings.ToUpper(spaceRe.ReplaceAllString(t, ""))
}

func splitFields(ddl string) []string {
	var parts []string
	depth, start := 0, 0
	quoted := false
	for i := 0; i < len(ddl); i++ {
		switch c := ddl[i]; {
		case c == '`':
			quoted = !quoted
		case quoted:
		case c == '(' || c == '<':
			depth++
		case c == ')' || c == '>':
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, ddl[start:i])
			start = i + 1
		}
	}
	return append(parts, ddl[start:])
}

// FormatField renders one declaration. NOT NULL is never emitted.
func FormatField(name, dialect string) string {
	return QuoteIdentifier(name) + " " + dialect
}

// Format joins the fields into a DDL string.
func Format(s Schema) string {
	parts := make([]string, len(s))
	for i, f := range s {
		parts[i] = FormatField(f.Name, f.Dialect())
	}
	return strings.Join(parts, ",")
}
