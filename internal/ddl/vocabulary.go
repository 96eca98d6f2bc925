package ddl

import (
	"iter"
	"regexp"
	"strings"
	"time"

	"ppexec/internal/domain"
	"ppexec/internal/frame"
)

// Dialect type names emitted by schema derivation.
const (
	TypeString    = "STRING"
	TypeFloat     = "FLOAT"
	TypeDouble    = "DOUBLE"
	TypeInteger   = "INTEGER"
	TypeLong      = "LONG"
	TypeBoolean   = "BOOLEAN"
	TypeTimestamp = "TIMESTAMP"
	TypeNull      = "NULL"
	TypeArray     = "ARRAY"
)

// dialectToNative is keyed by the base type name, upper-cased and stripped
// of precision parameters.
var dialectToNative = map[string]frame.Type{
	"STRING":    frame.NullableOf(frame.Utf8),
	"VARCHAR":   frame.NullableOf(frame.Utf8),
	"CHAR":      frame.NullableOf(frame.Utf8),
	"FLOAT":     frame.Of(frame.Float32),
	"REAL":      frame.Of(frame.Float32),
	"DOUBLE":    frame.Of(frame.Float64),
	"INTEGER":   frame.Of(frame.Int32),
	"INT":       frame.Of(frame.Int32),
	"SHORT":     frame.Of(frame.Int32),
	"SMALLINT":  frame.Of(frame.Int32),
	"TINYINT":   frame.Of(frame.Int32),
	"BYTE":      frame.Of(frame.Int32),
	"LONG":      frame.Of(frame.Int64),
	"BIGINT":    frame.Of(frame.Int64),
	"BOOLEAN":   frame.Of(frame.Bool),
	"TIMESTAMP": frame.Of(frame.Timestamp),
	"DATE":      frame.Of(frame.Timestamp),
	"NULL":      frame.NullableOf(frame.Int64),
}

// decimalAliases are normalized to DOUBLE; precision and scale are dropped.
var decimalAliases = map[string]bool{"DECIMAL": true, "NUMERIC": true, "DEC": true}

var nativeToDialect = map[frame.Kind]string{
	frame.Int64:     TypeLong,
	frame.Int32:     TypeInteger,
	frame.Float64:   TypeDouble,
	frame.Float32:   TypeFloat,
	frame.Utf8:      TypeString,
	frame.Bool:      TypeBoolean,
	frame.Timestamp: TypeTimestamp,
}

var typeNameRe = regexp.MustCompile(`(?i)^([A-Z][A-Z0-9_]*)(\(\s*\d+\s*(?:,\s*\d+\s*)?\))?(<.+>)?$`)

// BaseType returns the upper-cased type name without parameters or array
// element, e.g. "DECIMAL" for "decimal(10,2)" and "ARRAY" for "ARRAY<LONG>".
func BaseType(dialect string) string {
	m := typeNameRe.FindStringSubmatch(strings.TrimSpace(dialect))
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

// DialectToNative maps a dialect type to the native column type. Names the
// vocabulary does not know, and every ARRAY type, map to Dynamic; DECIMAL
// types map to Float64. It fails only when dialect is not a type name.
func DialectToNative(dialect string) (frame.Type, error) {
	base := BaseType(dialect)
	if base == "" {
		return frame.Type{}, domain.ErrUnsupportedType("", "unsupported dialect type %q", dialect)
	}
	if decimalAliases[base] {
		base = TypeDouble
	}
	if t, ok := dialectToNative[base]; ok && !strings.Contains(dialect, "<") {
		return t, nil
	}
	return frame.Of(frame.Dynamic), nil
}

// NativeToDialect maps a native column type to its dialect type. Dynamic
// columns are classified by their first sampled value: strings are STRING,
// lists are ARRAY of their first element's type. Other values fail with
// UndeterminedColumnType and an empty first list with AmbiguousArrayType.
// A Dynamic column with no sampled values is NULL.
func NativeToDialect(field string, t frame.Type, sample iter.Seq[any]) (string, error) {
	if t.Kind != frame.Dynamic {
		if name, ok := nativeToDialect[t.Kind]; ok {
			return name, nil
		}
		return "", domain.ErrUnsupportedType(field, "unsupported native type %s", t)
	}
	for v := range sample {
		return sampleDialect(field, v)
	}
	return TypeNull, nil
}

func sampleDialect(field string, v any) (string, error) {
	switch x := frame.Normalize(v).(type) {
	case string:
		return TypeString, nil
	case []any:
		if len(x) == 0 {
			return "", domain.ErrAmbiguousArrayType(field, "cannot infer element type of an empty list")
		}
		elem, err := ValueDialect(field, x[0])
		if err != nil {
			return "", err
		}
		return TypeArray + "<" + elem + ">", nil
	}
	return "", domain.ErrUndeterminedColumnType(field, "cannot determine dialect type for value of type %T", v)
}

// ValueDialect returns the dialect type of a single scalar value, as used
// for array elements.
func ValueDialect(field string, v any) (string, error) {
	switch frame.Normalize(v).(type) {
	case string:
		return TypeString, nil
	case int64:
		return TypeLong, nil
	case int32:
		return TypeInteger, nil
	case float64:
		return TypeDouble, nil
	case float32:
		return TypeFloat, nil
	case bool:
		return TypeBoolean, nil
	case time.Time:
		return TypeTimestamp, nil
	}
	return "", domain.ErrUnsupportedType(field, "unsupported value type %T", v)
}
