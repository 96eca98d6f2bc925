// Package frame implements the in-memory columnar table that pipeline units
// transform. Columns are immutable once built; a Frame replaces column
// pointers when it changes.
package frame

import "fmt"

// Kind is the element kind held by a column.
type Kind uint8

// Column element kinds. Dynamic columns hold arbitrary values (strings,
// lists, mixed scalars) whose dialect type is inferred by sampling.
const (
	Dynamic Kind = iota
	Int64
	Int32
	Float64
	Float32
	Utf8
	Bool
	Timestamp
)

var kindNames = [...]string{
	Dynamic:   "dynamic",
	Int64:     "int64",
	Int32:     "int32",
	Float64:   "float64",
	Float32:   "float32",
	Utf8:      "utf8",
	Bool:      "bool",
	Timestamp: "timestamp",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// IsInteger reports whether k is a signed integer kind.
func (k Kind) IsInteger() bool { return k == Int64 || k == Int32 }

// IsFloat reports whether k is a floating point kind.
func (k Kind) IsFloat() bool { return k == Float64 || k == Float32 }

// IsNumeric reports whether k is an integer or floating point kind.
func (k Kind) IsNumeric() bool { return k.IsInteger() || k.IsFloat() }

// Type is a column's native type: an element kind plus whether missing
// values are allowed.
type Type struct {
	Kind     Kind
	Nullable bool
}

// Of returns the non-nullable type of kind k.
func Of(k Kind) Type { return Type{Kind: k} }

// NullableOf returns the nullable type of kind k.
func NullableOf(k Kind) Type { return Type{Kind: k, Nullable: true} }

func (t Type) String() string {
	if t.Nullable && t.Kind != Dynamic {
		return t.Kind.String() + "?"
	}
	return t.Kind.String()
}
