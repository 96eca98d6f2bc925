// Package domain defines the types shared by the pipeline engine, its
// storage tier and its run journal, plus the closed error type every
// pipeline failure surfaces as.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a pipeline error.
type ErrorKind int

// Error kinds.
const (
	KindOther ErrorKind = iota
	KindMalformedSchema
	KindUnsupportedType
	KindUndeterminedColumnType
	KindAmbiguousArrayType
	KindStorageNotFound
	KindUnknownCommand
	KindInvalidTransformResult
	KindInvalidArgument
)

var kindNames = map[ErrorKind]string{
	KindOther:                  "Other",
	KindMalformedSchema:        "MalformedSchema",
	KindUnsupportedType:        "UnsupportedType",
	KindUndeterminedColumnType: "UndeterminedColumnType",
	KindAmbiguousArrayType:     "AmbiguousArrayType",
	KindStorageNotFound:        "StorageNotFound",
	KindUnknownCommand:         "UnknownCommand",
	KindInvalidTransformResult: "InvalidTransformResult",
	KindInvalidArgument:        "InvalidArgument",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k ErrorKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Error is the single error type produced by schema handling, storage and
// pipeline execution. Step and Command are set once the error has crossed
// a pipeline step boundary.
type Error struct {
	Kind    ErrorKind
	Message string
	// Unit names the transformation unit that raised an Other error.
	Unit  string
	Field string
	Path  string

	Step    int
	Command string
	inStep  bool

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.inStep {
		fmt.Fprintf(&b, "step %d (%s): ", e.Step, e.Command)
	}
	b.WriteString(e.Kind.String())
	if e.Unit != "" && e.Unit != e.Command {
		fmt.Fprintf(&b, " in %s", e.Unit)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ": field %q", e.Field)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, ": path %q", e.Path)
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// InStep reports whether the error carries a step index.
func (e *Error) InStep() bool { return e.inStep }

// WithStep returns a copy of e annotated with the failing step.
func (e *Error) WithStep(index int, command string) *Error {
	out := *e
	out.Step, out.Command, out.inStep = index, command, true
	return &out
}

// AsError returns err as an *Error. Errors of any other type become Other
// errors attributed to unit.
func AsError(err error, unit string) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindOther, Unit: unit, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindOther.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOther
}

// IsKind reports whether err's chain holds an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// ErrMalformedSchema reports a DDL field that does not match the grammar.
func ErrMalformedSchema(field, format string, args ...any) *Error {
	return &Error{Kind: KindMalformedSchema, Field: field, Message: fmt.Sprintf(format, args...)}
}

// ErrUnsupportedType reports a type outside the vocabulary.
func ErrUnsupportedType(field, format string, args ...any) *Error {
	return &Error{Kind: KindUnsupportedType, Field: field, Message: fmt.Sprintf(format, args...)}
}

// ErrUndeterminedColumnType reports a dynamic column whose sampled value
// has no dialect type.
func ErrUndeterminedColumnType(field, format string, args ...any) *Error {
	return &Error{Kind: KindUndeterminedColumnType, Field: field, Message: fmt.Sprintf(format, args...)}
}

// ErrAmbiguousArrayType reports a list column whose first list is empty.
func ErrAmbiguousArrayType(field, format string, args ...any) *Error {
	return &Error{Kind: KindAmbiguousArrayType, Field: field, Message: fmt.Sprintf(format, args...)}
}

// ErrStorageNotFound reports a read of a path with no stored encoding.
func ErrStorageNotFound(path, format string, args ...any) *Error {
	return &Error{Kind: KindStorageNotFound, Path: path, Message: fmt.Sprintf(format, args...)}
}

// ErrUnknownCommand reports a step naming an unregistered unit.
func ErrUnknownCommand(name string) *Error {
	return &Error{Kind: KindUnknownCommand, Message: fmt.Sprintf("no unit registered as %q", name)}
}

// ErrInvalidTransformResult reports a unit that did not return a table.
func ErrInvalidTransformResult(unit, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidTransformResult, Unit: unit, Message: fmt.Sprintf(format, args...)}
}

// ErrInvalidArgument reports a missing or malformed unit argument.
func ErrInvalidArgument(unit, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidArgument, Unit: unit, Message: fmt.Sprintf(format, args...)}
}

// ErrOther reports any other failure raised by a unit.
func ErrOther(unit, format string, args ...any) *Error {
	return &Error{Kind: KindOther, Unit: unit, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError indicates a journal record was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...any) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}
