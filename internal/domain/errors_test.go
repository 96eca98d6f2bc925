package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "field context",
			err:  ErrMalformedSchema("a", "bad type"),
			want: `MalformedSchema: field "a": bad type`,
		},
		{
			name: "path context",
			err:  ErrStorageNotFound("/ips/x", "no encoding found"),
			want: `StorageNotFound: path "/ips/x": no encoding found`,
		},
		{
			name: "step context",
			err:  ErrInvalidTransformResult("bad", "got string").WithStep(1, "bad"),
			want: `step 1 (bad): InvalidTransformResult: got string`,
		},
		{
			name: "other wraps cause",
			err:  AsError(errors.New("boom"), "sum").WithStep(2, "sum"),
			want: `step 2 (sum): Other: boom`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Error())
		})
	}
}

func TestIsKind(t *testing.T) {
	base := ErrUnknownCommand("nope")
	wrapped := fmt.Errorf("execute: %w", base.WithStep(0, "nope"))

	assert.True(t, IsKind(wrapped, KindUnknownCommand))
	assert.False(t, IsKind(wrapped, KindStorageNotFound))
	assert.Equal(t, KindUnknownCommand, KindOf(wrapped))
	assert.Equal(t, KindOther, KindOf(errors.New("plain")))
}

func TestAsError_KeepsDomainErrors(t *testing.T) {
	orig := ErrAmbiguousArrayType("tags", "empty list")
	got := AsError(fmt.Errorf("derive: %w", orig), "unit")
	require.Same(t, orig, got)

	cause := errors.New("disk full")
	other := AsError(cause, "writer")
	assert.Equal(t, KindOther, other.Kind)
	assert.Equal(t, "writer", other.Unit)
	assert.ErrorIs(t, other, cause)
}

func TestWithStep_DoesNotMutate(t *testing.T) {
	e := ErrInvalidArgument("sum", "missing col")
	s := e.WithStep(3, "sum")
	assert.False(t, e.InStep())
	assert.True(t, s.InStep())
	assert.Equal(t, 3, s.Step)
}

func TestParseStorageKind(t *testing.T) {
	for in, want := range map[string]StorageKind{
		"local":     StorageLocal,
		"SHARED":    StorageShared,
		"interproc": StorageInterProcess,
		"ips":       StorageInterProcess,
	} {
		got, err := ParseStorageKind(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseStorageKind("s3")
	require.Error(t, err)
}
