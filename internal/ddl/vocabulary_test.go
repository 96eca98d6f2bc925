package ddl

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ppexec/internal/domain"
	"ppexec/internal/frame"
)

func TestDialectToNative(t *testing.T) {
	tests := []struct {
		dialect string
		want    frame.Type
	}{
		{"STRING", frame.NullableOf(frame.Utf8)},
		{"FLOAT", frame.Of(frame.Float32)},
		{"DOUBLE", frame.Of(frame.Float64)},
		{"INTEGER", frame.Of(frame.Int32)},
		{"INT", frame.Of(frame.Int32)},
		{"LONG", frame.Of(frame.Int64)},
		{"BIGINT", frame.Of(frame.Int64)},
		{"BOOLEAN", frame.Of(frame.Bool)},
		{"TIMESTAMP", frame.Of(frame.Timestamp)},
		{"NULL", frame.NullableOf(frame.Int64)},
		{"DECIMAL(10,2)", frame.Of(frame.Float64)},
		{"ARRAY<LONG>", frame.Of(frame.Dynamic)},
		{"GEOMETRY", frame.Of(frame.Dynamic)},
		{"bigint", frame.Of(frame.Int64)},
	}
	for _, tc := range tests {
		t.Run(tc.dialect, func(t *testing.T) {
			got, err := DialectToNative(tc.dialect)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := DialectToNative("")
	assert.True(t, domain.IsKind(err, domain.KindUnsupportedType))
}

func TestNativeToDialect_StaticKinds(t *testing.T) {
	tests := map[frame.Kind]string{
		frame.Int64:     "LONG",
		frame.Int32:     "INTEGER",
		frame.Float64:   "DOUBLE",
		frame.Float32:   "FLOAT",
		frame.Utf8:      "STRING",
		frame.Bool:      "BOOLEAN",
		frame.Timestamp: "TIMESTAMP",
	}
	for kind, want := range tests {
		got, err := NativeToDialect("f", frame.Of(kind), nil)
		require.NoError(t, err)
		assert.Equal(t, want, got, kind.String())
	}
}

func TestNativeToDialect_Dynamic(t *testing.T) {
	dyn := frame.Of(frame.Dynamic)
	tests := []struct {
		name     string
		sample   []any
		want     string
		wantKind domain.ErrorKind
	}{
		{name: "string", sample: []any{"x", 1}, want: "STRING"},
		{name: "long list", sample: []any{[]any{int64(1), int64(2)}}, want: "ARRAY<LONG>"},
		{name: "string list", sample: []any{[]string{"a"}}, want: "ARRAY<STRING>"},
		{name: "timestamp list", sample: []any{[]any{time.Now()}}, want: "ARRAY<TIMESTAMP>"},
		{name: "no values", sample: nil, want: "NULL"},
		{name: "empty list", sample: []any{[]any{}}, wantKind: domain.KindAmbiguousArrayType},
		{name: "number", sample: []any{int64(5)}, wantKind: domain.KindUndeterminedColumnType},
		{name: "list of maps", sample: []any{[]any{map[string]any{}}}, wantKind: domain.KindUnsupportedType},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NativeToDialect("col", dyn, slices.Values(tc.sample))
			if tc.want == "" {
				require.Error(t, err)
				assert.True(t, domain.IsKind(err, tc.wantKind), "got %v", err)
				assert.Contains(t, err.Error(), `"col"`)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
