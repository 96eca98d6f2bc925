package ddl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ppexec/internal/domain"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		ddl  string
		want Schema
	}{
		{
			name: "scalars",
			ddl:  "`a` LONG,`b` STRING,`c` DOUBLE",
			want: Schema{{Name: "a", Type: "LONG"}, {Name: "b", Type: "STRING"}, {Name: "c", Type: "DOUBLE"}},
		},
		{
			name: "array and not null",
			ddl:  "`tags` ARRAY<STRING>,`id` BIGINT NOT NULL",
			want: Schema{{Name: "tags", Type: "ARRAY", Element: "STRING"}, {Name: "id", Type: "BIGINT", NotNull: true}},
		},
		{
			name: "decimal keeps its comma",
			ddl:  "`price` DECIMAL(10, 2),`n` INT",
			want: Schema{{Name: "price", Type: "DECIMAL(10,2)"}, {Name: "n", Type: "INT"}},
		},
		{
			name: "escaped backticks and commas in names",
			ddl:  "`we``ird, name` TIMESTAMP",
			want: Schema{{Name: "we`ird, name", Type: "TIMESTAMP"}},
		},
		{
			name: "lower case types",
			ddl:  "`x` boolean",
			want: Schema{{Name: "x", Type: "BOOLEAN"}},
		},
		{
			name: "empty",
			ddl:  "  ",
			want: Schema{},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.ddl)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	for _, in := range []string{
		"a LONG",
		"`a`LONG",
		"`a` LONG EXTRA",
		"`a` LONG<INT>",
		"`a` ARRAY",
		"`a` ARRAY<ARRAY<INT>>",
		"`a` LONG,`a` INT",
		"`a` LONG,",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			require.Error(t, err)
			assert.True(t, domain.IsKind(err, domain.KindMalformedSchema), "got %v", err)
		})
	}
}

func TestFormat_RoundTrip(t *testing.T) {
	in := "`a` LONG,`b``c` ARRAY<INTEGER>,`d` DECIMAL(10,2)"
	s, err := Parse(in)
	require.NoError(t, err)
	assert.Equal(t, in, Format(s))

	notNull, err := Parse("`a` LONG NOT NULL")
	require.NoError(t, err)
	assert.Equal(t, "`a` LONG", notNull.String())
}

func TestSchema_Lookup(t *testing.T) {
	s, err := Parse("`a` LONG,`b` STRING")
	require.NoError(t, err)
	f, ok := s.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, "STRING", f.Dialect())
	_, ok = s.Lookup("z")
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "b"}, s.Names())
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, "`a``b`", QuoteIdentifier("a`b"))
	assert.Equal(t, "a`b", UnquoteIdentifier("a``b"))
	assert.Equal(t, `'it''s'`, QuoteLiteral("it's"))
}
