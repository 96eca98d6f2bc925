package command

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ppexec/internal/domain"
	"ppexec/internal/table"
)

func TestValue_Conversions(t *testing.T) {
	v := Scalar(json.Number("42"))
	n, err := v.Int()
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	f, err := v.Float()
	require.NoError(t, err)
	assert.InDelta(t, 42.0, f, 1e-9)
	assert.Equal(t, "42", v.String())
	assert.False(t, v.IsTable())

	b, err := Scalar("true").Bool()
	require.NoError(t, err)
	assert.True(t, b)

	_, err = Scalar(nil).Int()
	assert.Error(t, err)
	assert.Equal(t, "", Scalar(nil).String())

	_, err = Scalar("x").Table()
	assert.Error(t, err)
}

func TestLazyTable_ResolvesOnce(t *testing.T) {
	calls := 0
	tbl := sampleTable(t)
	v := LazyTable(func() (*table.Table, error) {
		calls++
		return tbl, nil
	})
	assert.True(t, v.IsTable())
	assert.Equal(t, 0, calls)

	for range 3 {
		got, err := v.Table()
		require.NoError(t, err)
		assert.Same(t, tbl, got)
	}
	assert.Equal(t, 1, calls)

	failing := LazyTable(func() (*table.Table, error) { return nil, errors.New("boom") })
	_, err := failing.Table()
	assert.EqualError(t, err, "boom")
}

func TestBind(t *testing.T) {
	syn := Syntax{Rules: []Rule{
		{Name: "col", Type: RuleArg, Required: true},
		{Name: "cols", Type: RuleArg, Inf: true},
		{Name: "field_name", Type: RuleKwarg, Key: "name"},
		{Name: "jdf", Type: RuleSubsearch},
	}}

	t.Run("kwarg key moves to rule name", func(t *testing.T) {
		args, err := Bind("sum", syn, scalars("col", "a", "cols", "b", "cols", "c", "name", "total"))
		require.NoError(t, err)
		v, ok := args.Get("field_name")
		require.True(t, ok)
		assert.Equal(t, "total", v.String())
		_, ok = args.Get("name")
		assert.False(t, ok)
		assert.Equal(t, []string{"a", "b", "c"}, Strings(args, "col", "cols"))
	})

	t.Run("missing required", func(t *testing.T) {
		_, err := Bind("sum", syn, scalars("cols", "b"))
		require.Error(t, err)
		assert.True(t, domain.IsKind(err, domain.KindInvalidArgument))
		assert.Contains(t, err.Error(), `"col"`)
	})

	t.Run("repeated single argument", func(t *testing.T) {
		_, err := Bind("sum", syn, scalars("col", "a", "col", "b"))
		assert.True(t, domain.IsKind(err, domain.KindInvalidArgument))
	})

	t.Run("scalar for subsearch", func(t *testing.T) {
		_, err := Bind("sum", syn, scalars("col", "a", "jdf", "x"))
		assert.True(t, domain.IsKind(err, domain.KindInvalidArgument))
	})

	t.Run("table for scalar rule", func(t *testing.T) {
		raw := map[string][]Value{"col": {TableOf(sampleTable(t))}}
		_, err := Bind("sum", syn, raw)
		assert.True(t, domain.IsKind(err, domain.KindInvalidArgument))
	})

	t.Run("input is not modified", func(t *testing.T) {
		raw := scalars("col", "a", "name", "total")
		_, err := Bind("sum", syn, raw)
		require.NoError(t, err)
		assert.Contains(t, raw, "name")
	})
}

func TestOptionalString(t *testing.T) {
	args := NewArgs(scalars("a", "x", "b", nil))
	assert.Equal(t, "x", OptionalString(args, "a", "d"))
	assert.Equal(t, "d", OptionalString(args, "b", "d"))
	assert.Equal(t, "d", OptionalString(args, "c", "d"))
}
