package builtin

import (
	"context"

	"ppexec/internal/command"
	"ppexec/internal/domain"
	"ppexec/internal/frame"
	"ppexec/internal/table"
)

var sumSyntax = command.Syntax{Rules: []command.Rule{
	{Name: "col", Type: command.RuleArg, Required: true, InputTypes: []string{"string", "term"}},
	{Name: "cols", Type: command.RuleArg, Inf: true, InputTypes: []string{"string", "term"}},
	{Name: "field_name", Type: command.RuleKwarg, Key: "name", InputTypes: []string{"string", "term"}},
}}

// newSum adds the row-wise sum of the given columns. Missing values are
// skipped; the result is LONG when every input is an integer column.
func newSum(args command.Args) (command.Unit, error) {
	cols := command.Strings(args, "col", "cols")
	name := command.OptionalString(args, "field_name", "sum")
	return command.UnitFunc(func(_ context.Context, in *table.Table) (*table.Table, error) {
		if err := requireInput("sum", in); err != nil {
			return nil, err
		}
		f := in.Frame()
		inputs := make([]*frame.Column, len(cols))
		integral := true
		for i, n := range cols {
			c, ok := f.Column(n)
			if !ok {
				return nil, domain.ErrInvalidArgument("sum", "column %q not found", n)
			}
			if !c.Type().Kind.IsNumeric() {
				return nil, domain.ErrInvalidArgument("sum", "column %q is %s, not numeric", n, c.Type())
			}
			integral = integral && c.Type().Kind.IsInteger()
			inputs[i] = c
		}

		values := make([]any, f.Len())
		for row := range values {
			v, err := rowSum(inputs, row, integral)
			if err != nil {
				return nil, err
			}
			values[row] = v
		}

		kind := frame.Float64
		if integral {
			kind = frame.Int64
		}
		col, err := frame.NewColumn(name, frame.Of(kind), values)
		if err != nil {
			return nil, err
		}
		if err := f.SetColumn(col); err != nil {
			return nil, err
		}
		return in, nil
	}), nil
}

// rowSum adds the non-missing values of one row as int64 when integral,
// float64 otherwise.
func rowSum(inputs []*frame.Column, row int, integral bool) (any, error) {
	kind := frame.Float64
	if integral {
		kind = frame.Int64
	}
	var (
		ints   int64
		floats float64
	)
	for _, c := range inputs {
		if c.IsMissing(row) {
			continue
		}
		v, err := frame.Coerce(kind, c.Value(row))
		if err != nil {
			return nil, domain.ErrInvalidArgument("sum", "column %q row %d: %v", c.Name(), row, err)
		}
		switch x := v.(type) {
		case int64:
			ints += x
		case float64:
			floats += x
		case nil:
		default:
			return nil, domain.ErrInvalidArgument("sum", "column %q row %d: unexpected %T", c.Name(), row, v)
		}
	}
	if integral {
		return ints, nil
	}
	return floats, nil
}
