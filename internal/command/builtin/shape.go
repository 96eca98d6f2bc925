package builtin

import (
	"context"

	"ppexec/internal/command"
	"ppexec/internal/domain"
	"ppexec/internal/table"
)

var overrideSyntax = command.Syntax{Rules: []command.Rule{
	{Name: "field", Type: command.RuleArg, Required: true, InputTypes: []string{"string", "term"}},
	{Name: "type", Type: command.RuleArg, Required: true, InputTypes: []string{"string", "term"}},
}}

// newOverride pins a field's dialect type on the current table.
func newOverride(args command.Args) (command.Unit, error) {
	field, err := command.RequireString("override", args, "field")
	if err != nil {
		return nil, err
	}
	dialect, err := command.RequireString("override", args, "type")
	if err != nil {
		return nil, err
	}
	return command.UnitFunc(func(_ context.Context, in *table.Table) (*table.Table, error) {
		if err := requireInput("override", in); err != nil {
			return nil, err
		}
		if err := in.AddOverride(field, dialect); err != nil {
			return nil, err
		}
		return in, nil
	}), nil
}

var headSyntax = command.Syntax{Rules: []command.Rule{
	{Name: "count", Type: command.RuleArg, InputTypes: []string{"integer"}},
}}

func newHead(args command.Args) (command.Unit, error) {
	n := int64(10)
	if v, ok := args.Get("count"); ok {
		var err error
		if n, err = v.Int(); err != nil || n < 0 {
			return nil, domain.ErrInvalidArgument("head", "count must be a non-negative integer, got %q", v.String())
		}
	}
	return command.UnitFunc(func(_ context.Context, in *table.Table) (*table.Table, error) {
		if err := requireInput("head", in); err != nil {
			return nil, err
		}
		return in.Derive(in.Frame().Head(int(n))), nil
	}), nil
}

var selectSyntax = command.Syntax{Rules: []command.Rule{
	{Name: "field", Type: command.RuleArg, Required: true, InputTypes: []string{"string", "term"}},
	{Name: "fields", Type: command.RuleArg, Inf: true, InputTypes: []string{"string", "term"}},
}}

func newSelect(args command.Args) (command.Unit, error) {
	names := command.Strings(args, "field", "fields")
	return command.UnitFunc(func(_ context.Context, in *table.Table) (*table.Table, error) {
		if err := requireInput("select", in); err != nil {
			return nil, err
		}
		f, err := in.Frame().Select(names...)
		if err != nil {
			return nil, domain.ErrInvalidArgument("select", "%v", err)
		}
		return in.Derive(f), nil
	}), nil
}
