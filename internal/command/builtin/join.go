package builtin

import (
	"context"

	"ppexec/internal/command"
	"ppexec/internal/domain"
	"ppexec/internal/frame"
	"ppexec/internal/table"
)

var joinSyntax = command.Syntax{Rules: []command.Rule{
	{Name: "field", Type: command.RuleArg, Required: true, InputTypes: []string{"string", "term"}},
	{Name: "fields", Type: command.RuleArg, Inf: true, InputTypes: []string{"string", "term"}},
	{Name: "type", Type: command.RuleKwarg, InputTypes: []string{"string", "term"}},
	{Name: "jdf", Type: command.RuleSubsearch, Required: true},
}}

func newJoin(args command.Args) (command.Unit, error) {
	on := command.Strings(args, "field", "fields")
	how, err := frame.ParseJoinKind(command.OptionalString(args, "type", ""))
	if err != nil {
		return nil, domain.ErrInvalidArgument("join", "%v", err)
	}
	sub, _ := args.Get("jdf")
	return command.UnitFunc(func(_ context.Context, in *table.Table) (*table.Table, error) {
		if err := requireInput("join", in); err != nil {
			return nil, err
		}
		right, err := sub.Table()
		if err != nil {
			return nil, err
		}
		if right == nil {
			return nil, domain.ErrInvalidArgument("join", "subsearch produced no table")
		}
		f, err := frame.Join(in.Frame(), right.Frame(), on, how)
		if err != nil {
			return nil, domain.ErrInvalidArgument("join", "%v", err)
		}
		return in.Derive(f), nil
	}), nil
}
