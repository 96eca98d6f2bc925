package command

import (
	"context"
	"errors"
	"fmt"
	"os"

	"ppexec/internal/domain"
	"ppexec/internal/table"

	startime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// predeclared is the environment plugin entry points are executed in.
func predeclared() starlark.StringDict {
	return starlark.StringDict{
		"unit":  starlark.NewBuiltin("unit", unitBuiltin),
		"rule":  starlark.NewBuiltin("rule", ruleBuiltin),
		"table": starlark.NewBuiltin("table", tableBuiltin),
		"time":  startime.Module,
	}
}

// compilePlugin executes a plugin entry point and returns the unit it
// exports together with the exported symbol name.
func compilePlugin(ctx context.Context, c candidate, opts LoadOptions) (Entry, string, error) {
	src, err := os.ReadFile(c.entry)
	if err != nil {
		return Entry{}, "", fmt.Errorf("read entry point: %w", err)
	}
	if len(src) > maxEntryPointBytes {
		return Entry{}, "", fmt.Errorf("entry point exceeds %d bytes", maxEntryPointBytes)
	}

	thread := &starlark.Thread{Name: "plugin-load:" + c.name}
	thread.SetMaxExecutionSteps(opts.MaxSteps)
	ctx, cancel := context.WithTimeoutCause(ctx, opts.LoadTimeout,
		fmt.Errorf("load exceeded %s", opts.LoadTimeout))
	defer cancel()

	var globals starlark.StringDict
	if err := runCancellable(ctx, thread, c.name, func() error {
		loaded, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, c.entry, src, predeclared())
		if err != nil {
			return err
		}
		globals = loaded
		return nil
	}); err != nil {
		return Entry{}, "", fmt.Errorf("execute entry point: %w", err)
	}

	symbol, err := firstExport(globals)
	if err != nil {
		return Entry{}, "", err
	}
	uv, ok := globals[symbol].(*unitValue)
	if !ok {
		return Entry{}, symbol, fmt.Errorf("exported %q is a %s, not a unit", symbol, globals[symbol].Type())
	}
	return Entry{
		Name:    c.name,
		Syntax:  uv.syntax,
		Source:  SourcePlugin,
		Origin:  c.dir,
		Factory: uv.factory(c.name, opts.MaxSteps),
	}, symbol, nil
}

func firstExport(globals starlark.StringDict) (string, error) {
	all, ok := globals["__all__"]
	if !ok {
		return "", errors.New("entry point does not declare __all__")
	}
	seq, ok := all.(starlark.Indexable)
	if !ok {
		return "", fmt.Errorf("__all__ is a %s, want list", all.Type())
	}
	if seq.Len() == 0 {
		return "", errors.New("__all__ is empty")
	}
	symbol, ok := starlark.AsString(seq.Index(0))
	if !ok {
		return "", fmt.Errorf("__all__[0] is a %s, want string", seq.Index(0).Type())
	}
	if _, ok := globals[symbol]; !ok {
		return symbol, fmt.Errorf("__all__ exports %q which is not defined", symbol)
	}
	return symbol, nil
}

// runCancellable runs fn on the calling goroutine and cancels thread once
// ctx is done. A cancelled run reports the context cause as an Other error
// for unit.
func runCancellable(ctx context.Context, thread *starlark.Thread, unit string, fn func() error) error {
	stop := context.AfterFunc(ctx, func() { thread.Cancel(context.Cause(ctx).Error()) })
	defer stop()

	err := fn()
	if err != nil && ctx.Err() != nil {
		return &domain.Error{
			Kind:    domain.KindOther,
			Unit:    unit,
			Message: fmt.Sprintf("starlark execution cancelled: %v", context.Cause(ctx)),
			Err:     err,
		}
	}
	return err
}

// unitValue is the Starlark value unit(...) returns.
type unitValue struct {
	syntax    Syntax
	transform starlark.Callable
}

var _ starlark.Value = (*unitValue)(nil)

func (u *unitValue) String() string        { return fmt.Sprintf("<unit %s>", u.transform.Name()) }
func (u *unitValue) Type() string          { return "unit" }
func (u *unitValue) Freeze()               { u.transform.Freeze() }
func (u *unitValue) Truth() starlark.Bool  { return starlark.True }
func (u *unitValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: unit") }

func (u *unitValue) factory(name string, maxSteps uint64) Factory {
	return func(args Args) (Unit, error) {
		return &starlarkUnit{name: name, transform: u.transform, args: args, maxSteps: maxSteps}, nil
	}
}

// unit(syntax=[rule(...)], transform=fn, use_timewindow=False)
func unitBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		rules      starlark.Iterable
		transform  starlark.Callable
		timeWindow bool
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"syntax", &rules, "transform", &transform, "use_timewindow?", &timeWindow); err != nil {
		return nil, err
	}
	syn := Syntax{UseTimeWindow: timeWindow}
	it := starlark.Iterate(rules)
	defer it.Done()
	var v starlark.Value
	for it.Next(&v) {
		rv, ok := v.(*ruleValue)
		if !ok {
			return nil, fmt.Errorf("%s: syntax element is a %s, want rule", b.Name(), v.Type())
		}
		syn.Rules = append(syn.Rules, rv.rule)
	}
	if err := syn.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return &unitValue{syntax: syn, transform: transform}, nil
}

// ruleValue is the Starlark value rule(...) returns.
type ruleValue struct{ rule Rule }

var _ starlark.Value = (*ruleValue)(nil)

func (r *ruleValue) String() string        { return fmt.Sprintf("<rule %s %s>", r.rule.Type, r.rule.Name) }
func (r *ruleValue) Type() string          { return "rule" }
func (r *ruleValue) Freeze()               {}
func (r *ruleValue) Truth() starlark.Bool  { return starlark.True }
func (r *ruleValue) Hash() (uint32, error) { return starlark.String(r.rule.Name).Hash() }

// rule(name, type="arg", key="", required=False, inf=False, input_types=[])
func ruleBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		name, typ, key string
		required, inf  bool
		inputTypes     *starlark.List
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"name", &name, "type?", &typ, "key?", &key, "required?", &required,
		"inf?", &inf, "input_types?", &inputTypes); err != nil {
		return nil, err
	}
	rt, err := ParseRuleType(typ)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	r := Rule{Name: name, Type: rt, Key: key, Required: required, Inf: inf}
	if inputTypes != nil {
		for i := range inputTypes.Len() {
			s, ok := starlark.AsString(inputTypes.Index(i))
			if !ok {
				return nil, fmt.Errorf("%s: input_types[%d] is not a string", b.Name(), i)
			}
			r.InputTypes = append(r.InputTypes, s)
		}
	}
	return &ruleValue{rule: r}, nil
}

// starlarkUnit runs a plugin transform for one step.
type starlarkUnit struct {
	name      string
	transform starlark.Callable
	args      Args
	maxSteps  uint64
}

func (u *starlarkUnit) Transform(ctx context.Context, in *table.Table) (*table.Table, error) {
	thread := &starlark.Thread{Name: "unit:" + u.name}
	thread.SetMaxExecutionSteps(u.maxSteps)

	var df starlark.Value = starlark.None
	if in != nil {
		df = newTableValue(in)
	}
	var res starlark.Value
	if err := runCancellable(ctx, thread, u.name, func() error {
		var err error
		res, err = starlark.Call(thread, u.transform, starlark.Tuple{df, &argsValue{args: u.args}}, nil)
		return err
	}); err != nil {
		return nil, domain.AsError(err, u.name)
	}
	tv, ok := res.(*tableValue)
	if !ok {
		return nil, domain.ErrInvalidTransformResult(u.name, "transform returned %s, want table", res.Type())
	}
	return tv.t, nil
}
