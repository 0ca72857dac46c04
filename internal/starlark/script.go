// Package starlark runs user-supplied Starlark lint scripts.
//
// A script is compiled once and initialized per call, so module globals
// never leak between files. Scripts see the document as a struct and
// report findings either as dicts or through the issue() builtin.
package starlark

import (
	"context"
	"errors"
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// Script is a compiled Starlark program.
type Script struct {
	name string
	prog *starlark.Program
}

// EvalError represents an error raised while running a script.
type EvalError struct {
	Script    string
	Function  string
	Message   string
	Backtrace string
}

func (e *EvalError) Error() string {
	if e.Function != "" {
		return fmt.Sprintf("%s: error in %s(): %s", e.Script, e.Function, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Script, e.Message)
}

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

// Compile parses and resolves src. Only the builtins returned by
// Predeclared may be referenced as free names.
func Compile(name, src string) (*Script, error) {
	predeclared := Predeclared()
	_, prog, err := starlark.SourceProgramOptions(fileOptions, name, src, predeclared.Has)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	return &Script{name: name, prog: prog}, nil
}

// Name returns the script name.
func (s *Script) Name() string {
	return s.name
}

// Call initializes the module on thread and calls fn with args. The call
// is cancelled when ctx is done; a cancelled thread must not be reused.
func (s *Script) Call(ctx context.Context, thread *starlark.Thread, fn string, args ...starlark.Value) (starlark.Value, error) {
	stop := context.AfterFunc(ctx, func() { thread.Cancel(ctx.Err().Error()) })
	defer stop()

	globals, err := s.prog.Init(thread, Predeclared())
	if err != nil {
		return nil, s.evalError("", err)
	}
	callable, ok := globals[fn].(starlark.Callable)
	if !ok {
		return nil, &EvalError{Script: s.name, Function: fn, Message: "function is not defined"}
	}
	v, err := starlark.Call(thread, callable, starlark.Tuple(args), nil)
	if err != nil {
		return nil, s.evalError(fn, err)
	}
	return v, nil
}

// Defines reports whether the module defines fn as a callable. It runs
// the module's top level on thread.
func (s *Script) Defines(thread *starlark.Thread, fn string) (bool, error) {
	globals, err := s.prog.Init(thread, Predeclared())
	if err != nil {
		return false, s.evalError("", err)
	}
	_, ok := globals[fn].(starlark.Callable)
	return ok, nil
}

func (s *Script) evalError(fn string, err error) error {
	e := &EvalError{Script: s.name, Function: fn, Message: err.Error()}
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		e.Message = evalErr.Msg
		e.Backtrace = evalErr.Backtrace()
	}
	return e
}

// Predeclared returns the builtins available to scripts.
func Predeclared() starlark.StringDict {
	return starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
		"issue":  starlark.NewBuiltin("issue", issueBuiltin),
	}
}

// issueBuiltin builds an issue dict:
// issue(message, line=0, column=0, severity="warning", fixable=False).
func issueBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		message  string
		line     int
		column   int
		severity = "warning"
		fixable  bool
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"message", &message,
		"line?", &line,
		"column?", &column,
		"severity?", &severity,
		"fixable?", &fixable,
	); err != nil {
		return nil, err
	}
	d := starlark.NewDict(5)
	_ = d.SetKey(starlark.String("message"), starlark.String(message))
	_ = d.SetKey(starlark.String("line"), starlark.MakeInt(line))
	_ = d.SetKey(starlark.String("column"), starlark.MakeInt(column))
	_ = d.SetKey(starlark.String("severity"), starlark.String(severity))
	_ = d.SetKey(starlark.String("fixable"), starlark.Bool(fixable))
	return d, nil
}
