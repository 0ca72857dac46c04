package families

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/leapstack-labs/vaultlint/internal/starlark"
	"github.com/leapstack-labs/vaultlint/pkg/core"
	"github.com/leapstack-labs/vaultlint/pkg/lint"
)

// ScriptSettings configures script rules.
type ScriptSettings struct {
	// Source is a Starlark module defining the lint function.
	Source string `settings:"source"`
	// Function is the entry point; it receives the document and returns a
	// list of issue dicts.
	Function string `settings:"function"`
	// MaxSteps bounds the computation of one call.
	MaxSteps uint64 `settings:"max_steps"`
}

// Validate implements lint.SettingsValidator.
func (s *ScriptSettings) Validate() error {
	if s.Source == "" {
		return errors.New("source is required")
	}
	if s.Function == "" {
		return errors.New("function must not be empty")
	}
	return nil
}

// Script runs a user-supplied Starlark function per file.
type Script struct {
	lint.Base
	settings ScriptSettings
	script   *starlark.Script
	threads  *starlark.ThreadPool
}

func scriptFamily() lint.Family {
	return lint.Family{
		MajorID:     "script",
		Description: "Runs a Starlark lint function",
		Resolution: "script rules share one major id; merge their checks into a single script " +
			"or give each its own family name.",
		New: newScript,
	}
}

func newScript(def lint.Definition) (lint.Rule, error) {
	s, err := lint.DecodeSettings(def.Config.Settings, ScriptSettings{Function: "lint"})
	if err != nil {
		return nil, err
	}
	name := def.ID.Full + ".star"
	compiled, err := starlark.Compile(name, s.Source)
	if err != nil {
		return nil, err
	}
	threads := starlark.NewThreadPool(runtime.GOMAXPROCS(0), s.MaxSteps, nil)

	thread := threads.Get(name)
	ok, err := compiled.Defines(thread, s.Function)
	if err != nil {
		return nil, err
	}
	threads.Put(thread)
	if !ok {
		return nil, fmt.Errorf("script does not define %s(doc)", s.Function)
	}

	return &Script{Base: lint.NewBase(def), settings: s, script: compiled, threads: threads}, nil
}

// Lint implements lint.Rule.
func (r *Script) Lint(ctx context.Context, ec *lint.ExecutionContext) ([]core.Issue, error) {
	doc, err := starlark.DocumentValue(ec.File, ec.Metadata)
	if err != nil {
		return nil, err
	}

	thread := r.threads.Get(r.script.Name())
	v, err := r.script.Call(ctx, thread, r.settings.Function, doc)
	if err != nil {
		return nil, err
	}
	if ctx.Err() == nil {
		r.threads.Put(thread)
	}

	out, err := starlark.ToGo(v)
	if err != nil {
		return nil, fmt.Errorf("convert result: %w", err)
	}
	return r.toIssues(ec, out)
}

func (r *Script) toIssues(ec *lint.ExecutionContext, out any) ([]core.Issue, error) {
	if out == nil {
		return nil, nil
	}
	items, ok := out.([]any)
	if !ok {
		return nil, fmt.Errorf("%s() must return a list, got %T", r.settings.Function, out)
	}

	issues := make([]core.Issue, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("result %d must be a dict, got %T", i, item)
		}
		msg, ok := m["message"].(string)
		if !ok || msg == "" {
			return nil, fmt.Errorf("result %d has no message", i)
		}
		sev := core.SeverityWarning
		if s, ok := m["severity"].(string); ok {
			sev, _ = core.ParseSeverity(s)
		}
		is := r.Issue(ec, sev, intField(m, "line"), msg, false)
		is.Column = intField(m, "column")
		issues = append(issues, is)
	}
	return issues, nil
}

func intField(m map[string]any, key string) int {
	if v, ok := m[key].(int64); ok && v > 0 {
		return int(v)
	}
	return 0
}
