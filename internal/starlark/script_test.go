package starlark

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

func TestCompile(t *testing.T) {
	_, err := Compile("bad.star", "def lint(doc):\n  return [")
	require.Error(t, err)
	assert.ErrorContains(t, err, "bad.star")

	_, err = Compile("undefined.star", "def lint(doc):\n    return unknown_name\n")
	require.Error(t, err, "free names must be predeclared")
}

func TestScript_Call(t *testing.T) {
	script, err := Compile("check.star", `
def lint(doc):
    out = []
    if doc.path.endswith(".md"):
        out.append(issue("markdown file", line=3, severity="info"))
    out.append({"message": "plain dict"})
    return out
`)
	require.NoError(t, err)

	pool := NewThreadPool(1, 0, nil)
	thread := pool.Get("check")
	defer pool.Put(thread)

	doc := starlarkstruct.FromStringDict(starlark.String("doc"), starlark.StringDict{"path": starlark.String("a.md")})
	v, err := script.Call(context.Background(), thread, "lint", doc)
	require.NoError(t, err)

	got, err := ToGo(v)
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"message": "markdown file", "line": int64(3), "column": int64(0), "severity": "info", "fixable": false},
		map[string]any{"message": "plain dict"},
	}, got)
}

func TestScript_Errors(t *testing.T) {
	pool := NewThreadPool(1, 1_000, nil)

	t.Run("missing function", func(t *testing.T) {
		script, err := Compile("empty.star", "x = 1\n")
		require.NoError(t, err)
		_, err = script.Call(context.Background(), pool.Get("empty"), "lint")
		var evalErr *EvalError
		require.ErrorAs(t, err, &evalErr)
		assert.Equal(t, "lint", evalErr.Function)

		ok, err := script.Defines(pool.Get("empty"), "lint")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("runtime failure", func(t *testing.T) {
		script, err := Compile("fail.star", "def lint(doc):\n    fail(\"boom\")\n")
		require.NoError(t, err)
		_, err = script.Call(context.Background(), pool.Get("fail"), "lint", starlark.None)
		require.Error(t, err)
		assert.ErrorContains(t, err, "boom")
	})

	t.Run("step limit", func(t *testing.T) {
		script, err := Compile("spin.star", "def lint(doc):\n    while True:\n        pass\n")
		require.NoError(t, err)
		_, err = script.Call(context.Background(), pool.Get("spin"), "lint", starlark.None)
		require.Error(t, err)
		assert.ErrorContains(t, err, "too many steps")
	})

	t.Run("cancelled context", func(t *testing.T) {
		script, err := Compile("spin.star", "def lint(doc):\n    while True:\n        pass\n")
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = script.Call(ctx, NewThreadPool(1, 1<<40, nil).Get("spin"), "lint", starlark.None)
		require.Error(t, err)
	})
}
