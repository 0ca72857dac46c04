package fixer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/vaultlint/pkg/core"
)

func fix(changes ...core.FileChange) core.Fix {
	return core.Fix{RuleID: "x.y", File: "a.md", Description: "test", Changes: changes}
}

func TestApply_Changes(t *testing.T) {
	tests := []struct {
		name    string
		content string
		change  core.FileChange
		want    string
	}{
		{
			name:    "insert at file start",
			content: "body\n",
			change:  core.FileChange{Type: core.ChangeInsert, Line: 1, NewText: "---\ntitle: x\n---\n"},
			want:    "---\ntitle: x\n---\nbody\n",
		},
		{
			name:    "insert before line",
			content: "---\na: 1\n---\nbody\n",
			change:  core.FileChange{Type: core.ChangeInsert, Line: 3, NewText: "b: 2\n"},
			want:    "---\na: 1\nb: 2\n---\nbody\n",
		},
		{
			name:    "insert at column",
			content: "ab\ncd\n",
			change:  core.FileChange{Type: core.ChangeInsert, Line: 2, Column: 2, NewText: "X"},
			want:    "ab\ncXd\n",
		},
		{
			name:    "insert at end of line",
			content: "ab\ncd\n",
			change:  core.FileChange{Type: core.ChangeInsert, Line: 1, Column: 10, NewText: "!"},
			want:    "ab!\ncd\n",
		},
		{
			name:    "insert past end appends",
			content: "a\n",
			change:  core.FileChange{Type: core.ChangeInsert, Line: 9, NewText: "z\n"},
			want:    "a\nz\n",
		},
		{
			name:    "replace anchored at line",
			content: "x  \nx  \n",
			change:  core.FileChange{Type: core.ChangeReplace, Line: 2, OldText: "x  ", NewText: "x"},
			want:    "x  \nx\n",
		},
		{
			name:    "replace without line searches whole file",
			content: "one two\n",
			change:  core.FileChange{Type: core.ChangeReplace, OldText: "two", NewText: "2"},
			want:    "one 2\n",
		},
		{
			name:    "delete whole line",
			content: "a\nb\nc\n",
			change:  core.FileChange{Type: core.ChangeDelete, Line: 2},
			want:    "a\nc\n",
		},
		{
			name:    "delete text",
			content: "a b c\n",
			change:  core.FileChange{Type: core.ChangeDelete, Line: 1, OldText: " b"},
			want:    "a c\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Apply(tt.content, []core.Fix{fix(tt.change)})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Content)
			assert.True(t, res.Changed)
			assert.Len(t, res.Applied, 1)
		})
	}
}

func TestApply_FailedFixIsAtomic(t *testing.T) {
	good := fix(core.FileChange{Type: core.ChangeReplace, OldText: "a", NewText: "A"})
	bad := fix(
		core.FileChange{Type: core.ChangeReplace, OldText: "b", NewText: "B"},
		core.FileChange{Type: core.ChangeReplace, OldText: "missing", NewText: "?"},
	)
	res, err := Apply("a b\n", []core.Fix{bad, good})
	require.Error(t, err)
	assert.ErrorContains(t, err, "not found")
	assert.Equal(t, "A b\n", res.Content, "partial changes of the failed fix are discarded")
	assert.Equal(t, []core.Fix{good}, res.Applied)
}

func TestApply_Moves(t *testing.T) {
	move := core.FileChange{Type: core.ChangeMove, OldPath: "My Note.md", NewPath: "my-note.md"}
	res, err := Apply("body\n", []core.Fix{fix(move)})
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, []core.FileChange{move}, res.Moves)

	_, err = Apply("body\n", []core.Fix{fix(core.FileChange{Type: core.ChangeMove, OldPath: "a.md"})})
	assert.Error(t, err)
}

func TestApply_UnknownChangeType(t *testing.T) {
	_, err := Apply("x", []core.Fix{fix(core.FileChange{Type: "rewrite"})})
	assert.ErrorContains(t, err, "unknown change type")
}

func TestApply_NoFixes(t *testing.T) {
	res, err := Apply("x", nil)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Empty(t, res.Applied)
}
