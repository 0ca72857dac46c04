package families

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/vaultlint/internal/fixer"
	"github.com/leapstack-labs/vaultlint/pkg/core"
	"github.com/leapstack-labs/vaultlint/pkg/document"
	"github.com/leapstack-labs/vaultlint/pkg/lint"
)

func build(t *testing.T, id string, settings map[string]any) lint.Rule {
	t.Helper()
	def := lint.Definition{
		ID:       core.MustParseRuleID(id),
		Name:     id,
		Category: "test",
		Config:   lint.RuleConfig{Settings: settings}.WithDefaults(),
	}
	rule, err := lint.DefaultRegistry().Build(def)
	require.NoError(t, err)
	return rule
}

func buildErr(t *testing.T, id string, settings map[string]any) error {
	t.Helper()
	def := lint.Definition{ID: core.MustParseRuleID(id), Config: lint.RuleConfig{Settings: settings}.WithDefaults()}
	_, err := lint.DefaultRegistry().Build(def)
	return err
}

func execCtx(t *testing.T, path, content string) *lint.ExecutionContext {
	t.Helper()
	doc, err := document.NewMarkdownParser().Parse(path, []byte(content))
	require.NoError(t, err)
	return lint.NewExecutionContext(doc, "/vault", lint.ExecOptions{}, nil)
}

// lintAndFix runs rule over content and applies its fixes.
func lintAndFix(t *testing.T, rule lint.Rule, path, content string) ([]core.Issue, fixer.Result) {
	t.Helper()
	ec := execCtx(t, path, content)
	issues, err := rule.Lint(context.Background(), ec)
	require.NoError(t, err)

	f, ok := rule.(lint.Fixer)
	if !ok {
		return issues, fixer.Result{Content: content}
	}
	var fixable []core.Issue
	for _, is := range issues {
		if is.Fixable {
			fixable = append(fixable, is)
		}
	}
	fixes, err := f.Fix(context.Background(), ec, fixable)
	require.NoError(t, err)
	res, err := fixer.Apply(content, fixes)
	require.NoError(t, err)
	return issues, res
}

func TestRegisterAll(t *testing.T) {
	reg := lint.NewRegistry()
	require.NoError(t, RegisterAll(reg))
	assert.Equal(t, len(All()), reg.Count())

	f, ok := reg.Resolve("file-naming-strict")
	require.True(t, ok)
	assert.Equal(t, "file-naming", f.MajorID)

	for _, major := range []string{"frontmatter-required", "file-naming", "trailing-whitespace", "heading-structure", "script"} {
		res, ok := reg.Resolution(major)
		assert.True(t, ok, major)
		assert.NotEmpty(t, res, major)
	}
}

func TestFrontmatterRequired(t *testing.T) {
	rule := build(t, "frontmatter-required.basic", map[string]any{
		"required_fields": []any{"title", "tags", "created"},
		"defaults":        map[string]any{"tags": []any{}, "created": "2024-01-01"},
	})

	tests := []struct {
		name        string
		content     string
		wantIssues  int
		wantContent string
	}{
		{
			name:        "no frontmatter",
			content:     "# Note\n",
			wantIssues:  3,
			wantContent: "---\ntitle: \"\"\ntags: []\ncreated: \"2024-01-01\"\n---\n# Note\n",
		},
		{
			name:        "partial frontmatter",
			content:     "---\ntitle: Note\n---\nbody\n",
			wantIssues:  2,
			wantContent: "---\ntitle: Note\ntags: []\ncreated: \"2024-01-01\"\n---\nbody\n",
		},
		{
			name:        "complete",
			content:     "---\ntitle: Note\ntags: [a]\ncreated: 2024-02-02\n---\n",
			wantIssues:  0,
			wantContent: "---\ntitle: Note\ntags: [a]\ncreated: 2024-02-02\n---\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues, res := lintAndFix(t, rule, "a.md", tt.content)
			assert.Len(t, issues, tt.wantIssues)
			for _, is := range issues {
				assert.Equal(t, "frontmatter-required.basic", is.RuleID)
				assert.Equal(t, core.SeverityError, is.Severity)
				assert.True(t, is.Fixable)
			}
			assert.Equal(t, tt.wantContent, res.Content)
		})
	}
}

func TestFrontmatterRequired_EmptyValues(t *testing.T) {
	rule := build(t, "frontmatter-required.strict", map[string]any{"required_fields": []any{"title"}})
	issues, err := rule.Lint(context.Background(), execCtx(t, "a.md", "---\ntitle: \"\"\n---\n"))
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.False(t, issues[0].Fixable)

	lenient := build(t, "frontmatter-required.minimal", map[string]any{"required_fields": []any{"title"}, "allow_empty": true})
	issues, err = lenient.Lint(context.Background(), execCtx(t, "a.md", "---\ntitle: \"\"\n---\n"))
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestFrontmatterRequired_FixOnlyGivenIssues(t *testing.T) {
	rule := build(t, "frontmatter-required.basic", map[string]any{"required_fields": []any{"title", "tags"}})
	ec := execCtx(t, "a.md", "body\n")
	issues, err := rule.Lint(context.Background(), ec)
	require.NoError(t, err)
	require.Len(t, issues, 2)

	fixes, err := rule.(lint.Fixer).Fix(context.Background(), ec, issues[1:])
	require.NoError(t, err)
	require.Len(t, fixes, 1)
	assert.Equal(t, "---\ntags: \"\"\n---\n", fixes[0].Changes[0].NewText)
}

func TestFrontmatterRequired_InvalidSettings(t *testing.T) {
	assert.ErrorContains(t, buildErr(t, "frontmatter-required.x", nil), "required_fields")
	assert.Error(t, buildErr(t, "frontmatter-required.x", map[string]any{"required_fields": []any{""}}))
}

func TestTrailingWhitespace(t *testing.T) {
	tests := []struct {
		name        string
		settings    map[string]any
		content     string
		wantLines   []int
		wantContent string
	}{
		{
			name:        "keeps markdown line breaks",
			content:     "a  \nb \nc\t\nd\n   \n",
			wantLines:   []int{2, 3, 5},
			wantContent: "a  \nb\nc\nd\n\n",
		},
		{
			name:        "strict",
			settings:    map[string]any{"ignore_markdown_line_breaks": false},
			content:     "a  \nb\r\nc \r\n",
			wantLines:   []int{1, 3},
			wantContent: "a\nb\r\nc\r\n",
		},
		{
			name:        "clean",
			content:     "a\nb\n",
			wantContent: "a\nb\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := build(t, "trailing-whitespace.basic", tt.settings)
			issues, res := lintAndFix(t, rule, "a.md", tt.content)
			var lines []int
			for _, is := range issues {
				lines = append(lines, is.Line)
			}
			assert.Equal(t, tt.wantLines, lines)
			assert.Equal(t, tt.wantContent, res.Content)
		})
	}
}

func TestFileNaming(t *testing.T) {
	tests := []struct {
		id       string
		style    string
		path     string
		wantMove string
	}{
		{"file-naming.kebab-case", "kebab", "notes/My Great Note.md", "notes/my-great-note.md"},
		{"file-naming.kebab-case", "kebab", "notes/already-kebab.md", ""},
		{"file-naming-strict.snake", "snake", "Daily Log 2024.md", "daily_log_2024.md"},
		{"file-naming.lowercase", "lower", "Inbox/README.md", "Inbox/readme.md"},
		{"file-naming.lowercase", "lower", "inbox/read me.md", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rule := build(t, tt.id, map[string]any{"style": tt.style})
			_, res := lintAndFix(t, rule, tt.path, "x")
			if tt.wantMove == "" {
				assert.Empty(t, res.Moves)
				return
			}
			require.Len(t, res.Moves, 1)
			assert.Equal(t, tt.path, res.Moves[0].OldPath)
			assert.Equal(t, tt.wantMove, res.Moves[0].NewPath)
		})
	}

	assert.ErrorContains(t, buildErr(t, "file-naming.x", map[string]any{"style": "camel"}), "style")
}

func TestHeadingStructure(t *testing.T) {
	content := "# One\n### Three\n# Again\n####### not a heading\n"
	rule := build(t, "heading-structure.basic", map[string]any{"max_level": 2})
	issues, err := rule.Lint(context.Background(), execCtx(t, "a.md", content))
	require.NoError(t, err)

	var msgs []string
	for _, is := range issues {
		msgs = append(msgs, is.Message)
		assert.False(t, is.Fixable)
	}
	assert.Equal(t, []string{
		"heading level 3 exceeds maximum 2",
		"heading level jumps from 1 to 3",
		"multiple top-level headings",
	}, msgs)

	requireH1 := build(t, "heading-structure.titled", map[string]any{"require_h1": true})
	issues, err = requireH1.Lint(context.Background(), execCtx(t, "a.md", "## Two\n"))
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "missing top-level heading", issues[0].Message)

	assert.Error(t, buildErr(t, "heading-structure.x", map[string]any{"max_level": 9}))
}

func TestScript(t *testing.T) {
	rule := build(t, "script.todo", map[string]any{"source": `
def lint(doc):
    out = []
    for i, line in enumerate(doc.content.split("\n")):
        if "TODO" in line:
            out.append(issue("unresolved TODO", line=i + 1, severity="info"))
    if not doc.has_frontmatter:
        out.append({"message": "no frontmatter", "severity": "bogus"})
    return out
`})
	issues, err := rule.Lint(context.Background(), execCtx(t, "a.md", "first\nTODO: x\n"))
	require.NoError(t, err)
	require.Len(t, issues, 2)

	assert.Equal(t, "unresolved TODO", issues[0].Message)
	assert.Equal(t, 2, issues[0].Line)
	assert.Equal(t, core.SeverityInfo, issues[0].Severity)
	assert.Equal(t, "script.todo", issues[0].RuleID)
	assert.Equal(t, "a.md", issues[0].File)
	assert.Equal(t, core.SeverityWarning, issues[1].Severity)
	_, fixable := rule.(lint.Fixer)
	assert.False(t, fixable)
}

func TestScript_Errors(t *testing.T) {
	assert.ErrorContains(t, buildErr(t, "script.x", nil), "source")
	assert.Error(t, buildErr(t, "script.x", map[string]any{"source": "def lint(doc) return"}))
	assert.ErrorContains(t, buildErr(t, "script.x", map[string]any{"source": "x = 1\n"}), "does not define")

	bad := build(t, "script.bad", map[string]any{"source": "def lint(doc):\n    return 42\n"})
	_, err := bad.Lint(context.Background(), execCtx(t, "a.md", "x"))
	assert.ErrorContains(t, err, "must return a list")

	spin := build(t, "script.spin", map[string]any{"source": "def lint(doc):\n    while True:\n        pass\n", "max_steps": 1000})
	_, err = spin.Lint(context.Background(), execCtx(t, "a.md", "x"))
	assert.Error(t, err)
}
