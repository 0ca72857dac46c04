package ruleloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/vaultlint/pkg/core"
	"github.com/leapstack-labs/vaultlint/pkg/lint"
)

func rule(id, category string, cfg lint.RuleConfig) lint.Rule {
	return stubRule{lint.NewBase(lint.Definition{
		ID:         core.MustParseRuleID(id),
		Name:       id,
		Category:   category,
		Config:     cfg.WithDefaults(),
		SourcePath: "/rules/enabled/" + id + ".toml",
	})}
}

func narrow(pattern string) lint.RuleConfig {
	return lint.RuleConfig{PathAllowlist: []string{pattern}}
}

func TestDetectRuleConflicts(t *testing.T) {
	reg := testRegistry(t)

	tests := []struct {
		name      string
		rules     []lint.Rule
		wantValid bool
		wantMajor []string
	}{
		{
			name:      "empty set",
			wantValid: true,
			wantMajor: []string{},
		},
		{
			name: "distinct majors",
			rules: []lint.Rule{
				rule("x.strict", "metadata", narrow("a/**")),
				rule("y.basic", "structure", narrow("b/**")),
			},
			wantValid: true,
			wantMajor: []string{},
		},
		{
			name: "shared majors",
			rules: []lint.Rule{
				rule("z.one", "metadata", narrow("a/**")),
				rule("x.strict", "metadata", narrow("b/**")),
				rule("z.two", "structure", narrow("c/**")),
				rule("x.minimal", "metadata", narrow("d/**")),
				rule("z.three", "structure", narrow("e/**")),
			},
			wantValid: false,
			wantMajor: []string{"x", "z"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := DetectRuleConflicts(tt.rules, reg)
			assert.Equal(t, tt.wantValid, res.Valid)
			majors := []string{}
			for _, c := range res.Conflicts {
				majors = append(majors, c.MajorID)
			}
			assert.Equal(t, tt.wantMajor, majors)
		})
	}
}

func TestDetectRuleConflicts_Resolutions(t *testing.T) {
	reg := testRegistry(t)
	res := DetectRuleConflicts([]lint.Rule{
		rule("x.strict", "metadata", narrow("a/**")),
		rule("x.minimal", "metadata", narrow("b/**")),
		rule("q.one", "structure", narrow("c/**")),
		rule("q.two", "structure", narrow("d/**")),
	}, reg)
	require.Len(t, res.Conflicts, 2)

	q, x := res.Conflicts[0], res.Conflicts[1]
	assert.Equal(t, []string{"q.one", "q.two"}, q.ConflictingRules)
	assert.Contains(t, q.Resolution, "mutually exclusive")
	assert.Contains(t, q.Resolution, "enabled/")

	assert.Equal(t, []string{"x.minimal", "x.strict"}, x.ConflictingRules)
	assert.Contains(t, x.Resolution, "Keep x.strict for published notes")
	assert.Equal(t, []string{"/rules/enabled/x.minimal.toml", "/rules/enabled/x.strict.toml"}, x.Sources)
}

func TestDetectRuleConflicts_Warnings(t *testing.T) {
	reg := testRegistry(t)
	same := lint.RuleConfig{PathAllowlist: []string{"daily/**"}, IncludePatterns: []string{"**/*.md"}}

	res := DetectRuleConflicts([]lint.Rule{
		rule("b.open", "formatting", lint.RuleConfig{}),
		rule("c.one", "naming", same),
		rule("a.two", "naming", same),
	}, reg)
	assert.True(t, res.Valid, "warnings never invalidate a rule set")

	kinds := map[string][]Warning{}
	for _, w := range res.Warnings {
		kinds[w.Kind] = append(kinds[w.Kind], w)
	}
	require.Len(t, kinds[WarnWideOpen], 1)
	assert.Equal(t, []string{"b.open"}, kinds[WarnWideOpen][0].RuleIDs)

	require.Len(t, kinds[WarnRedundantFilters], 1)
	assert.Equal(t, []string{"a.two", "c.one"}, kinds[WarnRedundantFilters][0].RuleIDs)

	require.Len(t, kinds[WarnMissingCategory], 2)
	assert.Contains(t, kinds[WarnMissingCategory][0].Message, "metadata")
	assert.Contains(t, kinds[WarnMissingCategory][1].Message, "structure")
}

func TestDetectRuleConflicts_Deterministic(t *testing.T) {
	reg := testRegistry(t)
	rules := []lint.Rule{
		rule("x.strict", "metadata", lint.RuleConfig{}),
		rule("y.a", "structure", lint.RuleConfig{}),
		rule("x.minimal", "metadata", lint.RuleConfig{}),
		rule("y.b", "structure", lint.RuleConfig{}),
	}
	first := DetectRuleConflicts(rules, reg)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, DetectRuleConflicts(rules, reg))
	}
}
