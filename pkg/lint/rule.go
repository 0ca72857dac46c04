package lint

import (
	"context"

	"github.com/leapstack-labs/vaultlint/pkg/core"
)

// Rule is the interface all lint rules implement.
// Rules are immutable once loaded and may be called concurrently.
type Rule interface {
	// ID returns the parsed rule id, e.g. "frontmatter-required.strict"
	ID() core.RuleID

	// Name returns the human-readable name
	Name() string

	// Description returns a human-readable description
	Description() string

	// Category returns the category, e.g. "metadata", "naming", "structure"
	Category() string

	// Config returns the path configuration and raw settings
	Config() RuleConfig

	// Lint analyzes one file and returns issues.
	Lint(ctx context.Context, ec *ExecutionContext) ([]core.Issue, error)
}

// Fixer is implemented by rules that can repair their own issues.
type Fixer interface {
	// Fix receives only this rule's fixable issues for the file.
	Fix(ctx context.Context, ec *ExecutionContext, issues []core.Issue) ([]core.Fix, error)
}

// PathFilter is implemented by rules with applicability logic beyond
// their path configuration.
type PathFilter interface {
	ShouldApplyToFile(path string) bool
}

// RuleInfo provides metadata about a rule for documentation/tooling.
type RuleInfo struct {
	ID          string   `json:"id"`
	MajorID     string   `json:"major_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Fixable     bool     `json:"fixable"`
	Include     []string `json:"include_patterns"`
	Exclude     []string `json:"exclude_patterns"`
	Source      string   `json:"source,omitempty"`
}

// GetRuleInfo extracts metadata from a Rule for documentation/tooling.
func GetRuleInfo(r Rule) RuleInfo {
	cfg := r.Config()
	info := RuleInfo{
		ID:          r.ID().Full,
		MajorID:     r.ID().Major,
		Name:        r.Name(),
		Description: r.Description(),
		Category:    r.Category(),
		Include:     cfg.IncludePatterns,
		Exclude:     cfg.ExcludePatterns,
	}
	_, info.Fixable = r.(Fixer)
	if s, ok := r.(interface{ Source() string }); ok {
		info.Source = s.Source()
	}
	return info
}

// =============================================================================
// Base
// =============================================================================

// Definition is a validated rule definition as loaded from disk.
type Definition struct {
	ID          core.RuleID
	Name        string
	Description string
	Category    string
	Config      RuleConfig
	SourcePath  string // Definition file the rule was loaded from
}

// Base implements the metadata half of Rule from a Definition.
// Family implementations embed it and add Lint (and optionally Fix).
type Base struct {
	Def Definition
}

// NewBase creates a Base.
func NewBase(def Definition) Base {
	return Base{Def: def}
}

func (b Base) ID() core.RuleID     { return b.Def.ID }
func (b Base) Name() string        { return b.Def.Name }
func (b Base) Description() string { return b.Def.Description }
func (b Base) Category() string    { return b.Def.Category }
func (b Base) Config() RuleConfig  { return b.Def.Config }

// Source returns the definition file path.
func (b Base) Source() string { return b.Def.SourcePath }

// Issue builds an issue attributed to this rule and the context's file.
func (b Base) Issue(ec *ExecutionContext, sev core.Severity, line int, msg string, fixable bool) core.Issue {
	return core.Issue{
		RuleID:   b.Def.ID.Full,
		Severity: sev,
		Message:  msg,
		File:     ec.Path(),
		Line:     line,
		Fixable:  fixable,
	}
}
