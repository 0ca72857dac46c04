package lint

import (
	"slices"
	"strings"
)

// Default path patterns applied when a definition omits them.
var (
	DefaultIncludePatterns = []string{"**/*"}
	DefaultExcludePatterns = []string{".*"}
)

// RuleConfig controls where a rule applies plus its raw settings.
type RuleConfig struct {
	// PathAllowlist restricts the rule to matching paths when non-empty
	PathAllowlist []string

	// PathDenylist excludes matching paths regardless of other patterns
	PathDenylist []string

	// IncludePatterns must match for the rule to apply
	IncludePatterns []string

	// ExcludePatterns exclude matching paths
	ExcludePatterns []string

	// CaseInsensitive switches all pattern matching to case-insensitive
	CaseInsensitive bool

	// Settings is the raw [settings] table, kept for fingerprinting
	Settings map[string]any
}

// WithDefaults returns a copy with nil pattern lists replaced by defaults.
// A present-but-empty list is kept as is.
func (c RuleConfig) WithDefaults() RuleConfig {
	if c.IncludePatterns == nil {
		c.IncludePatterns = slices.Clone(DefaultIncludePatterns)
	}
	if c.ExcludePatterns == nil {
		c.ExcludePatterns = slices.Clone(DefaultExcludePatterns)
	}
	if c.PathAllowlist == nil {
		c.PathAllowlist = []string{}
	}
	if c.PathDenylist == nil {
		c.PathDenylist = []string{}
	}
	if c.Settings == nil {
		c.Settings = map[string]any{}
	}
	return c
}

// IsWideOpen reports whether the rule applies to every non-excluded file:
// no allow/deny lists and the default include pattern.
func (c RuleConfig) IsWideOpen() bool {
	return len(c.PathAllowlist) == 0 &&
		len(c.PathDenylist) == 0 &&
		slices.Equal(c.IncludePatterns, DefaultIncludePatterns)
}

// PathKey returns a canonical representation of the full path-filter
// configuration, used to detect redundant rules.
func (c RuleConfig) PathKey() string {
	var b strings.Builder
	for _, part := range [][]string{c.PathAllowlist, c.PathDenylist, c.IncludePatterns, c.ExcludePatterns} {
		sorted := slices.Clone(part)
		slices.Sort(sorted)
		b.WriteString(strings.Join(sorted, "\x1f"))
		b.WriteByte('\x1e')
	}
	if c.CaseInsensitive {
		b.WriteString("ci")
	}
	return b.String()
}
