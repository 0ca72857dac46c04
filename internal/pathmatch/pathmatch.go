// Package pathmatch decides whether a rule applies to a vault path.
//
// A rule applies to a path iff the path matches none of the denylist, the
// allowlist is empty or matches, at least one include pattern matches, and
// no exclude pattern matches. Deny and exclude short-circuit.
//
// Patterns are globs: "*" stays within one path segment, "**" spans any
// number of segments. Deny and exclude patterns without a "/" are also
// tried against every individual path segment, so ".*" excludes dot-files
// and everything beneath dot-directories.
package pathmatch

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/text/unicode/norm"

	"github.com/leapstack-labs/vaultlint/pkg/lint"
)

// Normalize converts a path into the canonical form patterns are matched
// against: slash separated, NFC normalized, without leading "./" or "/".
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = norm.NFC.String(p)
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

// Match reports whether a single glob pattern matches the path.
// Invalid patterns never match.
func Match(pattern, p string, caseInsensitive bool) bool {
	pattern = norm.NFC.String(strings.TrimPrefix(pattern, "./"))
	if caseInsensitive {
		pattern = strings.ToLower(pattern)
		p = strings.ToLower(p)
	}
	ok, err := doublestar.Match(pattern, p)
	return err == nil && ok
}

// matchAny reports whether any pattern matches the full path.
func matchAny(patterns []string, p string, ci bool) bool {
	for _, pattern := range patterns {
		if Match(pattern, p, ci) {
			return true
		}
	}
	return false
}

// matchAnyOrSegment is matchAny plus per-segment matching for patterns
// without a slash.
func matchAnyOrSegment(patterns []string, p string, ci bool) bool {
	segments := strings.Split(p, "/")
	for _, pattern := range patterns {
		if Match(pattern, p, ci) {
			return true
		}
		if strings.Contains(pattern, "/") {
			continue
		}
		for _, seg := range segments {
			if Match(pattern, seg, ci) {
				return true
			}
		}
	}
	return false
}

// Ignored reports whether any ignore pattern matches p or, for patterns
// without a slash, one of its segments.
func Ignored(patterns []string, p string) bool {
	return matchAnyOrSegment(patterns, Normalize(p), false)
}

// Applies reports whether a rule configured with cfg applies to path.
func Applies(cfg lint.RuleConfig, p string) bool {
	p = Normalize(p)
	ci := cfg.CaseInsensitive

	if matchAnyOrSegment(cfg.PathDenylist, p, ci) {
		return false
	}
	if len(cfg.PathAllowlist) > 0 && !matchAny(cfg.PathAllowlist, p, ci) {
		return false
	}
	if !matchAny(cfg.IncludePatterns, p, ci) {
		return false
	}
	return !matchAnyOrSegment(cfg.ExcludePatterns, p, ci)
}

// RuleApplies combines the rule's path configuration with its optional
// PathFilter.
func RuleApplies(rule lint.Rule, p string) bool {
	if !Applies(rule.Config(), p) {
		return false
	}
	if f, ok := rule.(lint.PathFilter); ok {
		return f.ShouldApplyToFile(Normalize(p))
	}
	return true
}

// ValidatePatterns checks every pattern in cfg for glob syntax errors.
func ValidatePatterns(cfg lint.RuleConfig) error {
	lists := []struct {
		name     string
		patterns []string
	}{
		{"path_allowlist", cfg.PathAllowlist},
		{"path_denylist", cfg.PathDenylist},
		{"include_patterns", cfg.IncludePatterns},
		{"exclude_patterns", cfg.ExcludePatterns},
	}
	for _, l := range lists {
		for _, pattern := range l.patterns {
			if !doublestar.ValidatePattern(pattern) {
				return fmt.Errorf("%s: invalid glob pattern %q", l.name, pattern)
			}
		}
	}
	return nil
}
