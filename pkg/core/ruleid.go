package core

import (
	"fmt"
	"regexp"
	"strings"
)

// segmentPattern matches a single kebab-case rule id segment.
var segmentPattern = regexp.MustCompile(`^[a-z][a-z0-9]*(-[a-z0-9]+)*$`)

// RuleID identifies a rule as "<major>.<minor>", e.g. "frontmatter-required.strict".
// Rules sharing a Major are mutually exclusive variants of one concern.
type RuleID struct {
	Major string `json:"major"`
	Minor string `json:"minor"`
	Full  string `json:"full"`
}

// ParseRuleID parses and validates a full rule id.
// The id must contain exactly one "." and both segments must be kebab-case.
func ParseRuleID(id string) (RuleID, error) {
	if strings.Count(id, ".") != 1 {
		return RuleID{}, fmt.Errorf("rule id %q must contain exactly one '.'", id)
	}
	major, minor, _ := strings.Cut(id, ".")
	if !segmentPattern.MatchString(major) {
		return RuleID{}, fmt.Errorf("rule id %q: major segment %q is not kebab-case", id, major)
	}
	if !segmentPattern.MatchString(minor) {
		return RuleID{}, fmt.Errorf("rule id %q: minor segment %q is not kebab-case", id, minor)
	}
	return RuleID{Major: major, Minor: minor, Full: id}, nil
}

// MustParseRuleID is like ParseRuleID but panics on invalid input.
// Intended for tests and package-level constants.
func MustParseRuleID(id string) RuleID {
	rid, err := ParseRuleID(id)
	if err != nil {
		panic(err)
	}
	return rid
}

// String returns the full id.
func (r RuleID) String() string {
	return r.Full
}

// IsZero reports whether the id is unset.
func (r RuleID) IsZero() bool {
	return r.Full == ""
}
