package ruleloader

import (
	"fmt"
	"slices"
	"strings"

	"github.com/leapstack-labs/vaultlint/pkg/lint"
)

// EssentialCategories are expected to be covered by at least one rule.
var EssentialCategories = []string{"metadata", "structure"}

// ConflictGroup is a set of enabled rules sharing a majorId.
type ConflictGroup struct {
	MajorID          string   `json:"major_id"`
	ConflictingRules []string `json:"conflicting_rules"`
	Sources          []string `json:"sources,omitempty"`
	Resolution       string   `json:"resolution"`
}

// Warning kinds.
const (
	WarnWideOpen         = "wide-open"
	WarnRedundantFilters = "redundant-filters"
	WarnMissingCategory  = "missing-category"
)

// Warning is a non-fatal observation about a rule set.
type Warning struct {
	Kind    string   `json:"kind"`
	RuleIDs []string `json:"rule_ids,omitempty"`
	Message string   `json:"message"`
}

func (w Warning) String() string {
	return w.Message
}

// ConflictResult is the outcome of conflict detection. Valid is false iff
// Conflicts is non-empty.
type ConflictResult struct {
	Valid     bool            `json:"valid"`
	Conflicts []ConflictGroup `json:"conflicts"`
	Warnings  []Warning       `json:"warnings"`
}

// DetectRuleConflicts checks rules using the loader's registry for curated
// resolutions.
func (l *Loader) DetectRuleConflicts(rules []lint.Rule) ConflictResult {
	return DetectRuleConflicts(rules, l.registry)
}

// DetectRuleConflicts groups rules by majorId; every group with more than
// one member is a conflict. Results are sorted by majorId and rule id.
func DetectRuleConflicts(rules []lint.Rule, registry *lint.Registry) ConflictResult {
	if registry == nil {
		registry = lint.DefaultRegistry()
	}

	byMajor := map[string][]lint.Rule{}
	for _, r := range rules {
		byMajor[r.ID().Major] = append(byMajor[r.ID().Major], r)
	}

	res := ConflictResult{Conflicts: []ConflictGroup{}, Warnings: []Warning{}}
	for _, major := range sortedKeys(byMajor) {
		group := byMajor[major]
		if len(group) < 2 {
			continue
		}
		ids := ruleIDs(group)
		var sources []string
		for _, r := range group {
			if s, ok := r.(interface{ Source() string }); ok && s.Source() != "" {
				sources = append(sources, s.Source())
			}
		}
		slices.Sort(sources)
		res.Conflicts = append(res.Conflicts, ConflictGroup{
			MajorID:          major,
			ConflictingRules: ids,
			Sources:          sources,
			Resolution:       resolution(registry, major, ids),
		})
	}
	res.Valid = len(res.Conflicts) == 0
	res.Warnings = detectWarnings(rules)
	return res
}

func resolution(registry *lint.Registry, major string, ids []string) string {
	generic := fmt.Sprintf("Disable all but one of %s by moving the other definition files from %s/ to %s/.",
		strings.Join(ids, ", "), EnabledDir, DisabledDir)
	if curated, ok := registry.Resolution(major); ok {
		return curated + " " + generic
	}
	return fmt.Sprintf("Rules %s share major id %q and are mutually exclusive. %s",
		strings.Join(ids, ", "), major, generic)
}

func detectWarnings(rules []lint.Rule) []Warning {
	sorted := slices.Clone(rules)
	slices.SortFunc(sorted, func(a, b lint.Rule) int { return strings.Compare(a.ID().Full, b.ID().Full) })

	var warnings []Warning
	byKey := map[string][]lint.Rule{}
	var keys []string
	for _, r := range sorted {
		cfg := r.Config()
		if cfg.IsWideOpen() {
			warnings = append(warnings, Warning{
				Kind:    WarnWideOpen,
				RuleIDs: []string{r.ID().Full},
				Message: fmt.Sprintf("rule %s has no allow/deny list and includes every file; consider narrowing it", r.ID().Full),
			})
			continue
		}
		key := cfg.PathKey()
		if _, seen := byKey[key]; !seen {
			keys = append(keys, key)
		}
		byKey[key] = append(byKey[key], r)
	}

	for _, key := range keys {
		group := byKey[key]
		if len(group) < 2 {
			continue
		}
		ids := ruleIDs(group)
		warnings = append(warnings, Warning{
			Kind:    WarnRedundantFilters,
			RuleIDs: ids,
			Message: fmt.Sprintf("rules %s have identical path filters; they may be redundant", strings.Join(ids, ", ")),
		})
	}

	present := map[string]bool{}
	for _, r := range rules {
		present[r.Category()] = true
	}
	for _, cat := range EssentialCategories {
		if !present[cat] {
			warnings = append(warnings, Warning{
				Kind:    WarnMissingCategory,
				Message: fmt.Sprintf("no enabled rule in essential category %q", cat),
			})
		}
	}
	if warnings == nil {
		warnings = []Warning{}
	}
	return warnings
}

func ruleIDs(rules []lint.Rule) []string {
	ids := make([]string, 0, len(rules))
	for _, r := range rules {
		ids = append(ids, r.ID().Full)
	}
	slices.Sort(ids)
	return ids
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
