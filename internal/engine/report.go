package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/leapstack-labs/vaultlint/pkg/core"
)

// ErrorRecord is the serializable form of a collected error.
type ErrorRecord struct {
	Code    core.ErrorCode `json:"code"`
	Path    string         `json:"path,omitempty"`
	RuleID  string         `json:"rule_id,omitempty"`
	Message string         `json:"message"`
}

// NewErrorRecord classifies err.
func NewErrorRecord(err error) ErrorRecord {
	rec := ErrorRecord{Code: core.CodeOf(err), Message: err.Error()}
	var execErr *core.ExecutionError
	var coreErr *core.Error
	switch {
	case errors.As(err, &execErr):
		rec.Path, rec.RuleID = execErr.FilePath, execErr.RuleID
	case errors.As(err, &coreErr):
		rec.Path = coreErr.Path
	}
	return rec
}

// ErrorRecords returns the run's errors in serializable form.
func (r *LintResult) ErrorRecords() []ErrorRecord {
	out := make([]ErrorRecord, 0, len(r.Errors))
	for _, err := range r.Errors {
		out = append(out, NewErrorRecord(err))
	}
	return out
}

// MarshalJSON includes the errors as records.
func (r *LintResult) MarshalJSON() ([]byte, error) {
	type plain LintResult
	return json.Marshal(struct {
		*plain
		Errors []ErrorRecord `json:"errors"`
	}{(*plain)(r), r.ErrorRecords()})
}

// IssueCounts returns the number of issues per severity.
func (r *LintResult) IssueCounts() map[core.Severity]int {
	counts := map[core.Severity]int{}
	for _, is := range r.IssuesFound {
		counts[is.Severity]++
	}
	return counts
}

// ErrorsByCode groups the run's errors by classification.
func (r *LintResult) ErrorsByCode() map[core.ErrorCode][]error {
	out := map[core.ErrorCode][]error{}
	for _, err := range r.Errors {
		code := core.CodeOf(err)
		out[code] = append(out[code], err)
	}
	return out
}

// maxReportPaths bounds the example paths listed per error code.
const maxReportPaths = 3

// GenerateErrorReport renders a summary of result followed by its errors
// grouped by code.
func (e *Engine) GenerateErrorReport(result *LintResult) string {
	return result.Report()
}

// Report is GenerateErrorReport for a result that outlived its engine.
func (r *LintResult) Report() string {
	var b strings.Builder
	if r == nil {
		return "No result.\n"
	}

	counts := r.IssueCounts()
	fmt.Fprintf(&b, "Run %s: %s files in %s\n", r.RunID,
		humanize.Comma(int64(r.FilesProcessed)), r.Duration.Round(time.Millisecond))
	if r.FilesSkipped > 0 {
		fmt.Fprintf(&b, "Skipped: %s files\n", humanize.Comma(int64(r.FilesSkipped)))
	}
	fmt.Fprintf(&b, "Issues: %s (%d errors, %d warnings, %d info)\n",
		humanize.Comma(int64(len(r.IssuesFound))),
		counts[core.SeverityError], counts[core.SeverityWarning], counts[core.SeverityInfo])
	verb := "applied"
	if r.DryRun {
		verb = "planned"
	}
	fmt.Fprintf(&b, "Fixes %s: %s\n", verb, humanize.Comma(int64(len(r.FixesApplied))))
	cs := r.CacheStats
	fmt.Fprintf(&b, "Cache: %d hits, %d misses (%.0f%%), %s held\n",
		cs.Hits, cs.Misses, cs.HitRate*100, humanize.IBytes(uint64(max(cs.Bytes, 0))))

	if len(r.Errors) == 0 {
		b.WriteString("No errors.\n")
		return b.String()
	}

	groups := r.ErrorsByCode()
	codes := make([]core.ErrorCode, 0, len(groups))
	for c := range groups {
		codes = append(codes, c)
	}
	slices.SortFunc(codes, func(a, c core.ErrorCode) int {
		if d := len(groups[c]) - len(groups[a]); d != 0 {
			return d
		}
		return strings.Compare(string(a), string(c))
	})

	t := table.NewWriter()
	t.SetOutputMirror(&b)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Code", "Count", "Paths"})
	for _, c := range codes {
		errs := groups[c]
		var paths []string
		for _, err := range errs {
			rec := NewErrorRecord(err)
			if rec.Path == "" || slices.Contains(paths, rec.Path) {
				continue
			}
			paths = append(paths, rec.Path)
		}
		shown := paths
		if len(shown) > maxReportPaths {
			shown = append(slices.Clone(shown[:maxReportPaths]), fmt.Sprintf("(+%d more)", len(paths)-maxReportPaths))
		}
		t.AppendRow(table.Row{string(c), len(errs), strings.Join(shown, "\n")})
	}
	t.AppendFooter(table.Row{"Total", len(r.Errors), ""})
	t.Render()
	return b.String()
}
