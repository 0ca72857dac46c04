package families

import (
	"context"
	"fmt"
	"strings"

	"github.com/leapstack-labs/vaultlint/pkg/core"
	"github.com/leapstack-labs/vaultlint/pkg/lint"
)

// WhitespaceSettings configures trailing-whitespace rules.
type WhitespaceSettings struct {
	// IgnoreMarkdownLineBreaks keeps two or more trailing spaces after
	// text, which markdown renders as a hard line break.
	IgnoreMarkdownLineBreaks bool `settings:"ignore_markdown_line_breaks"`
}

// TrailingWhitespace reports and strips trailing spaces and tabs.
type TrailingWhitespace struct {
	lint.Base
	settings WhitespaceSettings
}

func whitespaceFamily() lint.Family {
	return lint.Family{
		MajorID:     "trailing-whitespace",
		Description: "Disallows trailing whitespace",
		Resolution: "trailing-whitespace variants differ only in how markdown hard line breaks are treated; " +
			"keep the variant matching your editor settings.",
		New: func(def lint.Definition) (lint.Rule, error) {
			s, err := lint.DecodeSettings(def.Config.Settings, WhitespaceSettings{IgnoreMarkdownLineBreaks: true})
			if err != nil {
				return nil, err
			}
			return &TrailingWhitespace{Base: lint.NewBase(def), settings: s}, nil
		},
	}
}

// trailing returns the line without its trailing whitespace and whether
// the whitespace should be reported.
func (r *TrailingWhitespace) trailing(line string) (string, bool) {
	trimmed := strings.TrimRight(line, " \t")
	if len(trimmed) == len(line) {
		return line, false
	}
	tail := line[len(trimmed):]
	if r.settings.IgnoreMarkdownLineBreaks && strings.TrimSpace(trimmed) != "" &&
		len(tail) >= 2 && strings.Trim(tail, " ") == "" {
		return line, false
	}
	return trimmed, true
}

func splitLines(content string) []string {
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// Lint implements lint.Rule.
func (r *TrailingWhitespace) Lint(_ context.Context, ec *lint.ExecutionContext) ([]core.Issue, error) {
	var issues []core.Issue
	for i, line := range splitLines(ec.File.Content) {
		trimmed, report := r.trailing(line)
		if !report {
			continue
		}
		is := r.Issue(ec, core.SeverityWarning, i+1,
			fmt.Sprintf("trailing whitespace (%d characters)", len(line)-len(trimmed)), true)
		is.Column = len(trimmed) + 1
		issues = append(issues, is)
	}
	return issues, nil
}

// Fix implements lint.Fixer with one replace change per reported line.
func (r *TrailingWhitespace) Fix(_ context.Context, ec *lint.ExecutionContext, issues []core.Issue) ([]core.Fix, error) {
	lines := splitLines(ec.File.Content)
	var changes []core.FileChange
	seen := map[int]bool{}
	for _, is := range issues {
		if is.Line < 1 || is.Line > len(lines) || seen[is.Line] {
			continue
		}
		seen[is.Line] = true
		line := lines[is.Line-1]
		trimmed, report := r.trailing(line)
		if !report {
			continue
		}
		changes = append(changes, core.FileChange{
			Type:    core.ChangeReplace,
			Line:    is.Line,
			OldText: line,
			NewText: trimmed,
		})
	}
	if len(changes) == 0 {
		return nil, nil
	}
	return []core.Fix{{
		RuleID:      r.ID().Full,
		File:        ec.Path(),
		Description: fmt.Sprintf("Remove trailing whitespace on %d line(s)", len(changes)),
		Changes:     changes,
	}}, nil
}
