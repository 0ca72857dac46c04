package families

import (
	"context"
	"errors"
	"fmt"

	"github.com/leapstack-labs/vaultlint/pkg/core"
	"github.com/leapstack-labs/vaultlint/pkg/lint"
)

// HeadingSettings configures heading-structure rules.
type HeadingSettings struct {
	MaxLevel  int  `settings:"max_level"`
	RequireH1 bool `settings:"require_h1"`
	SingleH1  bool `settings:"single_h1"`
}

// Validate implements lint.SettingsValidator.
func (s *HeadingSettings) Validate() error {
	if s.MaxLevel < 1 || s.MaxLevel > 6 {
		return errors.New("max_level must be between 1 and 6")
	}
	return nil
}

// HeadingStructure checks heading levels and ordering.
type HeadingStructure struct {
	lint.Base
	settings HeadingSettings
}

func headingFamily() lint.Family {
	return lint.Family{
		MajorID:     "heading-structure",
		Description: "Checks heading hierarchy",
		Resolution: "heading-structure variants disagree on title and depth requirements; " +
			"keep one hierarchy policy.",
		New: func(def lint.Definition) (lint.Rule, error) {
			s, err := lint.DecodeSettings(def.Config.Settings, HeadingSettings{MaxLevel: 6, SingleH1: true})
			if err != nil {
				return nil, err
			}
			return &HeadingStructure{Base: lint.NewBase(def), settings: s}, nil
		},
	}
}

// Lint implements lint.Rule.
func (r *HeadingStructure) Lint(_ context.Context, ec *lint.ExecutionContext) ([]core.Issue, error) {
	var issues []core.Issue
	h1s := 0
	prev := 0
	for _, h := range ec.File.Headings {
		if h.Level > r.settings.MaxLevel {
			issues = append(issues, r.Issue(ec, core.SeverityWarning, h.Line,
				fmt.Sprintf("heading level %d exceeds maximum %d", h.Level, r.settings.MaxLevel), false))
		}
		if prev > 0 && h.Level > prev+1 {
			issues = append(issues, r.Issue(ec, core.SeverityWarning, h.Line,
				fmt.Sprintf("heading level jumps from %d to %d", prev, h.Level), false))
		}
		if h.Level == 1 {
			h1s++
			if r.settings.SingleH1 && h1s > 1 {
				issues = append(issues, r.Issue(ec, core.SeverityWarning, h.Line, "multiple top-level headings", false))
			}
		}
		prev = h.Level
	}
	if r.settings.RequireH1 && h1s == 0 {
		issues = append(issues, r.Issue(ec, core.SeverityWarning, 1, "missing top-level heading", false))
	}
	return issues, nil
}
