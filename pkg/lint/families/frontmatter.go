package families

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/vaultlint/pkg/core"
	"github.com/leapstack-labs/vaultlint/pkg/lint"
)

// FrontmatterSettings configures frontmatter-required rules.
type FrontmatterSettings struct {
	RequiredFields []string       `settings:"required_fields"`
	Defaults       map[string]any `settings:"defaults"`
	AllowEmpty     bool           `settings:"allow_empty"`
}

// Validate implements lint.SettingsValidator.
func (s *FrontmatterSettings) Validate() error {
	if len(s.RequiredFields) == 0 {
		return errors.New("required_fields must list at least one field")
	}
	for _, f := range s.RequiredFields {
		if strings.TrimSpace(f) == "" {
			return errors.New("required_fields must not contain empty names")
		}
	}
	return nil
}

// FrontmatterRequired reports required frontmatter fields that are missing
// and can insert them with their configured defaults.
type FrontmatterRequired struct {
	lint.Base
	settings FrontmatterSettings
}

func frontmatterFamily() lint.Family {
	return lint.Family{
		MajorID:     "frontmatter-required",
		Description: "Requires frontmatter fields to be present",
		Resolution: "frontmatter-required variants (e.g. .strict, .basic, .minimal) require different field sets; " +
			"keep the strictest set your vault can satisfy.",
		New: func(def lint.Definition) (lint.Rule, error) {
			s, err := lint.DecodeSettings(def.Config.Settings, FrontmatterSettings{})
			if err != nil {
				return nil, err
			}
			return &FrontmatterRequired{Base: lint.NewBase(def), settings: s}, nil
		},
	}
}

func missingFieldMessage(field string) string {
	return fmt.Sprintf("missing required frontmatter field %q", field)
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() == 0
	}
	return false
}

// Lint implements lint.Rule.
func (r *FrontmatterRequired) Lint(_ context.Context, ec *lint.ExecutionContext) ([]core.Issue, error) {
	fm := ec.File.Frontmatter
	var issues []core.Issue
	for _, field := range r.settings.RequiredFields {
		v, ok := fm[field]
		switch {
		case !ok:
			issues = append(issues, r.Issue(ec, core.SeverityError, 1, missingFieldMessage(field), true))
		case !r.settings.AllowEmpty && isEmptyValue(v):
			issues = append(issues, r.Issue(ec, core.SeverityWarning, 1,
				fmt.Sprintf("frontmatter field %q is empty", field), false))
		}
	}
	return issues, nil
}

// Fix implements lint.Fixer. It inserts every missing field named by
// issues, creating the frontmatter block when the file has none.
func (r *FrontmatterRequired) Fix(_ context.Context, ec *lint.ExecutionContext, issues []core.Issue) ([]core.Fix, error) {
	wanted := map[string]bool{}
	for _, is := range issues {
		wanted[is.Message] = true
	}

	var b strings.Builder
	var added []string
	for _, field := range r.settings.RequiredFields {
		if _, present := ec.File.Frontmatter[field]; present || !wanted[missingFieldMessage(field)] {
			continue
		}
		line, err := yamlLine(field, r.settings.Defaults[field])
		if err != nil {
			return nil, err
		}
		b.WriteString(line)
		added = append(added, field)
	}
	if len(added) == 0 {
		return nil, nil
	}

	change := core.FileChange{Type: core.ChangeInsert}
	if ec.File.HasFrontmatter {
		change.Line = ec.File.FrontmatterEnd
		change.NewText = b.String()
	} else {
		change.Line = 1
		change.NewText = "---\n" + b.String() + "---\n"
	}
	return []core.Fix{{
		RuleID:      r.ID().Full,
		File:        ec.Path(),
		Description: "Add frontmatter fields: " + strings.Join(added, ", "),
		Changes:     []core.FileChange{change},
	}}, nil
}

func yamlLine(field string, value any) (string, error) {
	if value == nil {
		value = ""
	}
	out, err := yaml.Marshal(map[string]any{field: value})
	if err != nil {
		return "", fmt.Errorf("encode default for %q: %w", field, err)
	}
	return string(out), nil
}
