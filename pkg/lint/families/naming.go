package families

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"unicode"

	"github.com/leapstack-labs/vaultlint/pkg/core"
	"github.com/leapstack-labs/vaultlint/pkg/lint"
)

// Naming styles.
const (
	StyleKebab = "kebab"
	StyleSnake = "snake"
	StyleLower = "lower"
)

var namingPatterns = map[string]*regexp.Regexp{
	StyleKebab: regexp.MustCompile(`^[\p{Ll}\p{Lo}\p{N}]+(-[\p{Ll}\p{Lo}\p{N}]+)*$`),
	StyleSnake: regexp.MustCompile(`^[\p{Ll}\p{Lo}\p{N}]+(_[\p{Ll}\p{Lo}\p{N}]+)*$`),
}

// NamingSettings configures file-naming rules.
type NamingSettings struct {
	Style string `settings:"style"`
}

// Validate implements lint.SettingsValidator.
func (s *NamingSettings) Validate() error {
	switch s.Style {
	case StyleKebab, StyleSnake, StyleLower:
		return nil
	default:
		return fmt.Errorf("style must be one of kebab, snake, lower; got %q", s.Style)
	}
}

// FileNaming checks file base names against a naming style and fixes
// them by renaming the file.
type FileNaming struct {
	lint.Base
	settings NamingSettings
}

func namingFamily() lint.Family {
	return lint.Family{
		MajorID:     "file-naming",
		Prefix:      true,
		Description: "Enforces a file naming convention",
		Resolution: "file-naming variants (e.g. .kebab-case, .snake-case, .lowercase) enforce incompatible conventions; " +
			"only one can hold for a vault.",
		New: func(def lint.Definition) (lint.Rule, error) {
			s, err := lint.DecodeSettings(def.Config.Settings, NamingSettings{Style: StyleKebab})
			if err != nil {
				return nil, err
			}
			return &FileNaming{Base: lint.NewBase(def), settings: s}, nil
		},
	}
}

func splitName(p string) (dir, stem, ext string) {
	dir, base := path.Split(p)
	ext = path.Ext(base)
	return dir, strings.TrimSuffix(base, ext), ext
}

func (r *FileNaming) conforms(stem string) bool {
	if r.settings.Style == StyleLower {
		return strings.ToLower(stem) == stem
	}
	return namingPatterns[r.settings.Style].MatchString(stem)
}

// convert rewrites stem into the configured style.
func (r *FileNaming) convert(stem string) string {
	if r.settings.Style == StyleLower {
		return strings.ToLower(stem)
	}
	sep := "-"
	if r.settings.Style == StyleSnake {
		sep = "_"
	}
	words := strings.FieldsFunc(stem, func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsDigit(c)
	})
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}
	return strings.Join(words, sep)
}

// Lint implements lint.Rule.
func (r *FileNaming) Lint(_ context.Context, ec *lint.ExecutionContext) ([]core.Issue, error) {
	_, stem, _ := splitName(ec.Path())
	if stem == "" || r.conforms(stem) {
		return nil, nil
	}
	fixable := r.convert(stem) != ""
	return []core.Issue{r.Issue(ec, core.SeverityWarning, 0,
		fmt.Sprintf("file name %q is not %s case", stem, r.settings.Style), fixable)}, nil
}

// Fix implements lint.Fixer with a move to the conforming name.
func (r *FileNaming) Fix(_ context.Context, ec *lint.ExecutionContext, _ []core.Issue) ([]core.Fix, error) {
	dir, stem, ext := splitName(ec.Path())
	converted := r.convert(stem)
	if converted == "" || converted == stem {
		return nil, nil
	}
	newPath := dir + converted + ext
	return []core.Fix{{
		RuleID:      r.ID().Full,
		File:        ec.Path(),
		Description: fmt.Sprintf("Rename to %s", newPath),
		Changes: []core.FileChange{{
			Type:    core.ChangeMove,
			OldPath: ec.Path(),
			NewPath: newPath,
		}},
	}}, nil
}
