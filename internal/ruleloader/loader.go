// Package ruleloader discovers rule definition files, validates them and
// builds rules through the family registry.
//
// Layout:
//
//	<rulesPath>/enabled/**/*.toml   active definitions
//	<rulesPath>/disabled/**/*.toml  inactive definitions
//
// Moving a file between the two trees is the only way to activate or
// deactivate a rule.
package ruleloader

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/multierr"

	"github.com/leapstack-labs/vaultlint/pkg/core"
	"github.com/leapstack-labs/vaultlint/pkg/lint"
)

// Directory names under a rules path.
const (
	EnabledDir  = "enabled"
	DisabledDir = "disabled"
)

// Loader loads rule definitions.
type Loader struct {
	registry *lint.Registry
	logger   *slog.Logger
}

// New creates a Loader. A nil registry uses lint.DefaultRegistry().
func New(registry *lint.Registry, logger *slog.Logger) *Loader {
	if registry == nil {
		registry = lint.DefaultRegistry()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{registry: registry, logger: logger}
}

// Registry returns the family registry used to build rules.
func (l *Loader) Registry() *lint.Registry {
	return l.registry
}

// LoadRules loads every definition under rulesPath/enabled. Any invalid
// file fails the whole load; the error lists every bad file.
func (l *Loader) LoadRules(rulesPath string) ([]lint.Rule, error) {
	enabled := filepath.Join(rulesPath, EnabledDir)
	info, err := os.Stat(enabled)
	if err != nil {
		return nil, core.NewError(core.CodeConfigNotFound, "load rules", enabled, err)
	}
	if !info.IsDir() {
		return nil, core.NewError(core.CodeConfigInvalid, "load rules", enabled, fmt.Errorf("not a directory"))
	}

	files, err := definitionFiles(enabled)
	if err != nil {
		return nil, core.NewError(core.CodeReadFailed, "load rules", enabled, err)
	}

	rules := make([]lint.Rule, 0, len(files))
	var errs error
	for _, rel := range files {
		rule, err := l.LoadFile(filepath.Join(enabled, filepath.FromSlash(rel)))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", rel, err))
			continue
		}
		rules = append(rules, rule)
	}
	if errs != nil {
		n := len(multierr.Errors(errs))
		l.logger.Error("rule load failed", "rules_path", rulesPath, "invalid_files", n)
		return nil, core.NewError(core.CodeRuleInvalid, "load rules", enabled,
			fmt.Errorf("%d invalid rule definition(s): %w", n, errs))
	}

	l.logger.Debug("rules loaded", "rules_path", rulesPath, "count", len(rules))
	return rules, nil
}

// LoadFile parses, validates and builds a single definition file.
func (l *Loader) LoadFile(path string) (lint.Rule, error) {
	def, err := ParseDefinitionFile(path)
	if err != nil {
		return nil, err
	}
	rule, err := l.registry.Build(def)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", def.ID.Full, err)
	}
	if _, ok := rule.(*lint.Placeholder); ok {
		l.logger.Warn("no implementation for rule family, using placeholder",
			"rule_id", def.ID.Full,
			"path", path)
	}
	return rule, nil
}

// ParseDefinitionFile reads and validates one definition file.
func ParseDefinitionFile(path string) (lint.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return lint.Definition{}, err
	}
	def, err := ParseDefinition(data)
	if err != nil {
		return lint.Definition{}, err
	}
	def.SourcePath = path
	return def, nil
}

// definitionFiles lists *.toml files under dir, slash separated and
// relative to dir, in lexical order.
func definitionFiles(dir string) ([]string, error) {
	files, err := doublestar.Glob(os.DirFS(dir), "**/*.toml", doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

// DisabledRule describes a definition in the disabled tree.
type DisabledRule struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Path     string `json:"path"` // Relative to the disabled directory
	Err      error  `json:"-"`    // Set when the file could not be parsed
}

// ListDisabled reports the definitions under rulesPath/disabled without
// building them. A missing disabled directory yields an empty list.
func ListDisabled(rulesPath string) ([]DisabledRule, error) {
	dir := filepath.Join(rulesPath, DisabledDir)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, core.NewError(core.CodeReadFailed, "list disabled rules", dir, err)
	}
	files, err := definitionFiles(dir)
	if err != nil {
		return nil, core.NewError(core.CodeReadFailed, "list disabled rules", dir, err)
	}

	out := make([]DisabledRule, 0, len(files))
	for _, rel := range files {
		entry := DisabledRule{Path: rel}
		var h header
		if _, err := toml.DecodeFile(filepath.Join(dir, filepath.FromSlash(rel)), &h); err != nil {
			entry.Err = err
		} else {
			entry.ID, entry.Name, entry.Category = h.Rule.ID, h.Rule.Name, h.Rule.Category
		}
		out = append(out, entry)
	}
	return out, nil
}

// header is the identity part of a definition file.
type header struct {
	Rule struct {
		ID       string `toml:"id"`
		Name     string `toml:"name"`
		Category string `toml:"category"`
	} `toml:"rule"`
}

// MoveRule moves every definition of ruleID between the enabled and
// disabled trees, preserving its relative path. enable selects the
// direction. It returns the new paths.
func MoveRule(rulesPath, ruleID string, enable bool) ([]string, error) {
	from, to := EnabledDir, DisabledDir
	if enable {
		from, to = DisabledDir, EnabledDir
	}
	srcRoot := filepath.Join(rulesPath, from)
	dstRoot := filepath.Join(rulesPath, to)

	files, err := definitionFiles(srcRoot)
	if err != nil {
		if os.IsNotExist(err) {
			files = nil
		} else {
			return nil, core.NewError(core.CodeReadFailed, "move rule", srcRoot, err)
		}
	}

	var matches []string
	for _, rel := range files {
		var h header
		if _, err := toml.DecodeFile(filepath.Join(srcRoot, filepath.FromSlash(rel)), &h); err != nil {
			continue
		}
		if h.Rule.ID == ruleID {
			matches = append(matches, rel)
		}
	}
	if len(matches) == 0 {
		return nil, core.NewError(core.CodeFileNotFound, "move rule", srcRoot,
			fmt.Errorf("no definition with id %q: %w", ruleID, fs.ErrNotExist))
	}

	moved := make([]string, 0, len(matches))
	for _, rel := range matches {
		src := filepath.Join(srcRoot, filepath.FromSlash(rel))
		dst := filepath.Join(dstRoot, filepath.FromSlash(rel))
		if _, err := os.Lstat(dst); err == nil {
			return moved, core.NewError(core.CodeWriteFailed, "move rule", dst, fs.ErrExist)
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return moved, core.NewError(core.CodeWriteFailed, "move rule", dst, err)
		}
		if err := os.Rename(src, dst); err != nil {
			return moved, core.NewError(core.CodeWriteFailed, "move rule", src, err)
		}
		moved = append(moved, dst)
	}
	return moved, nil
}
