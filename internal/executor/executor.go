// Package executor runs single rules against single files.
//
// It owns the per-unit pipeline: applicability check, cache lookup, the
// rule call itself with panic isolation, and normalization of what the
// rule returned. Errors are wrapped in *core.ExecutionError and handed
// back to the caller, which decides whether to continue.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/leapstack-labs/vaultlint/internal/cache"
	"github.com/leapstack-labs/vaultlint/internal/pathmatch"
	"github.com/leapstack-labs/vaultlint/pkg/core"
	"github.com/leapstack-labs/vaultlint/pkg/document"
	"github.com/leapstack-labs/vaultlint/pkg/lint"
)

// MetaModTime is the execution metadata key carrying the file's
// modification time. It is recorded in cache entries when present.
const MetaModTime = "mod_time"

// Options configures an Executor.
type Options struct {
	// Cache memoizes results; nil disables caching.
	Cache  *cache.Cache
	Logger *slog.Logger
}

// Executor runs rules. It is safe for concurrent use.
type Executor struct {
	cache  *cache.Cache
	logger *slog.Logger
}

// New creates an Executor.
func New(opts Options) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{cache: opts.Cache, logger: logger}
}

// CreateExecutionContext builds the context passed to every rule for doc.
func (x *Executor) CreateExecutionContext(doc *document.Document, vaultPath string, opts lint.ExecOptions, extra map[string]any) *lint.ExecutionContext {
	ec := lint.NewExecutionContext(doc, vaultPath, opts, extra)
	ec.Logger = x.logger.With("path", ec.Path())
	return ec
}

// FilterRulesByPath returns the rules applicable to path, preserving order.
func FilterRulesByPath(rules []lint.Rule, path string) []lint.Rule {
	out := make([]lint.Rule, 0, len(rules))
	for _, r := range rules {
		if pathmatch.RuleApplies(r, path) {
			out = append(out, r)
		}
	}
	return out
}

// ExecuteRule lints ec's file with rule. A rule that does not apply to the
// file yields no issues and is not invoked.
func (x *Executor) ExecuteRule(ctx context.Context, rule lint.Rule, ec *lint.ExecutionContext) ([]core.Issue, error) {
	path := ec.Path()
	if !pathmatch.RuleApplies(rule, path) {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, wrap(rule, path, err)
	}

	lintFn := func() (*cache.Entry, error) {
		issues, err := x.callLint(ctx, rule, ec)
		if err != nil {
			return nil, err
		}
		return &cache.Entry{Issues: normalizeIssues(rule, path, issues)}, nil
	}

	if x.cache == nil || ec.File == nil {
		e, err := lintFn()
		if err != nil {
			return nil, err
		}
		return e.Issues, nil
	}

	key := cache.Key{
		Kind:        cache.KindLint,
		RuleID:      rule.ID().Full,
		FilePath:    path,
		Fingerprint: cache.Fingerprint(rule.Config().Settings),
	}
	e, hit, err := x.cache.GetOrCompute(key, metadataFor(ec), lintFn)
	if err != nil {
		return nil, err
	}
	if hit {
		ec.Log().Debug("lint cache hit", "rule_id", rule.ID().Full)
	}
	return slices.Clone(e.Issues), nil
}

// ExecuteRuleFix asks rule to fix its own fixable issues among issues.
// It returns nil without calling the rule when the rule cannot fix or
// nothing qualifies.
func (x *Executor) ExecuteRuleFix(ctx context.Context, rule lint.Rule, ec *lint.ExecutionContext, issues []core.Issue) ([]core.Fix, error) {
	fixer, ok := rule.(lint.Fixer)
	if !ok {
		return nil, nil
	}
	path := ec.Path()
	own := FilterFixable(rule, path, issues)
	if len(own) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, wrap(rule, path, err)
	}

	fixFn := func() (*cache.Entry, error) {
		fixes, err := x.callFix(ctx, rule, fixer, ec, own)
		if err != nil {
			return nil, err
		}
		return &cache.Entry{Fixes: normalizeFixes(rule, path, fixes)}, nil
	}

	if x.cache == nil || ec.File == nil {
		e, err := fixFn()
		if err != nil {
			return nil, err
		}
		return e.Fixes, nil
	}

	key := cache.Key{
		Kind:        cache.KindFix,
		RuleID:      rule.ID().Full,
		FilePath:    path,
		Fingerprint: cache.Fingerprint(rule.Config().Settings) + "/" + cache.FingerprintValue(own),
	}
	e, _, err := x.cache.GetOrCompute(key, metadataFor(ec), fixFn)
	if err != nil {
		return nil, err
	}
	return slices.Clone(e.Fixes), nil
}

// FilterFixable returns the fixable issues that rule reported for path.
func FilterFixable(rule lint.Rule, path string, issues []core.Issue) []core.Issue {
	id := rule.ID().Full
	var out []core.Issue
	for _, is := range issues {
		if is.Fixable && is.RuleID == id && (is.File == "" || is.File == path) {
			out = append(out, is)
		}
	}
	return out
}

func (x *Executor) callLint(ctx context.Context, rule lint.Rule, ec *lint.ExecutionContext) (issues []core.Issue, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = wrap(rule, ec.Path(), fmt.Errorf("panic in lint: %v", r))
		}
		ec.Log().Debug("rule executed",
			"rule_id", rule.ID().Full,
			"issues", len(issues),
			"duration_ms", time.Since(start).Milliseconds())
	}()

	issues, err = rule.Lint(ctx, ec)
	if err != nil {
		return nil, wrap(rule, ec.Path(), err)
	}
	return issues, nil
}

func (x *Executor) callFix(ctx context.Context, rule lint.Rule, fixer lint.Fixer, ec *lint.ExecutionContext, issues []core.Issue) (fixes []core.Fix, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = wrap(rule, ec.Path(), fmt.Errorf("panic in fix: %v", r))
		}
	}()

	fixes, err = fixer.Fix(ctx, ec, issues)
	if err != nil {
		return nil, wrap(rule, ec.Path(), err)
	}
	return fixes, nil
}

func wrap(rule lint.Rule, path string, err error) error {
	return &core.ExecutionError{RuleID: rule.ID().Full, FilePath: path, Err: err}
}

func metadataFor(ec *lint.ExecutionContext) cache.FileMetadata {
	var mod time.Time
	if t, ok := ec.Metadata[MetaModTime].(time.Time); ok {
		mod = t
	}
	return cache.MetadataFor([]byte(ec.File.Content), mod)
}

func normalizeIssues(rule lint.Rule, path string, issues []core.Issue) []core.Issue {
	out := make([]core.Issue, 0, len(issues))
	for _, is := range issues {
		if is.RuleID == "" {
			is.RuleID = rule.ID().Full
		}
		if is.File == "" {
			is.File = path
		}
		if !is.Severity.Valid() {
			is.Severity = core.SeverityWarning
		}
		out = append(out, is)
	}
	return out
}

func normalizeFixes(rule lint.Rule, path string, fixes []core.Fix) []core.Fix {
	out := make([]core.Fix, 0, len(fixes))
	for _, f := range fixes {
		if f.RuleID == "" {
			f.RuleID = rule.ID().Full
		}
		if f.File == "" {
			f.File = path
		}
		if f.Description == "" {
			f.Description = "Apply " + rule.Name()
		}
		if f.Changes == nil {
			f.Changes = []core.FileChange{}
		}
		out = append(out, f)
	}
	return out
}
