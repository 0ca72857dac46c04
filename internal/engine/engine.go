// Package engine orchestrates lint runs over vaults.
//
// An Engine owns the shared run state: configuration, the loaded rule set,
// the result cache, the memory manager and the worker pool. ProcessVault
// scans a vault, executes the applicable rules on every file, optionally
// applies fixes and reports what happened.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/pflag"

	"github.com/leapstack-labs/vaultlint/internal/cache"
	"github.com/leapstack-labs/vaultlint/internal/config"
	"github.com/leapstack-labs/vaultlint/internal/executor"
	"github.com/leapstack-labs/vaultlint/internal/fsops"
	"github.com/leapstack-labs/vaultlint/internal/memory"
	"github.com/leapstack-labs/vaultlint/internal/metrics"
	"github.com/leapstack-labs/vaultlint/internal/ruleloader"
	"github.com/leapstack-labs/vaultlint/internal/workerpool"
	"github.com/leapstack-labs/vaultlint/pkg/core"
	"github.com/leapstack-labs/vaultlint/pkg/document"
	"github.com/leapstack-labs/vaultlint/pkg/lint"

	// Built-in rule families.
	_ "github.com/leapstack-labs/vaultlint/pkg/lint/families"
)

// ErrClosed is returned by operations on a closed Engine.
var ErrClosed = errors.New("engine is closed")

// Options configures an Engine.
type Options struct {
	// Config is used as is when set; otherwise the configuration is loaded
	// on the first run, searching upward from the vault.
	Config *config.Config
	// Flags override configuration values when it is loaded.
	Flags *pflag.FlagSet
	// Registry resolves rule families; nil uses lint.DefaultRegistry.
	Registry *lint.Registry
	// Parser turns file content into documents; nil uses markdown.
	Parser document.Parser
	// Metrics receives run metrics; nil records nothing.
	Metrics *metrics.Metrics
	// Sampler reports heap usage to the memory manager; nil samples the
	// Go runtime.
	Sampler memory.Sampler
	// Fallback supplies content for files that cannot be read.
	Fallback func(path string, err error) ([]byte, error)
	Logger   *slog.Logger
}

// Engine runs lint passes. It is safe for concurrent use.
type Engine struct {
	logger   *slog.Logger
	flags    *pflag.FlagSet
	parser   document.Parser
	loader   *ruleloader.Loader
	metrics  *metrics.Metrics
	sampler  memory.Sampler
	fallback func(string, error) ([]byte, error)

	mu           sync.Mutex
	cfg          *config.Config
	configured   bool
	rules        []lint.Rule
	rulesProfile string
	cache        *cache.Cache
	memory       *memory.Manager
	pool         *workerpool.Pool
	fs           *fsops.FS
	exec         *executor.Executor
	closed       bool
}

// New creates an Engine. Resources are sized from opts.Config, or from
// the defaults until a configuration is loaded.
func New(opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	parser := opts.Parser
	if parser == nil {
		parser = document.NewMarkdownParser()
	}

	e := &Engine{
		logger:   logger,
		flags:    opts.Flags,
		parser:   parser,
		loader:   ruleloader.New(opts.Registry, logger),
		metrics:  opts.Metrics,
		sampler:  opts.Sampler,
		fallback: opts.Fallback,
	}

	cfg := opts.Config
	if cfg == nil {
		wd, _ := os.Getwd()
		cfg = config.Default(wd)
	} else {
		if err := cfg.Validate(); err != nil {
			return nil, core.NewError(core.CodeConfigInvalid, "validate config", cfg.File, err)
		}
		e.configured = true
	}
	if err := e.applyConfig(cfg); err != nil {
		return nil, err
	}

	logger.Debug("engine initialized",
		"rules_path", cfg.RulesPath,
		"profile", cfg.ActiveProfile,
		"configured", e.configured)
	return e, nil
}

// applyConfig rebuilds the shared resources for cfg. Callers hold e.mu or
// own e exclusively.
func (e *Engine) applyConfig(cfg *config.Config) error {
	c, err := cache.New(cache.Config{
		MaxEntries: cfg.Cache.MaxEntries,
		MaxBytes:   int64(cfg.Cache.MaxBytes),
		Logger:     e.logger,
	})
	if err != nil {
		return core.NewError(core.CodeConfigInvalid, "create cache", cfg.File, err)
	}

	if e.pool != nil {
		e.pool.Shutdown()
	}

	policy := fsops.RecoveryPolicy{
		MaxRetries:  cfg.Recovery.MaxRetries,
		Delay:       cfg.Recovery.RetryDelay,
		SkipOnError: cfg.Recovery.SkipOnError,
		Fallback:    e.fallback,
	}

	e.cfg = cfg
	e.cache = c
	e.memory = memory.New(memory.Config{
		SoftLimit:    uint64(cfg.Memory.SoftLimit),
		HardLimit:    uint64(cfg.Memory.HardLimit),
		MaxBatch:     cfg.Memory.MaxBatch,
		InitialBatch: cfg.Memory.InitialBatch,
		Sampler:      e.sampler,
		Logger:       e.logger,
	})
	e.pool = workerpool.New(workerpool.Config{
		MaxWorkers:  cfg.MaxConcurrency,
		TaskTimeout: cfg.TaskTimeout,
		Logger:      e.logger,
	})
	e.fs = fsops.New(policy, e.logger)
	e.exec = executor.New(executor.Options{Cache: c, Logger: e.logger})
	e.rules = nil
	e.rulesProfile = ""
	return nil
}

// LoadConfiguration loads configuration from path, or searches for a
// config file upward from the working directory when path is empty.
func (e *Engine) LoadConfiguration(path string) error {
	return e.loadConfiguration(path, "")
}

func (e *Engine) loadConfiguration(path, searchDir string) error {
	cfg, err := config.Load(config.Options{File: path, SearchDir: searchDir, Flags: e.flags})
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if err := e.applyConfig(cfg); err != nil {
		return err
	}
	e.configured = true
	e.logger.Info("configuration loaded", "file", cfg.File, "profile", cfg.ActiveProfile)
	return nil
}

// Config returns the current configuration.
func (e *Engine) Config() *config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Registry returns the family registry rules are built from.
func (e *Engine) Registry() *lint.Registry {
	return e.loader.Registry()
}

// RulesPath returns the rules directory of profile, or of the active
// profile when profile is empty.
func (e *Engine) RulesPath(profile string) (string, error) {
	e.mu.Lock()
	cfg := e.cfg
	e.mu.Unlock()

	p, err := cfg.ProfileRulesPath(profile)
	if err != nil {
		return "", core.NewError(core.CodeConfigInvalid, "resolve profile", cfg.File, err)
	}
	return p, nil
}

// ConflictError lists the conflict groups that made a rule set invalid.
type ConflictError struct {
	Conflicts []ruleloader.ConflictGroup
}

func (e *ConflictError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, g := range e.Conflicts {
		parts = append(parts, fmt.Sprintf("%s (%s)", g.MajorID, strings.Join(g.ConflictingRules, ", ")))
	}
	return fmt.Sprintf("%d conflicting rule group(s): %s", len(e.Conflicts), strings.Join(parts, "; "))
}

// LoadRules loads and validates the enabled rules of profile, or of the
// active profile when profile is empty. Conflicts are fatal.
func (e *Engine) LoadRules(profile string) ([]lint.Rule, error) {
	rulesPath, err := e.RulesPath(profile)
	if err != nil {
		return nil, err
	}
	if profile == "" {
		profile = e.Config().ActiveProfile
	}

	rules, err := e.loader.LoadRules(rulesPath)
	if err != nil {
		return nil, err
	}

	res := e.ValidateRuleConflicts(rules)
	for _, w := range res.Warnings {
		e.logger.Warn("rule configuration warning", "kind", w.Kind, "rules", w.RuleIDs, "message", w.Message)
	}
	if !res.Valid {
		for _, g := range res.Conflicts {
			e.logger.Error("conflicting rules", "major_id", g.MajorID, "rules", g.ConflictingRules, "resolution", g.Resolution)
		}
		return nil, core.NewError(core.CodeRuleConflict, "load rules", rulesPath, &ConflictError{Conflicts: res.Conflicts})
	}

	e.mu.Lock()
	e.rules = rules
	e.rulesProfile = profile
	e.mu.Unlock()

	e.logger.Info("rules loaded", "profile", profile, "count", len(rules), "path", rulesPath)
	return rules, nil
}

// ValidateRuleConflicts checks rules for mutually exclusive variants and
// configuration smells.
func (e *Engine) ValidateRuleConflicts(rules []lint.Rule) ruleloader.ConflictResult {
	return e.loader.DetectRuleConflicts(rules)
}

// Rules returns the rules loaded by the last successful LoadRules.
func (e *Engine) Rules() []lint.Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rules
}

// CacheStats returns cumulative cache statistics.
func (e *Engine) CacheStats() cache.Stats {
	e.mu.Lock()
	c := e.cache
	e.mu.Unlock()
	return c.Stats()
}

// ClearCache drops all cached results.
func (e *Engine) ClearCache() {
	e.mu.Lock()
	c := e.cache
	e.mu.Unlock()
	c.Purge()
}

// Close shuts down the worker pool and drops cached results. It is safe
// to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.pool.Shutdown()
	e.cache.Purge()
	e.logger.Debug("engine closed")
	return nil
}

// vaultRoot resolves and checks a vault directory.
func vaultRoot(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", core.NewError(core.CodeFileNotFound, "open vault", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", core.NewError(core.CodeOf(err), "open vault", abs, err)
	}
	if !info.IsDir() {
		return "", core.NewError(core.CodeFileNotFound, "open vault", abs, fmt.Errorf("not a directory"))
	}
	return abs, nil
}
