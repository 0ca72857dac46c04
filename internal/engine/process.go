package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/vaultlint/internal/cache"
	"github.com/leapstack-labs/vaultlint/internal/config"
	"github.com/leapstack-labs/vaultlint/internal/executor"
	"github.com/leapstack-labs/vaultlint/internal/fixer"
	"github.com/leapstack-labs/vaultlint/internal/fsops"
	"github.com/leapstack-labs/vaultlint/internal/memory"
	"github.com/leapstack-labs/vaultlint/internal/scanner"
	"github.com/leapstack-labs/vaultlint/internal/workerpool"
	"github.com/leapstack-labs/vaultlint/pkg/core"
	"github.com/leapstack-labs/vaultlint/pkg/document"
	"github.com/leapstack-labs/vaultlint/pkg/lint"
)

// ProcessOptions controls a single run.
type ProcessOptions struct {
	// DryRun computes fixes without writing them.
	DryRun bool
	// Fix applies fixes for fixable issues.
	Fix     bool
	Verbose bool
	// Parallel processes files concurrently; the configured value applies
	// when false.
	Parallel bool
	// MaxConcurrency bounds parallel files; zero uses the configured value.
	MaxConcurrency int
	// Ignore adds scanner ignore patterns to the configured ones.
	Ignore []string
	// Rules restricts the run to these rule ids or major ids.
	Rules []string
	// Profile overrides the active profile.
	Profile string
	// Metadata is merged into every execution context.
	Metadata map[string]any
}

// ProgressFunc receives run progress. It is called from one goroutine at a
// time.
type ProgressFunc func(done, total int, message string)

// CacheStats summarizes cache and memory behavior during one run.
type CacheStats struct {
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	HitRate       float64 `json:"hit_rate"`
	Entries       int     `json:"entries"`
	Bytes         int64   `json:"bytes"`
	Evictions     int64   `json:"evictions"`
	Batches       int     `json:"batches"`
	Pauses        int64   `json:"pauses"`
	PeakHeapBytes uint64  `json:"peak_heap_bytes"`
}

// LintResult is the outcome of ProcessVault.
type LintResult struct {
	RunID          string        `json:"run_id"`
	VaultPath      string        `json:"vault_path"`
	Profile        string        `json:"profile"`
	RulesApplied   int           `json:"rules_applied"`
	FilesProcessed int           `json:"files_processed"`
	FilesSkipped   int           `json:"files_skipped"`
	IssuesFound    []core.Issue  `json:"issues_found"`
	FixesApplied   []core.Fix    `json:"fixes_applied"`
	Errors         []error       `json:"-"`
	Duration       time.Duration `json:"duration"`
	DryRun         bool          `json:"dry_run"`
	CacheStats     CacheStats    `json:"cache_stats"`
}

// fileResult is what processing one file produced.
type fileResult struct {
	path   string
	issues []core.Issue
	fixes  []core.Fix
	errs   []error
	// skipped is set when the file was never linted.
	skipped bool
	// abort stops the run; set when a failure may not be skipped.
	abort    error
	duration time.Duration
}

// run holds the state of one ProcessVault call.
type run struct {
	e      *Engine
	vault  string
	rules  []lint.Rule
	opts   ProcessOptions
	exec   *executor.Executor
	fs     *fsops.FS
	cache  *cache.Cache
	memory *memory.Manager
	batch  *memory.Batcher
	pool   *workerpool.Pool
}

// ProcessVault lints every document in vaultPath. Configuration and rule
// errors are returned as the error and nothing is processed. Errors of
// individual files and rules are collected in the result.
func (e *Engine) ProcessVault(ctx context.Context, vaultPath string, opts ProcessOptions, progress ProgressFunc) (*LintResult, error) {
	start := time.Now()
	if progress == nil {
		progress = func(int, int, string) {}
	}

	vault, err := vaultRoot(vaultPath)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	closed, configured := e.closed, e.configured
	e.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if !configured {
		if err := e.loadConfiguration("", vault); err != nil {
			return nil, err
		}
	}

	cfg := e.Config()
	profile := opts.Profile
	if profile == "" {
		profile = cfg.ActiveProfile
	}
	rules, err := e.rulesFor(profile)
	if err != nil {
		return nil, err
	}
	rules = selectRules(rules, opts.Rules)
	if len(opts.Rules) > 0 && len(rules) == 0 {
		e.logger.Warn("rule filter matched no loaded rules", "filter", opts.Rules)
	}

	e.mu.Lock()
	r := &run{
		e:      e,
		vault:  vault,
		rules:  rules,
		opts:   opts,
		exec:   e.exec,
		fs:     e.fs,
		cache:  e.cache,
		memory: e.memory,
		batch:  e.memory.NewBatcher(),
		pool:   e.pool,
	}
	e.mu.Unlock()

	scan, err := scanner.Scan(ctx, vault, scanner.Options{
		Ignore:      append(slices.Clone(cfg.Ignore), opts.Ignore...),
		Extensions:  cfg.Extensions,
		SkipOnError: cfg.Recovery.SkipOnError,
		Logger:      e.logger,
	})
	if err != nil {
		return nil, err
	}

	res := &LintResult{
		RunID:        uuid.NewString(),
		VaultPath:    vault,
		Profile:      profile,
		RulesApplied: len(rules),
		DryRun:       opts.DryRun,
		IssuesFound:  []core.Issue{},
		FixesApplied: []core.Fix{},
	}
	for _, err := range scan.Errors {
		r.addError(res, err)
	}

	logger := e.logger.With("run_id", res.RunID)
	logger.Info("processing vault",
		"vault", vault,
		"profile", profile,
		"files", len(scan.Files),
		"rules", len(rules),
		"fix", opts.Fix,
		"dry_run", opts.DryRun)

	before := r.cache.Stats()
	total := len(scan.Files)
	progress(0, total, "starting")

	parallel := opts.Parallel || cfg.Parallel
	var runErr error
	if parallel {
		runErr = r.processParallel(ctx, scan.Files, cfg, res, progress)
	} else {
		runErr = r.processSequential(ctx, scan.Files, res, progress)
	}

	after := r.cache.Stats()
	mem := r.memory.Stats()
	res.CacheStats.Hits = after.Hits - before.Hits
	res.CacheStats.Misses = after.Misses - before.Misses
	if n := res.CacheStats.Hits + res.CacheStats.Misses; n > 0 {
		res.CacheStats.HitRate = float64(res.CacheStats.Hits) / float64(n)
	}
	res.CacheStats.Entries = after.Entries
	res.CacheStats.Bytes = after.Bytes
	res.CacheStats.Evictions = after.Evictions - before.Evictions
	res.CacheStats.Pauses = r.batch.Pauses()
	res.CacheStats.PeakHeapBytes = mem.PeakBytes
	res.Duration = time.Since(start)
	e.metrics.ObserveCache(uint64(res.CacheStats.Hits), uint64(res.CacheStats.Misses))

	if runErr != nil {
		logger.Error("run aborted", "error", runErr, "files_processed", res.FilesProcessed)
		return res, runErr
	}

	progress(total, total, fmt.Sprintf("completed: %d files, %d issues, %d fixes",
		res.FilesProcessed, len(res.IssuesFound), len(res.FixesApplied)))
	logger.Info("vault processed",
		"files", res.FilesProcessed,
		"issues", len(res.IssuesFound),
		"fixes", len(res.FixesApplied),
		"errors", len(res.Errors),
		"duration_ms", res.Duration.Milliseconds())
	return res, nil
}

// rulesFor returns the loaded rules for profile, loading them when the
// profile changed.
func (e *Engine) rulesFor(profile string) ([]lint.Rule, error) {
	e.mu.Lock()
	rules, loadedFor := e.rules, e.rulesProfile
	e.mu.Unlock()
	if rules != nil && loadedFor == profile {
		return rules, nil
	}
	return e.LoadRules(profile)
}

// selectRules keeps rules whose full or major id is in ids. Empty ids
// keeps everything.
func selectRules(rules []lint.Rule, ids []string) []lint.Rule {
	if len(ids) == 0 {
		return rules
	}
	out := make([]lint.Rule, 0, len(rules))
	for _, r := range rules {
		id := r.ID()
		if slices.Contains(ids, id.Full) || slices.Contains(ids, id.Major) {
			out = append(out, r)
		}
	}
	return out
}

func (r *run) processSequential(ctx context.Context, files []scanner.File, res *LintResult, progress ProgressFunc) error {
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		fr := r.processFile(ctx, f)
		if err := r.merge(res, fr); err != nil {
			return err
		}
		progress(i+1, len(files), "processed "+f.RelPath)
	}
	return nil
}

// processParallel runs files in batches sized by the memory manager. Each
// batch settles before the next one is sized.
func (r *run) processParallel(ctx context.Context, files []scanner.File, cfg *config.Config, res *LintResult, progress ProgressFunc) error {
	concurrency := r.opts.MaxConcurrency
	if concurrency <= 0 {
		concurrency = cfg.MaxConcurrency
	}
	pool := r.pool
	if concurrency > pool.MaxWorkers() {
		// The shared pool is sized from the config; a larger per-run bound
		// gets a pool of its own.
		pool = workerpool.New(workerpool.Config{
			MaxWorkers:  concurrency,
			TaskTimeout: cfg.TaskTimeout,
			Logger:      r.e.logger,
		})
		defer pool.Shutdown()
	}

	done := 0
	for done < len(files) {
		if err := ctx.Err(); err != nil {
			return err
		}
		strategy := r.batch.NextBatch()
		if strategy.Pause {
			trimmed := r.cache.Trim(0.5)
			heap := r.memory.Relieve()
			r.e.logger.Warn("memory pressure, pausing",
				"heap_bytes", strategy.HeapBytes,
				"after_bytes", heap,
				"cache_trimmed", trimmed)
		}
		batch := files[done:min(done+strategy.Size, len(files))]
		r.e.metrics.SetBatchSize(len(batch))
		res.CacheStats.Batches++

		tasks := make([]workerpool.Task[fileResult], len(batch))
		for i, f := range batch {
			tasks[i] = func(ctx context.Context) (fileResult, error) {
				return r.processFile(ctx, f), nil
			}
		}
		results, err := workerpool.ExecuteSettled(ctx, pool, tasks, concurrency)
		if err != nil {
			return err
		}
		for _, wr := range results {
			f := batch[wr.Index]
			fr := wr.Value
			if wr.Err != nil {
				// Timeouts and panics lose the file's result.
				fr = fileResult{path: f.RelPath, skipped: true, errs: []error{
					core.NewError(core.CodeOf(wr.Err), "process file", f.RelPath, wr.Err),
				}}
				if errors.Is(wr.Err, context.Canceled) {
					return wr.Err
				}
			}
			if err := r.merge(res, fr); err != nil {
				return err
			}
			done++
			progress(done, len(files), "processed "+f.RelPath)
		}
	}
	return nil
}

// merge adds fr to res and returns the abort error, if any.
func (r *run) merge(res *LintResult, fr fileResult) error {
	if fr.abort != nil {
		r.addError(res, fr.abort)
		return fr.abort
	}
	if fr.skipped {
		res.FilesSkipped++
		for _, err := range fr.errs {
			r.addError(res, err)
		}
		return nil
	}
	res.FilesProcessed++
	res.IssuesFound = append(res.IssuesFound, fr.issues...)
	res.FixesApplied = append(res.FixesApplied, fr.fixes...)
	for _, err := range fr.errs {
		r.addError(res, err)
	}
	r.e.metrics.ObserveFile(fr.duration, fr.issues)
	r.e.metrics.ObserveFixes(len(fr.fixes))
	return nil
}

func (r *run) addError(res *LintResult, err error) {
	res.Errors = append(res.Errors, err)
	r.e.metrics.ObserveError(err)
}

// processFile reads, lints and optionally fixes one file.
func (r *run) processFile(ctx context.Context, f scanner.File) (fr fileResult) {
	start := time.Now()
	fr.path = f.RelPath
	defer func() { fr.duration = time.Since(start) }()
	logger := r.e.logger.With("path", f.RelPath)

	data, err := r.fs.ReadFile(ctx, f.AbsPath)
	if err != nil {
		if !r.fs.ShouldSkip(err) {
			fr.abort = err
			return fr
		}
		logger.Warn("skipping unreadable file", "error", err)
		fr.skipped = true
		fr.errs = append(fr.errs, err)
		return fr
	}

	doc, err := r.e.parser.Parse(f.RelPath, data.Content)
	if err != nil {
		fr.skipped = true
		fr.errs = append(fr.errs, core.NewError(core.CodeParseFailed, "parse", f.RelPath, err))
		return fr
	}
	doc.AbsPath = f.AbsPath

	ec := r.newContext(doc, data)
	applicable := executor.FilterRulesByPath(r.rules, f.RelPath)
	for _, rule := range applicable {
		issues, err := r.exec.ExecuteRule(ctx, rule, ec)
		if err != nil {
			logger.Debug("rule failed", "rule_id", rule.ID().Full, "error", err)
			fr.errs = append(fr.errs, err)
			continue
		}
		fr.issues = append(fr.issues, issues...)
	}

	if r.opts.Fix && len(fr.issues) > 0 {
		r.fixFile(ctx, f, ec, data, applicable, &fr)
	}
	return fr
}

func (r *run) newContext(doc *document.Document, data *fsops.FileData) *lint.ExecutionContext {
	extra := make(map[string]any, len(r.opts.Metadata)+1)
	extra[executor.MetaModTime] = data.ModTime
	for k, v := range r.opts.Metadata {
		extra[k] = v
	}
	return r.exec.CreateExecutionContext(doc, r.vault, lint.ExecOptions{
		DryRun:  r.opts.DryRun,
		Verbose: r.opts.Verbose,
	}, extra)
}

// fixFile runs the fix pipeline rule by rule. Each rule fixes only its
// own issues. Once content has changed, the rule is linted again against
// the current content so positions are accurate.
func (r *run) fixFile(ctx context.Context, f scanner.File, ec *lint.ExecutionContext, data *fsops.FileData, rules []lint.Rule, fr *fileResult) {
	original := ec.File.Content
	content := original
	cur := ec
	var applied []core.Fix
	var moves []core.FileChange

	for _, rule := range rules {
		if _, ok := rule.(lint.Fixer); !ok {
			continue
		}
		issues := fr.issues
		if content != cur.File.Content {
			doc, err := r.e.parser.Parse(f.RelPath, []byte(content))
			if err != nil {
				fr.errs = append(fr.errs, core.NewError(core.CodeParseFailed, "reparse after fix", f.RelPath, err))
				break
			}
			doc.AbsPath = f.AbsPath
			cur = r.newContext(doc, data)
			issues, err = r.exec.ExecuteRule(ctx, rule, cur)
			if err != nil {
				fr.errs = append(fr.errs, err)
				continue
			}
		}

		fixes, err := r.exec.ExecuteRuleFix(ctx, rule, cur, issues)
		if err != nil {
			fr.errs = append(fr.errs, err)
			continue
		}
		if len(fixes) == 0 {
			continue
		}
		out, err := fixer.Apply(content, fixes)
		if err != nil {
			fr.errs = append(fr.errs, &core.ExecutionError{RuleID: rule.ID().Full, FilePath: f.RelPath, Err: err})
		}
		content = out.Content
		applied = append(applied, out.Applied...)
		moves = append(moves, out.Moves...)
	}

	if len(applied) == 0 {
		return
	}
	if r.opts.DryRun {
		fr.fixes = applied
		return
	}

	if content != original {
		if err := r.fs.WriteFile(ctx, f.AbsPath, []byte(content)); err != nil {
			fr.errs = append(fr.errs, err)
			return
		}
	}
	if len(moves) > 0 {
		if err := r.move(ctx, f, moves); err != nil {
			fr.errs = append(fr.errs, err)
			applied = slices.DeleteFunc(applied, hasMove)
		}
	}
	fr.fixes = applied
}

// move performs the first rename among moves. Later moves would refer to
// a path that no longer exists and are dropped.
func (r *run) move(ctx context.Context, f scanner.File, moves []core.FileChange) error {
	mv := moves[0]
	if len(moves) > 1 {
		r.e.logger.Warn("multiple renames requested, applying the first", "path", f.RelPath, "count", len(moves))
	}
	target := filepath.FromSlash(mv.NewPath)
	if !filepath.IsLocal(target) {
		return core.NewError(core.CodeWriteFailed, "rename", mv.NewPath, fmt.Errorf("destination leaves the vault"))
	}
	return r.fs.Rename(ctx, f.AbsPath, filepath.Join(r.vault, target))
}

func hasMove(f core.Fix) bool {
	return slices.ContainsFunc(f.Changes, func(c core.FileChange) bool { return c.Type == core.ChangeMove })
}
