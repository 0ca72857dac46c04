package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/vaultlint/internal/engine"
	"github.com/leapstack-labs/vaultlint/internal/metrics"
)

// ErrIssuesFound is returned by lint with --fail-on-issues when a run
// reported issues or errors.
var ErrIssuesFound = errors.New("issues found")

// LintOptions holds options for the lint command.
type LintOptions struct {
	Fix          bool
	DryRun       bool
	Rules        []string // Run only these rule ids or major ids
	FailOnIssues bool
	JSON         bool
	MetricsOut   string // Prometheus textfile written after the run
}

// NewLintCommand creates the lint command.
func NewLintCommand() *cobra.Command {
	opts := &LintOptions{}
	cmd := &cobra.Command{
		Use:   "lint [vault...]",
		Short: "Lint one or more vaults",
		Long: `Run the enabled rules of the active profile against every document in
each vault and report the issues found.

With --fix, fixable issues are repaired on disk. --dry-run computes the
same fixes without writing anything. Several vaults are processed in
sequence and summarized in a table; each vault picks up the nearest
vaultlint.yaml unless --config is given.`,
		Example: `  # Lint the vault in the current directory
  vaultlint lint

  # Fix two vaults with the work profile
  vaultlint lint --fix --profile work ~/notes ~/journal

  # Show what would change
  vaultlint lint --dry-run ~/notes

  # Run a single rule family and emit JSON
  vaultlint lint --rule frontmatter-required --json ~/notes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"."}
			}
			return runLint(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Fix, "fix", false, "Apply fixes for fixable issues")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Compute fixes without writing them")
	cmd.Flags().StringSliceVar(&opts.Rules, "rule", nil, "Run only these rule ids or major ids")
	cmd.Flags().BoolVar(&opts.FailOnIssues, "fail-on-issues", false, "Exit non-zero when issues or errors are reported")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Output results as JSON")
	cmd.Flags().StringVar(&opts.MetricsOut, "metrics-out", "", "Write Prometheus metrics to this textfile")

	return cmd
}

// lintSummary totals a multi-vault run.
type lintSummary struct {
	Vaults         int           `json:"vaults"`
	FilesProcessed int           `json:"files_processed"`
	IssuesFound    int           `json:"issues_found"`
	FixesApplied   int           `json:"fixes_applied"`
	Errors         int           `json:"errors"`
	Failed         int           `json:"failed"`
	Duration       time.Duration `json:"duration"`
}

// vaultOutcome is the result of one vault; Err is set when the run could
// not complete.
type vaultOutcome struct {
	Vault  string
	Result *engine.LintResult
	Err    error
}

func runLint(cmd *cobra.Command, vaults []string, opts *LintOptions) error {
	g := GetGlobals(cmd.Context())
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	popts := engine.ProcessOptions{
		Fix:     opts.Fix || opts.DryRun,
		DryRun:  opts.DryRun,
		Verbose: g.Verbose,
		Rules:   opts.Rules,
	}

	var progress engine.ProgressFunc
	if g.Verbose {
		stderr := cmd.ErrOrStderr()
		progress = func(done, total int, message string) {
			_, _ = fmt.Fprintf(stderr, "[%d/%d] %s\n", done, total, message)
		}
	}

	outcomes := make([]vaultOutcome, 0, len(vaults))
	for _, vault := range vaults {
		res, err := lintVault(cmd, vault, m, popts, progress)
		if err != nil {
			g.Logger.Error("vault failed", "vault", vault, "error", err)
		}
		outcomes = append(outcomes, vaultOutcome{Vault: vault, Result: res, Err: err})
	}

	if opts.MetricsOut != "" {
		if err := metrics.WriteTextfile(opts.MetricsOut, reg); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	summary := summarize(outcomes)
	if opts.JSON {
		if err := writeLintJSON(cmd.OutOrStdout(), outcomes, summary); err != nil {
			return err
		}
	} else {
		writeLintText(cmd.OutOrStdout(), outcomes, summary)
	}

	if summary.Failed > 0 {
		for _, o := range outcomes {
			if o.Err != nil {
				if len(outcomes) == 1 {
					return o.Err
				}
				return fmt.Errorf("%d of %d vaults failed, first: %s: %w", summary.Failed, summary.Vaults, o.Vault, o.Err)
			}
		}
	}
	if opts.FailOnIssues && (summary.IssuesFound > 0 || summary.Errors > 0) {
		return fmt.Errorf("%w: %d issues, %d errors", ErrIssuesFound, summary.IssuesFound, summary.Errors)
	}
	return nil
}

// lintVault runs one vault on its own engine so each vault gets its own
// configuration.
func lintVault(cmd *cobra.Command, vault string, m *metrics.Metrics, opts engine.ProcessOptions, progress engine.ProgressFunc) (*engine.LintResult, error) {
	eng, err := newEngine(cmd, vault, m)
	if err != nil {
		return nil, err
	}
	defer func() { _ = eng.Close() }()
	return eng.ProcessVault(cmd.Context(), vault, opts, progress)
}

func summarize(outcomes []vaultOutcome) lintSummary {
	s := lintSummary{Vaults: len(outcomes)}
	for _, o := range outcomes {
		if o.Err != nil {
			s.Failed++
		}
		if o.Result == nil {
			continue
		}
		s.FilesProcessed += o.Result.FilesProcessed
		s.IssuesFound += len(o.Result.IssuesFound)
		s.FixesApplied += len(o.Result.FixesApplied)
		s.Errors += len(o.Result.Errors)
		s.Duration += o.Result.Duration
	}
	return s
}

type lintJSON struct {
	Vaults  []vaultJSON `json:"vaults"`
	Summary lintSummary `json:"summary"`
}

type vaultJSON struct {
	Vault  string             `json:"vault"`
	Result *engine.LintResult `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

func writeLintJSON(w io.Writer, outcomes []vaultOutcome, summary lintSummary) error {
	out := lintJSON{Vaults: make([]vaultJSON, 0, len(outcomes)), Summary: summary}
	for _, o := range outcomes {
		v := vaultJSON{Vault: o.Vault, Result: o.Result}
		if o.Err != nil {
			v.Error = o.Err.Error()
		}
		out.Vaults = append(out.Vaults, v)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeLintText(w io.Writer, outcomes []vaultOutcome, summary lintSummary) {
	for _, o := range outcomes {
		if o.Result == nil {
			continue
		}
		res := o.Result
		if len(outcomes) > 1 {
			_, _ = fmt.Fprintf(w, "== %s\n", res.VaultPath)
		}
		for _, is := range res.IssuesFound {
			_, _ = fmt.Fprintf(w, "%s:%d:%d: %s [%s] %s\n", is.File, is.Line, is.Column, is.Severity, is.RuleID, is.Message)
		}
		for _, f := range res.FixesApplied {
			verb := "fixed"
			if res.DryRun {
				verb = "would fix"
			}
			_, _ = fmt.Fprintf(w, "%s %s: %s\n", verb, f.File, f.Description)
		}
		_, _ = fmt.Fprint(w, res.Report())
	}

	if len(outcomes) < 2 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Vault", "Files", "Issues", "Fixes", "Errors", "Status"})
	for _, o := range outcomes {
		if o.Result == nil {
			t.AppendRow(table.Row{o.Vault, "-", "-", "-", "-", "failed"})
			continue
		}
		r := o.Result
		status := "ok"
		if o.Err != nil {
			status = "aborted"
		}
		t.AppendRow(table.Row{o.Vault, humanize.Comma(int64(r.FilesProcessed)), len(r.IssuesFound), len(r.FixesApplied), len(r.Errors), status})
	}
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d vaults", summary.Vaults),
		humanize.Comma(int64(summary.FilesProcessed)),
		summary.IssuesFound, summary.FixesApplied, summary.Errors,
		summary.Duration.Round(time.Millisecond).String(),
	})
	t.Render()
}
