package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/vaultlint/internal/ruleloader"
	"github.com/leapstack-labs/vaultlint/pkg/lint"
)

// RulesOptions holds options shared by the rules subcommands.
type RulesOptions struct {
	Vault  string // Where the config search starts
	Format string // Output format: text, json
}

// NewRulesCommand creates the rules command and its subcommands.
func NewRulesCommand() *cobra.Command {
	opts := &RulesOptions{}
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and manage rule definitions",
		Long: `Manage the rule definitions of a profile.

Rule definitions live under <rules_path>/enabled and <rules_path>/disabled.
Enabling or disabling a rule moves its definition file between the two
trees. Two enabled variants of the same rule (for example
frontmatter-required.strict and frontmatter-required.minimal) conflict
and stop every lint run until one is disabled.`,
		Example: `  # List enabled and disabled rules of the active profile
  vaultlint rules list

  # Check the work profile for conflicting variants
  vaultlint rules conflicts --profile work

  # Swap variants
  vaultlint rules disable frontmatter-required.strict
  vaultlint rules enable frontmatter-required.minimal`,
	}

	cmd.PersistentFlags().StringVar(&opts.Vault, "vault", "", "Directory where the config search starts (default: working directory)")
	cmd.PersistentFlags().StringVarP(&opts.Format, "format", "f", "text", "Output format: text, json")

	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	cmd.AddCommand(newRulesListCommand(opts))
	cmd.AddCommand(newRulesConflictsCommand(opts))
	cmd.AddCommand(newRulesMoveCommand(opts, true))
	cmd.AddCommand(newRulesMoveCommand(opts, false))
	return cmd
}

// rulesListing is the JSON shape of rules list.
type rulesListing struct {
	RulesPath string                    `json:"rules_path"`
	Enabled   []lint.RuleInfo           `json:"enabled"`
	Disabled  []ruleloader.DisabledRule `json:"disabled"`
}

func newRulesListCommand(opts *RulesOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List enabled and disabled rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rulesPath, loader, err := rulesContext(cmd, opts)
			if err != nil {
				return err
			}

			// Conflicts are reported by "rules conflicts"; listing still works.
			rules, err := loader.LoadRules(rulesPath)
			if err != nil {
				return err
			}
			disabled, err := ruleloader.ListDisabled(rulesPath)
			if err != nil {
				return err
			}

			listing := rulesListing{RulesPath: rulesPath, Enabled: make([]lint.RuleInfo, 0, len(rules)), Disabled: disabled}
			for _, r := range rules {
				listing.Enabled = append(listing.Enabled, lint.GetRuleInfo(r))
			}
			slices.SortFunc(listing.Enabled, func(a, b lint.RuleInfo) int { return strings.Compare(a.ID, b.ID) })
			if listing.Disabled == nil {
				listing.Disabled = []ruleloader.DisabledRule{}
			}

			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), listing)
			}
			writeRulesText(cmd.OutOrStdout(), listing)
			return nil
		},
	}
}

func writeRulesText(w io.Writer, l rulesListing) {
	_, _ = fmt.Fprintf(w, "Rules in %s\n", l.RulesPath)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Name", "Category", "Fixable", "State"})
	for _, r := range l.Enabled {
		fixable := ""
		if r.Fixable {
			fixable = "yes"
		}
		t.AppendRow(table.Row{r.ID, r.Name, r.Category, fixable, "enabled"})
	}
	for _, r := range l.Disabled {
		if r.Err != nil {
			t.AppendRow(table.Row{r.Path, "", "", "", "unreadable"})
			continue
		}
		t.AppendRow(table.Row{r.ID, r.Name, r.Category, "", "disabled"})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d enabled, %d disabled", len(l.Enabled), len(l.Disabled)), "", "", "", ""})
	t.Render()
}

func newRulesConflictsCommand(opts *RulesOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "Check enabled rules for conflicting variants",
		Long: `Check the enabled rules for conflicting variants and configuration
smells. Exits non-zero when conflicts are found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rulesPath, loader, err := rulesContext(cmd, opts)
			if err != nil {
				return err
			}
			rules, err := loader.LoadRules(rulesPath)
			if err != nil {
				return err
			}
			res := loader.DetectRuleConflicts(rules)

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				if err := writeJSON(out, res); err != nil {
					return err
				}
			} else {
				for _, g := range res.Conflicts {
					_, _ = fmt.Fprintf(out, "conflict %s: %s\n", g.MajorID, strings.Join(g.ConflictingRules, ", "))
					_, _ = fmt.Fprintf(out, "  resolution: %s\n", g.Resolution)
				}
				for _, w := range res.Warnings {
					_, _ = fmt.Fprintf(out, "warning: %s\n", w)
				}
				if res.Valid {
					_, _ = fmt.Fprintf(out, "No conflicts among %d enabled rules.\n", len(rules))
				}
			}

			if !res.Valid {
				return fmt.Errorf("%d conflicting rule group(s) in %s", len(res.Conflicts), rulesPath)
			}
			return nil
		},
	}
}

func newRulesMoveCommand(opts *RulesOptions, enable bool) *cobra.Command {
	use, short, verb := "disable <rule-id>", "Move a rule definition to the disabled tree", "disabled"
	if enable {
		use, short, verb = "enable <rule-id>", "Move a rule definition to the enabled tree", "enabled"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rulesPath, loader, err := rulesContext(cmd, opts)
			if err != nil {
				return err
			}
			moved, err := ruleloader.MoveRule(rulesPath, args[0], enable)
			if err != nil {
				return err
			}
			for _, p := range moved {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", verb, args[0], p)
			}

			if enable {
				if rules, err := loader.LoadRules(rulesPath); err == nil {
					if res := loader.DetectRuleConflicts(rules); !res.Valid {
						for _, g := range res.Conflicts {
							_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s now conflicts: %s\n", g.MajorID, g.Resolution)
						}
					}
				}
			}
			return nil
		},
	}
}

// rulesContext resolves the rules directory of the selected profile and a
// loader for it.
func rulesContext(cmd *cobra.Command, opts *RulesOptions) (string, *ruleloader.Loader, error) {
	cfg, err := loadConfig(cmd, opts.Vault)
	if err != nil {
		return "", nil, err
	}
	rulesPath, err := cfg.ProfileRulesPath("")
	if err != nil {
		return "", nil, err
	}
	return rulesPath, ruleloader.New(nil, GetGlobals(cmd.Context()).Logger), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
