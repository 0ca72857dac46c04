// Package cli provides the command-line interface for vaultlint.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/leapstack-labs/vaultlint/internal/cli/commands"
	"github.com/leapstack-labs/vaultlint/internal/config"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var (
		cfgFile   string
		verbose   bool
		logFormat string
	)

	rootCmd := &cobra.Command{
		Use:   "vaultlint",
		Short: "vaultlint - rule-based linter for note vaults",
		Long: `vaultlint checks and fixes Markdown vaults against rule definitions.

Rules are TOML files grouped into profiles. Each rule applies to the
paths its patterns select, reports issues and, where it can, fixes them.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip setup for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			logger, level, err := newLogger(cmd.ErrOrStderr(), logFormat, verbose, cmd.Flags())
			if err != nil {
				return err
			}

			ctx := commands.WithGlobals(cmd.Context(), &commands.Globals{
				ConfigFile: cfgFile,
				Verbose:    verbose,
				Logger:     logger,
				Level:      level,
			})
			cmd.SetContext(ctx)

			if verbose && cfgFile != "" {
				logger.Debug("using config file", "file", cfgFile)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	// Global persistent flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: nearest "+config.FileName+")")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Verbose output and progress on stderr")
	pf.StringVar(&logFormat, "log-format", "text", "Log format (text|json)")
	pf.String("log-level", "", "Log level (debug|info|warn|error)")
	pf.String("rules-path", "", "Rules directory")
	pf.StringP("profile", "p", "", "Rule profile to use")
	pf.StringSlice("ignore", nil, "Ignore patterns (replaces the configured list)")
	pf.StringSlice("extensions", nil, "Document extensions to lint (\"*\" for all files)")
	pf.Bool("parallel", false, "Process files in parallel")
	pf.Int("max-concurrency", 0, "Maximum files processed at once")
	pf.Duration("task-timeout", 0, "Per-file timeout in parallel runs")

	_ = rootCmd.RegisterFlagCompletionFunc("log-format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(Version, GitCommit, BuildDate))
	rootCmd.AddCommand(commands.NewLintCommand())
	rootCmd.AddCommand(commands.NewRulesCommand())
	rootCmd.AddCommand(commands.NewHealthCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// newLogger builds the stderr logger. Verbose forces debug; otherwise an
// explicit --log-level wins and the configured level is applied later.
func newLogger(w io.Writer, format string, verbose bool, flags *pflag.FlagSet) (*slog.Logger, *slog.LevelVar, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)
	if s, _ := flags.GetString("log-level"); s != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(s)); err != nil {
			return nil, nil, fmt.Errorf("invalid --log-level %q", s)
		}
		level.Set(l)
	}
	if verbose {
		level.Set(slog.LevelDebug)
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch format {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, nil, fmt.Errorf("invalid --log-format %q: want text or json", format)
	}
	return slog.New(h), level, nil
}

// Execute runs the root command. Interrupts cancel the running command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for vaultlint.

To load completions:

Bash:
  $ source <(vaultlint completion bash)

Zsh:
  $ vaultlint completion zsh > "${fpath[1]}/_vaultlint"

Fish:
  $ vaultlint completion fish | source

PowerShell:
  PS> vaultlint completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
