package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewHealthCommand creates the health command.
func NewHealthCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "health [vault]",
		Short: "Check that vaultlint can run",
		Long: `Validate the configuration, load the active profile's rules, check them
for conflicts and compare heap usage with the configured memory limits.
Exits non-zero when any check fails.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			searchDir := ""
			if len(args) > 0 {
				searchDir = args[0]
			}
			eng, err := newEngine(cmd, searchDir, nil)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			report := eng.ValidateEngineHealth()
			out := cmd.OutOrStdout()
			if format == "json" {
				if err := writeJSON(out, report); err != nil {
					return err
				}
			} else {
				t := table.NewWriter()
				t.SetOutputMirror(out)
				t.SetStyle(table.StyleLight)
				t.AppendHeader(table.Row{"Check", "Status", "Details"})
				for _, c := range report.Checks {
					status := "ok"
					switch {
					case !c.OK:
						status = "FAIL"
					case c.Warning:
						status = "WARN"
					}
					t.AppendRow(table.Row{c.Name, status, c.Details})
				}
				t.Render()
				for _, w := range report.Warnings {
					_, _ = fmt.Fprintf(out, "warning: %s\n", w)
				}
			}

			if !report.Healthy {
				return fmt.Errorf("health check failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	return cmd
}
