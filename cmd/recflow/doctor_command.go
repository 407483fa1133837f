package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"recflow/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check binaries, directories and service credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg, preflight.Options{Remote: !offline})
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderChecks(results, isTerminal(out)))

			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d required check(s) failed", len(failed))
			}
			fmt.Fprintln(out, "All required checks passed")
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the Telegram and LLM probes")
	return cmd
}

func renderChecks(results []preflight.Result, fancy bool) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := "OK"
		switch {
		case r.Passed:
		case r.Optional:
			status = "WARN"
		default:
			status = "FAIL"
		}
		rows = append(rows, []string{r.Name, status, r.Detail})
	}
	return renderTable(
		[]string{"Check", "Status", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft},
		fancy,
	)
}
