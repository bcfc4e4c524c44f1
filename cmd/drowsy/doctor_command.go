package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"drowsy/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check camera, detection service and directory readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			for _, line := range renderSectionHeader("Readiness", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				fmt.Fprintln(stdout, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}

			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d readiness check(s) failed", len(failed))
			}
			fmt.Fprintln(stdout, "All checks passed")
			return nil
		},
	}
}
