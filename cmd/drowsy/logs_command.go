package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"drowsy/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var contains string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			opts := logs.Options{Lines: lines, Contains: contains}
			path := cfg.LogPath()

			if follow {
				return logs.Follow(cmd.Context(), path, opts, func(line string) {
					fmt.Fprintln(stdout, line)
				})
			}

			out, _, err := logs.Last(path, opts)
			if err != nil {
				return err
			}
			if len(out) == 0 {
				fmt.Fprintf(stdout, "No log lines in %s\n", path)
				return nil
			}
			for _, line := range out {
				fmt.Fprintln(stdout, line)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of recent lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().StringVar(&contains, "grep", "", "Only show lines containing this text")
	return cmd
}
