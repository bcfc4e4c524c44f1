package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"drowsy/internal/daemonctl"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, session and readiness status",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), ctx.configValue())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, snap)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("System Status", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range snap.Checks {
				fmt.Fprintln(stdout, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
			}

			if !snap.Offline {
				fmt.Fprintln(stdout)
				for _, line := range renderSectionHeader("Session", colorize) {
					fmt.Fprintln(stdout, line)
				}
				for _, line := range renderSessionLines(snap.Daemon.Session, colorize) {
					fmt.Fprintln(stdout, line)
				}
				if snap.Daemon.APIBind != "" {
					fmt.Fprintln(stdout, renderStatusLine("API", statusInfo, fmt.Sprintf("http://%s (%d stream clients)", snap.Daemon.APIBind, snap.Daemon.Subscribers), colorize))
				}
			}

			if snap.Daemon.LogPath != "" {
				fmt.Fprintln(stdout, renderStatusLine("Log", statusInfo, snap.Daemon.LogPath, colorize))
			}

			fmt.Fprintln(stdout)
			for _, line := range renderSectionHeader("Recent Sessions", colorize) {
				fmt.Fprintln(stdout, line)
			}
			if len(snap.Recent) == 0 {
				fmt.Fprintln(stdout, "No sessions recorded")
				return nil
			}
			fmt.Fprint(stdout, renderTable(sessionHeaders, sessionRows(snap.Recent), sessionAligns))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

var (
	sessionHeaders = []string{"ID", "Started", "Outcome", "Reason", "Duration", "Alerts", "Score"}
	sessionAligns  = []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight}
)
