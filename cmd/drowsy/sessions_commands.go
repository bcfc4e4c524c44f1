package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"drowsy/internal/ipc"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect recorded session history",
	}

	var limit int
	var listJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.History(limit)
				if err != nil {
					return err
				}
				if listJSON {
					return writeJSON(cmd, resp.Sessions)
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Sessions) == 0 {
					fmt.Fprintln(stdout, "No sessions recorded")
					return nil
				}
				fmt.Fprint(stdout, renderTable(sessionHeaders, sessionRows(resp.Sessions), sessionAligns))
				return nil
			})
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of sessions to show")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")

	var showJSON bool
	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one session and its alertness changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SessionDetail(args[0])
				if err != nil {
					return err
				}
				if showJSON {
					return writeJSON(cmd, resp)
				}
				stdout := cmd.OutOrStdout()
				fmt.Fprint(stdout, renderTable(sessionHeaders, sessionRows([]ipc.SessionRecord{resp.Session}), sessionAligns))
				if len(resp.Events) == 0 {
					fmt.Fprintln(stdout, "No alertness changes recorded")
					return nil
				}
				rows := make([][]string, 0, len(resp.Events))
				for _, evt := range resp.Events {
					rows = append(rows, []string{
						formatDisplayTime(evt.At),
						humanizeStatus(evt.From),
						humanizeStatus(evt.To),
						humanizeStatus(evt.RawStatus),
						fmt.Sprintf("%.0f", evt.Score),
					})
				}
				fmt.Fprint(stdout, renderTable(
					[]string{"At", "From", "To", "Raw Status", "Score"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output as JSON")

	var olderThan time.Duration
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete finished sessions older than a given age",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Prune(olderThan)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d session(s)\n", resp.Removed)
				return nil
			})
		},
	}
	pruneCmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Minimum age of sessions to delete")

	sessionsCmd.AddCommand(listCmd, showCmd, pruneCmd)
	return sessionsCmd
}
