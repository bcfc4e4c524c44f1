package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"drowsy/internal/ipc"
)

func newSessionCommand(ctx *commandContext) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Control the live detection session",
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start a detection session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Start()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if !resp.Started {
					return errors.New(resp.Message)
				}
				fmt.Fprintf(stdout, "Detection started (session %s)\n", resp.Session.SessionID)
				return nil
			})
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the detection session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Stop(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Detection stopped")
				return nil
			})
		},
	}

	var asJSON bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the live session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, status.Session)
				}
				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)
				for _, line := range renderSessionLines(status.Session, colorize) {
					fmt.Fprintln(stdout, line)
				}
				return nil
			})
		},
	}
	showCmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	var interval time.Duration
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Print alertness changes until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				return watchSession(cmd, client, interval)
			})
		},
	}
	watchCmd.Flags().DurationVar(&interval, "interval", time.Second, "How often to poll the daemon")

	sessionCmd.AddCommand(startCmd, stopCmd, showCmd, watchCmd)
	return sessionCmd
}

// watchSession prints one line per state or alertness change.
func watchSession(cmd *cobra.Command, client *ipc.Client, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last string
	for {
		status, err := client.Status()
		if err != nil {
			return err
		}
		s := status.Session
		key := s.State + "/" + s.Alertness + "/" + s.SessionID
		if key != last {
			last = key
			detail := fmt.Sprintf("%s, score %.0f", s.AlertnessLabel, s.Score)
			if s.Error != "" {
				detail = s.Error
			}
			label := time.Now().Format("15:04:05") + " " + humanizeStatus(s.State)
			fmt.Fprintln(stdout, renderStatusLine(label, sessionKind(s), detail, colorize))
		}
		select {
		case <-cmd.Context().Done():
			return nil
		case <-ticker.C:
		}
	}
}
