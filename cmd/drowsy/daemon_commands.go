package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"drowsy/internal/daemonctl"
	"drowsy/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the drowsy daemon process",
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the drowsy daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx),
				10*time.Second,
			)
			if err != nil {
				return err
			}

			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(stdout, "Daemon already running (pid %d)\n", result.PID)
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the drowsy daemon (ends any running session)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), pidPath(ctx), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.PID)
				return nil
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the drowsy daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			stop, err := daemonctl.StopAndTerminate(ctx.socketPath(), pidPath(ctx), 5*time.Second)
			switch {
			case errors.Is(err, daemonctl.ErrDaemonNotRunning):
			case err != nil:
				return err
			default:
				if stop.ForcedKill {
					fmt.Fprintf(stdout, "Killed unresponsive daemon (pid %d)\n", stop.PID)
				}
				fmt.Fprintln(stdout, "Daemon stopped")
			}
			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonLaunchOptions(ctx), 10*time.Second)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Daemon restarted (pid %d)\n", result.PID)
			return nil
		},
	}

	var logLevel string
	var development bool
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the drowsy daemon in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				SocketPath:  ctx.socketPath(),
				LogLevel:    logLevel,
				Development: development,
			})
		},
	}
	runCmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	runCmd.Flags().BoolVar(&development, "dev", false, "Include source locations in log output")

	daemonCmd.AddCommand(startCmd, stopCmd, restartCmd, runCmd)
	return daemonCmd
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{ConfigPath: ctx.configPath()}
	if ctx.socketFlag != nil {
		opts.SocketPath = *ctx.socketFlag
	}
	return opts
}

func pidPath(ctx *commandContext) string {
	if cfg := ctx.configValue(); cfg != nil {
		return daemonrun.PIDPath(cfg)
	}
	return ""
}
