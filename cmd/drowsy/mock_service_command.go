package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"drowsy/internal/logging"
	"drowsy/internal/mockservice"
)

func newMockServiceCommand() *cobra.Command {
	var addr string
	var pattern string
	var seed int64
	var reject string
	var latency time.Duration

	cmd := &cobra.Command{
		Use:         "mock-service",
		Short:       "Run a fake detection service for development",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, ok := mockservice.ParsePattern(pattern)
			if !ok {
				return fmt.Errorf("unknown pattern %q (use cycle, random, drowsy or alert)", pattern)
			}
			logger, err := logging.New(logging.Options{Level: "info", Format: "console", OutputPaths: []string{"stderr"}})
			if err != nil {
				return err
			}
			mock := mockservice.New(mockservice.Options{
				Pattern:     parsed,
				Seed:        seed,
				RejectStart: reject,
				Latency:     latency,
				Logger:      logger,
			})

			listener, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", addr, err)
			}
			srv := &http.Server{Handler: mock.Handler(), ReadHeaderTimeout: 5 * time.Second}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Serve(listener)
			}()
			fmt.Fprintf(cmd.OutOrStdout(), "Mock detection service listening on http://%s/api (pattern %s)\n", listener.Addr(), parsed)

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:5000", "Listen address")
	cmd.Flags().StringVar(&pattern, "pattern", string(mockservice.PatternCycle), "Status pattern: cycle, random, drowsy or alert")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed for the random pattern")
	cmd.Flags().StringVar(&reject, "reject", "", "Reject start-detection with this message")
	cmd.Flags().DurationVar(&latency, "latency", 0, "Delay added to every response")
	return cmd
}
