package preflight

import (
	"context"
	"strings"

	"drowsy/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckCamera(cfg.Camera.Device),
		CheckDetectionService(ctx, cfg),
	}

	// ntfy is optional; only report when a topic is set
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		results = append(results, CheckURL(ctx, "ntfy", cfg.Notifications.NtfyTopic))
	}

	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
