// Package logging assembles structured slog loggers and formatting helpers used
// across drowsy components.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes helpers that tag log lines with component names and
// detection session identifiers. The package also provides a no-op logger for
// tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so the controller,
// daemon, and CLI emit records with the same shape.
package logging
