// Package logs reads the daemon log file for `drowsy logs`.
//
// Reads are bounded: the last N lines are kept in a ring buffer and follow
// mode resumes from a byte offset so a long-running daemon log never has to
// be loaded whole.
package logs
