// Package api defines wire-format types and converters for the IPC and HTTP
// API layer. It translates controller snapshots and history rows into
// transport-friendly DTOs that the CLI and browser clients render without
// coupling to internal types.
//
// # Key Types
//
// Session: the live session with derived Detecting and Busy flags that mirror
// the demo's button states.
//
// SessionRecord/AlertnessEvent: persisted history.
//
// DaemonStatus: aggregated runtime information.
//
// StreamMessage: frames sent on the WebSocket event stream.
//
// # Design Notes
//
// DTOs use camelCase JSON tags for JavaScript consumers. Enums are exposed as
// lowercase strings. Timestamps use RFC3339 with milliseconds in UTC.
package api
