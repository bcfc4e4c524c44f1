// Package metrics exports detection session counters and state gauges in
// Prometheus text format.
package metrics
