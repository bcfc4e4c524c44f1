// Package notifications pushes drowsiness alerts and session failures to ntfy.
//
// The topic comes from config.toml. When it is empty NewService returns a
// no-op so the controller can always be wired with a notifier. Alerts for one
// session are deduplicated within notifications.dedup_window_seconds.
package notifications
