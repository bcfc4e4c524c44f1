// Package config loads, normalizes, and validates drowsy configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// DROWSY_SERVICE_URL. The Config type centralizes every knob the daemon and
// CLI need, so the detection service endpoint, camera device, polling cadence,
// and state directories are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
