// Package config loads, normalizes, and validates reqflow configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and overlays REQFLOW_* environment variables.
// The Config type centralizes every knob the daemon and CLI need, from the
// SQLite location and request numbering to lock backends and notification
// transports.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
