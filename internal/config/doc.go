// Package config loads, normalizes, and validates stagequeue configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// STAGEQUEUE_ADMIN_PIN. The Config type centralizes every knob the daemon and
// CLI need: where the request database lives, how long a submission may wait
// on the store, how large reset batches are, and how the spreadsheet backup
// sink is reached.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
