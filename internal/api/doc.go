// Package api defines wire-format types and converters for the HTTP API. It
// translates internal request models into transport-friendly DTOs that the
// CLI and display clients can render without coupling to internal types.
//
// # Key Types
//
// Request: transport representation of a song request, with a karaoke search
// link while the operator still needs to pick a track.
//
// Views: a role's projected queue plus the current settings and revision.
//
// RequestFeed/SettingsFeed: one long-poll snapshot of a live subscription.
// Revision is only comparable within the same Epoch.
//
// ErrorResponse: error kind, offending field, and per-batch reset failures.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Statuses, backing tracks, and themes are
// lowercase strings. Timestamps are RFC3339 with nanoseconds so clients can
// reproduce the store's ordering exactly.
package api
