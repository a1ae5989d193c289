// Package daemon coordinates the long-running stagequeue process.
//
// It wires configuration, the request store, the lifecycle engine, the reset
// coordinator, and the archive dispatcher into a single lifecycle with
// flock-based locking to prevent multiple instances. The HTTP API serves
// submissions, operator transitions, one-shot projected views, and long-poll
// change feeds that remote consumers turn back into subscriptions.
//
// Admin routes are gated by the X-Admin-Pin header. Errors are answered with
// an api.ErrorResponse whose kind selects the status code: validation 400,
// precondition 409, not_found 404, unavailable 503, everything else 500.
package daemon
