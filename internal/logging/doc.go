// Package logging assembles structured slog loggers used across stagequeue.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so API handlers and lifecycle
// operations tag log lines with request and correlation IDs. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits data with the same shape.
package logging
