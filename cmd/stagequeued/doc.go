// Command stagequeued runs the karaoke request daemon in the foreground. It
// owns the request database, holds the single-instance lock, and serves the
// HTTP API until interrupted.
package main
