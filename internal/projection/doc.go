// Package projection derives the pending, up next, now playing, and history
// views from a raw set of requests. Projections hold no state between calls
// and are recomputed from scratch on every snapshot.
package projection
