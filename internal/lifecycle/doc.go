// Package lifecycle applies operator and submission transitions to song
// requests.
//
// Every transition is a single conditional write against the store, so a
// repeated or racing call fails with a precondition error instead of being
// applied twice. Play completes the current performance before promoting the
// next one; the store's single-playing index backs that ordering up.
package lifecycle
