// Package archive backs up new requests to a Google Sheet.
//
// Archiving is best effort. The Dispatcher queues requests without blocking
// submission, delivers them at a bounded rate with a bounded number of
// attempts, and only ever logs failures.
package archive
