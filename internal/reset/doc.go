// Package reset clears the whole request collection at the end of an event.
//
// A reset needs a ticket from Guard.Arm, a first confirmation, and a second
// confirmation that runs it. Deletes are issued in batches of at most
// MaxBatchSize through ApplyChunked, which awaits every batch and reports
// the failed ones without rolling back those that committed.
package reset
