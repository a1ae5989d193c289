// Package store is the Request Store: durable song requests, the settings
// singleton, and a change feed that delivers total snapshots to subscribers.
//
// The Store interface is the only contract the lifecycle engine, projector,
// sync controller, and reset coordinator depend on. SQLite backs it in the
// daemon; tests substitute fakes where they need to inject failures.
//
// Every mutation is a conditional write: the status check and the write are
// one statement, so two operators racing on the same request produce exactly
// one winner and the loser receives a *ConditionError. After each committed
// mutation the feed revision advances and every subscription re-reads its
// predicate. Subscribers never merge deltas; they replace their copy.
package store
