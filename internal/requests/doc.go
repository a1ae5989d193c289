// Package requests defines the song request model shared by every layer of
// stagequeue: the Request entity, its lifecycle statuses, the submission
// Draft, the singleton Settings record, and the error taxonomy surfaced to
// attendees and operators.
//
// Status semantics live here so the store, lifecycle engine, projector, and
// API all agree on which statuses are active, which are terminal, and which
// transitions are legal. When a status is added, update allStatuses and the
// transition table in transitions.go together.
package requests
