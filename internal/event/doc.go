// Package event defines the CaseEvent record: the unit of data produced by
// the generator, persisted in the edge store, and replicated to the central
// store by the transfer engine.
//
// CaseEvent is immutable after creation. The five phase timestamps are the
// source of truth; phase durations are always derived, never stored
// independently. The boundary serialization (Record) is a fixed contract
// consumed by the downstream analytics stage: absent timestamps for
// canceled/converted cases are explicit nulls, never omitted or zero-filled.
package event
