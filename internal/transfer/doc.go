// Package transfer moves case events from an edge store to the central
// store in watermark-bounded batches.
//
// Delivery is at-least-once with idempotent effect: every write uses
// insert-or-ignore on the event id, and the watermark only advances after
// all fetched batches have been written. A crash mid-run re-reads rows
// from the old watermark on the next run; the duplicates affect zero rows.
package transfer
