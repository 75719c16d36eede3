// Package gen produces the synthetic outpatient case event stream.
//
// The generator is deterministic: identical (seed, date range, catalog)
// inputs yield byte-identical event sequences. Every (facility, day)
// partition draws from its own RNG whose seed is a pure function of
// (seed, facility id, day), so partitions can be generated independently,
// in any order, or in parallel without changing the output.
package gen
