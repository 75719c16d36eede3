// Package catalog holds the immutable procedure/facility configuration the
// generator samples from: procedure duration-distribution parameters,
// facility volume ranges and procedure-mix biases, anesthesia mixes, and
// the categorical weight tables.
//
// The catalog is authored in CUE. A copy of the reference catalog is
// embedded in the binary; an alternate directory of .cue files can be
// loaded instead. Once loaded and validated the catalog is read-only:
// every accessor returns copies or immutable views.
package catalog
