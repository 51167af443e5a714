// Package kernel provides the data-parallel dispatch used by every per-pixel
// and per-vertex stage of the sandbox pipeline.
//
// A stage hands the pool an index count and a function over a half-open
// [lo, hi) range. The pool splits the range into disjoint chunks, runs them on
// its workers and returns only once every chunk has finished. Chunks never
// overlap, so stages write straight into shared output slices without locks.
package kernel
