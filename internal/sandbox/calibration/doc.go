// Package calibration models the quad that maps mesh UV space onto the depth
// sensor's pixel grid, and the helpers used to edit and validate it.
//
// The quad is produced outside the pipeline (manual handle dragging or an
// automated solver) and consumed as a snapshot each tick through Store. A
// degenerate quad is rejected at the Store boundary so the hot loop never sees
// one.
package calibration
