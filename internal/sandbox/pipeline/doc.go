// Package pipeline runs the sandbox stages once per tick: temporal filter,
// spatial healing, height-field synthesis and optional walls.
//
// This package is the composition root for the sandbox layers. It imports
// l1depth through l4heightfield, the watchdog and the calibration store, but
// none of those packages import pipeline/. Persistence and publishing are
// reached through the Sink and EventLog interfaces so the pipeline never
// imports the db or visualiser packages.
package pipeline
