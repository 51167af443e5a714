// Package l2temporal is the temporal stage of the sandbox pipeline: a
// per-pixel One-Euro filter that smooths sensor jitter, follows real terrain
// changes quickly and nearly freezes when a hand sweeps over the table.
//
// Each pixel keeps its own (filtered, previous raw) pair across ticks. Pixels
// never read each other's state, so a tick is a plain parallel map over the
// frame.
package l2temporal
