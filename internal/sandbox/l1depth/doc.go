// Package l1depth is the ingestion layer of the sandbox pipeline: it turns
// whatever delivers depth samples (a simulator, a network bridge or a capture
// replay) into whole depth frames behind the Source interface.
//
// Every source produces frames on its own goroutine into a FrameBuffer. The
// pipeline calls DepthData once per tick and gets either the newest complete
// frame or nil, meaning nothing new arrived and the previous frame should be
// reused. Frames produced faster than the pipeline ticks are dropped.
//
// Depth samples are millimetres; 0 marks a pixel with no return.
package l1depth
