package l1depth

import "errors"

// ErrNotRunning is returned by operations that need an initialized source.
var ErrNotRunning = errors.New("depth source not running")

// Source is a depth sensor as seen by the pipeline.
type Source interface {
	// Initialize opens the device and starts frame production. It may be
	// called again after Shutdown to reconnect.
	Initialize() error
	// Shutdown stops frame production and releases the device.
	Shutdown()
	IsRunning() bool
	Width() int
	Height() int
	// DepthData returns the newest frame not yet returned, or nil if no new
	// frame arrived since the last call. The slice stays valid until the next
	// call.
	DepthData() []uint16
	DeviceName() string
}

// Finisher is implemented by sources with a natural end, such as a capture
// replay that does not loop. A finished source is idle, not hung.
type Finisher interface {
	Finished() bool
}
