// Package hostaudio defines the JACK-style host-audio contract the
// bridge engine is driven by (sample-rate/buffer-size/xrun/process
// callbacks, port registration) and ships one concrete adapter,
// PortAudioEngine, since no Go JACK client binding exists anywhere in
// the reference corpus.
package hostaudio

// ProcessFunc is invoked once per audio cycle. currentTime is the
// cycle's current time in seconds; out/in are deinterleaved per-channel
// buffers in device-descriptor channel order.
type ProcessFunc func(currentTime float64, out [][]float32, in [][]float32)

// Engine is the host-audio integration contract.
type Engine interface {
	// SetSampleRateCallback registers a callback invoked exactly once
	// with the chosen host sample rate.
	SetSampleRateCallback(func(hz float64) error)

	// SetBufferSizeCallback registers a callback invoked exactly once
	// with the chosen host buffer size, in frames.
	SetBufferSizeCallback(func(nframes int) error)

	// SetXrunCallback registers a callback invoked on every xrun.
	SetXrunCallback(func())

	// SetProcessCallback registers the per-cycle process function.
	SetProcessCallback(ProcessFunc)

	// RegisterPorts creates the named output (device->host) and input
	// (host->device) ports.
	RegisterPorts(outputNames, inputNames []string) error

	// Activate starts the realtime callback running.
	Activate() error

	// Deactivate stops the realtime callback.
	Deactivate() error

	// Close releases every resource the engine acquired.
	Close() error
}
