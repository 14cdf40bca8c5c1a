// Package config holds the static, compile-time-known facts about the
// bridged device and the package version string. Overbridge devices don't
// support runtime format negotiation, so this is the full "descriptor"
// contract: no discovery, no probing.
package config

// Version is printed by the CLI before the usage text, mirroring the
// reference tool's PACKAGE_STRING banner line.
const Version = "overwitch-go 0.1.0"

// DeviceDescriptor describes one member of the Overbridge family: its
// sample rate, per-transfer frame count, and channel layout. Non-goals
// exclude runtime descriptor negotiation, so these values are wired up
// once at process start from a small built-in table, never probed from
// the device itself.
type DeviceDescriptor struct {
	Name string

	// SampleRate is S_d, the device's fixed sample rate in Hz.
	SampleRate float64

	// FramesPerTransfer is T, the device's frames delivered per USB
	// isochronous transfer.
	FramesPerTransfer int

	// OutputNames are the o2j (device-to-host) channel names, in device
	// channel order. len(OutputNames) == D for that direction.
	OutputNames []string

	// InputNames are the j2o (host-to-device) channel names.
	InputNames []string
}

// Outputs is the number of o2j channels (H_out).
func (d DeviceDescriptor) Outputs() int { return len(d.OutputNames) }

// Inputs is the number of j2o channels (H_in).
func (d DeviceDescriptor) Inputs() int { return len(d.InputNames) }

// Digitakt is the Elektron Digitakt Overbridge descriptor: 2 inputs
// (master L/R capture), 12 outputs (main + per-track cue sends).
func Digitakt() DeviceDescriptor {
	return DeviceDescriptor{
		Name:              "Digitakt",
		SampleRate:        48000,
		FramesPerTransfer: 256,
		OutputNames: []string{
			"Main L", "Main R",
			"Track 1", "Track 2", "Track 3", "Track 4",
			"Track 5", "Track 6", "Track 7", "Track 8",
			"Input L", "Input R",
		},
		InputNames: []string{"Master L", "Master R"},
	}
}

// Devices lists every descriptor the bridge knows how to talk to.
func Devices() map[string]func() DeviceDescriptor {
	return map[string]func() DeviceDescriptor{
		"digitakt": Digitakt,
	}
}
