// Package bridge implements the clock-domain crossing engine: the SRC
// feeders, the PLL controller, the per-cycle orchestrator and the
// lifecycle/supervisor. It is deliberately transport- and
// host-audio-agnostic: the o2j/j2o ring buffers live inside whatever
// usbaudio.Transport the caller wires up, and the engine only ever
// touches them through that interface; it is driven by whatever concrete
// hostaudio.Engine the caller supplies.
package bridge

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/obridge/overwitch/internal/config"
	"github.com/obridge/overwitch/internal/usbaudio"
)

// Bridge is the single owned instance of the whole engine, passed to
// callbacks via closures rather than kept in file-scope globals. It is
// safe to construct one Bridge per process; it is not designed to be
// shared across multiple devices.
type Bridge struct {
	descriptor config.DeviceDescriptor
	transport  usbaudio.Transport
	log        *log.Logger

	cfg   Configuration
	cfgOK bool

	controller *ControllerState

	o2jConv *Converter
	j2oConv *Converter

	o2jFeed *o2jFeeder
	j2oFeed *j2oFeeder

	readFrames int // shared accumulator drained by the PLL each cycle

	j2oAcc float64 // fractional-sample accumulator carried cycle to cycle

	j2oInterleaveBuf []float32 // scratch: host input ports -> interleaved
	o2jOutBuf        []float32 // scratch: SRC o2j output
	j2oOutBuf        []float32 // scratch: SRC j2o output
	j2oPayloadBuf    []byte    // scratch: j2oOutBuf encoded for the transport

	o2jLatencyMs float64 // high-water mark, for the final shutdown report
}

// New constructs a Bridge for the given device, wired to transport. All
// per-cycle scratch state is allocated once both callbacks have fired
// (see allocate), so no allocation is ever needed once the process
// callback is activated.
func New(descriptor config.DeviceDescriptor, transport usbaudio.Transport, logger *log.Logger) *Bridge {
	if logger == nil {
		logger = log.Default()
	}
	b := &Bridge{
		descriptor: descriptor,
		transport:  transport,
		log:        logger,
	}
	return b
}

// SampleRateCallback is called once by the host-audio engine when the
// sample rate is known. A second call is rejected.
func (b *Bridge) SampleRateCallback(hostSampleRate float64) error {
	if b.cfg.HostSampleRate != 0 {
		return fmt.Errorf("sample rate already set to %.0f", b.cfg.HostSampleRate)
	}
	b.cfg.HostSampleRate = hostSampleRate
	b.cfg.DeviceSampleRate = b.descriptor.SampleRate
	b.cfg.NominalRatio = hostSampleRate / b.descriptor.SampleRate
	b.cfg.RatioMin = 0.95 * b.cfg.NominalRatio
	b.cfg.RatioMax = 1.05 * b.cfg.NominalRatio
	b.log.Info("host sample rate", "hz", hostSampleRate)

	if b.cfg.Bufsize != 0 && !b.cfgOK {
		b.cfg.LogIntervalCycles = int(2 * hostSampleRate / float64(b.cfg.Bufsize))
		b.cfgOK = true
		b.allocate()
	}
	return nil
}

// BufferSizeCallback is called once by the host-audio engine when the
// buffer size is known. A second call, or a buffer size larger than the
// device's frames-per-transfer, is rejected.
func (b *Bridge) BufferSizeCallback(nframes int) error {
	if b.cfg.Bufsize != 0 {
		return fmt.Errorf("buffer size already set to %d", b.cfg.Bufsize)
	}
	if nframes > b.descriptor.FramesPerTransfer {
		b.transport.SetStatus(usbaudio.StatusStop)
		return &ConfigRejectedError{Reason: fmt.Sprintf(
			"host buffer size %d exceeds device frames-per-transfer %d",
			nframes, b.descriptor.FramesPerTransfer)}
	}

	b.cfg.Bufsize = nframes
	b.cfg.FramesPerTransfer = b.descriptor.FramesPerTransfer
	b.cfg.Kdel = b.descriptor.FramesPerTransfer + int(1.5*float64(nframes))
	if b.cfg.HostSampleRate != 0 {
		b.cfg.LogIntervalCycles = int(2 * b.cfg.HostSampleRate / float64(nframes))
	}
	b.log.Info("host buffer size", "frames", nframes)

	if b.cfg.HostSampleRate != 0 && !b.cfgOK {
		b.cfgOK = true
		b.allocate()
	}
	return nil
}

// XrunCallback logs a realtime overrun/underrun diagnostic; it never
// changes control state.
func (b *Bridge) XrunCallback() {
	b.log.Warn("xrun")
}

// allocate builds the converters, feeders and scratch buffers once both
// callbacks have fired. This is the last allocation point; nothing here
// runs again after the process callback is activated.
func (b *Bridge) allocate() {
	b.o2jFeed = newO2JFeeder(b.transport, b.descriptor.Outputs(), b.cfg.Bufsize*b.descriptor.Outputs()*4, &b.readFrames, b.log)
	b.j2oFeed = newJ2OFeeder(b.descriptor.Inputs(), &b.readFrames, b.log)

	b.o2jConv = NewConverter(b.descriptor.Outputs(), b.o2jFeed.read)
	b.j2oConv = NewConverter(b.descriptor.Inputs(), b.j2oFeed.read)

	maxJ2OFrames := int(float64(b.cfg.Bufsize) * MaxRatioBound)
	b.j2oInterleaveBuf = make([]float32, b.cfg.Bufsize*b.descriptor.Inputs())
	b.o2jOutBuf = make([]float32, b.cfg.Bufsize*b.descriptor.Outputs())
	b.j2oOutBuf = make([]float32, maxJ2OFrames*b.descriptor.Inputs())
	b.j2oPayloadBuf = make([]byte, maxJ2OFrames*b.descriptor.Inputs()*4)

	b.controller = NewController(b.cfg, b.log)
}

// Run wires up the transport worker and blocks until it stops.
// cmd/overwitch starts it in its own goroutine just before activating the
// host-audio engine.
func (b *Bridge) Run(ctx context.Context) error {
	return b.transport.Run(ctx)
}

// Stop requests a cooperative shutdown: the process callback observes
// StatusStop on its next cycle and stops writing to the j2o ring buffer,
// and the transport's Wait() unblocks.
func (b *Bridge) Stop() {
	b.transport.SetStatus(usbaudio.StatusStop)
	b.log.Info("max latencies", "o2j_ms", b.o2jLatencyMs)
}

// Wait blocks until the transport has reached StatusStop.
func (b *Bridge) Wait() { b.transport.Wait() }

// Ready reports whether both callbacks have fired and the engine has
// finished allocating (i.e. the process callback may now be activated).
func (b *Bridge) Ready() bool { return b.cfgOK }
