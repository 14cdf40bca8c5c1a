package bridge

import (
	"math"

	"github.com/obridge/overwitch/internal/usbaudio"
)

// ProcessCycle is the per-cycle orchestrator, invoked by the host-audio
// engine for each block of Bufsize frames. It must never allocate, block
// on I/O, or hold a lock across the SRC call.
//
// hostOut are the H_out output port buffers to fill (device->host,
// deinterleaved, one slice per channel, each len == Bufsize).
// hostIn are the H_in input port buffers to consume (host->device,
// deinterleaved, one slice per channel, each len == Bufsize).
// currentTime is the host cycle's current time in seconds.
func (b *Bridge) ProcessCycle(currentTime float64, hostOut [][]float32, hostIn [][]float32) {
	// 1. Compute ratios unconditionally; drives state transitions.
	readFrames := b.readFrames
	b.readFrames = 0
	b.controller.ComputeRatios(currentTime, readFrames, b.transport)
	o2jRatio := b.controller.Ratio()
	j2oRatio := b.controller.J2ORatio()

	// 2. o2j path: pull exactly Bufsize output frames at ratio r and
	// deinterleave into the host output ports.
	n := b.o2jConv.Read(o2jRatio, b.cfg.Bufsize, b.o2jOutBuf)
	if n != b.cfg.Bufsize {
		b.log.Warn("o2j: unexpected frame count", "ratio", o2jRatio, "got", n, "want", b.cfg.Bufsize)
	}
	channels := b.descriptor.Outputs()
	for ch := 0; ch < channels && ch < len(hostOut); ch++ {
		out := hostOut[ch]
		for i := 0; i < n && i < len(out); i++ {
			out[i] = b.o2jOutBuf[i*channels+ch]
		}
	}

	avail := float64(b.transport.O2JOccupancy())
	o2jLatencyMs := avail * 1000 / (float64(channels*4) * b.cfg.HostSampleRate)
	if o2jLatencyMs > b.o2jLatencyMs {
		b.o2jLatencyMs = o2jLatencyMs
	}

	// 3. j2o path: interleave host input ports, stage into the scratch
	// queue, compute the fractional-sample-accumulated frame count, pull
	// the SRC, and (only once RUN) write to the j2o ring buffer.
	inChannels := b.descriptor.Inputs()
	for i := 0; i < b.cfg.Bufsize; i++ {
		for ch := 0; ch < inChannels && ch < len(hostIn); ch++ {
			b.j2oInterleaveBuf[i*inChannels+ch] = hostIn[ch][i]
		}
	}
	b.j2oFeed.stage(b.j2oInterleaveBuf, b.cfg.Bufsize)

	b.j2oAcc += float64(b.cfg.Bufsize) * (j2oRatio - 1.0)
	inc := math.Trunc(b.j2oAcc)
	b.j2oAcc -= inc
	framesWanted := b.cfg.Bufsize + int(inc)

	gen := b.j2oConv.Read(j2oRatio, framesWanted, b.j2oOutBuf)
	if gen != framesWanted {
		b.log.Warn("j2o: unexpected frame count", "ratio", j2oRatio, "got", gen, "want", framesWanted)
	}

	if b.controller.Status() == usbaudio.StatusRun {
		b.j2oPayloadBuf = float32ToBytes(b.j2oPayloadBuf, b.j2oOutBuf[:gen*inChannels])
		payload := b.j2oPayloadBuf
		if written, _ := b.transport.WriteJ2O(payload); written == 0 && len(payload) > 0 {
			b.log.Warn("j2o: buffer overflow, discarding data")
		}
	}
}
