package bridge

import (
	"math"

	"github.com/charmbracelet/log"

	"github.com/obridge/overwitch/internal/usbaudio"
)

// maxReadFrames bounds how many o2j frames a single pull yields once
// running: low enough to keep the startup error small, and never an even
// multiple of anything that would let two adjacent pulls land on exactly
// the same phase.
const maxReadFrames = 5

// o2jFeeder is the pull source for the device->host SRC. It starts in
// "priming" mode (returning a trickle of frames while the o2j ring
// buffer fills) and switches permanently to "running" mode the instant a
// full host buffer is queued, discarding whatever backlog had built up
// without copying it (via Transport.DiscardO2J) so the pipeline's
// steady-state latency starts at kdel rather than carrying a startup
// transient.
type o2jFeeder struct {
	transport  usbaudio.Transport
	channels   int
	frameBytes int
	bufBytes   int // one full host-buffer's worth of o2j bytes

	running    bool
	lastFrames int // frames returned by the previous pull

	lastSample []float32 // the last frame emitted, for hold-last concealment

	readFrames *int // accumulator the PLL drains each cycle

	log *log.Logger

	runScratch []byte    // reused for running-mode reads
	outBuf     []float32 // reused for every value this feeder hands back
}

func newO2JFeeder(transport usbaudio.Transport, channels int, bufBytes int, readFrames *int, logger *log.Logger) *o2jFeeder {
	frameBytes := channels * 4
	return &o2jFeeder{
		transport:  transport,
		channels:   channels,
		frameBytes: frameBytes,
		bufBytes:   bufBytes,
		lastFrames: 1,
		lastSample: make([]float32, channels),
		readFrames: readFrames,
		log:        logger,
		runScratch: make([]byte, maxReadFrames*frameBytes),
		outBuf:     make([]float32, maxReadFrames*channels),
	}
}

// read is the pull callback passed to the o2j Converter. It returns up to
// maxReadFrames interleaved frames of device audio (want is not
// consulted), in whichever of the two feeder sub-modes is currently
// active; priming and concealment always return exactly maxReadFrames.
// The returned slice aliases f.outBuf
// and is only valid until the next call.
func (f *o2jFeeder) read(want int) ([]float32, int) {
	if !f.running {
		avail := f.transport.O2JOccupancy()
		if avail < f.bufBytes {
			frames := maxReadFrames
			f.outBuf = ensureFloat32(f.outBuf, frames*f.channels)
			zeroFloat32(f.outBuf)
			*f.readFrames += frames
			f.lastFrames = frames
			return f.outBuf, frames
		}
		if discard := avail - avail%f.frameBytes; discard > 0 {
			f.transport.DiscardO2J(discard)
		}
		f.running = true
	}

	n, _ := f.transport.ReadO2J(f.runScratch)
	var frames int
	var out []float32
	if n >= f.frameBytes {
		frames = n / f.frameBytes
		f.outBuf = bytesToFloat32(f.outBuf, f.runScratch[:frames*f.frameBytes])
		out = f.outBuf
		copy(f.lastSample, out[(frames-1)*f.channels:frames*f.channels])
	} else {
		f.log.Warn("o2j: ring buffer empty, concealing with hold-last sample")
		frames = maxReadFrames
		f.outBuf = ensureFloat32(f.outBuf, frames*f.channels)
		for i := 0; i < frames; i++ {
			copy(f.outBuf[i*f.channels:(i+1)*f.channels], f.lastSample)
		}
		out = f.outBuf
	}

	*f.readFrames += frames
	f.lastFrames = frames
	return out, frames
}

// j2oFeeder is the pull source for the host->device SRC: single mode,
// always serving whatever the process cycle staged in the scratch queue
// for this call.
type j2oFeeder struct {
	channels   int
	readFrames *int
	log        *log.Logger

	queue    []float32 // staged by the process cycle before each pull
	queueLen int        // frames currently staged

	outBuf []float32 // reused for every value this feeder hands back
}

func newJ2OFeeder(channels int, readFrames *int, logger *log.Logger) *j2oFeeder {
	return &j2oFeeder{channels: channels, readFrames: readFrames, log: logger}
}

// stage appends bufsize host-frames (interleaved) to the scratch queue,
// ahead of the SRC pull for this cycle.
func (f *j2oFeeder) stage(frames []float32, n int) {
	f.queue = append(f.queue[:f.queueLen*f.channels], frames[:n*f.channels]...)
	f.queueLen += n
}

// read drains the scratch queue. The returned slice aliases f.outBuf and
// is only valid until the next call.
func (f *j2oFeeder) read(want int) ([]float32, int) {
	if f.queueLen == 0 {
		f.log.Warn("j2o: scratch queue empty, returning silence", "frames", want)
		f.outBuf = ensureFloat32(f.outBuf, want*f.channels)
		zeroFloat32(f.outBuf)
		*f.readFrames += want
		return f.outBuf, want
	}

	n := f.queueLen
	f.outBuf = ensureFloat32(f.outBuf, n*f.channels)
	copy(f.outBuf, f.queue[:n*f.channels])
	f.queueLen = 0
	*f.readFrames += n
	return f.outBuf, n
}

// ensureFloat32 returns buf resized to need, reusing its backing array
// when it is already large enough.
func ensureFloat32(buf []float32, need int) []float32 {
	if cap(buf) < need {
		return make([]float32, need)
	}
	return buf[:need]
}

func zeroFloat32(buf []float32) {
	for i := range buf {
		buf[i] = 0
	}
}

// bytesToFloat32 decodes buf into dst, reusing dst's backing array when
// it is already large enough.
func bytesToFloat32(dst []float32, buf []byte) []float32 {
	dst = ensureFloat32(dst, len(buf)/4)
	for i := range dst {
		bits := uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
		dst[i] = math.Float32frombits(bits)
	}
	return dst
}

// ensureBytes returns buf resized to need, reusing its backing array when
// it is already large enough.
func ensureBytes(buf []byte, need int) []byte {
	if cap(buf) < need {
		return make([]byte, need)
	}
	return buf[:need]
}

// float32ToBytes encodes frames into dst, reusing dst's backing array when
// it is already large enough.
func float32ToBytes(dst []byte, frames []float32) []byte {
	dst = ensureBytes(dst, len(frames)*4)
	for i, v := range frames {
		bits := math.Float32bits(v)
		dst[i*4] = byte(bits)
		dst[i*4+1] = byte(bits >> 8)
		dst[i*4+2] = byte(bits >> 16)
		dst[i*4+3] = byte(bits >> 24)
	}
	return dst
}
