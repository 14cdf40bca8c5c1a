package usbaudio

import (
	"context"
	"sync"
	"time"

	"github.com/obridge/overwitch/internal/ringbuf"
)

// SimulatedTransport is a software stand-in for the USB isochronous
// worker: it advances a synthetic device clock at a configurable rate
// (optionally drifting away from the nominal device sample rate, for
// drift-injection scenarios) and shuttles silence through the o2j/j2o
// ring buffers on a fixed tick, exactly the way the real worker would
// shuttle USB transfer payloads. It is the default transport for
// development and is tested in this package (the bridge package's tests
// use their own in-memory transports); no real USB host-class library for
// this protocol exists anywhere in the example corpus.
type SimulatedTransport struct {
	clock ObservationClock

	o2jRB *ringbuf.RingBuffer // device -> host
	j2oRB *ringbuf.RingBuffer // host -> device

	frameBytesO2J int
	frameBytesJ2O int

	// framesPerSec is the nominal device clock rate in frames/sec; a value
	// other than the descriptor's SampleRate injects clock drift.
	framesPerSec float64

	tick time.Duration

	wg       sync.WaitGroup
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewSimulatedTransport builds a simulated transport that advances at
// framesPerSec frames/sec, woken every tick to publish a fresh
// observation, drain whatever j2o bytes are queued, and write one tick's
// worth of silent o2j frames.
func NewSimulatedTransport(o2jRB, j2oRB *ringbuf.RingBuffer, frameBytesO2J, frameBytesJ2O int, framesPerSec float64, tick time.Duration) *SimulatedTransport {
	return &SimulatedTransport{
		o2jRB:         o2jRB,
		j2oRB:         j2oRB,
		frameBytesO2J: frameBytesO2J,
		frameBytesJ2O: frameBytesJ2O,
		framesPerSec:  framesPerSec,
		tick:          tick,
		stopped:       make(chan struct{}),
	}
}

// ReadO2J hands the process callback whatever device->host bytes the
// worker loop has produced since the last call.
func (t *SimulatedTransport) ReadO2J(buf []byte) (int, error) {
	return t.o2jRB.Read(buf), nil
}

// WriteJ2O stages host->device bytes for the worker loop to drain, and
// records the resulting ring occupancy as the latest j2o latency sample.
func (t *SimulatedTransport) WriteJ2O(buf []byte) (int, error) {
	n := t.j2oRB.Write(buf)
	t.clock.NoteJ2OLatency(uint64(t.j2oRB.ReadSpace()))
	return n, nil
}

// O2JOccupancy returns the number of unread bytes queued in the o2j ring.
func (t *SimulatedTransport) O2JOccupancy() int { return t.o2jRB.ReadSpace() }

// DiscardO2J drops up to n queued device->host bytes without copying them.
func (t *SimulatedTransport) DiscardO2J(n int) int { return t.o2jRB.ReadAdvance(n) }

func (t *SimulatedTransport) Snapshot() (older, newer Observation, j2oLatency uint64, status Status) {
	return t.clock.Snapshot()
}

func (t *SimulatedTransport) SetStatus(s Status) { t.clock.SetStatus(s) }

// Run drives the synthetic device clock until ctx is cancelled or the
// status is set to StatusStop. Each tick it: publishes a new
// (frameCount, time) observation, drains whatever j2o landed in the ring
// buffer (as if handing it to the device), and produces one tick's worth
// of silent o2j frames (as if the device had sent audio).
func (t *SimulatedTransport) Run(ctx context.Context) error {
	defer t.stopOnce.Do(func() { close(t.stopped) })

	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	start := time.Now()
	var frames uint64

	o2jChunk := make([]byte, int(t.framesPerSec*t.tick.Seconds()+1)*t.frameBytesO2J)
	j2oScratch := make([]byte, len(o2jChunk))

	for {
		select {
		case <-ctx.Done():
			t.clock.SetStatus(StatusStop)
			return nil
		case now := <-ticker.C:
			_, _, _, status := t.clock.Snapshot()
			if status == StatusStop {
				return nil
			}

			elapsed := now.Sub(start).Seconds()
			frames = uint64(elapsed * t.framesPerSec)
			t.clock.Publish(Observation{Frames: uint32(frames), Time: elapsed})

			for t.j2oRB.Read(j2oScratch) > 0 {
			}

			t.o2jRB.Write(o2jChunk)
		}
	}
}

// Wait blocks until Run has returned.
func (t *SimulatedTransport) Wait() {
	<-t.stopped
}

var _ Transport = (*SimulatedTransport)(nil)
