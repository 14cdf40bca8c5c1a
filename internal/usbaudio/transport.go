// Package usbaudio defines the contract between the clock-domain crossing
// engine and the USB isochronous transport that actually talks to an
// Overbridge device. The real USB class-driver implementation is an
// external collaborator out of scope for this module (no device
// discovery, no descriptor negotiation); this package ships the contract
// plus a SimulatedTransport used as the development-mode default.
package usbaudio

import (
	"context"
	"sync"
)

// Status mirrors the controller's state machine as seen by the
// transport: it is written by the PLL (STARTUP/TUNE/RUN) and by shutdown
// (STOP), and read by the transport worker and the process callback.
type Status int

const (
	StatusStartup Status = iota
	StatusTune
	StatusRun
	StatusStop
)

func (s Status) String() string {
	switch s {
	case StatusStartup:
		return "STARTUP"
	case StatusTune:
		return "TUNE"
	case StatusRun:
		return "RUN"
	case StatusStop:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}

// Observation is a (frame_count, time) sample published at a USB cycle
// boundary.
type Observation struct {
	Frames uint32
	Time   float64 // seconds
}

// Transport is the USB-side contract: a worker that carries o2j bytes
// (device->host) out and j2o bytes (host->device) in, shares its two
// ring buffers with the engine's process callback, and exposes two
// timestamped frame-count observations plus a status word, all under one
// small critical section.
type Transport interface {
	// ReadO2J pulls device->host bytes the transport worker has landed
	// in the o2j ring buffer; the engine's process callback calls this
	// once per cycle.
	ReadO2J(buf []byte) (int, error)

	// WriteJ2O stages host->device bytes produced by the process
	// callback into the j2o ring buffer, for the transport worker to
	// drain. It also updates the high-water mark reported by Snapshot.
	WriteJ2O(buf []byte) (int, error)

	// O2JOccupancy returns the number of unread bytes currently queued
	// in the o2j ring buffer, for the engine's own latency accounting.
	O2JOccupancy() int

	// DiscardO2J drops up to n queued device->host bytes without copying
	// them, e.g. to flush backlog when the o2j feeder leaves priming
	// mode. It returns the number of bytes actually discarded.
	DiscardO2J(n int) int

	// Snapshot returns the two most recent observations (oldest first),
	// the j2o high-water mark in bytes, and the current status, all read
	// under one lock.
	Snapshot() (older, newer Observation, j2oLatency uint64, status Status)

	// SetStatus is called by the controller to advance STARTUP->TUNE->RUN,
	// and by the supervisor/signal handler to force STOP.
	SetStatus(Status)

	// Run starts the USB worker loop; it returns when ctx is done or the
	// status becomes STOP.
	Run(ctx context.Context) error

	// Wait blocks until the transport has reached StatusStop.
	Wait()
}

// ObservationClock is the small struct shared between the transport
// worker and the process callback; a sync.Mutex guards it, the idiomatic
// Go equivalent of the reference implementation's spinlock-protected
// critical section (a handful of word loads/stores).
type ObservationClock struct {
	mu         sync.Mutex
	older      Observation
	newer      Observation
	j2oLatency uint64
	status     Status
}

// Publish records a new observation, shifting the previous "newer" into
// "older", exactly as the reference's i0/i1 slots behave.
func (c *ObservationClock) Publish(obs Observation) {
	c.mu.Lock()
	c.older = c.newer
	c.newer = obs
	c.mu.Unlock()
}

func (c *ObservationClock) Snapshot() (older, newer Observation, j2oLatency uint64, status Status) {
	c.mu.Lock()
	older, newer, j2oLatency, status = c.older, c.newer, c.j2oLatency, c.status
	c.mu.Unlock()
	return
}

func (c *ObservationClock) SetStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

func (c *ObservationClock) NoteJ2OLatency(occupancy uint64) {
	c.mu.Lock()
	if occupancy > c.j2oLatency {
		c.j2oLatency = occupancy
	}
	c.mu.Unlock()
}
