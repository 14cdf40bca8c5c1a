package usbaudio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obridge/overwitch/internal/ringbuf"
)

func newTestTransport() *SimulatedTransport {
	o2jRB := ringbuf.NewRingBuffer(4096)
	j2oRB := ringbuf.NewRingBuffer(4096)
	return NewSimulatedTransport(o2jRB, j2oRB, 4, 4, 48000, time.Millisecond)
}

func TestSimulatedTransportProducesO2JFrames(t *testing.T) {
	tr := newTestTransport()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	deadline := time.After(time.Second)
	for {
		buf := make([]byte, 64)
		if n, _ := tr.ReadO2J(buf); n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("transport never produced any o2j bytes")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	require.NoError(t, <-done)
	tr.Wait()
}

func TestSimulatedTransportWriteJ2OTracksLatency(t *testing.T) {
	tr := newTestTransport()

	n, err := tr.WriteJ2O([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	_, _, latency, _ := tr.Snapshot()
	assert.Equal(t, uint64(4), latency)
}

func TestSimulatedTransportDiscardO2JDropsWithoutCopying(t *testing.T) {
	tr := newTestTransport()

	tr.o2jRB.Write([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	discarded := tr.DiscardO2J(4)
	assert.Equal(t, 4, discarded)
	assert.Equal(t, 4, tr.O2JOccupancy())

	got := make([]byte, 4)
	n, _ := tr.ReadO2J(got)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{5, 6, 7, 8}, got, "discard must drop the oldest bytes, not reorder the rest")
}

func TestSimulatedTransportStopsOnStatusStop(t *testing.T) {
	tr := newTestTransport()

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	time.Sleep(5 * time.Millisecond)
	tr.SetStatus(StatusStop)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after StatusStop")
	}
	tr.Wait()
}

func TestSimulatedTransportStopsOnContextCancel(t *testing.T) {
	tr := newTestTransport()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
