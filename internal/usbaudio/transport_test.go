package usbaudio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObservationClockPublishShiftsOlderNewer(t *testing.T) {
	var c ObservationClock

	c.Publish(Observation{Frames: 10, Time: 0.1})
	c.Publish(Observation{Frames: 20, Time: 0.2})

	older, newer, _, _ := c.Snapshot()
	assert.Equal(t, Observation{Frames: 10, Time: 0.1}, older)
	assert.Equal(t, Observation{Frames: 20, Time: 0.2}, newer)
}

func TestObservationClockSetStatus(t *testing.T) {
	var c ObservationClock
	assert.Equal(t, StatusStartup, func() Status { _, _, _, s := c.Snapshot(); return s }())

	c.SetStatus(StatusRun)
	_, _, _, status := c.Snapshot()
	assert.Equal(t, StatusRun, status)
}

func TestObservationClockNoteJ2OLatencyTracksHighWaterMark(t *testing.T) {
	var c ObservationClock
	c.NoteJ2OLatency(100)
	c.NoteJ2OLatency(50)
	c.NoteJ2OLatency(200)

	_, _, latency, _ := c.Snapshot()
	assert.Equal(t, uint64(200), latency, "the high-water mark must never decrease on a smaller sample")
}

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		StatusStartup: "STARTUP",
		StatusTune:    "TUNE",
		StatusRun:     "RUN",
		StatusStop:    "STOP",
		Status(99):    "UNKNOWN",
	}
	for status, want := range cases {
		assert.Equal(t, want, status.String())
	}
}

func TestStatusOrdering(t *testing.T) {
	assert.Less(t, int(StatusStartup), int(StatusTune))
	assert.Less(t, int(StatusTune), int(StatusRun))
	assert.Less(t, int(StatusRun), int(StatusStop))
}
