package bridge

// src.go implements a pull-mode, multi-channel sample-rate converter.
// There is no third-party resampling library anywhere in the reference
// corpus, so this is a deliberately small, stdlib-only windowed-sinc
// interpolator tuned to match libsamplerate's
// SRC_SINC_FASTEST quality tier: a short, 2-zero-crossing Hann-windowed
// sinc kernel, good enough for a ratio that only ever drifts a few
// percent from 1:1.

import "math"

// srcReader is the pull callback a Converter asks for more input frames.
// It mirrors libsamplerate's src_callback_read data-supply contract:
// return as many interleaved frames as are available right now (zero is
// a valid, if unusual, answer).
type srcReader func(want int) (frames []float32, n int)

const (
	srcHalfTaps   = 2 // zero crossings on each side of center
	srcKernelOver = 32 // kernel table oversampling factor
)

var sincKernel [srcKernelOver*srcHalfTaps + 1]float64

func init() {
	// Precompute a Hann-windowed sinc kernel sampled at srcKernelOver
	// points per input sample, covering srcHalfTaps zero crossings.
	n := len(sincKernel)
	for i := 0; i < n; i++ {
		x := float64(i) / srcKernelOver
		var sinc float64
		if x == 0 {
			sinc = 1
		} else {
			px := math.Pi * x
			sinc = math.Sin(px) / px
		}
		window := 0.5 + 0.5*math.Cos(math.Pi*x/srcHalfTaps)
		sincKernel[i] = sinc * window
	}
}

func kernelAt(x float64) float64 {
	if x < 0 {
		x = -x
	}
	idx := x * srcKernelOver
	if idx >= float64(len(sincKernel)-1) {
		return 0
	}
	i0 := int(idx)
	frac := idx - float64(i0)
	return sincKernel[i0]*(1-frac) + sincKernel[i0+1]*frac
}

// Converter is a pull-mode asynchronous sample-rate converter for
// channels-interleaved float32 data. Callers drive it with Read, which
// requests a number of output frames at a given ratio (output_rate /
// input_rate) and pulls input from its reader as needed. All state is
// struct-owned (ring history, fractional phase, staging buffers), so once
// those buffers have grown to their steady-state size Read does not
// allocate, matching the realtime-callback no-alloc requirement.
type Converter struct {
	channels int
	reader   srcReader

	// history holds the last 2*srcHalfTaps input frames (interleaved),
	// used so the kernel can look backward across a Read() call boundary.
	history    []float32
	historyLen int // in frames

	phase float64 // fractional position into the next unconsumed input frame

	scratchIn []float32 // reused input staging buffer
	timeline  []float32 // reused flat history+input buffer
}

// NewConverter builds a converter pulling channels-interleaved frames
// from reader.
func NewConverter(channels int, reader srcReader) *Converter {
	histFrames := 2 * srcHalfTaps
	return &Converter{
		channels:  channels,
		reader:    reader,
		history:   make([]float32, histFrames*channels),
		scratchIn: make([]float32, 0, 4096),
		timeline:  make([]float32, 0, 4096),
	}
}

// Read produces exactly want output frames (interleaved) into dst
// (which must have capacity for want*channels float32s) at the given
// ratio = outputRate/inputRate, and returns the number of frames
// actually produced (always want here: the reader's own modes decide
// concealment, never the converter under-producing).
func (c *Converter) Read(ratio float64, want int, dst []float32) int {
	if cap(dst) < want*c.channels {
		dst = append(dst[:0], make([]float32, want*c.channels)...)
	}
	dst = dst[:want*c.channels]

	// Estimate how many new input frames we might need for this call and
	// pull them once, up front, the way src_callback_read does.
	approxIn := int(float64(want)/ratio) + 2*srcHalfTaps + 2
	if cap(c.scratchIn) < approxIn*c.channels {
		c.scratchIn = make([]float32, approxIn*c.channels)
	}
	in := c.scratchIn[:0]
	got := 0
	if approxIn > 0 {
		frames, n := c.reader(approxIn)
		in = append(in, frames[:n*c.channels]...)
		got = n
	}

	// Build a flat timeline: srcHalfTaps*2 history frames followed by the
	// freshly read frames, reusing c.timeline's backing array once it has
	// grown to its steady-state size.
	total := c.historyLen + got
	need := total * c.channels
	if cap(c.timeline) < need {
		c.timeline = make([]float32, need)
	} else {
		c.timeline = c.timeline[:need]
	}
	timeline := c.timeline
	copy(timeline, c.history[:c.historyLen*c.channels])
	copy(timeline[c.historyLen*c.channels:], in[:got*c.channels])

	step := 1.0 / ratio
	pos := c.phase
	for f := 0; f < want; f++ {
		center := float64(c.historyLen) + pos
		i0 := int(math.Floor(center)) - srcHalfTaps + 1
		for ch := 0; ch < c.channels; ch++ {
			var acc float64
			for k := -srcHalfTaps + 1; k <= srcHalfTaps; k++ {
				tap := i0 + (k + srcHalfTaps - 1)
				w := kernelAt(center - float64(tap))
				idx := tap
				if idx < 0 {
					idx = 0
				}
				if idx >= total {
					idx = total - 1
				}
				acc += w * float64(timeline[idx*c.channels+ch])
			}
			dst[f*c.channels+ch] = float32(acc)
		}
		pos += step
	}

	// Advance phase/history for the next call: consumed whole input
	// frames move out of the window, the remainder becomes new history.
	consumed := int(math.Floor(c.phase + float64(want)*step))
	c.phase = c.phase + float64(want)*step - float64(consumed)

	// Keep only the last 2*srcHalfTaps frames of the timeline as history.
	keep := 2 * srcHalfTaps
	if total < keep {
		keep = total
	}
	if keep > 0 {
		copy(c.history[:keep*c.channels], timeline[(total-keep)*c.channels:])
	}
	c.historyLen = keep

	return want
}
