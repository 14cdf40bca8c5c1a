package bridge

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func constantReader(value float32, channels int) srcReader {
	return func(want int) ([]float32, int) {
		out := make([]float32, want*channels)
		for i := range out {
			out[i] = value
		}
		return out, want
	}
}

// zeroAllocReader never allocates once built: it serves every pull from a
// single preallocated buffer sized for the largest expected request.
func zeroAllocReader(value float32, channels, maxWant int) srcReader {
	buf := make([]float32, maxWant*channels)
	for i := range buf {
		buf[i] = value
	}
	return func(want int) ([]float32, int) {
		if want > maxWant {
			want = maxWant
		}
		return buf[:want*channels], want
	}
}

func TestConverterUnityRatioPassesThroughConstantSignal(t *testing.T) {
	conv := NewConverter(1, constantReader(0.5, 1))
	dst := make([]float32, 256)

	n := conv.Read(1.0, 256, dst)
	assert.Equal(t, 256, n)
	for i, v := range dst {
		assert.InDelta(t, 0.5, v, 1e-4, "frame %d", i)
	}
}

func TestConverterAlwaysProducesWantedFrameCount(t *testing.T) {
	conv := NewConverter(2, constantReader(0, 2))
	dst := make([]float32, 0, 4096)

	for _, want := range []int{1, 17, 128, 512} {
		for cap(dst) < want*2 {
			dst = make([]float32, 0, want*2)
		}
		n := conv.Read(0.97, want, dst)
		assert.Equal(t, want, n)
	}
}

func TestConverterDoesNotAllocateAfterWarmup(t *testing.T) {
	conv := NewConverter(2, zeroAllocReader(0.25, 2, 256))
	dst := make([]float32, 128*2)

	// Warm up so the scratch/timeline buffers reach their steady-state size.
	for i := 0; i < 8; i++ {
		conv.Read(1.0, 128, dst)
	}

	allocs := testing.AllocsPerRun(50, func() {
		conv.Read(1.0, 128, dst)
	})
	assert.Zero(t, allocs, "Converter.Read must not allocate once warmed up")
}

func TestConverterHandlesRatioDrift(t *testing.T) {
	conv := NewConverter(1, constantReader(1.0, 1))
	dst := make([]float32, 300)

	for _, ratio := range []float64{0.95, 1.0, 1.05} {
		n := conv.Read(ratio, 300, dst)
		assert.Equal(t, 300, n)
		for _, v := range dst {
			assert.False(t, math.IsNaN(float64(v)))
		}
	}
}
