package bridge

import (
	"math"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"

	"github.com/obridge/overwitch/internal/usbaudio"
)

// ControllerState is the PLL (C4): a 2nd-order digital loop filter that
// estimates the momentary o2j ratio so the pipeline depth converges to
// kdel device-frames. Every field here that the reference implementation
// keeps as a C "static" local (z1/z2/z3, kj, the two running sums, the
// cycle counter, the last-tuned ratio) is a struct field instead, so a
// ControllerState is reusable per-Bridge-instance state, never a
// package-level global.
type ControllerState struct {
	cfg Configuration

	z1, z2, z3 float64
	w0, w1, w2 float64

	kj float64 // running estimate of host frames consumed

	ratio    float64 // r, the current o2j ratio
	lastRatio float64

	cycle        int
	sumO2J, sumJ2O float64

	status usbaudio.Status

	log          *log.Logger
	reportFormat *strftime.Strftime
}

// NewController builds a controller for the given configuration, primed
// at the nominal ratio and STARTUP state with a wide loop bandwidth.
func NewController(cfg Configuration, logger *log.Logger) *ControllerState {
	format, err := strftime.New("%H:%M:%S")
	if err != nil {
		format = nil
	}
	c := &ControllerState{
		cfg:          cfg,
		ratio:        cfg.NominalRatio,
		kj:           float64(cfg.Bufsize) / -cfg.NominalRatio,
		status:       usbaudio.StatusStartup,
		log:          logger,
		reportFormat: format,
	}
	c.setLoopFilter(1.0)
	return c
}

// Ratio returns r, the current o2j SRC ratio.
func (c *ControllerState) Ratio() float64 { return c.ratio }

// Status returns the controller's state-machine position.
func (c *ControllerState) Status() usbaudio.Status { return c.status }

// setLoopFilter derives the 2nd-order filter coefficients for loop
// bandwidth bw, taken, like the reference, from the zita/zalsa JACK
// resampling client's loop filter design.
func (c *ControllerState) setLoopFilter(bw float64) {
	w := 2 * math.Pi * 20 * bw * float64(c.cfg.Bufsize) / c.cfg.HostSampleRate
	c.w0 = 1 - math.Exp(-w)
	w = 2 * math.Pi * bw * c.ratio / c.cfg.HostSampleRate
	c.w1 = w * 1.6
	c.w2 = w * float64(c.cfg.Bufsize) / 1.6
}

// ComputeRatios runs once per host cycle, unconditionally, before either
// SRC call. currentTime is the host cycle's current time
// in seconds (JACK's jack_get_cycle_times current_usecs, converted).
// readFrames is the number of host frames the feeders consumed since the
// previous call.
func (c *ControllerState) ComputeRatios(currentTime float64, readFrames int, obs usbaudio.Transport) {
	older, newer, j2oLatency, status := obs.Snapshot()
	c.status = status
	_ = j2oLatency

	c.kj += float64(readFrames)

	var dob float64
	if newer.Time != older.Time {
		dob = float64(newer.Frames-older.Frames) * (currentTime - older.Time) / (newer.Time - older.Time)
	}
	err := (float64(older.Frames) - c.kj) + dob - float64(c.cfg.Kdel)

	c.z1 += c.w0 * (c.w1*err - c.z1)
	c.z2 += c.w0 * (c.z1 - c.z2)
	c.z3 += c.w2 * c.z2
	c.ratio = 1 - c.z2 - c.z3
	if c.ratio > c.cfg.RatioMax {
		c.ratio = c.cfg.RatioMax
	}
	if c.ratio < c.cfg.RatioMin {
		c.ratio = c.cfg.RatioMin
	}

	c.cycle++
	c.sumO2J += c.ratio
	c.sumJ2O += 1 / c.ratio

	if c.cycle == c.cfg.LogIntervalCycles {
		at := ""
		if c.reportFormat != nil {
			at = c.reportFormat.FormatString(time.Now())
		}
		c.log.Info("pll report",
			"at", at,
			"avg_o2j_ratio", c.sumO2J/float64(c.cfg.LogIntervalCycles),
			"avg_j2o_ratio", c.sumJ2O/float64(c.cfg.LogIntervalCycles),
			"j2o_latency_ms", float64(j2oLatency)*1000/c.cfg.HostSampleRate,
		)
		c.cycle = 0
		c.sumO2J = 0
		c.sumJ2O = 0

		if c.status == usbaudio.StatusStartup {
			c.log.Debug("retuning loop filter", "bw", 0.05)
			c.setLoopFilter(0.05)

			n := math.Floor(err + 0.5)
			c.kj += n
			err -= n

			c.status = usbaudio.StatusTune
			obs.SetStatus(usbaudio.StatusTune)
			c.lastRatio = c.ratio
			return
		}

		// TUNE->RUN compares ratios sampled one log interval apart, not
		// successive cycles.
		if c.status == usbaudio.StatusTune && math.Abs(c.lastRatio-c.ratio) < 1e-7 {
			c.status = usbaudio.StatusRun
			obs.SetStatus(usbaudio.StatusRun)
		}
		c.lastRatio = c.ratio
	}
}

// J2ORatio is the reciprocal SRC ratio used by the host->device
// converter.
func (c *ControllerState) J2ORatio() float64 { return 1 / c.ratio }
