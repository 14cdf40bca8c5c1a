package bridge

// Configuration holds everything derived once from the first
// sample-rate and buffer-size callbacks. It is immutable after Derive
// returns; every scratch/ring buffer and the PLL are sized and seeded
// from it.
type Configuration struct {
	Bufsize    int     // B, host frames per cycle
	HostSampleRate float64 // S_h
	DeviceSampleRate float64 // S_d

	NominalRatio float64 // r0 = S_h/S_d
	RatioMin     float64
	RatioMax     float64

	Kdel int // target pipeline depth, device-frames

	LogIntervalCycles int

	FramesPerTransfer int // T
}

// MaxRatioBound bounds how far a host sample rate can sit above a device
// sample rate (4.5x covers up to 192kHz against a 48kHz device) and sizes
// every scratch and ring allocation that has to survive the widest ratio,
// not only the j2o path.
const MaxRatioBound = 4.5

// DeriveConfiguration computes a Configuration from the host sample rate
// and buffer size, validating that the host buffer size does not exceed
// the device's frames-per-transfer.
func DeriveConfiguration(hostSampleRate float64, bufsize, framesPerTransfer int, deviceSampleRate float64) (Configuration, error) {
	if bufsize > framesPerTransfer {
		return Configuration{}, &ConfigRejectedError{
			Reason: "host buffer size exceeds device frames-per-transfer",
		}
	}

	r0 := hostSampleRate / deviceSampleRate
	cfg := Configuration{
		Bufsize:           bufsize,
		HostSampleRate:    hostSampleRate,
		DeviceSampleRate:  deviceSampleRate,
		NominalRatio:      r0,
		RatioMin:          0.95 * r0,
		RatioMax:          1.05 * r0,
		Kdel:              framesPerTransfer + int(1.5*float64(bufsize)),
		LogIntervalCycles: int(2 * hostSampleRate / float64(bufsize)),
		FramesPerTransfer: framesPerTransfer,
	}
	return cfg, nil
}

// ConfigRejectedError reports that a proposed configuration cannot be
// honored; the caller must set status=STOP and must not proceed to
// activate the process callback.
type ConfigRejectedError struct {
	Reason string
}

func (e *ConfigRejectedError) Error() string { return "configuration rejected: " + e.Reason }
