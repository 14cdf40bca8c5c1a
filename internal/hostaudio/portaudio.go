package hostaudio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// PortAudioEngine implements Engine on top of PortAudio
// (github.com/gordonklaus/portaudio), since the corpus has no Go JACK
// client binding. The caller-requested sample rate and frames-per-buffer
// stand in for JACK's sample-rate and
// buffer-size callbacks: both fire exactly once, at stream-open time,
// which already satisfies the "rejects a second change" contract since
// there is structurally only one such moment with this adapter.
type PortAudioEngine struct {
	sampleRate      float64
	framesPerBuffer int

	sampleRateCB func(float64) error
	bufferSizeCB func(int) error
	xrunCB       func()
	processCB    ProcessFunc

	outputNames []string
	inputNames  []string

	stream *portaudio.Stream

	outScratch [][]float32
	inScratch  [][]float32
}

// NewPortAudioEngine builds an engine that will request sampleRate and
// framesPerBuffer from the default PortAudio device when Activate is
// called.
func NewPortAudioEngine(sampleRate float64, framesPerBuffer int) (*PortAudioEngine, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	return &PortAudioEngine{sampleRate: sampleRate, framesPerBuffer: framesPerBuffer}, nil
}

func (e *PortAudioEngine) SetSampleRateCallback(cb func(float64) error) { e.sampleRateCB = cb }
func (e *PortAudioEngine) SetBufferSizeCallback(cb func(int) error)     { e.bufferSizeCB = cb }
func (e *PortAudioEngine) SetXrunCallback(cb func())                    { e.xrunCB = cb }
func (e *PortAudioEngine) SetProcessCallback(cb ProcessFunc)            { e.processCB = cb }

func (e *PortAudioEngine) RegisterPorts(outputNames, inputNames []string) error {
	e.outputNames = outputNames
	e.inputNames = inputNames
	e.outScratch = make([][]float32, len(outputNames))
	e.inScratch = make([][]float32, len(inputNames))
	for i := range e.outScratch {
		e.outScratch[i] = make([]float32, e.framesPerBuffer)
	}
	for i := range e.inScratch {
		e.inScratch[i] = make([]float32, e.framesPerBuffer)
	}
	return nil
}

func (e *PortAudioEngine) Activate() error {
	if e.sampleRateCB != nil {
		if err := e.sampleRateCB(e.sampleRate); err != nil {
			return err
		}
	}
	if e.bufferSizeCB != nil {
		if err := e.bufferSizeCB(e.framesPerBuffer); err != nil {
			return err
		}
	}

	params := portaudio.HighLatencyParameters(nil, nil)
	params.Input.Channels = len(e.inputNames)
	params.Output.Channels = len(e.outputNames)
	params.SampleRate = e.sampleRate
	params.FramesPerBuffer = e.framesPerBuffer

	var cycleFrames uint64
	stream, err := portaudio.OpenStream(params, func(in, out [][]float32, timeInfo portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
		if flags&(portaudio.InputOverflow|portaudio.OutputUnderflow) != 0 && e.xrunCB != nil {
			e.xrunCB()
		}

		n := e.framesPerBuffer
		for ch := range e.inScratch {
			if ch < len(in) {
				copy(e.inScratch[ch][:n], in[ch][:n])
			}
		}

		if e.processCB != nil {
			e.processCB(timeInfo.CurrentTime.Seconds(), e.outScratch, e.inScratch)
		}

		for ch := range out {
			if ch < len(e.outScratch) {
				copy(out[ch][:n], e.outScratch[ch][:n])
			}
		}
		cycleFrames += uint64(n)
	})
	if err != nil {
		return fmt.Errorf("portaudio: open stream: %w", err)
	}
	e.stream = stream

	return e.stream.Start()
}

func (e *PortAudioEngine) Deactivate() error {
	if e.stream == nil {
		return nil
	}
	return e.stream.Stop()
}

func (e *PortAudioEngine) Close() error {
	var err error
	if e.stream != nil {
		err = e.stream.Close()
	}
	if tErr := portaudio.Terminate(); tErr != nil && err == nil {
		err = tErr
	}
	return err
}

var _ Engine = (*PortAudioEngine)(nil)
