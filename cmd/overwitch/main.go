// Command overwitch bridges an Elektron Overbridge-class USB audio
// device to a JACK-style host audio graph using the clock-domain
// crossing engine in internal/bridge.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/obridge/overwitch/internal/bridge"
	"github.com/obridge/overwitch/internal/config"
	"github.com/obridge/overwitch/internal/hostaudio"
	"github.com/obridge/overwitch/internal/ringbuf"
	"github.com/obridge/overwitch/internal/usbaudio"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("overwitch", pflag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, config.Version)
		fmt.Fprintf(os.Stderr, "Usage: overwitch [-d device] [-v] [-h]\n")
		flags.PrintDefaults()
	}

	var verbosity int
	flags.CountVarP(&verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	help := flags.BoolP("help", "h", false, "print usage and exit")
	device := flags.StringP("device", "d", "digitakt", "Overbridge device to bridge")

	if err := flags.Parse(args); err != nil {
		flags.Usage()
		return 1
	}
	if *help {
		flags.Usage()
		return 0
	}

	logger := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		Level:           verbosityToLevel(verbosity),
	})

	descFn, ok := config.Devices()[*device]
	if !ok {
		logger.Error("unknown device", "device", *device)
		flags.Usage()
		return 1
	}
	descriptor := descFn()

	lockRealtimeMemory(logger)

	transport, err := newTransport(descriptor, logger)
	if err != nil {
		logger.Error("transport init failed", "err", err)
		return 1
	}

	br := bridge.New(descriptor, transport, logger)

	engine, err := hostaudio.NewPortAudioEngine(descriptor.SampleRate, descriptor.FramesPerTransfer)
	if err != nil {
		logger.Error("host audio init failed", "err", err)
		return 1
	}
	defer engine.Close()

	engine.SetSampleRateCallback(br.SampleRateCallback)
	engine.SetBufferSizeCallback(br.BufferSizeCallback)
	engine.SetXrunCallback(br.XrunCallback)
	engine.SetProcessCallback(br.ProcessCycle)

	if err := engine.RegisterPorts(descriptor.OutputNames, descriptor.InputNames); err != nil {
		logger.Error("port registration failed", "err", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		s := <-sig
		logger.Info("received signal, stopping", "signal", s)
		br.Stop()
		cancel()
	}()

	transportDone := make(chan error, 1)
	go func() { transportDone <- br.Run(ctx) }()

	if err := engine.Activate(); err != nil {
		logger.Error("activate failed", "err", err)
		return 1
	}

	br.Wait()
	logger.Info("exiting")
	if err := engine.Deactivate(); err != nil {
		logger.Warn("deactivate failed", "err", err)
	}

	if err := <-transportDone; err != nil {
		logger.Error("transport error", "err", err)
		return 1
	}
	return 0
}

// verbosityToLevel maps -v's repeat count onto charmbracelet/log's
// levels: none is Info (the default), 1+ is Debug. The reference's own
// debug_level has finer granularity than this logger distinguishes;
// extra diagnostic fields are still attached at Debug.
func verbosityToLevel(v int) charmlog.Level {
	if v <= 0 {
		return charmlog.InfoLevel
	}
	return charmlog.DebugLevel
}

// lockRealtimeMemory pins the process's pages in memory so the realtime
// process callback never takes a page fault, and tries to raise the
// process's scheduling priority. Neither failure is fatal: an
// unprivileged user still gets correct (if less jitter-resistant)
// behavior, so neither is returned as an error; an mlockall failure is
// logged at Warn and a setpriority failure at Debug.
func lockRealtimeMemory(logger *charmlog.Logger) {
	if runtime.GOOS != "linux" {
		return
	}
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		logger.Warn("mlockall failed, realtime jitter may increase", "err", err)
	}
	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, -11); err != nil {
		logger.Debug("setpriority failed, continuing at default priority", "err", err)
	}
}

// newTransport builds the USB transport and the ring buffer pair it
// shares with the engine's process callback. No USB host-class driver
// for the Overbridge protocol exists anywhere in the reference corpus,
// so this wires the software SimulatedTransport, ticking every 1 ms (one
// full-speed USB frame). The ring buffers are sized off the maximum
// supported host buffer size (the device's frames-per-transfer) rather
// than the (not yet negotiated) actual one, using the same headroom bound
// the engine applies to its own scratch buffers.
func newTransport(descriptor config.DeviceDescriptor, logger *charmlog.Logger) (usbaudio.Transport, error) {
	jackMaxBufSize := descriptor.FramesPerTransfer
	o2jFrameBytes := descriptor.Outputs() * 4
	j2oFrameBytes := descriptor.Inputs() * 4
	o2jBytes := int(float64(jackMaxBufSize*o2jFrameBytes) * bridge.MaxRatioBound)
	j2oBytes := int(float64(jackMaxBufSize*j2oFrameBytes) * bridge.MaxRatioBound)

	o2jRB := ringbuf.NewRingBuffer(o2jBytes)
	j2oRB := ringbuf.NewRingBuffer(j2oBytes)

	return usbaudio.NewSimulatedTransport(
		o2jRB, j2oRB,
		o2jFrameBytes, j2oFrameBytes,
		descriptor.SampleRate,
		time.Millisecond,
	), nil
}
