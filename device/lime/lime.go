// Package lime binds a LimeSDR receive channel to device.Device.
package lime

import (
	"fmt"
	"strings"
	"sync/atomic"
	"unsafe"

	"github.com/myriadrf/limedrv"
	"github.com/quan-to/slog"
	"github.com/racerxdl/hfp_tcp/device"
)

var log = slog.Scope("LimeSDR")

// The LMS7002M runs at any rate, these are the ones advertised to clients.
var advertisedRates = []uint32{3072000, 1536000, 768000, 192000}

type Options struct {
	Index        int
	Channel      int
	Antenna      string
	LPF          float64
	Oversampling int
}

type Device struct {
	dev     *limedrv.LMSDevice
	opts    Options
	handler atomic.Pointer[device.SampleHandler]

	streaming atomic.Bool
	failed    atomic.Bool
}

// Open opens the device at opts.Index and enables its receive channel.
func Open(opts Options) (*Device, error) {
	devices := limedrv.GetDevices()
	if len(devices) == 0 {
		return nil, fmt.Errorf("no devices found")
	}

	if len(devices) <= opts.Index || opts.Index < 0 {
		names := make([]string, 0, len(devices))
		for i, v := range devices {
			names = append(names, fmt.Sprintf("%d: %s [%s, %s]", i, v.DeviceName, v.Addr, v.Serial))
		}
		return nil, fmt.Errorf("invalid device index %d, found: %s", opts.Index, strings.Join(names, "; "))
	}

	dev := limedrv.Open(devices[opts.Index])
	if len(dev.RXChannels) <= opts.Channel || opts.Channel < 0 {
		dev.Close()
		return nil, fmt.Errorf("invalid channel %d, device has %d", opts.Channel, len(dev.RXChannels))
	}

	d := &Device{
		dev:  dev,
		opts: opts,
	}
	dev.SetCallback(d.onSamples)

	dev.RXChannels[opts.Channel].Enable().
		SetAntennaByName(opts.Antenna).
		SetGainNormalized(1).
		SetLPF(opts.LPF).
		EnableLPF()

	log.Info("Opened %s channel %d antenna %s", devices[opts.Index].DeviceName, opts.Channel, opts.Antenna)
	return d, nil
}

func (d *Device) onSamples(samples []complex64, _ int, _ uint64) {
	if len(samples) == 0 || d.failed.Load() {
		return
	}
	h := d.handler.Load()
	if h == nil {
		return
	}
	// complex64 is two adjacent float32, so this is the interleaved I/Q view
	iq := unsafe.Slice((*float32)(unsafe.Pointer(&samples[0])), len(samples)*2)
	if err := (*h)(iq); err != nil {
		// the driver keeps calling back, drop blocks until the next Start
		d.failed.Store(true)
		d.streaming.Store(false)
	}
}

func (d *Device) Start(handler device.SampleHandler) error {
	if d.failed.Load() {
		d.dev.Stop()
	}
	d.handler.Store(&handler)
	d.failed.Store(false)
	d.dev.Start()
	d.streaming.Store(true)
	return nil
}

func (d *Device) Stop() error {
	if !d.streaming.Load() && !d.failed.Load() {
		return device.ErrNotStreaming
	}
	d.dev.Stop()
	d.streaming.Store(false)
	d.failed.Store(false)
	return nil
}

func (d *Device) SetFrequency(hz uint32) error {
	d.dev.SetCenterFrequency(d.opts.Channel, true, float64(hz))
	return nil
}

func (d *Device) SetSampleRate(rate uint32) error {
	d.dev.SetSampleRate(float64(rate), d.opts.Oversampling)
	return nil
}

func (d *Device) SampleRates() []uint32 {
	return advertisedRates
}

func (d *Device) IsStreaming() bool {
	return d.streaming.Load()
}

func (d *Device) Close() {
	if d.streaming.Load() {
		d.dev.Stop()
	}
	d.dev.Close()
}
