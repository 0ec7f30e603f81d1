package rtltcp

import (
	"testing"

	"github.com/quan-to/slog"
	"github.com/racerxdl/hfp_tcp/dsp"
)

func makeTestController(numRates int, streaming bool) (*Controller, *fakeDevice) {
	dev := newFakeDevice(numRates)
	config := MakeStreamConfig(8, numRates)
	config.SetSampleRate(768000)

	noop := func([]float32) error { return nil }
	if streaming {
		_ = dev.Start(noop)
		dev.ResetCalls()
	}
	c := MakeController(dev, config, noop, slog.Scope("test"))
	c.RateSettle = 0
	return c, dev
}

func TestController_DecimatedRate(t *testing.T) {
	c, dev := makeTestController(4, true)

	c.HandleBatch((&FrameReader{}).Feed([]byte{2, 0x00, 0x00, 0xBB, 0x80}))

	if c.config.Decimation() != 4 {
		t.Errorf("expected decimation 4, got %d", c.config.Decimation())
	}
	if c.config.SampleRate() != 192000 || dev.Rate() != 192000 {
		t.Errorf("expected device at 192000, got %d / %d", c.config.SampleRate(), dev.Rate())
	}
	bank := c.config.Filter()
	if bank == nil || bank.Order() != dsp.DecimationOrder {
		t.Fatalf("expected order %d decimation bank", dsp.DecimationOrder)
	}
	want := []string{"stop", "rate 192000", "start"}
	if calls := dev.Calls(); !equalCalls(calls, want) {
		t.Errorf("expected %v, got %v", want, calls)
	}

	// asking again rebuilds the bank and restarts the device
	dev.ResetCalls()
	c.HandleBatch([]Command{MakeCommand(SetSampleRate, LowSampleRate)})
	if c.config.Filter() == bank {
		t.Errorf("expected a fresh filter bank")
	}
	if calls := dev.Calls(); !equalCalls(calls, want) {
		t.Errorf("expected %v, got %v", want, calls)
	}
}

func TestController_LiteralLowRate(t *testing.T) {
	c, dev := makeTestController(5, true)

	c.HandleBatch([]Command{MakeCommand(SetSampleRate, LowSampleRate)})

	if c.config.Decimation() != 1 || c.config.Filter() != nil {
		t.Errorf("devices with many rates must not decimate")
	}
	if dev.Rate() != LowSampleRate {
		t.Errorf("expected device at %d, got %d", LowSampleRate, dev.Rate())
	}
}

func TestController_LeaveDecimation(t *testing.T) {
	c, dev := makeTestController(4, true)
	c.HandleBatch([]Command{MakeCommand(SetSampleRate, LowSampleRate)})
	c.HandleBatch([]Command{MakeCommand(SetSampleRate, 768000)})

	if c.config.Decimation() != 1 || c.config.Filter() != nil {
		t.Errorf("expected decimation off")
	}
	if dev.Rate() != 768000 || !dev.IsStreaming() {
		t.Errorf("expected device streaming at 768000")
	}
}

func TestController_SameRate(t *testing.T) {
	c, dev := makeTestController(4, true)
	c.HandleBatch([]Command{MakeCommand(SetSampleRate, 768000)})
	if calls := dev.Calls(); len(calls) != 0 {
		t.Errorf("same rate must not touch the device, got %v", calls)
	}
}

func TestController_StoppedRateChange(t *testing.T) {
	c, dev := makeTestController(4, false)
	c.Handle(MakeCommand(SetSampleRate, 384000))

	want := []string{"rate 384000"}
	if calls := dev.Calls(); !equalCalls(calls, want) {
		t.Errorf("expected %v, got %v", want, calls)
	}
}

func TestController_Gain(t *testing.T) {
	c, dev := makeTestController(4, false)

	c.HandleBatch([]Command{MakeCommand(SetGain, 120)})
	if c.config.Gain() != 64 {
		t.Errorf("expected gain 64, got %f", c.config.Gain())
	}
	if calls := dev.Calls(); len(calls) != 0 {
		t.Errorf("gain-only batch must not restart the device, got %v", calls)
	}

	c.HandleBatch([]Command{MakeCommand(SetGain, 220)})
	if g := c.config.Gain(); g < 639.9 || g > 640.1 {
		t.Errorf("expected gain 640, got %f", g)
	}
}

func TestController_RestartAfterBatch(t *testing.T) {
	c, dev := makeTestController(4, false)

	c.HandleBatch([]Command{MakeCommand(SetFrequency, 7074000)})

	want := []string{"freq 7074000", "start"}
	if calls := dev.Calls(); !equalCalls(calls, want) {
		t.Errorf("expected %v, got %v", want, calls)
	}
	if c.config.Frequency() != 7074000 {
		t.Errorf("expected frequency recorded, got %d", c.config.Frequency())
	}
}

func TestController_MixedBatchRestarts(t *testing.T) {
	c, dev := makeTestController(4, false)

	c.HandleBatch([]Command{MakeCommand(SetGain, 100), MakeCommand(SetAgcMode, 1)})

	want := []string{"start"}
	if calls := dev.Calls(); !equalCalls(calls, want) {
		t.Errorf("expected %v, got %v", want, calls)
	}
}

func TestController_UnknownIgnored(t *testing.T) {
	c, dev := makeTestController(4, true)
	gain := c.config.Gain()

	c.HandleBatch([]Command{MakeCommand(CommandType(0x7F), 1234)})

	if calls := dev.Calls(); len(calls) != 0 {
		t.Errorf("unknown command touched the device: %v", calls)
	}
	if c.config.Gain() != gain || c.config.SampleRate() != 768000 {
		t.Errorf("unknown command changed the config")
	}
}

func TestController_DecimatedFeed(t *testing.T) {
	f := makeTestFeeder(8, 1<<20)
	dev := newFakeDevice(4)
	c := MakeController(dev, f.config, f.OnSamples, slog.Scope("test"))
	c.RateSettle = 0
	_ = dev.Start(f.OnSamples)

	c.HandleBatch([]Command{MakeCommand(SetSampleRate, LowSampleRate)})
	if err := dev.emit(constBlock(4096, 0.1, 0.1)); err != nil {
		t.Fatal(err)
	}
	if f.ring.Available() != 1024*2 {
		t.Errorf("expected quarter-rate output of 2048 bytes, got %d", f.ring.Available())
	}
}
