package rtltcp

import (
	"time"

	"github.com/quan-to/slog"
	"github.com/racerxdl/hfp_tcp/device"
	"github.com/racerxdl/hfp_tcp/dsp"
)

const (
	// LowSampleRate is served by decimating DecimationFactor times that rate
	// on devices that advertise at most MaxRatesForDecimation native rates.
	LowSampleRate         = 48000
	DecimationFactor      = 4
	MaxRatesForDecimation = 4

	defaultRateSettle = 50 * time.Millisecond
)

// Controller applies client commands to the device and stream config. It runs
// on the connection goroutine only, which serializes every device call.
type Controller struct {
	device  device.Device
	config  *StreamConfig
	handler device.SampleHandler
	log     slog.Instance

	// RateSettle is the pause around stopping and restarting the device for
	// a sample rate change.
	RateSettle time.Duration
}

func MakeController(dev device.Device, config *StreamConfig, handler device.SampleHandler, log slog.Instance) *Controller {
	return &Controller{
		device:     dev,
		config:     config,
		handler:    handler,
		log:        log,
		RateSettle: defaultRateSettle,
	}
}

// HandleBatch runs every command of one receive in order. Unless the batch
// was only gain changes it then makes sure the device is streaming, since a
// reconfiguration may have left it stopped.
func (c *Controller) HandleBatch(cmds []Command) {
	if len(cmds) == 0 {
		return
	}

	gainOnly := true
	for _, cmd := range cmds {
		c.Handle(cmd)
		if cmd.Type != SetGain {
			gainOnly = false
		}
	}
	if gainOnly {
		return
	}

	if !c.device.IsStreaming() {
		c.log.Info("Device stopped after command, restarting")
		deviceRestarts.Inc()
		if err := c.device.Start(c.handler); err != nil {
			c.log.Error("Error restarting device: %s", err)
		}
	}
}

func (c *Controller) Handle(cmd Command) {
	value := cmd.Value()
	commandsReceived.WithLabelValues(cmd.Type.String()).Inc()
	c.log.Debug("Received Type %s (%d) with arg (%d) %v", cmd.Type, uint8(cmd.Type), value, cmd.Param)

	switch cmd.Type {
	case SetFrequency:
		c.log.Info("Setting frequency to %d", value)
		c.config.SetFrequency(value)
		if err := c.device.SetFrequency(value); err != nil {
			c.log.Error("Error setting frequency: %s", err)
		}
	case SetSampleRate:
		c.setSampleRate(value)
	case SetGain:
		gain := dsp.GainFromTenthsDB(value)
		c.log.Info("Setting gain to %.1f dB (8-bit multiplier %f, 16-bit multiplier %f)", float64(value)/10, gain, 64*gain)
		c.config.SetGain(gain)
	default:
		c.log.Info("Command %s not handled, value %d", cmd.Type, value)
	}
}

func (c *Controller) setSampleRate(rate uint32) {
	if rate == c.config.SampleRate() && c.config.Decimation() <= 1 {
		c.log.Debug("Sample rate already %d", rate)
		return
	}

	if rate == LowSampleRate && c.config.NumSampleRates() <= MaxRatesForDecimation {
		rate = LowSampleRate * DecimationFactor
		c.log.Info("Decimating %d sample rate to %d", rate, LowSampleRate)
		c.config.SetDecimation(DecimationFactor)
		c.config.SetFilter(dsp.NewDecimationBank())
	} else {
		c.log.Info("Setting sample rate to %d", rate)
		c.config.SetDecimation(1)
		c.config.SetFilter(nil)
	}
	c.config.SetSampleRate(rate)
	sampleRateGauge.Set(float64(rate))
	decimationGauge.Set(float64(c.config.Decimation()))

	restart := false
	if c.device.IsStreaming() {
		if err := c.device.Stop(); err != nil {
			c.log.Error("Error stopping device: %s", err)
		}
		restart = true
		time.Sleep(c.RateSettle)
	}

	if err := c.device.SetSampleRate(rate); err != nil {
		c.log.Error("Error setting sample rate %d: %s", rate, err)
	}

	if restart {
		time.Sleep(c.RateSettle)
		if err := c.device.Start(c.handler); err != nil {
			c.log.Error("Error restarting device: %s", err)
		}
		c.log.Debug("Device streaming: %t", c.device.IsStreaming())
	}
}
