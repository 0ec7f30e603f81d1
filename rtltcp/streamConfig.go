package rtltcp

import (
	"math"
	"sync/atomic"

	"github.com/racerxdl/hfp_tcp/dsp"
)

// StreamConfig is written by the command handler and read by the capture
// callback once per block. Each field is atomic on its own; a block may see
// one field updated and another not yet, which only lasts until the next
// block.
type StreamConfig struct {
	sampleBits atomic.Uint32
	sampleRate atomic.Uint32
	decimation atomic.Uint32
	gain       atomic.Uint32 // float32 bits
	frequency  atomic.Uint32
	numRates   atomic.Uint32
	filter     atomic.Pointer[dsp.Bank]
}

func MakeStreamConfig(bits int, numRates int) *StreamConfig {
	c := &StreamConfig{}
	c.sampleBits.Store(uint32(bits))
	c.numRates.Store(uint32(numRates))
	c.decimation.Store(1)
	c.SetGain(dsp.GainBase)
	return c
}

func (c *StreamConfig) SampleBits() int {
	return int(c.sampleBits.Load())
}

func (c *StreamConfig) SampleRate() uint32 {
	return c.sampleRate.Load()
}

func (c *StreamConfig) SetSampleRate(rate uint32) {
	c.sampleRate.Store(rate)
}

// Decimation is never below 1.
func (c *StreamConfig) Decimation() int {
	d := int(c.decimation.Load())
	if d < 1 {
		return 1
	}
	return d
}

func (c *StreamConfig) SetDecimation(factor int) {
	if factor < 1 {
		factor = 1
	}
	c.decimation.Store(uint32(factor))
}

func (c *StreamConfig) Gain() float32 {
	return math.Float32frombits(c.gain.Load())
}

func (c *StreamConfig) SetGain(g float32) {
	c.gain.Store(math.Float32bits(g))
}

func (c *StreamConfig) Frequency() uint32 {
	return c.frequency.Load()
}

func (c *StreamConfig) SetFrequency(hz uint32) {
	c.frequency.Store(hz)
}

func (c *StreamConfig) NumSampleRates() int {
	return int(c.numRates.Load())
}

// Filter is the anti-alias bank to run before encoding, nil when filtering is
// off.
func (c *StreamConfig) Filter() *dsp.Bank {
	return c.filter.Load()
}

func (c *StreamConfig) SetFilter(b *dsp.Bank) {
	c.filter.Store(b)
}
