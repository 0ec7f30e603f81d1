package rtltcp

import (
	"errors"

	"github.com/racerxdl/hfp_tcp/dsp"
	"github.com/racerxdl/hfp_tcp/ringbuffer"
)

// ErrStreamStopped is returned to the device when the session no longer wants
// samples.
var ErrStreamStopped = errors.New("stream stopped")

// feeder is the capture callback of one session. It runs on the device's
// goroutine and is the only writer of the ring.
type feeder struct {
	session *Session
	config  *StreamConfig
	ring    *ringbuffer.Ring
	encoder *dsp.Encoder

	scratch []float32
	out     []byte

	overflowing bool
	writeFailed bool
}

func (f *feeder) OnSamples(iq []float32) error {
	if f.session.stopped() {
		rejectedBlocks.Inc()
		return ErrStreamStopped
	}

	n := len(iq) &^ 1
	if n == 0 {
		return nil
	}

	// the device owns iq, filter in a private copy
	if cap(f.scratch) < n {
		f.scratch = make([]float32, n)
	}
	samples := f.scratch[:n]
	copy(samples, iq)

	if bank := f.config.Filter(); bank != nil {
		bank.Apply(samples)
	}

	bits := f.config.SampleBits()
	gain := f.config.Gain()
	decimation := f.config.Decimation()

	size := dsp.EncodedSize(bits, n/2)
	if cap(f.out) < size {
		f.out = make([]byte, size)
	}
	m := f.encoder.Encode(f.out[:size], samples, bits, gain)

	over, err := f.ring.WriteDecimated(f.out[:m], dsp.BytesPerPair(bits), decimation)
	if err != nil {
		ringWriteErrors.Inc()
		if !f.writeFailed {
			f.session.log.Error("Ring buffer rejected block of %d bytes: %s", m, err)
		}
		f.writeFailed = true
		return nil
	}
	f.writeFailed = false

	if over {
		ringOverflows.Inc()
		f.session.overflows.Add(1)
		if !f.overflowing {
			f.session.log.Error("Ring buffer more than half full, client is not keeping up")
		}
	} else if f.overflowing {
		f.session.log.Info("Ring buffer back under half full")
	}
	f.overflowing = over

	capturedBlocks.Inc()
	f.session.blocks.Add(1)
	return nil
}
