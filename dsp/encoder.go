// Package dsp holds the sample path math: the decimation filter bank and the
// float I/Q to wire format encoder.
package dsp

import (
	"encoding/binary"
	"math"
	"math/rand"
)

// GainBase is the nominal 8-bit gain multiplier. 16-bit output uses
// 64 * gain on top of it.
const GainBase = 64.0

// BytesPerPair is the wire size of one I/Q pair for a bit depth.
func BytesPerPair(bits int) int {
	switch bits {
	case 8:
		return 2
	case 16:
		return 4
	default:
		return 8
	}
}

// EncodedSize is the output size for pairs I/Q pairs.
func EncodedSize(bits, pairs int) int {
	return BytesPerPair(bits) * pairs
}

// Encoder converts float32 interleaved I/Q into the wire format. It carries
// the dither history between blocks, so one Encoder must only be used by one
// goroutine.
type Encoder struct {
	rng    *rand.Rand
	prevI  float32
	prevQ  float32
	accErr float64
}

func NewEncoder(seed int64) *Encoder {
	e := &Encoder{rng: rand.New(rand.NewSource(seed))}
	e.Reset()
	return e
}

// Reset clears the rounding accumulator and draws a new dither history.
func (e *Encoder) Reset() {
	e.accErr = 0
	e.prevI = e.rng.Float32()
	e.prevQ = e.rng.Float32()
}

// RoundingError is the running sum of 8-bit rounding error since Reset. It is
// diagnostic only and never fed back.
func (e *Encoder) RoundingError() float64 {
	return e.accErr
}

// Encode writes src into dst and returns the number of bytes written. dst must
// hold EncodedSize(bits, len(src)/2) bytes.
func (e *Encoder) Encode(dst []byte, src []float32, bits int, gain float32) int {
	n := len(src) &^ 1
	switch bits {
	case 8:
		return e.encode8(dst, src[:n], gain)
	case 16:
		return encode16(dst, src[:n], gain)
	default:
		return encode32(dst, src[:n])
	}
}

// encode8 adds triangular dither built from the difference of this and the
// previous uniform draw of the same channel, then offsets by 128.
func (e *Encoder) encode8(dst []byte, src []float32, gain float32) int {
	prevI, prevQ := e.prevI, e.prevQ
	acc := e.accErr
	for i, x := range src {
		rnd := e.rng.Float32()
		y := gain * x
		// odd indices carry I, even ones Q
		if i&1 == 1 {
			y += rnd - prevI
			prevI = rnd
		} else {
			y += rnd - prevQ
			prevQ = rnd
		}
		ry := math.Round(float64(y))
		acc += float64(y) - ry
		dst[i] = clampU8(ry + 128)
	}
	e.prevI, e.prevQ = prevI, prevQ
	e.accErr = acc
	return len(src)
}

func encode16(dst []byte, src []float32, gain float32) int {
	g16 := 64 * gain
	for i, x := range src {
		k := clampI16(math.Round(float64(g16 * x)))
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(k))
	}
	return len(src) * 2
}

func encode32(dst []byte, src []float32) int {
	for i, x := range src {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(x))
	}
	return len(src) * 4
}

func clampU8(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

func clampI16(v float64) int16 {
	if v < math.MinInt16 {
		return math.MinInt16
	}
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	return int16(v)
}

// GainFromTenthsDB converts an rtl_tcp gain value in tenths of a dB to a
// linear multiplier. A request of 12.0 dB maps to GainBase.
func GainFromTenthsDB(v uint32) float32 {
	db := float64(v) / 10
	return float32(GainBase * math.Pow(10, (db-12.0)/10))
}
