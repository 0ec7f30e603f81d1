package dsp

import "math"

// Decimation filter design. The bank band-limits 192 kHz I/Q to 16 kHz before
// a 4:1 decimation to 48 kHz.
const (
	DecimationSampleRate = 192000.0
	DecimationCutoff     = 16000.0
	DecimationOrder      = 12

	// applyBatch is in floats (interleaved), sized to stay in L1
	applyBatch = 4096
)

// butterworthQ holds the section Q values of Butterworth cascades of order
// 2, 4, ... 12. Row k has k+1 sections, the rest of the row is unused.
var butterworthQ = [6][6]float64{
	{0.70710678, 0, 0, 0, 0, 0},
	{0.54119610, 1.3065630, 0, 0, 0, 0},
	{0.51763809, 0.70710678, 1.9318517, 0, 0, 0},
	{0.50979558, 0.60134489, 0.89997622, 2.5629154, 0, 0},
	{0.50623256, 0.56116312, 0.70710678, 1.1013446, 3.1962266, 0},
	{0.50431448, 0.54119610, 0.63023621, 0.82133982, 1.3065630, 3.8306488},
}

// Section is one biquad with a0 normalized to 1. History is kept separately
// for the I and Q channels.
type Section struct {
	B0, B1, B2 float32
	A1, A2     float32
	Active     bool

	xi1, xi2, yi1, yi2 float32
	xq1, xq2, yq1, yq2 float32
}

// DesignLowpass returns an RBJ lowpass section. Coefficients are computed in
// float64 and stored as float32.
func DesignLowpass(cutoff, q, sampleRate float64) Section {
	w0 := 2 * math.Pi * cutoff / sampleRate
	cosW0 := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)

	b1 := 1 - cosW0
	b0 := b1 / 2
	b2 := b1 / 2
	a0 := 1 + alpha
	a1 := -2 * cosW0
	a2 := 1 - alpha

	return Section{
		B0:     float32(b0 / a0),
		B1:     float32(b1 / a0),
		B2:     float32(b2 / a0),
		A1:     float32(a1 / a0),
		A2:     float32(a2 / a0),
		Active: true,
	}
}

// Reset zeroes the section history.
func (s *Section) Reset() {
	s.xi1, s.xi2, s.yi1, s.yi2 = 0, 0, 0, 0
	s.xq1, s.xq2, s.yq1, s.yq2 = 0, 0, 0, 0
}

// Process filters interleaved I/Q samples in place. A trailing odd float is
// left untouched.
func (s *Section) Process(iq []float32) {
	b0, b1, b2, a1, a2 := s.B0, s.B1, s.B2, s.A1, s.A2
	xi1, xi2, yi1, yi2 := s.xi1, s.xi2, s.yi1, s.yi2
	xq1, xq2, yq1, yq2 := s.xq1, s.xq2, s.yq1, s.yq2

	for i := 0; i+1 < len(iq); i += 2 {
		x := iq[i]
		y := b0*x + b1*xi1 + b2*xi2 - a1*yi1 - a2*yi2
		iq[i] = y
		xi2, xi1 = xi1, x
		yi2, yi1 = yi1, y

		x = iq[i+1]
		y = b0*x + b1*xq1 + b2*xq2 - a1*yq1 - a2*yq2
		iq[i+1] = y
		xq2, xq1 = xq1, x
		yq2, yq1 = yq1, y
	}

	s.xi1, s.xi2, s.yi1, s.yi2 = xi1, xi2, yi1, yi2
	s.xq1, s.xq2, s.yq1, s.yq2 = xq1, xq2, yq1, yq2
}

// Bank is the fixed 6x6 cascade table. Only the row that matches the
// configured order runs, and within it only the active sections.
type Bank struct {
	sections [6][6]Section
	row      int

	SampleRate float64
	Cutoff     float64
}

// NewButterworthBank designs every row of the table for one sample rate and
// cutoff. order is rounded down to an even number in [2, 12].
func NewButterworthBank(sampleRate, cutoff float64, order int) *Bank {
	b := &Bank{
		SampleRate: sampleRate,
		Cutoff:     cutoff,
	}
	for j := range butterworthQ {
		for i, q := range butterworthQ[j] {
			if q > 0 {
				b.sections[j][i] = DesignLowpass(cutoff, q, sampleRate)
			}
		}
	}
	b.SetOrder(order)
	return b
}

// NewDecimationBank returns the bank used ahead of the 4:1 decimator.
func NewDecimationBank() *Bank {
	return NewButterworthBank(DecimationSampleRate, DecimationCutoff, DecimationOrder)
}

func (b *Bank) SetOrder(order int) {
	row := order/2 - 1
	if row < 0 {
		row = 0
	}
	if row > len(b.sections)-1 {
		row = len(b.sections) - 1
	}
	b.row = row
}

func (b *Bank) Order() int {
	return (b.row + 1) * 2
}

// Sections returns the active sections of the selected row in cascade order.
func (b *Bank) Sections() []Section {
	out := make([]Section, 0, len(b.sections[b.row]))
	for _, s := range b.sections[b.row] {
		if s.Active {
			out = append(out, s)
		}
	}
	return out
}

func (b *Bank) Reset() {
	for j := range b.sections {
		for i := range b.sections[j] {
			b.sections[j][i].Reset()
		}
	}
}

// Apply filters interleaved I/Q samples in place. Work is split into
// applyBatch sized pieces, each run through the whole cascade before the next.
// The result is identical to running every section over the full block.
func (b *Bank) Apply(iq []float32) {
	row := &b.sections[b.row]
	for k := 0; k < len(iq); k += applyBatch {
		end := k + applyBatch
		if end > len(iq) {
			end = len(iq)
		}
		for i := range row {
			if row[i].Active {
				row[i].Process(iq[k:end])
			}
		}
	}
}
