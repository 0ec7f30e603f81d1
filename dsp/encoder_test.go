package dsp

import (
	"encoding/binary"
	"math"
	"math/rand"
	"testing"
)

func constantBlock(pairs int, i, q float32) []float32 {
	b := make([]float32, pairs*2)
	for k := 0; k < pairs; k++ {
		b[2*k] = i
		b[2*k+1] = q
	}
	return b
}

func TestEncodedSize(t *testing.T) {
	for _, tc := range []struct{ bits, want int }{
		{8, 200},
		{16, 400},
		{32, 800},
	} {
		if got := EncodedSize(tc.bits, 100); got != tc.want {
			t.Errorf("%d bits: expected %d, got %d", tc.bits, tc.want, got)
		}
	}
}

func TestEncode8_DitherSpread(t *testing.T) {
	e := NewEncoder(1)
	src := constantBlock(5000, 0.5, -0.25)
	dst := make([]byte, EncodedSize(8, 5000))

	n := e.Encode(dst, src, 8, GainBase)
	if n != len(dst) {
		t.Fatalf("expected %d bytes, got %d", len(dst), n)
	}

	// 0.5 * 64 = 32, -0.25 * 64 = -16
	for k := 0; k < 5000; k++ {
		i, q := int(dst[2*k]), int(dst[2*k+1])
		if i < 159 || i > 161 {
			t.Fatalf("pair %d: I byte %d outside 160 +/- 1", k, i)
		}
		if q < 111 || q > 113 {
			t.Fatalf("pair %d: Q byte %d outside 112 +/- 1", k, q)
		}
	}
}

func TestEncode8_DitherIsUnbiased(t *testing.T) {
	e := NewEncoder(7)
	const pairs = 20000
	// 0.3 LSB above an integer, plain rounding would always give 32
	src := constantBlock(pairs, 32.3/GainBase, 0)
	dst := make([]byte, EncodedSize(8, pairs))
	e.Encode(dst, src, 8, GainBase)

	sum := 0.0
	for k := 0; k < pairs; k++ {
		sum += float64(dst[2*k])
	}
	mean := sum / pairs
	if math.Abs(mean-160.3) > 0.05 {
		t.Errorf("expected mean near 160.3, got %f", mean)
	}
}

func TestEncode8_Clamps(t *testing.T) {
	e := NewEncoder(1)
	src := []float32{10, -10}
	dst := make([]byte, 2)
	e.Encode(dst, src, 8, GainBase)
	if dst[0] != 255 || dst[1] != 0 {
		t.Errorf("expected clamped [255 0], got %v", dst)
	}
}

func TestEncode8_HistoryAcrossBlocks(t *testing.T) {
	// same seed, one block vs two halves: identical bytes
	src := constantBlock(1000, 0.123, -0.456)
	whole := make([]byte, 2000)
	NewEncoder(3).Encode(whole, src, 8, GainBase)

	e := NewEncoder(3)
	split := make([]byte, 2000)
	e.Encode(split[:998], src[:998], 8, GainBase)
	e.Encode(split[998:], src[998:], 8, GainBase)

	for i := range whole {
		if whole[i] != split[i] {
			t.Fatalf("byte %d differs: %d vs %d", i, whole[i], split[i])
		}
	}
}

func TestEncode8_RoundingAccumulator(t *testing.T) {
	e := NewEncoder(5)
	dst := make([]byte, 200)
	e.Encode(dst, constantBlock(100, 0.2, 0.2), 8, GainBase)
	if e.RoundingError() == 0 {
		t.Errorf("expected non-zero rounding accumulator")
	}
	e.Reset()
	if e.RoundingError() != 0 {
		t.Errorf("reset should clear the rounding accumulator")
	}
}

func TestEncode16(t *testing.T) {
	e := NewEncoder(1)
	unity := float32(1.0 / 64) // 64 * gain == 1

	for _, tc := range []struct {
		x    float32
		gain float32
		want int16
	}{
		{0.5, GainBase, 2048},
		{-0.5, GainBase, -2048},
		{2.5, unity, 3},
		{-2.5, unity, -3},
		{1.49, unity, 1},
		{0, GainBase, 0},
		{100, GainBase, math.MaxInt16},
		{-100, GainBase, math.MinInt16},
	} {
		dst := make([]byte, 4)
		n := e.Encode(dst, []float32{tc.x, -tc.x}, 16, tc.gain)
		if n != 4 {
			t.Fatalf("expected 4 bytes, got %d", n)
		}
		got := int16(binary.LittleEndian.Uint16(dst))
		if got != tc.want {
			t.Errorf("x=%v gain=%v: expected %d, got %d", tc.x, tc.gain, tc.want, got)
		}
	}
}

func TestEncode32_Passthrough(t *testing.T) {
	e := NewEncoder(1)
	src := []float32{0.25, -1.5, 3.125, 0}
	dst := make([]byte, EncodedSize(32, 2))
	if n := e.Encode(dst, src, 32, 1234); n != 16 {
		t.Fatalf("expected 16 bytes, got %d", n)
	}
	for i, want := range src {
		got := math.Float32frombits(binary.LittleEndian.Uint32(dst[i*4:]))
		if got != want {
			t.Errorf("float %d: expected %v, got %v", i, want, got)
		}
	}
}

func TestEncode_IgnoresTrailingHalfPair(t *testing.T) {
	e := NewEncoder(1)
	dst := make([]byte, 8)
	if n := e.Encode(dst, []float32{0.1, 0.2, 0.3}, 8, GainBase); n != 2 {
		t.Errorf("expected 2 bytes, got %d", n)
	}
}

func TestGainFromTenthsDB(t *testing.T) {
	if g := GainFromTenthsDB(120); g != GainBase {
		t.Errorf("12.0 dB should map to the base gain, got %v", g)
	}
	if g := GainFromTenthsDB(220); math.Abs(float64(g)-10*GainBase) > 1e-3 {
		t.Errorf("22.0 dB should be 10x base, got %v", g)
	}
	if g := GainFromTenthsDB(20); math.Abs(float64(g)-0.1*GainBase) > 1e-4 {
		t.Errorf("2.0 dB should be 0.1x base, got %v", g)
	}
}

func TestEncode8_ChannelHistory(t *testing.T) {
	const seed = 42
	ref := rand.New(rand.NewSource(seed))
	ref.Float32() // Reset draws I history
	ref.Float32() // then Q history
	qDraw := ref.Float32()
	iDraw := ref.Float32()

	e := NewEncoder(seed)
	dst := make([]byte, 2)
	e.Encode(dst, []float32{0, 0}, 8, GainBase)

	// odd index is I on the wire
	if e.prevQ != qDraw || e.prevI != iDraw {
		t.Errorf("expected I history %f and Q history %f, got %f and %f", iDraw, qDraw, e.prevI, e.prevQ)
	}
}
