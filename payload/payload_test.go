package payload

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
)

func toFloat64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

// levelValues returns sample values that are exactly representable at the
// given bit depth, so encode/decode round trips reproduce them.
func levelValues(bps, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		switch bps {
		case 1:
			out[i] = float32(2*(i%2) - 1)
		case 2:
			out[i] = [4]float32{-optimal2BitHigh, -1, 1, optimal2BitHigh}[i%4]
		case 4:
			out[i] = float32(i%16-8) / fourBitScale
		case 8:
			out[i] = float32(i%256-128) / eightBitScale
		case 16:
			out[i] = float32(i%65536 - 32768)
		case 32:
			out[i] = float32(i%1024 - 512)
		}
	}
	return out
}

func TestRoundTripAllDepths(t *testing.T) {
	for _, bps := range []int{1, 2, 4, 8, 16, 32} {
		for _, cplx := range []bool{false, true} {
			in := Samples{Flat: levelValues(bps, 256), Channels: 4, Complex: cplx}
			p, err := FromData(in, bps)
			if err != nil {
				t.Fatalf("bps=%d complex=%v: encode: %v", bps, cplx, err)
			}
			if p.BitsPerSample() != bps || p.Channels() != 4 || p.IsComplex() != cplx {
				t.Fatalf("bps=%d: parameters lost in encode", bps)
			}
			wantCount := 256 / in.Width()
			if p.SampleCount() != wantCount {
				t.Fatalf("bps=%d: SampleCount = %d, want %d", bps, p.SampleCount(), wantCount)
			}
			out := p.Data()
			if !floats.EqualApprox(toFloat64(in.Flat), toFloat64(out.Flat), 1e-5) {
				t.Fatalf("bps=%d complex=%v: round trip mismatch", bps, cplx)
			}
		}
	}
}

func TestReconstructFromWords(t *testing.T) {
	in := Samples{Flat: levelValues(2, 64), Channels: 2}
	p, err := FromData(in, 2)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	q, err := New(p.Words(), 2, 2, false)
	if err != nil {
		t.Fatalf("rewrap: %v", err)
	}
	if !p.Equal(q) {
		t.Fatalf("rewrapped payload differs")
	}
	if q.Size() != len(p.Words())*4 {
		t.Fatalf("Size = %d", q.Size())
	}
}

func TestTwoBitLevels(t *testing.T) {
	// one word holding raw 2-bit values 0,1,2,3 in the low byte
	words := []uint32{0b11100100}
	vdif, _ := New(words[:], 2, 1, false)
	got := vdif.Data().Flat[:4]
	wantVDIF := []float32{-optimal2BitHigh, -1, 1, optimal2BitHigh}
	for i := range wantVDIF {
		if got[i] != wantVDIF[i] {
			t.Errorf("vdif level %d = %v, want %v", i, got[i], wantVDIF[i])
		}
	}
	m5b, _ := NewWithScheme(words[:], 2, 1, false, SchemeMark5B)
	got = m5b.Data().Flat[:4]
	wantM5B := []float32{-optimal2BitHigh, 1, -1, optimal2BitHigh}
	for i := range wantM5B {
		if got[i] != wantM5B[i] {
			t.Errorf("mark5b level %d = %v, want %v", i, got[i], wantM5B[i])
		}
	}
}

func TestTwoBitThreshold(t *testing.T) {
	in := Samples{Flat: make([]float32, 16), Channels: 1}
	copy(in.Flat, []float32{-5, -2.2, -2.1, -0.1, 0, 2.1, 2.2, 5})
	p, err := FromData(in, 2)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got := p.Data().Flat[:8]
	want := []float32{
		-optimal2BitHigh, -optimal2BitHigh, -1, -1,
		1, 1, optimal2BitHigh, optimal2BitHigh,
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("threshold sample %d: %v quantized to %v, want %v",
				i, in.Flat[i], got[i], want[i])
		}
	}
}

func TestSchemesEncodeDifferently(t *testing.T) {
	in := Samples{Flat: levelValues(2, 32), Channels: 1}
	a, _ := FromDataWithScheme(in, 2, SchemeVDIF)
	b, _ := FromDataWithScheme(in, 2, SchemeMark5B)
	same := true
	aw, bw := a.Words(), b.Words()
	for i := range aw {
		if aw[i] != bw[i] {
			same = false
		}
	}
	if same {
		t.Fatalf("vdif and mark5b 2-bit encodings must differ on the wire")
	}
	// yet both decode back to the original levels
	if !floats.EqualApprox(toFloat64(a.Data().Flat), toFloat64(b.Data().Flat), 1e-6) {
		t.Fatalf("schemes disagree after decode")
	}
}

func TestEncodeClamps(t *testing.T) {
	in := Samples{Flat: make([]float32, 4), Channels: 1}
	in.Flat[0] = 1e9
	in.Flat[1] = -1e9
	p, err := FromData(in, 8)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out := p.Data().Flat
	if out[0] != float32(127)/eightBitScale {
		t.Errorf("positive clamp: %v", out[0])
	}
	if out[1] != float32(-128)/eightBitScale {
		t.Errorf("negative clamp: %v", out[1])
	}
}

func TestPayloadErrors(t *testing.T) {
	words := []uint32{0, 0}
	if _, err := New(words, 3, 1, false); !errors.Is(err, ErrUnsupportedBitDepth) {
		t.Errorf("depth 3: got %v", err)
	}
	if _, err := New(nil, 2, 1, false); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("empty buffer: got %v", err)
	}
	// 2 words = 64 bits cannot hold whole 48-bit samples (3 chan, 8 bit, complex)
	if _, err := New(words, 8, 3, true); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("ragged samples: got %v", err)
	}
	if _, err := New(words, 2, 0, false); err == nil {
		t.Errorf("zero channels accepted")
	}
	if _, err := FromData(Samples{Flat: make([]float32, 5), Channels: 1}, 2); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("partial word encode: got %v", err)
	}
	if _, err := FromData(Samples{Flat: make([]float32, 48), Channels: 5}, 2); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("ragged encode: got %v", err)
	}
}

func TestDataDoesNotAlias(t *testing.T) {
	in := Samples{Flat: levelValues(8, 32), Channels: 1}
	p, _ := FromData(in, 8)
	a := p.Data()
	a.Flat[0] = math.MaxFloat32
	b := p.Data()
	if b.Flat[0] == math.MaxFloat32 {
		t.Fatalf("Data must return an independent buffer")
	}
}

func BenchmarkDecode2Bit(b *testing.B) {
	words := make([]uint32, 1250) // one 5000-byte payload's worth
	for i := range words {
		words[i] = uint32(i) * 2654435761
	}
	p, err := New(words, 2, 8, false)
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(int64(len(words) * 4))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = p.Data()
	}
}

func BenchmarkEncode2Bit(b *testing.B) {
	in := Samples{Flat: levelValues(2, 20000), Channels: 8}
	b.SetBytes(int64(len(in.Flat) / 4))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := FromData(in, 2); err != nil {
			b.Fatal(err)
		}
	}
}
