package payload

import "math"

// Quantization constants shared by VLBI baseband formats. The 2-bit levels
// and threshold are the optimal values for sampling Gaussian noise; the
// 4- and 8-bit scales put one sigma at 2.95 and 35.5 counts respectively.
const (
	optimal2BitHigh = 3.3359
	twoBitThreshold = 2.1745
	fourBitScale    = 2.95
	eightBitScale   = 35.5
)

// Scheme defines how raw low bit-depth sample values map to voltage-like
// float levels. VDIF and Mark5B agree on everything except the ordering of
// the four 2-bit states.
type Scheme struct {
	name string
	// decode tables, one entry per byte value
	dec1 [256][8]float32
	dec2 [256][4]float32
	dec4 [256][2]float32
	dec8 [256]float32
	// ascending level rank -> 2-bit wire value
	enc2 [4]uint32
}

// SchemeVDIF maps 2-bit wire values {0,1,2,3} to ascending levels
// {-3.3359, -1, +1, +3.3359}.
var SchemeVDIF = newScheme("vdif",
	[4]float32{-optimal2BitHigh, -1, 1, optimal2BitHigh},
	[4]uint32{0, 1, 2, 3})

// SchemeMark5B uses the Mark5B sign/magnitude ordering: wire values
// {0,1,2,3} decode to {-3.3359, +1, -1, +3.3359}.
var SchemeMark5B = newScheme("mark5b",
	[4]float32{-optimal2BitHigh, 1, -1, optimal2BitHigh},
	[4]uint32{0, 2, 1, 3})

func newScheme(name string, levels2 [4]float32, enc2 [4]uint32) *Scheme {
	s := &Scheme{name: name, enc2: enc2}
	for b := 0; b < 256; b++ {
		for i := 0; i < 8; i++ {
			s.dec1[b][i] = float32((b>>i)&1)*2 - 1
		}
		for i := 0; i < 4; i++ {
			s.dec2[b][i] = levels2[(b>>(2*i))&3]
		}
		for i := 0; i < 2; i++ {
			s.dec4[b][i] = float32((b>>(4*i))&0xf - 8) / fourBitScale
		}
		s.dec8[b] = float32(b-128) / eightBitScale
	}
	return s
}

// Name returns the scheme name.
func (s *Scheme) Name() string { return s.name }

// rank2 places v into one of the four ascending 2-bit levels.
func rank2(v float32) int {
	switch {
	case v < -twoBitThreshold:
		return 0
	case v < 0:
		return 1
	case v < twoBitThreshold:
		return 2
	default:
		return 3
	}
}

func clampRound(v float64, lo, hi float64) uint32 {
	r := math.Round(v)
	if r < lo {
		r = lo
	}
	if r > hi {
		r = hi
	}
	return uint32(r)
}
