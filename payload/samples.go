package payload

// Samples holds decoded sample data for any number of channels as one flat
// float32 buffer, sample-major: all channels of sample 0, then sample 1,
// and so on. Complex data stores the in-phase component immediately
// followed by the quadrature component for every channel, matching the
// packed wire order.
type Samples struct {
	Flat     []float32
	Channels int
	Complex  bool
}

// Width returns the number of float32 values per time sample.
func (s Samples) Width() int {
	w := s.Channels
	if s.Complex {
		w *= 2
	}
	return w
}

// Count returns the number of time samples.
func (s Samples) Count() int {
	if w := s.Width(); w > 0 {
		return len(s.Flat) / w
	}
	return 0
}

// At returns the real value of sample i on channel ch. For complex data it
// returns the in-phase component.
func (s Samples) At(i, ch int) float32 {
	stride := 1
	if s.Complex {
		stride = 2
	}
	return s.Flat[i*s.Width()+ch*stride]
}

// AtComplex returns sample i on channel ch as a complex value. For real
// data the imaginary part is zero.
func (s Samples) AtComplex(i, ch int) complex64 {
	if !s.Complex {
		return complex(s.At(i, ch), 0)
	}
	base := i*s.Width() + ch*2
	return complex(s.Flat[base], s.Flat[base+1])
}

// Slice returns samples [from, to) sharing the underlying buffer. Callers
// that need an independent copy use Copy.
func (s Samples) Slice(from, to int) Samples {
	w := s.Width()
	return Samples{Flat: s.Flat[from*w : to*w], Channels: s.Channels, Complex: s.Complex}
}

// Copy returns an independently-owned copy.
func (s Samples) Copy() Samples {
	return Samples{
		Flat:     append([]float32(nil), s.Flat...),
		Channels: s.Channels,
		Complex:  s.Complex,
	}
}
