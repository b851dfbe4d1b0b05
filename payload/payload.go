// Package payload packs and unpacks bit-packed sample payloads: fixed-size
// little-endian 32-bit word buffers holding 1-32 bit samples for one or
// more channels, real or complex. Decoding is table- or shift/mask-driven
// per bit depth; payloads of tens of megabytes decode without per-sample
// dispatch.
//
// Packing order: consecutive sample components occupy consecutive bit
// groups starting at bit 0 of each word, least significant bits first. A
// complete sample is all channels in order, each as in-phase then
// quadrature when complex. Since every supported depth divides the 32-bit
// word, components never straddle a word boundary.
package payload

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Payload is a raw word buffer together with its decode parameters.
type Payload struct {
	words       []uint32
	bps         int
	nchan       int
	complexData bool
	scheme      *Scheme
}

func supportedDepth(bps int) bool {
	switch bps {
	case 1, 2, 4, 8, 16, 32:
		return true
	}
	return false
}

// New wraps a word buffer with VDIF level decoding. The buffer must divide
// into whole multi-channel samples.
func New(words []uint32, bps, nchan int, complexData bool) (*Payload, error) {
	return NewWithScheme(words, bps, nchan, complexData, SchemeVDIF)
}

// NewWithScheme is New with an explicit level scheme.
func NewWithScheme(words []uint32, bps, nchan int, complexData bool, s *Scheme) (*Payload, error) {
	if !supportedDepth(bps) {
		return nil, fmt.Errorf("payload: %w: %d", ErrUnsupportedBitDepth, bps)
	}
	if nchan < 1 {
		return nil, fmt.Errorf("payload: channel count must be positive, got %d", nchan)
	}
	sampleBits := bps * nchan
	if complexData {
		sampleBits *= 2
	}
	if len(words) == 0 || len(words)*32%sampleBits != 0 {
		return nil, fmt.Errorf("payload: %w: %d words do not hold whole %d-bit samples",
			ErrSizeMismatch, len(words), sampleBits)
	}
	return &Payload{
		words:       words,
		bps:         bps,
		nchan:       nchan,
		complexData: complexData,
		scheme:      s,
	}, nil
}

// FromData encodes a sample block into a new payload using VDIF levels.
func FromData(s Samples, bps int) (*Payload, error) {
	return FromDataWithScheme(s, bps, SchemeVDIF)
}

// FromDataWithScheme encodes a sample block with an explicit level scheme.
// The total bit count must fill whole 32-bit words.
func FromDataWithScheme(s Samples, bps int, sc *Scheme) (*Payload, error) {
	if !supportedDepth(bps) {
		return nil, fmt.Errorf("payload: %w: %d", ErrUnsupportedBitDepth, bps)
	}
	if s.Channels < 1 {
		return nil, fmt.Errorf("payload: channel count must be positive, got %d", s.Channels)
	}
	totalBits := len(s.Flat) * bps
	if totalBits == 0 || totalBits%32 != 0 || len(s.Flat)%s.Width() != 0 {
		return nil, fmt.Errorf("payload: %w: %d values at %d bits do not fill whole words",
			ErrSizeMismatch, len(s.Flat), bps)
	}
	words := encodeUnits(s.Flat, bps, sc)
	return &Payload{
		words:       words,
		bps:         bps,
		nchan:       s.Channels,
		complexData: s.Complex,
		scheme:      sc,
	}, nil
}

// BitsPerSample returns the per-component bit depth.
func (p *Payload) BitsPerSample() int { return p.bps }

// Channels returns the channel (sub-band) count.
func (p *Payload) Channels() int { return p.nchan }

// IsComplex reports whether samples carry quadrature components.
func (p *Payload) IsComplex() bool { return p.complexData }

// Size returns the payload size in bytes.
func (p *Payload) Size() int { return len(p.words) * 4 }

// SampleCount returns the number of complete time samples in the payload.
func (p *Payload) SampleCount() int {
	sampleBits := p.bps * p.nchan
	if p.complexData {
		sampleBits *= 2
	}
	return len(p.words) * 32 / sampleBits
}

// Words returns a copy of the raw payload words.
func (p *Payload) Words() []uint32 { return append([]uint32(nil), p.words...) }

// Bytes serializes the payload words in little-endian order.
func (p *Payload) Bytes() []byte {
	out := make([]byte, len(p.words)*4)
	for i, w := range p.words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

// WriteTo writes the serialized payload to w.
func (p *Payload) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(p.Bytes())
	return int64(n), err
}

// Equal reports whether two payloads carry the same parameters and words.
func (p *Payload) Equal(o *Payload) bool {
	if p == nil || o == nil {
		return p == o
	}
	if p.bps != o.bps || p.nchan != o.nchan || p.complexData != o.complexData ||
		p.scheme != o.scheme || len(p.words) != len(o.words) {
		return false
	}
	for i, w := range p.words {
		if w != o.words[i] {
			return false
		}
	}
	return true
}

// Data decodes the payload into a freshly allocated sample block. The
// result never aliases the payload; mutating it cannot corrupt the frame.
func (p *Payload) Data() Samples {
	return Samples{
		Flat:     p.decode(),
		Channels: p.nchan,
		Complex:  p.complexData,
	}
}

func (p *Payload) decode() []float32 {
	out := make([]float32, len(p.words)*32/p.bps)
	i := 0
	switch p.bps {
	case 1:
		for _, w := range p.words {
			for b := 0; b < 4; b++ {
				lut := &p.scheme.dec1[byte(w>>(8*b))]
				copy(out[i:], lut[:])
				i += 8
			}
		}
	case 2:
		for _, w := range p.words {
			for b := 0; b < 4; b++ {
				lut := &p.scheme.dec2[byte(w>>(8*b))]
				copy(out[i:], lut[:])
				i += 4
			}
		}
	case 4:
		for _, w := range p.words {
			for b := 0; b < 4; b++ {
				lut := &p.scheme.dec4[byte(w>>(8*b))]
				copy(out[i:], lut[:])
				i += 2
			}
		}
	case 8:
		for _, w := range p.words {
			for b := 0; b < 4; b++ {
				out[i] = p.scheme.dec8[byte(w>>(8*b))]
				i++
			}
		}
	case 16:
		for _, w := range p.words {
			out[i] = float32(int32(w&0xffff) - 32768)
			out[i+1] = float32(int32(w>>16) - 32768)
			i += 2
		}
	case 32:
		for _, w := range p.words {
			out[i] = float32(float64(w) - 2147483648)
			i++
		}
	}
	return out
}

func encodeUnits(flat []float32, bps int, sc *Scheme) []uint32 {
	words := make([]uint32, len(flat)*bps/32)
	switch bps {
	case 1:
		for i, v := range flat {
			if v >= 0 {
				words[i/32] |= 1 << (i % 32)
			}
		}
	case 2:
		for i, v := range flat {
			words[i/16] |= sc.enc2[rank2(v)] << (2 * (i % 16))
		}
	case 4:
		for i, v := range flat {
			q := clampRound(float64(v)*fourBitScale+8, 0, 15)
			words[i/8] |= q << (4 * (i % 8))
		}
	case 8:
		for i, v := range flat {
			q := clampRound(float64(v)*eightBitScale+128, 0, 255)
			words[i/4] |= q << (8 * (i % 4))
		}
	case 16:
		for i, v := range flat {
			q := clampRound(float64(v)+32768, 0, 65535)
			words[i/2] |= q << (16 * (i % 2))
		}
	case 32:
		for i, v := range flat {
			words[i] = clampRound(float64(v)+2147483648, 0, 4294967295)
		}
	}
	return words
}
