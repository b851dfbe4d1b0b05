package mark5b

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vlbitools/baseband/payload"
)

// ErrFrameMismatch is returned when a payload does not agree with the
// fixed Mark 5B geometry.
var ErrFrameMismatch = errors.New("mark5b: frame header/payload mismatch")

// invalidFill is the payload word pattern written for invalid frames.
const invalidFill = 0x11223344

// Frame pairs one header with one payload. Mark 5B headers carry no
// invalid-data bit, so validity travels alongside the frame itself.
type Frame struct {
	Header  Header
	Payload *payload.Payload
	Valid   bool
}

// NewFrame verifies the fixed payload size and returns the frame.
func NewFrame(h Header, p *payload.Payload) (*Frame, error) {
	if p.Size() != PayloadSize {
		return nil, fmt.Errorf("%w: payload is %d bytes, format fixes %d",
			ErrFrameMismatch, p.Size(), PayloadSize)
	}
	return &Frame{Header: h, Payload: p, Valid: true}, nil
}

// FrameFromData encodes samples into a frame under the given header.
func FrameFromData(s payload.Samples, bps int, h Header) (*Frame, error) {
	p, err := payload.FromDataWithScheme(s, bps, payload.SchemeMark5B)
	if err != nil {
		return nil, err
	}
	return NewFrame(h, p)
}

// ReadFrame decodes one frame. The channel count and bit depth cannot be
// inferred from a Mark 5B header and must be supplied. A clean end of
// stream before the first header byte returns io.EOF. A payload consisting
// entirely of the 0x11223344 fill pattern marks the frame invalid; the
// format has no header flag for it.
func ReadFrame(r io.Reader, nchan, bps int) (*Frame, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, PayloadSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("mark5b: frame payload cut short: %w", io.ErrUnexpectedEOF)
		}
		return nil, fmt.Errorf("mark5b: read frame payload: %w", err)
	}
	words := make([]uint32, PayloadSize/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	p, err := payload.NewWithScheme(words, bps, nchan, false, payload.SchemeMark5B)
	if err != nil {
		return nil, err
	}
	f, err := NewFrame(h, p)
	if err != nil {
		return nil, err
	}
	f.Valid = !isFillPattern(words)
	return f, nil
}

func isFillPattern(words []uint32) bool {
	for _, w := range words {
		if w != invalidFill {
			return false
		}
	}
	return true
}

// Data decodes the payload into an independent sample block; frames marked
// invalid decode to zeros.
func (f *Frame) Data() payload.Samples {
	s := f.Payload.Data()
	if !f.Valid {
		clear(s.Flat)
	}
	return s
}

// Bytes serializes header and payload. Invalid frames serialize their
// payload as the conventional 0x11223344 fill pattern.
func (f *Frame) Bytes() []byte {
	out := f.Header.Bytes()
	if f.Valid {
		return append(out, f.Payload.Bytes()...)
	}
	fill := make([]byte, PayloadSize)
	for i := 0; i < len(fill); i += 4 {
		binary.LittleEndian.PutUint32(fill[i:], invalidFill)
	}
	return append(out, fill...)
}

// WriteTo writes the serialized frame to w.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(f.Bytes())
	return int64(n), err
}

// Equal reports header field equality, payload equality and matching
// validity.
func (f *Frame) Equal(o *Frame) bool {
	if f == nil || o == nil {
		return f == o
	}
	return f.Valid == o.Valid && f.Header.Equal(o.Header) && f.Payload.Equal(o.Payload)
}
