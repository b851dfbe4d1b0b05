package vdif

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vlbitools/baseband/payload"
)

// Frame pairs one header with one payload for a single thread and time
// slot.
type Frame struct {
	Header  Header
	Payload *payload.Payload
}

// NewFrame verifies mutual consistency and returns the frame.
func NewFrame(h Header, p *payload.Payload) (*Frame, error) {
	f := &Frame{Header: h, Payload: p}
	if err := f.verify(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Frame) verify() error {
	h, p := f.Header, f.Payload
	if p.Size() != h.PayloadSize() {
		return fmt.Errorf("%w: payload is %d bytes, header declares %d",
			ErrFrameMismatch, p.Size(), h.PayloadSize())
	}
	if p.BitsPerSample() != h.BitsPerSample() {
		return fmt.Errorf("%w: payload depth %d bits, header declares %d",
			ErrFrameMismatch, p.BitsPerSample(), h.BitsPerSample())
	}
	if p.Channels() != h.NumChannels() {
		return fmt.Errorf("%w: payload has %d channels, header declares %d",
			ErrFrameMismatch, p.Channels(), h.NumChannels())
	}
	if p.IsComplex() != h.IsComplex() {
		return fmt.Errorf("%w: payload and header disagree on complex sampling",
			ErrFrameMismatch)
	}
	return nil
}

// FrameFromData encodes samples into a frame under the given header. The
// header supplies bit depth, channel count and frame length; it is used as
// is, not copied.
func FrameFromData(s payload.Samples, h Header) (*Frame, error) {
	p, err := payload.FromData(s, h.BitsPerSample())
	if err != nil {
		return nil, err
	}
	return NewFrame(h, p)
}

// ReadFrame decodes one header-plus-payload from r. A clean end of stream
// before the first header byte returns io.EOF; a frame cut short returns
// io.ErrUnexpectedEOF wrapped with context.
func ReadFrame(r io.Reader) (*Frame, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	nwords := h.PayloadSize() / 4
	if nwords <= 0 {
		return nil, fmt.Errorf("%w: header declares empty payload", ErrFrameMismatch)
	}
	buf := make([]byte, nwords*4)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("vdif: frame payload cut short: %w", io.ErrUnexpectedEOF)
		}
		return nil, fmt.Errorf("vdif: read frame payload: %w", err)
	}
	words := make([]uint32, nwords)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	p, err := payload.New(words, h.BitsPerSample(), h.NumChannels(), h.IsComplex())
	if err != nil {
		return nil, err
	}
	return NewFrame(h, p)
}

// Valid reports whether the frame carries real data (invalid-data flag
// clear).
func (f *Frame) Valid() bool { return !f.Header.Invalid() }

// SetValid sets or clears the invalid-data flag; the header must be
// mutable.
func (f *Frame) SetValid(valid bool) error { return f.Header.SetInvalid(!valid) }

// ThreadID returns the frame's thread identifier.
func (f *Frame) ThreadID() uint16 { return f.Header.ThreadID() }

// Data decodes the payload into an independent sample block. Frames
// flagged invalid decode to zeros, the conventional fill value.
func (f *Frame) Data() payload.Samples {
	s := f.Payload.Data()
	if f.Header.Invalid() {
		clear(s.Flat)
	}
	return s
}

// Bytes serializes header and payload.
func (f *Frame) Bytes() []byte {
	return append(f.Header.Bytes(), f.Payload.Bytes()...)
}

// WriteTo writes the serialized frame to w.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(f.Bytes())
	return int64(n), err
}

// Equal reports header field equality and payload equality.
func (f *Frame) Equal(o *Frame) bool {
	if f == nil || o == nil {
		return f == o
	}
	return f.Header.Equal(o.Header) && f.Payload.Equal(o.Payload)
}
