package stream

import (
	"fmt"
	"io"
	"time"

	"github.com/vlbitools/baseband/internal/logging"
	"github.com/vlbitools/baseband/payload"
)

// Writer buffers exactly one block's worth of samples and flushes a
// complete, index-stamped block to the underlying byte stream whenever the
// buffer fills.
type Writer struct {
	w     io.Writer
	codec BlockCodec
	cfg   Config
	log   logging.Logger

	buf    []float32 // one block, sample-major
	fill   int       // samples buffered
	idx    int64     // next block index to flush
	padded int       // samples zero-padded at close
	closed bool
}

// NewWriter prepares an empty one-block buffer. The writer takes ownership
// of w: Close closes it when it implements io.Closer.
func NewWriter(w io.Writer, codec BlockCodec, cfg Config) (*Writer, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("stream: sample rate must be positive, got %g", cfg.SampleRate)
	}
	spb := codec.SamplesPerBlock()
	if spb <= 0 {
		return nil, fmt.Errorf("stream: codec reports empty blocks (%d samples)", spb)
	}
	width := codec.Channels()
	if codec.IsComplex() {
		width *= 2
	}
	return &Writer{
		w:     w,
		codec: codec,
		cfg:   cfg,
		log:   cfg.logger(),
		buf:   make([]float32, spb*width),
	}, nil
}

func (wr *Writer) width() int {
	w := wr.codec.Channels()
	if wr.codec.IsComplex() {
		w *= 2
	}
	return w
}

// Write appends samples to the stream, flushing every block that fills.
// The block's shape must match the codec's channel count and complexity.
func (wr *Writer) Write(s payload.Samples) error {
	if wr.closed {
		return ErrClosed
	}
	if s.Channels != wr.codec.Channels() || s.Complex != wr.codec.IsComplex() {
		return fmt.Errorf("stream: sample shape (%d channels, complex=%v) does not match stream (%d, %v)",
			s.Channels, s.Complex, wr.codec.Channels(), wr.codec.IsComplex())
	}
	w := wr.width()
	if len(s.Flat)%w != 0 {
		return fmt.Errorf("stream: ragged sample block of %d values", len(s.Flat))
	}
	flat := s.Flat
	spb := wr.codec.SamplesPerBlock()
	for len(flat) > 0 {
		space := (spb - wr.fill) * w
		take := len(flat)
		if take > space {
			take = space
		}
		copy(wr.buf[wr.fill*w:], flat[:take])
		wr.fill += take / w
		flat = flat[take:]
		if wr.fill == spb {
			if err := wr.flush(true); err != nil {
				return err
			}
		}
	}
	return nil
}

func (wr *Writer) flush(valid bool) error {
	if err := wr.codec.EncodeBlock(wr.w, wr.idx, wr.buf, valid); err != nil {
		return fmt.Errorf("stream: encode block %d: %w", wr.idx, err)
	}
	wr.idx++
	wr.fill = 0
	clear(wr.buf)
	return nil
}

// Tell returns the number of samples written so far.
func (wr *Writer) Tell() int64 {
	return wr.idx*int64(wr.codec.SamplesPerBlock()) + int64(wr.fill)
}

// Elapsed returns the written length as elapsed time.
func (wr *Writer) Elapsed() time.Duration {
	return time.Duration(float64(wr.Tell()) / wr.cfg.SampleRate * float64(time.Second))
}

// Time returns the absolute timestamp one past the last written sample.
func (wr *Writer) Time() time.Time { return wr.cfg.Start.Add(wr.Elapsed()) }

// Padded returns the number of trailing samples zero-filled by Close; zero
// until then.
func (wr *Writer) Padded() int { return wr.padded }

// Close flushes any partial final block and releases the byte handle. A
// partial block is zero-padded and written with the invalid-data flag set:
// trailing short frames are an expected condition, so this warns rather
// than fails.
func (wr *Writer) Close() error {
	if wr.closed {
		return nil
	}
	var err error
	if wr.fill > 0 {
		wr.padded = wr.codec.SamplesPerBlock() - wr.fill
		wr.log.Warn("padding partial final block",
			logging.Field{Key: "block", Value: wr.idx},
			logging.Field{Key: "samples_padded", Value: wr.padded})
		// buffer tail is already zero; flush stamps the invalid flag
		err = wr.flush(false)
	}
	wr.closed = true
	if c, ok := wr.w.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
