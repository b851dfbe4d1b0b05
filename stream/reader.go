package stream

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/vlbitools/baseband/internal/logging"
	"github.com/vlbitools/baseband/payload"
)

// Reader exposes a frame sequence as a seekable sample array. It keeps at
// most one decoded block buffered: the buffer is either matching (covers
// the pointer) or stale, and a stale buffer is only refreshed when the
// next Read actually needs data.
type Reader struct {
	rs    io.ReadSeeker
	codec BlockCodec
	cfg   Config
	log   logging.Logger

	total  int64 // complete samples available
	pos    int64 // sample pointer
	bufIdx int64 // buffered block index, -1 when unbuffered
	buf    payload.Samples
	closed bool
}

// NewReader sizes the stream, decodes the first block eagerly to prove the
// parameters out, and positions the pointer at sample zero. The reader
// takes ownership of rs: Close closes it when it implements io.Closer.
func NewReader(rs io.ReadSeeker, codec BlockCodec, cfg Config) (*Reader, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("stream: sample rate must be positive, got %g", cfg.SampleRate)
	}
	spb, bb := codec.SamplesPerBlock(), codec.BlockBytes()
	if spb <= 0 || bb <= 0 {
		return nil, fmt.Errorf("stream: codec reports empty blocks (%d samples, %d bytes)", spb, bb)
	}
	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("stream: size underlying stream: %w", err)
	}
	nblocks := (size - cfg.Base) / int64(bb)
	if nblocks <= 0 {
		return nil, fmt.Errorf("stream: no complete blocks in %d bytes", size-cfg.Base)
	}
	r := &Reader{
		rs:     rs,
		codec:  codec,
		cfg:    cfg,
		log:    cfg.logger(),
		total:  nblocks * int64(spb),
		bufIdx: -1,
	}
	if err := r.fill(0); err != nil {
		return nil, err
	}
	return r, nil
}

// fill seeks to block idx and replaces the buffer with its decoded
// samples.
func (r *Reader) fill(idx int64) error {
	off := r.cfg.Base + idx*int64(r.codec.BlockBytes())
	if _, err := r.rs.Seek(off, io.SeekStart); err != nil {
		return fmt.Errorf("stream: seek block %d: %w", idx, err)
	}
	s, err := r.codec.DecodeBlock(r.rs, idx)
	if err != nil {
		r.bufIdx = -1
		return fmt.Errorf("stream: decode block %d: %w", idx, err)
	}
	r.buf = s
	r.bufIdx = idx
	return nil
}

// Read returns up to count samples from the pointer onward, advancing it.
// Reads may start and end mid-block and span any number of blocks. Hitting
// the end of the stream returns the samples collected so far; only a read
// that yields nothing returns io.EOF.
func (r *Reader) Read(count int) (payload.Samples, error) {
	if r.closed {
		return payload.Samples{}, ErrClosed
	}
	if count <= 0 {
		return payload.Samples{}, fmt.Errorf("stream: sample count must be positive, got %d", count)
	}
	out := payload.Samples{Channels: r.codec.Channels(), Complex: r.codec.IsComplex()}
	w := out.Width()
	spb := int64(r.codec.SamplesPerBlock())

	want := int64(count)
	if rest := r.total - r.pos; want > rest {
		want = rest
	}
	if want > 0 {
		out.Flat = make([]float32, 0, want*int64(w))
	}
	for int64(len(out.Flat)) < want*int64(w) {
		idx := r.pos / spb
		if idx != r.bufIdx {
			if err := r.fill(idx); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					break // truncated tail; hand back what we have
				}
				return payload.Samples{}, err
			}
		}
		off := r.pos % spb
		take := spb - off
		if rest := want - int64(len(out.Flat))/int64(w); take > rest {
			take = rest
		}
		out.Flat = append(out.Flat, r.buf.Flat[off*int64(w):(off+take)*int64(w)]...)
		r.pos += take
	}
	if len(out.Flat) == 0 {
		return out, io.EOF
	}
	return out, nil
}

// Seek moves the sample pointer. whence is io.SeekStart, io.SeekCurrent or
// io.SeekEnd; offsets count samples. Re-buffering is deferred to the next
// Read. Seeking past the end is allowed and yields io.EOF on read.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	if r.closed {
		return 0, ErrClosed
	}
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = r.pos + offset
	case io.SeekEnd:
		target = r.total + offset
	default:
		return 0, fmt.Errorf("stream: bad whence %d", whence)
	}
	if target < 0 {
		return 0, fmt.Errorf("stream: seek before start of stream (%d)", target)
	}
	r.pos = target
	return target, nil
}

// SeekTime moves the pointer to the sample nearest the absolute time t.
func (r *Reader) SeekTime(t time.Time) (int64, error) {
	offset := int64(math.Round(t.Sub(r.cfg.Start).Seconds() * r.cfg.SampleRate))
	return r.Seek(offset, io.SeekStart)
}

// SeekDuration moves the pointer by an elapsed-time delta relative to
// whence, converted to the nearest whole sample.
func (r *Reader) SeekDuration(d time.Duration, whence int) (int64, error) {
	return r.Seek(int64(math.Round(d.Seconds()*r.cfg.SampleRate)), whence)
}

// Tell returns the pointer as a raw sample count.
func (r *Reader) Tell() int64 { return r.pos }

// Elapsed returns the pointer as time elapsed since the stream start.
func (r *Reader) Elapsed() time.Duration {
	return time.Duration(float64(r.pos) / r.cfg.SampleRate * float64(time.Second))
}

// Time returns the pointer as an absolute timestamp.
func (r *Reader) Time() time.Time { return r.cfg.Start.Add(r.Elapsed()) }

// Total returns the number of complete samples in the stream.
func (r *Reader) Total() int64 { return r.total }

// StartTime returns the absolute time of sample zero.
func (r *Reader) StartTime() time.Time { return r.cfg.Start }

// SampleRate returns the stream sample rate in samples per second.
func (r *Reader) SampleRate() float64 { return r.cfg.SampleRate }

// Channels returns the stacked channel count per sample.
func (r *Reader) Channels() int { return r.codec.Channels() }

// Close releases the buffered block and the underlying byte handle. It is
// safe to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.buf = payload.Samples{}
	r.bufIdx = -1
	if c, ok := r.rs.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
