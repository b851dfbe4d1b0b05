package mark5b

import (
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/vlbitools/baseband/internal/logging"
	"github.com/vlbitools/baseband/payload"
	"github.com/vlbitools/baseband/stream"
)

// StreamOptions configures Open, OpenReader, Create and OpenWriter.
// Mark 5B records neither channel count, bit depth nor sample rate, so all
// three are always required.
type StreamOptions struct {
	NChan         int
	BitsPerSample int
	SampleRate    float64
	// RefMJD resolves the header's truncated day; required for readers.
	RefMJD float64
	Logger logging.Logger

	// Writer-side.
	StartTime time.Time
	User      uint16
}

// frameCodec maps one stream block to one Mark 5B frame.
type frameCodec struct {
	template   Header
	nchan, bps int
	spf        int
	fps        int64
	startSec   time.Time // whole second of block zero
	fn0        int64
}

func (c *frameCodec) SamplesPerBlock() int { return c.spf }
func (c *frameCodec) BlockBytes() int      { return FrameSize }
func (c *frameCodec) Channels() int        { return c.nchan }
func (c *frameCodec) IsComplex() bool      { return false }

func (c *frameCodec) DecodeBlock(r io.Reader, index int64) (payload.Samples, error) {
	f, err := ReadFrame(r, c.nchan, c.bps)
	if err != nil {
		return payload.Samples{}, err
	}
	abs := c.fn0 + index
	if want := int(abs % c.fps); f.Header.FrameNr() != want {
		return payload.Samples{}, fmt.Errorf("mark5b: frame number %d where %d was expected",
			f.Header.FrameNr(), want)
	}
	return f.Data(), nil
}

func (c *frameCodec) EncodeBlock(w io.Writer, index int64, flat []float32, valid bool) error {
	abs := c.fn0 + index
	hdr := c.template.Copy()
	t := c.startSec.Add(time.Duration(abs/c.fps) * time.Second)
	if err := hdr.SetTime(t, int(abs%c.fps), int(c.fps)); err != nil {
		return err
	}
	f, err := FrameFromData(payload.Samples{Flat: flat, Channels: c.nchan}, c.bps, hdr)
	if err != nil {
		return err
	}
	f.Valid = valid
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("mark5b: write frame: %w", err)
	}
	return nil
}

func geometry(opts StreamOptions) (spf int, fps int64, err error) {
	if opts.NChan < 1 || opts.BitsPerSample < 1 {
		return 0, 0, fmt.Errorf("mark5b: channel count and bit depth are required")
	}
	bits := opts.BitsPerSample * opts.NChan
	if PayloadSize*8%bits != 0 {
		return 0, 0, fmt.Errorf("mark5b: %d-bit samples do not fill the fixed payload", bits)
	}
	spf = PayloadSize * 8 / bits
	f := opts.SampleRate / float64(spf)
	if opts.SampleRate <= 0 || f < 1 || math.Abs(f-math.Round(f)) > 1e-9 {
		return 0, 0, fmt.Errorf("mark5b: %g samples/s is not a whole number of %d-sample frames per second",
			opts.SampleRate, spf)
	}
	return spf, int64(math.Round(f)), nil
}

// OpenReader probes the first header of rs to establish the stream start
// time, then presents the byte stream as a seekable sample array. The
// reader takes ownership of rs.
func OpenReader(rs io.ReadSeeker, opts StreamOptions) (*stream.Reader, error) {
	spf, fps, err := geometry(opts)
	if err != nil {
		return nil, err
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("mark5b: open: %w", err)
	}
	h0, err := ReadHeader(rs)
	if err != nil {
		return nil, fmt.Errorf("mark5b: open: %w", err)
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("mark5b: open: %w", err)
	}
	t0, err := h0.Time(opts.RefMJD)
	if err != nil {
		return nil, fmt.Errorf("mark5b: open: %w", err)
	}
	fn0 := int64(h0.FrameNr())
	startSec := t0.Truncate(time.Second)
	start := startSec.Add(time.Duration(float64(fn0) * float64(spf) / opts.SampleRate * float64(time.Second)))

	codec := &frameCodec{
		template: h0.Copy(),
		nchan:    opts.NChan,
		bps:      opts.BitsPerSample,
		spf:      spf,
		fps:      fps,
		startSec: startSec,
		fn0:      fn0,
	}
	return stream.NewReader(rs, codec, stream.Config{
		Start:      start,
		SampleRate: opts.SampleRate,
		Logger:     opts.Logger,
	})
}

// OpenWriter prepares a sample-stream writer emitting one frame per time
// slot. Required options: StartTime (frame-aligned), SampleRate, NChan,
// BitsPerSample. The writer takes ownership of w.
func OpenWriter(w io.Writer, opts StreamOptions) (*stream.Writer, error) {
	spf, fps, err := geometry(opts)
	if err != nil {
		return nil, err
	}
	if opts.StartTime.IsZero() {
		return nil, fmt.Errorf("mark5b: create: start time is required")
	}
	start := opts.StartTime.UTC()
	whole := start.Truncate(time.Second)
	fn0f := start.Sub(whole).Seconds() * float64(fps)
	if math.Abs(fn0f-math.Round(fn0f)) > 1e-6 {
		return nil, fmt.Errorf("mark5b: create: start time %v is not frame-aligned", start)
	}

	template, err := NewHeader(map[string]uint32{"user": uint32(opts.User)})
	if err != nil {
		return nil, fmt.Errorf("mark5b: create: %w", err)
	}
	codec := &frameCodec{
		template: template,
		nchan:    opts.NChan,
		bps:      opts.BitsPerSample,
		spf:      spf,
		fps:      fps,
		startSec: whole,
		fn0:      int64(math.Round(fn0f)),
	}
	return stream.NewWriter(w, codec, stream.Config{
		Start:      start,
		SampleRate: opts.SampleRate,
		Logger:     opts.Logger,
	})
}

// Open opens a file as a seekable sample stream for reading.
func Open(name string, opts StreamOptions) (*stream.Reader, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	r, err := OpenReader(f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// Create creates (or truncates) a file and opens it as a sample stream for
// writing.
func Create(name string, opts StreamOptions) (*stream.Writer, error) {
	f, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	wr, err := OpenWriter(f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	return wr, nil
}
