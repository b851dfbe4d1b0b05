package vdif

import (
	"fmt"
	"io"
	"math"
	"math/bits"
	"os"
	"sort"
	"time"

	"github.com/vlbitools/baseband/internal/logging"
	"github.com/vlbitools/baseband/payload"
	"github.com/vlbitools/baseband/stream"
)

// StreamOptions configures Open, OpenReader, Create and OpenWriter. Zero
// values mean "derive from the file" where derivation is possible.
type StreamOptions struct {
	// SampleRate is complete time samples per channel per second. Optional
	// for readers when the header variant declares one (EDV 1/3); required
	// otherwise, and always required for writers.
	SampleRate float64
	// Threads restricts a reader to a subset of the thread IDs present,
	// or fixes the thread IDs a writer emits. nil means every thread found
	// (readers) or IDs 0..NThreads-1 (writers).
	Threads []uint16
	// Logger receives diagnostics; nil means the process default.
	Logger logging.Logger

	// Writer-side geometry.
	StartTime     time.Time
	NThreads      int
	NChan         int
	BitsPerSample int
	Complex       bool
	FrameLength   int // total bytes per frame, header included
	EDV           int
	Legacy        bool
	StationID     uint16
}

// frameSetCodec maps one stream block to one frame set: every thread's
// frame for a single time slot, in ascending thread order on the wire.
type frameSetCodec struct {
	templates []Header       // per selected thread, ascending, mutable
	disk      map[uint16]bool // every thread present per slot
	sel       map[uint16]int  // thread ID -> stacked position
	nDisk     int

	spf, nchan, bps int
	cmplx           bool
	frameBytes      int
	fps             int64  // frame sets per second
	sec0            uint32 // seconds field of block 0
	fn0             int64  // frame number of block 0
}

func (c *frameSetCodec) SamplesPerBlock() int { return c.spf }
func (c *frameSetCodec) BlockBytes() int      { return c.frameBytes * c.nDisk }
func (c *frameSetCodec) IsComplex() bool      { return c.cmplx }
func (c *frameSetCodec) Channels() int        { return len(c.templates) * c.nchan }

// slot converts a block index to the (seconds, frame number) it must carry.
func (c *frameSetCodec) slot(index int64) (uint32, uint32) {
	abs := c.fn0 + index
	return c.sec0 + uint32(abs/c.fps), uint32(abs % c.fps)
}

func (c *frameSetCodec) DecodeBlock(r io.Reader, index int64) (payload.Samples, error) {
	wantSec, wantNr := c.slot(index)
	per := make([]payload.Samples, len(c.templates))
	for i := 0; i < c.nDisk; i++ {
		f, err := ReadFrame(r)
		if err != nil {
			return payload.Samples{}, err
		}
		if f.Header.Seconds() != wantSec || f.Header.FrameNr() != int(wantNr) {
			return payload.Samples{}, fmt.Errorf("vdif: frame at slot %d/%d where %d/%d was expected",
				f.Header.Seconds(), f.Header.FrameNr(), wantSec, wantNr)
		}
		id := f.ThreadID()
		if !c.disk[id] {
			return payload.Samples{}, fmt.Errorf("vdif: unexpected thread %d in stream", id)
		}
		pos, selected := c.sel[id]
		if !selected {
			continue
		}
		if per[pos].Flat != nil {
			return payload.Samples{}, fmt.Errorf("%w: thread %d", ErrDuplicateThread, id)
		}
		per[pos] = f.Data()
	}
	pw := c.nchan
	if c.cmplx {
		pw *= 2
	}
	for i, block := range per {
		if block.Flat == nil || block.Count() != c.spf {
			return payload.Samples{}, fmt.Errorf("%w: thread position %d missing or short",
				ErrIncompleteFrameSet, i)
		}
	}
	out := payload.Samples{
		Flat:     make([]float32, 0, c.spf*len(per)*pw),
		Channels: c.Channels(),
		Complex:  c.cmplx,
	}
	for s := 0; s < c.spf; s++ {
		for _, block := range per {
			out.Flat = append(out.Flat, block.Flat[s*pw:(s+1)*pw]...)
		}
	}
	return out, nil
}

func (c *frameSetCodec) EncodeBlock(w io.Writer, index int64, flat []float32, valid bool) error {
	sec, fn := c.slot(index)
	pw := c.nchan
	if c.cmplx {
		pw *= 2
	}
	tw := len(c.templates) * pw
	per := make([]float32, c.spf*pw)
	for ti, tmpl := range c.templates {
		hdr := tmpl.Copy()
		if err := hdr.Set("seconds", sec); err != nil {
			return err
		}
		if err := hdr.Set("frame_nr", fn); err != nil {
			return err
		}
		if err := hdr.SetInvalid(!valid); err != nil {
			return err
		}
		for s := 0; s < c.spf; s++ {
			copy(per[s*pw:(s+1)*pw], flat[s*tw+ti*pw:s*tw+(ti+1)*pw])
		}
		f, err := FrameFromData(payload.Samples{Flat: per, Channels: c.nchan, Complex: c.cmplx}, hdr)
		if err != nil {
			return fmt.Errorf("vdif: thread %d: %w", tmpl.ThreadID(), err)
		}
		if _, err := f.WriteTo(w); err != nil {
			return fmt.Errorf("vdif: write thread %d: %w", tmpl.ThreadID(), err)
		}
	}
	return nil
}

// framesPerSecond validates that the sample rate divides into whole frames
// per second.
func framesPerSecond(rate float64, spf int) (int64, error) {
	fps := rate / float64(spf)
	if fps < 1 || math.Abs(fps-math.Round(fps)) > 1e-9 {
		return 0, fmt.Errorf("vdif: %g samples/s is not a whole number of %d-sample frames per second",
			rate, spf)
	}
	return int64(math.Round(fps)), nil
}

// OpenReader scans the first frame set of rs to establish the stream
// parameters, then presents the whole byte stream as a seekable sample
// array. The reader takes ownership of rs.
func OpenReader(rs io.ReadSeeker, opts StreamOptions) (*stream.Reader, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("vdif: open: %w", err)
	}
	fr := NewFileReader(rs)
	fs, err := fr.ReadFrameSet()
	if err != nil {
		return nil, fmt.Errorf("vdif: open: %w", err)
	}
	if fs.Incomplete() {
		return nil, fmt.Errorf("vdif: open: stream shorter than one complete frame set")
	}
	frames := fs.Frames()
	ref := fs.RefHeader()
	for _, f := range frames {
		h := f.Header
		if h.FrameLength() != ref.FrameLength() || h.BitsPerSample() != ref.BitsPerSample() ||
			h.NumChannels() != ref.NumChannels() || h.IsComplex() != ref.IsComplex() {
			return nil, fmt.Errorf("%w: thread %d geometry differs from thread %d",
				ErrFrameMismatch, h.ThreadID(), ref.ThreadID())
		}
	}

	disk := make(map[uint16]bool, len(frames))
	byID := make(map[uint16]Header, len(frames))
	for _, f := range frames {
		disk[f.ThreadID()] = true
		byID[f.ThreadID()] = f.Header
	}
	selected := opts.Threads
	if selected == nil {
		selected = fs.ThreadIDs()
	}
	sorted := append([]uint16(nil), selected...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	sel := make(map[uint16]int, len(sorted))
	templates := make([]Header, len(sorted))
	for i, id := range sorted {
		if !disk[id] {
			return nil, fmt.Errorf("vdif: requested thread %d not present in stream", id)
		}
		if _, dup := sel[id]; dup {
			return nil, fmt.Errorf("vdif: thread %d requested twice", id)
		}
		sel[id] = i
		templates[i] = byID[id].Copy()
	}

	rate := opts.SampleRate
	if rate == 0 {
		var ok bool
		if rate, ok = ref.SampleRate(); !ok {
			return nil, fmt.Errorf("vdif: header variant declares no sample rate; set StreamOptions.SampleRate")
		}
	}
	spf := ref.SamplesPerFrame()
	fps, err := framesPerSecond(rate, spf)
	if err != nil {
		return nil, err
	}
	fn0 := int64(ref.FrameNr())
	start := ref.Time().Add(time.Duration(float64(fn0) * float64(spf) / rate * float64(time.Second)))

	codec := &frameSetCodec{
		templates:  templates,
		disk:       disk,
		sel:        sel,
		nDisk:      len(frames),
		spf:        spf,
		nchan:      ref.NumChannels(),
		bps:        ref.BitsPerSample(),
		cmplx:      ref.IsComplex(),
		frameBytes: ref.FrameLength(),
		fps:        fps,
		sec0:       ref.Seconds(),
		fn0:        fn0,
	}
	return stream.NewReader(rs, codec, stream.Config{
		Start:      start,
		SampleRate: rate,
		Logger:     opts.Logger,
	})
}

// OpenWriter prepares a sample-stream writer that emits one frame per
// thread per time slot. Required options: StartTime (frame-aligned),
// SampleRate, NThreads (or Threads), NChan, BitsPerSample, FrameLength.
// The writer takes ownership of w.
func OpenWriter(w io.Writer, opts StreamOptions) (*stream.Writer, error) {
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("vdif: create: sample rate is required")
	}
	if opts.StartTime.IsZero() {
		return nil, fmt.Errorf("vdif: create: start time is required")
	}
	threadIDs := opts.Threads
	if threadIDs == nil {
		if opts.NThreads < 1 {
			return nil, fmt.Errorf("vdif: create: thread count is required")
		}
		threadIDs = make([]uint16, opts.NThreads)
		for i := range threadIDs {
			threadIDs[i] = uint16(i)
		}
	}
	sorted := append([]uint16(nil), threadIDs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	nchan := opts.NChan
	if nchan < 1 || nchan&(nchan-1) != 0 {
		return nil, fmt.Errorf("vdif: create: channel count %d is not a power of two", nchan)
	}
	headerBytes := 32
	if opts.Legacy {
		headerBytes = 16
	}
	if opts.FrameLength <= headerBytes || opts.FrameLength%8 != 0 {
		return nil, fmt.Errorf("vdif: create: frame length %d must be a multiple of 8 exceeding the %d-byte header",
			opts.FrameLength, headerBytes)
	}
	payloadBits := (opts.FrameLength - headerBytes) * 8
	sampleBits := opts.BitsPerSample * nchan
	if opts.Complex {
		sampleBits *= 2
	}
	if sampleBits <= 0 || payloadBits%sampleBits != 0 {
		return nil, fmt.Errorf("vdif: create: %d payload bits do not hold whole %d-bit samples",
			payloadBits, sampleBits)
	}
	spf := payloadBits / sampleBits
	fps, err := framesPerSecond(opts.SampleRate, spf)
	if err != nil {
		return nil, err
	}

	start := opts.StartTime.UTC()
	whole := start.Truncate(time.Second)
	fn0f := start.Sub(whole).Seconds() * float64(fps)
	if math.Abs(fn0f-math.Round(fn0f)) > 1e-6 {
		return nil, fmt.Errorf("vdif: create: start time %v is not frame-aligned", start)
	}
	fn0 := int64(math.Round(fn0f))

	templates := make([]Header, len(sorted))
	for i, id := range sorted {
		values := map[string]uint32{
			"frame_length":    uint32(opts.FrameLength / 8),
			"lg2_nchan":       uint32(bits.Len(uint(nchan)) - 1),
			"bits_per_sample": uint32(opts.BitsPerSample - 1),
			"station_id":      uint32(opts.StationID),
			"thread_id":       uint32(id),
		}
		if opts.Complex {
			values["complex_data"] = 1
		}
		if opts.Legacy {
			values["legacy_mode"] = 1
		} else {
			values["edv"] = uint32(opts.EDV)
		}
		h, err := NewHeader(values)
		if err != nil {
			return nil, fmt.Errorf("vdif: create: %w", err)
		}
		if err := h.SetTime(whole); err != nil {
			return nil, fmt.Errorf("vdif: create: %w", err)
		}
		if h.Schema().HasField("sample_rate") {
			if err := stampSampleRate(h, opts.SampleRate); err != nil {
				return nil, fmt.Errorf("vdif: create: %w", err)
			}
		}
		templates[i] = h
	}

	codec := &frameSetCodec{
		templates:  templates,
		nDisk:      len(templates),
		spf:        spf,
		nchan:      nchan,
		bps:        opts.BitsPerSample,
		cmplx:      opts.Complex,
		frameBytes: opts.FrameLength,
		fps:        fps,
		sec0:       templates[0].Seconds(),
		fn0:        fn0,
	}
	return stream.NewWriter(w, codec, stream.Config{
		Start:      start,
		SampleRate: opts.SampleRate,
		Logger:     opts.Logger,
	})
}

// stampSampleRate fills the EDV 1/3 rate field in the largest unit that
// divides evenly.
func stampSampleRate(h Header, rate float64) error {
	if rate != math.Trunc(rate) {
		return fmt.Errorf("sample rate %g is not a whole number of samples per second", rate)
	}
	r := int64(rate)
	switch {
	case r%1e6 == 0:
		if err := h.Set("sampling_unit", 1); err != nil {
			return err
		}
		return h.Set("sample_rate", uint32(r/1e6))
	case r%1e3 == 0:
		if err := h.Set("sampling_unit", 0); err != nil {
			return err
		}
		return h.Set("sample_rate", uint32(r/1e3))
	default:
		return fmt.Errorf("sample rate %d Hz is not representable in kHz units", r)
	}
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
	w, err := OpenWriter(f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}
