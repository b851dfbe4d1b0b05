package vdif

import (
	"fmt"
	"io"
	"time"
)

// FileReader reads headers, frames and frame sets sequentially from an
// underlying byte stream. It owns no resources; closing the byte stream is
// the caller's business (the stream layer takes ownership instead).
type FileReader struct {
	rs io.ReadSeeker
}

// NewFileReader wraps a byte stream positioned at a frame boundary.
func NewFileReader(rs io.ReadSeeker) *FileReader {
	return &FileReader{rs: rs}
}

// Offset returns the current byte position.
func (fr *FileReader) Offset() (int64, error) {
	return fr.rs.Seek(0, io.SeekCurrent)
}

// Seek repositions the underlying byte stream.
func (fr *FileReader) Seek(offset int64, whence int) (int64, error) {
	return fr.rs.Seek(offset, whence)
}

// ReadHeader decodes the next header, consuming exactly its bytes.
func (fr *FileReader) ReadHeader() (Header, error) {
	return ReadHeader(fr.rs)
}

// ReadFrame decodes the next frame.
func (fr *FileReader) ReadFrame() (*Frame, error) {
	return ReadFrame(fr.rs)
}

// ReadFrameSet collects the next time slot's frames; see the package-level
// ReadFrameSet for the exact policy.
func (fr *FileReader) ReadFrameSet(threads ...uint16) (*FrameSet, error) {
	return ReadFrameSet(fr, threads...)
}

// Info summarizes the stream parameters derivable from the first frame
// set: the file-level metadata probe.
type Info struct {
	EDV             int // -1 for legacy headers
	Legacy          bool
	Threads         []uint16
	Channels        int // per thread
	BitsPerSample   int
	Complex         bool
	FrameBytes      int
	SamplesPerFrame int
	SampleRate      float64 // 0 when no variant field declares it
	StartTime       time.Time
	StationID       uint16
	Incomplete      bool // first frame set was cut short by end of stream
}

// Info probes the first frame set from the start of the stream and
// restores the read position afterwards.
func (fr *FileReader) Info() (Info, error) {
	mark, err := fr.Offset()
	if err != nil {
		return Info{}, err
	}
	defer fr.rs.Seek(mark, io.SeekStart)

	if _, err := fr.rs.Seek(0, io.SeekStart); err != nil {
		return Info{}, fmt.Errorf("vdif: info: seek start: %w", err)
	}
	fs, err := ReadFrameSet(fr)
	if err != nil {
		return Info{}, fmt.Errorf("vdif: info: %w", err)
	}
	ref := fs.RefHeader()
	info := Info{
		EDV:             -1,
		Legacy:          ref.Legacy(),
		Threads:         fs.ThreadIDs(),
		Channels:        ref.NumChannels(),
		BitsPerSample:   ref.BitsPerSample(),
		Complex:         ref.IsComplex(),
		FrameBytes:      ref.FrameLength(),
		SamplesPerFrame: ref.SamplesPerFrame(),
		StartTime:       ref.Time(),
		StationID:       ref.StationID(),
		Incomplete:      fs.Incomplete(),
	}
	if edv, ok := ref.EDV(); ok {
		info.EDV = int(edv)
	}
	if rate, ok := ref.SampleRate(); ok {
		info.SampleRate = rate
	}
	return info, nil
}

// FileWriter writes frames and frame sets to an underlying byte stream.
type FileWriter struct {
	w io.Writer
}

// NewFileWriter wraps a byte stream.
func NewFileWriter(w io.Writer) *FileWriter {
	return &FileWriter{w: w}
}

// WriteFrame serializes one frame.
func (fw *FileWriter) WriteFrame(f *Frame) error {
	if _, err := f.WriteTo(fw.w); err != nil {
		return fmt.Errorf("vdif: write frame: %w", err)
	}
	return nil
}

// WriteFrameSet serializes a frame set in thread order.
func (fw *FileWriter) WriteFrameSet(fs *FrameSet) error {
	if _, err := fs.WriteTo(fw.w); err != nil {
		return fmt.Errorf("vdif: write frame set: %w", err)
	}
	return nil
}
